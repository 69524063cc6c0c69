package utils

import (
	"strings"
	"unicode"
)

// Slugify 生成 URL 友好的标题片段，保留中文等非 ASCII 字母
func Slugify(title string, max int) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if runes := []rune(slug); len(runes) > max {
		slug = strings.Trim(string(runes[:max]), "-")
	}
	return slug
}

// PostSlug builds a unique-enough slug: "<title>-<6 random chars>".
func PostSlug(title string) string {
	base := Slugify(title, 80)
	if base == "" {
		return RandomString(8)
	}
	return base + "-" + RandomString(6)
}

// NormalizeTags 去重、小写、限制数量与长度
func NormalizeTags(tags []string, limit int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		name := Slugify(strings.TrimPrefix(strings.TrimSpace(t), "#"), 30)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}
