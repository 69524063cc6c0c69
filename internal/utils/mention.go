package utils

import (
	"regexp"
	"strings"
)

var mentionRe = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_]{3,30})`)

// ExtractMentions returns the distinct usernames mentioned as @name, lower-cased.
func ExtractMentions(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
