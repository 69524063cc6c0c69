package utils

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	postPolicy  = bluemonday.UGCPolicy()
	youtubeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)
)

func init() {
	postPolicy.AllowImages()
	// 编辑器输出的代码块高亮 class
	postPolicy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span")
	postPolicy.AllowIFrames()
	postPolicy.AllowAttrs("src", "allowfullscreen", "frameborder").OnElements("iframe")
	postPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	postPolicy.RequireNoReferrerOnLinks(true)
}

const wordsPerMinute = 200

// PostMeta 从文章 HTML 中提取的派生信息
type PostMeta struct {
	Content    string // 清洗并增强后的 HTML
	Excerpt    string
	ReadTime   int
	FirstImage string
}

// ProcessPostHTML sanitizes editor HTML and derives excerpt, read time and first image.
func ProcessPostHTML(raw string) PostMeta {
	clean := postPolicy.Sanitize(raw)
	if strings.TrimSpace(clean) == "" {
		return PostMeta{ReadTime: 1}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return PostMeta{Content: clean, ReadTime: 1}
	}

	meta := PostMeta{}

	// 增强图片属性
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		if i == 0 {
			meta.FirstImage, _ = s.Attr("src")
		}
		s.SetAttr("loading", "lazy")
		s.SetAttr("referrerpolicy", "no-referrer")
	})

	// 单独一行的 YouTube 链接转换为嵌入式播放器
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if strings.Contains(text, " ") || !strings.HasPrefix(text, "http") {
			return
		}
		if id := youtubeID(text); id != "" {
			s.ReplaceWithHtml(`<div class="video-container"><iframe frameborder="0" allowfullscreen></iframe></div>`)
			doc.Find("div.video-container iframe:not([src])").SetAttr("src", "https://www.youtube.com/embed/"+id)
		}
	})

	var parts []string
	doc.Find("body").Contents().Each(func(i int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	meta.Excerpt = Truncate(text, 200)
	words := len(strings.Fields(text))
	meta.ReadTime = int(math.Ceil(float64(words) / wordsPerMinute))
	if meta.ReadTime < 1 {
		meta.ReadTime = 1
	}

	// goquery renders full document tags if missing, we just want the body content
	body, _ := doc.Find("body").Html()
	if body == "" {
		body, _ = doc.Html()
	}
	meta.Content = body
	return meta
}

// youtubeID 只接受合法的视频 id，其余返回空
func youtubeID(link string) string {
	var id string
	switch {
	case strings.Contains(link, "youtube.com/watch?v="):
		parts := strings.SplitN(link, "v=", 2)
		id = strings.Split(parts[1], "&")[0]
	case strings.Contains(link, "youtu.be/"):
		parts := strings.SplitN(link, "youtu.be/", 2)
		id = strings.Split(parts[1], "?")[0]
	}
	if !youtubeIDRe.MatchString(id) {
		return ""
	}
	return id
}

// Truncate cuts s to at most n runes, appending an ellipsis when shortened.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}
