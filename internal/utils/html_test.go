package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessPostHTMLSanitizes(t *testing.T) {
	meta := ProcessPostHTML(`<h2>Hello</h2><p onclick="x()">World</p><script>alert(1)</script>`)
	assert.NotContains(t, meta.Content, "script")
	assert.NotContains(t, meta.Content, "onclick")
	assert.Contains(t, meta.Content, "<h2>Hello</h2>")
	assert.Equal(t, "Hello World", meta.Excerpt)
	assert.Equal(t, 1, meta.ReadTime)
}

func TestProcessPostHTMLImagesAndReadTime(t *testing.T) {
	body := "<p>" + strings.Repeat("word ", 450) + "</p>"
	meta := ProcessPostHTML(`<img src="https://cdn.example.com/a.png">` + body)
	assert.Equal(t, "https://cdn.example.com/a.png", meta.FirstImage)
	assert.Contains(t, meta.Content, `loading="lazy"`)
	assert.Equal(t, 3, meta.ReadTime)
	assert.True(t, strings.HasSuffix(meta.Excerpt, "..."))
}

func TestProcessPostHTMLEmbedsYouTube(t *testing.T) {
	meta := ProcessPostHTML(`<p>https://www.youtube.com/watch?v=abc123&t=5</p>`)
	assert.Contains(t, meta.Content, "https://www.youtube.com/embed/abc123")
}

func TestProcessPostHTMLRejectsCraftedVideoID(t *testing.T) {
	meta := ProcessPostHTML(`<p>https://youtu.be/x"onload="alert(document.cookie)</p>`)
	assert.NotContains(t, meta.Content, "<iframe")
	assert.NotContains(t, meta.Content, `onload="`)

	meta = ProcessPostHTML(`<p>https://www.youtube.com/watch?v=abc"><script>alert(1)</script></p>`)
	assert.NotContains(t, meta.Content, "<iframe")
	assert.NotContains(t, meta.Content, "<script>")

	assert.Equal(t, "", youtubeID("https://youtu.be/"))
	assert.Equal(t, "dQw4w9WgXcQ", youtubeID("https://youtu.be/dQw4w9WgXcQ?t=3"))
}

func TestProcessPostHTMLEmbedsEachVideo(t *testing.T) {
	meta := ProcessPostHTML(`<p>https://youtu.be/aaaaaa111</p><p>text</p><p>https://youtu.be/bbbbbb222</p>`)
	assert.Contains(t, meta.Content, `src="https://www.youtube.com/embed/aaaaaa111"`)
	assert.Contains(t, meta.Content, `src="https://www.youtube.com/embed/bbbbbb222"`)
	assert.Equal(t, 2, strings.Count(meta.Content, "<iframe"))
}

func TestProcessPostHTMLEmpty(t *testing.T) {
	meta := ProcessPostHTML(`<script>only</script>`)
	assert.Empty(t, meta.Content)
	assert.Equal(t, 1, meta.ReadTime)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "短文本", Truncate("短文本", 10))
	assert.Equal(t, "一二三...", Truncate("一二三四五", 3))
}
