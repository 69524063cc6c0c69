package handlers

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/db"
	"quill/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"
)

const (
	sitemapLimit = 500
	feedLimit    = 20
)

// FeedHandler 生成 sitemap 与 RSS，链接指向前端 CLIENT_URL
type FeedHandler struct {
	siteURL string
}

func NewFeedHandler(cfg *config.Config) *FeedHandler {
	return &FeedHandler{siteURL: strings.TrimSuffix(cfg.ClientURL, "/")}
}

func (h *FeedHandler) postURL(p *models.Post) string {
	return fmt.Sprintf("%s/posts/%s", h.siteURL, p.Slug)
}

type sitemapURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod"`
	ChangeFreq string  `xml:"changefreq"`
	Priority   float64 `xml:"priority"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// Sitemap GET /sitemap.xml
func (h *FeedHandler) Sitemap(c *gin.Context) {
	now := time.Now()
	set := urlSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{
		Loc: h.siteURL + "/", LastMod: now.Format("2006-01-02"), ChangeFreq: "daily", Priority: 1.0,
	})

	var posts []models.Post
	db.DB.Where("published = ?", true).Order("published_at DESC").Limit(sitemapLimit).Find(&posts)
	for i := range posts {
		p := &posts[i]
		// 越新的文章优先级越高
		priority, freq := 0.6, "weekly"
		if p.PublishedAt != nil {
			switch days := now.Sub(*p.PublishedAt).Hours() / 24; {
			case days < 7:
				priority, freq = 0.8, "daily"
			case days < 30:
				priority = 0.7
			}
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        h.postURL(p),
			LastMod:    p.UpdatedAt.Format("2006-01-02"),
			ChangeFreq: freq,
			Priority:   priority,
		})
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, xml.Header)
	enc := xml.NewEncoder(c.Writer)
	enc.Indent("", "  ")
	enc.Encode(set)
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description cdata    `xml:"description"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category"`
	PubDate     string   `xml:"pubDate"`
	GUID        rssGUID  `xml:"guid"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

// RSS GET /feed.xml 最新已发布文章
func (h *FeedHandler) RSS(c *gin.Context) {
	var posts []models.Post
	withPostRelations(db.DB).Where("published = ?", true).
		Order("published_at DESC, id DESC").Limit(feedLimit).Find(&posts)

	doc := rssDoc{
		Version: "2.0",
		Channel: rssChannel{
			Title:         "Quill",
			Link:          h.siteURL,
			Description:   "Latest posts on Quill",
			LastBuildDate: time.Now().Format(time.RFC1123Z),
		},
	}
	for i := range posts {
		p := &posts[i]
		link := h.postURL(p)
		body := leadBlocks(p.Content, 3) +
			fmt.Sprintf(`<p><a href="%s">Continue reading and join the discussion →</a></p>`, link)

		item := rssItem{
			Title:       p.Title,
			Link:        link,
			Description: cdata{Value: body},
			Author:      p.User.Username,
			GUID:        rssGUID{IsPermaLink: true, Value: link},
		}
		if p.PublishedAt != nil {
			item.PubDate = p.PublishedAt.Format(time.RFC1123Z)
		}
		for _, t := range p.Tags {
			item.Categories = append(item.Categories, t.Name)
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, xml.Header)
	enc := xml.NewEncoder(c.Writer)
	enc.Indent("", "  ")
	enc.Encode(doc)
}

// leadBlocks 保留前 n 个顶层块级元素
func leadBlocks(content string, n int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var b strings.Builder
	doc.Find("body").Children().EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= n {
			return false
		}
		if out, err := goquery.OuterHtml(s); err == nil {
			b.WriteString(out)
		}
		return true
	})
	return b.String()
}
