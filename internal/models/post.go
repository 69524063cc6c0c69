package models

import (
	"time"
)

type Post struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Slug        string     `gorm:"uniqueIndex;size:120;not null" json:"slug"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	User        User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Title       string     `gorm:"size:150;not null" json:"title"`
	Content     string     `gorm:"type:text;not null" json:"content"` // 已清洗的 HTML
	Excerpt     string     `gorm:"size:300" json:"excerpt"`
	CoverImage  string     `json:"cover_image"`
	ReadTime    int        `gorm:"default:1" json:"read_time"` // 分钟
	Tags        []Tag      `gorm:"many2many:post_tags;" json:"tags"`
	Published   bool       `gorm:"default:false;index" json:"published"`
	PublishedAt *time.Time `gorm:"index" json:"published_at"`
	Visits      int        `gorm:"default:0" json:"visits"`
	Score       int        `gorm:"default:0;index" json:"-"` // 热度，由 RankingService 维护
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// 非数据库字段，用于查询时填充
	Author         UserSummary `gorm:"-" json:"author"`
	LikesCount     int64       `gorm:"-" json:"likes_count"`
	BookmarksCount int64       `gorm:"-" json:"bookmarks_count"`
	CommentsCount  int64       `gorm:"-" json:"comments_count"`
	IsLiked        bool        `gorm:"-" json:"is_liked"`
	IsBookmarked   bool        `gorm:"-" json:"is_bookmarked"`
}

type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:30;uniqueIndex;not null" json:"name"`
}

type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_post_like" json:"user_id"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	PostID    uint      `gorm:"not null;index;uniqueIndex:idx_post_like" json:"post_id"`
	Post      Post      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
