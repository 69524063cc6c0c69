package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeLikePost    NotificationType = "like_post"
	NotificationTypeLikeComment NotificationType = "like_comment"
	NotificationTypeLikeReply   NotificationType = "like_reply"
	NotificationTypeComment     NotificationType = "comment"
	NotificationTypeReply       NotificationType = "reply"
	NotificationTypeFollow      NotificationType = "follow"
	NotificationTypeMention     NotificationType = "mention"
	NotificationTypeSystem      NotificationType = "system"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    uint             `gorm:"not null;index" json:"user_id"` // Receiver
	User      User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActorID   *uint            `gorm:"index" json:"actor_id"` // Sender, nil 为系统通知
	Actor     *User            `gorm:"foreignKey:ActorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Type      NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	Message   string           `gorm:"type:text" json:"message"`
	PostID    *uint            `gorm:"index" json:"post_id"`
	CommentID *uint            `json:"comment_id"`
	ReplyID   *uint            `json:"reply_id"`
	IsRead    bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`

	Sender   *UserSummary `gorm:"-" json:"sender"`
	PostSlug string       `gorm:"-" json:"post_slug,omitempty"`
}
