package services

import (
	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/models"
	"quill/internal/realtime"
	"quill/internal/utils"

	"go.uber.org/zap"
)

// NotificationService 持久化通知并实时推送给接收者
type NotificationService struct {
	pub  realtime.Publisher
	mail *MailService
}

func NewNotificationService(pub realtime.Publisher, mail *MailService) *NotificationService {
	if pub == nil {
		pub = realtime.Nop{}
	}
	return &NotificationService{pub: pub, mail: mail}
}

// NotifyInput describes one notification. ActorID 0 means a system notification.
type NotifyInput struct {
	RecipientID uint
	ActorID     uint
	Type        models.NotificationType
	Message     string
	PostID      *uint
	CommentID   *uint
	ReplyID     *uint
}

// Notify stores the notification and pushes it to the recipient.
// Self-actions are ignored and return nil.
func (s *NotificationService) Notify(in NotifyInput) *models.Notification {
	if in.RecipientID == 0 || in.RecipientID == in.ActorID {
		return nil
	}

	n := models.Notification{
		UserID:    in.RecipientID,
		Type:      in.Type,
		Message:   in.Message,
		PostID:    in.PostID,
		CommentID: in.CommentID,
		ReplyID:   in.ReplyID,
	}
	if in.ActorID != 0 {
		actorID := in.ActorID
		n.ActorID = &actorID
	}
	if err := db.DB.Create(&n).Error; err != nil {
		logger.Log.Error("Failed to create notification", logger.WithUserID(in.RecipientID), zap.Error(err))
		return nil
	}

	list := []models.Notification{n}
	FillNotifications(list)
	n = list[0]

	s.pub.SendToUser(n.UserID, realtime.EventNotification, n)
	s.maybeEmail(&n)
	return &n
}

// NotifyMentions notifies every @username in content, except the actor and skipped ids.
func (s *NotificationService) NotifyMentions(actor *models.User, content string, postID, commentID, replyID *uint, skip map[uint]bool) {
	names := utils.ExtractMentions(content)
	if len(names) == 0 {
		return
	}
	var users []models.User
	db.DB.Select("id").Where("LOWER(username) IN ?", names).Find(&users)
	for _, u := range users {
		if skip[u.ID] {
			continue
		}
		s.Notify(NotifyInput{
			RecipientID: u.ID,
			ActorID:     actor.ID,
			Type:        models.NotificationTypeMention,
			Message:     actor.Name + " mentioned you",
			PostID:      postID,
			CommentID:   commentID,
			ReplyID:     replyID,
		})
	}
}

// maybeEmail 评论和回复额外发送邮件（仅已验证邮箱）
func (s *NotificationService) maybeEmail(n *models.Notification) {
	if s.mail == nil || !s.mail.Enabled || n.PostID == nil || n.Sender == nil {
		return
	}
	var action string
	switch n.Type {
	case models.NotificationTypeComment:
		action = "commented on"
	case models.NotificationTypeReply:
		action = "replied to your comment on"
	default:
		return
	}

	var recipient models.User
	if err := db.DB.Select("id", "email", "is_verified").First(&recipient, n.UserID).Error; err != nil || !recipient.IsVerified {
		return
	}
	var post models.Post
	if err := db.DB.Select("id", "title", "slug").First(&post, *n.PostID).Error; err != nil {
		return
	}
	s.mail.SendCommentNotification(recipient.Email, n.Sender.Name, action, post.Title, n.Message, post.Slug)
}

// FillNotifications 批量填充 Sender 与 PostSlug
func FillNotifications(list []models.Notification) {
	if len(list) == 0 {
		return
	}
	var actorIDs, postIDs []uint
	for _, n := range list {
		if n.ActorID != nil {
			actorIDs = append(actorIDs, *n.ActorID)
		}
		if n.PostID != nil {
			postIDs = append(postIDs, *n.PostID)
		}
	}

	actors := make(map[uint]models.UserSummary)
	if len(actorIDs) > 0 {
		var users []models.User
		db.DB.Select("id", "name", "username", "avatar").Where("id IN ?", actorIDs).Find(&users)
		for _, u := range users {
			actors[u.ID] = u.Summary()
		}
	}
	slugs := make(map[uint]string)
	if len(postIDs) > 0 {
		var posts []models.Post
		db.DB.Select("id", "slug").Where("id IN ?", postIDs).Find(&posts)
		for _, p := range posts {
			slugs[p.ID] = p.Slug
		}
	}

	for i := range list {
		if list[i].ActorID != nil {
			if a, ok := actors[*list[i].ActorID]; ok {
				list[i].Sender = &a
			}
		}
		if list[i].PostID != nil {
			list[i].PostSlug = slugs[*list[i].PostID]
		}
	}
}
