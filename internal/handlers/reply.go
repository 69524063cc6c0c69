package handlers

import (
	"errors"
	"fmt"

	"quill/internal/apperr"
	"quill/internal/db"
	"quill/internal/models"
	"quill/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func findReply(c *gin.Context) (*models.Reply, bool) {
	id, valid := paramID(c, "id")
	if !valid {
		return nil, false
	}
	var reply models.Reply
	if err := db.DB.Preload("User").First(&reply, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(apperr.NoItem(c.Param("id")))
		} else {
			c.Error(err)
		}
		return nil, false
	}
	return &reply, true
}

// UpdateReply PATCH /replies/:id
func (h *CommentHandler) UpdateReply(c *gin.Context) {
	reply, found := findReply(c)
	if !found {
		return
	}
	user := currentUser(c)
	if reply.UserID != user.ID {
		c.Error(apperr.Forbidden(""))
		return
	}
	var req contentRequest
	if !bind(c, &req) {
		return
	}
	text, err := req.text()
	if err != nil {
		c.Error(err)
		return
	}
	if err := db.DB.Model(reply).Update("content", text).Error; err != nil {
		c.Error(err)
		return
	}
	reply.Content = text
	list := []models.Reply{*reply}
	fillReplies(list, user.ID)
	ok(c, "Reply updated", list[0])
}

// DeleteReply DELETE /replies/:id
func (h *CommentHandler) DeleteReply(c *gin.Context) {
	reply, found := findReply(c)
	if !found {
		return
	}
	user := currentUser(c)
	if reply.UserID != user.ID && !user.IsAdmin() {
		c.Error(apperr.Forbidden(""))
		return
	}
	if err := db.DB.Transaction(func(tx *gorm.DB) error {
		return services.DeleteReplies(tx, []uint{reply.ID})
	}); err != nil {
		c.Error(err)
		return
	}
	h.broadcastCount(reply.PostID)
	h.ranking.ScheduleUpdate(reply.PostID)
	ok(c, "Reply deleted", nil)
}

// ToggleReplyLike POST /replies/:id/like
func (h *CommentHandler) ToggleReplyLike(c *gin.Context) {
	reply, found := findReply(c)
	if !found {
		return
	}
	user := currentUser(c)

	liked, err := toggle(&models.ReplyLike{}, func() interface{} {
		return &models.ReplyLike{UserID: user.ID, ReplyID: reply.ID}
	}, "user_id = ? AND reply_id = ?", user.ID, reply.ID)
	if err != nil {
		c.Error(err)
		return
	}
	count := countRows(db.DB.Model(&models.ReplyLike{}).Where("reply_id = ?", reply.ID), "reply_likes")

	if liked {
		h.notifier.Notify(services.NotifyInput{
			RecipientID: reply.UserID,
			ActorID:     user.ID,
			Type:        models.NotificationTypeLikeReply,
			Message:     fmt.Sprintf("%s liked your reply", user.Name),
			PostID:      &reply.PostID,
			CommentID:   &reply.CommentID,
			ReplyID:     &reply.ID,
		})
	}
	ok(c, "", gin.H{"liked": liked, "likes_count": count})
}
