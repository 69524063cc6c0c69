package handlers

import (
	"quill/internal/apperr"
	"quill/internal/db"
	"quill/internal/models"
	"quill/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct{}

func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{}
}

// List GET /notifications?unread=1
func (h *NotificationHandler) List(c *gin.Context) {
	user := currentUser(c)
	page, limit, offset := pagination(c)

	q := db.DB.Model(&models.Notification{}).Where("user_id = ?", user.ID)
	if c.Query("unread") == "1" || c.Query("unread") == "true" {
		q = q.Where("is_read = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.Error(err)
		return
	}

	notifications := []models.Notification{}
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		c.Error(err)
		return
	}
	services.FillNotifications(notifications)
	ok(c, "", newPage(notifications, page, limit, total))
}

// UnreadCount GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	var count int64
	if err := db.DB.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", currentUser(c).ID, false).Count(&count).Error; err != nil {
		c.Error(err)
		return
	}
	ok(c, "", gin.H{"count": count})
}

// Read PATCH /notifications/:id/read，只能操作自己的通知
func (h *NotificationHandler) Read(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	res := db.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, currentUser(c).ID).
		Update("is_read", true)
	if res.Error != nil {
		c.Error(res.Error)
		return
	}
	if res.RowsAffected == 0 {
		// 已读的通知 RowsAffected 也可能为 0
		var n int64
		if err := db.DB.Model(&models.Notification{}).Where("id = ? AND user_id = ?", id, currentUser(c).ID).Count(&n).Error; err != nil {
			c.Error(err)
			return
		}
		if n == 0 {
			c.Error(apperr.NoItem(c.Param("id")))
			return
		}
	}
	ok(c, "Notification marked as read", nil)
}

// ReadAll PATCH /notifications/read-all
func (h *NotificationHandler) ReadAll(c *gin.Context) {
	res := db.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", currentUser(c).ID, false).
		Update("is_read", true)
	if res.Error != nil {
		c.Error(res.Error)
		return
	}
	ok(c, "All notifications marked as read", gin.H{"updated": res.RowsAffected})
}

// Delete DELETE /notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	res := db.DB.Where("id = ? AND user_id = ?", id, currentUser(c).ID).Delete(&models.Notification{})
	if res.Error != nil {
		c.Error(res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.Error(apperr.NoItem(c.Param("id")))
		return
	}
	ok(c, "Notification deleted", nil)
}

// DeleteAll DELETE /notifications
func (h *NotificationHandler) DeleteAll(c *gin.Context) {
	res := db.DB.Where("user_id = ?", currentUser(c).ID).Delete(&models.Notification{})
	if res.Error != nil {
		c.Error(res.Error)
		return
	}
	ok(c, "Notifications cleared", gin.H{"deleted": res.RowsAffected})
}
