package handlers

import (
	"quill/internal/apperr"
	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AdminHandler struct{}

func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

// Stats GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	var users, posts, published, comments, replies int64
	for _, q := range []struct {
		tx  *gorm.DB
		out *int64
	}{
		{db.DB.Model(&models.User{}), &users},
		{db.DB.Model(&models.Post{}), &posts},
		{db.DB.Model(&models.Post{}).Where("published = ?", true), &published},
		{db.DB.Model(&models.Comment{}), &comments},
		{db.DB.Model(&models.Reply{}), &replies},
	} {
		if err := q.tx.Count(q.out).Error; err != nil {
			c.Error(err)
			return
		}
	}

	ok(c, "", gin.H{
		"users":           users,
		"posts":           posts,
		"published_posts": published,
		"comments":        comments,
		"replies":         replies,
	})
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

// SetRole PATCH /admin/users/:id/role
func (h *AdminHandler) SetRole(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req roleRequest
	if !bind(c, &req) {
		return
	}

	admin := currentUser(c)
	if admin.ID == id && req.Role != models.RoleAdmin {
		c.Error(apperr.BadRequest("You cannot remove your own admin role"))
		return
	}

	var user models.User
	if err := db.DB.First(&user, id).Error; err != nil {
		c.Error(apperr.NoItem(c.Param("id")))
		return
	}
	if err := db.DB.Model(&user).Update("role", req.Role).Error; err != nil {
		c.Error(err)
		return
	}
	user.Role = req.Role

	logger.Log.Info("用户角色变更", zap.Uint("admin_id", admin.ID), zap.Uint("user_id", user.ID), zap.String("role", req.Role))
	ok(c, "Role updated", user)
}
