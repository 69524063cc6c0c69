package middleware

import (
	"strings"

	"quill/internal/apperr"
	"quill/internal/db"
	"quill/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const CheckUserKey = "user"

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(token string) (uint, error)
}

// LoadUser 先看 Authorization: Bearer，再看 session 中的 user_id
func LoadUser(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID uint

		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") && tokens != nil {
			if id, err := tokens.ParseToken(strings.TrimPrefix(auth, "Bearer ")); err == nil {
				userID = id
			}
		}
		if userID == 0 {
			session := sessions.Default(c)
			if v, ok := session.Get("user_id").(uint); ok {
				userID = v
			}
		}

		if userID != 0 {
			var user models.User
			if err := db.DB.First(&user, userID).Error; err == nil {
				c.Set(CheckUserKey, &user)
			}
		}
		c.Next()
	}
}

// AuthRequired rejects requests without a loaded user.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(CheckUserKey); !exists {
			c.Error(apperr.Unauthenticated(""))
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.Error(apperr.Forbidden(""))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the loaded user or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(CheckUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
