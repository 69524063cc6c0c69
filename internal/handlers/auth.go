package handlers

import (
	"regexp"
	"strings"
	"time"

	"quill/internal/apperr"
	"quill/internal/config"
	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/models"
	"quill/internal/services"
	"quill/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = time.Hour
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

type AuthHandler struct {
	cfg         *config.Config
	mailService *services.MailService
	tokens      *services.TokenService
	oauth       *oauth2.Config
}

func NewAuthHandler(cfg *config.Config, mail *services.MailService, tokens *services.TokenService) *AuthHandler {
	return &AuthHandler{
		cfg:         cfg,
		mailService: mail,
		tokens:      tokens,
		oauth:       newGoogleOAuthConfig(cfg),
	}
}

type authPayload struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// login 写 session 并签发 token
func (h *AuthHandler) login(c *gin.Context, user *models.User) (*authPayload, error) {
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	if err := session.Save(); err != nil {
		logger.Log.Warn("Failed to save session", zap.Error(err))
	}
	fillUser(user, user.ID)
	return &authPayload{User: user, Token: token}, nil
}

// issueVerification stores a fresh verification token and mails it.
func (h *AuthHandler) issueVerification(user *models.User) error {
	token, err := utils.GenerateToken(32)
	if err != nil {
		return err
	}
	expires := time.Now().Add(verifyTokenTTL)
	if err := db.DB.Model(user).Updates(map[string]interface{}{
		"verify_token":         token,
		"verify_token_expires": expires,
	}).Error; err != nil {
		return err
	}
	h.mailService.SendVerificationEmail(user.Email, user.Name, token)
	return nil
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=50,nocontrol"`
	Username string `json:"username" binding:"required,min=3,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	if !usernamePattern.MatchString(username) {
		c.Error(apperr.BadRequest("Username may only contain letters, numbers and underscores"))
		return
	}

	var count int64
	if err := db.DB.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		c.Error(err)
		return
	}
	if count > 0 {
		c.Error(apperr.BadRequest("Email already registered"))
		return
	}
	if err := db.DB.Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(username)).Count(&count).Error; err != nil {
		c.Error(err)
		return
	}
	if count > 0 {
		c.Error(apperr.BadRequest("Username already taken"))
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		c.Error(err)
		return
	}
	user := models.User{
		Name:     strings.TrimSpace(req.Name),
		Username: username,
		Email:    email,
		Password: hash,
		Avatar:   utils.DefaultAvatar(username),
		Role:     models.RoleUser,
	}
	if err := db.DB.Create(&user).Error; err != nil {
		c.Error(err)
		return
	}
	if err := h.issueVerification(&user); err != nil {
		logger.Log.Error("Failed to issue verification token", logger.WithUserID(user.ID), zap.Error(err))
	}

	payload, err := h.login(c, &user)
	if err != nil {
		c.Error(err)
		return
	}
	created(c, "Account created. Please check your email to verify your address.", payload)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}

	var user models.User
	if err := db.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.Error(apperr.Unauthenticated("Invalid credentials"))
		return
	}
	if !utils.CheckPasswordHash(req.Password, user.Password) {
		c.Error(apperr.Unauthenticated("Invalid credentials"))
		return
	}

	payload, err := h.login(c, &user)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, "Logged in", payload)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	ok(c, "Logged out", nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	fillUser(user, user.ID)
	ok(c, "", user)
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req) {
		return
	}

	var user models.User
	if err := db.DB.Where("verify_token = ? AND verify_token_expires > ?", req.Token, time.Now()).First(&user).Error; err != nil {
		c.Error(apperr.BadRequest("Invalid or expired verification token"))
		return
	}
	if err := db.DB.Model(&user).Updates(map[string]interface{}{
		"is_verified":          true,
		"verify_token":         "",
		"verify_token_expires": nil,
	}).Error; err != nil {
		c.Error(err)
		return
	}
	ok(c, "Email verified", nil)
}

func (h *AuthHandler) ResendVerification(c *gin.Context) {
	user := currentUser(c)
	if user.IsVerified {
		c.Error(apperr.BadRequest("Email is already verified"))
		return
	}
	if err := h.issueVerification(user); err != nil {
		c.Error(err)
		return
	}
	ok(c, "Verification email sent", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword 不暴露邮箱是否存在，始终返回 200
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bind(c, &req) {
		return
	}

	var user models.User
	if err := db.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err == nil {
		token, err := utils.GenerateToken(32)
		if err != nil {
			c.Error(err)
			return
		}
		if err := db.DB.Model(&user).Updates(map[string]interface{}{
			"reset_token":         token,
			"reset_token_expires": time.Now().Add(resetTokenTTL),
		}).Error; err != nil {
			c.Error(err)
			return
		}
		h.mailService.SendPasswordResetEmail(user.Email, user.Name, token)
	}
	ok(c, "If that email is registered, a reset link has been sent", nil)
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bind(c, &req) {
		return
	}

	var user models.User
	if err := db.DB.Where("reset_token = ? AND reset_token_expires > ?", req.Token, time.Now()).First(&user).Error; err != nil {
		c.Error(apperr.BadRequest("Invalid or expired reset token"))
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		c.Error(err)
		return
	}
	if err := db.DB.Model(&user).Updates(map[string]interface{}{
		"password":            hash,
		"reset_token":         "",
		"reset_token_expires": nil,
	}).Error; err != nil {
		c.Error(err)
		return
	}
	ok(c, "Password has been reset", nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}
	user := currentUser(c)
	if !utils.CheckPasswordHash(req.CurrentPassword, user.Password) {
		c.Error(apperr.Unauthenticated("Current password is incorrect"))
		return
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		c.Error(err)
		return
	}
	if err := db.DB.Model(user).Update("password", hash).Error; err != nil {
		c.Error(err)
		return
	}
	ok(c, "Password updated", nil)
}
