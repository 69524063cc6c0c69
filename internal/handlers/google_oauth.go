package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quill/internal/apperr"
	"quill/internal/config"
	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/models"
	"quill/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

func newGoogleOAuthConfig(cfg *config.Config) *oauth2.Config {
	if !cfg.GoogleEnabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.APIURL + "/api/v1/auth/google/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// GoogleUserInfo Google 用户信息结构
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	Picture       string `json:"picture"`
}

// GoogleLogin 发起 Google OAuth 登录，state 存入 session
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if h.oauth == nil {
		c.Error(apperr.Unavailable("Google sign-in is not configured"))
		return
	}
	state, err := utils.GenerateToken(32)
	if err != nil {
		c.Error(err)
		return
	}

	session := sessions.Default(c)
	session.Set("oauth_state", state)
	session.Save()

	c.Redirect(http.StatusTemporaryRedirect, h.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// GoogleCallback 完成登录后带着 token 跳回前端；失败时带 error 参数
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.oauth == nil {
		c.Error(apperr.Unavailable("Google sign-in is not configured"))
		return
	}
	fail := func(reason string) {
		c.Redirect(http.StatusFound, h.cfg.ClientURL+"/login?error="+url.QueryEscape(reason))
	}

	session := sessions.Default(c)
	savedState, _ := session.Get("oauth_state").(string)
	session.Delete("oauth_state")
	session.Save()
	if savedState == "" || c.Query("state") != savedState {
		fail("invalid_state")
		return
	}

	code := c.Query("code")
	if code == "" {
		fail("no_code")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		logger.Log.Warn("Google token exchange failed", zap.Error(err))
		fail("token_exchange_failed")
		return
	}

	info, err := h.getGoogleUserInfo(ctx, token)
	if err != nil {
		logger.Log.Warn("Google userinfo failed", zap.Error(err))
		fail("get_userinfo_failed")
		return
	}
	if !info.VerifiedEmail {
		fail("email_not_verified")
		return
	}

	user, err := findOrCreateGoogleUser(info)
	if err != nil {
		logger.Log.Error("Google sign-in failed", zap.Error(err))
		fail("create_user_failed")
		return
	}

	payload, err := h.login(c, user)
	if err != nil {
		fail("token_failed")
		return
	}
	c.Redirect(http.StatusFound, h.cfg.ClientURL+"/oauth/callback?token="+url.QueryEscape(payload.Token))
}

func (h *AuthHandler) getGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*GoogleUserInfo, error) {
	resp, err := h.oauth.Client(ctx, token).Get(googleUserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}
	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// findOrCreateGoogleUser 通过 GoogleID 或邮箱查找；老用户绑定 GoogleID，新用户自动注册
func findOrCreateGoogleUser(info *GoogleUserInfo) (*models.User, error) {
	email := strings.ToLower(info.Email)

	var user models.User
	err := db.DB.Where("google_id = ?", info.ID).Or("email = ?", email).First(&user).Error
	if err == nil {
		updates := map[string]interface{}{"is_verified": true}
		if user.GoogleID == "" {
			updates["google_id"] = info.ID
		}
		if err := db.DB.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}

	username := uniqueUsername(utils.UsernameFromEmail(email))
	// 随机密码，用户之后可走找回密码设置
	secret, err := utils.GenerateToken(24)
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(secret)
	if err != nil {
		return nil, err
	}
	name := info.Name
	if name == "" {
		name = username
	}
	avatar := info.Picture
	if avatar == "" {
		avatar = utils.DefaultAvatar(username)
	}

	user = models.User{
		Name:       name,
		Username:   username,
		Email:      email,
		Password:   hash,
		Avatar:     avatar,
		Role:       models.RoleUser,
		IsVerified: true,
		GoogleID:   info.ID,
	}
	if err := db.DB.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// uniqueUsername appends a random suffix until the username is free.
func uniqueUsername(base string) string {
	name := base
	for i := 0; i < 5; i++ {
		var n int64
		if err := db.DB.Model(&models.User{}).Where("LOWER(username) = ?", name).Count(&n).Error; err != nil {
			logger.Log.Warn("Username lookup failed", zap.String("username", name), zap.Error(err))
		} else if n == 0 {
			return name
		}
		name = base + "_" + utils.RandomString(4)
	}
	return base + "_" + utils.RandomString(8)
}
