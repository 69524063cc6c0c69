package handlers

import (
	"errors"
	"fmt"
	"strings"

	"quill/internal/apperr"
	"quill/internal/db"
	"quill/internal/metrics"
	"quill/internal/models"
	"quill/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UserHandler struct {
	notifier *services.NotificationService
}

func NewUserHandler(notifier *services.NotificationService) *UserHandler {
	return &UserHandler{notifier: notifier}
}

func findUserByUsername(c *gin.Context) (*models.User, bool) {
	username := c.Param("username")
	var user models.User
	if err := db.DB.Where("LOWER(username) = ?", strings.ToLower(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(apperr.NotFound("No user found with username : " + username))
		} else {
			c.Error(err)
		}
		return nil, false
	}
	return &user, true
}

// Profile GET /users/:username
func (h *UserHandler) Profile(c *gin.Context) {
	user, found := findUserByUsername(c)
	if !found {
		return
	}
	fillUser(user, viewerID(c))
	ok(c, "", user)
}

type updateProfileRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=50,nocontrol"`
	Username *string `json:"username" binding:"omitempty,min=3,max=30"`
	Bio      *string `json:"bio" binding:"omitempty,max=300"`
	Avatar   *string `json:"avatar" binding:"omitempty,url"`
	Location *string `json:"location" binding:"omitempty,max=100"`
	Website  *string `json:"website" binding:"omitempty,url"`
	Twitter  *string `json:"twitter" binding:"omitempty,max=100"`
	GitHub   *string `json:"github" binding:"omitempty,max=100"`
	LinkedIn *string `json:"linkedin" binding:"omitempty,max=100"`
}

// UpdateMe PATCH /users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if !bind(c, &req) {
		return
	}
	user := currentUser(c)

	updates := map[string]interface{}{}
	set := func(column string, v *string) {
		if v != nil {
			updates[column] = strings.TrimSpace(*v)
		}
	}
	set("name", req.Name)
	set("bio", req.Bio)
	set("avatar", req.Avatar)
	set("location", req.Location)
	set("website", req.Website)
	set("twitter", req.Twitter)
	set("github", req.GitHub)
	set("linkedin", req.LinkedIn)

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if !usernamePattern.MatchString(username) {
			c.Error(apperr.BadRequest("Username may only contain letters, numbers and underscores"))
			return
		}
		var n int64
		if err := db.DB.Model(&models.User{}).Where("LOWER(username) = ? AND id <> ?", strings.ToLower(username), user.ID).Count(&n).Error; err != nil {
			c.Error(err)
			return
		}
		if n > 0 {
			c.Error(apperr.BadRequest("Username already taken"))
			return
		}
		updates["username"] = username
	}

	if len(updates) > 0 {
		if err := db.DB.Model(user).Updates(updates).Error; err != nil {
			c.Error(err)
			return
		}
	}

	var fresh models.User
	if err := db.DB.First(&fresh, user.ID).Error; err != nil {
		c.Error(err)
		return
	}
	fillUser(&fresh, fresh.ID)
	ok(c, "Profile updated", fresh)
}

// DeleteMe DELETE /users/me 删除账号及其全部内容
func (h *UserHandler) DeleteMe(c *gin.Context) {
	user := currentUser(c)
	if err := db.DB.Transaction(func(tx *gorm.DB) error {
		return services.DeleteUser(tx, user.ID)
	}); err != nil {
		c.Error(err)
		return
	}
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	invalidatePostLists()
	ok(c, "Account deleted", nil)
}

// Posts GET /users/:username/posts，作者本人加 ?drafts=1 可看草稿
func (h *UserHandler) Posts(c *gin.Context) {
	user, found := findUserByUsername(c)
	if !found {
		return
	}
	q := db.DB.Model(&models.Post{}).Where("posts.user_id = ?", user.ID)
	order := "posts.published_at DESC, posts.id DESC"
	if c.Query("drafts") == "1" && viewerID(c) == user.ID {
		q = q.Where("posts.published = ?", false)
		order = "posts.updated_at DESC, posts.id DESC"
	} else {
		q = q.Where("posts.published = ?", true)
	}

	result, err := paginatePosts(c, q, order)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, "", result)
}

// listFollows 分页列出关注关系另一端的用户
func listFollows(c *gin.Context, matchColumn, otherColumn string) {
	user, found := findUserByUsername(c)
	if !found {
		return
	}
	page, limit, offset := pagination(c)

	var total int64
	if err := db.DB.Model(&models.Follow{}).Where(matchColumn+" = ?", user.ID).Count(&total).Error; err != nil {
		c.Error(err)
		return
	}

	var ids []uint
	if err := db.DB.Model(&models.Follow{}).
		Where(matchColumn+" = ?", user.ID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Pluck(otherColumn, &ids).Error; err != nil {
		c.Error(err)
		return
	}

	users := []models.UserSummary{}
	if len(ids) > 0 {
		var found []models.User
		db.DB.Where("id IN ?", ids).Find(&found)
		byID := make(map[uint]models.User, len(found))
		for _, u := range found {
			byID[u.ID] = u
		}
		for _, id := range ids {
			if u, hit := byID[id]; hit {
				users = append(users, u.Summary())
			}
		}
	}
	ok(c, "", newPage(users, page, limit, total))
}

// Followers GET /users/:username/followers
func (h *UserHandler) Followers(c *gin.Context) {
	listFollows(c, "following_id", "follower_id")
}

// Following GET /users/:username/following
func (h *UserHandler) Following(c *gin.Context) {
	listFollows(c, "follower_id", "following_id")
}

// ToggleFollow POST /users/:username/follow
func (h *UserHandler) ToggleFollow(c *gin.Context) {
	target, found := findUserByUsername(c)
	if !found {
		return
	}
	user := currentUser(c)
	if target.ID == user.ID {
		c.Error(apperr.BadRequest("You cannot follow yourself"))
		return
	}

	following, err := toggle(&models.Follow{}, func() interface{} {
		return &models.Follow{FollowerID: user.ID, FollowingID: target.ID}
	}, "follower_id = ? AND following_id = ?", user.ID, target.ID)
	if err != nil {
		c.Error(err)
		return
	}

	if following {
		metrics.Engagement.WithLabelValues("follow").Inc()
		h.notifier.Notify(services.NotifyInput{
			RecipientID: target.ID,
			ActorID:     user.ID,
			Type:        models.NotificationTypeFollow,
			Message:     fmt.Sprintf("%s started following you", user.Name),
		})
	}

	followers := countRows(db.DB.Model(&models.Follow{}).Where("following_id = ?", target.ID), "followers")
	ok(c, "", gin.H{"following": following, "followers_count": followers})
}

// Bookmarks GET /users/me/bookmarks 按收藏时间倒序
func (h *UserHandler) Bookmarks(c *gin.Context) {
	user := currentUser(c)
	q := db.DB.Model(&models.Post{}).
		Joins("JOIN bookmarks ON bookmarks.post_id = posts.id AND bookmarks.user_id = ?", user.ID).
		Where("posts.published = ?", true)

	result, err := paginatePosts(c, q, "bookmarks.created_at DESC, bookmarks.id DESC")
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, "", result)
}

// Feed GET /users/me/feed 关注作者的已发布文章
func (h *UserHandler) Feed(c *gin.Context) {
	user := currentUser(c)
	q := db.DB.Model(&models.Post{}).
		Where("posts.published = ?", true).
		Where("posts.user_id IN (?)", db.DB.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", user.ID))

	result, err := paginatePosts(c, q, "posts.published_at DESC, posts.id DESC")
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, "", result)
}
