package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quill/internal/db"
	"quill/internal/models"
	"quill/internal/realtime"
	"quill/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthRateLimitIgnoresForwardedFor(t *testing.T) {
	s := newTestServer(t)

	var limited int
	for i := 0; i < 12; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"nobody@example.com","password":"secret1"}`))
		req.Header.Set("Content-Type", "application/json")
		// 每次伪造不同来源
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		} else {
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		}
	}
	assert.Equal(t, 2, limited)
}

func TestMeIsNotRateLimited(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, "busy")

	for i := 0; i < 15; i++ {
		w, _ := s.do(http.MethodGet, "/api/v1/auth/me", user, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
}

func TestVerifyEmail(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, "newbie")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.DB.Model(user).Updates(map[string]interface{}{
		"is_verified":          false,
		"verify_token":         "stale-token",
		"verify_token_expires": past,
	}).Error)

	w, env := s.do(http.MethodPost, "/api/v1/auth/verify-email", nil, gin.H{"token": "stale-token"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired verification token", env.Msg)

	future := time.Now().Add(time.Hour)
	require.NoError(t, db.DB.Model(user).Updates(map[string]interface{}{
		"verify_token":         "fresh-token",
		"verify_token_expires": future,
	}).Error)

	w, env = s.do(http.MethodPost, "/api/v1/auth/verify-email", nil, gin.H{"token": "fresh-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)

	var fresh models.User
	require.NoError(t, db.DB.First(&fresh, user.ID).Error)
	assert.True(t, fresh.IsVerified)
	assert.Empty(t, fresh.VerifyToken)

	// token 只能用一次
	w, _ = s.do(http.MethodPost, "/api/v1/auth/verify-email", nil, gin.H{"token": "fresh-token"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPost, "/api/v1/auth/resend-verification", &fresh, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email is already verified", env.Msg)
}

func TestForgotAndResetPassword(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, "forgetful")

	// 未注册的邮箱同样返回 200
	w, env := s.do(http.MethodPost, "/api/v1/auth/forgot-password", nil, gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = s.do(http.MethodPost, "/api/v1/auth/forgot-password", nil, gin.H{"email": "Forgetful@Example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.User
	require.NoError(t, db.DB.First(&stored, user.ID).Error)
	require.NotEmpty(t, stored.ResetToken)
	require.NotNil(t, stored.ResetTokenExpires)
	token := stored.ResetToken

	require.NoError(t, db.DB.Model(&stored).Update("reset_token_expires", time.Now().Add(-time.Minute)).Error)
	w, env = s.do(http.MethodPost, "/api/v1/auth/reset-password", nil, gin.H{"token": token, "password": "brandnew1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired reset token", env.Msg)

	require.NoError(t, db.DB.Model(&stored).Update("reset_token_expires", time.Now().Add(time.Hour)).Error)
	w, _ = s.do(http.MethodPost, "/api/v1/auth/reset-password", nil, gin.H{"token": token, "password": "brandnew1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPost, "/api/v1/auth/login", nil, gin.H{"email": user.Email, "password": "brandnew1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/auth/reset-password", nil, gin.H{"token": token, "password": "another1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, "careful")

	w, env := s.do(http.MethodPatch, "/api/v1/auth/change-password", user, gin.H{
		"current_password": "not-my-password", "new_password": "changed1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Current password is incorrect", env.Msg)

	w, _ = s.do(http.MethodPatch, "/api/v1/auth/change-password", nil, gin.H{
		"current_password": "password123", "new_password": "changed1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodPatch, "/api/v1/auth/change-password", user, gin.H{
		"current_password": "password123", "new_password": "changed1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPost, "/api/v1/auth/login", nil, gin.H{"email": user.Email, "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(http.MethodPost, "/api/v1/auth/login", nil, gin.H{"email": user.Email, "password": "changed1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestControlCharactersRejected(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, "sneaky")

	w, env := s.do(http.MethodPost, "/api/v1/posts", user, gin.H{
		"title": "Hi\r\nBcc: victim@example.com", "content": "<p>body</p>",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title must not contain control characters", env.Msg)

	post := testutil.CreatePost(t, user, "Clean title", true)
	w, _ = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/posts/%d", post.ID), user, gin.H{"title": "a\nb"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPatch, "/api/v1/users/me", user, gin.H{"name": "Eve\r\nX-Test: 1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/auth/register", nil, gin.H{
		"name": "Bad\nName", "username": "badname", "email": "bad@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishDraftSetsPublishedAtOnce(t *testing.T) {
	s := newTestServer(t)
	author := testutil.CreateUser(t, "drafter")
	draft := testutil.CreatePost(t, author, "Work in progress", false)
	path := fmt.Sprintf("/api/v1/posts/%d", draft.ID)

	published := func() *time.Time {
		var p models.Post
		require.NoError(t, db.DB.First(&p, draft.ID).Error)
		return p.PublishedAt
	}
	require.Nil(t, published())

	w, _ := s.do(http.MethodPatch, path, author, gin.H{"published": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := published()
	require.NotNil(t, first)

	// 撤回不清空 published_at
	w, _ = s.do(http.MethodPatch, path, author, gin.H{"published": false})
	require.Equal(t, http.StatusOK, w.Code)
	after := published()
	require.NotNil(t, after)
	assert.True(t, first.Equal(*after))

	w, _ = s.do(http.MethodPatch, path, author, gin.H{"published": true})
	require.Equal(t, http.StatusOK, w.Code)
	again := published()
	require.NotNil(t, again)
	assert.True(t, first.Equal(*again))
}

func TestPostAuthorDeletesOthersComment(t *testing.T) {
	s := newTestServer(t)
	author := testutil.CreateUser(t, "moderator")
	guest := testutil.CreateUser(t, "visitor")
	bystander := testutil.CreateUser(t, "bystander")
	post := testutil.CreatePost(t, author, "Open thread", true)

	w, env := s.do(http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/comments", post.ID), guest, gin.H{"content": "spam"})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	decode(t, env.Data, &comment)
	path := fmt.Sprintf("/api/v1/comments/%d", comment.ID)

	w, _ = s.do(http.MethodDelete, path, bystander, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodPatch, path, author, gin.H{"content": "edited"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.events.Reset()
	w, _ = s.do(http.MethodDelete, path, author, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, db.DB.Model(&models.Comment{}).Where("id = ?", comment.ID).Count(&count).Error)
	assert.Zero(t, count)

	updates := s.events.Events(realtime.EventPostCommentUpdate)
	require.Len(t, updates, 1)
	update, isUpdate := updates[0].Data.(realtime.PostCommentUpdate)
	require.True(t, isUpdate)
	assert.Equal(t, post.ID, update.PostID)
	assert.Zero(t, update.CommentsCount)
}

func TestReplyRoutes(t *testing.T) {
	s := newTestServer(t)
	author := testutil.CreateUser(t, "writer")
	guest := testutil.CreateUser(t, "commenter")
	post := testutil.CreatePost(t, author, "Threaded", true)

	w, env := s.do(http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/comments", post.ID), guest, gin.H{"content": "First!"})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	decode(t, env.Data, &comment)

	w, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/comments/%d/replies", comment.ID), author, gin.H{"content": "Welcome"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reply models.Reply
	decode(t, env.Data, &reply)
	path := fmt.Sprintf("/api/v1/replies/%d", reply.ID)

	w, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/comments/%d/replies", comment.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	w, _ = s.do(http.MethodPatch, path, guest, gin.H{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodPatch, path, nil, gin.H{"content": "anon"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(http.MethodPatch, path, author, gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPatch, path, author, gin.H{"content": "Welcome aboard"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, env.Data, &reply)
	assert.Equal(t, "Welcome aboard", reply.Content)

	var liked struct {
		Liked      bool  `json:"liked"`
		LikesCount int64 `json:"likes_count"`
	}
	w, env = s.do(http.MethodPost, path+"/like", guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, env.Data, &liked)
	assert.True(t, liked.Liked)
	assert.Equal(t, int64(1), liked.LikesCount)

	var n models.Notification
	require.NoError(t, db.DB.Where("user_id = ? AND type = ?", author.ID, models.NotificationTypeLikeReply).First(&n).Error)
	require.NotNil(t, n.ReplyID)
	assert.Equal(t, reply.ID, *n.ReplyID)

	w, env = s.do(http.MethodPost, path+"/like", guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, env.Data, &liked)
	assert.False(t, liked.Liked)
	assert.Zero(t, liked.LikesCount)

	w, _ = s.do(http.MethodDelete, path, guest, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.events.Reset()
	w, _ = s.do(http.MethodDelete, path, author, nil)
	require.Equal(t, http.StatusOK, w.Code)
	updates := s.events.Events(realtime.EventPostCommentUpdate)
	require.Len(t, updates, 1)
	update := updates[0].Data.(realtime.PostCommentUpdate)
	assert.Equal(t, int64(1), update.CommentsCount)

	w, env = s.do(http.MethodDelete, path, author, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, fmt.Sprintf("No item found with id : %d", reply.ID), env.Msg)
	w, _ = s.do(http.MethodPost, "/api/v1/replies/abc/like", guest, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRealtimePayloads(t *testing.T) {
	s := newTestServer(t)
	author := testutil.CreateUser(t, "speaker")
	fan := testutil.CreateUser(t, "listener")
	post := testutil.CreatePost(t, author, "Live", true)

	w, _ := s.do(http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/like", post.ID), fan, nil)
	require.Equal(t, http.StatusOK, w.Code)
	likes := s.events.Events(realtime.EventPostLikeUpdate)
	require.Len(t, likes, 1)
	like, isLike := likes[0].Data.(realtime.PostLikeUpdate)
	require.True(t, isLike)
	assert.Equal(t, realtime.PostLikeUpdate{PostID: post.ID, LikesCount: 1, UserID: fan.ID, Liked: true}, like)

	w, _ = s.do(http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/bookmark", post.ID), fan, nil)
	require.Equal(t, http.StatusOK, w.Code)
	marks := s.events.Events(realtime.EventPostBookmarkUpdate)
	require.Len(t, marks, 1)
	assert.Equal(t, realtime.PostBookmarkUpdate{PostID: post.ID, BookmarksCount: 1, UserID: fan.ID, Bookmarked: true}, marks[0].Data)

	s.events.Reset()
	w, env := s.do(http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/comments", post.ID), fan, gin.H{"content": "Great talk"})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment models.Comment
	decode(t, env.Data, &comment)

	news := s.events.Events(realtime.EventNewComment)
	require.Len(t, news, 1)
	assert.Equal(t, uint(0), news[0].UserID)
	newComment, isComment := news[0].Data.(realtime.NewComment)
	require.True(t, isComment)
	assert.Equal(t, post.ID, newComment.PostID)
	newCommentPayload, isCommentPayload := newComment.Comment.(models.Comment)
	require.True(t, isCommentPayload)
	assert.Equal(t, comment.ID, newCommentPayload.ID)
	assert.Equal(t, "Great talk", newCommentPayload.Content)
	assert.Equal(t, fan.ID, newCommentPayload.User.ID)

	counts := s.events.Events(realtime.EventPostCommentUpdate)
	require.Len(t, counts, 1)
	assert.Equal(t, realtime.PostCommentUpdate{PostID: post.ID, CommentsCount: 1}, counts[0].Data)

	notes := s.events.Events(realtime.EventNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, author.ID, notes[0].UserID)

	s.events.Reset()
	w, _ = s.do(http.MethodPost, fmt.Sprintf("/api/v1/comments/%d/replies", comment.ID), author, gin.H{"content": "Thank you"})
	require.Equal(t, http.StatusCreated, w.Code)

	replies := s.events.Events(realtime.EventNewReply)
	require.Len(t, replies, 1)
	newReply, isReply := replies[0].Data.(realtime.NewReply)
	require.True(t, isReply)
	assert.Equal(t, post.ID, newReply.PostID)
	assert.Equal(t, comment.ID, newReply.CommentID)
	newReplyPayload, isReplyPayload := newReply.Reply.(models.Reply)
	require.True(t, isReplyPayload)
	assert.Equal(t, "Thank you", newReplyPayload.Content)

	// 评论数包含回复
	counts = s.events.Events(realtime.EventPostCommentUpdate)
	require.Len(t, counts, 1)
	assert.Equal(t, realtime.PostCommentUpdate{PostID: post.ID, CommentsCount: 2}, counts[0].Data)

	notes = s.events.Events(realtime.EventNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, fan.ID, notes[0].UserID)
}

func TestTags(t *testing.T) {
	s := newTestServer(t)
	author := testutil.CreateUser(t, "tagger")

	for _, p := range []gin.H{
		{"title": "One", "content": "<p>one</p>", "tags": []string{"Go", "Web"}},
		{"title": "Two", "content": "<p>two</p>", "tags": []string{"go"}},
		{"title": "Three", "content": "<p>three</p>", "tags": []string{"secret"}, "published": false},
	} {
		w, _ := s.do(http.MethodPost, "/api/v1/posts", author, p)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, env := s.do(http.MethodGet, "/api/v1/tags", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tags []struct {
		Name      string `json:"name"`
		PostCount int64  `json:"post_count"`
	}
	decode(t, env.Data, &tags)
	require.Len(t, tags, 2)
	assert.Equal(t, "go", tags[0].Name)
	assert.Equal(t, int64(2), tags[0].PostCount)
	assert.Equal(t, "web", tags[1].Name)
	assert.Equal(t, int64(1), tags[1].PostCount)
}

func TestUpdateAndDeleteMe(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, "mutable")
	testutil.CreateUser(t, "taken")
	testutil.CreatePost(t, user, "Soon gone", true)

	w, env := s.do(http.MethodPatch, "/api/v1/users/me", user, gin.H{"username": "TAKEN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username already taken", env.Msg)

	w, _ = s.do(http.MethodPatch, "/api/v1/users/me", user, gin.H{"website": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPatch, "/api/v1/users/me", user, gin.H{
		"name": "  Mutable Person ", "bio": "Writes things", "username": "renamed",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.User
	decode(t, env.Data, &updated)
	assert.Equal(t, "Mutable Person", updated.Name)
	assert.Equal(t, "Writes things", updated.Bio)
	assert.Equal(t, "renamed", updated.Username)

	w, _ = s.do(http.MethodGet, "/api/v1/users/renamed", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/v1/users/me", user, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/users/renamed", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var count int64
	require.NoError(t, db.DB.Model(&models.Post{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)

	// 已删除用户的 token 失效
	w, _ = s.do(http.MethodGet, "/api/v1/auth/me", user, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
