package handlers

import (
	"errors"
	"fmt"
	"strings"

	"quill/internal/apperr"
	"quill/internal/db"
	"quill/internal/metrics"
	"quill/internal/models"
	"quill/internal/realtime"
	"quill/internal/services"
	"quill/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CommentHandler struct {
	pub      realtime.Publisher
	notifier *services.NotificationService
	ranking  *services.RankingService
}

func NewCommentHandler(pub realtime.Publisher, notifier *services.NotificationService, ranking *services.RankingService) *CommentHandler {
	return &CommentHandler{pub: pub, notifier: notifier, ranking: ranking}
}

type contentRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

func (r contentRequest) text() (string, error) {
	text := strings.TrimSpace(r.Content)
	if text == "" {
		return "", apperr.BadRequest("Please provide content")
	}
	return text, nil
}

func orderedReplies(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at ASC, id ASC")
}

// ListForPost GET /posts/:id/comments 按时间正序，附带回复
func (h *CommentHandler) ListForPost(c *gin.Context) {
	post, found := loadPost(c)
	if !found {
		return
	}
	page, limit, offset := pagination(c)

	var total int64
	if err := db.DB.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&total).Error; err != nil {
		c.Error(err)
		return
	}

	comments := []models.Comment{}
	if err := db.DB.Preload("User").
		Preload("Replies", orderedReplies).
		Preload("Replies.User").
		Where("post_id = ?", post.ID).
		Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Find(&comments).Error; err != nil {
		c.Error(err)
		return
	}
	fillComments(comments, viewerID(c))
	ok(c, "", newPage(comments, page, limit, total))
}

// broadcastCount 推送文章最新评论数
func (h *CommentHandler) broadcastCount(postID uint) {
	h.pub.Broadcast(realtime.EventPostCommentUpdate, realtime.PostCommentUpdate{
		PostID:        postID,
		CommentsCount: postCommentsCount(postID),
	})
}

// Create POST /posts/:id/comments
func (h *CommentHandler) Create(c *gin.Context) {
	post, found := publishedPostByID(c)
	if !found {
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
	user := currentUser(c)

	comment := models.Comment{PostID: post.ID, UserID: user.ID, Content: text}
	if err := db.DB.Create(&comment).Error; err != nil {
		c.Error(err)
		return
	}
	comment.User = *user
	comment.Replies = []models.Reply{}
	list := []models.Comment{comment}
	fillComments(list, user.ID)
	comment = list[0]

	metrics.Engagement.WithLabelValues("comment").Inc()
	h.notifier.Notify(services.NotifyInput{
		RecipientID: post.UserID,
		ActorID:     user.ID,
		Type:        models.NotificationTypeComment,
		Message:     utils.Truncate(text, 140),
		PostID:      &post.ID,
		CommentID:   &comment.ID,
	})
	h.notifier.NotifyMentions(user, text, &post.ID, &comment.ID, nil, map[uint]bool{post.UserID: true})

	h.pub.Broadcast(realtime.EventNewComment, realtime.NewComment{PostID: post.ID, Comment: comment})
	h.broadcastCount(post.ID)
	h.ranking.ScheduleUpdate(post.ID)

	created(c, "Comment added", comment)
}

func findComment(c *gin.Context) (*models.Comment, bool) {
	id, valid := paramID(c, "id")
	if !valid {
		return nil, false
	}
	var comment models.Comment
	if err := db.DB.Preload("User").First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(apperr.NoItem(c.Param("id")))
		} else {
			c.Error(err)
		}
		return nil, false
	}
	return &comment, true
}

// Update PATCH /comments/:id 仅作者本人
func (h *CommentHandler) Update(c *gin.Context) {
	comment, found := findComment(c)
	if !found {
		return
	}
	user := currentUser(c)
	if comment.UserID != user.ID {
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
	if err := db.DB.Model(comment).Update("content", text).Error; err != nil {
		c.Error(err)
		return
	}
	comment.Content = text
	list := []models.Comment{*comment}
	fillComments(list, user.ID)
	ok(c, "Comment updated", list[0])
}

// Delete DELETE /comments/:id 作者、文章作者或管理员
func (h *CommentHandler) Delete(c *gin.Context) {
	comment, found := findComment(c)
	if !found {
		return
	}
	user := currentUser(c)
	if comment.UserID != user.ID && !user.IsAdmin() {
		var post models.Post
		if err := db.DB.Select("id", "user_id").First(&post, comment.PostID).Error; err != nil || post.UserID != user.ID {
			c.Error(apperr.Forbidden(""))
			return
		}
	}

	if err := db.DB.Transaction(func(tx *gorm.DB) error {
		return services.DeleteComments(tx, []uint{comment.ID})
	}); err != nil {
		c.Error(err)
		return
	}
	h.broadcastCount(comment.PostID)
	h.ranking.ScheduleUpdate(comment.PostID)
	ok(c, "Comment deleted", nil)
}

// ToggleLike POST /comments/:id/like
func (h *CommentHandler) ToggleLike(c *gin.Context) {
	comment, found := findComment(c)
	if !found {
		return
	}
	user := currentUser(c)

	liked, err := toggle(&models.CommentLike{}, func() interface{} {
		return &models.CommentLike{UserID: user.ID, CommentID: comment.ID}
	}, "user_id = ? AND comment_id = ?", user.ID, comment.ID)
	if err != nil {
		c.Error(err)
		return
	}
	count := countRows(db.DB.Model(&models.CommentLike{}).Where("comment_id = ?", comment.ID), "comment_likes")

	if liked {
		h.notifier.Notify(services.NotifyInput{
			RecipientID: comment.UserID,
			ActorID:     user.ID,
			Type:        models.NotificationTypeLikeComment,
			Message:     fmt.Sprintf("%s liked your comment", user.Name),
			PostID:      &comment.PostID,
			CommentID:   &comment.ID,
		})
	}
	ok(c, "", gin.H{"liked": liked, "likes_count": count})
}

// visibleComment 评论所属文章为草稿时，仅作者和管理员可见
func visibleComment(c *gin.Context) (*models.Comment, bool) {
	comment, found := findComment(c)
	if !found {
		return nil, false
	}
	var post models.Post
	if err := db.DB.Select("id", "user_id", "published").First(&post, comment.PostID).Error; err != nil {
		c.Error(apperr.NoItem(c.Param("id")))
		return nil, false
	}
	if !post.Published {
		user := currentUser(c)
		if user == nil || (user.ID != post.UserID && !user.IsAdmin()) {
			c.Error(apperr.NoItem(c.Param("id")))
			return nil, false
		}
	}
	return comment, true
}

// ListReplies GET /comments/:id/replies
func (h *CommentHandler) ListReplies(c *gin.Context) {
	comment, found := visibleComment(c)
	if !found {
		return
	}
	page, limit, offset := pagination(c)

	var total int64
	if err := db.DB.Model(&models.Reply{}).Where("comment_id = ?", comment.ID).Count(&total).Error; err != nil {
		c.Error(err)
		return
	}

	replies := []models.Reply{}
	if err := db.DB.Preload("User").
		Where("comment_id = ?", comment.ID).
		Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Find(&replies).Error; err != nil {
		c.Error(err)
		return
	}
	fillReplies(replies, viewerID(c))
	ok(c, "", newPage(replies, page, limit, total))
}

// CreateReply POST /comments/:id/replies
func (h *CommentHandler) CreateReply(c *gin.Context) {
	comment, found := visibleComment(c)
	if !found {
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
	user := currentUser(c)

	reply := models.Reply{CommentID: comment.ID, PostID: comment.PostID, UserID: user.ID, Content: text}
	if err := db.DB.Create(&reply).Error; err != nil {
		c.Error(err)
		return
	}
	reply.User = *user
	list := []models.Reply{reply}
	fillReplies(list, user.ID)
	reply = list[0]

	metrics.Engagement.WithLabelValues("reply").Inc()
	h.notifier.Notify(services.NotifyInput{
		RecipientID: comment.UserID,
		ActorID:     user.ID,
		Type:        models.NotificationTypeReply,
		Message:     utils.Truncate(text, 140),
		PostID:      &comment.PostID,
		CommentID:   &comment.ID,
		ReplyID:     &reply.ID,
	})
	h.notifier.NotifyMentions(user, text, &comment.PostID, &comment.ID, &reply.ID, map[uint]bool{comment.UserID: true})

	h.pub.Broadcast(realtime.EventNewReply, realtime.NewReply{PostID: comment.PostID, CommentID: comment.ID, Reply: reply})
	h.broadcastCount(comment.PostID)
	h.ranking.ScheduleUpdate(comment.PostID)

	created(c, "Reply added", reply)
}
