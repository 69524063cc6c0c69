package handlers

import (
	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/models"
	"quill/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type countRow struct {
	ID    uint
	Count int64
}

// countBy 按外键分组计数，返回 id -> count
func countBy(model interface{}, column string, ids []uint) map[uint]int64 {
	out := make(map[uint]int64, len(ids))
	if len(ids) == 0 {
		return out
	}
	var rows []countRow
	if err := db.DB.Model(model).
		Select(column+" AS id, COUNT(*) AS count").
		Where(column+" IN ?", ids).
		Group(column).
		Scan(&rows).Error; err != nil {
		logger.Log.Warn("Count query failed", zap.String("column", column), zap.Error(err))
	}
	for _, r := range rows {
		out[r.ID] = r.Count
	}
	return out
}

// ownedBy returns the subset of ids the user has a row for (likes, bookmarks).
func ownedBy(model interface{}, column string, ids []uint, userID uint) map[uint]bool {
	out := make(map[uint]bool)
	if userID == 0 || len(ids) == 0 {
		return out
	}
	var hits []uint
	if err := db.DB.Model(model).Where("user_id = ? AND "+column+" IN ?", userID, ids).Pluck(column, &hits).Error; err != nil {
		logger.Log.Warn("Viewer state query failed", zap.String("column", column), logger.WithUserID(userID), zap.Error(err))
	}
	for _, id := range hits {
		out[id] = true
	}
	return out
}

// countRows 展示用计数，查询失败记 warn 并按 0 处理
func countRows(q *gorm.DB, what string) int64 {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		logger.Log.Warn("Count query failed", zap.String("what", what), zap.Error(err))
		return 0
	}
	return n
}

// withPostRelations 文章查询统一预加载作者与标签
func withPostRelations(q *gorm.DB) *gorm.DB {
	return q.Preload("User").Preload("Tags")
}

// fillPosts 批量填充文章的作者、计数和当前用户状态
func fillPosts(posts []models.Post, viewer uint) {
	if len(posts) == 0 {
		return
	}
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	likes := countBy(&models.PostLike{}, "post_id", ids)
	bookmarks := countBy(&models.Bookmark{}, "post_id", ids)
	comments := countBy(&models.Comment{}, "post_id", ids)
	replies := countBy(&models.Reply{}, "post_id", ids)
	liked := ownedBy(&models.PostLike{}, "post_id", ids, viewer)
	bookmarked := ownedBy(&models.Bookmark{}, "post_id", ids, viewer)

	for i := range posts {
		p := &posts[i]
		p.Author = p.User.Summary()
		p.LikesCount = likes[p.ID]
		p.BookmarksCount = bookmarks[p.ID]
		p.CommentsCount = comments[p.ID] + replies[p.ID]
		p.IsLiked = liked[p.ID]
		p.IsBookmarked = bookmarked[p.ID]
		if p.Tags == nil {
			p.Tags = []models.Tag{}
		}
	}
}

func fillPost(p *models.Post, viewer uint) {
	list := []models.Post{*p}
	fillPosts(list, viewer)
	*p = list[0]
}

func fillReplies(replies []models.Reply, viewer uint) {
	if len(replies) == 0 {
		return
	}
	ids := make([]uint, len(replies))
	for i, r := range replies {
		ids[i] = r.ID
	}
	likes := countBy(&models.ReplyLike{}, "reply_id", ids)
	liked := ownedBy(&models.ReplyLike{}, "reply_id", ids, viewer)

	for i := range replies {
		r := &replies[i]
		r.Author = r.User.Summary()
		r.ContentHTML = utils.RenderMarkdown(r.Content)
		r.LikesCount = likes[r.ID]
		r.IsLiked = liked[r.ID]
	}
}

// fillComments 填充评论及其嵌套回复
func fillComments(comments []models.Comment, viewer uint) {
	if len(comments) == 0 {
		return
	}
	ids := make([]uint, len(comments))
	for i, cm := range comments {
		ids[i] = cm.ID
	}
	likes := countBy(&models.CommentLike{}, "comment_id", ids)
	replies := countBy(&models.Reply{}, "comment_id", ids)
	liked := ownedBy(&models.CommentLike{}, "comment_id", ids, viewer)

	for i := range comments {
		cm := &comments[i]
		cm.Author = cm.User.Summary()
		cm.ContentHTML = utils.RenderMarkdown(cm.Content)
		cm.LikesCount = likes[cm.ID]
		cm.RepliesCount = replies[cm.ID]
		cm.IsLiked = liked[cm.ID]
		if cm.Replies == nil {
			cm.Replies = []models.Reply{}
		}
		fillReplies(cm.Replies, viewer)
	}
}

// fillUser 填充关注数、粉丝数、文章数以及 viewer 是否已关注
func fillUser(u *models.User, viewer uint) {
	u.FollowersCount = countRows(db.DB.Model(&models.Follow{}).Where("following_id = ?", u.ID), "followers")
	u.FollowingCount = countRows(db.DB.Model(&models.Follow{}).Where("follower_id = ?", u.ID), "following")
	u.PostsCount = countRows(db.DB.Model(&models.Post{}).Where("user_id = ? AND published = ?", u.ID, true), "posts")
	if viewer != 0 && viewer != u.ID {
		u.IsFollowing = countRows(db.DB.Model(&models.Follow{}).Where("follower_id = ? AND following_id = ?", viewer, u.ID), "is_following") > 0
	}
}

// postCommentsCount 评论数包含回复
func postCommentsCount(postID uint) int64 {
	return countRows(db.DB.Model(&models.Comment{}).Where("post_id = ?", postID), "comments") +
		countRows(db.DB.Model(&models.Reply{}).Where("post_id = ?", postID), "replies")
}
