package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"quill/internal/apperr"
	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/metrics"
	"quill/internal/models"
	"quill/internal/realtime"
	"quill/internal/services"
	"quill/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTags      = 5
	trendingTTL  = 2 * time.Minute
	tagsCacheKey = "tags:all"
)

type PostHandler struct {
	pub      realtime.Publisher
	notifier *services.NotificationService
	ranking  *services.RankingService
}

func NewPostHandler(pub realtime.Publisher, notifier *services.NotificationService, ranking *services.RankingService) *PostHandler {
	return &PostHandler{pub: pub, notifier: notifier, ranking: ranking}
}

// paginatePosts 统计总数并取出当前页，已填充作者与计数
func paginatePosts(c *gin.Context, q *gorm.DB, order string) (Page, error) {
	page, limit, offset := pagination(c)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page{}, err
	}
	posts := []models.Post{}
	if err := withPostRelations(q.Session(&gorm.Session{})).
		Select("posts.*").
		Order(order).Limit(limit).Offset(offset).
		Find(&posts).Error; err != nil {
		return Page{}, err
	}
	fillPosts(posts, viewerID(c))
	return newPage(posts, page, limit, total), nil
}

func publishedPosts() *gorm.DB {
	return db.DB.Model(&models.Post{}).Where("posts.published = ?", true)
}

func sortOrder(sort string) (string, error) {
	switch sort {
	case "", "latest":
		return "posts.published_at DESC, posts.id DESC", nil
	case "trending":
		return "posts.score DESC, posts.published_at DESC, posts.id DESC", nil
	case "popular":
		return "(SELECT COUNT(*) FROM post_likes WHERE post_likes.post_id = posts.id) DESC, posts.visits DESC, posts.id DESC", nil
	}
	return "", apperr.BadRequest("sort must be one of: latest, trending, popular")
}

type trendingEntry struct {
	IDs   []uint
	Total int64
}

// List GET /posts?tag=&q=&author=&sort=
func (h *PostHandler) List(c *gin.Context) {
	sort := c.Query("sort")
	order, err := sortOrder(sort)
	if err != nil {
		c.Error(err)
		return
	}

	tag := strings.ToLower(strings.TrimSpace(c.Query("tag")))
	search := strings.ToLower(strings.TrimSpace(c.Query("q")))
	author := strings.ToLower(strings.TrimSpace(c.Query("author")))

	if sort == "trending" && tag == "" && search == "" && author == "" {
		h.listTrending(c, order)
		return
	}

	q := publishedPosts()
	if tag != "" {
		q = q.Where("posts.id IN (?)", db.DB.Table("post_tags").
			Select("post_tags.post_id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.name = ?", tag))
	}
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("LOWER(posts.title) LIKE ? OR LOWER(posts.content) LIKE ?", like, like)
	}
	if author != "" {
		q = q.Where("posts.user_id IN (?)", db.DB.Model(&models.User{}).Select("id").Where("LOWER(username) = ?", author))
	}

	result, err := paginatePosts(c, q, order)
	if err != nil {
		c.Error(err)
		return
	}
	ok(c, "", result)
}

// listTrending 缓存热门列表的 ID 顺序，is_liked 等按请求者实时填充
func (h *PostHandler) listTrending(c *gin.Context, order string) {
	page, limit, offset := pagination(c)
	cacheKey := fmt.Sprintf("posts:trending:%d:%d", page, limit)

	entry, cached := utils.GetCache().Get(cacheKey).(trendingEntry)
	if !cached {
		if err := publishedPosts().Count(&entry.Total).Error; err != nil {
			c.Error(err)
			return
		}
		if err := publishedPosts().Order(order).Limit(limit).Offset(offset).Pluck("posts.id", &entry.IDs).Error; err != nil {
			c.Error(err)
			return
		}
		utils.GetCache().Set(cacheKey, entry, trendingTTL)
	}

	posts := []models.Post{}
	if len(entry.IDs) > 0 {
		var found []models.Post
		if err := withPostRelations(db.DB).Where("id IN ?", entry.IDs).Find(&found).Error; err != nil {
			c.Error(err)
			return
		}
		byID := make(map[uint]models.Post, len(found))
		for _, p := range found {
			byID[p.ID] = p
		}
		for _, id := range entry.IDs {
			if p, found := byID[id]; found {
				posts = append(posts, p)
			}
		}
	}
	fillPosts(posts, viewerID(c))
	ok(c, "", newPage(posts, page, limit, entry.Total))
}

// TagCount is a tag with its number of published posts.
type TagCount struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	PostCount int64  `json:"post_count"`
}

// Tags GET /tags 标签云（缓存）
func (h *PostHandler) Tags(c *gin.Context) {
	if cached, hit := utils.GetCache().Get(tagsCacheKey).([]TagCount); hit {
		ok(c, "", cached)
		return
	}

	tags := []TagCount{}
	err := db.DB.Table("tags").
		Select("tags.id, tags.name, COUNT(posts.id) AS post_count").
		Joins("JOIN post_tags ON post_tags.tag_id = tags.id").
		Joins("JOIN posts ON posts.id = post_tags.post_id AND posts.published = ?", true).
		Group("tags.id, tags.name").
		Order("post_count DESC, tags.name ASC").
		Scan(&tags).Error
	if err != nil {
		c.Error(err)
		return
	}
	utils.GetCache().Set(tagsCacheKey, tags, 10*time.Minute)
	ok(c, "", tags)
}

// loadPost 按数字 id 或 slug 查找；草稿只对作者和管理员可见
func loadPost(c *gin.Context) (*models.Post, bool) {
	key := c.Param("id")
	q := withPostRelations(db.DB)
	if id, isID := utils.ParseID(key); isID {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("slug = ?", key)
	}

	var post models.Post
	if err := q.First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(apperr.NoItem(key))
		} else {
			c.Error(err)
		}
		return nil, false
	}
	if !post.Published {
		user := currentUser(c)
		if user == nil || (user.ID != post.UserID && !user.IsAdmin()) {
			c.Error(apperr.NoItem(key))
			return nil, false
		}
	}
	return &post, true
}

// Get GET /posts/:id
func (h *PostHandler) Get(c *gin.Context) {
	post, found := loadPost(c)
	if !found {
		return
	}

	viewer := viewerID(c)
	if post.Published && viewer != post.UserID {
		if err := db.DB.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn("visits", gorm.Expr("visits + 1")).Error; err != nil {
			logger.Log.Warn("Failed to count visit", logger.WithPostID(post.ID), zap.Error(err))
		} else {
			post.Visits++
		}
		h.ranking.ScheduleUpdate(post.ID)
	}

	fillPost(post, viewer)
	ok(c, "", post)
}

// findOrCreateTags 标签名已规范化
func findOrCreateTags(tx *gorm.DB, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tag := models.Tag{Name: name}
		if err := tx.Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func invalidatePostLists() {
	cache := utils.GetCache()
	cache.DeletePrefix("posts:trending:")
	cache.Delete(tagsCacheKey)
}

type createPostRequest struct {
	Title      string   `json:"title" binding:"required,max=150,nocontrol"`
	Content    string   `json:"content" binding:"required"`
	CoverImage string   `json:"cover_image" binding:"omitempty,url"`
	Tags       []string `json:"tags" binding:"max=5"`
	Published  *bool    `json:"published"`
}

// Create POST /posts
func (h *PostHandler) Create(c *gin.Context) {
	var req createPostRequest
	if !bind(c, &req) {
		return
	}
	user := currentUser(c)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.Error(apperr.BadRequest("Please provide title"))
		return
	}
	meta := utils.ProcessPostHTML(req.Content)
	if meta.Excerpt == "" && meta.FirstImage == "" {
		c.Error(apperr.BadRequest("Please provide content"))
		return
	}

	post := models.Post{
		Slug:       utils.PostSlug(title),
		UserID:     user.ID,
		Title:      title,
		Content:    meta.Content,
		Excerpt:    meta.Excerpt,
		CoverImage: req.CoverImage,
		ReadTime:   meta.ReadTime,
		Published:  req.Published == nil || *req.Published,
	}
	if post.CoverImage == "" {
		post.CoverImage = meta.FirstImage
	}
	if post.Published {
		now := time.Now()
		post.PublishedAt = &now
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		tags, err := findOrCreateTags(tx, utils.NormalizeTags(req.Tags, maxTags))
		if err != nil {
			return err
		}
		post.Tags = tags
		return tx.Create(&post).Error
	})
	if err != nil {
		c.Error(err)
		return
	}

	post.User = *user
	fillPost(&post, user.ID)
	invalidatePostLists()
	logger.Log.Info("Post created", logger.WithUserID(user.ID), logger.WithPostID(post.ID))
	created(c, "Post created", post)
}

// ownPost 作者或管理员才能修改
func ownPost(c *gin.Context) (*models.Post, *models.User, bool) {
	id, valid := paramID(c, "id")
	if !valid {
		return nil, nil, false
	}
	var post models.Post
	if err := withPostRelations(db.DB).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(apperr.NoItem(c.Param("id")))
		} else {
			c.Error(err)
		}
		return nil, nil, false
	}
	user := currentUser(c)
	if post.UserID != user.ID && !user.IsAdmin() {
		c.Error(apperr.Forbidden(""))
		return nil, nil, false
	}
	return &post, user, true
}

type updatePostRequest struct {
	Title      *string  `json:"title" binding:"omitempty,max=150,nocontrol"`
	Content    *string  `json:"content"`
	CoverImage *string  `json:"cover_image"`
	Tags       []string `json:"tags" binding:"omitempty,max=5"`
	Published  *bool    `json:"published"`
}

// Update PATCH /posts/:id
func (h *PostHandler) Update(c *gin.Context) {
	post, user, allowed := ownPost(c)
	if !allowed {
		return
	}
	var req updatePostRequest
	if !bind(c, &req) {
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.Error(apperr.BadRequest("Please provide title"))
			return
		}
		updates["title"] = title
	}
	if req.Content != nil {
		meta := utils.ProcessPostHTML(*req.Content)
		if meta.Excerpt == "" && meta.FirstImage == "" {
			c.Error(apperr.BadRequest("Please provide content"))
			return
		}
		updates["content"] = meta.Content
		updates["excerpt"] = meta.Excerpt
		updates["read_time"] = meta.ReadTime
		if post.CoverImage == "" && req.CoverImage == nil && meta.FirstImage != "" {
			updates["cover_image"] = meta.FirstImage
		}
	}
	if req.CoverImage != nil {
		updates["cover_image"] = strings.TrimSpace(*req.CoverImage)
	}
	if req.Published != nil {
		updates["published"] = *req.Published
		// 首次发布才写入 published_at
		if *req.Published && post.PublishedAt == nil {
			updates["published_at"] = time.Now()
		}
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Tags != nil {
			tags, err := findOrCreateTags(tx, utils.NormalizeTags(req.Tags, maxTags))
			if err != nil {
				return err
			}
			if err := tx.Model(post).Association("Tags").Replace(tags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.Error(err)
		return
	}

	var updated models.Post
	if err := withPostRelations(db.DB).First(&updated, post.ID).Error; err != nil {
		c.Error(err)
		return
	}
	fillPost(&updated, user.ID)
	invalidatePostLists()
	h.ranking.ScheduleUpdate(post.ID)
	ok(c, "Post updated", updated)
}

// Delete DELETE /posts/:id 级联删除；管理员删除他人文章时发送系统通知
func (h *PostHandler) Delete(c *gin.Context) {
	post, user, allowed := ownPost(c)
	if !allowed {
		return
	}

	if err := db.DB.Transaction(func(tx *gorm.DB) error {
		return services.DeletePosts(tx, []uint{post.ID})
	}); err != nil {
		c.Error(err)
		return
	}

	if post.UserID != user.ID {
		h.notifier.Notify(services.NotifyInput{
			RecipientID: post.UserID,
			Type:        models.NotificationTypeSystem,
			Message:     fmt.Sprintf("Your post \"%s\" was removed by an administrator", post.Title),
		})
		logger.Log.Info("Post removed by admin", logger.WithUserID(user.ID), logger.WithPostID(post.ID))
	}
	invalidatePostLists()
	ok(c, "Post deleted", nil)
}

// publishedPostByID 互动接口只对已发布文章开放
func publishedPostByID(c *gin.Context) (*models.Post, bool) {
	id, valid := paramID(c, "id")
	if !valid {
		return nil, false
	}
	var post models.Post
	if err := db.DB.Where("id = ? AND published = ?", id, true).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Error(apperr.NoItem(c.Param("id")))
		} else {
			c.Error(err)
		}
		return nil, false
	}
	return &post, true
}

// ToggleLike POST /posts/:id/like
func (h *PostHandler) ToggleLike(c *gin.Context) {
	post, found := publishedPostByID(c)
	if !found {
		return
	}
	user := currentUser(c)

	liked, err := toggle(&models.PostLike{}, func() interface{} {
		return &models.PostLike{UserID: user.ID, PostID: post.ID}
	}, "user_id = ? AND post_id = ?", user.ID, post.ID)
	if err != nil {
		c.Error(err)
		return
	}

	count := countRows(db.DB.Model(&models.PostLike{}).Where("post_id = ?", post.ID), "post_likes")

	if liked {
		metrics.Engagement.WithLabelValues("post_like").Inc()
		h.notifier.Notify(services.NotifyInput{
			RecipientID: post.UserID,
			ActorID:     user.ID,
			Type:        models.NotificationTypeLikePost,
			Message:     fmt.Sprintf("%s liked your post \"%s\"", user.Name, post.Title),
			PostID:      &post.ID,
		})
	}
	h.pub.Broadcast(realtime.EventPostLikeUpdate, realtime.PostLikeUpdate{
		PostID: post.ID, LikesCount: count, UserID: user.ID, Liked: liked,
	})
	h.ranking.ScheduleUpdate(post.ID)

	ok(c, "", gin.H{"liked": liked, "likes_count": count})
}

// ToggleBookmark POST /posts/:id/bookmark
func (h *PostHandler) ToggleBookmark(c *gin.Context) {
	post, found := publishedPostByID(c)
	if !found {
		return
	}
	user := currentUser(c)

	bookmarked, err := toggle(&models.Bookmark{}, func() interface{} {
		return &models.Bookmark{UserID: user.ID, PostID: post.ID}
	}, "user_id = ? AND post_id = ?", user.ID, post.ID)
	if err != nil {
		c.Error(err)
		return
	}

	count := countRows(db.DB.Model(&models.Bookmark{}).Where("post_id = ?", post.ID), "bookmarks")

	if bookmarked {
		metrics.Engagement.WithLabelValues("bookmark").Inc()
	}
	h.pub.Broadcast(realtime.EventPostBookmarkUpdate, realtime.PostBookmarkUpdate{
		PostID: post.ID, BookmarksCount: count, UserID: user.ID, Bookmarked: bookmarked,
	})
	h.ranking.ScheduleUpdate(post.ID)

	ok(c, "", gin.H{"bookmarked": bookmarked, "bookmarks_count": count})
}

// toggle 匹配 query 的行已存在则删除，否则创建；返回操作后的状态
func toggle(model interface{}, newRow func() interface{}, query string, args ...interface{}) (bool, error) {
	res := db.DB.Where(query, args...).Delete(model)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return false, nil
	}
	if err := db.DB.Create(newRow()).Error; err != nil {
		// 并发请求已插入，视为已点
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return true, nil
		}
		logger.Log.Error("Toggle insert failed", zap.String("query", query), zap.Error(err))
		return false, err
	}
	return true, nil
}
