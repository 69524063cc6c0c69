package services

import (
	"context"
	"sync"
	"time"

	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/models"
	"quill/internal/utils"

	"go.uber.org/zap"
)

// RankingService 提供异步计算和更新文章热度 Score 的服务
type RankingService struct {
	queue   chan uint // 待更新的文章 ID 队列
	pending map[uint]bool
	mu      sync.Mutex
	started bool
}

var (
	rankingService *RankingService
	once           sync.Once
)

// GetRankingService 获取单例排名服务
func GetRankingService() *RankingService {
	once.Do(func() {
		rankingService = &RankingService{
			queue:   make(chan uint, 1000), // 缓冲队列，防止阻塞
			pending: make(map[uint]bool),
		}
	})
	return rankingService
}

// Start runs the batch worker and the daily rescore until ctx is done.
// 未调用 Start 之前 ScheduleUpdate 不做任何事。
func (s *RankingService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.worker(ctx)
	go s.scheduledRescore(ctx)
}

// ScheduleUpdate 将文章加入更新队列（异步），短时间内重复请求会被合并
func (s *RankingService) ScheduleUpdate(postID uint) {
	s.mu.Lock()
	if !s.started || s.pending[postID] {
		s.mu.Unlock()
		return
	}
	s.pending[postID] = true
	s.mu.Unlock()

	select {
	case s.queue <- postID:
	default:
		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()
		logger.Log.Warn("Ranking queue full, skipping post", logger.WithPostID(postID))
	}
}

// worker 每 500ms 或攒满 50 个处理一批
func (s *RankingService) worker(ctx context.Context) {
	batch := make([]uint, 0, 50)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case postID := <-s.queue:
			batch = append(batch, postID)
			if len(batch) >= 50 {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.processBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *RankingService) processBatch(postIDs []uint) {
	for _, postID := range postIDs {
		UpdatePostScore(postID)

		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()
	}
	// 热门列表缓存随分数变化失效
	utils.GetCache().DeletePrefix("posts:trending:")
}

// UpdatePostScore 同步计算并写回单篇文章的 Score
func UpdatePostScore(postID uint) {
	var post models.Post
	if err := db.DB.Select("id", "created_at", "published_at", "visits").First(&post, postID).Error; err != nil {
		logger.Log.Debug("Score update skipped, post not found", logger.WithPostID(postID))
		return
	}

	var likes, bookmarks, comments int64
	for _, q := range []struct {
		model interface{}
		out   *int64
	}{
		{&models.PostLike{}, &likes},
		{&models.Bookmark{}, &bookmarks},
		{&models.Comment{}, &comments},
	} {
		// 计数失败时保留旧分数
		if err := db.DB.Model(q.model).Where("post_id = ?", postID).Count(q.out).Error; err != nil {
			logger.Log.Warn("Score update skipped, count failed", logger.WithPostID(postID), zap.Error(err))
			return
		}
	}

	since := post.CreatedAt
	if post.PublishedAt != nil {
		since = *post.PublishedAt
	}
	score := utils.CalculateScore(since, int(likes), int(bookmarks), int(comments), post.Visits)

	if err := db.DB.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("score", int(score)).Error; err != nil {
		logger.Log.Error("Failed to update post score", logger.WithPostID(postID), zap.Error(err))
	}
}

// scheduledRescore 每天凌晨 3 点重算近期与高分文章
func (s *RankingService) scheduledRescore(ctx context.Context) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
		if now.After(next) {
			next = next.Add(24 * time.Hour)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		logger.Log.Info("Starting scheduled score update")
		n := RescoreHotPosts()
		logger.Log.Info("Scheduled score update finished", zap.Int("posts", n))
	}
}

// RescoreHotPosts 更新最近 7 天和分数最高的 30 篇文章，返回处理数量
func RescoreHotPosts() int {
	processed := make(map[uint]bool)

	var recent []models.Post
	db.DB.Select("id").Where("published = ? AND created_at >= ?", true, time.Now().AddDate(0, 0, -7)).Find(&recent)
	for _, p := range recent {
		UpdatePostScore(p.ID)
		processed[p.ID] = true
	}

	var top []models.Post
	db.DB.Select("id").Where("published = ?", true).Order("score DESC").Limit(30).Find(&top)
	for _, p := range top {
		if !processed[p.ID] {
			UpdatePostScore(p.ID)
			processed[p.ID] = true
		}
	}

	utils.GetCache().DeletePrefix("posts:trending:")
	return len(processed)
}
