package router

import (
	"time"

	"quill/internal/config"
	"quill/internal/handlers"
	"quill/internal/logger"
	"quill/internal/metrics"
	"quill/internal/middleware"
	"quill/internal/realtime"
	"quill/internal/services"
	"quill/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps 路由所需的服务实例，由 main 组装
type Deps struct {
	Config    *config.Config
	Tokens    *services.TokenService
	Mail      *services.MailService
	Publisher realtime.Publisher
	Hub       *realtime.Hub
	Notifier  *services.NotificationService
	Ranking   *services.RankingService
	Uploader  storage.ImageUploader
}

// New builds the engine with middleware and every route.
func New(d Deps) *gin.Engine {
	cfg := d.Config
	if d.Publisher == nil {
		d.Publisher = realtime.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = services.NewNotificationService(d.Publisher, d.Mail)
	}
	if d.Ranking == nil {
		d.Ranking = services.GetRankingService()
	}

	middleware.RegisterValidators()

	r := gin.New()
	// ClientIP 只在请求来自可信代理时才读取 X-Forwarded-For
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Log.Warn("Invalid TRUSTED_PROXIES, trusting none", zap.Error(err))
		r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.GinLogger())
	r.Use(middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	// websocket 不走 gzip
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.JWTTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
	})
	r.Use(sessions.Sessions("quill_session", store))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.LoadUser(d.Tokens))

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, d.Mail, d.Tokens)
	userHandler := handlers.NewUserHandler(d.Notifier)
	postHandler := handlers.NewPostHandler(d.Publisher, d.Notifier, d.Ranking)
	commentHandler := handlers.NewCommentHandler(d.Publisher, d.Notifier, d.Ranking)
	notificationHandler := handlers.NewNotificationHandler()
	uploadHandler := handlers.NewUploadHandler(d.Uploader)
	adminHandler := handlers.NewAdminHandler()
	feedHandler := handlers.NewFeedHandler(cfg)

	r.GET("/health", handlers.Health)
	r.GET("/metrics", metrics.Handler())
	r.GET("/sitemap.xml", feedHandler.Sitemap)
	r.GET("/feed.xml", feedHandler.RSS)
	if d.Hub != nil {
		r.GET("/ws", realtime.NewHandler(d.Hub, d.Tokens, cfg.CORSOrigins).Serve)
	}

	api := r.Group("/api/v1")
	authRequired := middleware.AuthRequired()

	// 认证 (Auth)，凭证相关接口按 IP 限流
	auth := api.Group("/auth")
	limited := middleware.RateLimit(middleware.NewIPRateLimiter(10, time.Minute))
	{
		auth.POST("/register", limited, authHandler.Register)
		auth.POST("/login", limited, authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", authRequired, authHandler.Me)
		auth.POST("/verify-email", limited, authHandler.VerifyEmail)
		auth.POST("/resend-verification", limited, authRequired, authHandler.ResendVerification)
		auth.POST("/forgot-password", limited, authHandler.ForgotPassword)
		auth.POST("/reset-password", limited, authHandler.ResetPassword)
		auth.PATCH("/change-password", limited, authRequired, authHandler.ChangePassword)
		auth.GET("/google", authHandler.GoogleLogin)
		auth.GET("/google/callback", authHandler.GoogleCallback)
	}

	// 用户 (Users)
	users := api.Group("/users")
	{
		users.PATCH("/me", authRequired, userHandler.UpdateMe)
		users.DELETE("/me", authRequired, userHandler.DeleteMe)
		users.GET("/me/bookmarks", authRequired, userHandler.Bookmarks)
		users.GET("/me/feed", authRequired, userHandler.Feed)

		users.GET("/:username", userHandler.Profile)
		users.GET("/:username/posts", userHandler.Posts)
		users.GET("/:username/followers", userHandler.Followers)
		users.GET("/:username/following", userHandler.Following)
		users.POST("/:username/follow", authRequired, userHandler.ToggleFollow)
	}

	// 文章 (Posts)
	api.GET("/tags", postHandler.Tags)
	posts := api.Group("/posts")
	{
		posts.GET("", postHandler.List)
		posts.POST("", authRequired, postHandler.Create)
		posts.GET("/:id", postHandler.Get)
		posts.PATCH("/:id", authRequired, postHandler.Update)
		posts.DELETE("/:id", authRequired, postHandler.Delete)
		posts.POST("/:id/like", authRequired, postHandler.ToggleLike)
		posts.POST("/:id/bookmark", authRequired, postHandler.ToggleBookmark)

		posts.GET("/:id/comments", commentHandler.ListForPost)
		posts.POST("/:id/comments", authRequired, commentHandler.Create)
	}

	// 评论与回复 (Comments / Replies)
	comments := api.Group("/comments")
	{
		comments.PATCH("/:id", authRequired, commentHandler.Update)
		comments.DELETE("/:id", authRequired, commentHandler.Delete)
		comments.POST("/:id/like", authRequired, commentHandler.ToggleLike)
		comments.GET("/:id/replies", commentHandler.ListReplies)
		comments.POST("/:id/replies", authRequired, commentHandler.CreateReply)
	}
	replies := api.Group("/replies")
	replies.Use(authRequired)
	{
		replies.PATCH("/:id", commentHandler.UpdateReply)
		replies.DELETE("/:id", commentHandler.DeleteReply)
		replies.POST("/:id/like", commentHandler.ToggleReplyLike)
	}

	// 通知 (Notifications)
	notifications := api.Group("/notifications")
	notifications.Use(authRequired)
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.PATCH("/read-all", notificationHandler.ReadAll)
		notifications.PATCH("/:id/read", notificationHandler.Read)
		notifications.DELETE("/:id", notificationHandler.Delete)
		notifications.DELETE("", notificationHandler.DeleteAll)
	}

	api.POST("/uploads/image", authRequired, uploadHandler.Image)

	// 管理 (Admin)
	admin := api.Group("/admin")
	admin.Use(authRequired, middleware.AdminRequired())
	{
		admin.GET("/stats", adminHandler.Stats)
		admin.PATCH("/users/:id/role", adminHandler.SetRole)
	}

	return r
}
