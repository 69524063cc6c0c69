package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quill/internal/config"
	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/realtime"
	"quill/internal/router"
	"quill/internal/services"
	"quill/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, finding env vars from system")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile, cfg.IsProduction()); err != nil {
		log.Fatal(err)
	}
	defer logger.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Database
	if err := db.Init(cfg.DatabaseURL); err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 实时推送：单机直接走 hub，配置 REDIS_URL 时经 Redis 扇出到所有实例
	hub := realtime.NewHub()
	go hub.Run()

	var publisher realtime.Publisher = hub
	if cfg.RedisURL != "" {
		broker, err := realtime.NewRedisBroker(cfg.RedisURL, hub)
		if err != nil {
			logger.Log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer broker.Close()
		go broker.Run(ctx)
		publisher = broker
	}

	// 初始化异步排名服务
	ranking := services.GetRankingService()
	ranking.Start(ctx)

	var uploader storage.ImageUploader
	if cfg.S3Bucket != "" {
		s3, err := storage.NewS3Uploader(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3PublicURL)
		if err != nil {
			logger.Log.Error("S3 disabled", zap.Error(err))
		} else {
			uploader = s3
		}
	}

	mail := services.NewMailService(cfg)
	r := router.New(router.Deps{
		Config:    cfg,
		Tokens:    services.NewTokenService(cfg.JWTSecret, cfg.JWTTTL),
		Mail:      mail,
		Publisher: publisher,
		Hub:       hub,
		Notifier:  services.NewNotificationService(publisher, mail),
		Ranking:   ranking,
		Uploader:  uploader,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Quill server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("Hub shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown", zap.Error(err))
	}
}
