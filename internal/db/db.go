package db

import (
	"quill/internal/logger"
	"quill/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the PostgreSQL connection and migrates the schema.
func Init(dsn string) error {
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}
	logger.Log.Info("Database connection established")

	if err := Migrate(DB); err != nil {
		return err
	}
	logger.Log.Info("Database migration completed")
	return nil
}

// Migrate runs AutoMigrate for every model.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(models.All()...)
}

// Ping reports whether the database answers.
func Ping() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Log.Warn("Failed to close database", zap.Error(err))
		}
	}
}
