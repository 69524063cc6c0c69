// Package testutil wires an in-memory database and an event recorder for tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"quill/internal/db"
	"quill/internal/models"
	"quill/internal/utils"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SetupDB opens a fresh in-memory SQLite database, migrates it and installs it as db.DB.
func SetupDB(t testing.TB) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// 单连接，保证所有查询看到同一个内存库
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(conn))

	prev := db.DB
	db.DB = conn
	utils.GetCache().Purge()
	t.Cleanup(func() {
		db.DB = prev
		sqlDB.Close()
		utils.GetCache().Purge()
	})
	return conn
}

// CreateUser inserts a verified user whose password is "password123".
func CreateUser(t testing.TB, username string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)
	u := &models.User{
		Name:       username,
		Username:   username,
		Email:      username + "@example.com",
		Password:   hash,
		Avatar:     utils.DefaultAvatar(username),
		Role:       models.RoleUser,
		IsVerified: true,
	}
	require.NoError(t, db.DB.Create(u).Error)
	return u
}

// CreatePost inserts a post by the given author.
func CreatePost(t testing.TB, author *models.User, title string, published bool) *models.Post {
	t.Helper()
	meta := utils.ProcessPostHTML("<p>" + title + " body text</p>")
	p := &models.Post{
		Slug:      utils.PostSlug(title),
		UserID:    author.ID,
		Title:     title,
		Content:   meta.Content,
		Excerpt:   meta.Excerpt,
		ReadTime:  meta.ReadTime,
		Published: published,
	}
	if published {
		now := time.Now()
		p.PublishedAt = &now
	}
	require.NoError(t, db.DB.Create(p).Error)
	return p
}

// Event is one captured publish call. UserID 0 表示广播。
type Event struct {
	UserID uint
	Name   string
	Data   interface{}
}

// Recorder captures published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Broadcast(event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: event, Data: data})
}

func (r *Recorder) SendToUser(userID uint, event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{UserID: userID, Name: event, Data: data})
}

// Events returns the captured events named name (all when name is empty).
func (r *Recorder) Events(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if name == "" || e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
