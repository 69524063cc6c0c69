package handlers

import (
	"testing"

	"quill/internal/db"
	"quill/internal/logger"
	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	prev := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = prev })
	return logs
}

func TestCountFailuresAreLogged(t *testing.T) {
	testutil.SetupDB(t)
	author := testutil.CreateUser(t, "counter")
	reader := testutil.CreateUser(t, "viewer")
	post := testutil.CreatePost(t, author, "Counted", true)
	require.NoError(t, db.DB.Create(&models.Comment{PostID: post.ID, UserID: reader.ID, Content: "hi"}).Error)
	require.NoError(t, db.DB.Migrator().DropTable(&models.PostLike{}))

	logs := observeLogs(t)

	assert.Empty(t, countBy(&models.PostLike{}, "post_id", []uint{post.ID}))
	assert.Empty(t, ownedBy(&models.PostLike{}, "post_id", []uint{post.ID}, reader.ID))
	assert.Zero(t, countRows(db.DB.Model(&models.PostLike{}).Where("post_id = ?", post.ID), "post_likes"))
	assert.Equal(t, 3, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.NotNil(t, entry.ContextMap()["error"])
	}

	// 其余计数不受影响
	fillPost(post, reader.ID)
	assert.Zero(t, post.LikesCount)
	assert.Equal(t, int64(1), post.CommentsCount)
	assert.Equal(t, int64(1), postCommentsCount(post.ID))
}

func TestCountRows(t *testing.T) {
	testutil.SetupDB(t)
	logs := observeLogs(t)
	testutil.CreateUser(t, "one")
	testutil.CreateUser(t, "two")

	assert.Equal(t, int64(2), countRows(db.DB.Model(&models.User{}), "users"))
	assert.Zero(t, logs.Len())
}
