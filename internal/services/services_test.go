package services

import (
	"testing"

	"quill/internal/db"
	"quill/internal/models"
	"quill/internal/realtime"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySkipsSelfActions(t *testing.T) {
	testutil.SetupDB(t)
	rec := &testutil.Recorder{}
	svc := NewNotificationService(rec, nil)
	alice := testutil.CreateUser(t, "alice")

	n := svc.Notify(NotifyInput{RecipientID: alice.ID, ActorID: alice.ID, Type: models.NotificationTypeLikePost})
	assert.Nil(t, n)

	var count int64
	db.DB.Model(&models.Notification{}).Count(&count)
	assert.Zero(t, count)
	assert.Empty(t, rec.Events(""))
}

func TestNotifyPersistsAndPushes(t *testing.T) {
	testutil.SetupDB(t)
	rec := &testutil.Recorder{}
	svc := NewNotificationService(rec, nil)
	alice := testutil.CreateUser(t, "alice")
	bob := testutil.CreateUser(t, "bob")
	post := testutil.CreatePost(t, alice, "Hello", true)

	n := svc.Notify(NotifyInput{
		RecipientID: alice.ID,
		ActorID:     bob.ID,
		Type:        models.NotificationTypeLikePost,
		Message:     "bob liked your post",
		PostID:      &post.ID,
	})
	require.NotNil(t, n)
	require.NotNil(t, n.Sender)
	assert.Equal(t, "bob", n.Sender.Username)
	assert.Equal(t, post.Slug, n.PostSlug)

	events := rec.Events(realtime.EventNotification)
	require.Len(t, events, 1)
	assert.Equal(t, alice.ID, events[0].UserID)
}

func TestNotifyMentions(t *testing.T) {
	testutil.SetupDB(t)
	rec := &testutil.Recorder{}
	svc := NewNotificationService(rec, nil)
	alice := testutil.CreateUser(t, "alice")
	bob := testutil.CreateUser(t, "bob")
	carol := testutil.CreateUser(t, "carol")

	svc.NotifyMentions(alice, "thanks @Bob and @carol and @alice and @nobody", nil, nil, nil, map[uint]bool{carol.ID: true})

	var list []models.Notification
	db.DB.Find(&list)
	require.Len(t, list, 1)
	assert.Equal(t, bob.ID, list[0].UserID)
	assert.Equal(t, models.NotificationTypeMention, list[0].Type)
}

func TestDeletePostsCascades(t *testing.T) {
	testutil.SetupDB(t)
	alice := testutil.CreateUser(t, "alice")
	bob := testutil.CreateUser(t, "bob")
	post := testutil.CreatePost(t, alice, "Doomed", true)
	keep := testutil.CreatePost(t, alice, "Keeper", true)

	comment := models.Comment{PostID: post.ID, UserID: bob.ID, Content: "nice"}
	require.NoError(t, db.DB.Create(&comment).Error)
	reply := models.Reply{CommentID: comment.ID, PostID: post.ID, UserID: alice.ID, Content: "thanks"}
	require.NoError(t, db.DB.Create(&reply).Error)
	require.NoError(t, db.DB.Create(&models.CommentLike{UserID: alice.ID, CommentID: comment.ID}).Error)
	require.NoError(t, db.DB.Create(&models.ReplyLike{UserID: bob.ID, ReplyID: reply.ID}).Error)
	require.NoError(t, db.DB.Create(&models.PostLike{UserID: bob.ID, PostID: post.ID}).Error)
	require.NoError(t, db.DB.Create(&models.Bookmark{UserID: bob.ID, PostID: post.ID}).Error)
	require.NoError(t, db.DB.Create(&models.PostLike{UserID: bob.ID, PostID: keep.ID}).Error)

	require.NoError(t, DeletePosts(db.DB, []uint{post.ID}))

	for _, m := range []interface{}{&models.Comment{}, &models.Reply{}, &models.CommentLike{}, &models.ReplyLike{}, &models.Bookmark{}} {
		var n int64
		db.DB.Model(m).Count(&n)
		assert.Zero(t, n, "%T should be empty", m)
	}
	var likes int64
	db.DB.Model(&models.PostLike{}).Count(&likes)
	assert.Equal(t, int64(1), likes)

	var posts int64
	db.DB.Model(&models.Post{}).Count(&posts)
	assert.Equal(t, int64(1), posts)
}

func TestDeleteUserRemovesEverything(t *testing.T) {
	testutil.SetupDB(t)
	alice := testutil.CreateUser(t, "alice")
	bob := testutil.CreateUser(t, "bob")
	post := testutil.CreatePost(t, bob, "Bob's", true)
	require.NoError(t, db.DB.Create(&models.Follow{FollowerID: alice.ID, FollowingID: bob.ID}).Error)
	require.NoError(t, db.DB.Create(&models.Comment{PostID: post.ID, UserID: alice.ID, Content: "hi"}).Error)
	require.NoError(t, db.DB.Create(&models.PostLike{UserID: alice.ID, PostID: post.ID}).Error)

	require.NoError(t, DeleteUser(db.DB, alice.ID))

	var n int64
	db.DB.Model(&models.User{}).Where("id = ?", alice.ID).Count(&n)
	assert.Zero(t, n)
	db.DB.Model(&models.Follow{}).Count(&n)
	assert.Zero(t, n)
	db.DB.Model(&models.Comment{}).Count(&n)
	assert.Zero(t, n)
	db.DB.Model(&models.Post{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestUpdatePostScore(t *testing.T) {
	testutil.SetupDB(t)
	alice := testutil.CreateUser(t, "alice")
	bob := testutil.CreateUser(t, "bob")
	post := testutil.CreatePost(t, alice, "Hot", true)
	require.NoError(t, db.DB.Create(&models.PostLike{UserID: bob.ID, PostID: post.ID}).Error)
	require.NoError(t, db.DB.Create(&models.Bookmark{UserID: bob.ID, PostID: post.ID}).Error)

	UpdatePostScore(post.ID)

	var got models.Post
	require.NoError(t, db.DB.First(&got, post.ID).Error)
	assert.Greater(t, got.Score, 0)
	assert.Equal(t, 1, RescoreHotPosts())
}

func TestScheduleUpdateIsNoopBeforeStart(t *testing.T) {
	svc := &RankingService{queue: make(chan uint, 1), pending: make(map[uint]bool)}
	svc.ScheduleUpdate(1)
	assert.Len(t, svc.queue, 0)
}
