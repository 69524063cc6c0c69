// Package realtime pushes domain events to browser clients over WebSocket.
package realtime

import (
	"encoding/json"
	"time"
)

// Server → client events
const (
	EventNotification       = "notification"
	EventPostLikeUpdate     = "postLikeUpdate"
	EventPostBookmarkUpdate = "postBookmarkUpdate"
	EventPostCommentUpdate  = "postCommentUpdate"
	EventNewComment         = "newComment"
	EventNewReply           = "newReply"

	EventPing  = "ping"
	EventPong  = "pong"
	EventError = "error"
)

// Message is the JSON frame exchanged on the socket.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    time.Time       `json:"ts"`
}

// outgoing 与 Message 同构，Data 未序列化
type outgoing struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	TS    time.Time   `json:"ts"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outgoing{Event: event, Data: data, TS: time.Now().UTC()})
}

// Publisher is what the HTTP layer uses to emit events.
// UserID 为 0 的连接是匿名连接，只接收广播。
type Publisher interface {
	Broadcast(event string, data interface{})
	SendToUser(userID uint, event string, data interface{})
}

// Payloads

type PostLikeUpdate struct {
	PostID     uint  `json:"post_id"`
	LikesCount int64 `json:"likes_count"`
	UserID     uint  `json:"user_id"`
	Liked      bool  `json:"liked"`
}

type PostBookmarkUpdate struct {
	PostID         uint  `json:"post_id"`
	BookmarksCount int64 `json:"bookmarks_count"`
	UserID         uint  `json:"user_id"`
	Bookmarked     bool  `json:"bookmarked"`
}

type PostCommentUpdate struct {
	PostID        uint  `json:"post_id"`
	CommentsCount int64 `json:"comments_count"`
}

type NewComment struct {
	PostID  uint        `json:"post_id"`
	Comment interface{} `json:"comment"`
}

type NewReply struct {
	PostID    uint        `json:"post_id"`
	CommentID uint        `json:"comment_id"`
	Reply     interface{} `json:"reply"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Nop discards every event. Used when no hub is wired.
type Nop struct{}

func (Nop) Broadcast(string, interface{})        {}
func (Nop) SendToUser(uint, string, interface{}) {}
