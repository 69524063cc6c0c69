package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"quill/internal/logger"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 64
)

// Client is one WebSocket connection. UserID 0 表示匿名。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	UserID uint
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu         sync.Mutex
	sendClosed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    hub,
		conn:   conn,
		UserID: userID,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ReadPump reads client frames until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)

	// 只收不发的客户端很常见，读不设超时，存活由 WritePump 的 ping 判断
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && c.ctx.Err() == nil {
				logger.Log.Debug("WebSocket read error", logger.WithUserID(c.UserID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(EventError, ErrorPayload{Message: "invalid message"})
			continue
		}
		c.handle(&msg)
	}
}

func (c *Client) handle(msg *Message) {
	switch msg.Event {
	case EventPing:
		c.reply(EventPong, nil)
	default:
		c.reply(EventError, ErrorPayload{Message: "unknown event: " + msg.Event})
	}
}

func (c *Client) reply(event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		return
	}
	c.enqueue(payload)
}

// enqueue 非阻塞写入发送队列，返回 false 表示队列已满
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend is called by the hub exactly when the client leaves it.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// WritePump writes hub frames and keeps the connection alive with pings.
// A peer that does not answer a ping within pongWait is dropped.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Log.Debug("WebSocket write error", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, c.hub.pongWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				logger.Log.Debug("WebSocket ping failed", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	})
}
