package realtime

import (
	"context"
	"sync"
	"time"

	"quill/internal/logger"
	"quill/internal/metrics"

	"go.uber.org/zap"
)

type unicast struct {
	userID uint
	data   []byte
}

// Hub 维护所有在线连接，按用户分组
type Hub struct {
	clients    map[uint]map[*Client]struct{}
	allClients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	unicast    chan unicast

	mu sync.RWMutex

	pingPeriod time.Duration
	pongWait   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		allClients: make(map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan []byte, 256),
		unicast:    make(chan unicast, 256),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case data := <-h.broadcast:
			h.deliverAll(data)
		case u := <-h.unicast:
			h.deliverUser(u.userID, u.data)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*Client]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.allClients[c] = struct{}{}
	metrics.WSConnections.Inc()
	logger.Log.Debug("WebSocket client connected", logger.WithUserID(c.UserID), zap.Int("active", len(h.allClients)))
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.allClients[c]; !ok {
		return
	}
	delete(h.allClients, c)
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	c.closeSend()
	metrics.WSConnections.Dec()
	logger.Log.Debug("WebSocket client disconnected", logger.WithUserID(c.UserID), zap.Int("active", len(h.allClients)))
}

func (h *Hub) deliverAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.allClients {
		h.trySend(c, data)
	}
}

func (h *Hub) deliverUser(userID uint, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		h.trySend(c, data)
	}
}

// trySend 缓冲区满的慢客户端直接踢掉
func (h *Hub) trySend(c *Client, data []byte) {
	if !c.enqueue(data) {
		go h.Unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.allClients {
		c.closeSend()
		metrics.WSConnections.Dec()
	}
	h.clients = make(map[uint]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})
}

// Broadcast implements Publisher.
func (h *Hub) Broadcast(event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		logger.Log.Error("Failed to encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	h.BroadcastRaw(payload)
}

// SendToUser implements Publisher. userID 0 是匿名连接，不能作为收件人
func (h *Hub) SendToUser(userID uint, event string, data interface{}) {
	if userID == 0 {
		return
	}
	payload, err := encode(event, data)
	if err != nil {
		logger.Log.Error("Failed to encode unicast", zap.String("event", event), zap.Error(err))
		return
	}
	h.SendRawToUser(userID, payload)
}

// BroadcastRaw delivers an already encoded frame to every local client.
func (h *Hub) BroadcastRaw(data []byte) {
	metrics.EventsPublished.WithLabelValues("broadcast").Inc()
	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	}
}

// SendRawToUser delivers an already encoded frame to one user's local connections.
func (h *Hub) SendRawToUser(userID uint, data []byte) {
	if userID == 0 {
		return
	}
	metrics.EventsPublished.WithLabelValues("unicast").Inc()
	select {
	case h.unicast <- unicast{userID: userID, data: data}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// UserConnections returns the number of live connections for a user.
func (h *Hub) UserConnections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ActiveConnections counts every live connection, anonymous included.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// Shutdown stops the loop and closes every client.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
