package realtime

import (
	"context"
	"encoding/json"

	"quill/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannel = "quill:events"

// envelope 是跨实例转发的 Redis 消息，UserID 为 0 表示广播
type envelope struct {
	UserID uint            `json:"user_id,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBroker publishes events on a Redis channel; every instance subscribed
// to it delivers them to its local hub.
type RedisBroker struct {
	rdb *redis.Client
	hub *Hub
}

func NewRedisBroker(redisURL string, hub *Hub) (*RedisBroker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisBroker{rdb: rdb, hub: hub}, nil
}

func (b *RedisBroker) Broadcast(event string, data interface{}) {
	b.publish(0, event, data)
}

func (b *RedisBroker) SendToUser(userID uint, event string, data interface{}) {
	if userID == 0 {
		return
	}
	b.publish(userID, event, data)
}

func (b *RedisBroker) publish(userID uint, event string, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		logger.Log.Error("Failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	msg, _ := json.Marshal(envelope{UserID: userID, Frame: frame})
	if err := b.rdb.Publish(context.Background(), redisChannel, msg).Err(); err != nil {
		// Redis 不可用时退回本地投递
		logger.Log.Warn("Redis publish failed, delivering locally", zap.Error(err))
		b.deliver(userID, frame)
	}
}

func (b *RedisBroker) deliver(userID uint, frame []byte) {
	if userID == 0 {
		b.hub.BroadcastRaw(frame)
		return
	}
	b.hub.SendRawToUser(userID, frame)
}

// Run subscribes to the channel until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, redisChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				logger.Log.Warn("Dropping malformed event", zap.Error(err))
				continue
			}
			b.deliver(env.UserID, env.Frame)
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
