package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// sessionsChannel is the Redis channel carrying coaching session events
	// for dashboard consumers.
	sessionsChannel = "coach:sessions"
	publishTimeout  = 5 * time.Second
)

// SessionEvent is the message published for dashboard consumers.
type SessionEvent struct {
	Event     string          `json:"event"` // session_started | session_ended | frame_stats
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	At        int64           `json:"at"`
}

// EventPublisher publishes coaching session events. Nil-safe consumers treat
// a nil publisher as "no dashboard fan-out configured".
type EventPublisher interface {
	PublishSessionEvent(event, sessionID string, data interface{}) error
}

// RedisPubSub publishes session events over Redis pub/sub so dashboard
// instances can observe live sessions.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for session events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishSessionEvent publishes one event on the sessions channel.
func (r *RedisPubSub) PublishSessionEvent(event, sessionID string, data interface{}) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	body, err := json.Marshal(SessionEvent{Event: event, SessionID: sessionID, Data: raw, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, sessionsChannel, body).Err()
}

// SubscribeSessions subscribes to the session event channel and calls handler
// for each event. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeSessions(handler func(ev SessionEvent)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, sessionsChannel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("bad session event payload", zap.Error(err))
					continue
				}
				handler(ev)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
