package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandai/pkbattle/src/domain/activity"
)

const DefaultChannel = "pkbattle:activity"

// RedisDispatcher publishes each event as JSON on a Pub/Sub channel.
type RedisDispatcher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisDispatcher(client redis.UniversalClient, channel string) *RedisDispatcher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisDispatcher{client: client, channel: channel}
}

type redisEvent struct {
	Name       string         `json:"name"`
	BattleID   string         `json:"battle_id"`
	UserID     string         `json:"user_id,omitempty"`
	RoomID     string         `json:"room_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, events []*activity.Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := d.client.Pipeline()
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return err
		}
		payload, err := json.Marshal(redisEvent{
			Name:       string(event.Name),
			BattleID:   string(event.BattleID),
			UserID:     string(event.UserID),
			RoomID:     string(event.RoomID),
			Properties: event.Properties,
			Timestamp:  event.Timestamp,
		})
		if err != nil {
			return err
		}
		pipe.Publish(ctx, d.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", activity.ErrDispatchFailed, err)
	}
	return nil
}
