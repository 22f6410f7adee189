package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReminderEvent is the payload published on the reminder channel
type ReminderEvent struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes reminders on a pub/sub channel for other
// processes (desktop notifiers, bridges) to pick up
type RedisNotifier struct {
	client  publisher
	channel string
	now     func() time.Time
}

func NewRedisNotifier(addr, channel string) *RedisNotifier {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisNotifier{client: client, channel: channel, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, title, body string) error {
	data, err := json.Marshal(ReminderEvent{Title: title, Body: body, SentAt: n.now().UTC()})
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	if c, ok := n.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
