package notify

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultChannel = "library:notifications"

// RedisSink publishes events as JSON on a pub/sub channel for downstream
// consumers (chat bots, mailers).
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(redisURL, channel string) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}, nil
}

func (s *RedisSink) Notify(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

func (s *RedisSink) Close() error { return s.client.Close() }

type wireEvent struct {
	Event
	Text string `json:"text"`
}

func encode(e Event) ([]byte, error) {
	b, err := json.Marshal(wireEvent{Event: e, Text: e.Text()})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return b, nil
}
