package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// ChannelOpportunitiesIngested carries one JSON run summary per pipeline run.
	ChannelOpportunitiesIngested = "EVENT_OPPORTUNITIES_INGESTED"
	// KeyLastRun holds the latest run summary.
	KeyLastRun = "scouted:last_run"
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

// RunEvents announces finished pipeline runs on Redis.
type RunEvents struct {
	rdb *redis.Client
}

func NewRunEvents(rdb *redis.Client) *RunEvents {
	return &RunEvents{rdb: rdb}
}

// PublishRun stores summary under KeyLastRun and publishes it on
// ChannelOpportunitiesIngested.
func (e *RunEvents) PublishRun(ctx context.Context, summary interface{}) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := e.rdb.Set(ctx, KeyLastRun, payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", KeyLastRun, err)
	}
	if err := e.rdb.Publish(ctx, ChannelOpportunitiesIngested, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelOpportunitiesIngested, err)
	}
	return nil
}

// LastRun returns the latest run summary, or nil when no run was recorded.
func (e *RunEvents) LastRun(ctx context.Context) (json.RawMessage, error) {
	b, err := e.rdb.Get(ctx, KeyLastRun).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", KeyLastRun, err)
	}
	return json.RawMessage(b), nil
}
