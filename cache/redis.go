package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/records-engine/generic"
)

// Event is published once per MarkStale call.
type Event struct {
	Paths []string  `json:"paths"`
	At    time.Time `json:"at"`
}

// Redis marks views stale in a shared Redis so every server instance sees
// the same signal:
//
//	SET <prefix>:stale:<path> <unix-ts> EX <ttl>
//	PUBLISH <prefix>:invalidate {"paths":[...],"at":...}
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	clock  generic.Clock
	logger *slog.Logger
}

var _ generic.StaleMarker = (*Redis)(nil)

// NewRedis creates the sink. ttl bounds how long a stale flag survives a
// reader that never clears it; zero means no expiry.
func NewRedis(addr, password string, db int, prefix string, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		clock:  generic.SystemClock,
		logger: logger,
	}
}

// HealthCheck verifies Redis connectivity.
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// MarkStale sets one flag per target and publishes a single event, all in
// one pipeline round trip.
func (r *Redis) MarkStale(ctx context.Context, targets []generic.InvalidationTarget) error {
	if len(targets) == 0 {
		return nil
	}
	now := r.clock()
	ev := Event{At: now}
	for _, t := range targets {
		ev.Paths = append(ev.Paths, t.String())
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling invalidation event: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, p := range ev.Paths {
		pipe.Set(ctx, r.staleKey(p), now.Unix(), r.ttl)
	}
	pipe.Publish(ctx, r.channel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking %d views stale: %w", len(ev.Paths), err)
	}

	r.logger.Debug("published invalidation", "channel", r.channel(), "paths", len(ev.Paths))
	return nil
}

// IsStale reports whether the flag for path is set.
func (r *Redis) IsStale(ctx context.Context, path string) (bool, error) {
	n, err := r.client.Exists(ctx, r.staleKey(path)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes the flag for path.
func (r *Redis) Clear(ctx context.Context, path string) error {
	return r.client.Del(ctx, r.staleKey(path)).Err()
}

// Listen applies invalidation events published by any instance to local.
// Blocks until ctx is cancelled. Returns nil on clean shutdown.
func (r *Redis) Listen(ctx context.Context, local *Memory) error {
	channel := r.channel()
	pubsub := r.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	r.logger.Info("subscribed to invalidation channel", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("invalidation channel closed", "channel", channel)
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Error("failed to unmarshal invalidation event", "channel", channel, "error", err)
				continue
			}
			local.MarkPaths(ev.Paths...)
		}
	}
}

func (r *Redis) staleKey(path string) string {
	return r.prefix + ":stale:" + path
}

func (r *Redis) channel() string {
	return r.prefix + ":invalidate"
}
