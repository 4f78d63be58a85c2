package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/redis/go-redis/v9"
)

// Redis implements the session Store interface on top of a Redis server. Each thread is a JSON string
// value under "<prefix>thread:<id>" without expiry.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOptions holds the connection settings for NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis connects to the Redis server and verifies the connection with a PING.
func NewRedis(ctx context.Context, opts RedisOptions) (Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return Redis{}, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return Redis{client: client, prefix: opts.Prefix}, nil
}

func (r Redis) threadKey(threadID string) string {
	return r.prefix + "thread:" + threadID
}

// Get retrieves the thread stored under threadID. It returns models.ErrThreadNotFound if the key is
// missing.
func (r Redis) Get(ctx context.Context, threadID string) (models.Thread, error) {
	v, err := r.client.Get(ctx, r.threadKey(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Thread{}, models.ErrThreadNotFound
		}
		return models.Thread{}, fmt.Errorf("failed to get thread: %w", err)
	}

	var thread models.Thread
	if err := json.Unmarshal(v, &thread); err != nil {
		return models.Thread{}, fmt.Errorf("failed to unmarshal thread: %w", err)
	}
	return thread, nil
}

// Set stores the thread, replacing any previous value.
func (r Redis) Set(ctx context.Context, thread models.Thread) error {
	v, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	if err := r.client.Set(ctx, r.threadKey(thread.ID), v, 0).Err(); err != nil {
		return fmt.Errorf("failed to set thread: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r Redis) Close() error {
	return r.client.Close()
}
