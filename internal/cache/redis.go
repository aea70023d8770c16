package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"whiteboard-backend/internal/model"
)

// RedisClient caches the tail of each session's action history so late
// joiners can warm their canvas without a full database read.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int64
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string, db int, ttl time.Duration, maxLen int64) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client, ttl: ttl, maxLen: maxLen}, nil
}

func actionKey(sessionID string) string {
	return "session:" + sessionID + ":actions"
}

// AddAction appends one persisted action to the session's cached tail.
func (r *RedisClient) AddAction(ctx context.Context, action *model.DrawingAction) error {
	key := actionKey(action.SessionID)

	data, err := json.Marshal(action)
	if err != nil {
		return err
	}

	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		log.Printf("[Redis] Failed to cache action: %v", err)
		return err
	}

	// Cap the list and refresh the expiry on every write.
	r.client.LTrim(ctx, key, -r.maxLen, -1)
	r.client.Expire(ctx, key, r.ttl)

	return nil
}

// GetRecentActions returns the cached tail of a session's history, oldest
// first. An empty result means the cache is cold, not that the session has
// no actions.
func (r *RedisClient) GetRecentActions(ctx context.Context, sessionID string) ([]model.DrawingAction, error) {
	results, err := r.client.LRange(ctx, actionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	actions := make([]model.DrawingAction, 0, len(results))
	for _, data := range results {
		var a model.DrawingAction
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			continue
		}
		actions = append(actions, a)
	}

	return actions, nil
}

// InvalidateSession drops a session's cached tail. Used after a clear so the
// cache never replays strokes that precede it.
func (r *RedisClient) InvalidateSession(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, actionKey(sessionID)).Err()
}

// Ping verifies the Redis connection, for health checks.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
