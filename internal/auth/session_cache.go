package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "session:"

// CachedSession is the Redis mirror of a sessions row; it lets the auth
// middleware validate and revoke without hitting Postgres on every request.
type CachedSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionCache stores live sessions in Redis keyed by session id.
type SessionCache struct {
	Client *redis.Client
}

func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{Client: client}
}

// Get returns the cached session, or nil if absent or expired.
func (c *SessionCache) Get(ctx context.Context, sessionID string) (*CachedSession, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	raw, err := c.Client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var cached CachedSession
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached session: %w", err)
	}
	if time.Now().After(cached.ExpiresAt) {
		return nil, nil
	}
	return &cached, nil
}

// Put stores a session with a TTL matching its expiry.
func (c *SessionCache) Put(ctx context.Context, sessionID, userID string, expiresAt time.Time) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	raw, err := json.Marshal(CachedSession{UserID: userID, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	if err := c.Client.Set(ctx, sessionKeyPrefix+sessionID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

// Drop removes a session from the cache; revocation takes effect immediately.
func (c *SessionCache) Drop(ctx context.Context, sessionID string) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return c.Client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
