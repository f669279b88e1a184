package redis

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// HoldKeyPrefix namespaces capacity hold keys so the expiry watcher can
// tell them apart from session cache entries.
const HoldKeyPrefix = "capacity_hold:"

// Holds hands out short-lived capacity reservations. A hold keeps two
// concurrent registrations for the same user out of the insert path;
// capacity itself is enforced by the conditional insert in the database.
type Holds struct {
	Client *redis.Client
}

func NewHolds(client *redis.Client) *Holds {
	return &Holds{Client: client}
}

func holdKey(eventID, userID string) string {
	return HoldKeyPrefix + eventID + ":" + userID
}

// holdDuration reads CAPACITY_HOLD_TTL_SECONDS, defaulting to 30 seconds.
// Holds only need to outlive the DB round-trip of a single registration.
func (h *Holds) holdDuration() time.Duration {
	defaultDuration := 30 * time.Second

	ttlStr := os.Getenv("CAPACITY_HOLD_TTL_SECONDS")
	if ttlStr == "" {
		return defaultDuration
	}
	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil || ttlSec <= 0 {
		return defaultDuration
	}
	return time.Duration(ttlSec) * time.Second
}

// Acquire reserves the user's slot on the event. Returns false when another
// registration attempt for the same (event, user) is already in flight.
func (h *Holds) Acquire(ctx context.Context, eventID, userID, registrationID string) (bool, error) {
	return h.Client.SetNX(ctx, holdKey(eventID, userID), registrationID, h.holdDuration()).Result()
}

// Release drops the hold, but only if it still belongs to registrationID.
// A hold that expired and was re-acquired by a retry is left alone.
func (h *Holds) Release(ctx context.Context, eventID, userID, registrationID string) error {
	key := holdKey(eventID, userID)
	val, err := h.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == registrationID {
		_, err = h.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// Held reports whether a hold exists for the (event, user) pair.
func (h *Holds) Held(ctx context.Context, eventID, userID string) (bool, error) {
	_, err := h.Client.Get(ctx, holdKey(eventID, userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ParseExpiredKey splits an expired hold key back into (eventID, userID).
// Returns ok=false for keys outside the hold namespace.
func ParseExpiredKey(key string) (eventID, userID string, ok bool) {
	if len(key) <= len(HoldKeyPrefix) || key[:len(HoldKeyPrefix)] != HoldKeyPrefix {
		return "", "", false
	}
	rest := key[len(HoldKeyPrefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
