// Package presence tracks which declared identities currently hold a live
// connection, in Redis. Everything here is best-effort: the broker works
// the same with or without a reachable Redis.
package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

type Tracker struct {
	rdb *redis.Client
}

// NewTracker wraps the given Redis client. A nil client yields a tracker
// whose operations are no-ops.
func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb}
}

func (t *Tracker) SetOnline(ctx context.Context, userID string) {
	t.set(ctx, userID, statusOnline)
}

func (t *Tracker) SetOffline(ctx context.Context, userID string) {
	t.set(ctx, userID, statusOffline)
}

func (t *Tracker) set(ctx context.Context, userID, status string) {
	if t.rdb == nil {
		return
	}
	key := fmt.Sprintf("presence:%s", userID)
	err := t.rdb.HSet(ctx, key, map[string]interface{}{
		"status":       status,
		"last_seen_at": time.Now().Unix(),
	}).Err()
	if err != nil {
		log.Printf("[Presence] failed to mark %s %s: %v", userID, status, err)
	}
}

// Status returns the stored presence of a user, defaulting to offline for
// users never seen.
func (t *Tracker) Status(ctx context.Context, userID string) (string, error) {
	if t.rdb == nil {
		return statusOffline, nil
	}
	key := fmt.Sprintf("presence:%s", userID)
	status, err := t.rdb.HGet(ctx, key, "status").Result()
	if err == redis.Nil {
		return statusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}
