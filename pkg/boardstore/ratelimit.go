package boardstore

import (
	"context"
	"fmt"
	"time"
)

// Named fixed-window limits. The registration and read windows match the
// pre-Go deployment; the per-minute posting windows apply to thread and
// reply creation combined.
const (
	RegisterLimit  = 30
	RegisterWindow = 24 * time.Hour

	ThreadLimit  = 5
	ThreadWindow = time.Hour

	PostAgentLimit = 5
	PostIPLimit    = 10
	PostWindow     = time.Minute

	ReadLimit  = 120
	ReadWindow = time.Hour
)

// Rate-limit purposes, combined with an identity by RateLimitKey.
const (
	PurposeRegister   = "register"
	PurposeThread     = "thread"
	PurposePostAgent  = "post:agent"
	PurposePostIP     = "post:ip"
	PurposeReadBoards = "read:boards"
)

// RateLimitStatus reports the state of a window after consuming one
// request from it.
type RateLimitStatus struct {
	Limit     int
	Count     int64
	Remaining int64
	ResetAt   int64 // unix seconds when the window expires
	Exceeded  bool
}

// CheckRateLimit consumes one request from the fixed window identified by
// (purpose, identity) and reports whether the caller exceeded the limit.
//
// Fixed-window counting is approximate on purpose: a single INCR plus a
// one-time EXPIRE costs one round trip, and boundary bursts at window edges
// are an accepted trade-off. The post-increment count is compared against
// the limit, so the N+1th request in a window with limit N is the first
// rejected one.
func (c *Client) CheckRateLimit(ctx context.Context, purpose, identity string, limit int, window time.Duration) (*RateLimitStatus, error) {
	key := RateLimitKey(purpose, identity)
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return nil, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitStatus{
		Limit:     limit,
		Count:     count,
		Remaining: remaining,
		ResetAt:   time.Now().Unix() + int64(ttl.Seconds()),
		Exceeded:  count > int64(limit),
	}, nil
}

// RateLimitUsage is a read-only snapshot of one counter, for the admin
// inspection surface.
type RateLimitUsage struct {
	Key        string `json:"key"`
	Count      int64  `json:"count"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// inspectedPurposes are the per-IP counters exposed by the admin surface.
var inspectedPurposes = []string{PurposeReadBoards, PurposeRegister, PurposePostIP}

// RateLimitStatusForIP reports the per-IP counters without consuming from
// them.
func (c *Client) RateLimitStatusForIP(ctx context.Context, ip string) ([]RateLimitUsage, error) {
	usages := make([]RateLimitUsage, 0, len(inspectedPurposes))
	for _, purpose := range inspectedPurposes {
		key := RateLimitKey(purpose, ip)
		count, err := c.rdb.Get(ctx, key).Int64()
		if err != nil && !IsNotFound(err) {
			return nil, fmt.Errorf("failed to read rate limit counter %s: %w", key, err)
		}
		ttl, err := c.rdb.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read rate limit TTL %s: %w", key, err)
		}
		usages = append(usages, RateLimitUsage{Key: key, Count: count, TTLSeconds: int64(ttl.Seconds())})
	}
	return usages, nil
}

// ClearRateLimitsForIP deletes the per-IP counters and returns the cleared
// keys.
func (c *Client) ClearRateLimitsForIP(ctx context.Context, ip string) ([]string, error) {
	keys := make([]string, 0, len(inspectedPurposes))
	for _, purpose := range inspectedPurposes {
		keys = append(keys, RateLimitKey(purpose, ip))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return nil, fmt.Errorf("failed to clear rate limit counters: %w", err)
	}
	return keys, nil
}
