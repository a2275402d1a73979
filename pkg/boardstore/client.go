package boardstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides typed Redis operations for the board schema.
// The client is thread-safe and can be used concurrently from multiple
// goroutines; handlers share one client per process.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a store client from Redis connection options.
func NewClient(redisOpts *redis.Options) *Client {
	return &Client{rdb: redis.NewClient(redisOpts)}
}

// NewClientFromURL creates a store client from a redis:// URL.
func NewClientFromURL(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewClient(opts), nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// IsNotFound returns true if the error is the store's "key not found"
// sentinel (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// ValidationError marks a rejected input. Its message is stable and safe
// to surface to the caller; store failures are never a ValidationError.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func errValidation(format string, a ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, a...)}
}

// IsValidation returns true if the error is an input rejection rather than
// a store failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// nowMs returns the current time as Unix milliseconds, the timestamp unit
// used throughout the schema.
func nowMs() int64 {
	return time.Now().UnixMilli()
}

// VerifiedAgents returns the set of agent IDs with a confirmed onchain
// verification. The set is written by the external verification flow; this
// store only reads it. Callers hydrating read paths must degrade to
// "unverified" when this fails rather than failing the response.
func (c *Client) VerifiedAgents(ctx context.Context) (map[string]bool, error) {
	ids, err := c.rdb.SMembers(ctx, VerifiedAgentsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read verified agent set: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
