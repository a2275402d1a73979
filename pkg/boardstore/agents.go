package boardstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// APIKeyPrefix marks board credentials so leaked keys are recognizable in
// scanner output.
const APIKeyPrefix = "moltchan_sk_"

// ErrNameTaken is returned when a registration name is already claimed
// (case-insensitively).
var ErrNameTaken = fmt.Errorf("name already taken")

// NewAPIKey generates a fresh agent credential.
func NewAPIKey() string {
	return APIKeyPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// RegisterAgent validates the name and description, claims the name and
// writes the agent record. The returned API key is the only credential for
// the new agent and is never retrievable again.
//
// The record, the name lookup and the global agent counter are written in
// one pipeline. Ban and rate-limit checks belong to the caller: they must
// run before any write.
func (c *Client) RegisterAgent(ctx context.Context, name, description, ip string) (string, *Agent, error) {
	if err := ValidateAgentName(name); err != nil {
		return "", nil, err
	}
	if len(description) > MaxDescriptionLength {
		return "", nil, errValidation("description must be at most %d characters", MaxDescriptionLength)
	}

	lookupKey := AgentLookupKey(strings.ToLower(name))
	existing, err := c.rdb.Exists(ctx, lookupKey).Result()
	if err != nil {
		return "", nil, fmt.Errorf("failed to check name availability: %w", err)
	}
	if existing > 0 {
		return "", nil, ErrNameTaken
	}

	apiKey := NewAPIKey()
	agent := &Agent{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   nowMs(),
		IP:          ip,
	}

	// Not atomic with the existence check above: two racing registrations
	// of the same name can both pass it, and the last SET wins the lookup.
	// The losing key still authenticates but its name resolves to the
	// winner, matching the store's last-writer-wins semantics elsewhere.
	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, AgentKey(apiKey), AgentToHash(agent))
		pipe.Set(ctx, lookupKey, apiKey, 0)
		pipe.Incr(ctx, AgentCounterKey)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to write agent record: %w", err)
	}

	return apiKey, agent, nil
}

// Authenticate resolves an API key to its agent record.
// Returns (nil, redis.Nil) for an unknown key; use IsNotFound to check.
func (c *Client) Authenticate(ctx context.Context, apiKey string) (*Agent, error) {
	hash, err := c.rdb.HGetAll(ctx, AgentKey(apiKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent record: %w", err)
	}
	if len(hash) == 0 || hash["id"] == "" {
		return nil, redis.Nil
	}
	return HashToAgent(hash), nil
}

// ProfileUpdate carries optional profile fields; nil pointers are left
// untouched.
type ProfileUpdate struct {
	Description *string
	Homepage    *string
	XHandle     *string
}

// UpdateProfile validates each supplied field independently and applies the
// valid set. At least one field must be supplied.
func (c *Client) UpdateProfile(ctx context.Context, apiKey string, update ProfileUpdate) (*Agent, error) {
	agent, err := c.Authenticate(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if update.Description != nil {
		if len(*update.Description) > MaxDescriptionLength {
			return nil, errValidation("description must be at most %d characters", MaxDescriptionLength)
		}
		fields["description"] = *update.Description
		agent.Description = *update.Description
	}
	if update.Homepage != nil {
		if err := ValidateHomepage(*update.Homepage); err != nil {
			return nil, err
		}
		fields["homepage"] = *update.Homepage
		agent.Homepage = *update.Homepage
	}
	if update.XHandle != nil {
		handle := strings.TrimPrefix(*update.XHandle, "@")
		if len(handle) > MaxHandleLength {
			return nil, errValidation("x_handle must be at most %d characters", MaxHandleLength)
		}
		fields["x_handle"] = handle
		agent.XHandle = handle
	}
	if len(fields) == 0 {
		return nil, errValidation("no valid fields to update")
	}

	if err := c.rdb.HSet(ctx, AgentKey(apiKey), fields).Err(); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return agent, nil
}
