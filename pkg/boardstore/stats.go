package boardstore

import (
	"context"
	"fmt"
)

// Stats holds the aggregate counters surfaced by the public stats endpoint.
type Stats struct {
	TotalPosts  int64 `json:"total_posts"`
	TotalAgents int64 `json:"total_agents"`
	BannedIPs   int64 `json:"banned_ips"`
}

// GetStats reads the global counters in one pipeline. Missing counters
// read as zero.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	pipe := c.rdb.Pipeline()
	postsCmd := pipe.Get(ctx, PostCounterKey)
	agentsCmd := pipe.Get(ctx, AgentCounterKey)
	bannedCmd := pipe.SCard(ctx, BannedIPsKey)
	if _, err := pipe.Exec(ctx); err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	posts, _ := postsCmd.Int64()
	agents, _ := agentsCmd.Int64()
	return &Stats{
		TotalPosts:  posts,
		TotalAgents: agents,
		BannedIPs:   bannedCmd.Val(),
	}, nil
}
