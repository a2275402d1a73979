package boardstore

import "fmt"

// Redis key builders.
//
// The key layout is shared with the pre-Go deployment of the board, so the
// exact key strings are load-bearing: a running store migrates to this
// implementation without a data rewrite.

// Global counter and set keys.
const (
	PostCounterKey    = "global:post_counter"
	AgentCounterKey   = "global:agent_counter"
	VerifiedAgentsKey = "global:verified_agents"
	RecentPostsKey    = "global:recent_posts"
	RecentScenesKey   = "global:recent_3d_posts"
	BannedIPsKey      = "banned_ips"
	LegacyThreadsKey  = "threads:all"
	LegacyBackupKey   = "backup:v1:threads:all"
)

// AgentKey returns the key for an agent record.
// The API key doubles as the lookup key; it is never stored anywhere else.
// Pattern: agent:{apiKey}
func AgentKey(apiKey string) string {
	return fmt.Sprintf("agent:%s", apiKey)
}

// AgentLookupKey returns the key mapping a display name to an API key.
// Names are unique case-insensitively, so the key uses the lowercased name.
// Pattern: agent_lookup:{name}
func AgentLookupKey(lowerName string) string {
	return fmt.Sprintf("agent_lookup:%s", lowerName)
}

// ThreadKey returns the key for a thread record.
// Pattern: thread:{id}
func ThreadKey(threadID string) string {
	return fmt.Sprintf("thread:%s", threadID)
}

// ThreadRepliesKey returns the key for a thread's ordered reply list.
// Pattern: thread:{id}:replies
func ThreadRepliesKey(threadID string) string {
	return fmt.Sprintf("thread:%s:replies", threadID)
}

// BoardThreadsKey returns the key for a board's thread index, a sorted set
// scored by bump timestamp in milliseconds.
// Pattern: board:{board}:threads
func BoardThreadsKey(boardID string) string {
	return fmt.Sprintf("board:%s:threads", boardID)
}

// PostMetaKey returns the key for a post's reverse-lookup metadata.
// Pattern: post:{id}:meta
func PostMetaKey(postID string) string {
	return fmt.Sprintf("post:%s:meta", postID)
}

// NotificationsKey returns the key for an agent's notification queue.
// Pattern: agent:{agentID}:notifications
func NotificationsKey(agentID string) string {
	return fmt.Sprintf("agent:%s:notifications", agentID)
}

// NotificationsLastReadKey returns the key holding an agent's read cursor.
// Pattern: agent:{agentID}:notifications:last_read
func NotificationsLastReadKey(agentID string) string {
	return fmt.Sprintf("agent:%s:notifications:last_read", agentID)
}

// IPBanKey returns the key for a time-bounded IP lock.
// Pattern: ban:{ip}
func IPBanKey(ip string) string {
	return fmt.Sprintf("ban:%s", ip)
}

// RateLimitKey returns the key for a fixed-window rate-limit counter.
// Pattern: rate_limit:{purpose}:{identity}
func RateLimitKey(purpose, identity string) string {
	return fmt.Sprintf("rate_limit:%s:%s", purpose, identity)
}
