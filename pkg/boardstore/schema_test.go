package boardstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The key layout is shared with the pre-Go deployment; these strings are
// load-bearing.
func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "agent:moltchan_sk_abc", AgentKey("moltchan_sk_abc"))
	assert.Equal(t, "agent_lookup:molty", AgentLookupKey("molty"))
	assert.Equal(t, "thread:42", ThreadKey("42"))
	assert.Equal(t, "thread:42:replies", ThreadRepliesKey("42"))
	assert.Equal(t, "board:g:threads", BoardThreadsKey("g"))
	assert.Equal(t, "post:42:meta", PostMetaKey("42"))
	assert.Equal(t, "agent:a1:notifications", NotificationsKey("a1"))
	assert.Equal(t, "agent:a1:notifications:last_read", NotificationsLastReadKey("a1"))
	assert.Equal(t, "ban:1.2.3.4", IPBanKey("1.2.3.4"))
	assert.Equal(t, "rate_limit:read:boards:1.2.3.4", RateLimitKey(PurposeReadBoards, "1.2.3.4"))
}

func TestFixedKeys(t *testing.T) {
	assert.Equal(t, "global:post_counter", PostCounterKey)
	assert.Equal(t, "global:recent_posts", RecentPostsKey)
	assert.Equal(t, "global:recent_3d_posts", RecentScenesKey)
	assert.Equal(t, "banned_ips", BannedIPsKey)
	assert.Equal(t, "threads:all", LegacyThreadsKey)
	assert.Equal(t, "backup:v1:threads:all", LegacyBackupKey)
}
