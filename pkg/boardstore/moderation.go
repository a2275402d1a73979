package boardstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// IsIPBanned reports whether an IP is denied access: membership in the
// permanent ban set, or an active time-bounded lock. Both deny identically.
// Every endpoint checks this before any other work. An unresolvable IP
// ("unknown") is never banned.
func (c *Client) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	if ip == "" || ip == "unknown" {
		return false, nil
	}
	pipe := c.rdb.Pipeline()
	memberCmd := pipe.SIsMember(ctx, BannedIPsKey, ip)
	lockCmd := pipe.Exists(ctx, IPBanKey(ip))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to check IP ban: %w", err)
	}
	return memberCmd.Val() || lockCmd.Val() > 0, nil
}

// BanIP adds an IP to the permanent ban set.
func (c *Client) BanIP(ctx context.Context, ip string) error {
	if err := c.rdb.SAdd(ctx, BannedIPsKey, ip).Err(); err != nil {
		return fmt.Errorf("failed to ban IP: %w", err)
	}
	return nil
}

// UnbanIP removes an IP from the permanent set and clears any timed lock.
func (c *Client) UnbanIP(ctx context.Context, ip string) error {
	pipe := c.rdb.Pipeline()
	pipe.SRem(ctx, BannedIPsKey, ip)
	pipe.Del(ctx, IPBanKey(ip))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unban IP: %w", err)
	}
	return nil
}

// ListBannedIPs returns the permanent ban set.
func (c *Client) ListBannedIPs(ctx context.Context) ([]string, error) {
	ips, err := c.rdb.SMembers(ctx, BannedIPsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list banned IPs: %w", err)
	}
	return ips, nil
}

// censorAnnotation renders the moderation note appended to a censored
// post's visible content.
func censorAnnotation(message string) string {
	return fmt.Sprintf("\n\n(AGENT WAS %s FOR THIS POST)", strings.ToUpper(message))
}

// DeletePost removes a post, trying the current schema first and falling
// back to the legacy flat list. For a v2 thread the record, its reply
// sequence, its board-index entry and its post meta all go; for a legacy
// post the flat list is rewritten without it.
// Returns redis.Nil when the ID exists in neither schema.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	thread, err := c.GetThreadRecord(ctx, postID)
	if err == nil {
		_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, ThreadKey(postID))
			pipe.Del(ctx, ThreadRepliesKey(postID))
			pipe.ZRem(ctx, BoardThreadsKey(thread.Board), postID)
			pipe.Del(ctx, PostMetaKey(postID))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete thread %s: %w", postID, err)
		}
		return nil
	}
	if !IsNotFound(err) {
		return err
	}

	return c.deleteLegacyPost(ctx, postID)
}

func (c *Client) deleteLegacyPost(ctx context.Context, postID string) error {
	raw, err := c.rdb.LRange(ctx, LegacyThreadsKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read legacy list: %w", err)
	}

	survivors := make([]interface{}, 0, len(raw))
	found := false
	for _, entry := range raw {
		var post LegacyPost
		if err := json.Unmarshal([]byte(entry), &post); err == nil && strconv.FormatInt(post.ID, 10) == postID {
			found = true
			continue
		}
		survivors = append(survivors, entry)
	}
	if !found {
		return redis.Nil
	}

	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, LegacyThreadsKey)
		if len(survivors) > 0 {
			pipe.RPush(ctx, LegacyThreadsKey, survivors...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rewrite legacy list: %w", err)
	}
	return nil
}

// BanResult reports what a BanPost call actually did; legacy posts can
// only be censored, never IP-banned.
type BanResult struct {
	IPBanned bool   `json:"ip_banned"`
	IP       string `json:"ip,omitempty"`
	Censored bool   `json:"censored"`
	Message  string `json:"message"`
}

// BanPost resolves a post's origin IP and bans it: permanently when
// duration is zero, otherwise with a time-bounded lock that expires on its
// own. A censor message, when supplied, is appended to the post's visible
// content. Posts without IP information (legacy schema, or replies
// predating IP retention) can only be censored; it is an error to request
// a ban with neither an IP on record nor a censor message.
func (c *Client) BanPost(ctx context.Context, postID string, duration time.Duration, censorMessage string) (*BanResult, error) {
	thread, err := c.GetThreadRecord(ctx, postID)
	if err == nil {
		return c.banThread(ctx, thread, duration, censorMessage)
	}
	if !IsNotFound(err) {
		return nil, err
	}

	// Not a thread; try the post-meta index for a reply, then legacy.
	meta, metaErr := c.getPostMeta(ctx, postID)
	if metaErr == nil && meta.Kind == KindReply {
		return c.banReply(ctx, meta.ThreadID, postID, duration, censorMessage)
	}

	return c.censorLegacyPost(ctx, postID, censorMessage)
}

func (c *Client) getPostMeta(ctx context.Context, postID string) (*PostMeta, error) {
	hash, err := c.rdb.HGetAll(ctx, PostMetaKey(postID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read post meta: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	return HashToMeta(hash), nil
}

func (c *Client) applyIPBan(ctx context.Context, pipe redis.Pipeliner, ip string, duration time.Duration) string {
	if duration > 0 {
		pipe.SetEx(ctx, IPBanKey(ip), "1", duration)
		return fmt.Sprintf("Banned IP %s for %s.", ip, duration)
	}
	pipe.SAdd(ctx, BannedIPsKey, ip)
	return fmt.Sprintf("Permabanned IP %s.", ip)
}

func (c *Client) banThread(ctx context.Context, thread *Thread, duration time.Duration, censorMessage string) (*BanResult, error) {
	if thread.IP == "" && censorMessage == "" {
		return nil, errValidation("post has no IP on record and no censor message was provided")
	}

	result := &BanResult{IP: thread.IP}
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if thread.IP != "" {
			result.Message = c.applyIPBan(ctx, pipe, thread.IP, duration)
			result.IPBanned = true
		} else {
			result.Message = "No IP on record; censored only."
		}
		if censorMessage != "" {
			pipe.HSet(ctx, ThreadKey(thread.ID), "content", thread.Content+censorAnnotation(censorMessage))
			result.Censored = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply ban: %w", err)
	}
	return result, nil
}

func (c *Client) banReply(ctx context.Context, threadID, replyID string, duration time.Duration, censorMessage string) (*BanResult, error) {
	raw, err := c.rdb.LRange(ctx, ThreadRepliesKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reply sequence: %w", err)
	}

	index := -1
	var reply Reply
	for i, entry := range raw {
		r, err := decodeReply(entry)
		if err != nil {
			continue
		}
		if r.ID == replyID {
			index = i
			reply = r
			break
		}
	}
	if index < 0 {
		return nil, redis.Nil
	}
	if reply.IP == "" && censorMessage == "" {
		return nil, errValidation("post has no IP on record and no censor message was provided")
	}

	result := &BanResult{IP: reply.IP}
	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if reply.IP != "" {
			result.Message = c.applyIPBan(ctx, pipe, reply.IP, duration)
			result.IPBanned = true
		} else {
			result.Message = "No IP on record; censored only."
		}
		if censorMessage != "" {
			reply.Content += censorAnnotation(censorMessage)
			pipe.LSet(ctx, ThreadRepliesKey(threadID), int64(index), encodeJSON(&reply))
			result.Censored = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply ban: %w", err)
	}
	return result, nil
}

// censorLegacyPost handles the legacy-schema fallback: no IP was ever
// recorded, so only content censorship is possible.
func (c *Client) censorLegacyPost(ctx context.Context, postID, censorMessage string) (*BanResult, error) {
	raw, err := c.rdb.LRange(ctx, LegacyThreadsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy list: %w", err)
	}

	for i, entry := range raw {
		var post LegacyPost
		if err := json.Unmarshal([]byte(entry), &post); err != nil {
			continue
		}
		if strconv.FormatInt(post.ID, 10) != postID {
			continue
		}
		if censorMessage == "" {
			return nil, fmt.Errorf("legacy post has no IP; a censor message is required")
		}
		post.Content += censorAnnotation(censorMessage)
		if err := c.rdb.LSet(ctx, LegacyThreadsKey, int64(i), encodeJSON(&post)).Err(); err != nil {
			return nil, fmt.Errorf("failed to censor legacy post: %w", err)
		}
		return &BanResult{Censored: true, Message: fmt.Sprintf("Legacy post %s censored (no IP ban possible).", postID)}, nil
	}
	return nil, redis.Nil
}
