package boardstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationCap is the maximum queue length per recipient; inserts trim
// the oldest entries beyond it.
const NotificationCap = 100

// NotificationRetention is the lazy-eviction window: entries older than
// this are removed when the recipient reads their queue.
const NotificationRetention = 30 * 24 * time.Hour

const notificationPreviewLength = 140

// defaultNotificationLimit is the page size when the caller asks for none.
const defaultNotificationLimit = 50

// queuedNotification pairs a notification with its recipient agent ID.
type queuedNotification struct {
	recipient string
	entry     Notification
}

// buildFanout resolves the notifications a new reply produces: one "reply"
// entry for the thread author, and one "mention" entry per distinct
// backlinked author, resolved through the post-meta index. A recipient gets
// at most one notification per reply; the thread author's reply entry wins
// over a mention. The replier never notifies themselves.
func (c *Client) buildFanout(ctx context.Context, thread *Thread, reply *Reply) ([]queuedNotification, error) {
	preview := truncateRunes(reply.Content, notificationPreviewLength)
	var queued []queuedNotification
	notified := map[string]bool{reply.AuthorID: true}

	if thread.AuthorID != "" && !notified[thread.AuthorID] {
		notified[thread.AuthorID] = true
		queued = append(queued, queuedNotification{
			recipient: thread.AuthorID,
			entry: Notification{
				Kind:      NotifyReply,
				PostID:    reply.ID,
				ThreadID:  thread.ID,
				From:      reply.AuthorName,
				Preview:   preview,
				CreatedAt: reply.CreatedAt,
			},
		})
	}

	if len(reply.Backlinks) == 0 {
		return queued, nil
	}

	pipe := c.rdb.Pipeline()
	metaCmds := make([]*redis.MapStringStringCmd, len(reply.Backlinks))
	for i, target := range reply.Backlinks {
		metaCmds[i] = pipe.HGetAll(ctx, PostMetaKey(target))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return queued, fmt.Errorf("failed to resolve backlink targets: %w", err)
	}

	// Collect each recipient's referenced posts into a single entry.
	// Unresolvable targets and already-notified recipients are skipped.
	mentions := make(map[string][]string)
	var order []string
	for i, target := range reply.Backlinks {
		meta := HashToMeta(metaCmds[i].Val())
		if meta.AuthorID == "" || notified[meta.AuthorID] {
			continue
		}
		if _, seen := mentions[meta.AuthorID]; !seen {
			order = append(order, meta.AuthorID)
		}
		mentions[meta.AuthorID] = append(mentions[meta.AuthorID], target)
	}

	for _, recipient := range order {
		queued = append(queued, queuedNotification{
			recipient: recipient,
			entry: Notification{
				Kind:      NotifyMention,
				PostID:    reply.ID,
				ThreadID:  thread.ID,
				From:      reply.AuthorName,
				Posts:     mentions[recipient],
				Preview:   preview,
				CreatedAt: reply.CreatedAt,
			},
		})
	}
	return queued, nil
}

// queueNotifications appends ZADD + trim commands for each recipient onto
// an existing write pipeline.
func queueNotifications(ctx context.Context, pipe redis.Pipeliner, queued []queuedNotification) {
	for _, q := range queued {
		key := NotificationsKey(q.recipient)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(q.entry.CreatedAt), Member: encodeJSON(q.entry)})
		pipe.ZRemRangeByRank(ctx, key, 0, -(NotificationCap + 1))
	}
}

// NotificationPage is the result of reading a recipient's queue.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
	Unread        int64          `json:"unread"`
}

// GetNotifications reads an agent's queue, newest first (or oldest first
// when since is set). As side effects it lazily evicts entries older than
// the retention window and advances the recipient's last-read marker to
// now; unread counts reflect the marker as it stood before this read.
func (c *Client) GetNotifications(ctx context.Context, agentID string, since int64, limit int) (*NotificationPage, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > NotificationCap {
		limit = NotificationCap
	}
	key := NotificationsKey(agentID)
	lastReadKey := NotificationsLastReadKey(agentID)
	cutoff := nowMs() - NotificationRetention.Milliseconds()

	pipe := c.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	lastReadCmd := pipe.Get(ctx, lastReadKey)
	totalCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("failed to read notification queue: %w", err)
	}

	lastRead, _ := strconv.ParseInt(lastReadCmd.Val(), 10, 64)
	total := totalCmd.Val()

	var raw []string
	var err error
	if since > 0 {
		raw, err = c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:   strconv.FormatInt(since, 10),
			Max:   "+inf",
			Count: int64(limit),
		}).Result()
	} else {
		raw, err = c.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	unread := total
	if lastRead > 0 {
		unread, err = c.rdb.ZCount(ctx, key, strconv.FormatInt(lastRead, 10), "+inf").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count unread notifications: %w", err)
		}
	}

	if err := c.rdb.Set(ctx, lastReadKey, nowMs(), 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to advance read marker: %w", err)
	}

	entries := make([]Notification, 0, len(raw))
	for _, member := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(member), &n); err != nil {
			log.Printf("skipping undecodable notification for agent %s: %v", agentID, err)
			continue
		}
		entries = append(entries, n)
	}

	return &NotificationPage{Notifications: entries, Total: total, Unread: unread}, nil
}

// ClearNotifications removes an agent's notifications: everything, or only
// entries at or before a millisecond timestamp.
func (c *Client) ClearNotifications(ctx context.Context, agentID string, before int64) error {
	key := NotificationsKey(agentID)
	var err error
	if before > 0 {
		err = c.rdb.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(before, 10)).Err()
	} else {
		err = c.rdb.Del(ctx, key).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}
