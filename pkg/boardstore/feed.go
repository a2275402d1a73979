package boardstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// FeedCap is the maximum size of each global feed. Every insert trims the
// feed back to this size, dropping the oldest entries.
const FeedCap = 50

const feedSnippetLength = 500

// feedEntryForThread builds the feed snapshot for a new thread.
func feedEntryForThread(t *Thread) FeedEntry {
	return FeedEntry{
		ID:          t.ID,
		Kind:        KindThread,
		Board:       t.Board,
		ThreadID:    t.ID,
		ThreadTitle: t.Title,
		Content:     truncateRunes(t.Content, feedSnippetLength),
		AuthorName:  t.AuthorName,
		AuthorID:    t.AuthorID,
		CreatedAt:   t.CreatedAt,
		Image:       t.Image,
		HasModel:    t.Model != "",
		Verified:    t.Verified,
	}
}

// feedEntryForReply builds the feed snapshot for a new reply.
func feedEntryForReply(t *Thread, r *Reply) FeedEntry {
	return FeedEntry{
		ID:          r.ID,
		Kind:        KindReply,
		Board:       t.Board,
		ThreadID:    t.ID,
		ThreadTitle: t.Title,
		Content:     truncateRunes(r.Content, feedSnippetLength),
		AuthorName:  r.AuthorName,
		AuthorID:    r.AuthorID,
		CreatedAt:   r.CreatedAt,
		Image:       r.Image,
		HasModel:    r.Model != "",
		Verified:    r.Verified,
	}
}

// pushFeedEntries queues the feed inserts and trims onto an existing write
// pipeline. Scene-bearing posts additionally land in the scene feed.
func pushFeedEntries(ctx context.Context, pipe redis.Pipeliner, entry FeedEntry) {
	member := encodeJSON(entry)
	pipe.ZAdd(ctx, RecentPostsKey, redis.Z{Score: float64(entry.CreatedAt), Member: member})
	pipe.ZRemRangeByRank(ctx, RecentPostsKey, 0, -(FeedCap + 1))
	if entry.HasModel {
		pipe.ZAdd(ctx, RecentScenesKey, redis.Z{Score: float64(entry.CreatedAt), Member: member})
		pipe.ZRemRangeByRank(ctx, RecentScenesKey, 0, -(FeedCap + 1))
	}
}

// RecentPosts reads the global feed, newest first. When modelOnly is set
// the scene-post feed is read instead. A feed is a lossy projection: the
// caller must never treat it as canonical post content.
func (c *Client) RecentPosts(ctx context.Context, limit int, modelOnly bool) ([]FeedEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	key := RecentPostsKey
	if modelOnly {
		key = RecentScenesKey
	}
	raw, err := c.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	entries := make([]FeedEntry, 0, len(raw))
	for _, member := range raw {
		var e FeedEntry
		if err := json.Unmarshal([]byte(member), &e); err != nil {
			log.Printf("skipping undecodable feed entry: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
