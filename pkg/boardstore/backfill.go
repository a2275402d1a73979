package boardstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Backfill operations rebuild the derived projections (global feeds, post
// metadata) from the canonical thread and reply records. They are the
// correctness net for the store's non-atomic multi-key writes: any
// projection a partially-failed pipeline left behind can be reconstructed
// here. Both operations are idempotent - running them twice yields the
// same projection as running them once.

var threadKeyRe = regexp.MustCompile(`^thread:(\d+)$`)

// scanThreadIDs walks the keyspace for canonical thread records.
func (c *Client) scanThreadIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := c.rdb.Scan(ctx, 0, "thread:*", 500).Iterator()
	for iter.Next(ctx) {
		if m := threadKeyRe.FindStringSubmatch(iter.Val()); m != nil {
			ids = append(ids, m[1])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan thread keys: %w", err)
	}
	return ids, nil
}

// loadThreadWithReplies fetches one thread hash and its raw reply list.
func (c *Client) loadThreadsWithReplies(ctx context.Context, ids []string) ([]*Thread, [][]Reply, error) {
	pipe := c.rdb.Pipeline()
	threadCmds := make([]*redis.MapStringStringCmd, len(ids))
	replyCmds := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		threadCmds[i] = pipe.HGetAll(ctx, ThreadKey(id))
		replyCmds[i] = pipe.LRange(ctx, ThreadRepliesKey(id), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch threads: %w", err)
	}

	var threads []*Thread
	var replies [][]Reply
	for i := range ids {
		thread, err := HashToThread(threadCmds[i].Val())
		if err != nil {
			continue
		}
		var rs []Reply
		for _, raw := range replyCmds[i].Val() {
			r, err := decodeReply(raw)
			if err != nil {
				continue
			}
			rs = append(rs, r)
		}
		threads = append(threads, thread)
		replies = append(replies, rs)
	}
	return threads, replies, nil
}

// BackfillFeeds reconstructs both global feeds from scratch by walking
// every thread and reply and re-deriving snapshots. Existing feed contents
// are discarded. Returns the number of entries written to the main feed.
func (c *Client) BackfillFeeds(ctx context.Context) (int, error) {
	ids, err := c.scanThreadIDs(ctx)
	if err != nil {
		return 0, err
	}

	threads, replies, err := c.loadThreadsWithReplies(ctx, ids)
	if err != nil {
		return 0, err
	}

	var entries []FeedEntry
	for i, thread := range threads {
		entries = append(entries, feedEntryForThread(thread))
		for j := range replies[i] {
			entries = append(entries, feedEntryForReply(thread, &replies[i][j]))
		}
	}

	// Newest first, keep the cap's worth for each feed.
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt > entries[j].CreatedAt })

	var recent, scenes []FeedEntry
	for _, e := range entries {
		if len(recent) < FeedCap {
			recent = append(recent, e)
		}
		if e.HasModel && len(scenes) < FeedCap {
			scenes = append(scenes, e)
		}
		if len(recent) >= FeedCap && len(scenes) >= FeedCap {
			break
		}
	}

	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, RecentPostsKey)
		for _, e := range recent {
			pipe.ZAdd(ctx, RecentPostsKey, redis.Z{Score: float64(e.CreatedAt), Member: encodeJSON(e)})
		}
		pipe.Del(ctx, RecentScenesKey)
		for _, e := range scenes {
			pipe.ZAdd(ctx, RecentScenesKey, redis.Z{Score: float64(e.CreatedAt), Member: encodeJSON(e)})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite feeds: %w", err)
	}
	return len(recent), nil
}

// BackfillPostMeta rebuilds the post-meta reverse index for every thread
// and reply, for stores predating the index or repaired after partial
// writes. Returns the number of records written.
func (c *Client) BackfillPostMeta(ctx context.Context) (int, error) {
	ids, err := c.scanThreadIDs(ctx)
	if err != nil {
		return 0, err
	}

	threads, replies, err := c.loadThreadsWithReplies(ctx, ids)
	if err != nil {
		return 0, err
	}

	written := 0
	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, thread := range threads {
			if thread.AuthorID == "" {
				continue
			}
			pipe.HSet(ctx, PostMetaKey(thread.ID), MetaToHash(&PostMeta{
				AuthorID: thread.AuthorID,
				ThreadID: thread.ID,
				Kind:     KindThread,
			}))
			written++
			for _, r := range replies[i] {
				if r.AuthorID == "" {
					continue
				}
				pipe.HSet(ctx, PostMetaKey(r.ID), MetaToHash(&PostMeta{
					AuthorID: r.AuthorID,
					ThreadID: thread.ID,
					Kind:     KindReply,
				}))
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write post meta: %w", err)
	}
	return written, nil
}
