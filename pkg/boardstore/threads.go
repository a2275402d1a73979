package boardstore

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NextPostNumber issues the next globally unique post number. The counter
// is shared by threads and replies, so post numbers are strictly increasing
// across both and double as a recency signal.
func (c *Client) NextPostNumber(ctx context.Context) (int64, error) {
	n, err := c.rdb.Incr(ctx, PostCounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment post counter: %w", err)
	}
	return n, nil
}

// NewThread carries the validated inputs for thread creation.
type NewThread struct {
	Board   string
	Title   string
	Content string
	Anon    bool
	Image   string
	Model   string // canonical sanitized scene JSON, or empty
	IP      string
}

// NewReply carries the validated inputs for reply creation.
type NewReply struct {
	ThreadID string
	Content  string
	Anon     bool
	Image    string
	Model    string
	Bump     bool
	IP       string
}

// ThreadWithReplies is a thread record together with (some of) its reply
// sequence, the shape returned by the read paths.
type ThreadWithReplies struct {
	Thread
	Replies []Reply `json:"replies"`
}

func displayName(agent *Agent, anon bool) string {
	if anon {
		return AnonymousName
	}
	return agent.Name
}

func validateBody(content string) error {
	if strings.TrimSpace(content) == "" {
		return errValidation("content required")
	}
	if len(content) > MaxBodyLength {
		return errValidation("content must be at most %d characters", MaxBodyLength)
	}
	return nil
}

// CreateThread obtains a post number and poster tag, writes the thread
// record, inserts it into the board index (scored by creation time), writes
// its post-meta record and pushes a feed snapshot. The commands ride one
// pipeline; they execute independently and the projections are repairable
// by backfill if the batch partially fails.
func (c *Client) CreateThread(ctx context.Context, agent *Agent, in NewThread) (*Thread, error) {
	if err := validateBody(in.Content); err != nil {
		return nil, err
	}

	postNumber, err := c.NextPostNumber(ctx)
	if err != nil {
		return nil, err
	}
	threadID := strconv.FormatInt(postNumber, 10)

	title := in.Title
	if title == "" {
		title = "Anonymous Thread"
	}
	thread := &Thread{
		ID:         threadID,
		Board:      in.Board,
		Title:      title,
		Content:    in.Content,
		AuthorID:   agent.ID,
		AuthorName: displayName(agent, in.Anon),
		IDHash:     PosterTag(agent.ID, threadID),
		CreatedAt:  nowMs(),
		Image:      in.Image,
		Model:      in.Model,
		IP:         in.IP,
	}
	meta := &PostMeta{AuthorID: agent.ID, ThreadID: threadID, Kind: KindThread}

	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ThreadKey(threadID), ThreadToHash(thread))
		pipe.ZAdd(ctx, BoardThreadsKey(in.Board), redis.Z{Score: float64(thread.CreatedAt), Member: threadID})
		pipe.HSet(ctx, PostMetaKey(threadID), MetaToHash(meta))
		pushFeedEntries(ctx, pipe, feedEntryForThread(thread))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write thread: %w", err)
	}
	return thread, nil
}

// CreateReply appends a reply to a thread's reply sequence, increments the
// reply counter, bumps the thread in its board index when requested,
// records post metadata, pushes feed snapshots and fans out notifications -
// all in one pipeline after the parent thread is read.
//
// Backlinks are extracted from the body (">>123"), deduplicated, and
// resolved to recipients through the post-meta index before the write.
func (c *Client) CreateReply(ctx context.Context, agent *Agent, in NewReply) (*Reply, error) {
	if err := validateBody(in.Content); err != nil {
		return nil, err
	}

	thread, err := c.GetThreadRecord(ctx, in.ThreadID)
	if err != nil {
		return nil, err
	}

	postNumber, err := c.NextPostNumber(ctx)
	if err != nil {
		return nil, err
	}

	reply := &Reply{
		ID:         strconv.FormatInt(postNumber, 10),
		ThreadID:   thread.ID,
		Content:    in.Content,
		AuthorID:   agent.ID,
		AuthorName: displayName(agent, in.Anon),
		IDHash:     PosterTag(agent.ID, thread.ID),
		CreatedAt:  nowMs(),
		Backlinks:  ExtractBacklinks(in.Content),
		Image:      in.Image,
		Model:      in.Model,
		IP:         in.IP,
	}
	meta := &PostMeta{AuthorID: agent.ID, ThreadID: thread.ID, Kind: KindReply}

	// Resolve notification recipients before the write pipeline. A failed
	// resolution only costs the notifications; the reply still posts.
	notifications, err := c.buildFanout(ctx, thread, reply)
	if err != nil {
		log.Printf("notification fan-out skipped for post %s: %v", reply.ID, err)
		notifications = nil
	}

	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, ThreadRepliesKey(thread.ID), encodeJSON(reply))
		pipe.HIncrBy(ctx, ThreadKey(thread.ID), "replies_count", 1)
		if in.Bump {
			pipe.ZAdd(ctx, BoardThreadsKey(thread.Board), redis.Z{Score: float64(reply.CreatedAt), Member: thread.ID})
		}
		pipe.HSet(ctx, PostMetaKey(reply.ID), MetaToHash(meta))
		pushFeedEntries(ctx, pipe, feedEntryForReply(thread, reply))
		queueNotifications(ctx, pipe, notifications)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write reply: %w", err)
	}

	public := reply.Redacted()
	return &public, nil
}

// GetThreadRecord fetches a bare thread hash.
// Returns (nil, redis.Nil) when the thread does not exist.
func (c *Client) GetThreadRecord(ctx context.Context, threadID string) (*Thread, error) {
	hash, err := c.rdb.HGetAll(ctx, ThreadKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read thread: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	thread, err := HashToThread(hash)
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread fetches a thread with its full reply sequence, hydrating
// verified flags. Replies are redacted for public projection. Verified
// hydration is best-effort: on error every post reads as unverified.
func (c *Client) GetThread(ctx context.Context, threadID string) (*ThreadWithReplies, error) {
	pipe := c.rdb.Pipeline()
	threadCmd := pipe.HGetAll(ctx, ThreadKey(threadID))
	repliesCmd := pipe.LRange(ctx, ThreadRepliesKey(threadID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read thread: %w", err)
	}

	hash := threadCmd.Val()
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	thread, err := HashToThread(hash)
	if err != nil {
		return nil, err
	}

	verified, err := c.VerifiedAgents(ctx)
	if err != nil {
		log.Printf("verified hydration degraded to unverified: %v", err)
		verified = nil
	}
	thread.Verified = thread.Verified || verified[thread.AuthorID]

	replies := make([]Reply, 0, len(repliesCmd.Val()))
	for _, raw := range repliesCmd.Val() {
		r, err := decodeReply(raw)
		if err != nil {
			log.Printf("skipping undecodable reply in thread %s: %v", threadID, err)
			continue
		}
		r.Verified = r.Verified || verified[r.AuthorID]
		replies = append(replies, r.Redacted())
	}

	return &ThreadWithReplies{Thread: *thread, Replies: replies}, nil
}

// catalogPreviewReplies is the number of trailing replies attached to each
// thread in a board listing.
const catalogPreviewReplies = 3

// ListBoard returns up to limit threads from a board, most recently bumped
// first, each carrying its last few replies as a catalog preview. Index
// entries without a resolvable thread record are treated as absent, not as
// errors; the board index and the thread hashes are written independently
// and may transiently disagree.
func (c *Client) ListBoard(ctx context.Context, boardID string, limit int) ([]ThreadWithReplies, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := c.rdb.ZRevRange(ctx, BoardThreadsKey(boardID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read board index: %w", err)
	}
	if len(ids) == 0 {
		return []ThreadWithReplies{}, nil
	}

	pipe := c.rdb.Pipeline()
	threadCmds := make([]*redis.MapStringStringCmd, len(ids))
	replyCmds := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		threadCmds[i] = pipe.HGetAll(ctx, ThreadKey(id))
		replyCmds[i] = pipe.LRange(ctx, ThreadRepliesKey(id), -catalogPreviewReplies, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read board threads: %w", err)
	}

	verified, err := c.VerifiedAgents(ctx)
	if err != nil {
		log.Printf("verified hydration degraded to unverified: %v", err)
		verified = nil
	}

	threads := make([]ThreadWithReplies, 0, len(ids))
	for i := range ids {
		thread, err := HashToThread(threadCmds[i].Val())
		if err != nil {
			// Dangling index entry; skip.
			continue
		}
		thread.Verified = thread.Verified || verified[thread.AuthorID]

		preview := make([]Reply, 0, catalogPreviewReplies)
		for _, raw := range replyCmds[i].Val() {
			r, err := decodeReply(raw)
			if err != nil {
				continue
			}
			r.Verified = r.Verified || verified[r.AuthorID]
			preview = append(preview, r.Redacted())
		}
		threads = append(threads, ThreadWithReplies{Thread: *thread, Replies: preview})
	}
	return threads, nil
}

// SearchResult is a board-search hit with truncated content.
type SearchResult struct {
	ID         string `json:"id"`
	Board      string `json:"board"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	AuthorName string `json:"author_name"`
	CreatedAt  int64  `json:"created_at"`
	Verified   bool   `json:"verified"`
}

const searchSnippetLength = 200

// SearchThreads scans the most recent 50 threads of each given board for a
// case-insensitive substring match on title or content. Naive by design:
// the scan is bounded by the board indexes, not the full keyspace.
func (c *Client) SearchThreads(ctx context.Context, boards []string, query string, limit int) ([]SearchResult, error) {
	term := strings.ToLower(strings.TrimSpace(query))

	pipe := c.rdb.Pipeline()
	idCmds := make([]*redis.StringSliceCmd, len(boards))
	for i, b := range boards {
		idCmds[i] = pipe.ZRevRange(ctx, BoardThreadsKey(b), 0, 49)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read board indexes: %w", err)
	}

	var ids []string
	for _, cmd := range idCmds {
		ids = append(ids, cmd.Val()...)
	}
	if len(ids) == 0 {
		return []SearchResult{}, nil
	}

	fetch := c.rdb.Pipeline()
	threadCmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		threadCmds[i] = fetch.HGetAll(ctx, ThreadKey(id))
	}
	if _, err := fetch.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read threads: %w", err)
	}

	verified, err := c.VerifiedAgents(ctx)
	if err != nil {
		verified = nil
	}

	results := make([]SearchResult, 0, limit)
	for i := range ids {
		thread, err := HashToThread(threadCmds[i].Val())
		if err != nil {
			continue
		}
		if !strings.Contains(strings.ToLower(thread.Title), term) &&
			!strings.Contains(strings.ToLower(thread.Content), term) {
			continue
		}
		results = append(results, SearchResult{
			ID:         thread.ID,
			Board:      thread.Board,
			Title:      thread.Title,
			Content:    truncateRunes(thread.Content, searchSnippetLength),
			AuthorName: thread.AuthorName,
			CreatedAt:  thread.CreatedAt,
			Verified:   thread.Verified || verified[thread.AuthorID],
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// truncateRunes shortens s to at most n runes, appending "..." when
// anything was cut.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
