package boardstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LegacyAgentID is the author placeholder attached to migrated v1 posts.
const LegacyAgentID = "agent:legacy"

// ErrAlreadyMigrated is returned when the legacy list has already been
// retired. Re-running a migration against partially-migrated data would
// duplicate index entries, so the one-shot contract is enforced up front.
var ErrAlreadyMigrated = fmt.Errorf("legacy list already migrated")

// ErrCounterInitialized is returned when the post counter already holds a
// value.
var ErrCounterInitialized = fmt.Errorf("post counter already initialized")

// MigrateLegacy performs the one-directional v1 -> v2 transform: each entry
// of the legacy flat list becomes a current-schema thread record plus a
// board-index entry, oldest first, and the legacy list is renamed so it can
// no longer be written. The legacy numeric ID serves as both the thread ID
// and the creation timestamp. Returns the number of migrated posts.
func (c *Client) MigrateLegacy(ctx context.Context) (int, error) {
	retired, err := c.rdb.Exists(ctx, LegacyBackupKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check migration state: %w", err)
	}
	if retired > 0 {
		return 0, ErrAlreadyMigrated
	}

	raw, err := c.rdb.LRange(ctx, LegacyThreadsKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy list: %w", err)
	}
	if len(raw) == 0 {
		return 0, redis.Nil
	}

	// The legacy list is newest-first; process oldest-first so board
	// indexes fill in chronological order.
	posts := make([]LegacyPost, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var post LegacyPost
		if err := json.Unmarshal([]byte(raw[i]), &post); err != nil {
			return 0, fmt.Errorf("failed to decode legacy entry: %w", err)
		}
		posts = append(posts, post)
	}

	legacyAgent := &Agent{
		ID:          LegacyAgentID,
		Name:        "Legacy Migration",
		Description: "Preserved from v1",
		CreatedAt:   nowMs(),
	}

	migrated := 0
	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, AgentKey(LegacyAgentID), AgentToHash(legacyAgent))
		for _, post := range posts {
			threadID := strconv.FormatInt(post.ID, 10)
			board := post.Board
			if board == "" {
				board = "g"
			}
			title := post.Subject
			if title == "" {
				title = "Legacy Thread"
			}
			thread := &Thread{
				ID:         threadID,
				Board:      board,
				Title:      title,
				Content:    post.Content,
				AuthorID:   LegacyAgentID,
				AuthorName: post.Name,
				CreatedAt:  post.ID,
				Image:      post.Image,
				Legacy:     true,
			}
			pipe.HSet(ctx, ThreadKey(threadID), ThreadToHash(thread))
			pipe.ZAdd(ctx, BoardThreadsKey(board), redis.Z{Score: float64(post.ID), Member: threadID})
			migrated++
		}
		pipe.Rename(ctx, LegacyThreadsKey, LegacyBackupKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to migrate legacy list: %w", err)
	}
	return migrated, nil
}

// DumpThread is a thread with its full reply sequence and its moderation
// IP, as captured by a full dump.
type DumpThread struct {
	Thread
	IP      string  `json:"ip,omitempty"`
	Replies []Reply `json:"replies"`
}

// Dump is a full backup: the legacy list (both its retired and any live
// copy) verbatim, and every current-schema thread with its replies.
type Dump struct {
	Timestamp string       `json:"timestamp"`
	BackupV1  []string     `json:"backup_v1"`
	CurrentV1 []string     `json:"current_v1"`
	V2Threads []DumpThread `json:"v2_threads"`
}

// DumpEverything captures the full board state. Threads are discovered
// through the board indexes, so an orphaned thread without an index entry
// is not captured; that matches the read paths' view of the world.
func (c *Client) DumpEverything(ctx context.Context, boards []string) (*Dump, error) {
	dump := &Dump{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	var err error
	dump.BackupV1, err = c.rdb.LRange(ctx, LegacyBackupKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy backup: %w", err)
	}
	dump.CurrentV1, err = c.rdb.LRange(ctx, LegacyThreadsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy list: %w", err)
	}

	for _, board := range boards {
		ids, err := c.rdb.ZRange(ctx, BoardThreadsKey(board), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read board index %s: %w", board, err)
		}
		for _, id := range ids {
			thread, err := c.GetThreadRecord(ctx, id)
			if err != nil {
				if IsNotFound(err) {
					continue
				}
				return nil, err
			}
			raw, err := c.rdb.LRange(ctx, ThreadRepliesKey(id), 0, -1).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read replies of %s: %w", id, err)
			}
			replies := make([]Reply, 0, len(raw))
			for _, entry := range raw {
				r, err := decodeReply(entry)
				if err != nil {
					continue
				}
				replies = append(replies, r)
			}
			dump.V2Threads = append(dump.V2Threads, DumpThread{Thread: *thread, IP: thread.IP, Replies: replies})
		}
	}
	return dump, nil
}

// Restore replays a dump: every captured thread record, board-index entry
// and reply sequence is rewritten, and the legacy list is replaced with the
// captured backup. Restoring into a non-empty store may duplicate index
// entries; like migration, it is meant for an untouched target.
// Returns the number of restored threads.
func (c *Client) Restore(ctx context.Context, dump *Dump) (int, error) {
	restored := 0
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range dump.V2Threads {
			thread := t.Thread
			thread.IP = t.IP
			score := float64(thread.CreatedAt)
			if score == 0 {
				if id, err := strconv.ParseFloat(thread.ID, 64); err == nil {
					score = id
				}
			}
			pipe.HSet(ctx, ThreadKey(thread.ID), ThreadToHash(&thread))
			pipe.ZAdd(ctx, BoardThreadsKey(thread.Board), redis.Z{Score: score, Member: thread.ID})
			pipe.Del(ctx, ThreadRepliesKey(thread.ID))
			for _, r := range t.Replies {
				reply := r
				pipe.RPush(ctx, ThreadRepliesKey(thread.ID), encodeJSON(&reply))
			}
			restored++
		}
		if len(dump.BackupV1) > 0 {
			pipe.Del(ctx, LegacyThreadsKey)
			entries := make([]interface{}, len(dump.BackupV1))
			for i, e := range dump.BackupV1 {
				entries[i] = e
			}
			pipe.RPush(ctx, LegacyThreadsKey, entries...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to restore dump: %w", err)
	}
	return restored, nil
}

// InitPostCounter seeds the global post counter exactly once, for first
// deployment against a store that already holds migrated posts.
func (c *Client) InitPostCounter(ctx context.Context, value int64) error {
	set, err := c.rdb.SetNX(ctx, PostCounterKey, value, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to initialize post counter: %w", err)
	}
	if !set {
		return ErrCounterInitialized
	}
	return nil
}
