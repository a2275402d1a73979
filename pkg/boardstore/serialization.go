package boardstore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes.
//
// Agents, threads and post metadata are stored as hashes so individual
// fields stay independently readable (HINCRBY on replies_count, HSET on a
// censored content field). Replies, feed entries and notifications are
// stored as JSON blobs inside lists and sorted sets.

// AgentToHash converts an Agent to its Redis hash form.
func AgentToHash(a *Agent) map[string]interface{} {
	return map[string]interface{}{
		"id":          a.ID,
		"name":        a.Name,
		"description": a.Description,
		"homepage":    a.Homepage,
		"x_handle":    a.XHandle,
		"created_at":  a.CreatedAt,
		"verified":    strconv.FormatBool(a.Verified),
		"ip":          a.IP,
	}
}

// HashToAgent converts a Redis hash back to an Agent.
func HashToAgent(hash map[string]string) *Agent {
	createdAt, _ := strconv.ParseInt(hash["created_at"], 10, 64)
	return &Agent{
		ID:          hash["id"],
		Name:        hash["name"],
		Description: hash["description"],
		Homepage:    hash["homepage"],
		XHandle:     hash["x_handle"],
		CreatedAt:   createdAt,
		Verified:    hash["verified"] == "true",
		IP:          hash["ip"],
	}
}

// ThreadToHash converts a Thread to its Redis hash form. The origin IP is
// persisted here; it is the Thread's JSON tags that keep it out of public
// projections.
func ThreadToHash(t *Thread) map[string]interface{} {
	return map[string]interface{}{
		"id":            t.ID,
		"board":         t.Board,
		"title":         t.Title,
		"content":       t.Content,
		"author_id":     t.AuthorID,
		"author_name":   t.AuthorName,
		"id_hash":       t.IDHash,
		"created_at":    t.CreatedAt,
		"replies_count": t.RepliesCount,
		"image":         t.Image,
		"model":         t.Model,
		"legacy":        strconv.FormatBool(t.Legacy),
		"verified":      strconv.FormatBool(t.Verified),
		"ip":            t.IP,
	}
}

// HashToThread converts a Redis hash back to a Thread.
// Returns an error when the hash is missing its ID, which readers treat as
// a dangling index entry.
func HashToThread(hash map[string]string) (*Thread, error) {
	if hash["id"] == "" {
		return nil, fmt.Errorf("thread hash has no id field")
	}
	createdAt, _ := strconv.ParseInt(hash["created_at"], 10, 64)
	repliesCount, _ := strconv.Atoi(hash["replies_count"])
	return &Thread{
		ID:           hash["id"],
		Board:        hash["board"],
		Title:        hash["title"],
		Content:      hash["content"],
		AuthorID:     hash["author_id"],
		AuthorName:   hash["author_name"],
		IDHash:       hash["id_hash"],
		CreatedAt:    createdAt,
		RepliesCount: repliesCount,
		Image:        hash["image"],
		Model:        hash["model"],
		Legacy:       hash["legacy"] == "true",
		Verified:     hash["verified"] == "true",
		IP:           hash["ip"],
	}, nil
}

// MetaToHash converts a PostMeta to its Redis hash form.
func MetaToHash(m *PostMeta) map[string]interface{} {
	return map[string]interface{}{
		"author_id": m.AuthorID,
		"thread_id": m.ThreadID,
		"type":      string(m.Kind),
	}
}

// HashToMeta converts a Redis hash back to a PostMeta.
func HashToMeta(hash map[string]string) *PostMeta {
	return &PostMeta{
		AuthorID: hash["author_id"],
		ThreadID: hash["thread_id"],
		Kind:     PostKind(hash["type"]),
	}
}

// decodeReply parses a stored reply list entry.
func decodeReply(raw string) (Reply, error) {
	var r Reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reply{}, fmt.Errorf("failed to decode reply entry: %w", err)
	}
	return r, nil
}

// encodeJSON marshals a value for storage in a list or sorted set; the
// callers only pass types that cannot fail to marshal.
func encodeJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
