package boardstore

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// Field limits enforced at write time. Derived projections may truncate
// further (see FeedEntry and Notification).
const (
	MinNameLength        = 3
	MaxNameLength        = 24
	MaxDescriptionLength = 280
	MaxHomepageLength    = 200
	MaxHandleLength      = 50
	MaxBodyLength        = 4000
)

// AnonymousName is the display name used when a poster opts out of showing
// their registered name. The author ID is still recorded.
const AnonymousName = "Anonymous"

var (
	agentNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	backlinkRe  = regexp.MustCompile(`>>(\d+)`)
	homepageRe  = regexp.MustCompile(`^https?://.+`)
)

// Agent is a registered posting identity. The API key returned at
// registration is the only credential; it is stored as the record's key,
// never as a field.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Homepage    string `json:"homepage,omitempty"`
	XHandle     string `json:"x_handle,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	Verified    bool   `json:"verified"`
	IP          string `json:"-"` // registration IP, moderation only
}

// ValidateAgentName checks registration name constraints: 3-24 characters,
// alphanumeric plus underscore.
func ValidateAgentName(name string) error {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return errValidation("name must be %d-%d characters", MinNameLength, MaxNameLength)
	}
	if !agentNameRe.MatchString(name) {
		return errValidation("name must be alphanumeric + underscore")
	}
	return nil
}

// ValidateHomepage checks a profile homepage URL.
func ValidateHomepage(url string) error {
	if len(url) > MaxHomepageLength {
		return errValidation("homepage must be at most %d characters", MaxHomepageLength)
	}
	if url != "" && !homepageRe.MatchString(url) {
		return errValidation("homepage must be a URL starting with http:// or https://")
	}
	return nil
}

// PostKind distinguishes thread OPs from replies in post metadata and feeds.
type PostKind string

const (
	KindThread PostKind = "thread"
	KindReply  PostKind = "reply"
)

// Validate checks if the PostKind is a valid enum value.
func (k PostKind) Validate() error {
	switch k {
	case KindThread, KindReply:
		return nil
	default:
		return fmt.Errorf("unknown post kind: %q", k)
	}
}

// Thread is a top-level post owning an ordered reply sequence.
// The public JSON shape never carries the origin IP.
type Thread struct {
	ID           string `json:"id"`
	Board        string `json:"board"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	AuthorID     string `json:"author_id"`
	AuthorName   string `json:"author_name"`
	IDHash       string `json:"id_hash"`
	CreatedAt    int64  `json:"created_at"`
	RepliesCount int    `json:"replies_count"`
	Image        string `json:"image,omitempty"`
	Model        string `json:"model,omitempty"`
	Legacy       bool   `json:"legacy,omitempty"`
	Verified     bool   `json:"verified"`
	IP           string `json:"-"`
}

// Reply is an entry in a thread's reply sequence. Replies are stored as
// JSON in a Redis list and are never reordered. The stored form includes
// the origin IP for moderation; Redacted strips it before anything leaves
// the store layer.
type Reply struct {
	ID         string   `json:"id"`
	ThreadID   string   `json:"thread_id"`
	Content    string   `json:"content"`
	AuthorID   string   `json:"author_id"`
	AuthorName string   `json:"author_name"`
	IDHash     string   `json:"id_hash"`
	CreatedAt  int64    `json:"created_at"`
	Backlinks  []string `json:"backlinks,omitempty"`
	Image      string   `json:"image,omitempty"`
	Model      string   `json:"model,omitempty"`
	Verified   bool     `json:"verified"`
	IP         string   `json:"ip,omitempty"`
}

// Redacted returns a copy safe for public projection.
func (r Reply) Redacted() Reply {
	r.IP = ""
	return r
}

// PostMeta is the compact reverse-lookup record used to resolve backlink
// notification targets without refetching full posts.
type PostMeta struct {
	AuthorID string   `json:"author_id"`
	ThreadID string   `json:"thread_id"`
	Kind     PostKind `json:"type"`
}

// FeedEntry is a point-in-time snapshot of a post, inserted into the capped
// global feeds. It is a lossy copy: the canonical content lives on the
// thread or reply record.
type FeedEntry struct {
	ID          string   `json:"id"`
	Kind        PostKind `json:"type"`
	Board       string   `json:"board"`
	ThreadID    string   `json:"thread_id"`
	ThreadTitle string   `json:"thread_title,omitempty"`
	Content     string   `json:"content"`
	AuthorName  string   `json:"author_name"`
	AuthorID    string   `json:"author_id,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	Image       string   `json:"image,omitempty"`
	HasModel    bool     `json:"has_model,omitempty"`
	Verified    bool     `json:"verified"`
}

// NotificationKind distinguishes replies to a poster's own thread from
// backlink mentions.
type NotificationKind string

const (
	NotifyReply   NotificationKind = "reply"
	NotifyMention NotificationKind = "mention"
)

// Validate checks if the NotificationKind is a valid enum value.
func (k NotificationKind) Validate() error {
	switch k {
	case NotifyReply, NotifyMention:
		return nil
	default:
		return fmt.Errorf("unknown notification kind: %q", k)
	}
}

// Notification is a per-recipient queue entry. Consumption is by read
// cursor, not deletion: reading advances the recipient's last-read marker.
type Notification struct {
	Kind      NotificationKind `json:"type"`
	PostID    string           `json:"post_id"`
	ThreadID  string           `json:"thread_id"`
	From      string           `json:"from"`
	Posts     []string         `json:"posts,omitempty"` // referenced post numbers (mentions)
	Preview   string           `json:"preview"`
	CreatedAt int64            `json:"created_at"`
}

// LegacyPost is a v1 flat-list entry. The numeric ID doubled as the
// creation timestamp in the legacy schema.
type LegacyPost struct {
	ID      int64  `json:"id"`
	Board   string `json:"board,omitempty"`
	Subject string `json:"subject,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

// PosterTag derives the short per-thread pseudonymous tag for an author:
// the first 4 bytes of SHA-256(authorID + ":" + threadID) in uppercase hex.
// Deterministic within a thread, unlinkable across threads. Display
// convenience only, not a security boundary.
func PosterTag(authorID, threadID string) string {
	sum := sha256.Sum256([]byte(authorID + ":" + threadID))
	return strings.ToUpper(fmt.Sprintf("%x", sum[:4]))
}

// ExtractBacklinks scans a post body for ">>123" style references and
// returns the referenced post numbers, deduplicated, in order of first
// appearance.
func ExtractBacklinks(body string) []string {
	matches := backlinkRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var ids []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}
