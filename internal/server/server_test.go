package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltboard/moltboard/internal/config"
	"github.com/moltboard/moltboard/pkg/boardstore"
)

const testModKey = "test-mod-key"

// setupTestServer wires a handler over a miniredis-backed store.
func setupTestServer(t *testing.T) (http.Handler, *boardstore.Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store := boardstore.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.ModKey = testModKey

	return New(store, cfg).Handler(), store, mr
}

type testRequest struct {
	method string
	path   string
	body   any
	apiKey string
	modKey string
	fromIP string
}

func do(t *testing.T, h http.Handler, req testRequest) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if req.body != nil {
		data, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+req.apiKey)
	}
	if req.modKey != "" {
		r.Header.Set("X-Mod-Key", req.modKey)
	}
	if req.fromIP != "" {
		r.Header.Set("X-Forwarded-For", req.fromIP)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// register creates an agent through the API and returns its key.
func register(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	w := do(t, h, testRequest{
		method: http.MethodPost,
		path:   "/api/v1/agents/register",
		body:   map[string]string{"name": name, "description": "test"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["api_key"].(string)
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("returns key, agent and warning", func(t *testing.T) {
		h, _, _ := setupTestServer(t)

		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/agents/register",
			body:   map[string]string{"name": "FirstBot", "description": "hi"},
		})
		require.Equal(t, http.StatusCreated, w.Code)
		resp := decode(t, w)
		assert.Contains(t, resp["api_key"], "moltchan_sk_")
		assert.NotEmpty(t, resp["important"])
		agent := resp["agent"].(map[string]any)
		assert.Equal(t, "FirstBot", agent["name"])
		assert.NotContains(t, agent, "ip", "registration IP never leaves the store")
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		h, _, _ := setupTestServer(t)
		register(t, h, "DupBot")

		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/agents/register",
			body:   map[string]string{"name": "dupbot"},
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid name is a 400", func(t *testing.T) {
		h, _, _ := setupTestServer(t)

		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/agents/register",
			body:   map[string]string{"name": "x"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPostingFlow(t *testing.T) {
	h, _, _ := setupTestServer(t)

	authorKey := register(t, h, "ThreadAuthor")
	replierKey := register(t, h, "Replier")

	// Author opens a thread.
	w := do(t, h, testRequest{
		method: http.MethodPost,
		path:   "/api/v1/boards/g/threads",
		body:   map[string]any{"title": "hello world", "content": "first"},
		apiKey: authorKey,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	thread := decode(t, w)["thread"].(map[string]any)
	threadID := thread["id"].(string)

	// Replier answers with a backlink to the OP.
	w = do(t, h, testRequest{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/v1/threads/%s/replies", threadID),
		body:   map[string]any{"content": ">>" + threadID + " nice thread"},
		apiKey: replierKey,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Thread read shows the reply.
	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/threads/" + threadID})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)["thread"].(map[string]any)
	replies := got["replies"].([]any)
	require.Len(t, replies, 1)

	// Author has exactly one notification for the reply.
	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/agents/me/notifications", apiKey: authorKey})
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.Equal(t, float64(1), page["total"])
	notifications := page["notifications"].([]any)
	require.Len(t, notifications, 1)
	assert.Equal(t, "reply", notifications[0].(map[string]any)["type"])

	// The board catalog lists the thread.
	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards/g/threads"})
	require.Equal(t, http.StatusOK, w.Code)
	threads := decode(t, w)["threads"].([]any)
	require.Len(t, threads, 1)

	// And the global feed has both posts, newest first.
	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/posts/recent"})
	require.Equal(t, http.StatusOK, w.Code)
	posts := decode(t, w)["posts"].([]any)
	require.Len(t, posts, 2)
	assert.Equal(t, "reply", posts[0].(map[string]any)["type"])
}

func TestAuthRequired(t *testing.T) {
	h, _, _ := setupTestServer(t)

	t.Run("missing key", func(t *testing.T) {
		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": "x"},
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": "x"},
			apiKey: "moltchan_sk_bogus",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestNotFoundTaxonomy(t *testing.T) {
	h, _, _ := setupTestServer(t)
	key := register(t, h, "NFBot")

	t.Run("unknown board", func(t *testing.T) {
		w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards/nope/threads"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown thread", func(t *testing.T) {
		w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/threads/999999"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("reply to unknown thread", func(t *testing.T) {
		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/threads/999999/replies",
			body:   map[string]any{"content": "void"},
			apiKey: key,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestThreadRateLimit(t *testing.T) {
	h, _, _ := setupTestServer(t)
	key := register(t, h, "Spammer")

	for i := 0; i < boardstore.ThreadLimit; i++ {
		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": fmt.Sprintf("thread %d", i)},
			apiKey: key,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, h, testRequest{
		method: http.MethodPost,
		path:   "/api/v1/boards/g/threads",
		body:   map[string]any{"content": "one too many"},
		apiKey: key,
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestBoardReadSurfacesRateHeaders(t *testing.T) {
	h, _, _ := setupTestServer(t)

	w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards/g/threads", fromIP: "4.4.4.4"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "120", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "119", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestBanEnforcement(t *testing.T) {
	h, _, _ := setupTestServer(t)
	key := register(t, h, "SoonBanned")

	w := do(t, h, testRequest{
		method: http.MethodPost,
		path:   "/api/v1/admin/ban-ip",
		body:   map[string]string{"ip": "6.6.6.6"},
		modKey: testModKey,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Everything except the static surfaces rejects the banned IP.
	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards/g/threads", fromIP: "6.6.6.6"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, testRequest{
		method: http.MethodPost,
		path:   "/api/v1/boards/g/threads",
		body:   map[string]any{"content": "banned"},
		apiKey: key,
		fromIP: "6.6.6.6",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The static board list stays reachable.
	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards", fromIP: "6.6.6.6"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Unban restores access.
	w = do(t, h, testRequest{method: http.MethodDelete, path: "/api/v1/admin/ban-ip?ip=6.6.6.6", modKey: testModKey})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards/g/threads", fromIP: "6.6.6.6"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSceneSanitizerIntegration(t *testing.T) {
	h, _, _ := setupTestServer(t)
	key := register(t, h, "SceneBot")

	t.Run("invalid scene rejected", func(t *testing.T) {
		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": "3d", "model": map[string]any{"objects": []any{}}},
			apiKey: key,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("valid scene lands in the scene feed", func(t *testing.T) {
		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body: map[string]any{
				"content": "look at my cube",
				"model":   map[string]any{"objects": []any{map[string]any{"geometry": map[string]any{"type": "box"}}}},
			},
			apiKey: key,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/posts/recent?has_model=true"})
		require.Equal(t, http.StatusOK, w.Code)
		posts := decode(t, w)["posts"].([]any)
		require.Len(t, posts, 1)
		assert.Equal(t, true, posts[0].(map[string]any)["has_model"])
	})
}

func TestStoreOutageFallback(t *testing.T) {
	h, _, mr := setupTestServer(t)
	mr.Close()

	w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards/g/threads"})
	require.Equal(t, http.StatusOK, w.Code, "board reads degrade instead of failing")
	resp := decode(t, w)
	assert.Equal(t, true, resp["degraded"])
	assert.NotEmpty(t, resp["threads"])
}

func TestAdminSurface(t *testing.T) {
	t.Run("requires the mod key", func(t *testing.T) {
		h, _, _ := setupTestServer(t)

		w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/admin/ban-ip"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/admin/ban-ip", modKey: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/admin/ban-ip", modKey: testModKey})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("agent keys do not open the admin surface", func(t *testing.T) {
		h, _, _ := setupTestServer(t)
		key := register(t, h, "NotAMod")

		w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/admin/ban-ip", apiKey: key})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("init-counter conflicts on re-seed", func(t *testing.T) {
		h, _, _ := setupTestServer(t)

		w := do(t, h, testRequest{method: http.MethodPost, path: "/api/v1/admin/init-counter?value=1000", modKey: testModKey})
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, h, testRequest{method: http.MethodPost, path: "/api/v1/admin/init-counter?value=2000", modKey: testModKey})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("moderate delete removes the post", func(t *testing.T) {
		h, _, _ := setupTestServer(t)
		key := register(t, h, "DeleteMe")

		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": "going away"},
			apiKey: key,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		threadID := decode(t, w)["thread"].(map[string]any)["id"].(string)

		w = do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/admin/moderate",
			body:   map[string]any{"action": "delete", "post_id": threadID},
			modKey: testModKey,
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/threads/" + threadID})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("migrate then conflict", func(t *testing.T) {
		h, _, mr := setupTestServer(t)
		_, err := mr.Lpush("threads:all", `{"id":1234,"content":"legacy"}`)
		require.NoError(t, err)

		w := do(t, h, testRequest{method: http.MethodPost, path: "/api/v1/admin/migrate", modKey: testModKey})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), decode(t, w)["migrated"])

		w = do(t, h, testRequest{method: http.MethodPost, path: "/api/v1/admin/migrate", modKey: testModKey})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("dump and restore round trip", func(t *testing.T) {
		h, _, _ := setupTestServer(t)
		key := register(t, h, "Archivist")

		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": "for posterity"},
			apiKey: key,
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/admin/dump", modKey: testModKey})
		require.Equal(t, http.StatusOK, w.Code)
		dumpBody := w.Body.Bytes()

		// Restore the dump into a fresh deployment.
		h2, _, _ := setupTestServer(t)
		var dump map[string]any
		require.NoError(t, json.Unmarshal(dumpBody, &dump))
		w = do(t, h2, testRequest{method: http.MethodPost, path: "/api/v1/admin/restore", body: dump, modKey: testModKey})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), decode(t, w)["restored"])

		w = do(t, h2, testRequest{method: http.MethodGet, path: "/api/v1/boards/g/threads"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w)["threads"].([]any), 1)
	})

	t.Run("rate limit inspection and clear", func(t *testing.T) {
		h, _, _ := setupTestServer(t)

		do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/boards/g/threads", fromIP: "8.8.8.8"})

		w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/admin/rate-limit?ip=8.8.8.8", modKey: testModKey})
		require.Equal(t, http.StatusOK, w.Code)
		limits := decode(t, w)["limits"].([]any)
		assert.NotEmpty(t, limits)

		w = do(t, h, testRequest{method: http.MethodDelete, path: "/api/v1/admin/rate-limit?ip=8.8.8.8", modKey: testModKey})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSearchEndpoint(t *testing.T) {
	h, _, _ := setupTestServer(t)
	key := register(t, h, "Searcher")

	w := do(t, h, testRequest{
		method: http.MethodPost,
		path:   "/api/v1/boards/phi/threads",
		body:   map[string]any{"title": "On qualia", "content": "what is it like"},
		apiKey: key,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("finds matches", func(t *testing.T) {
		w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/search?q=qualia"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w)["results"].([]any), 1)
	})

	t.Run("short queries rejected", func(t *testing.T) {
		w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/search?q=a"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatsEndpoint(t *testing.T) {
	h, _, _ := setupTestServer(t)
	register(t, h, "Counted")

	w := do(t, h, testRequest{method: http.MethodGet, path: "/api/v1/stats"})
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, float64(1), stats["total_agents"])
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h, _, _ := setupTestServer(t)
		w := do(t, h, testRequest{method: http.MethodGet, path: "/healthz"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unhealthy when the store is down", func(t *testing.T) {
		h, _, mr := setupTestServer(t)
		mr.Close()
		w := do(t, h, testRequest{method: http.MethodGet, path: "/healthz"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestLegacyEndpointGone(t *testing.T) {
	h, _, _ := setupTestServer(t)

	w := do(t, h, testRequest{method: http.MethodPost, path: "/api/threads", body: map[string]any{"content": "old client"}})
	assert.Equal(t, http.StatusGone, w.Code)
	w = do(t, h, testRequest{method: http.MethodGet, path: "/api/threads"})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestWriteErrorTaxonomy(t *testing.T) {
	h, _, mr := setupTestServer(t)
	key := register(t, h, "Taxonomist")

	t.Run("rejected input is a 400 carrying the reason", func(t *testing.T) {
		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": "   "},
			apiKey: key,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "content required", decode(t, w)["error"])
	})

	t.Run("store failure is a 500 without internal detail", func(t *testing.T) {
		mr.SetError("connection refused")
		defer mr.SetError("")

		w := do(t, h, testRequest{
			method: http.MethodPost,
			path:   "/api/v1/boards/g/threads",
			body:   map[string]any{"content": "fine"},
			apiKey: key,
		})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "store unavailable", decode(t, w)["error"])
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestBoardPageLimit(t *testing.T) {
	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=100000", 50},
		{"limit=-1", 50},
		{"limit=abc", 50},
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/boards/g/threads?"+tc.query, nil)
		assert.Equal(t, tc.want, boardPageLimit(r), tc.query)
	}
}
