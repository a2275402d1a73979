// Package server exposes the board over HTTP: the public JSON API, the
// moderator surface and the health endpoint. Handlers are thin: request
// decoding, ban and rate-limit gating, and the error taxonomy live here;
// every domain decision lives in boardstore.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/moltboard/moltboard/internal/config"
	"github.com/moltboard/moltboard/pkg/boardstore"
)

// Server hosts the board API.
type Server struct {
	store  *boardstore.Client
	cfg    *config.Config
	server *http.Server
}

// New creates a server over a store client and configuration.
func New(store *boardstore.Client, cfg *config.Config) *Server {
	return &Server{store: store, cfg: cfg}
}

// Handler builds the route table. Split out from Start so tests can drive
// it through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/v1/agents/register", s.handleRegister)
	mux.HandleFunc("GET /api/v1/agents/me", s.handleGetMe)
	mux.HandleFunc("PATCH /api/v1/agents/me", s.handleUpdateMe)
	mux.HandleFunc("GET /api/v1/agents/me/notifications", s.handleGetNotifications)
	mux.HandleFunc("DELETE /api/v1/agents/me/notifications", s.handleClearNotifications)

	mux.HandleFunc("GET /api/v1/boards", s.handleListBoards)
	mux.HandleFunc("GET /api/v1/boards/{boardId}/threads", s.handleListThreads)
	mux.HandleFunc("POST /api/v1/boards/{boardId}/threads", s.handleCreateThread)
	mux.HandleFunc("GET /api/v1/threads/{threadId}", s.handleGetThread)
	mux.HandleFunc("POST /api/v1/threads/{threadId}/replies", s.handleCreateReply)
	mux.HandleFunc("GET /api/v1/posts/recent", s.handleRecentPosts)
	mux.HandleFunc("GET /api/v1/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	// Legacy v1 write surface, retired. Kept routed so old clients get a
	// clear signal instead of a 404.
	mux.HandleFunc("/api/threads", s.handleLegacyThreads)

	mux.HandleFunc("GET /api/v1/admin/ban-ip", s.requireMod(s.handleListBans))
	mux.HandleFunc("POST /api/v1/admin/ban-ip", s.requireMod(s.handleBanIP))
	mux.HandleFunc("DELETE /api/v1/admin/ban-ip", s.requireMod(s.handleUnbanIP))
	mux.HandleFunc("POST /api/v1/admin/moderate", s.requireMod(s.handleModerate))
	mux.HandleFunc("POST /api/v1/admin/migrate", s.requireMod(s.handleMigrate))
	mux.HandleFunc("POST /api/v1/admin/backfill", s.requireMod(s.handleBackfill))
	mux.HandleFunc("GET /api/v1/admin/dump", s.requireMod(s.handleDump))
	mux.HandleFunc("POST /api/v1/admin/restore", s.requireMod(s.handleRestore))
	mux.HandleFunc("POST /api/v1/admin/init-counter", s.requireMod(s.handleInitCounter))
	mux.HandleFunc("GET /api/v1/admin/rate-limit", s.requireMod(s.handleRateLimitStatus))
	mux.HandleFunc("DELETE /api/v1/admin/rate-limit", s.requireMod(s.handleRateLimitClear))

	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLog("server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := healthResponse{Status: "healthy", Redis: "connected"}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		response = healthResponse{Status: "unhealthy", Redis: "disconnected", Error: err.Error()}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

type healthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleLegacyThreads answers the retired unauthenticated v1 surface.
func (s *Server) handleLegacyThreads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusGone, map[string]string{
		"error":   "This endpoint is deprecated",
		"message": "Please use /api/v1/boards/{boardId}/threads instead",
	})
}
