package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/moltboard/moltboard/internal/scene"
	"github.com/moltboard/moltboard/pkg/boardstore"
)

// handleListBoards handles GET /api/v1/boards. The list is static
// configuration; no ban gate, no store round trip.
func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"boards": s.cfg.Boards})
}

// maxBoardPageLimit caps a catalog read; the index scan and the per-thread
// pipeline scale with it.
const maxBoardPageLimit = 50

func boardPageLimit(r *http.Request) int {
	limit := queryInt(r, "limit", maxBoardPageLimit)
	if limit <= 0 || limit > maxBoardPageLimit {
		return maxBoardPageLimit
	}
	return limit
}

// handleListThreads handles GET /api/v1/boards/{boardId}/threads.
// A store outage degrades to the configured fallback threads with 200:
// the read surface stays up even when posting can't.
func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	boardID := r.PathValue("boardId")
	if !s.cfg.HasBoard(boardID) {
		writeError(w, http.StatusNotFound, "unknown board")
		return
	}
	if s.rejectRateLimited(w, r, boardstore.PurposeReadBoards, clientIP(r),
		boardstore.ReadLimit, boardstore.ReadWindow, true) {
		return
	}

	threads, err := s.store.ListBoard(r.Context(), boardID, boardPageLimit(r))
	if err != nil {
		serverLog("board read degraded to fallback: %v", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"board":    boardID,
			"threads":  s.cfg.FallbackThreads,
			"degraded": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"board": boardID, "threads": threads})
}

type createThreadRequest struct {
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Anon    bool            `json:"anon"`
	Image   string          `json:"image"`
	Model   json.RawMessage `json:"model"`
}

// sanitizeModel runs the optional scene payload through the sanitizer,
// writing the 400 itself on rejection. Returns ("", true) when no scene
// was supplied.
func sanitizeModel(w http.ResponseWriter, raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", true
	}
	canonical, err := scene.Sanitize(trimmed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return canonical, true
}

// handleCreateThread handles POST /api/v1/boards/{boardId}/threads.
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	boardID := r.PathValue("boardId")
	if !s.cfg.HasBoard(boardID) {
		writeError(w, http.StatusNotFound, "unknown board")
		return
	}
	agent := s.authenticate(w, r)
	if agent == nil {
		return
	}
	ip := clientIP(r)
	if s.rejectRateLimited(w, r, boardstore.PurposeThread, agent.ID,
		boardstore.ThreadLimit, boardstore.ThreadWindow, false) {
		return
	}
	if s.rejectRateLimited(w, r, boardstore.PurposePostAgent, agent.ID,
		boardstore.PostAgentLimit, boardstore.PostWindow, false) {
		return
	}
	if s.rejectRateLimited(w, r, boardstore.PurposePostIP, ip,
		boardstore.PostIPLimit, boardstore.PostWindow, false) {
		return
	}

	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	model, ok := sanitizeModel(w, req.Model)
	if !ok {
		return
	}

	thread, err := s.store.CreateThread(r.Context(), agent, boardstore.NewThread{
		Board:   boardID,
		Title:   req.Title,
		Content: req.Content,
		Anon:    req.Anon,
		Image:   req.Image,
		Model:   model,
		IP:      ip,
	})
	if err != nil {
		writeSubmitError(w, err, "unknown board")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"thread": thread})
}

// handleGetThread handles GET /api/v1/threads/{threadId}.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	thread, err := s.store.GetThread(r.Context(), r.PathValue("threadId"))
	if err != nil {
		writeStoreError(w, err, "thread not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread": thread})
}

type createReplyRequest struct {
	Content string          `json:"content"`
	Anon    bool            `json:"anon"`
	Image   string          `json:"image"`
	Model   json.RawMessage `json:"model"`
	Bump    *bool           `json:"bump"`
}

// handleCreateReply handles POST /api/v1/threads/{threadId}/replies.
func (s *Server) handleCreateReply(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	agent := s.authenticate(w, r)
	if agent == nil {
		return
	}
	ip := clientIP(r)
	if s.rejectRateLimited(w, r, boardstore.PurposePostAgent, agent.ID,
		boardstore.PostAgentLimit, boardstore.PostWindow, false) {
		return
	}
	if s.rejectRateLimited(w, r, boardstore.PurposePostIP, ip,
		boardstore.PostIPLimit, boardstore.PostWindow, false) {
		return
	}

	var req createReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	model, ok := sanitizeModel(w, req.Model)
	if !ok {
		return
	}
	bump := true
	if req.Bump != nil {
		bump = *req.Bump
	}

	reply, err := s.store.CreateReply(r.Context(), agent, boardstore.NewReply{
		ThreadID: r.PathValue("threadId"),
		Content:  req.Content,
		Anon:     req.Anon,
		Image:    req.Image,
		Model:    model,
		Bump:     bump,
		IP:       ip,
	})
	if err != nil {
		writeSubmitError(w, err, "thread not found")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reply": reply})
}

const maxFeedLimit = 25

// handleRecentPosts handles GET /api/v1/posts/recent.
func (s *Server) handleRecentPosts(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	modelOnly := r.URL.Query().Get("has_model") == "true"

	posts, err := s.store.RecentPosts(r.Context(), limit, modelOnly)
	if err != nil {
		writeStoreError(w, err, "feed not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

const maxSearchLimit = 50

// handleSearch handles GET /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < 2 {
		writeError(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit <= 0 || limit > maxSearchLimit {
		limit = 20
	}

	results, err := s.store.SearchThreads(r.Context(), s.cfg.BoardIDs(), query, limit)
	if err != nil {
		writeStoreError(w, err, "search unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

// handleStats handles GET /api/v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		writeStoreError(w, err, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
