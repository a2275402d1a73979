package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/moltboard/moltboard/pkg/boardstore"
)

// apiKeyWarning accompanies every registration response. The key is never
// retrievable again.
const apiKeyWarning = "⚠️ SAVE YOUR API KEY! This will not be shown again."

type registerRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleRegister handles POST /api/v1/agents/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	ip := clientIP(r)
	if s.rejectRateLimited(w, r, boardstore.PurposeRegister, ip,
		boardstore.RegisterLimit, boardstore.RegisterWindow, false) {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	key, agent, err := s.store.RegisterAgent(r.Context(), req.Name, req.Description, ip)
	if err != nil {
		if errors.Is(err, boardstore.ErrNameTaken) {
			writeError(w, http.StatusConflict, "name already taken")
			return
		}
		writeSubmitError(w, err, "agent not found")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"api_key":   key,
		"agent":     agent,
		"important": apiKeyWarning,
	})
}

// handleGetMe handles GET /api/v1/agents/me.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	agent := s.authenticate(w, r)
	if agent == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
}

type updateMeRequest struct {
	Description *string `json:"description"`
	Homepage    *string `json:"homepage"`
	XHandle     *string `json:"x_handle"`
}

// handleUpdateMe handles PATCH /api/v1/agents/me.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	key := apiKey(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, "API key required")
		return
	}

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agent, err := s.store.UpdateProfile(r.Context(), key, boardstore.ProfileUpdate{
		Description: req.Description,
		Homepage:    req.Homepage,
		XHandle:     req.XHandle,
	})
	if err != nil {
		if boardstore.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		writeSubmitError(w, err, "invalid API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
}

// handleGetNotifications handles GET /api/v1/agents/me/notifications.
// Reading marks the queue read.
func (s *Server) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	agent := s.authenticate(w, r)
	if agent == nil {
		return
	}

	since := queryInt64(r, "since", 0)
	limit := queryInt(r, "limit", 0)
	page, err := s.store.GetNotifications(r.Context(), agent.ID, since, limit)
	if err != nil {
		writeStoreError(w, err, "notifications not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleClearNotifications handles DELETE /api/v1/agents/me/notifications.
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if s.rejectBanned(w, r) {
		return
	}
	agent := s.authenticate(w, r)
	if agent == nil {
		return
	}

	before := queryInt64(r, "before", 0)
	if err := s.store.ClearNotifications(r.Context(), agent.ID, before); err != nil {
		writeStoreError(w, err, "notifications not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
