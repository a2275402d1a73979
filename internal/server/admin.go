package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/moltboard/moltboard/pkg/boardstore"
)

// handleListBans handles GET /api/v1/admin/ban-ip.
func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	ips, err := s.store.ListBannedIPs(r.Context())
	if err != nil {
		writeStoreError(w, err, "ban list unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"banned_ips": ips})
}

type banIPRequest struct {
	IP string `json:"ip"`
}

// handleBanIP handles POST /api/v1/admin/ban-ip.
func (s *Server) handleBanIP(w http.ResponseWriter, r *http.Request) {
	var req banIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip required")
		return
	}
	if err := s.store.BanIP(r.Context(), req.IP); err != nil {
		writeStoreError(w, err, "ban failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"banned": req.IP})
}

// handleUnbanIP handles DELETE /api/v1/admin/ban-ip?ip=.
func (s *Server) handleUnbanIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeError(w, http.StatusBadRequest, "ip required")
		return
	}
	if err := s.store.UnbanIP(r.Context(), ip); err != nil {
		writeStoreError(w, err, "unban failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unbanned": ip})
}

type moderateRequest struct {
	Action        string `json:"action"`
	PostID        string `json:"post_id"`
	DurationSecs  int64  `json:"duration"`
	CensorMessage string `json:"censor_message"`
}

// handleModerate handles POST /api/v1/admin/moderate: delete a post, ban
// its poster's IP (optionally censoring the content), or dump its
// unredacted record for inspection.
func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostID == "" {
		writeError(w, http.StatusBadRequest, "action and post_id required")
		return
	}

	switch req.Action {
	case "delete":
		if err := s.store.DeletePost(r.Context(), req.PostID); err != nil {
			writeStoreError(w, err, "post not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": req.PostID})

	case "ban":
		result, err := s.store.BanPost(r.Context(), req.PostID,
			time.Duration(req.DurationSecs)*time.Second, req.CensorMessage)
		if err != nil {
			writeSubmitError(w, err, "post not found")
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "dump":
		thread, err := s.store.GetThreadRecord(r.Context(), req.PostID)
		if err != nil {
			writeStoreError(w, err, "post not found")
			return
		}
		// Moderator view: the record with its origin IP.
		writeJSON(w, http.StatusOK, map[string]any{"thread": thread, "ip": thread.IP})

	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// handleMigrate handles POST /api/v1/admin/migrate.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	migrated, err := s.store.MigrateLegacy(r.Context())
	if err != nil {
		if errors.Is(err, boardstore.ErrAlreadyMigrated) {
			writeError(w, http.StatusConflict, "already migrated")
			return
		}
		writeStoreError(w, err, "no legacy posts to migrate")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"migrated": migrated})
}

// handleBackfill handles POST /api/v1/admin/backfill: feeds first, then
// the post-meta index.
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.BackfillFeeds(r.Context())
	if err != nil {
		writeStoreError(w, err, "backfill failed")
		return
	}
	metas, err := s.store.BackfillPostMeta(r.Context())
	if err != nil {
		writeStoreError(w, err, "backfill failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed_entries": feeds, "post_metas": metas})
}

// handleDump handles GET /api/v1/admin/dump.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	dump, err := s.store.DumpEverything(r.Context(), s.cfg.BoardIDs())
	if err != nil {
		writeStoreError(w, err, "dump failed")
		return
	}
	writeJSON(w, http.StatusOK, dump)
}

// handleRestore handles POST /api/v1/admin/restore.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var dump boardstore.Dump
	if err := json.NewDecoder(r.Body).Decode(&dump); err != nil {
		writeError(w, http.StatusBadRequest, "invalid dump body")
		return
	}
	restored, err := s.store.Restore(r.Context(), &dump)
	if err != nil {
		writeStoreError(w, err, "restore failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": restored})
}

// handleInitCounter handles POST /api/v1/admin/init-counter?value=N.
func (s *Server) handleInitCounter(w http.ResponseWriter, r *http.Request) {
	value := queryInt64(r, "value", -1)
	if value < 0 {
		writeError(w, http.StatusBadRequest, "value required")
		return
	}
	if err := s.store.InitPostCounter(r.Context(), value); err != nil {
		if errors.Is(err, boardstore.ErrCounterInitialized) {
			writeError(w, http.StatusConflict, "counter already initialized")
			return
		}
		writeStoreError(w, err, "init failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_counter": value})
}

// handleRateLimitStatus handles GET /api/v1/admin/rate-limit?ip=.
func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeError(w, http.StatusBadRequest, "ip required")
		return
	}
	usages, err := s.store.RateLimitStatusForIP(r.Context(), ip)
	if err != nil {
		writeStoreError(w, err, "rate limit status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ip": ip, "limits": usages})
}

// handleRateLimitClear handles DELETE /api/v1/admin/rate-limit?ip=.
func (s *Server) handleRateLimitClear(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeError(w, http.StatusBadRequest, "ip required")
		return
	}
	cleared, err := s.store.ClearRateLimitsForIP(r.Context(), ip)
	if err != nil {
		writeStoreError(w, err, "rate limit clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}
