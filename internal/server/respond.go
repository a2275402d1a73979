package server

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/moltboard/moltboard/pkg/boardstore"
)

func serverLog(format string, a ...any) {
	log.Printf(format, a...)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		serverLog("failed to encode response: %v", err)
	}
}

// writeError writes the error envelope. Reason strings are machine-stable:
// clients match on them, so they never carry request-specific detail.
func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

// writeStoreError maps a store failure onto the taxonomy: not-found keys
// become 404, everything else is a 500 with the detail logged, not leaked.
func writeStoreError(w http.ResponseWriter, err error, notFoundReason string) {
	if boardstore.IsNotFound(err) {
		writeError(w, http.StatusNotFound, notFoundReason)
		return
	}
	serverLog("store error: %v", err)
	writeError(w, http.StatusInternalServerError, "store unavailable")
}

// writeSubmitError maps a write-path failure: input rejections carry their
// own message as a 400, missing targets are 404, anything else is a store
// failure and never leaks wrapped detail.
func writeSubmitError(w http.ResponseWriter, err error, notFoundReason string) {
	if boardstore.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeStoreError(w, err, notFoundReason)
}

// clientIP resolves the caller's IP, preferring proxy headers. Returns
// "unknown" when nothing resolves; "unknown" is never banned and never
// rate-limited as a shared bucket.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// apiKey extracts the agent credential: "Authorization: Bearer <key>" or a
// bare key in the same header.
func apiKey(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// rejectBanned enforces the ban gate. Every endpoint except the static
// board list and the health check calls this before any other work. A
// store failure fails open: moderation pressure never takes the whole API
// down.
func (s *Server) rejectBanned(w http.ResponseWriter, r *http.Request) bool {
	ip := clientIP(r)
	banned, err := s.store.IsIPBanned(r.Context(), ip)
	if err != nil {
		serverLog("ban check failed for %s: %v", ip, err)
		return false
	}
	if banned {
		writeError(w, http.StatusForbidden, "IP banned")
		return true
	}
	return false
}

// authenticate resolves the caller's agent record, writing the 401 itself
// when the credential is missing or unknown.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) *boardstore.Agent {
	key := apiKey(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, "API key required")
		return nil
	}
	agent, err := s.store.Authenticate(r.Context(), key)
	if err != nil {
		if boardstore.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return nil
		}
		serverLog("authentication failed: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return nil
	}
	return agent
}

// requireMod wraps a handler with the moderator gate: the configured mod
// key, via X-Mod-Key or Bearer. Mod keys and agent keys are distinct
// namespaces.
func (s *Server) requireMod(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.ModKey == "" {
			writeError(w, http.StatusForbidden, "moderation disabled")
			return
		}
		key := r.Header.Get("X-Mod-Key")
		if key == "" {
			key = apiKey(r)
		}
		if key != s.cfg.ModKey {
			writeError(w, http.StatusUnauthorized, "invalid mod key")
			return
		}
		next(w, r)
	}
}

// setRateLimitHeaders surfaces a window's state on the response.
func setRateLimitHeaders(w http.ResponseWriter, st *boardstore.RateLimitStatus) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(st.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(st.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(st.ResetAt, 10))
}

// rejectRateLimited consumes one request from a window and writes the 429
// when the caller is over. The retry hint is the window's reset time.
func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request, purpose, identity string, limit int, window time.Duration, surface bool) bool {
	st, err := s.store.CheckRateLimit(r.Context(), purpose, identity, limit, window)
	if err != nil {
		serverLog("rate limit check failed: %v", err)
		return false
	}
	if surface {
		setRateLimitHeaders(w, st)
	}
	if st.Exceeded {
		w.Header().Set("Retry-After", strconv.FormatInt(st.ResetAt-time.Now().Unix(), 10))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return true
	}
	return false
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// queryInt64 parses an int64 query parameter with a default.
func queryInt64(r *http.Request, name string, def int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}
