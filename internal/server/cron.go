package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// authorizedCron compares the bearer token with the configured secret in
// constant time. It writes the failure response itself.
func (s *Server) authorizedCron(w http.ResponseWriter, r *http.Request) bool {
	if s.cronSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "cron secret not configured")
		return false
	}

	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) != 1 {
		slog.Warn("Rejected batch trigger", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedCron(w, r) {
		return
	}

	result, err := s.batch.RunDue(r.Context(), s.orchestrator.Now())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
