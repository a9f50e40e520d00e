package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lepinkainen/og-monitor/pkg/feed"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/urlutils"
)

type inspectRequest struct {
	URL string `json:"url"`
}

type createMonitorRequest struct {
	UserID         string `json:"user_id"`
	URL            string `json:"url"`
	Nickname       string `json:"nickname"`
	CheckFrequency string `json:"check_frequency"`
	AlertsEnabled  *bool  `json:"alerts_enabled"`
	NotifyTo       string `json:"notify_to"`
}

type updateMonitorRequest struct {
	Nickname       *string `json:"nickname"`
	CheckFrequency *string `json:"check_frequency"`
	AlertsEnabled  *bool   `json:"alerts_enabled"`
	NotifyTo       *string `json:"notify_to"`
}

// store returns the datastore, or writes 503 when none is configured
func (s *Server) store(w http.ResponseWriter, r *http.Request) (monitor.Store, bool) {
	st := s.orchestrator.Store()
	if st == nil {
		writeStoreError(w, r, fmt.Errorf("%w: no datastore configured", monitor.ErrUnavailable))
		return nil, false
	}
	return st, true
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target := strings.TrimSpace(req.URL)
	if !urlutils.IsHTTPURL(target) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("url must be an absolute http or https URL, got %q", target))
		return
	}

	report, err := s.orchestrator.Inspect(r.Context(), target)
	if err != nil {
		var fetchErr *opengraph.FetchError
		if errors.As(err, &fetchErr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: fetchErr.Error(), Kind: string(fetchErr.Kind)})
			return
		}
		slog.Error("Inspection failed", "url", target, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	var req createMonitorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	freq, err := monitor.ParseFrequency(req.CheckFrequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := monitor.NewMonitor(req.UserID, strings.TrimSpace(req.URL), freq, s.orchestrator.Now())
	m.Nickname = req.Nickname
	m.NotifyTo = req.NotifyTo
	if req.AlertsEnabled != nil {
		m.AlertsEnabled = *req.AlertsEnabled
	}
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := st.CreateMonitor(r.Context(), m); err != nil {
		writeStoreError(w, r, err)
		return
	}
	slog.Info("Monitor created", "monitor_id", m.ID, "url", m.URL, "frequency", m.CheckFrequency)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	monitors, err := st.ListMonitors(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, monitors)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	m, err := st.GetMonitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	m, err := st.GetMonitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	var req updateMonitorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Nickname != nil {
		m.Nickname = *req.Nickname
	}
	if req.CheckFrequency != nil {
		freq, err := monitor.ParseFrequency(*req.CheckFrequency)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		m.CheckFrequency = freq
	}
	if req.AlertsEnabled != nil {
		m.AlertsEnabled = *req.AlertsEnabled
	}
	if req.NotifyTo != nil {
		m.NotifyTo = *req.NotifyTo
	}
	m.UpdatedAt = s.orchestrator.Now()

	if err := st.UpdateMonitorSettings(r.Context(), m); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := st.DeleteMonitor(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	slog.Info("Monitor deleted", "monitor_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.orchestrator.RunCheck(r.Context(), chi.URLParam(r, "id"), monitor.TriggerManual)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := st.GetMonitor(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	checks, err := st.ListChecks(r.Context(), id, limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var acknowledged *bool
	if raw := r.URL.Query().Get("acknowledged"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "acknowledged must be true or false")
			return
		}
		acknowledged = &v
	}

	id := chi.URLParam(r, "id")
	if _, err := st.GetMonitor(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	alerts, err := st.ListAlerts(r.Context(), id, acknowledged, limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// alertFeedLimit caps the number of entries in an alert feed
const alertFeedLimit = 50

func (s *Server) handleAlertFeed(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	m, err := st.GetMonitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	alerts, err := st.ListAlerts(r.Context(), m.ID, nil, alertFeedLimit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", feed.Atom.ContentType())
	if err := feed.ForMonitor(m, s.baseURL).Write(w, feed.AlertItems(m, alerts), feed.Atom); err != nil {
		slog.Error("Failed to write alert feed", "monitor_id", m.ID, "error", err)
	}
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := st.AcknowledgeAlert(r.Context(), id, s.orchestrator.Now()); err != nil {
		writeStoreError(w, r, err)
		return
	}
	alert, err := st.GetAlert(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	if err := st.DeleteAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
