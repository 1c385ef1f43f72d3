// Package handlers implements the dashboard read API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wafguard-systems/wafguard/internal/httputil"
	"github.com/wafguard-systems/wafguard/internal/logging"
	"github.com/wafguard-systems/wafguard/internal/repository"
	"github.com/wafguard-systems/wafguard/internal/statscache"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	incidentListLimit = 100
	statsRecentWindow = time.Hour
)

// validActions are the dispositions an analyst may assign to an event.
var validActions = map[string]bool{"allow": true, "block": true, "challenge": true}

// Handler serves the read API against the store.
type Handler struct {
	store  repository.Store
	cache  *statscache.Cache
	logger *logging.Logger
}

// NewHandler creates a read API handler. cache may be a disabled passthrough.
func NewHandler(store repository.Store, cache *statscache.Cache, logger *logging.Logger) *Handler {
	return &Handler{store: store, cache: cache, logger: logger}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListEvents serves GET /api/v1/events?limit=&offset=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultEventLimit)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > maxEventLimit || offset < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid limit or offset")
		return
	}

	events, err := h.store.ListEvents(r.Context(), limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list events", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// ListIncidents serves GET /api/v1/incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.store.ListIncidents(r.Context(), incidentListLimit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list incidents", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// GetStats serves GET /api/v1/stats, consulting the cache first.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if stats := h.cache.Get(r.Context()); stats != nil {
		httputil.WriteJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := h.store.Stats(r.Context(), statsRecentWindow)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to compute stats", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	h.cache.Set(r.Context(), stats)
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// UpdateEventAction serves POST /api/v1/events/{id}/action.
func (h *Handler) UpdateEventAction(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDFromPath(r.URL.Path)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validActions[body.Action] {
		httputil.WriteError(w, http.StatusBadRequest, "action must be one of allow, block, challenge")
		return
	}

	if err := h.store.UpdateEventAction(r.Context(), eventID, body.Action); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update event action",
			"event_id", eventID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update event action")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("event %d updated to %s", eventID, body.Action),
	})
}

// eventIDFromPath extracts the id from /api/v1/events/{id}/action.
func eventIDFromPath(path string) (int64, bool) {
	rest, ok := strings.CutPrefix(path, "/api/v1/events/")
	if !ok {
		return 0, false
	}
	idStr, ok := strings.CutSuffix(rest, "/action")
	if !ok {
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
