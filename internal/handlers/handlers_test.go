package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wafguard-systems/wafguard/internal/logging"
	"github.com/wafguard-systems/wafguard/internal/models"
	"github.com/wafguard-systems/wafguard/internal/repository"
	"github.com/wafguard-systems/wafguard/internal/statscache"
)

func newTestHandler(t *testing.T) (*Handler, *repository.MemoryStore) {
	t.Helper()

	store := repository.NewMemoryStore()
	cache, err := statscache.New("", 0, false)
	require.NoError(t, err)

	return NewHandler(store, cache, logging.New(slog.LevelError, "text")), store
}

func seedEvents(t *testing.T, store *repository.MemoryStore, n int) []int64 {
	t.Helper()

	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := store.InsertEvent(context.Background(), models.EventDraft{
			SourceIP: "203.0.113.7", RuleID: "942100", Payload: "SQLi", URI: "/search", Action: "block",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListEvents(t *testing.T) {
	h, store := newTestHandler(t)
	seedEvents(t, store, 3)

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []models.Event `json:"events"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	require.Len(t, body.Events, 3)
	assert.Equal(t, "203.0.113.7", body.Events[0].SourceIP)
}

func TestListEvents_Pagination(t *testing.T) {
	h, store := newTestHandler(t)
	seedEvents(t, store, 5)

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=2&offset=4", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestListEvents_InvalidParams(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, query := range []string{"?limit=0", "?limit=9999", "?offset=-1", "?limit=abc"} {
		rec := httptest.NewRecorder()
		h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %s", query)
	}
}

func TestListIncidents(t *testing.T) {
	h, store := newTestHandler(t)

	now := time.Now().UTC()
	_, err := store.InsertIncident(context.Background(), &models.Incident{
		SourceIP: "1.1.1.1", Category: "XSS", Severity: models.SeverityMedium,
		FirstSeen: now, LastSeen: now, EventCount: 2,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ListIncidents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Incidents []models.Incident `json:"incidents"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "XSS", body.Incidents[0].Category)
	assert.Equal(t, models.SeverityMedium, body.Incidents[0].Severity)
}

func TestGetStats(t *testing.T) {
	h, store := newTestHandler(t)
	seedEvents(t, store, 2)

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalEvents)
}

func TestUpdateEventAction(t *testing.T) {
	h, store := newTestHandler(t)
	ids := seedEvents(t, store, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/1/action",
		strings.NewReader(`{"action": "allow"}`))
	rec := httptest.NewRecorder()
	h.UpdateEventAction(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	events, err := store.ListEvents(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ids[0], events[0].ID)
	assert.Equal(t, "allow", events[0].Action)
}

func TestUpdateEventAction_Invalid(t *testing.T) {
	h, store := newTestHandler(t)
	seedEvents(t, store, 1)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown action", "/api/v1/events/1/action", `{"action": "nuke"}`, http.StatusBadRequest},
		{"malformed body", "/api/v1/events/1/action", `{`, http.StatusBadRequest},
		{"bad id", "/api/v1/events/abc/action", `{"action": "allow"}`, http.StatusBadRequest},
		{"missing suffix", "/api/v1/events/1", `{"action": "allow"}`, http.StatusBadRequest},
		{"absent event", "/api/v1/events/999/action", `{"action": "allow"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.UpdateEventAction(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
