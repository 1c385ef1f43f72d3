package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wafguard-systems/wafguard/internal/models"
)

// MemoryStore is an in-memory Store used for tests and local development.
// All operations are serialized by a single mutex.
type MemoryStore struct {
	mu sync.Mutex

	// Now supplies event insertion timestamps; tests may override it.
	Now func() time.Time

	events       []models.Event
	incidents    []models.Incident
	links        map[int64][]int64
	nextEventID  int64
	nextIncident int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:          time.Now,
		links:        make(map[int64][]int64),
		nextEventID:  1,
		nextIncident: 1,
	}
}

// InTx runs fn against the store itself; the memory store has no rollback and
// relies on single-writer usage in tests.
func (m *MemoryStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(m)
}

// InsertEvent appends an event with the next id and the current timestamp.
func (m *MemoryStore) InsertEvent(_ context.Context, draft models.EventDraft) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := models.Event{
		ID:        m.nextEventID,
		SourceIP:  draft.SourceIP,
		RuleID:    draft.RuleID,
		Payload:   draft.Payload,
		URI:       draft.URI,
		Action:    draft.Action,
		Timestamp: m.Now(),
	}
	m.nextEventID++
	m.events = append(m.events, e)

	return e.ID, nil
}

// FindOpenIncident scans for the most recently updated incident for the key
// with last_seen at or after cutoff; ties break toward the higher id.
func (m *MemoryStore) FindOpenIncident(_ context.Context, sourceIP, category string, cutoff time.Time) (*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *models.Incident
	for i := range m.incidents {
		inc := &m.incidents[i]
		if inc.SourceIP != sourceIP || inc.Category != category || inc.LastSeen.Before(cutoff) {
			continue
		}
		if best == nil || inc.LastSeen.After(best.LastSeen) ||
			(inc.LastSeen.Equal(best.LastSeen) && inc.ID > best.ID) {
			best = inc
		}
	}
	if best == nil {
		return nil, ErrIncidentNotFound
	}

	out := *best
	return &out, nil
}

// InsertIncident appends an incident with the next id.
func (m *MemoryStore) InsertIncident(_ context.Context, inc *models.Incident) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *inc
	stored.ID = m.nextIncident
	m.nextIncident++
	m.incidents = append(m.incidents, stored)

	return stored.ID, nil
}

// UpdateIncident rewrites the mutable fields of an incident.
func (m *MemoryStore) UpdateIncident(_ context.Context, id int64, lastSeen time.Time, eventCount int, severity models.Severity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.incidents {
		if m.incidents[i].ID == id {
			m.incidents[i].LastSeen = lastSeen
			m.incidents[i].EventCount = eventCount
			m.incidents[i].Severity = severity
			return nil
		}
	}

	return ErrIncidentNotFound
}

// LinkEventToIncident records membership.
func (m *MemoryStore) LinkEventToIncident(_ context.Context, incidentID, eventID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.links[incidentID] = append(m.links[incidentID], eventID)
	return nil
}

// ListEvents returns events newest first.
func (m *MemoryStore) ListEvents(_ context.Context, limit, offset int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Event, len(m.events))
	copy(out, m.events)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	if offset >= len(out) {
		return []models.Event{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}

	return out, nil
}

// ListIncidents returns incidents ordered by last_seen descending.
func (m *MemoryStore) ListIncidents(_ context.Context, limit int) ([]models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Incident, len(m.incidents))
	copy(out, m.incidents)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID > out[j].ID
	})

	if limit < len(out) {
		out = out[:limit]
	}

	return out, nil
}

// IncidentEventIDs returns the member event ids of an incident.
func (m *MemoryStore) IncidentEventIDs(_ context.Context, incidentID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.links[incidentID]
	out := make([]int64, len(ids))
	copy(out, ids)

	return out, nil
}

// Stats computes the dashboard aggregates over the in-memory data.
func (m *MemoryStore) Stats(_ context.Context, recentWindow time.Duration) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &models.Stats{TotalEvents: int64(len(m.events))}

	recentCutoff := m.Now().Add(-recentWindow)
	ipCounts := make(map[string]int64)
	type ruleKey struct{ rule, payload string }
	ruleCounts := make(map[ruleKey]int64)

	for _, e := range m.events {
		if e.Timestamp.After(recentCutoff) {
			stats.RecentEvents++
		}
		ipCounts[e.SourceIP]++
		ruleCounts[ruleKey{e.RuleID, e.Payload}]++
	}

	for ip, n := range ipCounts {
		stats.TopSourceIPs = append(stats.TopSourceIPs, models.SourceIPCount{SourceIP: ip, Count: n})
	}
	sort.Slice(stats.TopSourceIPs, func(i, j int) bool {
		if stats.TopSourceIPs[i].Count != stats.TopSourceIPs[j].Count {
			return stats.TopSourceIPs[i].Count > stats.TopSourceIPs[j].Count
		}
		return stats.TopSourceIPs[i].SourceIP < stats.TopSourceIPs[j].SourceIP
	})
	if len(stats.TopSourceIPs) > 5 {
		stats.TopSourceIPs = stats.TopSourceIPs[:5]
	}

	for k, n := range ruleCounts {
		stats.TopRules = append(stats.TopRules, models.RuleCount{RuleID: k.rule, Payload: k.payload, Count: n})
	}
	sort.Slice(stats.TopRules, func(i, j int) bool {
		if stats.TopRules[i].Count != stats.TopRules[j].Count {
			return stats.TopRules[i].Count > stats.TopRules[j].Count
		}
		return stats.TopRules[i].RuleID < stats.TopRules[j].RuleID
	})
	if len(stats.TopRules) > 5 {
		stats.TopRules = stats.TopRules[:5]
	}

	catCounts := make(map[string]int64)
	for _, inc := range m.incidents {
		catCounts[inc.Category]++
	}
	for cat, n := range catCounts {
		stats.CategoryCount = append(stats.CategoryCount, models.CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(stats.CategoryCount, func(i, j int) bool {
		if stats.CategoryCount[i].Count != stats.CategoryCount[j].Count {
			return stats.CategoryCount[i].Count > stats.CategoryCount[j].Count
		}
		return stats.CategoryCount[i].Category < stats.CategoryCount[j].Category
	})

	return stats, nil
}

// UpdateEventAction rewrites the action of an existing event.
func (m *MemoryStore) UpdateEventAction(_ context.Context, eventID int64, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].ID == eventID {
			m.events[i].Action = action
			return nil
		}
	}

	return ErrEventNotFound
}
