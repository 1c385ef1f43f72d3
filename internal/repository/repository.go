// Package repository defines the persisted store for events and incidents.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wafguard-systems/wafguard/internal/models"
)

var (
	// ErrEventNotFound is returned when an event id does not exist.
	ErrEventNotFound = errors.New("event not found")
	// ErrIncidentNotFound is returned when no incident matches a lookup.
	ErrIncidentNotFound = errors.New("incident not found")
)

// Store is the persistence boundary for events and incidents.
//
// Writes performed inside InTx commit atomically, so readers never observe an
// event without its incident linkage or a linkage without its incident.
type Store interface {
	// InsertEvent persists one event draft and returns the store-assigned id.
	// The store assigns the timestamp at insertion.
	InsertEvent(ctx context.Context, draft models.EventDraft) (int64, error)

	// FindOpenIncident returns the incident for (sourceIP, category) whose
	// last_seen is at or after cutoff, preferring the most recently updated.
	// Returns ErrIncidentNotFound when no open incident exists.
	FindOpenIncident(ctx context.Context, sourceIP, category string, cutoff time.Time) (*models.Incident, error)

	// InsertIncident persists a new incident and returns its id.
	InsertIncident(ctx context.Context, inc *models.Incident) (int64, error)

	// UpdateIncident rewrites the mutable fields of an open incident.
	UpdateIncident(ctx context.Context, id int64, lastSeen time.Time, eventCount int, severity models.Severity) error

	// LinkEventToIncident records event membership in an incident.
	LinkEventToIncident(ctx context.Context, incidentID, eventID int64) error

	// ListEvents returns events newest first.
	ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error)

	// ListIncidents returns incidents ordered by last_seen descending.
	ListIncidents(ctx context.Context, limit int) ([]models.Incident, error)

	// IncidentEventIDs returns the member event ids of an incident in
	// insertion order.
	IncidentEventIDs(ctx context.Context, incidentID int64) ([]int64, error)

	// Stats computes the dashboard aggregates; recentWindow bounds the
	// "recent events" count.
	Stats(ctx context.Context, recentWindow time.Duration) (*models.Stats, error)

	// UpdateEventAction rewrites the action of an existing event.
	UpdateEventAction(ctx context.Context, eventID int64, action string) error

	// InTx runs fn against a store whose writes commit or roll back together.
	InTx(ctx context.Context, fn func(Store) error) error
}
