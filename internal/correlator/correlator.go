// Package correlator groups events into incidents keyed by source IP and
// attack category within a rolling time window.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wafguard-systems/wafguard/internal/classifier"
	"github.com/wafguard-systems/wafguard/internal/metrics"
	"github.com/wafguard-systems/wafguard/internal/models"
	"github.com/wafguard-systems/wafguard/internal/repository"
)

// Correlator performs the windowed create-or-update of incidents. The
// read-check-write per (source IP, category) key is serialized with a per-key
// mutex, so concurrent callers cannot both miss the lookup and open two
// incidents for the same key.
type Correlator struct {
	classifier *classifier.Classifier
	window     time.Duration
	thresholds models.Thresholds

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a correlator with the given window and severity thresholds.
func New(c *classifier.Classifier, window time.Duration, thresholds models.Thresholds) *Correlator {
	return &Correlator{
		classifier: c,
		window:     window,
		thresholds: thresholds,
		locks:      make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex guarding one (source IP, category) key.
// Lock entries are never removed; the key space is bounded by the set of
// attacking sources seen during the process lifetime.
func (c *Correlator) keyLock(sourceIP, category string) *sync.Mutex {
	key := sourceIP + "\x00" + category

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Correlate attaches the event to the open incident for its key, creating a
// new incident when none is open, and returns the created or updated incident.
// now is the event's correlation timestamp; the window cutoff is measured
// from it.
func (c *Correlator) Correlate(ctx context.Context, store repository.Store, eventID int64, sourceIP, ruleID string, now time.Time) (*models.Incident, error) {
	category := c.classifier.Classify(ruleID)
	cutoff := now.Add(-c.window)

	lock := c.keyLock(sourceIP, category)
	lock.Lock()
	defer lock.Unlock()

	inc, err := store.FindOpenIncident(ctx, sourceIP, category, cutoff)
	switch {
	case err == nil:
		inc.EventCount++
		inc.LastSeen = now
		inc.Severity = models.SeverityFor(inc.EventCount, c.thresholds)

		if err := store.UpdateIncident(ctx, inc.ID, inc.LastSeen, inc.EventCount, inc.Severity); err != nil {
			return nil, fmt.Errorf("update incident %d: %w", inc.ID, err)
		}
		metrics.IncidentsUpdated.Inc()

	case errors.Is(err, repository.ErrIncidentNotFound):
		inc = &models.Incident{
			SourceIP:   sourceIP,
			Category:   category,
			Severity:   models.SeverityFor(1, c.thresholds),
			FirstSeen:  now,
			LastSeen:   now,
			EventCount: 1,
		}
		id, err := store.InsertIncident(ctx, inc)
		if err != nil {
			return nil, fmt.Errorf("insert incident: %w", err)
		}
		inc.ID = id
		metrics.IncidentsCreated.Inc()

	default:
		return nil, fmt.Errorf("find open incident: %w", err)
	}

	if err := store.LinkEventToIncident(ctx, inc.ID, eventID); err != nil {
		return nil, fmt.Errorf("link event %d: %w", eventID, err)
	}

	return inc, nil
}
