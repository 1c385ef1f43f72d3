package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wafguard-systems/wafguard/internal/classifier"
	"github.com/wafguard-systems/wafguard/internal/models"
	"github.com/wafguard-systems/wafguard/internal/repository"
)

const window = 60 * time.Second

func newCorrelator() *Correlator {
	return New(classifier.New(), window, models.DefaultThresholds)
}

func insertEvent(t *testing.T, store repository.Store, ip, rule string) int64 {
	t.Helper()
	id, err := store.InsertEvent(context.Background(), models.EventDraft{
		SourceIP: ip, RuleID: rule, Payload: "p", URI: "/", Action: "block",
	})
	require.NoError(t, err)
	return id
}

func TestCorrelate_CreatesIncidentOnFirstEvent(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	eventID := insertEvent(t, store, "1.1.1.1", "942100")
	inc, err := c.Correlate(ctx, store, eventID, "1.1.1.1", "942100", now)
	require.NoError(t, err)

	assert.Equal(t, "1.1.1.1", inc.SourceIP)
	assert.Equal(t, "SQL Injection", inc.Category)
	assert.Equal(t, 1, inc.EventCount)
	assert.Equal(t, models.SeverityLow, inc.Severity)
	assert.True(t, inc.FirstSeen.Equal(now))
	assert.True(t, inc.LastSeen.Equal(now))

	ids, err := store.IncidentEventIDs(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{eventID}, ids)
}

func TestCorrelate_SameCategoryRulesShareIncident(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two distinct rule ids with the same prefix, 10s apart.
	e1 := insertEvent(t, store, "1.1.1.1", "920100")
	first, err := c.Correlate(ctx, store, e1, "1.1.1.1", "920100", now)
	require.NoError(t, err)

	e2 := insertEvent(t, store, "1.1.1.1", "920440")
	second, err := c.Correlate(ctx, store, e2, "1.1.1.1", "920440", now.Add(10*time.Second))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.EventCount)
	assert.Equal(t, models.SeverityMedium, second.Severity)
	assert.True(t, second.FirstSeen.Equal(now), "first_seen fixed at creation")
	assert.True(t, second.LastSeen.Equal(now.Add(10*time.Second)))

	ids, err := store.IncidentEventIDs(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2, "event_count matches membership")
}

func TestCorrelate_FiveEventsEscalateToHigh(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var last *models.Incident
	for i := 0; i < 5; i++ {
		id := insertEvent(t, store, "9.9.9.9", "942100")
		inc, err := c.Correlate(ctx, store, id, "9.9.9.9", "942100", now.Add(time.Duration(i)*10*time.Second))
		require.NoError(t, err)
		last = inc
	}

	assert.Equal(t, 5, last.EventCount)
	assert.Equal(t, models.SeverityHigh, last.Severity)

	incidents, err := store.ListIncidents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, incidents, 1, "all five events share one incident")
}

func TestCorrelate_WindowGapStartsNewIncident(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e1 := insertEvent(t, store, "1.1.1.1", "941110")
	first, err := c.Correlate(ctx, store, e1, "1.1.1.1", "941110", now)
	require.NoError(t, err)

	// 120s later with a 60s window: the first incident has lapsed.
	e2 := insertEvent(t, store, "1.1.1.1", "941110")
	second, err := c.Correlate(ctx, store, e2, "1.1.1.1", "941110", now.Add(120*time.Second))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.EventCount)
	assert.Equal(t, models.SeverityLow, second.Severity)

	incidents, err := store.ListIncidents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
	for _, inc := range incidents {
		assert.Equal(t, 1, inc.EventCount)
		assert.Equal(t, models.SeverityLow, inc.Severity)
	}
}

func TestCorrelate_ExactWindowBoundaryStillOpen(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e1 := insertEvent(t, store, "1.1.1.1", "941110")
	first, err := c.Correlate(ctx, store, e1, "1.1.1.1", "941110", now)
	require.NoError(t, err)

	// last_seen == cutoff is inclusive.
	e2 := insertEvent(t, store, "1.1.1.1", "941110")
	second, err := c.Correlate(ctx, store, e2, "1.1.1.1", "941110", now.Add(window))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestCorrelate_KeysAreIndependent(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e1 := insertEvent(t, store, "1.1.1.1", "942100")
	sqli, err := c.Correlate(ctx, store, e1, "1.1.1.1", "942100", now)
	require.NoError(t, err)

	e2 := insertEvent(t, store, "1.1.1.1", "941110")
	xss, err := c.Correlate(ctx, store, e2, "1.1.1.1", "941110", now)
	require.NoError(t, err)

	e3 := insertEvent(t, store, "2.2.2.2", "942100")
	otherIP, err := c.Correlate(ctx, store, e3, "2.2.2.2", "942100", now)
	require.NoError(t, err)

	assert.NotEqual(t, sqli.ID, xss.ID)
	assert.NotEqual(t, sqli.ID, otherIP.ID)
}

func TestCorrelate_UnknownRuleFallsBackToGeneric(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id := insertEvent(t, store, "1.1.1.1", "unknown")
	inc, err := c.Correlate(ctx, store, id, "1.1.1.1", "unknown", now)
	require.NoError(t, err)

	assert.Equal(t, classifier.FallbackCategory, inc.Category)
}

func TestCorrelate_ConcurrentSameKeyOpensOneIncident(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	const workers = 16
	ids := make([]int64, workers)
	for i := range ids {
		ids[i] = insertEvent(t, store, "7.7.7.7", "942100")
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Correlate(ctx, store, ids[i], "7.7.7.7", "942100", now.Add(time.Duration(i)*time.Millisecond))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	incidents, err := store.ListIncidents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, incidents, 1, "per-key serialization must prevent duplicate open incidents")
	assert.Equal(t, workers, incidents[0].EventCount)
}

func TestCorrelate_SeverityMonotonicWithinIncident(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCorrelator()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rank := map[models.Severity]int{models.SeverityLow: 0, models.SeverityMedium: 1, models.SeverityHigh: 2}

	prev := -1
	for i := 0; i < 8; i++ {
		id := insertEvent(t, store, "3.3.3.3", "930120")
		inc, err := c.Correlate(ctx, store, id, "3.3.3.3", "930120", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.GreaterOrEqual(t, rank[inc.Severity], prev)
		prev = rank[inc.Severity]
	}
}
