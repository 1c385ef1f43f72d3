package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wafguard-systems/wafguard/internal/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method works inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgresStore creates a PostgreSQL-backed store and verifies the
// connection with a ping.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool, q: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InTx runs fn against a transaction-scoped store. The transaction commits if
// fn returns nil and rolls back otherwise.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fmt.Errorf("nested transactions are not supported")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertEvent persists one event draft and returns the assigned id.
func (s *PostgresStore) InsertEvent(ctx context.Context, draft models.EventDraft) (int64, error) {
	query := `
		INSERT INTO events (src_ip, rule_id, payload, uri, action)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := s.q.QueryRow(ctx, query,
		draft.SourceIP, draft.RuleID, draft.Payload, draft.URI, draft.Action,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	return id, nil
}

// FindOpenIncident returns the most recently updated incident for the key
// with last_seen at or after cutoff.
func (s *PostgresStore) FindOpenIncident(ctx context.Context, sourceIP, category string, cutoff time.Time) (*models.Incident, error) {
	query := `
		SELECT id, src_ip, category, severity, first_seen, last_seen, event_count
		FROM incidents
		WHERE src_ip = $1 AND category = $2 AND last_seen >= $3
		ORDER BY last_seen DESC, id DESC
		LIMIT 1
	`

	inc := &models.Incident{}
	err := s.q.QueryRow(ctx, query, sourceIP, category, cutoff).Scan(
		&inc.ID, &inc.SourceIP, &inc.Category, &inc.Severity,
		&inc.FirstSeen, &inc.LastSeen, &inc.EventCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to find open incident: %w", err)
	}

	return inc, nil
}

// InsertIncident persists a new incident and returns its id.
func (s *PostgresStore) InsertIncident(ctx context.Context, inc *models.Incident) (int64, error) {
	query := `
		INSERT INTO incidents (src_ip, category, severity, first_seen, last_seen, event_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := s.q.QueryRow(ctx, query,
		inc.SourceIP, inc.Category, inc.Severity,
		inc.FirstSeen, inc.LastSeen, inc.EventCount,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert incident: %w", err)
	}

	return id, nil
}

// UpdateIncident rewrites the mutable fields of an incident.
func (s *PostgresStore) UpdateIncident(ctx context.Context, id int64, lastSeen time.Time, eventCount int, severity models.Severity) error {
	query := `
		UPDATE incidents
		SET last_seen = $1, event_count = $2, severity = $3
		WHERE id = $4
	`

	tag, err := s.q.Exec(ctx, query, lastSeen, eventCount, severity, id)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIncidentNotFound
	}

	return nil
}

// LinkEventToIncident records event membership in an incident.
func (s *PostgresStore) LinkEventToIncident(ctx context.Context, incidentID, eventID int64) error {
	query := `INSERT INTO incident_events (incident_id, event_id) VALUES ($1, $2)`

	if _, err := s.q.Exec(ctx, query, incidentID, eventID); err != nil {
		return fmt.Errorf("failed to link event %d to incident %d: %w", eventID, incidentID, err)
	}

	return nil
}

// ListEvents returns events newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	query := `
		SELECT id, src_ip, rule_id, payload, uri, action, timestamp
		FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0, limit)
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.SourceIP, &e.RuleID, &e.Payload, &e.URI, &e.Action, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}

// ListIncidents returns incidents ordered by last_seen descending.
func (s *PostgresStore) ListIncidents(ctx context.Context, limit int) ([]models.Incident, error) {
	query := `
		SELECT id, src_ip, category, severity, first_seen, last_seen, event_count
		FROM incidents
		ORDER BY last_seen DESC, id DESC
		LIMIT $1
	`

	rows, err := s.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]models.Incident, 0, limit)
	for rows.Next() {
		var inc models.Incident
		if err := rows.Scan(&inc.ID, &inc.SourceIP, &inc.Category, &inc.Severity,
			&inc.FirstSeen, &inc.LastSeen, &inc.EventCount); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read incidents: %w", err)
	}

	return incidents, nil
}

// IncidentEventIDs returns the member event ids of an incident.
func (s *PostgresStore) IncidentEventIDs(ctx context.Context, incidentID int64) ([]int64, error) {
	query := `SELECT event_id FROM incident_events WHERE incident_id = $1 ORDER BY event_id`

	rows, err := s.q.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incident events: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read incident events: %w", err)
	}

	return ids, nil
}

// Stats computes the dashboard aggregates in one round trip per aggregate.
func (s *PostgresStore) Stats(ctx context.Context, recentWindow time.Duration) (*models.Stats, error) {
	stats := &models.Stats{}

	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	recentQuery := `SELECT COUNT(*) FROM events WHERE timestamp > now() - $1::interval`
	if err := s.q.QueryRow(ctx, recentQuery, recentWindow.String()).Scan(&stats.RecentEvents); err != nil {
		return nil, fmt.Errorf("failed to count recent events: %w", err)
	}

	ipQuery := `
		SELECT src_ip, COUNT(*) AS count
		FROM events
		GROUP BY src_ip
		ORDER BY count DESC
		LIMIT 5
	`
	ipRows, err := s.q.Query(ctx, ipQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query top source ips: %w", err)
	}
	defer ipRows.Close()
	for ipRows.Next() {
		var row models.SourceIPCount
		if err := ipRows.Scan(&row.SourceIP, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top source ip: %w", err)
		}
		stats.TopSourceIPs = append(stats.TopSourceIPs, row)
	}
	if err := ipRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top source ips: %w", err)
	}

	ruleQuery := `
		SELECT rule_id, payload, COUNT(*) AS count
		FROM events
		GROUP BY rule_id, payload
		ORDER BY count DESC
		LIMIT 5
	`
	ruleRows, err := s.q.Query(ctx, ruleQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query top rules: %w", err)
	}
	defer ruleRows.Close()
	for ruleRows.Next() {
		var row models.RuleCount
		if err := ruleRows.Scan(&row.RuleID, &row.Payload, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top rule: %w", err)
		}
		stats.TopRules = append(stats.TopRules, row)
	}
	if err := ruleRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top rules: %w", err)
	}

	catQuery := `SELECT category, COUNT(*) FROM incidents GROUP BY category ORDER BY COUNT(*) DESC`
	catRows, err := s.q.Query(ctx, catQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var row models.CategoryCount
		if err := catRows.Scan(&row.Category, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.CategoryCount = append(stats.CategoryCount, row)
	}
	if err := catRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read category counts: %w", err)
	}

	return stats, nil
}

// UpdateEventAction rewrites the action of an existing event.
func (s *PostgresStore) UpdateEventAction(ctx context.Context, eventID int64, action string) error {
	tag, err := s.q.Exec(ctx, `UPDATE events SET action = $1 WHERE id = $2`, action, eventID)
	if err != nil {
		return fmt.Errorf("failed to update event action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}

	return nil
}
