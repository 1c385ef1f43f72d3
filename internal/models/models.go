package models

import "time"

// Severity is the escalation level of an incident. It is derived purely from
// the incident's event count and never stored independently of it.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Thresholds holds the inclusive lower bounds for severity escalation.
type Thresholds struct {
	Medium int
	High   int
}

// DefaultThresholds mirrors the stock escalation table: 2 events raise an
// incident to Medium, 5 to High.
var DefaultThresholds = Thresholds{Medium: 2, High: 5}

// SeverityFor computes the severity for an event count, evaluated high to low.
func SeverityFor(count int, t Thresholds) Severity {
	switch {
	case count >= t.High:
		return SeverityHigh
	case count >= t.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Event is one normalized record of a single detected rule match within a
// firewall transaction. Immutable after insertion; only Action may later be
// rewritten through the read API.
type Event struct {
	ID        int64     `json:"id"`
	SourceIP  string    `json:"src_ip"`
	RuleID    string    `json:"rule_id"`
	Payload   string    `json:"payload"`
	URI       string    `json:"uri"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// EventDraft is an event as produced by the normalizer, before the store has
// assigned an ID and timestamp.
type EventDraft struct {
	SourceIP string
	RuleID   string
	Payload  string
	URI      string
	Action   string
}

// Incident aggregates events sharing a source IP and attack category within a
// rolling time window.
type Incident struct {
	ID         int64     `json:"id"`
	SourceIP   string    `json:"src_ip"`
	Category   string    `json:"category"`
	Severity   Severity  `json:"severity"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	EventCount int       `json:"event_count"`
}

// Stats is the aggregate snapshot served by the read API.
type Stats struct {
	TotalEvents   int64           `json:"total_events"`
	RecentEvents  int64           `json:"recent_events"`
	TopSourceIPs  []SourceIPCount `json:"top_ips"`
	TopRules      []RuleCount     `json:"top_rules"`
	CategoryCount []CategoryCount `json:"categories"`
}

// SourceIPCount is one row of the top-attackers aggregate.
type SourceIPCount struct {
	SourceIP string `json:"src_ip"`
	Count    int64  `json:"count"`
}

// RuleCount is one row of the top-triggered-rules aggregate.
type RuleCount struct {
	RuleID  string `json:"rule_id"`
	Payload string `json:"payload"`
	Count   int64  `json:"count"`
}

// CategoryCount is the number of incidents per attack category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
