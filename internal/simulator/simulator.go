// Package simulator generates synthetic attack traffic for exercising the
// ingestion pipeline end to end.
//
// Two modes exist: log mode appends well-formed ModSecurity-style audit
// records directly to the tailed file, http mode fires the attack requests at
// a live target and lets the real WAF produce the audit records.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Pattern is one named attack shape with the CRS rule it trips.
type Pattern struct {
	Name    string
	RuleID  string
	Message string
	URI     string
}

// Patterns are the built-in attack shapes. Rule ids use real CRS prefixes so
// the classifier maps each pattern to its category.
var Patterns = []Pattern{
	{
		Name:    "sqli",
		RuleID:  "942100",
		Message: "SQL Injection Attack Detected via libinjection",
		URI:     "/rest/products/search?q=apple' OR 1=1--",
	},
	{
		Name:    "xss",
		RuleID:  "941110",
		Message: "XSS Filter - Category 1: Script Tag Vector",
		URI:     "/search?q=<script>alert('XSS')</script>",
	},
	{
		Name:    "traversal",
		RuleID:  "930110",
		Message: "Path Traversal Attack (/../)",
		URI:     "/ftp/../../etc/passwd",
	},
	{
		Name:    "cmdinjection",
		RuleID:  "932160",
		Message: "Remote Command Execution: Unix Shell Code Found",
		URI:     "/api?id=1;cat /etc/passwd",
	},
	{
		Name:    "scanner",
		RuleID:  "913100",
		Message: "Found User-Agent associated with security scanner",
		URI:     "/",
	},
}

// Config controls a simulation run.
type Config struct {
	// Count is the number of records (log mode) or requests (http mode).
	Count int
	// Interval is the pause between consecutive records/requests.
	Interval time.Duration
	// SourceIP pins every record to one source; empty picks a random IP per
	// record, which spreads events across correlation keys.
	SourceIP string
	// Patterns restricts the run to the named patterns; empty uses all.
	Patterns []string
}

// selectPatterns resolves cfg.Patterns against the built-in table.
func selectPatterns(cfg Config) ([]Pattern, error) {
	if len(cfg.Patterns) == 0 {
		return Patterns, nil
	}

	byName := make(map[string]Pattern, len(Patterns))
	for _, p := range Patterns {
		byName[p.Name] = p
	}

	out := make([]Pattern, 0, len(cfg.Patterns))
	for _, name := range cfg.Patterns {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown attack pattern %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// Record builds one audit record for a pattern, shaped like the ModSecurity
// JSON audit log the tailer consumes.
func Record(p Pattern, sourceIP string) map[string]interface{} {
	return map[string]interface{}{
		"transaction": map[string]interface{}{
			"client_ip": sourceIP,
			"request": map[string]interface{}{
				"uri":    p.URI,
				"method": "GET",
				"headers": map[string]interface{}{
					"User-Agent": gofakeit.UserAgent(),
				},
			},
			"messages": []map[string]interface{}{
				{
					"message": p.Message,
					"details": map[string]interface{}{
						"ruleId": p.RuleID,
					},
				},
			},
		},
	}
}

// WriteRecords emits cfg.Count audit records to w, one JSON line each,
// pausing cfg.Interval between records. It returns the number written.
func WriteRecords(ctx context.Context, w io.Writer, cfg Config) (int, error) {
	patterns, err := selectPatterns(cfg)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	written := 0
	for i := 0; i < cfg.Count; i++ {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}

		p := patterns[rand.Intn(len(patterns))]
		ip := cfg.SourceIP
		if ip == "" {
			ip = gofakeit.IPv4Address()
		}

		if err := enc.Encode(Record(p, ip)); err != nil {
			return written, fmt.Errorf("write record: %w", err)
		}
		written++

		if cfg.Interval > 0 && i < cfg.Count-1 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(cfg.Interval):
			}
		}
	}

	return written, nil
}

// AppendToFile appends records to the audit log at path, creating it if
// needed.
func AppendToFile(ctx context.Context, path string, cfg Config) (int, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return WriteRecords(ctx, f, cfg)
}

// Fire sends cfg.Count live attack requests against target and returns the
// number that received a response. Per-request failures are returned only
// when every request fails.
func Fire(ctx context.Context, client *http.Client, target string, cfg Config) (int, error) {
	patterns, err := selectPatterns(cfg)
	if err != nil {
		return 0, err
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	sent := 0
	var lastErr error
	for i := 0; i < cfg.Count; i++ {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		p := patterns[i%len(patterns)]
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+p.URI, nil)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		sent++

		if cfg.Interval > 0 && i < cfg.Count-1 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(cfg.Interval):
			}
		}
	}

	if sent == 0 && lastErr != nil {
		return 0, fmt.Errorf("all requests failed: %w", lastErr)
	}
	return sent, nil
}
