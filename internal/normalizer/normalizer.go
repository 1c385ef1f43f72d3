// Package normalizer converts raw ModSecurity audit records into event drafts.
package normalizer

import (
	"encoding/json"
	"fmt"

	"github.com/wafguard-systems/wafguard/internal/models"
)

const (
	// DefaultSourceIP is substituted when the transaction carries no client ip.
	DefaultSourceIP = "unknown"
	// DefaultRuleID is substituted when a message carries no rule id.
	DefaultRuleID = "unknown"
	// DefaultURI is substituted when the request carries no uri.
	DefaultURI = "/"
	// DefaultPayload is substituted when a message carries no text.
	DefaultPayload = "No message"
	// ActionBlock is the disposition recorded for every drafted event.
	ActionBlock = "block"

	// localSource suppresses the empty-message diagnostic for health checks.
	localSource = "127.0.0.1"
)

// auditRecord is the subset of a ModSecurity JSON audit entry we consume.
type auditRecord struct {
	Transaction struct {
		ClientIP string `json:"client_ip"`
		Request  struct {
			URI string `json:"uri"`
		} `json:"request"`
		Messages []struct {
			Message string `json:"message"`
			Details struct {
				RuleID string `json:"ruleId"`
			} `json:"details"`
		} `json:"messages"`
	} `json:"transaction"`
}

// Result is the outcome of normalizing one raw record. Drafts may be empty
// for a well-formed record whose transaction carries no messages.
type Result struct {
	SourceIP string
	URI      string
	Drafts   []models.EventDraft
}

// Empty reports whether the record produced no event drafts.
func (r *Result) Empty() bool { return len(r.Drafts) == 0 }

// LocalSource reports whether the record originates from the local host, in
// which case the empty-message diagnostic should be suppressed.
func (r *Result) LocalSource() bool { return r.SourceIP == localSource }

// Normalize decodes one raw audit log line and extracts one event draft per
// firewall message, substituting defaults for absent optional fields.
func Normalize(raw []byte) (*Result, error) {
	var record auditRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}

	res := &Result{
		SourceIP: record.Transaction.ClientIP,
		URI:      record.Transaction.Request.URI,
	}
	if res.SourceIP == "" {
		res.SourceIP = DefaultSourceIP
	}
	if res.URI == "" {
		res.URI = DefaultURI
	}

	for _, msg := range record.Transaction.Messages {
		draft := models.EventDraft{
			SourceIP: res.SourceIP,
			RuleID:   msg.Details.RuleID,
			Payload:  msg.Message,
			URI:      res.URI,
			Action:   ActionBlock,
		}
		if draft.RuleID == "" {
			draft.RuleID = DefaultRuleID
		}
		if draft.Payload == "" {
			draft.Payload = DefaultPayload
		}
		res.Drafts = append(res.Drafts, draft)
	}

	return res, nil
}
