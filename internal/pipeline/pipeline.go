// Package pipeline connects the tailer to the correlation engine through a
// bounded in-process queue.
package pipeline

import (
	"context"
	"time"

	"github.com/wafguard-systems/wafguard/internal/correlator"
	"github.com/wafguard-systems/wafguard/internal/logging"
	"github.com/wafguard-systems/wafguard/internal/metrics"
	"github.com/wafguard-systems/wafguard/internal/normalizer"
	"github.com/wafguard-systems/wafguard/internal/repository"
)

// Processor consumes raw log lines in arrival order and turns each into
// persisted events and a created-or-updated incident. A single consumer
// goroutine preserves per-key event ordering.
type Processor struct {
	store          repository.Store
	correlator     *correlator.Correlator
	logger         *logging.Logger
	queue          chan []byte
	enqueueTimeout time.Duration

	// now supplies correlation timestamps; tests may override it.
	now func() time.Time
}

// New creates a processor with a bounded queue of queueSize raw lines.
func New(store repository.Store, corr *correlator.Correlator, logger *logging.Logger, queueSize int, enqueueTimeout time.Duration) *Processor {
	return &Processor{
		store:          store,
		correlator:     corr,
		logger:         logger,
		queue:          make(chan []byte, queueSize),
		enqueueTimeout: enqueueTimeout,
		now:            time.Now,
	}
}

// Enqueue hands one raw line to the processor. It blocks up to the configured
// timeout when the queue is full, then drops the line with an error log;
// records are never dropped silently.
func (p *Processor) Enqueue(line []byte) {
	cp := make([]byte, len(line))
	copy(cp, line)

	select {
	case p.queue <- cp:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return
	default:
	}

	timer := time.NewTimer(p.enqueueTimeout)
	defer timer.Stop()

	select {
	case p.queue <- cp:
		metrics.QueueDepth.Set(float64(len(p.queue)))
	case <-timer.C:
		metrics.RecordsDropped.Inc()
		p.logger.Error("record queue full past timeout, dropping line",
			"timeout", p.enqueueTimeout, "line", truncate(cp, 200))
	}
}

// Run consumes the queue until ctx is cancelled, then drains whatever is
// already queued before returning.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case line := <-p.queue:
			metrics.QueueDepth.Set(float64(len(p.queue)))
			p.ProcessLine(ctx, line)
		}
	}
}

// drain processes already-queued lines with a background context so a
// shutdown does not discard accepted records.
func (p *Processor) drain() {
	for {
		select {
		case line := <-p.queue:
			metrics.QueueDepth.Set(float64(len(p.queue)))
			p.ProcessLine(context.Background(), line)
		default:
			return
		}
	}
}

// ProcessLine decodes, normalizes and correlates one raw log line. Malformed
// lines and store failures are logged and skipped; they never stop the loop.
func (p *Processor) ProcessLine(ctx context.Context, line []byte) {
	start := time.Now()
	defer func() {
		metrics.CorrelationDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := normalizer.Normalize(line)
	if err != nil {
		metrics.DecodeErrors.Inc()
		p.logger.WarnContext(ctx, "skipping malformed log line",
			"error", err, "line", truncate(line, 200))
		return
	}

	if res.Empty() {
		if !res.LocalSource() {
			p.logger.WarnContext(ctx, "no messages in log entry",
				"src_ip", res.SourceIP, "uri", res.URI)
		}
		return
	}

	now := p.now()
	err = p.store.InTx(ctx, func(tx repository.Store) error {
		for _, draft := range res.Drafts {
			eventID, err := tx.InsertEvent(ctx, draft)
			if err != nil {
				return err
			}

			inc, err := p.correlator.Correlate(ctx, tx, eventID, draft.SourceIP, draft.RuleID, now)
			if err != nil {
				return err
			}

			metrics.EventsInserted.Inc()
			p.logger.InfoContext(ctx, "event correlated",
				"src_ip", draft.SourceIP, "rule_id", draft.RuleID, "uri", draft.URI,
				"incident_id", inc.ID, "severity", inc.Severity, "event_count", inc.EventCount)
		}
		return nil
	})
	if err != nil {
		metrics.RecordFailures.Inc()
		p.logger.ErrorContext(ctx, "failed to persist record",
			"error", err, "src_ip", res.SourceIP, "uri", res.URI, "events", len(res.Drafts))
	}
}

// truncate bounds logged line snippets.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
