// Package tailer follows an append-only log file by byte offset.
//
// The tailer starts at the file's current size and only ever processes bytes
// appended after start; historical backfill is deliberately out of scope.
// Consequently a restart skips lines appended while the process was down.
package tailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wafguard-systems/wafguard/internal/logging"
	"github.com/wafguard-systems/wafguard/internal/metrics"
)

// Handler receives one complete, trimmed, non-empty log line.
type Handler func(line []byte)

// Tailer owns a byte-offset cursor into the log file and a carry buffer for
// the incomplete trailing fragment of the previous read.
type Tailer struct {
	path     string
	interval time.Duration
	logger   *logging.Logger
	handler  Handler

	cursor int64
	carry  []byte
}

// New creates a tailer for path that polls at interval and forwards complete
// lines to handler.
func New(path string, interval time.Duration, logger *logging.Logger, handler Handler) *Tailer {
	return &Tailer{
		path:     path,
		interval: interval,
		logger:   logger,
		handler:  handler,
	}
}

// Cursor returns the byte offset already consumed.
func (t *Tailer) Cursor() int64 { return t.cursor }

// Run tails the file until ctx is cancelled. A missing file at startup is a
// wait condition, not an error; transient I/O failures are logged and treated
// as no new data for that cycle.
func (t *Tailer) Run(ctx context.Context) error {
	if err := t.waitForFile(ctx); err != nil {
		return err
	}

	info, err := os.Stat(t.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", t.path, err)
	}
	t.cursor = info.Size()
	t.logger.InfoContext(ctx, "tailer started", "path", t.path, "offset", t.cursor)

	for {
		if err := t.poll(ctx); err != nil {
			metrics.TailerErrors.Inc()
			t.logger.ErrorContext(ctx, "tailer poll failed", "path", t.path, "error", err)
		}

		if err := sleep(ctx, t.interval); err != nil {
			t.logger.InfoContext(ctx, "tailer stopped", "path", t.path, "offset", t.cursor)
			return err
		}
	}
}

// waitForFile blocks until the target file exists or ctx is cancelled.
func (t *Tailer) waitForFile(ctx context.Context) error {
	for {
		if _, err := os.Stat(t.path); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			metrics.TailerErrors.Inc()
			t.logger.WarnContext(ctx, "cannot stat log file, retrying", "path", t.path, "error", err)
		} else {
			t.logger.DebugContext(ctx, "waiting for log file", "path", t.path)
		}

		if err := sleep(ctx, t.interval); err != nil {
			return err
		}
	}
}

// poll reads any bytes appended since the last cycle and dispatches the
// complete lines among them.
func (t *Tailer) poll(ctx context.Context) error {
	info, err := os.Stat(t.path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() <= t.cursor {
		return nil
	}

	chunk, err := t.readFrom(t.cursor)
	if err != nil {
		return err
	}
	t.cursor += int64(len(chunk))
	metrics.BytesRead.Add(float64(len(chunk)))

	data := append(t.carry, chunk...)
	lines := bytes.Split(data, []byte("\n"))

	// The final element may be an unflushed fragment; hold it for the next
	// cycle instead of processing it now.
	t.carry = append([]byte(nil), lines[len(lines)-1]...)

	for _, line := range lines[:len(lines)-1] {
		if ctx.Err() != nil {
			return nil
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		metrics.LinesRead.Inc()
		t.handler(line)
	}

	return nil
}

// readFrom reads from offset to the current end of file.
func (t *Tailer) readFrom(offset int64) ([]byte, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to %d: %w", offset, err)
	}

	chunk, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	return chunk, nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
