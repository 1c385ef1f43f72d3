package simulator

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wafguard-systems/wafguard/internal/normalizer"
)

func TestWriteRecords_ProducesNormalizableLines(t *testing.T) {
	var buf bytes.Buffer

	n, err := WriteRecords(context.Background(), &buf, Config{Count: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		res, err := normalizer.Normalize(scanner.Bytes())
		require.NoError(t, err, "every simulated record must decode")
		require.Len(t, res.Drafts, 1)
		assert.NotEmpty(t, res.Drafts[0].RuleID)
		assert.NotEqual(t, normalizer.DefaultSourceIP, res.Drafts[0].SourceIP)
		lines++
	}
	assert.Equal(t, 10, lines)
}

func TestWriteRecords_PinnedSourceIP(t *testing.T) {
	var buf bytes.Buffer

	_, err := WriteRecords(context.Background(), &buf, Config{Count: 5, SourceIP: "203.0.113.99"})
	require.NoError(t, err)

	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		res, err := normalizer.Normalize(scanner.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.99", res.Drafts[0].SourceIP)
	}
}

func TestWriteRecords_PatternSelection(t *testing.T) {
	var buf bytes.Buffer

	_, err := WriteRecords(context.Background(), &buf, Config{Count: 8, Patterns: []string{"sqli"}})
	require.NoError(t, err)

	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		res, err := normalizer.Normalize(scanner.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "942100", res.Drafts[0].RuleID)
	}
}

func TestWriteRecords_UnknownPattern(t *testing.T) {
	_, err := WriteRecords(context.Background(), &bytes.Buffer{}, Config{Count: 1, Patterns: []string{"teapot"}})
	require.Error(t, err)
}

func TestWriteRecords_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := WriteRecords(ctx, &bytes.Buffer{}, Config{Count: 100})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestFire_SendsAttackRequests(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.RequestURI())
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sent, err := Fire(context.Background(), srv.Client(), srv.URL, Config{Count: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, sent)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, paths, 4)
}

func TestFire_AllRequestsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately unreachable

	_, err := Fire(context.Background(), nil, srv.URL, Config{Count: 2})
	require.Error(t, err)
}

func TestPatterns_RuleIDsMatchCRSPrefixes(t *testing.T) {
	for _, p := range Patterns {
		assert.Len(t, p.RuleID, 6, "pattern %s", p.Name)
		assert.NotEmpty(t, p.URI, "pattern %s", p.Name)
	}
}
