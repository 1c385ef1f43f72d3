package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	raw := []byte(`{
		"transaction": {
			"client_ip": "203.0.113.7",
			"request": {"uri": "/search?q=<script>"},
			"messages": [
				{"message": "XSS Attack Detected", "details": {"ruleId": "941110"}},
				{"message": "Inbound Anomaly Score Exceeded", "details": {"ruleId": "949110"}}
			]
		}
	}`)

	res, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, res.Drafts, 2)

	first := res.Drafts[0]
	assert.Equal(t, "203.0.113.7", first.SourceIP)
	assert.Equal(t, "941110", first.RuleID)
	assert.Equal(t, "XSS Attack Detected", first.Payload)
	assert.Equal(t, "/search?q=<script>", first.URI)
	assert.Equal(t, ActionBlock, first.Action)

	assert.Equal(t, "949110", res.Drafts[1].RuleID)
}

func TestNormalize_Defaults(t *testing.T) {
	raw := []byte(`{"transaction": {"messages": [{}]}}`)

	res, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, res.Drafts, 1)

	draft := res.Drafts[0]
	assert.Equal(t, DefaultSourceIP, draft.SourceIP)
	assert.Equal(t, DefaultRuleID, draft.RuleID)
	assert.Equal(t, DefaultPayload, draft.Payload)
	assert.Equal(t, DefaultURI, draft.URI)
	assert.Equal(t, ActionBlock, draft.Action)
}

func TestNormalize_EmptyMessages(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		local bool
	}{
		{"no messages key", `{"transaction": {"client_ip": "203.0.113.5"}}`, false},
		{"empty messages array", `{"transaction": {"client_ip": "203.0.113.5", "messages": []}}`, false},
		{"local health check", `{"transaction": {"client_ip": "127.0.0.1", "messages": []}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize([]byte(tt.raw))
			require.NoError(t, err)
			assert.True(t, res.Empty())
			assert.Equal(t, tt.local, res.LocalSource())
		})
	}
}

func TestNormalize_MalformedJSON(t *testing.T) {
	_, err := Normalize([]byte(`{"transaction": `))
	require.Error(t, err)
}
