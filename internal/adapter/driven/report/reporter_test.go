package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointsweep/internal/domain/model"
)

func sampleResult() model.RunResult {
	return model.RunResult{
		RunID:       "run-1",
		Email:       "a@example.com",
		FinalPoints: 135,
		DesktopGain: 20,
		MobileGain:  15,
		TotalGain:   35,
	}
}

func TestConsoleReport(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	require.NoError(t, c.Report(context.Background(), sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "a@example.com")
	assert.Contains(t, out, "135")
	assert.Contains(t, out, "+20")
	assert.Contains(t, out, "+15")
	assert.Contains(t, out, "+35")
	assert.Contains(t, out, "run-1")
}

func TestWebhookReport(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	require.NoError(t, wh.Report(context.Background(), sampleResult()))

	assert.Equal(t, "a@example.com: 135 points (desktop +20, mobile +15, total +35)", payload["content"])
}

func TestWebhookReportRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	err := wh.Report(context.Background(), sampleResult())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestMultiJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer bad.Close()

	m := Multi{NewConsole(&buf), NewWebhook(bad.URL)}
	err := m.Report(context.Background(), sampleResult())

	require.Error(t, err, "one failing sink surfaces, the others still ran")
	assert.Contains(t, buf.String(), "a@example.com")
}
