package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-seller-scraper/internal/scraper"
)

type fixedStatus scraper.Snapshot

func (s fixedStatus) Snapshot() scraper.Snapshot { return scraper.Snapshot(s) }

type fakeOutbox struct {
	counts map[string]int64
	err    error
}

func (f fakeOutbox) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var n int64
	for _, s := range statuses {
		n += f.counts[s]
	}
	return n, f.err
}

func get(t *testing.T, h http.Handler, path string) (*http.Response, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		outbox     OutboxCounter
		wantCode   int
		wantStatus string
	}{
		{name: "no database", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "healthy outbox", outbox: fakeOutbox{counts: map[string]int64{"pending": 3}}, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "backlog", outbox: fakeOutbox{counts: map[string]int64{"pending": 900, "failed": 200}}, wantCode: http.StatusOK, wantStatus: "warning"},
		{name: "dead letters", outbox: fakeOutbox{counts: map[string]int64{"dead_letter": 101}}, wantCode: http.StatusServiceUnavailable, wantStatus: "error"},
		{name: "database down", outbox: fakeOutbox{err: errors.New("connection refused")}, wantCode: http.StatusServiceUnavailable, wantStatus: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{Outbox: tt.outbox})

			res, body := get(t, s.Router(), "/healthz")
			assert.Equal(t, tt.wantCode, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

			var got map[string]any
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.wantStatus, got["status"])
		})
	}
}

func TestStatus(t *testing.T) {
	s := New(Options{Status: fixedStatus{Keyword: "粘土", Pages: 2, Records: 5, Skipped: 1, Running: true}})

	res, body := get(t, s.Router(), "/status")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var snap scraper.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "粘土", snap.Keyword)
	assert.Equal(t, 2, snap.Pages)
	assert.Equal(t, 5, snap.Records)
	assert.Equal(t, 1, snap.Skipped)
	assert.True(t, snap.Running)
}

func TestStatus_NoRun(t *testing.T) {
	res, _ := get(t, New(Options{}).Router(), "/status")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMetrics(t *testing.T) {
	m := scraper.NewMetrics()
	m.IncPage()
	m.IncEntry(scraper.OutcomeRecorded)

	res, body := get(t, New(Options{Registry: m.Registry}).Router(), "/metrics")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "seller_scraper_pages_total 1")
	assert.Contains(t, string(body), `seller_scraper_entries_total{outcome="recorded"} 1`)

	res, _ = get(t, New(Options{}).Router(), "/metrics")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
