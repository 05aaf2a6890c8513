package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vipcollector/internal/collector"
)

func report(outcome collector.Outcome, reposted int) collector.Report {
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	return collector.Report{
		StartedAt:  start,
		FinishedAt: start.Add(250 * time.Millisecond),
		Outcome:    outcome,
		Reposted:   reposted,
		Matched:    reposted,
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(zap.NewNop())
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPassesNewestFirst(t *testing.T) {
	s := NewServer(zap.NewNop())
	s.Record(report(collector.OutcomeEmpty, 0))
	s.Record(report(collector.OutcomeReposted, 3))

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/passes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []collector.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, collector.OutcomeReposted, got[0].Outcome)
	assert.Equal(t, 3, got[0].Reposted)
	assert.Equal(t, collector.OutcomeEmpty, got[1].Outcome)
}

func TestRecordKeepsBoundedHistory(t *testing.T) {
	s := NewServer(zap.NewNop())
	for i := range keepReports + 10 {
		s.Record(report(collector.OutcomeReposted, i))
	}

	recent := s.Recent()
	require.Len(t, recent, keepReports)
	assert.Equal(t, keepReports+9, recent[0].Reposted)
	assert.Equal(t, 10, recent[len(recent)-1].Reposted)
}

func TestIndexRendersReports(t *testing.T) {
	s := NewServer(zap.NewNop())

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No passes yet")

	s.Record(report(collector.OutcomeFetchError, 0))
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "fetch_error")
	assert.Contains(t, rec.Body.String(), "250ms")
}

func TestEventsStream(t *testing.T) {
	s := NewServer(zap.NewNop())
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", line)

	s.Record(report(collector.OutcomeReposted, 2))

	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: pass", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "data: "))

	var got collector.Report
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &got))
	assert.Equal(t, 2, got.Reposted)
}
