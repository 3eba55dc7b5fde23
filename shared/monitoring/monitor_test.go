package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"comment-insights/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMonitorTransitions(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	assert.True(t, m.IsHealthy())
	assert.Equal(t, "No runs yet", m.GetStatusSummary())

	m.RecordPartialFailure(errors.New("one video failed"), time.Second)
	assert.True(t, m.IsHealthy(), "partial failures keep the service healthy")

	m.RecordCriticalFailure(errors.New("bad key"), time.Second)
	assert.False(t, m.IsHealthy())
	assert.Contains(t, m.GetStatusSummary(), "Last run failed")

	m.RecordSuccess("3 videos analyzed", 2*time.Second)
	assert.True(t, m.IsHealthy())
	assert.Contains(t, m.GetStatusSummary(), "3 videos analyzed")

	s := m.Snapshot()
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 1, s.PartialFailures)
	assert.Equal(t, "2s", s.LastRunDuration)
	assert.Empty(t, s.LastError)
}

type fakeHistory struct {
	runs []storage.Run
	err  error
}

func (f fakeHistory) RecentRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	return f.runs, f.err
}

func TestHealthEndpoint(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	h := NewHealthServer(m, nil, 0, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OK - No runs yet")

	m.RecordCriticalFailure(errors.New("boom"), time.Second)
	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.RecordSuccess("ok", time.Second)
	history := fakeHistory{runs: []storage.Run{
		{ID: "r1", Command: "run", Status: storage.RunSucceeded, StartedAt: time.Now()},
	}}
	h := NewHealthServer(m, history, 9999, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Monitor    Snapshot  `json:"monitor"`
		RecentRuns []runView `json:"recent_runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Monitor.Healthy)
	require.Len(t, body.RecentRuns, 1)
	assert.Equal(t, "r1", body.RecentRuns[0].ID)
	assert.Nil(t, body.RecentRuns[0].FinishedAt)
}
