package monitoring

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the monitor state exposed on the status endpoint
type Snapshot struct {
	Healthy         bool      `json:"healthy"`
	Summary         string    `json:"summary"`
	LastRunTime     time.Time `json:"last_run_time"`
	LastRunSuccess  bool      `json:"last_run_success"`
	LastRunDuration string    `json:"last_run_duration,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Runs            int       `json:"runs"`
	PartialFailures int       `json:"partial_failures"`
}

type Monitor struct {
	mu              sync.RWMutex
	logger          *zap.Logger
	lastRunSuccess  bool
	lastRunTime     time.Time
	lastDuration    time.Duration
	lastSummary     string
	lastError       string
	runs            int
	partialFailures int
}

func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{logger: logger}
}

func (m *Monitor) RecordSuccess(summary string, duration time.Duration) {
	m.mu.Lock()
	m.lastRunSuccess = true
	m.lastRunTime = time.Now()
	m.lastDuration = duration
	m.lastSummary = summary
	m.lastError = ""
	m.runs++
	m.mu.Unlock()

	m.logger.Info("Run completed successfully",
		zap.String("summary", summary),
		zap.Duration("duration", duration))
}

func (m *Monitor) RecordPartialFailure(err error, duration time.Duration) {
	// Don't change health status for partial failures
	m.mu.Lock()
	m.partialFailures++
	m.lastError = err.Error()
	m.mu.Unlock()

	m.logger.Warn("PARTIAL FAILURE", zap.Error(err), zap.Duration("duration", duration))
}

func (m *Monitor) RecordCriticalFailure(err error, duration time.Duration) {
	now := time.Now()
	m.mu.Lock()
	m.lastRunSuccess = false
	m.lastRunTime = now
	m.lastDuration = duration
	m.lastError = err.Error()
	m.runs++
	m.mu.Unlock()

	m.logger.Error("CRITICAL FAILURE",
		zap.Error(err),
		zap.Duration("duration", duration),
		zap.String("failed_at", now.Format("2006-01-02 15:04:05")))
}

func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHealthy()
}

func (m *Monitor) isHealthy() bool {
	if m.lastRunTime.IsZero() {
		return true // No runs yet, assume healthy
	}
	return m.lastRunSuccess
}

func (m *Monitor) GetStatusSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusSummary()
}

func (m *Monitor) statusSummary() string {
	if m.lastRunTime.IsZero() {
		return "No runs yet"
	}

	if m.lastRunSuccess {
		return fmt.Sprintf("Last run: %s (%s)", m.lastRunTime.Format("Jan 2 15:04"), m.lastSummary)
	}
	return fmt.Sprintf("Last run failed: %s", m.lastRunTime.Format("Jan 2 15:04"))
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Healthy:         m.isHealthy(),
		Summary:         m.statusSummary(),
		LastRunTime:     m.lastRunTime,
		LastRunSuccess:  m.lastRunSuccess,
		LastError:       m.lastError,
		Runs:            m.runs,
		PartialFailures: m.partialFailures,
	}
	if m.lastDuration > 0 {
		s.LastRunDuration = m.lastDuration.String()
	}
	return s
}
