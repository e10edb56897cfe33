package workflow

import (
	"context"
	"slices"
	"strings"

	"lectern/internal/logging"
	"lectern/internal/queue"
	"lectern/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveJobs  []ActiveJob
	LastError   string
	LastJob     *queue.Job
	JobStats    map[queue.JobStatus]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Workers: m.workers}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		copy := *m.lastJob
		summary.LastJob = &copy
	}
	for _, job := range m.active {
		summary.ActiveJobs = append(summary.ActiveJobs, job)
	}
	m.mu.RUnlock()
	slices.SortFunc(summary.ActiveJobs, func(a, b ActiveJob) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	stats, err := m.store.Stats(ctx, "")
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats

	handlers := m.handlerSnapshot()
	summary.StageHealth = make(map[string]stage.Health, len(handlers))
	for jobType, handler := range handlers {
		summary.StageHealth[strings.ToLower(string(jobType))] = handler.HealthCheck(ctx)
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
