package api

import (
	"slices"
	"time"

	"lectern/internal/ingestion"
	"lectern/internal/preflight"
	"lectern/internal/queue"
	"lectern/internal/workflow"
)

// FromIngestionStatus converts a queue ingestion row.
func FromIngestionStatus(status queue.IngestionStatus) IngestionStatus {
	return IngestionStatus{
		BookID:            status.BookID,
		Status:            string(status.Status),
		VoiceID:           status.VoiceID,
		Provider:          status.Provider,
		TotalSections:     status.TotalSections,
		CompletedSections: status.CompletedSections,
		Error:             status.Error,
		CreatedAt:         formatTime(status.CreatedAt),
		UpdatedAt:         formatTime(status.UpdatedAt),
	}
}

// FromStatus converts an ingestion status including job counts and the
// book's total duration.
func FromStatus(status ingestion.Status) IngestionStatus {
	out := FromIngestionStatus(status.Ingestion)
	out.Jobs = MergeJobStats(status.Jobs)
	out.DurationMs = status.DurationMs
	out.Ready = status.Ready
	return out
}

// FromStartResult converts the outcome of starting an ingestion.
func FromStartResult(result ingestion.StartResult) StartIngestionResponse {
	sections := result.Sections
	if sections == nil {
		sections = []int{}
	}
	return StartIngestionResponse{
		Ingestion:    FromIngestionStatus(result.Ingestion),
		Jobs:         result.Jobs,
		Sections:     sections,
		UsedFallback: result.UsedFallback,
	}
}

// FromJob converts a job row. Nil yields the zero value.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	out := Job{
		ID:           job.ID,
		BookID:       job.BookID,
		Type:         string(job.Type),
		Status:       string(job.Status),
		Dependencies: job.Dependencies,
		Payload:      job.Payload,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
	if job.LastHeartbeat != nil {
		out.LastHeartbeat = formatTime(*job.LastHeartbeat)
	}
	for _, entry := range job.Log {
		out.Log = append(out.Log, JobLogEntry{
			Timestamp: formatTime(entry.Timestamp),
			Message:   entry.Message,
		})
	}
	return out
}

// FromJobs converts a job list, never returning nil.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		JobStats:    MergeJobStats(summary.JobStats),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary),
	}
	for _, active := range summary.ActiveJobs {
		wf.ActiveJobs = append(wf.ActiveJobs, ActiveJob{
			ID:        active.ID,
			BookID:    active.BookID,
			Type:      string(active.Type),
			StartedAt: formatTime(active.StartedAt),
		})
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		wf.LastJob = &last
	}
	return wf
}

// StageHealthSlice orders stage health by name.
func StageHealthSlice(summary workflow.StatusSummary) []StageHealth {
	names := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		names = append(names, name)
	}
	slices.Sort(names)

	health := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := summary.StageHealth[name]
		health = append(health, StageHealth{
			Name:   name,
			Ready:  h.Ready,
			Detail: h.Detail,
		})
	}
	return health
}

// FromCheckResults converts preflight results.
func FromCheckResults(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, result := range results {
		out = append(out, CheckResult{Name: result.Name, Passed: result.Passed, Detail: result.Detail})
	}
	return out
}

// MergeJobStats produces a string-keyed representation of job counts.
func MergeJobStats(stats map[queue.JobStatus]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
