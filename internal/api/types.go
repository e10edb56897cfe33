package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StartIngestionRequest is the body of POST /api/v1/books/{bookID}/ingestion.
// Empty fields fall back to the daemon's configured defaults.
type StartIngestionRequest struct {
	VoiceID  string `json:"voiceId,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Sections []int  `json:"sections,omitempty"`
}

// StartIngestionResponse describes the job graph that was queued.
type StartIngestionResponse struct {
	Ingestion    IngestionStatus `json:"ingestion"`
	Jobs         int             `json:"jobs"`
	Sections     []int           `json:"sections"`
	UsedFallback bool            `json:"usedFallback"`
}

// IngestionStatus is a book's ingestion state in a transport-friendly format.
type IngestionStatus struct {
	BookID            string         `json:"bookId"`
	Status            string         `json:"status"`
	VoiceID           string         `json:"voiceId,omitempty"`
	Provider          string         `json:"provider,omitempty"`
	TotalSections     int            `json:"totalSections"`
	CompletedSections int            `json:"completedSections"`
	Error             string         `json:"error,omitempty"`
	Jobs              map[string]int `json:"jobs,omitempty"`
	DurationMs        int64          `json:"durationMs"`
	Ready             bool           `json:"ready"`
	CreatedAt         string         `json:"createdAt,omitempty"`
	UpdatedAt         string         `json:"updatedAt,omitempty"`
}

// ResetResponse reports what a book reset removed.
type ResetResponse struct {
	BookID        string `json:"bookId"`
	HadIngestion  bool   `json:"hadIngestion"`
	PurgedObjects int    `json:"purgedObjects"`
}

// Job describes one job row.
type Job struct {
	ID            string          `json:"id"`
	BookID        string          `json:"bookId"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Dependencies  []string        `json:"dependencies,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Log           []JobLogEntry   `json:"log,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	LastHeartbeat string          `json:"lastHeartbeat,omitempty"`
}

// JobLogEntry is one line of a job's log.
type JobLogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// JobListResponse wraps the jobs of a book.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResetResponse reports how many jobs were requeued.
type JobResetResponse struct {
	Reset int64 `json:"reset"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	ActiveJobs  []ActiveJob    `json:"activeJobs,omitempty"`
	JobStats    map[string]int `json:"jobStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *Job           `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// ActiveJob is a job a worker is executing right now.
type ActiveJob struct {
	ID        string `json:"id"`
	BookID    string `json:"bookId"`
	Type      string `json:"type"`
	StartedAt string `json:"startedAt"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// CheckResult is one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse aggregates preflight checks and workflow state.
type HealthResponse struct {
	Healthy  bool           `json:"healthy"`
	Checks   []CheckResult  `json:"checks"`
	Workflow WorkflowStatus `json:"workflow"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
