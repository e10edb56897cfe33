package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusWaiting    JobStatus = "WAITING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

var allStatuses = []JobStatus{
	StatusPending,
	StatusWaiting,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns every job status in lifecycle order.
func AllStatuses() []JobStatus {
	out := make([]JobStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user supplied string into a JobStatus.
func ParseStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// JobType identifies the handler responsible for a job.
type JobType string

const (
	JobTextToAudio      JobType = "TEXT_TO_AUDIO"
	JobSectionConcat    JobType = "SECTION_CONCAT"
	JobBookSummary      JobType = "BOOK_SUMMARY"
	JobSummaryEmbedding JobType = "SUMMARY_EMBEDDING"
	JobBookMeta         JobType = "BOOK_META"
)

// AllJobTypes lists job types in graph order.
func AllJobTypes() []JobType {
	return []JobType{JobTextToAudio, JobSectionConcat, JobBookSummary, JobSummaryEmbedding, JobBookMeta}
}

// LogEntry is one line of a job's append-only log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Job is a persisted unit of work.
type Job struct {
	ID            string
	BookID        string
	Type          JobType
	Status        JobStatus
	Payload       json.RawMessage
	Dependencies  []string
	Log           []LogEntry
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// IsTerminal reports whether the job can no longer change without a reset.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// JobSpec describes a job to insert.
type JobSpec struct {
	ID           string
	BookID       string
	Type         JobType
	Payload      Payload
	Dependencies []string
}

// Payload is the typed body of a job. Each job type has exactly one payload
// struct.
type Payload interface {
	JobType() JobType
	Validate() error
}

// ErrPayloadMismatch indicates a payload could not be decoded as the variant
// its job type requires.
var ErrPayloadMismatch = errors.New("job payload does not match job type")

// TextToAudioPayload converts and stages the audio for one content block.
type TextToAudioPayload struct {
	BookID       string `json:"book_id"`
	VoiceID      string `json:"voice_id"`
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	SectionOrder int    `json:"section_order"`
	BlockID      string `json:"block_id"`
	BlockIndex   int    `json:"block_index"`
}

func (TextToAudioPayload) JobType() JobType { return JobTextToAudio }

func (p TextToAudioPayload) Validate() error {
	return requireFields(map[string]string{"book_id": p.BookID, "voice_id": p.VoiceID, "provider": p.Provider, "block_id": p.BlockID})
}

// SectionConcatPayload assembles one section's audio.
type SectionConcatPayload struct {
	BookID       string `json:"book_id"`
	VoiceID      string `json:"voice_id"`
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	SectionOrder int    `json:"section_order"`
	Label        string `json:"label,omitempty"`
}

func (SectionConcatPayload) JobType() JobType { return JobSectionConcat }

func (p SectionConcatPayload) Validate() error {
	return requireFields(map[string]string{"book_id": p.BookID, "voice_id": p.VoiceID, "provider": p.Provider})
}

// BookSummaryPayload summarises the book text.
type BookSummaryPayload struct {
	BookID string `json:"book_id"`
}

func (BookSummaryPayload) JobType() JobType { return JobBookSummary }

func (p BookSummaryPayload) Validate() error {
	return requireFields(map[string]string{"book_id": p.BookID})
}

// SummaryEmbeddingPayload embeds the stored book summary.
type SummaryEmbeddingPayload struct {
	BookID string `json:"book_id"`
}

func (SummaryEmbeddingPayload) JobType() JobType { return JobSummaryEmbedding }

func (p SummaryEmbeddingPayload) Validate() error {
	return requireFields(map[string]string{"book_id": p.BookID})
}

// BookMetaPayload aggregates section durations into the book record.
type BookMetaPayload struct {
	BookID        string `json:"book_id"`
	VoiceID       string `json:"voice_id"`
	SectionOrders []int  `json:"section_orders"`
}

func (BookMetaPayload) JobType() JobType { return JobBookMeta }

func (p BookMetaPayload) Validate() error {
	return requireFields(map[string]string{"book_id": p.BookID, "voice_id": p.VoiceID})
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrPayloadMismatch, strings.Join(sortedStrings(missing), ", "))
}

// PayloadAs decodes the job payload as the variant T. The decode fails when T
// does not belong to the job's type, when the JSON carries unknown fields, or
// when required fields are absent.
func PayloadAs[T Payload](job *Job) (T, error) {
	var out T
	if job == nil {
		return out, fmt.Errorf("%w: nil job", ErrPayloadMismatch)
	}
	if out.JobType() != job.Type {
		return out, fmt.Errorf("%w: job %s is %s, not %s", ErrPayloadMismatch, job.ID, job.Type, out.JobType())
	}
	if err := decodeStrict(job.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: job %s: %v", ErrPayloadMismatch, job.ID, err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("job %s: %w", job.ID, err)
	}
	return out, nil
}

// BlockType classifies block metadata rows.
type BlockType string

const (
	BlockTypeText    BlockType = "TEXT"
	BlockTypeSection BlockType = "SECTION"
	BlockTypeBook    BlockType = "BOOK"
)

// BookBlockID is the block id of the book-level metadata row.
const BookBlockID = "book"

// SectionBlockID returns the block id of a section-level metadata row.
func SectionBlockID(order int) string {
	return fmt.Sprintf("section-%d", order)
}

// BlockMetadata records audio duration and placement for a text block, a
// section or the whole book.
type BlockMetadata struct {
	BookID       string
	BlockID      string
	SectionOrder int
	BlockIndex   int
	Type         BlockType
	DurationMs   int64
	StartTimeMs  int64
	Summary      string
	Ready        bool
	UpdatedAt    time.Time
}

// BlockTimestamp is the time span of one block inside its section audio.
type BlockTimestamp struct {
	BookID         string
	VoiceID        string
	SectionOrder   int
	BlockID        string
	StartTimeMs    int64
	EndTimeMs      int64
	CharacterStart int
	CharacterEnd   int
}

// SectionCommit is everything the assembler persists for one section. It is
// written in a single transaction.
type SectionCommit struct {
	BookID       string
	VoiceID      string
	SectionOrder int
	Timestamps   []BlockTimestamp
	Blocks       []BlockMetadata
	Section      BlockMetadata
}

// IngestionState is the book-level ingestion lifecycle.
type IngestionState string

const (
	IngestionPending    IngestionState = "pending"
	IngestionProcessing IngestionState = "processing"
	IngestionCompleted  IngestionState = "completed"
	IngestionFailed     IngestionState = "failed"
	IngestionCancelled  IngestionState = "cancelled"
)

// IngestionStatus summarises a book's ingestion.
type IngestionStatus struct {
	BookID            string
	Status            IngestionState
	TotalSections     int
	CompletedSections int
	Error             string
	VoiceID           string
	Provider          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Finished reports whether the ingestion reached a terminal state.
func (s IngestionStatus) Finished() bool {
	switch s.Status {
	case IngestionCompleted, IngestionFailed, IngestionCancelled:
		return true
	default:
		return false
	}
}

// BookSummary holds the generated summary text and its embedding.
type BookSummary struct {
	BookID         string
	Summary        string
	Embedding      []float64
	EmbeddingModel string
	UpdatedAt      time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Waiting    int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}
