package queue

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"time"
)

const jobColumns = "id, book_id, type, status, payload, error_message, created_at, updated_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		bookID           string
		typeStr          string
		statusStr        string
		payload          string
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&bookID,
		&typeStr,
		&statusStr,
		&payload,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		BookID:       bookID,
		Type:         JobType(typeStr),
		Status:       JobStatus(statusStr),
		Payload:      json.RawMessage(payload),
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

const ingestionColumns = "book_id, status, total_sections, completed_sections, error_message, voice_id, provider, created_at, updated_at"

func scanIngestion(scanner interface{ Scan(dest ...any) error }) (IngestionStatus, error) {
	var (
		status     IngestionStatus
		state      string
		errMsg     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&status.BookID,
		&state,
		&status.TotalSections,
		&status.CompletedSections,
		&errMsg,
		&status.VoiceID,
		&status.Provider,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return IngestionStatus{}, err
	}
	status.Status = IngestionState(state)
	status.Error = errMsg.String
	if created, err := parseTimeString(createdRaw); err == nil {
		status.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		status.UpdatedAt = updated
	}
	return status, nil
}

const blockColumns = "book_id, block_id, section_order, block_index, type, duration_ms, start_time_ms, summary, ready, updated_at"

func scanBlock(scanner interface{ Scan(dest ...any) error }) (BlockMetadata, error) {
	var (
		block      BlockMetadata
		typeStr    string
		summary    sql.NullString
		ready      int
		updatedRaw string
	)
	if err := scanner.Scan(
		&block.BookID,
		&block.BlockID,
		&block.SectionOrder,
		&block.BlockIndex,
		&typeStr,
		&block.DurationMs,
		&block.StartTimeMs,
		&summary,
		&ready,
		&updatedRaw,
	); err != nil {
		return BlockMetadata{}, err
	}
	block.Type = BlockType(typeStr)
	block.Summary = summary.String
	block.Ready = ready != 0
	if updated, err := parseTimeString(updatedRaw); err == nil {
		block.UpdatedAt = updated
	}
	return block, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nowString() string {
	return formatTime(time.Now())
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func decodeStrict(raw []byte, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func sortedStrings(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}

// unsatisfiedDependencySQL selects dependency rows of jobs.id that are not
// COMPLETED. It is correlated on the outer "jobs" table.
const unsatisfiedDependencySQL = `SELECT 1 FROM job_dependencies d
    LEFT JOIN jobs p ON p.id = d.depends_on
    WHERE d.job_id = jobs.id AND (p.id IS NULL OR p.status <> 'COMPLETED')`
