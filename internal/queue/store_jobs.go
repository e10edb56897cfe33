package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// InsertGraph creates the ingestion row and every job of a book's graph in a
// single transaction. Jobs with dependencies start WAITING, the rest PENDING.
func (s *Store) InsertGraph(ctx context.Context, ingestion IngestionStatus, jobs []JobSpec) error {
	if strings.TrimSpace(ingestion.BookID) == "" {
		return errors.New("insert graph: book id is required")
	}
	ids := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			return fmt.Errorf("insert graph: job of type %s has no id", job.Type)
		}
		if job.Payload == nil || job.Payload.JobType() != job.Type {
			return fmt.Errorf("insert graph: job %s: %w", job.ID, ErrPayloadMismatch)
		}
		if err := job.Payload.Validate(); err != nil {
			return fmt.Errorf("insert graph: job %s: %w", job.ID, err)
		}
		ids[job.ID] = struct{}{}
	}
	for _, job := range jobs {
		for _, dep := range job.Dependencies {
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("insert graph: job %s depends on unknown job %s", job.ID, dep)
			}
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM ingestions WHERE book_id = ?`, ingestion.BookID).Scan(&existing); err != nil {
			return fmt.Errorf("check ingestion: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: %s", ErrIngestionExists, ingestion.BookID)
		}

		now := nowString()
		state := ingestion.Status
		if state == "" {
			state = IngestionPending
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ingestions (`+ingestionColumns+`) VALUES (?, ?, ?, 0, NULL, ?, ?, ?, ?)`,
			ingestion.BookID, state, ingestion.TotalSections, ingestion.VoiceID, ingestion.Provider, now, now,
		); err != nil {
			return fmt.Errorf("insert ingestion: %w", err)
		}

		for _, job := range jobs {
			payload, err := json.Marshal(job.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload for %s: %w", job.ID, err)
			}
			status := StatusPending
			if len(job.Dependencies) > 0 {
				status = StatusWaiting
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO jobs (id, book_id, type, status, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				job.ID, job.BookID, job.Type, status, string(payload), now, now,
			); err != nil {
				return fmt.Errorf("insert job %s: %w", job.ID, err)
			}
			if err := appendLogTx(ctx, tx, job.ID, "created as "+string(status)); err != nil {
				return err
			}
		}
		for _, job := range jobs {
			for _, dep := range job.Dependencies {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO job_dependencies (job_id, depends_on) VALUES (?, ?)`, job.ID, dep,
				); err != nil {
					return fmt.Errorf("insert dependency %s -> %s: %w", job.ID, dep, err)
				}
			}
		}
		return nil
	})
}

// GetJob fetches a job including its dependencies and log. A missing job
// yields ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := s.attachDetails(ctx, []*Job{job}); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns every job for a book in creation order.
func (s *Store) ListJobs(ctx context.Context, bookID string) ([]*Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE book_id = ? ORDER BY created_at, rowid`, bookID)
}

// ListJobsByStatus returns jobs across books matching any of the statuses.
// An empty status list returns every job.
func (s *Store) ListJobsByStatus(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	if len(statuses) == 0 {
		return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, rowid`)
	}
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, status)
	}
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (`+makePlaceholders(len(statuses))+`) ORDER BY created_at, rowid`,
		args...)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if err := s.attachDetails(ctx, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// attachDetails loads dependencies and log entries for the given jobs. It
// must run after any result set on the single connection has been closed.
func (s *Store) attachDetails(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}
	byID := make(map[string]*Job, len(jobs))
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
		ids = append(ids, job.ID)
	}

	const batch = 400
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		chunk := ids[start:end]
		placeholders := makePlaceholders(len(chunk))

		deps, err := s.db.QueryContext(ctx,
			`SELECT job_id, depends_on FROM job_dependencies WHERE job_id IN (`+placeholders+`) ORDER BY rowid`,
			stringArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("load dependencies: %w", err)
		}
		for deps.Next() {
			var jobID, dep string
			if err := deps.Scan(&jobID, &dep); err != nil {
				deps.Close()
				return fmt.Errorf("scan dependency: %w", err)
			}
			byID[jobID].Dependencies = append(byID[jobID].Dependencies, dep)
		}
		if err := deps.Err(); err != nil {
			deps.Close()
			return err
		}
		deps.Close()

		logs, err := s.db.QueryContext(ctx,
			`SELECT job_id, logged_at, message FROM job_logs WHERE job_id IN (`+placeholders+`) ORDER BY id`,
			stringArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("load job logs: %w", err)
		}
		for logs.Next() {
			var jobID, loggedAt, message string
			if err := logs.Scan(&jobID, &loggedAt, &message); err != nil {
				logs.Close()
				return fmt.Errorf("scan job log: %w", err)
			}
			entry := LogEntry{Message: message}
			if ts, err := parseTimeString(loggedAt); err == nil {
				entry.Timestamp = ts
			}
			byID[jobID].Log = append(byID[jobID].Log, entry)
		}
		if err := logs.Err(); err != nil {
			logs.Close()
			return err
		}
		logs.Close()
	}
	return nil
}

// AppendLog adds a message to a job's log.
func (s *Store) AppendLog(ctx context.Context, jobID, message string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return appendLogTx(ctx, tx, jobID, message)
	})
}

func appendLogTx(ctx context.Context, tx *sql.Tx, jobID, message string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, logged_at, message) VALUES (?, ?, ?)`,
		jobID, nowString(), message,
	); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// DeleteBook removes every job, dependency, log, metadata row, timestamp,
// summary and the ingestion row for a book.
func (s *Store) DeleteBook(ctx context.Context, bookID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		statements := []string{
			`DELETE FROM jobs WHERE book_id = ?`,
			`DELETE FROM block_timestamps WHERE book_id = ?`,
			`DELETE FROM block_metadata WHERE book_id = ?`,
			`DELETE FROM book_summaries WHERE book_id = ?`,
			`DELETE FROM ingestions WHERE book_id = ?`,
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt, bookID); err != nil {
				return fmt.Errorf("delete book %s: %w", bookID, err)
			}
		}
		return nil
	})
}

// ResetBook removes a book's jobs, timestamps, ingestion row and book-level
// metadata row. Block and section metadata and the summary are kept so stored
// audio can be reused by the next ingestion.
func (s *Store) ResetBook(ctx context.Context, bookID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM jobs WHERE book_id = ?`,
			`DELETE FROM block_timestamps WHERE book_id = ?`,
			`DELETE FROM ingestions WHERE book_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, bookID); err != nil {
				return fmt.Errorf("reset book %s: %w", bookID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM block_metadata WHERE book_id = ? AND block_id = ?`, bookID, BookBlockID,
		); err != nil {
			return fmt.Errorf("reset book %s: %w", bookID, err)
		}
		return nil
	})
}

// DeleteJobs removes a book's jobs, ingestion row and book-level metadata row
// but keeps its block metadata, timestamps and summary. A finished ingestion
// is cleared this way before the book is ingested again.
func (s *Store) DeleteJobs(ctx context.Context, bookID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM jobs WHERE book_id = ?`,
			`DELETE FROM ingestions WHERE book_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, bookID); err != nil {
				return fmt.Errorf("delete jobs for %s: %w", bookID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM block_metadata WHERE book_id = ? AND block_id = ?`, bookID, BookBlockID,
		); err != nil {
			return fmt.Errorf("delete jobs for %s: %w", bookID, err)
		}
		return nil
	})
}
