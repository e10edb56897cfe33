package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// claimCandidateLimit bounds how many PENDING jobs a single claim inspects.
const claimCandidateLimit = 16

// PromoteReady moves WAITING jobs whose dependencies are all COMPLETED to
// PENDING. It is a single non-recursive sweep and returns the promoted ids.
func (s *Store) PromoteReady(ctx context.Context) ([]string, error) {
	var promoted []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		promoted = promoted[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM jobs WHERE status = ? AND NOT EXISTS (`+unsatisfiedDependencySQL+`) ORDER BY created_at, rowid`,
			StatusWaiting,
		)
		if err != nil {
			return fmt.Errorf("select ready jobs: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			promoted = append(promoted, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if len(promoted) == 0 {
			return nil
		}

		args := append([]any{StatusPending, nowString()}, stringArgs(promoted)...)
		args = append(args, StatusWaiting)
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id IN (`+makePlaceholders(len(promoted))+`) AND status = ?`,
			args...,
		); err != nil {
			return fmt.Errorf("promote jobs: %w", err)
		}
		for _, id := range promoted {
			if err := appendLogTx(ctx, tx, id, "dependencies completed"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// ClaimNext claims the oldest PENDING job whose book ingestion is still live
// and whose dependencies are all COMPLETED. It returns nil when nothing is
// claimable. Dependency refusal leaves the job untouched.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		rows, err := tx.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs
            WHERE status = ?
              AND NOT EXISTS (
                SELECT 1 FROM ingestions i
                WHERE i.book_id = jobs.book_id AND i.status IN (?, ?)
              )
            ORDER BY created_at, rowid
            LIMIT ?`,
			StatusPending, IngestionFailed, IngestionCancelled, claimCandidateLimit,
		)
		if err != nil {
			return fmt.Errorf("select pending jobs: %w", err)
		}
		var candidates []*Job
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan job: %w", err)
			}
			candidates = append(candidates, job)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, job := range candidates {
			var unsatisfied int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(1) FROM job_dependencies d
                LEFT JOIN jobs p ON p.id = d.depends_on
                WHERE d.job_id = ? AND (p.id IS NULL OR p.status <> ?)`,
				job.ID, StatusCompleted,
			).Scan(&unsatisfied); err != nil {
				return fmt.Errorf("check dependencies: %w", err)
			}
			if unsatisfied > 0 {
				continue
			}

			now := time.Now().UTC()
			res, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, updated_at = ?, last_heartbeat = ? WHERE id = ? AND status = ?`,
				StatusProcessing, formatTime(now), formatTime(now), job.ID, StatusPending,
			)
			if err != nil {
				return fmt.Errorf("claim job: %w", err)
			}
			if affected, _ := res.RowsAffected(); affected == 0 {
				continue
			}
			if err := appendLogTx(ctx, tx, job.ID, "claimed"); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE ingestions SET status = ?, updated_at = ? WHERE book_id = ? AND status = ?`,
				IngestionProcessing, formatTime(now), job.BookID, IngestionPending,
			); err != nil {
				return fmt.Errorf("mark ingestion processing: %w", err)
			}
			job.Status = StatusProcessing
			job.UpdatedAt = now
			job.LastHeartbeat = &now
			claimed = job
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}
	if err := s.attachDetails(ctx, []*Job{claimed}); err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a PROCESSING job COMPLETED and appends message to its log.
func (s *Store) Complete(ctx context.Context, id, message string) error {
	if message == "" {
		message = "completed"
	}
	return s.finish(ctx, id, StatusCompleted, "", message)
}

// Fail marks a PROCESSING job FAILED and records message as its error.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	if message == "" {
		message = "failed"
	}
	return s.finish(ctx, id, StatusFailed, message, "failed: "+message)
}

func (s *Store) finish(ctx context.Context, id string, status JobStatus, errorMessage, logMessage string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ? AND status = ?`,
			status, nullableString(errorMessage), nowString(), id, StatusProcessing,
		)
		if err != nil {
			return fmt.Errorf("mark job %s: %w", status, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return s.transitionError(ctx, tx, id, status)
		}
		return appendLogTx(ctx, tx, id, logMessage)
	})
}

func (s *Store) transitionError(ctx context.Context, tx *sql.Tx, id string, target JobStatus) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s, cannot become %s", ErrInvalidTransition, id, current, target)
}

// ResetJobs returns FAILED jobs to PENDING, or WAITING when any dependency is
// not COMPLETED. Failed ingestions of the affected books go back to
// processing so their jobs become claimable again.
func (s *Store) ResetJobs(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		affected = 0
		placeholders := makePlaceholders(len(ids))
		rows, err := tx.QueryContext(ctx,
			`SELECT id, book_id FROM jobs WHERE id IN (`+placeholders+`) AND status = ?`,
			append(stringArgs(ids), StatusFailed)...,
		)
		if err != nil {
			return fmt.Errorf("select failed jobs: %w", err)
		}
		var resetIDs []string
		books := map[string]struct{}{}
		for rows.Next() {
			var id, bookID string
			if err := rows.Scan(&id, &bookID); err != nil {
				rows.Close()
				return err
			}
			resetIDs = append(resetIDs, id)
			books[bookID] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if len(resetIDs) == 0 {
			return nil
		}

		args := []any{StatusWaiting, StatusPending, nowString()}
		args = append(args, stringArgs(resetIDs)...)
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs
            SET status = CASE WHEN EXISTS (`+unsatisfiedDependencySQL+`) THEN ? ELSE ? END,
                error_message = NULL, last_heartbeat = NULL, updated_at = ?
            WHERE id IN (`+makePlaceholders(len(resetIDs))+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("reset jobs: %w", err)
		}
		affected, _ = res.RowsAffected()
		for _, id := range resetIDs {
			if err := appendLogTx(ctx, tx, id, "reset requested"); err != nil {
				return err
			}
		}
		for bookID := range books {
			if _, err := tx.ExecContext(ctx,
				`UPDATE ingestions SET status = ?, error_message = NULL, updated_at = ? WHERE book_id = ? AND status = ?`,
				IngestionProcessing, nowString(), bookID, IngestionFailed,
			); err != nil {
				return fmt.Errorf("reopen ingestion: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for a PROCESSING job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns PROCESSING jobs whose heartbeat is older than
// cutoff to PENDING. Their dependencies were satisfied when first claimed.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.requeueProcessing(ctx, "reclaimed after stale heartbeat",
		`status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusProcessing, formatTime(cutoff))
}

// ResetStuckProcessing returns every PROCESSING job to PENDING. The daemon
// calls it on start, when no worker can still own a job.
func (s *Store) ResetStuckProcessing(ctx context.Context) ([]string, error) {
	return s.requeueProcessing(ctx, "requeued after daemon restart", `status = ?`, StatusProcessing)
}

func (s *Store) requeueProcessing(ctx context.Context, logMessage, where string, args ...any) ([]string, error) {
	var ids []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids = ids[:0]
		rows, err := tx.QueryContext(ctx, `SELECT id FROM jobs WHERE `+where, args...)
		if err != nil {
			return fmt.Errorf("select processing jobs: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if len(ids) == 0 {
			return nil
		}
		updateArgs := append([]any{StatusPending, nowString()}, stringArgs(ids)...)
		updateArgs = append(updateArgs, StatusProcessing)
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE id IN (`+makePlaceholders(len(ids))+`) AND status = ?`,
			updateArgs...,
		); err != nil {
			return fmt.Errorf("requeue jobs: %w", err)
		}
		for _, id := range ids {
			if err := appendLogTx(ctx, tx, id, logMessage); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
