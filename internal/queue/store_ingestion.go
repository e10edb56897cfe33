package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// GetIngestion returns the ingestion row for a book or ErrIngestionNotFound.
func (s *Store) GetIngestion(ctx context.Context, bookID string) (IngestionStatus, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ingestionColumns+` FROM ingestions WHERE book_id = ?`, bookID)
	status, err := scanIngestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IngestionStatus{}, fmt.Errorf("%w: %s", ErrIngestionNotFound, bookID)
	}
	if err != nil {
		return IngestionStatus{}, fmt.Errorf("get ingestion: %w", err)
	}
	return status, nil
}

// ListIngestions returns every ingestion row, newest first.
func (s *Store) ListIngestions(ctx context.Context) ([]IngestionStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ingestionColumns+` FROM ingestions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list ingestions: %w", err)
	}
	defer rows.Close()
	var out []IngestionStatus
	for rows.Next() {
		status, err := scanIngestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		out = append(out, status)
	}
	return out, rows.Err()
}

// IncrementCompletedSections bumps completed_sections for a live ingestion.
// It never exceeds total_sections and never touches terminal rows.
func (s *Store) IncrementCompletedSections(ctx context.Context, bookID string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE ingestions SET completed_sections = completed_sections + 1, updated_at = ?
        WHERE book_id = ? AND status NOT IN (?, ?, ?) AND completed_sections < total_sections`,
		nowString(), bookID, IngestionCompleted, IngestionFailed, IngestionCancelled,
	); err != nil {
		return fmt.Errorf("increment completed sections: %w", err)
	}
	return nil
}

// CompleteIngestion marks a live ingestion completed.
func (s *Store) CompleteIngestion(ctx context.Context, bookID string) error {
	return s.setIngestionState(ctx, bookID, IngestionCompleted, "", IngestionPending, IngestionProcessing)
}

// FailIngestion marks a live ingestion failed. The first failure wins.
func (s *Store) FailIngestion(ctx context.Context, bookID, message string) error {
	return s.setIngestionState(ctx, bookID, IngestionFailed, message, IngestionPending, IngestionProcessing)
}

// CancelIngestion marks an ingestion cancelled so no further jobs are claimed.
func (s *Store) CancelIngestion(ctx context.Context, bookID string) error {
	return s.setIngestionState(ctx, bookID, IngestionCancelled, "cancelled", IngestionPending, IngestionProcessing, IngestionFailed)
}

func (s *Store) setIngestionState(ctx context.Context, bookID string, state IngestionState, message string, from ...IngestionState) error {
	args := []any{state, nullableString(message), nowString(), bookID}
	for _, f := range from {
		args = append(args, f)
	}
	if _, err := s.execWithRetry(ctx,
		`UPDATE ingestions SET status = ?, error_message = ?, updated_at = ?
        WHERE book_id = ? AND status IN (`+makePlaceholders(len(from))+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("set ingestion %s: %w", state, err)
	}
	return nil
}

// SaveSummary stores the book summary text, keeping any existing embedding.
func (s *Store) SaveSummary(ctx context.Context, bookID, summary string) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO book_summaries (book_id, summary, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(book_id) DO UPDATE SET summary = excluded.summary, embedding = NULL,
            embedding_model = NULL, updated_at = excluded.updated_at`,
		bookID, summary, nowString(),
	); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// SaveEmbedding attaches an embedding vector to an existing summary.
func (s *Store) SaveEmbedding(ctx context.Context, bookID string, embedding []float64, model string) error {
	encoded, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE book_summaries SET embedding = ?, embedding_model = ?, updated_at = ? WHERE book_id = ?`,
		string(encoded), model, nowString(), bookID,
	)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("save embedding: no summary stored for %s", bookID)
	}
	return nil
}

// GetSummary returns the stored summary. The boolean is false when none exists.
func (s *Store) GetSummary(ctx context.Context, bookID string) (BookSummary, bool, error) {
	var (
		summary   BookSummary
		embedding sql.NullString
		model     sql.NullString
		updated   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT book_id, summary, embedding, embedding_model, updated_at FROM book_summaries WHERE book_id = ?`, bookID,
	).Scan(&summary.BookID, &summary.Summary, &embedding, &model, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return BookSummary{}, false, nil
	}
	if err != nil {
		return BookSummary{}, false, fmt.Errorf("get summary: %w", err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &summary.Embedding); err != nil {
			return BookSummary{}, false, fmt.Errorf("decode embedding: %w", err)
		}
	}
	summary.EmbeddingModel = model.String
	if ts, err := parseTimeString(updated); err == nil {
		summary.UpdatedAt = ts
	}
	return summary, true, nil
}
