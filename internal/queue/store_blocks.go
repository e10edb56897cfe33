package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertBlockMetadata inserts or replaces metadata rows keyed by
// (book_id, block_id).
func (s *Store) UpsertBlockMetadata(ctx context.Context, blocks ...BlockMetadata) error {
	if len(blocks) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertBlocksTx(ctx, tx, blocks)
	})
}

func upsertBlocksTx(ctx context.Context, tx *sql.Tx, blocks []BlockMetadata) error {
	now := nowString()
	for _, block := range blocks {
		if block.BookID == "" || block.BlockID == "" {
			return errors.New("block metadata requires book and block ids")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO block_metadata (`+blockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(book_id, block_id) DO UPDATE SET
                section_order = excluded.section_order,
                block_index = excluded.block_index,
                type = excluded.type,
                duration_ms = excluded.duration_ms,
                start_time_ms = excluded.start_time_ms,
                summary = COALESCE(excluded.summary, block_metadata.summary),
                ready = excluded.ready,
                updated_at = excluded.updated_at`,
			block.BookID, block.BlockID, block.SectionOrder, block.BlockIndex, block.Type,
			block.DurationMs, block.StartTimeMs, nullableString(block.Summary), boolToInt(block.Ready), now,
		); err != nil {
			return fmt.Errorf("upsert block metadata %s/%s: %w", block.BookID, block.BlockID, err)
		}
	}
	return nil
}

// GetBlockMetadata returns one metadata row. The boolean is false when the
// row does not exist.
func (s *Store) GetBlockMetadata(ctx context.Context, bookID, blockID string) (BlockMetadata, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM block_metadata WHERE book_id = ? AND block_id = ?`, bookID, blockID)
	block, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BlockMetadata{}, false, nil
	}
	if err != nil {
		return BlockMetadata{}, false, fmt.Errorf("get block metadata: %w", err)
	}
	return block, true, nil
}

// ListBlockMetadata returns all rows of the given type for a book, ordered
// by section and block index.
func (s *Store) ListBlockMetadata(ctx context.Context, bookID string, blockType BlockType) ([]BlockMetadata, error) {
	return s.queryBlocks(ctx,
		`SELECT `+blockColumns+` FROM block_metadata WHERE book_id = ? AND type = ? ORDER BY section_order, block_index`,
		bookID, blockType)
}

// ListSectionBlocks returns the TEXT rows of one section ordered by block index.
func (s *Store) ListSectionBlocks(ctx context.Context, bookID string, sectionOrder int) ([]BlockMetadata, error) {
	return s.queryBlocks(ctx,
		`SELECT `+blockColumns+` FROM block_metadata WHERE book_id = ? AND section_order = ? AND type = ? ORDER BY block_index`,
		bookID, sectionOrder, BlockTypeText)
}

func (s *Store) queryBlocks(ctx context.Context, query string, args ...any) ([]BlockMetadata, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list block metadata: %w", err)
	}
	defer rows.Close()
	var blocks []BlockMetadata
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block metadata: %w", err)
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}

// CommitSection replaces the section's timestamps for its voice and upserts
// the block and section metadata rows in one transaction.
func (s *Store) CommitSection(ctx context.Context, commit SectionCommit) error {
	if commit.BookID == "" || commit.VoiceID == "" {
		return errors.New("commit section: book and voice are required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := replaceTimestampsTx(ctx, tx, commit.BookID, commit.SectionOrder, commit.VoiceID, commit.Timestamps); err != nil {
			return err
		}
		blocks := append([]BlockMetadata{}, commit.Blocks...)
		section := commit.Section
		section.BookID = commit.BookID
		section.BlockID = SectionBlockID(commit.SectionOrder)
		section.SectionOrder = commit.SectionOrder
		section.Type = BlockTypeSection
		blocks = append(blocks, section)
		return upsertBlocksTx(ctx, tx, blocks)
	})
}

func replaceTimestampsTx(ctx context.Context, tx *sql.Tx, bookID string, sectionOrder int, voiceID string, timestamps []BlockTimestamp) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM block_timestamps WHERE book_id = ? AND section_order = ? AND voice_id = ?`,
		bookID, sectionOrder, voiceID,
	); err != nil {
		return fmt.Errorf("clear timestamps: %w", err)
	}
	for _, ts := range timestamps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO block_timestamps (book_id, voice_id, section_order, block_id, start_time_ms, end_time_ms, character_start, character_end)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			bookID, voiceID, sectionOrder, ts.BlockID, ts.StartTimeMs, ts.EndTimeMs, ts.CharacterStart, ts.CharacterEnd,
		); err != nil {
			return fmt.Errorf("insert timestamp %s: %w", ts.BlockID, err)
		}
	}
	return nil
}

// ListTimestamps returns the timestamps of one section and voice ordered by start time.
func (s *Store) ListTimestamps(ctx context.Context, bookID string, sectionOrder int, voiceID string) ([]BlockTimestamp, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, voice_id, section_order, block_id, start_time_ms, end_time_ms, character_start, character_end
        FROM block_timestamps WHERE book_id = ? AND section_order = ? AND voice_id = ?
        ORDER BY start_time_ms, block_id`,
		bookID, sectionOrder, voiceID)
	if err != nil {
		return nil, fmt.Errorf("list timestamps: %w", err)
	}
	defer rows.Close()
	var out []BlockTimestamp
	for rows.Next() {
		var ts BlockTimestamp
		if err := rows.Scan(&ts.BookID, &ts.VoiceID, &ts.SectionOrder, &ts.BlockID,
			&ts.StartTimeMs, &ts.EndTimeMs, &ts.CharacterStart, &ts.CharacterEnd); err != nil {
			return nil, fmt.Errorf("scan timestamp: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}
