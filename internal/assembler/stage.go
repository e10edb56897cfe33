package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lectern/internal/content"
	"lectern/internal/logging"
	"lectern/internal/queue"
	"lectern/internal/services"
	"lectern/internal/speech"
	"lectern/internal/storage"
)

var errBlockNotFound = errors.New("block not found in section")

// StageRequest identifies one block to convert ahead of section assembly.
type StageRequest struct {
	BookID       string
	VoiceID      string
	Model        string
	SectionOrder int
	BlockID      string
	Converter    speech.Converter
}

// StageResult summarises a StageBlock call.
type StageResult struct {
	Path       string
	Skipped    bool
	DurationMs int64
	Aligned    bool
}

// StageBlock converts one block and stores its audio, its alignment sidecar
// (when the provider returned alignment) and its TEXT metadata row. A block
// that is already staged is skipped.
func (a *Assembler) StageBlock(ctx context.Context, req StageRequest) (StageResult, error) {
	audioPath := storage.BlockPath(req.BookID, req.VoiceID, req.BlockID)
	result := StageResult{Path: audioPath}

	blocks, err := a.sectionTextBlocks(ctx, req.BookID, req.SectionOrder)
	if err != nil {
		return result, err
	}
	pos := -1
	for i, block := range blocks {
		if block.ID == req.BlockID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return result, services.Wrap(services.ErrNotFound, "assembler", "stage block",
			fmt.Sprintf("block %s in section %d", req.BlockID, req.SectionOrder), errBlockNotFound)
	}
	block := blocks[pos]

	meta, found, err := a.metadata.GetBlockMetadata(ctx, req.BookID, block.ID)
	if err != nil {
		return result, fmt.Errorf("load block %s metadata: %w", block.ID, err)
	}
	if found && meta.DurationMs > 0 {
		exists, err := a.objects.Exists(ctx, audioPath)
		if err != nil {
			return result, fmt.Errorf("check block %s audio: %w", block.ID, err)
		}
		if exists {
			result.Skipped = true
			result.DurationMs = meta.DurationMs
			return result, nil
		}
	}

	if req.Converter == nil {
		return result, services.Wrap(services.ErrConfiguration, "assembler", "stage block", "no converter configured", nil)
	}
	audio, err := req.Converter.ConvertBlock(ctx, blockRequest(Request{
		BookID:       req.BookID,
		VoiceID:      req.VoiceID,
		Model:        req.Model,
		SectionOrder: req.SectionOrder,
	}, blocks, pos), nil)
	if err != nil {
		return result, err
	}

	aligned, err := a.stage(ctx, req.BookID, req.VoiceID, req.SectionOrder, block, audio)
	if err != nil {
		return result, err
	}
	result.Aligned = aligned
	result.DurationMs = audio.DurationMs
	a.logger.Debug("block staged",
		logging.String(logging.FieldBookID, req.BookID),
		logging.String("block_id", block.ID),
		logging.Int64("duration_ms", audio.DurationMs),
		logging.Bool("aligned", result.Aligned),
	)
	return result, nil
}

// stage stores converted block audio, its alignment sidecar when present,
// and the block's TEXT metadata row. It reports whether a sidecar was written.
func (a *Assembler) stage(ctx context.Context, bookID, voiceID string, sectionOrder int, block content.Block, audio speech.BlockAudio) (bool, error) {
	audioPath := storage.BlockPath(bookID, voiceID, block.ID)
	if err := a.objects.Upload(ctx, audioPath, audio.Audio, storage.ContentTypeMPEG); err != nil {
		return false, fmt.Errorf("upload block %s audio: %w", block.ID, err)
	}
	aligned := false
	if audio.Alignment != nil {
		doc, err := json.Marshal(sidecar{Text: audio.Text, Alignment: *audio.Alignment})
		if err != nil {
			return false, fmt.Errorf("encode block %s alignment: %w", block.ID, err)
		}
		alignmentPath := storage.BlockAlignmentPath(bookID, voiceID, block.ID)
		if err := a.objects.Upload(ctx, alignmentPath, doc, storage.ContentTypeJSON); err != nil {
			return false, fmt.Errorf("upload block %s alignment: %w", block.ID, err)
		}
		aligned = true
	}
	if err := a.metadata.UpsertBlockMetadata(ctx, queue.BlockMetadata{
		BookID:       bookID,
		BlockID:      block.ID,
		SectionOrder: sectionOrder,
		BlockIndex:   block.Index,
		Type:         queue.BlockTypeText,
		DurationMs:   audio.DurationMs,
	}); err != nil {
		return false, fmt.Errorf("record block %s metadata: %w", block.ID, err)
	}
	return aligned, nil
}
