package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"lectern/internal/content"
	"lectern/internal/logging"
	"lectern/internal/queue"
	"lectern/internal/services"
	"lectern/internal/speech"
	"lectern/internal/storage"
	"lectern/internal/timing"
)

// Metadata is the subset of the queue store the assembler persists through.
type Metadata interface {
	GetBlockMetadata(ctx context.Context, bookID, blockID string) (queue.BlockMetadata, bool, error)
	UpsertBlockMetadata(ctx context.Context, blocks ...queue.BlockMetadata) error
	CommitSection(ctx context.Context, commit queue.SectionCommit) error
	ListTimestamps(ctx context.Context, bookID string, sectionOrder int, voiceID string) ([]queue.BlockTimestamp, error)
}

// Options tunes an Assembler.
type Options struct {
	DownloadAttempts int
	Logger           *slog.Logger
}

// Assembler builds section audio from content blocks.
type Assembler struct {
	source           content.Source
	objects          storage.Store
	metadata         Metadata
	downloadAttempts int
	logger           *slog.Logger
}

// New constructs an Assembler.
func New(source content.Source, objects storage.Store, metadata Metadata, opts Options) *Assembler {
	attempts := opts.DownloadAttempts
	if attempts <= 0 {
		attempts = storage.DefaultDownloadAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assembler{
		source:           source,
		objects:          objects,
		metadata:         metadata,
		downloadAttempts: attempts,
		logger:           logger,
	}
}

// Request identifies the section to assemble. Converter is used for blocks
// without staged audio.
type Request struct {
	BookID       string
	VoiceID      string
	Model        string
	SectionOrder int
	Converter    speech.Converter
}

// Result summarises an Assemble call.
type Result struct {
	Path       string
	Skipped    bool
	Empty      bool
	DurationMs int64
	Blocks     int
	Reused     int
	Converted  int
}

// sidecar is the staged alignment document stored next to block audio.
type sidecar struct {
	Text      string           `json:"text"`
	Alignment timing.Alignment `json:"alignment"`
}

type blockAudio struct {
	block     content.Block
	text      string
	audio     []byte
	duration  int64
	alignment *timing.Alignment
	convert   bool
}

// Assemble produces the section audio for req. Any block failure fails the
// whole section before anything is persisted. Section audio is uploaded
// before its metadata and timestamps are committed.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Result, error) {
	path := storage.SectionPath(req.BookID, req.VoiceID, req.SectionOrder)
	result := Result{Path: path}
	logger := a.logger.With(
		logging.String(logging.FieldBookID, req.BookID),
		logging.Int(logging.FieldSectionOrder, req.SectionOrder),
		logging.String(logging.FieldVoiceID, req.VoiceID),
	)

	exists, err := a.objects.Exists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("check section audio: %w", err)
	}
	if exists {
		done, err := a.sectionComplete(ctx, req)
		if err != nil {
			return result, err
		}
		if done.Ready {
			logger.Info("section audio already exists; skipping", logging.String("path", path))
			result.Skipped = true
			result.DurationMs = done.DurationMs
			return result, nil
		}
		logger.Warn("section audio exists without metadata or timestamps; reassembling", logging.String("path", path))
	}

	blocks, err := a.sectionTextBlocks(ctx, req.BookID, req.SectionOrder)
	if err != nil {
		return result, err
	}
	if len(blocks) == 0 {
		if err := a.metadata.CommitSection(ctx, queue.SectionCommit{
			BookID:       req.BookID,
			VoiceID:      req.VoiceID,
			SectionOrder: req.SectionOrder,
			Section:      queue.BlockMetadata{DurationMs: 0, Ready: true},
		}); err != nil {
			return result, fmt.Errorf("commit empty section: %w", err)
		}
		logger.Info("section has no text blocks; recorded zero duration")
		result.Empty = true
		return result, nil
	}
	result.Blocks = len(blocks)

	entries := make([]blockAudio, 0, len(blocks))
	var pending []speech.BlockRequest
	for i, block := range blocks {
		staged, ok, err := a.loadStaged(ctx, req.BookID, req.VoiceID, block)
		if err != nil {
			return result, err
		}
		if ok {
			entries = append(entries, staged)
			result.Reused++
			continue
		}
		pending = append(pending, blockRequest(req, blocks, i))
	}

	if len(pending) > 0 {
		if req.Converter == nil {
			return result, services.Wrap(services.ErrConfiguration, "assembler", "convert blocks",
				fmt.Sprintf("%d blocks are not staged and no converter is configured", len(pending)), nil)
		}
		converted, err := req.Converter.ConvertBlocks(ctx, pending)
		if err != nil {
			return result, err
		}
		byID := indexBlocks(blocks)
		for _, audio := range converted {
			entries = append(entries, blockAudio{
				block:     byID[audio.BlockID],
				text:      audio.Text,
				audio:     audio.Audio,
				duration:  audio.DurationMs,
				alignment: audio.Alignment,
				convert:   true,
			})
		}
		result.Converted = len(converted)
	}

	slices.SortStableFunc(entries, func(x, y blockAudio) int { return x.block.Index - y.block.Index })

	timings, err := sectionTimings(entries)
	if err != nil {
		return result, err
	}
	if err := timing.Validate(timings); err != nil {
		return result, err
	}

	var combined []byte
	durations := make([]int64, len(entries))
	for i, entry := range entries {
		if entry.duration <= 0 {
			return result, services.Wrap(services.ErrValidation, "assembler", "concatenate",
				fmt.Sprintf("block %s has non-positive duration", entry.block.ID), nil)
		}
		durations[i] = entry.duration
		combined = append(combined, entry.audio...)
	}
	if len(combined) == 0 {
		return result, services.Wrap(services.ErrValidation, "assembler", "concatenate", "combined section audio is empty", nil)
	}

	offsets := timing.Offsets(durations)
	commit := queue.SectionCommit{
		BookID:       req.BookID,
		VoiceID:      req.VoiceID,
		SectionOrder: req.SectionOrder,
	}
	for _, t := range timings {
		commit.Timestamps = append(commit.Timestamps, queue.BlockTimestamp{
			BookID:         req.BookID,
			VoiceID:        req.VoiceID,
			SectionOrder:   req.SectionOrder,
			BlockID:        t.BlockID,
			StartTimeMs:    t.StartMs,
			EndTimeMs:      t.EndMs,
			CharacterStart: t.CharacterStart,
			CharacterEnd:   t.CharacterEnd,
		})
	}
	for i, entry := range entries {
		commit.Blocks = append(commit.Blocks, queue.BlockMetadata{
			BookID:       req.BookID,
			BlockID:      entry.block.ID,
			SectionOrder: req.SectionOrder,
			BlockIndex:   entry.block.Index,
			Type:         queue.BlockTypeText,
			DurationMs:   entry.duration,
			StartTimeMs:  offsets[i].StartMs,
		})
		result.DurationMs += entry.duration
	}
	commit.Section = queue.BlockMetadata{DurationMs: result.DurationMs, Ready: true}

	// Converted blocks are staged so a later reassembly reuses them.
	for _, entry := range entries {
		if !entry.convert {
			continue
		}
		if _, err := a.stage(ctx, req.BookID, req.VoiceID, req.SectionOrder, entry.block, speech.BlockAudio{
			Text:       entry.text,
			Audio:      entry.audio,
			DurationMs: entry.duration,
			Alignment:  entry.alignment,
		}); err != nil {
			return result, err
		}
	}
	if err := a.objects.Upload(ctx, path, combined, storage.ContentTypeMPEG); err != nil {
		return result, fmt.Errorf("upload section audio: %w", err)
	}
	if err := a.metadata.CommitSection(ctx, commit); err != nil {
		return result, fmt.Errorf("commit section: %w", err)
	}
	logger.Info("section assembled",
		logging.String("path", path),
		logging.Int64("duration_ms", result.DurationMs),
		logging.Int("blocks", result.Blocks),
		logging.Int("reused", result.Reused),
		logging.Int("converted", result.Converted),
	)
	return result, nil
}

// sectionComplete reports whether a section with existing audio also has a
// ready section row and timestamps for the requested voice.
func (a *Assembler) sectionComplete(ctx context.Context, req Request) (queue.BlockMetadata, error) {
	section, found, err := a.metadata.GetBlockMetadata(ctx, req.BookID, queue.SectionBlockID(req.SectionOrder))
	if err != nil {
		return queue.BlockMetadata{}, fmt.Errorf("load section metadata: %w", err)
	}
	if !found || !section.Ready {
		return queue.BlockMetadata{}, nil
	}
	timestamps, err := a.metadata.ListTimestamps(ctx, req.BookID, req.SectionOrder, req.VoiceID)
	if err != nil {
		return queue.BlockMetadata{}, fmt.Errorf("load section timestamps: %w", err)
	}
	if len(timestamps) == 0 {
		return queue.BlockMetadata{}, nil
	}
	return section, nil
}

func (a *Assembler) sectionTextBlocks(ctx context.Context, bookID string, order int) ([]content.Block, error) {
	blocks, err := a.source.GetSectionBlocks(ctx, bookID, order)
	if err != nil {
		return nil, fmt.Errorf("fetch section %d blocks: %w", order, err)
	}
	text := content.TextBlocks(blocks)
	slices.SortStableFunc(text, func(x, y content.Block) int { return x.Index - y.Index })
	return text, nil
}

// loadStaged returns the block's staged audio when both the audio object and
// positive duration metadata exist.
func (a *Assembler) loadStaged(ctx context.Context, bookID, voiceID string, block content.Block) (blockAudio, bool, error) {
	meta, found, err := a.metadata.GetBlockMetadata(ctx, bookID, block.ID)
	if err != nil {
		return blockAudio{}, false, fmt.Errorf("load block %s metadata: %w", block.ID, err)
	}
	if !found || meta.DurationMs <= 0 {
		return blockAudio{}, false, nil
	}
	audioPath := storage.BlockPath(bookID, voiceID, block.ID)
	exists, err := a.objects.Exists(ctx, audioPath)
	if err != nil {
		return blockAudio{}, false, fmt.Errorf("check block %s audio: %w", block.ID, err)
	}
	if !exists {
		return blockAudio{}, false, nil
	}
	audio, err := storage.DownloadWithRetry(ctx, a.objects, audioPath, a.downloadAttempts)
	if err != nil {
		return blockAudio{}, false, fmt.Errorf("download block %s audio: %w", block.ID, err)
	}
	entry := blockAudio{block: block, text: block.Text, audio: audio, duration: meta.DurationMs}

	alignmentPath := storage.BlockAlignmentPath(bookID, voiceID, block.ID)
	if ok, err := a.objects.Exists(ctx, alignmentPath); err == nil && ok {
		raw, err := storage.DownloadWithRetry(ctx, a.objects, alignmentPath, a.downloadAttempts)
		if err != nil {
			return blockAudio{}, false, fmt.Errorf("download block %s alignment: %w", block.ID, err)
		}
		var doc sidecar
		if err := json.Unmarshal(raw, &doc); err != nil {
			a.logger.Warn("ignoring unreadable block alignment",
				logging.String("block_id", block.ID),
				logging.Error(err),
			)
		} else if doc.Alignment.Len() > 0 {
			entry.text = doc.Text
			entry.alignment = &doc.Alignment
		}
	}
	return entry, true, nil
}

func blockRequest(req Request, blocks []content.Block, i int) speech.BlockRequest {
	br := speech.BlockRequest{
		BlockID: blocks[i].ID,
		Index:   blocks[i].Index,
		Text:    blocks[i].Text,
		VoiceID: req.VoiceID,
		Model:   req.Model,
	}
	if i > 0 {
		br.PreviousText = blocks[i-1].Text
	}
	if i+1 < len(blocks) {
		br.NextText = blocks[i+1].Text
	}
	return br
}

func indexBlocks(blocks []content.Block) map[string]content.Block {
	out := make(map[string]content.Block, len(blocks))
	for _, block := range blocks {
		out[block.ID] = block
	}
	return out
}

// sectionTimings returns per-block timing for ordered entries. Running
// offsets from durations are canonical; when every block carries alignment
// covering its text, timing is derived from the merged alignment instead.
func sectionTimings(entries []blockAudio) ([]timing.BlockTiming, error) {
	texts := make([]string, len(entries))
	durations := make([]int64, len(entries))
	aligned := true
	for i, entry := range entries {
		texts[i] = entry.text
		durations[i] = entry.duration
		if entry.alignment.Empty() || entry.alignment.Len() != len([]rune(entry.text)) {
			aligned = false
		}
	}
	spans := timing.Positions(texts)
	offsets := timing.Offsets(durations)

	if aligned {
		var merged timing.Alignment
		blocks := make([]timing.Block, len(entries))
		for i, entry := range entries {
			merged = merged.Append(entry.alignment.Offset(float64(offsets[i].StartMs)/1000), " ")
			blocks[i] = timing.Block{ID: entry.block.ID, Span: spans[i]}
		}
		mapped := timing.Map(blocks, merged)
		if len(mapped) == 0 {
			return nil, services.Wrap(services.ErrValidation, "assembler", "map timestamps", "alignment carries no timed characters", nil)
		}
		return mapped, nil
	}

	out := make([]timing.BlockTiming, len(entries))
	for i, entry := range entries {
		out[i] = timing.BlockTiming{
			BlockID:        entry.block.ID,
			StartMs:        offsets[i].StartMs,
			EndMs:          offsets[i].EndMs,
			CharacterStart: spans[i].Start,
			CharacterEnd:   spans[i].End,
		}
	}
	return out, nil
}
