package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"lectern/internal/chunker"
	"lectern/internal/logging"
	"lectern/internal/services"
)

// BlockRequest is one content block to narrate. PreviousText and NextText are
// the neighbouring blocks' text; only stitching providers use them.
type BlockRequest struct {
	BlockID      string
	Index        int
	Text         string
	VoiceID      string
	Model        string
	PreviousText string
	NextText     string
}

// BlockAudio is the converted result for one block. Text is the chunk-joined
// text the alignment (when present) indexes into.
type BlockAudio struct {
	BlockID    string
	Index      int
	Text       string
	Audio      []byte
	DurationMs int64
	Alignment  *Alignment
	RequestIDs []string
}

// Converter turns blocks into audio using one provider behaviour class.
type Converter interface {
	ConvertBlock(ctx context.Context, block BlockRequest, history *History) (BlockAudio, error)
	ConvertBlocks(ctx context.Context, blocks []BlockRequest) ([]BlockAudio, error)
	Stitching() bool
	Provider() Provider
}

// Options tunes a Converter.
type Options struct {
	// Concurrency bounds block fan-out for estimating providers.
	Concurrency int
	Logger      *slog.Logger
}

// NewConverter returns the Converter matching the provider's capability.
func NewConverter(provider Provider, opts Options) (Converter, error) {
	if provider == nil {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "new converter", "provider is required", nil)
	}
	if provider.MaxChars() <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "new converter",
			fmt.Sprintf("provider %s has no character limit", provider.Name()), nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldProvider, provider.Name()))
	if SupportsStitching(provider) {
		return &StitchingConverter{provider: provider, logger: logger}, nil
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &EstimatingConverter{provider: provider, concurrency: concurrency, logger: logger}, nil
}

// StitchingConverter drives providers that accept neighbouring context and
// return alignment. Chunks and blocks are converted strictly in order.
type StitchingConverter struct {
	provider Provider
	logger   *slog.Logger
}

func (c *StitchingConverter) Stitching() bool    { return true }
func (c *StitchingConverter) Provider() Provider { return c.provider }

// ConvertBlock converts one block, threading history through every chunk
// request. A nil history starts a fresh window.
func (c *StitchingConverter) ConvertBlock(ctx context.Context, block BlockRequest, history *History) (BlockAudio, error) {
	chunks, err := splitBlock(block, c.provider.MaxChars())
	if err != nil {
		return BlockAudio{}, err
	}
	if history == nil {
		history = &History{}
	}
	withContext := chunker.WithContext(chunks)
	withContext[0].PreviousText = chunker.Tail(block.PreviousText, chunker.ContextChars)
	withContext[len(withContext)-1].NextText = chunker.Head(block.NextText, chunker.ContextChars)

	result := BlockAudio{BlockID: block.BlockID, Index: block.Index, Text: chunker.Join(chunks)}
	var (
		merged       Alignment
		aligned      = true
		cumulativeMs int64
	)
	for _, chunk := range withContext {
		if err := ctx.Err(); err != nil {
			return BlockAudio{}, err
		}
		resp, err := c.provider.Synthesize(ctx, Request{
			Text:               chunk.Text,
			VoiceID:            block.VoiceID,
			Model:              block.Model,
			PreviousText:       chunk.PreviousText,
			NextText:           chunk.NextText,
			PreviousRequestIDs: history.IDs(),
		})
		if err != nil {
			return BlockAudio{}, providerError(c.provider, block, chunk.Index, err)
		}
		durationMs := resp.DurationMs
		if durationMs <= 0 && !resp.Alignment.Empty() {
			durationMs = secondsToMs(resp.Alignment.EndSeconds())
		}
		if err := checkAudio(c.provider, block, chunk.Index, resp.Audio, durationMs); err != nil {
			return BlockAudio{}, err
		}
		history.Add(resp.RequestID)
		if resp.RequestID != "" {
			result.RequestIDs = append(result.RequestIDs, resp.RequestID)
		}
		if resp.Alignment.Empty() {
			aligned = false
		} else if aligned {
			merged = merged.Append(resp.Alignment.Offset(float64(cumulativeMs)/1000), " ")
		}
		result.Audio = append(result.Audio, resp.Audio...)
		cumulativeMs += durationMs
	}
	result.DurationMs = cumulativeMs
	if aligned && merged.Len() > 0 {
		result.Alignment = &merged
	}
	c.logger.Debug("block converted",
		logging.String("block_id", block.BlockID),
		logging.Int("chunks", len(chunks)),
		logging.Int64("duration_ms", result.DurationMs),
		logging.Bool("aligned", result.Alignment != nil),
	)
	return result, nil
}

// ConvertBlocks converts blocks sequentially with one shared history window.
func (c *StitchingConverter) ConvertBlocks(ctx context.Context, blocks []BlockRequest) ([]BlockAudio, error) {
	history := &History{}
	out := make([]BlockAudio, 0, len(blocks))
	for _, block := range blocks {
		audio, err := c.ConvertBlock(ctx, block, history)
		if err != nil {
			return nil, err
		}
		out = append(out, audio)
	}
	return out, nil
}

// EstimatingConverter drives providers without context or alignment support.
// Blocks are independent and converted concurrently.
type EstimatingConverter struct {
	provider    Provider
	concurrency int
	logger      *slog.Logger
}

func (c *EstimatingConverter) Stitching() bool    { return false }
func (c *EstimatingConverter) Provider() Provider { return c.provider }

// ConvertBlock converts one block. History is unused. Native chunk durations
// are summed; a block whose chunks report none is estimated once from its
// full text.
func (c *EstimatingConverter) ConvertBlock(ctx context.Context, block BlockRequest, _ *History) (BlockAudio, error) {
	chunks, err := splitBlock(block, c.provider.MaxChars())
	if err != nil {
		return BlockAudio{}, err
	}
	result := BlockAudio{BlockID: block.BlockID, Index: block.Index, Text: chunker.Join(chunks)}
	var (
		nativeMs    int64
		estimatedMs int64
		missing     int
	)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return BlockAudio{}, err
		}
		resp, err := c.provider.Synthesize(ctx, Request{Text: chunk, VoiceID: block.VoiceID, Model: block.Model})
		if err != nil {
			return BlockAudio{}, providerError(c.provider, block, i, err)
		}
		if len(resp.Audio) == 0 {
			return BlockAudio{}, checkAudio(c.provider, block, i, resp.Audio, resp.DurationMs)
		}
		if resp.DurationMs > 0 {
			nativeMs += resp.DurationMs
		} else {
			estimatedMs += EstimateDurationMs(chunk)
			missing++
		}
		if resp.RequestID != "" {
			result.RequestIDs = append(result.RequestIDs, resp.RequestID)
		}
		result.Audio = append(result.Audio, resp.Audio...)
	}
	switch missing {
	case 0:
		result.DurationMs = nativeMs
	case len(chunks):
		result.DurationMs = EstimateDurationMs(block.Text)
	default:
		result.DurationMs = nativeMs + estimatedMs
	}
	if err := checkAudio(c.provider, block, len(chunks)-1, result.Audio, result.DurationMs); err != nil {
		return BlockAudio{}, err
	}
	c.logger.Debug("block converted",
		logging.String("block_id", block.BlockID),
		logging.Int("chunks", len(chunks)),
		logging.Int64("duration_ms", result.DurationMs),
		logging.Int("estimated_chunks", missing),
	)
	return result, nil
}

// ConvertBlocks fans out across blocks bounded by the configured concurrency.
// Results keep input order regardless of completion order.
func (c *EstimatingConverter) ConvertBlocks(ctx context.Context, blocks []BlockRequest) ([]BlockAudio, error) {
	out := make([]BlockAudio, len(blocks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for i, block := range blocks {
		group.Go(func() error {
			audio, err := c.ConvertBlock(groupCtx, block, nil)
			if err != nil {
				return err
			}
			out[i] = audio
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitBlock(block BlockRequest, maxChars int) ([]string, error) {
	chunks := chunker.Split(block.Text, maxChars)
	if len(chunks) == 0 {
		return nil, services.Wrap(services.ErrValidation, "speech", "split block",
			fmt.Sprintf("block %s has no text", block.BlockID), nil)
	}
	return chunks, nil
}

func providerError(p Provider, block BlockRequest, chunk int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrProvider, "speech", "synthesize",
		fmt.Sprintf("%s block %s chunk %d", p.Name(), block.BlockID, chunk), err)
}

func checkAudio(p Provider, block BlockRequest, chunk int, audio []byte, durationMs int64) error {
	switch {
	case len(audio) == 0:
		return services.Wrap(services.ErrProvider, "speech", "synthesize",
			fmt.Sprintf("%s returned empty audio for block %s chunk %d", p.Name(), block.BlockID, chunk), nil)
	case durationMs <= 0:
		return services.Wrap(services.ErrProvider, "speech", "synthesize",
			fmt.Sprintf("%s returned non-positive duration for block %s chunk %d", p.Name(), block.BlockID, chunk), nil)
	}
	return nil
}

func secondsToMs(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}
