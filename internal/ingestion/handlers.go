package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"lectern/internal/assembler"
	"lectern/internal/content"
	"lectern/internal/logging"
	"lectern/internal/queue"
	"lectern/internal/services"
	"lectern/internal/services/llm"
	"lectern/internal/speech"
	"lectern/internal/stage"
	"lectern/internal/storage"
)

// Summarizer produces book summaries and their embeddings. *llm.Client
// satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, title, author, text string) (llm.Summary, error)
	Embed(ctx context.Context, input string) (llm.Embedding, error)
}

// Deps wires the handlers to their collaborators. Summarizer is nil when
// summaries are disabled.
type Deps struct {
	Store             *queue.Store
	Source            content.Source
	Objects           storage.Store
	Providers         *speech.Registry
	Summarizer        Summarizer
	Concurrency       int
	DownloadAttempts  int
	SummaryInputChars int
	Logger            *slog.Logger
}

// NewHandlers returns the handler for every job type.
func NewHandlers(deps Deps) map[queue.JobType]stage.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	asm := assembler.New(deps.Source, deps.Objects, deps.Store, assembler.Options{
		DownloadAttempts: deps.DownloadAttempts,
		Logger:           logging.NewComponentLogger(logger, "assembler"),
	})
	converters := &converterCache{
		registry:    deps.Providers,
		concurrency: deps.Concurrency,
		logger:      logging.NewComponentLogger(logger, "speech"),
		built:       map[string]speech.Converter{},
	}
	inputChars := deps.SummaryInputChars
	if inputChars <= 0 {
		inputChars = defaultSummaryInputChars
	}
	summaries := &summaryHandler{
		store:      deps.Store,
		source:     deps.Source,
		summarizer: deps.Summarizer,
		inputChars: inputChars,
		logger:     logging.NewComponentLogger(logger, "summary"),
	}
	return map[queue.JobType]stage.Handler{
		queue.JobTextToAudio: &textToAudioHandler{
			store:      deps.Store,
			asm:        asm,
			converters: converters,
			logger:     logging.NewComponentLogger(logger, "text_to_audio"),
		},
		queue.JobSectionConcat:    &sectionConcatHandler{asm: asm, converters: converters},
		queue.JobBookSummary:      summaries,
		queue.JobSummaryEmbedding: &embeddingHandler{summaryHandler: summaries},
		queue.JobBookMeta:         &bookMetaHandler{store: deps.Store, logger: logging.NewComponentLogger(logger, "book_meta")},
	}
}

const defaultSummaryInputChars = 24000

// converterCache builds one Converter per provider name.
type converterCache struct {
	registry    *speech.Registry
	concurrency int
	logger      *slog.Logger

	mu    sync.Mutex
	built map[string]speech.Converter
}

func (c *converterCache) get(name string) (speech.Converter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.built[key]; ok {
		return conv, nil
	}
	provider, err := c.registry.Get(key)
	if err != nil {
		return nil, err
	}
	conv, err := speech.NewConverter(provider, speech.Options{Concurrency: c.concurrency, Logger: c.logger})
	if err != nil {
		return nil, err
	}
	c.built[key] = conv
	return conv, nil
}

func (c *converterCache) health(name string) stage.Health {
	names := c.registry.Names()
	if len(names) == 0 {
		return stage.Unhealthy(name, "no speech provider configured")
	}
	return stage.Health{Name: name, Ready: true, Detail: "providers: " + strings.Join(names, ", ")}
}

type textToAudioHandler struct {
	store      *queue.Store
	asm        *assembler.Assembler
	converters *converterCache
	logger     *slog.Logger
}

// Execute stages one block ahead of section assembly. Stitching providers
// need the section's blocks converted in order with a shared request-id
// window, so for them conversion is left to SECTION_CONCAT.
func (h *textToAudioHandler) Execute(ctx context.Context, job *queue.Job) error {
	payload, err := stage.DecodePayload[queue.TextToAudioPayload](job)
	if err != nil {
		return err
	}
	conv, err := h.converters.get(payload.Provider)
	if err != nil {
		return err
	}
	if conv.Stitching() {
		h.logger.Debug("block conversion deferred to section assembly",
			logging.String(logging.FieldBookID, payload.BookID),
			logging.String("block_id", payload.BlockID),
			logging.String(logging.FieldProvider, payload.Provider),
		)
		return h.store.AppendLog(ctx, job.ID, "deferred to section assembly")
	}
	_, err = h.asm.StageBlock(ctx, assembler.StageRequest{
		BookID:       payload.BookID,
		VoiceID:      payload.VoiceID,
		Model:        payload.Model,
		SectionOrder: payload.SectionOrder,
		BlockID:      payload.BlockID,
		Converter:    conv,
	})
	return err
}

func (h *textToAudioHandler) HealthCheck(context.Context) stage.Health {
	return h.converters.health("text_to_audio")
}

type sectionConcatHandler struct {
	asm        *assembler.Assembler
	converters *converterCache
}

func (h *sectionConcatHandler) Execute(ctx context.Context, job *queue.Job) error {
	payload, err := stage.DecodePayload[queue.SectionConcatPayload](job)
	if err != nil {
		return err
	}
	conv, err := h.converters.get(payload.Provider)
	if err != nil {
		return err
	}
	_, err = h.asm.Assemble(ctx, assembler.Request{
		BookID:       payload.BookID,
		VoiceID:      payload.VoiceID,
		Model:        payload.Model,
		SectionOrder: payload.SectionOrder,
		Converter:    conv,
	})
	return err
}

func (h *sectionConcatHandler) HealthCheck(context.Context) stage.Health {
	return h.converters.health("section_concat")
}

type summaryHandler struct {
	store      *queue.Store
	source     content.Source
	summarizer Summarizer
	inputChars int
	logger     *slog.Logger
}

func (h *summaryHandler) Execute(ctx context.Context, job *queue.Job) error {
	payload, err := stage.DecodePayload[queue.BookSummaryPayload](job)
	if err != nil {
		return err
	}
	if h.summarizer == nil {
		return h.skip(ctx, job, "summary generation disabled")
	}
	book, err := h.source.GetBook(ctx, payload.BookID)
	if err != nil {
		return err
	}
	text, err := h.bookText(ctx, book)
	if err != nil {
		return err
	}
	if text == "" {
		return h.skip(ctx, job, "book has no text to summarise")
	}
	summary, err := h.summarizer.Summarize(ctx, book.Title, book.Author, text)
	if err != nil {
		return services.Wrap(services.ErrProvider, "summary", "summarize", "book summary request failed", err)
	}
	if err := h.store.SaveSummary(ctx, payload.BookID, summary.Summary); err != nil {
		return err
	}
	h.logger.Info("book summary stored",
		logging.String(logging.FieldBookID, payload.BookID),
		logging.Int("summary_chars", len([]rune(summary.Summary))),
	)
	return nil
}

// bookText concatenates section text in reading order until the input
// budget is reached.
func (h *summaryHandler) bookText(ctx context.Context, book content.Book) (string, error) {
	sections, _, err := SelectSections(book, nil)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	remaining := h.inputChars
	for _, section := range sections {
		if remaining <= 0 {
			break
		}
		blocks, err := h.source.GetSectionBlocks(ctx, book.ID, section.Order)
		if err != nil {
			return "", err
		}
		for _, block := range content.TextBlocks(blocks) {
			if remaining <= 0 {
				break
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			text := block.Text
			if runes := []rune(text); len(runes) > remaining {
				text = string(runes[:remaining])
			}
			b.WriteString(text)
			remaining -= len([]rune(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (h *summaryHandler) skip(ctx context.Context, job *queue.Job, reason string) error {
	h.logger.Info("summary step skipped",
		logging.String(logging.FieldBookID, job.BookID),
		logging.String(logging.FieldJobType, string(job.Type)),
		logging.String("reason", reason),
	)
	return h.store.AppendLog(ctx, job.ID, "skipped: "+reason)
}

func (h *summaryHandler) HealthCheck(context.Context) stage.Health {
	if h.summarizer == nil {
		return stage.Health{Name: "book_summary", Ready: true, Detail: "disabled"}
	}
	return stage.Healthy("book_summary")
}

type embeddingHandler struct {
	*summaryHandler
}

func (h *embeddingHandler) Execute(ctx context.Context, job *queue.Job) error {
	payload, err := stage.DecodePayload[queue.SummaryEmbeddingPayload](job)
	if err != nil {
		return err
	}
	if h.summarizer == nil {
		return h.skip(ctx, job, "summary generation disabled")
	}
	summary, found, err := h.store.GetSummary(ctx, payload.BookID)
	if err != nil {
		return err
	}
	if !found || strings.TrimSpace(summary.Summary) == "" {
		return h.skip(ctx, job, "no summary stored")
	}
	embedding, err := h.summarizer.Embed(ctx, summary.Summary)
	if err != nil {
		return services.Wrap(services.ErrProvider, "summary", "embed", "summary embedding request failed", err)
	}
	if err := h.store.SaveEmbedding(ctx, payload.BookID, embedding.Vector, embedding.Model); err != nil {
		return err
	}
	h.logger.Info("summary embedding stored",
		logging.String(logging.FieldBookID, payload.BookID),
		logging.Int("dimensions", len(embedding.Vector)),
	)
	return nil
}

func (h *embeddingHandler) HealthCheck(ctx context.Context) stage.Health {
	health := h.summaryHandler.HealthCheck(ctx)
	health.Name = "summary_embedding"
	return health
}

type bookMetaHandler struct {
	store  *queue.Store
	logger *slog.Logger
}

// Execute places every block on its section timeline, every section on the
// book timeline, and marks the book ready. Rows are written in one batch.
func (h *bookMetaHandler) Execute(ctx context.Context, job *queue.Job) error {
	payload, err := stage.DecodePayload[queue.BookMetaPayload](job)
	if err != nil {
		return err
	}
	var rows []queue.BlockMetadata
	var bookMs int64
	for _, order := range payload.SectionOrders {
		section, found, err := h.store.GetBlockMetadata(ctx, payload.BookID, queue.SectionBlockID(order))
		if err != nil {
			return err
		}
		if !found {
			return services.Wrap(services.ErrValidation, "book_meta", "aggregate",
				fmt.Sprintf("section %d has not been assembled", order), nil)
		}
		blocks, err := h.store.ListSectionBlocks(ctx, payload.BookID, order)
		if err != nil {
			return err
		}
		var sectionMs int64
		for _, block := range blocks {
			block.StartTimeMs = sectionMs
			block.Ready = true
			sectionMs += block.DurationMs
			rows = append(rows, block)
		}
		section.DurationMs = sectionMs
		section.StartTimeMs = bookMs
		section.Ready = true
		rows = append(rows, section)
		bookMs += sectionMs
	}

	book := queue.BlockMetadata{
		BookID:     payload.BookID,
		BlockID:    queue.BookBlockID,
		Type:       queue.BlockTypeBook,
		DurationMs: bookMs,
		Ready:      true,
	}
	summary, found, err := h.store.GetSummary(ctx, payload.BookID)
	if err != nil {
		return err
	}
	if found {
		book.Summary = summary.Summary
	}
	rows = append(rows, book)
	if err := h.store.UpsertBlockMetadata(ctx, rows...); err != nil {
		return err
	}
	h.logger.Info("book metadata ready",
		logging.String(logging.FieldBookID, payload.BookID),
		logging.Int("sections", len(payload.SectionOrders)),
		logging.Int64("duration_ms", bookMs),
	)
	return nil
}

func (h *bookMetaHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("book_meta")
}
