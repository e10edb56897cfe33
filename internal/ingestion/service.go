package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lectern/internal/content"
	"lectern/internal/logging"
	"lectern/internal/queue"
	"lectern/internal/services"
	"lectern/internal/speech"
	"lectern/internal/storage"
)

// ErrAlreadyIngesting rejects Start for a book whose ingestion is live or
// failed. Reset the book first.
var ErrAlreadyIngesting = errors.New("book already has an ingestion; reset required")

// Scheduler is the part of the workflow manager the service drives:
// cancelling a book's in-flight jobs and waking idle workers.
type Scheduler interface {
	CancelBook(bookID string)
	Wake()
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	DefaultVoiceID  string
	DefaultProvider string
	Scheduler       Scheduler
	Logger          *slog.Logger
}

// Service starts, resets and reports book ingestions.
type Service struct {
	store     *queue.Store
	source    content.Source
	objects   storage.Store
	providers *speech.Registry
	opts      ServiceOptions
	logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(store *queue.Store, source content.Source, objects storage.Store, providers *speech.Registry, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     store,
		source:    source,
		objects:   objects,
		providers: providers,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "ingestion"),
	}
}

// StartRequest asks for a book to be narrated. Empty voice and provider fall
// back to the configured defaults; an empty Sections list means every
// qualifying section.
type StartRequest struct {
	BookID   string `json:"book_id"`
	VoiceID  string `json:"voice_id,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Sections []int  `json:"sections,omitempty"`
}

// StartResult describes a newly created ingestion.
type StartResult struct {
	Ingestion    queue.IngestionStatus
	Jobs         int
	Sections     []int
	UsedFallback bool
}

// Start fetches the book, builds its job graph and persists it. Finished
// (completed or cancelled) ingestions are replaced; live or failed ones are
// rejected with ErrAlreadyIngesting.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	var result StartResult
	req.BookID = strings.TrimSpace(req.BookID)
	if req.BookID == "" {
		return result, services.Wrap(services.ErrValidation, "ingestion", "start", "book id is required", nil)
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		req.VoiceID = s.opts.DefaultVoiceID
	}
	if strings.TrimSpace(req.Provider) == "" {
		req.Provider = s.opts.DefaultProvider
	}
	req.VoiceID = strings.TrimSpace(req.VoiceID)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if req.VoiceID == "" {
		return result, services.Wrap(services.ErrValidation, "ingestion", "start", "voice id is required", nil)
	}
	if _, err := s.providers.Get(req.Provider); err != nil {
		return result, err
	}

	existing, err := s.store.GetIngestion(ctx, req.BookID)
	switch {
	case errors.Is(err, queue.ErrIngestionNotFound):
	case err != nil:
		return result, err
	case existing.Status == queue.IngestionCompleted || existing.Status == queue.IngestionCancelled:
		if err := s.store.DeleteJobs(ctx, req.BookID); err != nil {
			return result, err
		}
	default:
		return result, fmt.Errorf("%w: %s is %s", ErrAlreadyIngesting, req.BookID, existing.Status)
	}

	book, err := s.source.GetBook(ctx, req.BookID)
	if err != nil {
		return result, err
	}
	sections, usedFallback, err := SelectSections(book, req.Sections)
	if err != nil {
		return result, err
	}
	if usedFallback {
		logging.WarnWithContext(s.logger, "book has no body sections; narrating every section", "ingestion_fallback",
			logging.String(logging.FieldBookID, book.ID),
			logging.Int("sections", len(sections)),
			logging.String(logging.FieldErrorHint, "check the book navigation matter labels"),
		)
	}
	blocks := make(map[int][]content.Block, len(sections))
	for _, section := range sections {
		sectionBlocks, err := s.source.GetSectionBlocks(ctx, book.ID, section.Order)
		if err != nil {
			return result, err
		}
		blocks[section.Order] = sectionBlocks
	}

	graph, err := BuildGraph(book, blocks, GraphOptions{
		VoiceID:  req.VoiceID,
		Provider: req.Provider,
		Model:    req.Model,
		Sections: req.Sections,
	})
	if err != nil {
		return result, err
	}
	if err := s.store.InsertGraph(ctx, queue.IngestionStatus{
		BookID:        book.ID,
		Status:        queue.IngestionPending,
		TotalSections: len(graph.Sections),
		VoiceID:       req.VoiceID,
		Provider:      req.Provider,
	}, graph.Jobs); err != nil {
		if errors.Is(err, queue.ErrIngestionExists) {
			return result, fmt.Errorf("%w: %s", ErrAlreadyIngesting, book.ID)
		}
		return result, err
	}

	ingestion, err := s.store.GetIngestion(ctx, book.ID)
	if err != nil {
		return result, err
	}
	result.Ingestion = ingestion
	result.Jobs = len(graph.Jobs)
	result.UsedFallback = graph.UsedFallback
	for _, section := range graph.Sections {
		result.Sections = append(result.Sections, section.Order)
	}
	if s.opts.Scheduler != nil {
		s.opts.Scheduler.Wake()
	}
	s.logger.Info("ingestion started",
		logging.String(logging.FieldBookID, book.ID),
		logging.String(logging.FieldVoiceID, req.VoiceID),
		logging.String(logging.FieldProvider, req.Provider),
		logging.Int("sections", len(graph.Sections)),
		logging.Int("jobs", len(graph.Jobs)),
	)
	return result, nil
}

// ResetOptions tunes Reset.
type ResetOptions struct {
	// PurgeAudio also deletes every stored object of the book along with its
	// block metadata and summary.
	PurgeAudio bool
}

// ResetResult reports what Reset removed.
type ResetResult struct {
	BookID        string
	PurgedObjects int
	HadIngestion  bool
}

// Reset cancels the book's in-flight jobs and removes its jobs, timestamps
// and ingestion row so it can be ingested again. Without PurgeAudio, block
// and section metadata survive and the next ingestion reuses stored audio.
func (s *Service) Reset(ctx context.Context, bookID string, opts ResetOptions) (ResetResult, error) {
	bookID = strings.TrimSpace(bookID)
	result := ResetResult{BookID: bookID}
	if bookID == "" {
		return result, services.Wrap(services.ErrValidation, "ingestion", "reset", "book id is required", nil)
	}
	if s.opts.Scheduler != nil {
		s.opts.Scheduler.CancelBook(bookID)
	}
	if _, err := s.store.GetIngestion(ctx, bookID); err == nil {
		result.HadIngestion = true
	} else if !errors.Is(err, queue.ErrIngestionNotFound) {
		return result, err
	}
	remove := s.store.ResetBook
	if opts.PurgeAudio {
		remove = s.store.DeleteBook
	}
	if err := remove(ctx, bookID); err != nil {
		return result, err
	}
	if opts.PurgeAudio {
		purged, err := storage.DeletePrefix(ctx, s.objects, storage.BookPrefix(bookID))
		result.PurgedObjects = purged
		if err != nil {
			return result, fmt.Errorf("purge audio: %w", err)
		}
	}
	s.logger.Info("ingestion reset",
		logging.String(logging.FieldBookID, bookID),
		logging.Bool("purge_audio", opts.PurgeAudio),
		logging.Int("purged_objects", result.PurgedObjects),
	)
	return result, nil
}

// Cancel stops a live ingestion without deleting anything. Its jobs are no
// longer claimed.
func (s *Service) Cancel(ctx context.Context, bookID string) (queue.IngestionStatus, error) {
	if err := s.store.CancelIngestion(ctx, bookID); err != nil {
		return queue.IngestionStatus{}, err
	}
	if s.opts.Scheduler != nil {
		s.opts.Scheduler.CancelBook(bookID)
	}
	return s.store.GetIngestion(ctx, bookID)
}

// Status is a book's ingestion state plus its job counts. DurationMs and
// Ready come from the book metadata row once BOOK_META has run.
type Status struct {
	Ingestion  queue.IngestionStatus
	Jobs       map[queue.JobStatus]int
	DurationMs int64
	Ready      bool
}

// Status reports the ingestion of bookID. A book that was never ingested
// yields queue.ErrIngestionNotFound.
func (s *Service) Status(ctx context.Context, bookID string) (Status, error) {
	ingestion, err := s.store.GetIngestion(ctx, bookID)
	if err != nil {
		return Status{}, err
	}
	jobs, err := s.store.Stats(ctx, bookID)
	if err != nil {
		return Status{}, err
	}
	status := Status{Ingestion: ingestion, Jobs: jobs}
	book, found, err := s.store.GetBlockMetadata(ctx, bookID, queue.BookBlockID)
	if err != nil {
		return Status{}, err
	}
	if found {
		status.DurationMs = book.DurationMs
		status.Ready = book.Ready
	}
	return status, nil
}

// Jobs lists the jobs of a book.
func (s *Service) Jobs(ctx context.Context, bookID string) ([]*queue.Job, error) {
	return s.store.ListJobs(ctx, bookID)
}

// Job returns one job by id or queue.ErrJobNotFound.
func (s *Service) Job(ctx context.Context, id string) (*queue.Job, error) {
	return s.store.GetJob(ctx, id)
}

// ResetJobs returns failed jobs to the queue.
func (s *Service) ResetJobs(ctx context.Context, ids ...string) (int64, error) {
	n, err := s.store.ResetJobs(ctx, ids...)
	if err == nil && n > 0 && s.opts.Scheduler != nil {
		s.opts.Scheduler.Wake()
	}
	return n, err
}
