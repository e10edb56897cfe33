package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"lectern/internal/ingestion"
	"lectern/internal/logging"
	"lectern/internal/preflight"
	"lectern/internal/queue"
	"lectern/internal/services"
	"lectern/internal/workflow"
)

// Ingestion is the book-level control surface the routes drive.
type Ingestion interface {
	Start(ctx context.Context, req ingestion.StartRequest) (ingestion.StartResult, error)
	Reset(ctx context.Context, bookID string, opts ingestion.ResetOptions) (ingestion.ResetResult, error)
	Cancel(ctx context.Context, bookID string) (queue.IngestionStatus, error)
	Status(ctx context.Context, bookID string) (ingestion.Status, error)
	Jobs(ctx context.Context, bookID string) ([]*queue.Job, error)
	Job(ctx context.Context, id string) (*queue.Job, error)
	ResetJobs(ctx context.Context, ids ...string) (int64, error)
}

// WorkflowStatusSource reports workflow diagnostics for /health.
type WorkflowStatusSource interface {
	Status(ctx context.Context) workflow.StatusSummary
}

// Options wires the router to the daemon's services.
type Options struct {
	Ingestion Ingestion
	Workflow  WorkflowStatusSource
	// Health runs preflight checks. Nil reports no checks.
	Health func(ctx context.Context) []preflight.Result
	// Token, when set, is required as a bearer token on /api routes.
	Token  string
	Logger *slog.Logger
}

type handler struct {
	ingestion Ingestion
	workflow  WorkflowStatusSource
	health    func(ctx context.Context) []preflight.Result
	logger    *slog.Logger
}

// NewRouter builds the HTTP handler for the control API.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &handler{
		ingestion: opts.Ingestion,
		workflow:  opts.Workflow,
		health:    opts.Health,
		logger:    logger.With(logging.String(logging.FieldComponent, "api")),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(h.requestContext)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/health", h.getHealth)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(bearerAuth(opts.Token))
		v1.Route("/books/{bookID}", func(book chi.Router) {
			book.Post("/ingestion", h.startIngestion)
			book.Get("/ingestion", h.getIngestion)
			book.Delete("/ingestion", h.resetIngestion)
			book.Post("/ingestion/cancel", h.cancelIngestion)
			book.Get("/jobs", h.listJobs)
		})
		v1.Post("/jobs/{jobID}/reset", h.resetJob)
	})
	return r
}

// requestContext stamps chi's request id as the correlation id and logs
// each request once it completes.
func (h *handler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chiMiddleware.GetReqID(ctx); id != "" {
			ctx = services.WithRequestID(ctx, id)
		}
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.WithContext(ctx, h.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}
