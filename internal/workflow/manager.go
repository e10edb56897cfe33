package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/queue"
	"lectern/internal/stage"
)

// Manager coordinates job processing using registered handlers.
type Manager struct {
	cfg           *config.Config
	store         *queue.Store
	logger        *slog.Logger
	pollInterval  time.Duration
	retryInterval time.Duration
	workers       int

	heartbeat *HeartbeatMonitor
	notifier  notifications.Service

	handlers map[queue.JobType]stage.Handler

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	lastJob *queue.Job
	active  map[string]ActiveJob
	books   map[string]*bookRun
	wakeCh  chan struct{}
}

// bookRun is the cancellable context shared by a book's in-flight jobs.
type bookRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

// NewManager constructs a new workflow manager that notifies through the
// configured ntfy topic.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager using a custom notifier.
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Workflow.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		workers:       workers,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		notifier: notifier,
		handlers: make(map[queue.JobType]stage.Handler),
		active:   make(map[string]ActiveJob),
		books:    make(map[string]*bookRun),
		wakeCh:   make(chan struct{}),
	}
}
