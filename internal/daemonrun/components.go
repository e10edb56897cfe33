package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"lectern/internal/config"
	"lectern/internal/content"
	"lectern/internal/ingestion"
	"lectern/internal/logging"
	"lectern/internal/preflight"
	"lectern/internal/queue"
	"lectern/internal/queueaccess"
	"lectern/internal/services/elevenlabs"
	"lectern/internal/services/llm"
	"lectern/internal/services/openai"
	"lectern/internal/speech"
	"lectern/internal/storage"
	"lectern/internal/workflow"
)

// Components is everything a daemon (or an offline CLI session) needs,
// built from configuration.
type Components struct {
	Store     *queue.Store
	Objects   storage.Store
	Source    content.Source
	Providers *speech.Registry
	Summary   *llm.Client
	Workflow  *workflow.Manager
	Ingestion *ingestion.Service

	cfg        *config.Config
	storageErr error
}

// Build opens the job store and constructs the service clients. A storage
// configuration error does not fail Build; it surfaces through Preflight so
// the operator sees it next to every other problem.
func Build(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	c := &Components{
		Store:  store,
		Source: content.NewClient(content.Config{BaseURL: cfg.Content.BaseURL, Token: cfg.Content.Token, TimeoutSeconds: cfg.Content.TimeoutSeconds}),
		Providers: speech.NewRegistry(
			elevenlabs.NewClient(elevenlabs.Config{
				APIKey:         cfg.ElevenLabs.APIKey,
				BaseURL:        cfg.ElevenLabs.BaseURL,
				ModelID:        cfg.ElevenLabs.ModelID,
				MaxChars:       cfg.ProviderMaxChars(config.ProviderElevenLabs),
				TimeoutSeconds: cfg.ElevenLabs.TimeoutSeconds,
			}),
			openai.NewClient(openai.Config{
				APIKey:         cfg.OpenAI.APIKey,
				BaseURL:        cfg.OpenAI.BaseURL,
				Model:          cfg.OpenAI.Model,
				MaxChars:       cfg.ProviderMaxChars(config.ProviderOpenAI),
				TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
			}),
		),
		cfg: cfg,
	}

	s3, err := storage.NewS3(storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		c.storageErr = err
	} else {
		c.Objects = s3
	}

	var summarizer ingestion.Summarizer
	if cfg.Summary.Enabled {
		c.Summary = llm.NewClient(llm.Config{
			APIKey:         cfg.Summary.APIKey,
			BaseURL:        cfg.Summary.BaseURL,
			Model:          cfg.Summary.Model,
			EmbeddingURL:   cfg.Summary.EmbeddingURL,
			EmbeddingModel: cfg.Summary.EmbeddingModel,
			MaxInputChars:  cfg.Summary.MaxInputChars,
			TimeoutSeconds: cfg.Summary.TimeoutSeconds,
		})
		summarizer = c.Summary
	}

	c.Workflow = workflow.NewManager(cfg, store, logger)
	c.Workflow.ConfigureHandlers(ingestion.NewHandlers(ingestion.Deps{
		Store:             store,
		Source:            c.Source,
		Objects:           c.Objects,
		Providers:         c.Providers,
		Summarizer:        summarizer,
		Concurrency:       cfg.Speech.Concurrency,
		DownloadAttempts:  cfg.Speech.DownloadAttempts,
		SummaryInputChars: cfg.Summary.MaxInputChars,
		Logger:            logger,
	}))
	c.Ingestion = ingestion.NewService(store, c.Source, c.Objects, c.Providers, ingestion.ServiceOptions{
		DefaultVoiceID:  cfg.Speech.DefaultVoiceID,
		DefaultProvider: cfg.Speech.DefaultProvider,
		Scheduler:       c.Workflow,
		Logger:          logger,
	})
	return c, nil
}

// Preflight runs every readiness check against the built clients.
func (c *Components) Preflight(ctx context.Context) []preflight.Result {
	deps := preflight.Dependencies{Database: c.Store}
	if s3, ok := c.Objects.(*storage.S3Store); ok {
		deps.Bucket = s3
	}
	if c.Summary != nil {
		deps.Summary = c.Summary
	}
	results := preflight.RunAll(ctx, c.cfg, deps)
	if c.storageErr != nil {
		results = append(results, preflight.Result{Name: "Object storage", Detail: c.storageErr.Error()})
	}
	return results
}

// Access returns store-backed CLI access. Ingestions queued through it are
// picked up the next time the daemon starts.
func (c *Components) Access() queueaccess.Access {
	return queueaccess.NewStoreAccess(c.Store, c.Ingestion, c.Preflight)
}

// Close releases the job store.
func (c *Components) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
