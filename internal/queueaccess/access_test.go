package queueaccess_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"lectern/internal/api"
	"lectern/internal/content"
	"lectern/internal/ingestion"
	"lectern/internal/preflight"
	"lectern/internal/queue"
	"lectern/internal/queueaccess"
	"lectern/internal/services"
	"lectern/internal/speech"
	"lectern/internal/testsupport"
)

type backend struct {
	store   *queue.Store
	service *ingestion.Service
}

func newBackend(t *testing.T) backend {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := testsupport.NewContentSource()
	source.AddBook(content.Book{
		ID:         "book",
		Navigation: []content.NavItem{{Order: 1, Label: "One", Matter: "body"}},
	})
	source.SetSection("book", 1, content.Block{ID: "b1", Text: "Words."})
	svc := ingestion.NewService(store, source, testsupport.NewObjectStore(),
		speech.NewRegistry(testsupport.NewStitchingProvider(100)),
		ingestion.ServiceOptions{DefaultVoiceID: "narrator", DefaultProvider: "elevenlabs"})
	return backend{store: store, service: svc}
}

func (b backend) storeOpener(checks []preflight.Result) func() (queueaccess.Access, func() error, error) {
	return func() (queueaccess.Access, func() error, error) {
		access := queueaccess.NewStoreAccess(b.store, b.service, func(context.Context) []preflight.Result { return checks })
		return access, nil, nil
	}
}

func TestOpenWithFallbackUsesStoreWhenDaemonDown(t *testing.T) {
	b := newBackend(t)
	srv := httptest.NewServer(api.NewRouter(api.Options{Ingestion: b.service}))
	url := srv.URL
	srv.Close()

	session, err := queueaccess.OpenWithFallback(func() (*api.Client, error) {
		return queueaccess.DialAPI(context.Background(), url, "")
	}, b.storeOpener(nil))
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if session.Access.Live() {
		t.Fatal("expected store-backed access")
	}

	ctx := context.Background()
	started, err := session.Access.StartIngestion(ctx, "book", api.StartIngestionRequest{})
	if err != nil {
		t.Fatalf("StartIngestion: %v", err)
	}
	if started.Jobs != 5 {
		t.Fatalf("unexpected jobs: %d", started.Jobs)
	}
	status, err := session.Access.Status(ctx, "book")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != "pending" || status.TotalSections != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	health, err := session.Access.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Workflow.Running || health.Workflow.JobStats["PENDING"]+health.Workflow.JobStats["WAITING"] != 5 {
		t.Fatalf("unexpected offline health: %+v", health.Workflow)
	}
}

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	b := newBackend(t)
	srv := httptest.NewServer(api.NewRouter(api.Options{Ingestion: b.service}))
	defer srv.Close()

	session, err := queueaccess.OpenWithFallback(func() (*api.Client, error) {
		return queueaccess.DialAPI(context.Background(), srv.URL, "")
	}, func() (queueaccess.Access, func() error, error) {
		t.Fatal("store must not be opened while the daemon answers")
		return nil, nil, nil
	})
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if !session.Access.Live() {
		t.Fatal("expected API-backed access")
	}
	if _, err := session.Access.StartIngestion(context.Background(), "book", api.StartIngestionRequest{}); err != nil {
		t.Fatalf("StartIngestion: %v", err)
	}
	jobs, err := session.Access.Jobs(context.Background(), "book")
	if err != nil || len(jobs) != 5 {
		t.Fatalf("Jobs = %d, %v", len(jobs), err)
	}
}

func TestOpenWithFallbackReturnsAuthErrors(t *testing.T) {
	b := newBackend(t)
	srv := httptest.NewServer(api.NewRouter(api.Options{Ingestion: b.service, Token: "secret"}))
	defer srv.Close()

	_, err := queueaccess.OpenWithFallback(func() (*api.Client, error) {
		client := api.NewClient(srv.URL, "wrong")
		if _, err := client.Jobs(context.Background(), "book"); err != nil {
			return nil, err
		}
		return client, nil
	}, b.storeOpener(nil))
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 401 {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestStoreAccessResetJobRequiresFailedJob(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	access, _, _ := b.storeOpener(nil)()
	if _, err := access.StartIngestion(ctx, "book", api.StartIngestionRequest{}); err != nil {
		t.Fatalf("StartIngestion: %v", err)
	}
	if _, err := b.store.PromoteReady(ctx); err != nil {
		t.Fatalf("PromoteReady: %v", err)
	}
	job := testsupport.MustClaim(t, b.store)

	if _, err := access.ResetJob(ctx, job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := b.store.Fail(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	n, err := access.ResetJob(ctx, job.ID)
	if err != nil || n != 1 {
		t.Fatalf("ResetJob = %d, %v", n, err)
	}
	if _, err := access.ResetJob(ctx, "missing"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
