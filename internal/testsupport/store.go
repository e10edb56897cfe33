package testsupport

import (
	"context"
	"testing"

	"lectern/internal/config"
	"lectern/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustInsertGraph inserts an ingestion row and jobs, failing the test on error.
func MustInsertGraph(t testing.TB, store *queue.Store, ingestion queue.IngestionStatus, jobs []queue.JobSpec) {
	t.Helper()

	if err := store.InsertGraph(context.Background(), ingestion, jobs); err != nil {
		t.Fatalf("store.InsertGraph: %v", err)
	}
}

// MustClaim claims the next job and fails the test when none is claimable.
func MustClaim(t testing.TB, store *queue.Store) *queue.Job {
	t.Helper()

	job, err := store.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("store.ClaimNext: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	return job
}
