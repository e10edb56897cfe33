package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"lectern/internal/notifications"
	"lectern/internal/queue"
	"lectern/internal/stage"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if n.last == nil {
		n.last = map[notifications.Event]notifications.Payload{}
	}
	n.last[event] = payload
	return nil
}

func (n *recordingNotifier) payload(event notifications.Event) (notifications.Payload, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.last[event]
	return p, ok
}

type stubHandler struct {
	name string

	mu       sync.Mutex
	executed []string
	err      error
	block    bool
	started  chan string
	health   stage.Health
}

func newStubHandler(name string) *stubHandler {
	return &stubHandler{name: name, health: stage.Healthy(name), started: make(chan string, 16)}
}

func (s *stubHandler) Execute(ctx context.Context, job *queue.Job) error {
	s.mu.Lock()
	s.executed = append(s.executed, job.ID)
	block := s.block
	err := s.err
	s.mu.Unlock()
	s.started <- job.ID
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *stubHandler) HealthCheck(context.Context) stage.Health {
	return s.health
}

func (s *stubHandler) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// chainGraph is summary -> embedding -> meta for one book.
func chainGraph(bookID string) (queue.IngestionStatus, []queue.JobSpec) {
	summary := bookID + "-summary"
	embedding := bookID + "-embedding"
	return queue.IngestionStatus{BookID: bookID, TotalSections: 0, VoiceID: "v", Provider: "openai"},
		[]queue.JobSpec{
			{ID: summary, BookID: bookID, Type: queue.JobBookSummary, Payload: queue.BookSummaryPayload{BookID: bookID}},
			{ID: embedding, BookID: bookID, Type: queue.JobSummaryEmbedding, Payload: queue.SummaryEmbeddingPayload{BookID: bookID}, Dependencies: []string{summary}},
			{ID: bookID + "-meta", BookID: bookID, Type: queue.JobBookMeta, Payload: queue.BookMetaPayload{BookID: bookID, VoiceID: "v"}, Dependencies: []string{embedding}},
		}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func ingestionState(t *testing.T, store *queue.Store, bookID string) queue.IngestionState {
	t.Helper()
	status, err := store.GetIngestion(context.Background(), bookID)
	if err != nil {
		t.Fatalf("GetIngestion: %v", err)
	}
	return status.Status
}

func jobStatus(t *testing.T, store *queue.Store, id string) queue.JobStatus {
	t.Helper()
	job, err := store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job.Status
}
