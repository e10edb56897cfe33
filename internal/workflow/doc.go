// Package workflow runs the job graph stored in the queue.
//
// The Manager starts a fixed pool of workers. Each worker promotes WAITING
// jobs whose dependencies completed, claims the oldest runnable PENDING job
// and dispatches it to the stage.Handler registered for its job type.
// Handlers run under a per-book context so resetting or failing a book
// cancels every in-flight job of that book. While a job runs the worker
// records heartbeats; a maintenance loop returns jobs with stale heartbeats
// to PENDING.
//
// Job outcomes drive the book's ingestion row: a completed SECTION_CONCAT
// advances completed_sections, a completed BOOK_META finishes the
// ingestion, and any failure marks the job FAILED and the ingestion failed.
// Cancelled jobs are never recorded as failures.
package workflow
