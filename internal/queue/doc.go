// Package queue persists ingestion jobs and audio metadata in SQLite and
// exposes the transitions that drive them.
//
// The Store owns schema initialization, job graph insertion, dependency
// promotion, claiming, heartbeat tracking, stale-job reclamation and explicit
// resets. It also keeps per-block and per-section audio metadata, block
// timestamps, book summaries and the book-level ingestion status, so the job
// table remains the single source of truth for scheduling.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package queue
