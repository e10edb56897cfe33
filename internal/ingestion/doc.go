// Package ingestion turns a book's content into a job graph and runs the
// per-job-type handlers that narrate it.
//
// BuildGraph is pure: the same book content, voice and selection always
// produce the same job ids, so a reset book can be re-ingested into an
// identical graph. Service exposes Start, Reset, Cancel and Status to the
// API and CLI, and Handlers returns the stage.Handler for every job type
// the workflow manager dispatches.
package ingestion
