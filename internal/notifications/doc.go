// Package notifications delivers ingestion events via ntfy.
//
// NewService publishes to the topic URL configured under [notifications] and
// degrades to a no-op when no topic is set. Events cover book-level
// milestones only; per-job progress stays in the logs.
package notifications
