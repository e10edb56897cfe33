// Package services defines shared utilities consumed by the job handlers and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp book IDs, job IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (provider, validation, configuration, transient) so the workflow can
//     log them consistently and preserve provider messages in job logs.
//
// Vendor adapters (speech providers, the summary LLM) live in subpackages.
package services
