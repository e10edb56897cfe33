// Package llm talks to an OpenAI-compatible API for book summaries
// (BOOK_SUMMARY jobs) and summary embeddings (SUMMARY_EMBEDDING jobs).
//
// Failures carry the services error markers. Rate limits, request timeouts,
// 5xx responses, transport errors and empty completions are ErrTransient and
// retried with doubling backoff (3 attempts by default); everything else
// returns on the first attempt.
package llm
