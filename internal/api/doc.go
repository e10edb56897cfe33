// Package api is lectern's HTTP control surface and its wire-format types.
//
// # Routes
//
//	POST   /api/v1/books/{bookID}/ingestion          start an ingestion
//	GET    /api/v1/books/{bookID}/ingestion          ingestion status
//	DELETE /api/v1/books/{bookID}/ingestion          reset (?purgeAudio=true)
//	POST   /api/v1/books/{bookID}/ingestion/cancel   cancel a live ingestion
//	GET    /api/v1/books/{bookID}/jobs               jobs of a book
//	POST   /api/v1/jobs/{jobID}/reset                requeue a failed job
//	GET    /health                                   preflight and workflow status
//
// Requests carry an optional bearer token; see Options.Token.
//
// # Key Types
//
// IngestionStatus, Job, WorkflowStatus and HealthResponse are DTOs with
// camelCase JSON tags. Converters (FromIngestionStatus, FromJob,
// FromStatusSummary) translate queue and workflow models so consumers never
// depend on internal types. Client speaks the same routes for the CLI.
//
// # Errors
//
// Errors are returned as {"error": "..."} with the status chosen by
// StatusFromError: validation 400, missing book or job 404, a live ingestion
// 409, an unconfigured provider 422.
package api
