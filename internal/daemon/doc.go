// Package daemon coordinates the long-running lectern process.
//
// It wires configuration, the job store, the workflow manager and the HTTP
// control API into a single lifecycle with flock-based locking to prevent
// multiple instances. Preflight checks run before any job is claimed; a
// daemon with missing credentials or an unreachable bucket refuses to start.
//
// Keep orchestration logic here: job handlers live in ingestion and the
// scheduling loop in workflow, while the daemon focuses on startup, shutdown
// and high level coordination.
package daemon
