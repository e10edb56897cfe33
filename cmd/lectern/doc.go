// Package main hosts the lectern CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon and translates ingestion, job and
// health commands into control API calls. When no daemon answers on the
// configured bind address, the same commands operate on the job store
// directly and queued work runs the next time the daemon starts.
package main
