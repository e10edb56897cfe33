// Package daemonrun assembles a lectern daemon from configuration: it opens
// the job store, builds the content, storage, speech and summary clients,
// registers the job handlers with the workflow manager and runs the daemon
// until it is signalled.
//
// Build is also used by the CLI when no daemon is listening so ingestion
// commands can operate on the store directly.
package daemonrun
