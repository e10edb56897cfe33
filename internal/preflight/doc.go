// Package preflight provides readiness checks for the services and
// filesystem paths lectern depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the workflow manager and
//     refuses to start when any check fails.
//   - GET /health and "lectern health" report the same results so missing
//     credentials or an unreachable bucket are visible without reading logs.
//
// Optional features are only checked when enabled.
package preflight
