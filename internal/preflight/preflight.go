package preflight

import (
	"context"
	"strings"

	"lectern/internal/config"
	"lectern/internal/queue"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// BucketChecker verifies object storage is reachable.
type BucketChecker interface {
	CheckBucket(ctx context.Context) error
}

// HealthChecker pings a remote API.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DatabaseChecker inspects the queue database.
type DatabaseChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// Dependencies are the live clients the checks exercise. Nil members skip
// their check.
type Dependencies struct {
	Database DatabaseChecker
	Bucket   BucketChecker
	Summary  HealthChecker
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, deps Dependencies) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckCredentials(cfg))
	if deps.Database != nil {
		results = append(results, CheckDatabase(ctx, deps.Database))
	}

	if strings.TrimSpace(cfg.Content.BaseURL) != "" {
		results = append(results, CheckContent(ctx, cfg.Content.BaseURL, cfg.Content.Token))
	}
	if deps.Bucket != nil {
		results = append(results, CheckBucket(ctx, cfg.Storage.Bucket, deps.Bucket))
	}
	if cfg.Summary.Enabled && deps.Summary != nil {
		results = append(results, CheckLLM(ctx, "Summary LLM", deps.Summary))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
