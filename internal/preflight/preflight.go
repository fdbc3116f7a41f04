package preflight

import (
	"context"

	"reelscope/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the preflight checks for cfg. store may be nil when the
// caller has not opened the content store; the store check then fails.
func RunAll(ctx context.Context, cfg *config.Config, store HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, minStagingFreeBytes),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Store.Backend == config.StoreBackendFilesystem {
		results = append(results, CheckDirectoryAccess("Store directory", cfg.Store.Dir))
	}
	results = append(results, CheckStore(ctx, cfg.Store.Backend, store))
	results = append(results, CheckAnalyzer(ctx, cfg.Analyzer))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
