package preflight

import (
	"context"
	"strings"

	"carescribe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The analysis service is only contacted when checkServices is true.
func RunAll(ctx context.Context, cfg *config.Config, checkServices bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckTranscriptionKey(cfg),
	}

	results = append(results, CheckMediaTools(cfg)...)

	switch {
	case strings.TrimSpace(cfg.LLM.APIKey) == "":
		results = append(results, Result{Name: "Analysis LLM", Passed: true, Detail: "not configured; fallback analysis is stored"})
	case checkServices:
		results = append(results, CheckLLM(ctx, "Analysis LLM", cfg.LLM))
	default:
		results = append(results, Result{Name: "Analysis LLM", Passed: true, Detail: "configured"})
	}

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
