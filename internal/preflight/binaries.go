package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"carescribe/internal/config"
)

// tool names a media binary and whether uploads can be processed without it.
type tool struct {
	name     string
	command  string
	purpose  string
	optional bool
}

// CheckMediaTools resolves the FFmpeg binaries configured for media jobs.
// A missing optional tool is reported but does not fail the check.
func CheckMediaTools(cfg *config.Config) []Result {
	tools := []tool{
		{name: "FFmpeg", command: cfg.FFmpeg.Binary, purpose: "normalizes and segments uploaded audio"},
		{name: "FFprobe", command: cfg.FFmpeg.ProbeBinary, purpose: "logs the expected chunk count", optional: true},
	}
	results := make([]Result, 0, len(tools))
	for _, t := range tools {
		results = append(results, t.check())
	}
	return results
}

func (t tool) check() Result {
	command := strings.TrimSpace(t.command)
	if command == "" {
		return t.missing("no binary configured")
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return t.missing(fmt.Sprintf("%s not found in PATH", command))
	}
	return Result{Name: t.name, Passed: true, Detail: resolved}
}

func (t tool) missing(reason string) Result {
	if t.optional {
		return Result{Name: t.name, Passed: true, Detail: fmt.Sprintf("%s (optional, %s)", reason, t.purpose)}
	}
	return Result{Name: t.name, Detail: fmt.Sprintf("%s (required, %s)", reason, t.purpose)}
}
