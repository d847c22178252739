package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"carescribe/internal/procrun"
)

type probeResult struct {
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// ProbeDuration returns the container duration reported by ffprobe.
func (p *Processor) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, fmt.Errorf("ffprobe: empty path")
	}
	result, err := p.runner.Run(ctx, procrun.Command{
		Name:    p.ffprobe,
		Args:    []string{"-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path},
		Timeout: p.timeout,
	})
	if err != nil {
		return 0, fmt.Errorf("ffprobe inspect: %w", err)
	}
	var parsed probeResult
	if err := json.Unmarshal([]byte(result.Stdout), &parsed); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil || math.IsNaN(seconds) || seconds < 0 {
		return 0, fmt.Errorf("ffprobe: unusable duration %q", parsed.Format.Duration)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// ExpectedChunks estimates how many windows Segment will produce for a
// recording of the given duration.
func (p *Processor) ExpectedChunks(d time.Duration) int {
	if d <= 0 || p.segmentDuration <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(p.segmentDuration)))
}
