package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"carescribe/internal/procrun"
	"carescribe/internal/services"
)

// Segment splits canonical audio into fixed-duration parts under outDir. The
// parts are copied without re-encoding and returned in the numeric order of
// the index in their names.
func (p *Processor) Segment(ctx context.Context, canonicalPath, outDir string) ([]Chunk, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSegmentation, "segmenting", "create chunk dir", "cannot create chunk directory", err)
	}

	args := buildSegmentArgs(canonicalPath, filepath.Join(outDir, chunkPattern), p.segmentDuration.Seconds())
	if _, err := p.runner.Run(ctx, procrun.Command{Name: p.ffmpeg, Args: args, Timeout: p.timeout}); err != nil {
		return nil, services.Wrap(services.ErrSegmentation, "segmenting", "ffmpeg", "audio split failed", err)
	}

	chunks, err := collectChunks(outDir)
	if err != nil {
		return nil, services.Wrap(services.ErrSegmentation, "segmenting", "list chunks", "cannot read chunk directory", err)
	}
	if len(chunks) == 0 {
		return nil, services.Wrap(services.ErrSegmentation, "segmenting", "list chunks", "ffmpeg produced no parts", nil)
	}
	return chunks, nil
}

func collectChunks(dir string) ([]Chunk, error) {
	matches, err := filepath.Glob(filepath.Join(dir, chunkGlob))
	if err != nil {
		return nil, err
	}
	type part struct {
		number int
		path   string
	}
	parts := make([]part, 0, len(matches))
	for _, path := range matches {
		if number, ok := partNumber(filepath.Base(path)); ok {
			parts = append(parts, part{number: number, path: path})
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].number < parts[j].number })
	chunks := make([]Chunk, 0, len(parts))
	for i, p := range parts {
		chunks = append(chunks, Chunk{Index: i, Path: p.path})
	}
	return chunks, nil
}

// partNumber parses the index out of part_<n>.wav. The muxer pads to three
// digits and widens the number past 999.
func partNumber(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "part_")
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(digits, ".wav")
	if !ok || digits == "" {
		return 0, false
	}
	number, err := strconv.Atoi(digits)
	if err != nil || number < 0 {
		return 0, false
	}
	return number, true
}

func buildSegmentArgs(inputPath, outputPattern string, seconds float64) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(seconds, 'f', -1, 64),
		"-c", "copy",
		outputPattern,
	}
}

// String renders a chunk for logs.
func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d (%s)", c.Index, filepath.Base(c.Path))
}
