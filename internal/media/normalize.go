package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"carescribe/internal/procrun"
	"carescribe/internal/services"
)

// Normalize transcodes sourcePath into <workDir>/<baseName>.wav as canonical
// audio. Any failure, including a deadline kill, is a conversion error and
// leaves no output behind.
func (p *Processor) Normalize(ctx context.Context, sourcePath, workDir, baseName string) (string, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return "", services.Wrap(services.ErrConversion, "normalizing", "normalize", "source path is empty", nil)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return "", services.Wrap(services.ErrConversion, "normalizing", "stat source", "source media unavailable", err)
	}
	baseName = strings.TrimSpace(baseName)
	if baseName == "" {
		baseName = "canonical"
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConversion, "normalizing", "create workdir", "cannot create workspace", err)
	}
	outPath := filepath.Join(workDir, baseName+".wav")

	args := buildNormalizeArgs(sourcePath, outPath)
	if _, err := p.runner.Run(ctx, procrun.Command{Name: p.ffmpeg, Args: args, Timeout: p.timeout}); err != nil {
		_ = os.Remove(outPath)
		return "", services.Wrap(services.ErrConversion, "normalizing", "ffmpeg", "audio conversion failed", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return "", services.Wrap(services.ErrConversion, "normalizing", "stat output", "ffmpeg completed but output file is missing", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(outPath)
		return "", services.Wrap(services.ErrConversion, "normalizing", "stat output", "ffmpeg produced an empty file", nil)
	}
	return outPath, nil
}

// NeedsSegmentation reports whether the file at path is larger than threshold
// and returns its size.
func NeedsSegmentation(path string, threshold int64) (bool, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0, fmt.Errorf("stat canonical audio: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultSegmentThreshold
	}
	return info.Size() > threshold, info.Size(), nil
}

func buildNormalizeArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
}
