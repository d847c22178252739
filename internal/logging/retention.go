package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLogs describes the per-run daemon log files kept in a directory.
// Files are named Prefix + run ID + ".log".
type RunLogs struct {
	Dir    string
	Prefix string
}

// Prune deletes run logs last written more than retentionDays ago and
// returns how many were removed. The log of the current run is never
// touched. retentionDays <= 0 keeps everything.
func (r RunLogs) Prune(logger *slog.Logger, retentionDays int, current string) int {
	if retentionDays <= 0 || strings.TrimSpace(r.Dir) == "" {
		return 0
	}
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	current = filepath.Clean(current)

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !r.owns(entry.Name()) {
			continue
		}
		path := filepath.Join(r.Dir, entry.Name())
		if path == current {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "run log not removed", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on log_dir"),
				String(FieldImpact, "expired run log stays on disk"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("expired run logs removed",
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}

func (r RunLogs) owns(name string) bool {
	rest, ok := strings.CutPrefix(name, r.Prefix)
	if !ok {
		return false
	}
	id, ok := strings.CutSuffix(rest, ".log")
	return ok && id != ""
}
