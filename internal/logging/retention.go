package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a log directory and the file pattern pruned in it.
// Exclude lists files that must survive, such as the active run's log.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes matching files last modified more than retentionDays
// ago and returns how many were removed. retentionDays <= 0 keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	keep := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if abs := absPath(path); abs != "" {
				keep[abs] = struct{}{}
			}
		}
	}

	removed := 0
	for _, target := range targets {
		for _, path := range expiredLogs(target, cutoff) {
			if _, ok := keep[path]; ok {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on paths.log_dir"),
					String(FieldImpact, "old daemon log stays on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

// expiredLogs lists absolute paths in target.Dir matching target.Pattern
// whose modification time is before cutoff.
func expiredLogs(target RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if abs := absPath(path); abs != "" {
			path = abs
		}
		out = append(out, path)
	}
	return out
}

func absPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	return abs
}
