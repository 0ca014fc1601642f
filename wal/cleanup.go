package wal

import (
	"fmt"
	"os"
	"time"
)

// CleanupStats tracks cleanup operation results
type CleanupStats struct {
	FilesRemoved  int
	BytesFreed    int64
	OldestRemoved time.Time
	NewestRemoved time.Time
}

// Cleanup removes journal files older than the retention period and
// returns what was removed. RetentionDays <= 0 keeps everything.
func Cleanup(dir string, config Config) (CleanupStats, error) {
	stats := CleanupStats{}
	if config.RetentionDays <= 0 {
		return stats, nil
	}

	files, err := Files(dir, config)
	if err != nil {
		return stats, err
	}

	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(file); err != nil {
			return stats, fmt.Errorf("remove %s: %w", file, err)
		}

		stats.FilesRemoved++
		stats.BytesFreed += info.Size()
		if stats.OldestRemoved.IsZero() || info.ModTime().Before(stats.OldestRemoved) {
			stats.OldestRemoved = info.ModTime()
		}
		if info.ModTime().After(stats.NewestRemoved) {
			stats.NewestRemoved = info.ModTime()
		}
	}

	return stats, nil
}
