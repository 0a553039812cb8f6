package service

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartJanitor schedules the hourly staging sweep. Sessions whose
// staging directory outlived the session TTL are abandoned uploads; the
// session itself is long gone from the store, so only the directory
// needs cleaning. Download link expiry is deliberately not swept here,
// it is enforced lazily on read.
func StartJanitor(root storage.Root, ttl time.Duration) *cron.Cron {
	c := cron.New()
	c.AddFunc("@hourly", func() {
		SweepStaleStaging(root, ttl)
	})
	c.Start()
	return c
}

// SweepStaleStaging deletes staging directories untouched for longer
// than the session TTL
func SweepStaleStaging(root storage.Root, ttl time.Duration) {
	entries, err := os.ReadDir(root.Temp())
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Error("Failed to read staging root", zap.Error(err))
		}
		return
	}

	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < ttl {
			continue
		}

		dir := filepath.Join(root.Temp(), e.Name())
		if err := os.RemoveAll(dir); err != nil {
			zap.L().Warn("Failed to remove stale staging directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		zap.L().Info("Removed stale staging directories", zap.Int("count", removed))
	}
}
