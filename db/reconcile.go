package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/model"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// markerSuffix tags a sibling store that was merged but could not be
// deleted because something still held it open. Marked files are a
// garbage collection queue processed at the next startup.
const markerSuffix = ".merged"

// Reconcile folds sibling instance stores (arsenal-*.db) under dataDir
// into the official store by insert-if-absent on each table's natural
// key: hash for hash records, file key for everything else. Standalone
// deployments that ran against their own private store become visible
// here after their data directory is copied in.
func Reconcile(official *gorm.DB, dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory, %w", err)
	}

	// Deferred deletions first
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), markerSuffix) {
			continue
		}
		marker := filepath.Join(dataDir, e.Name())
		store := strings.TrimSuffix(marker, markerSuffix)

		if err := os.Remove(store); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("Merged sibling store still locked, keeping marker", zap.String("store", store))
			continue
		}
		if err := os.Remove(marker); err != nil {
			zap.L().Warn("Failed to remove merge marker", zap.String("marker", marker), zap.Error(err))
		}
	}

	for _, e := range entries {
		name := e.Name()
		if name == OfficialName || !strings.HasPrefix(name, "arsenal-") || !strings.HasSuffix(name, ".db") {
			continue
		}

		path := filepath.Join(dataDir, name)
		if _, err := os.Stat(path); err != nil {
			// Deleted by the marker pass above
			continue
		}
		if _, err := os.Stat(path + markerSuffix); err == nil {
			// Already merged in a previous run
			continue
		}

		if err := mergeSibling(official, path); err != nil {
			zap.L().Error("Failed to merge sibling store", zap.String("store", path), zap.Error(err))
			continue
		}

		if err := os.Remove(path); err != nil {
			// The store may still be locked by a dying instance.
			// Leave a marker so the next startup retries the delete.
			if f, ferr := os.Create(path + markerSuffix); ferr == nil {
				f.Close()
			}
			zap.L().Warn("Merged sibling store could not be deleted yet", zap.String("store", path))
		} else {
			zap.L().Info("Merged sibling store", zap.String("store", path))
		}
	}

	return nil
}

func mergeSibling(official *gorm.DB, path string) error {
	sib, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open sibling store, %w", err)
	}
	defer func() {
		if sqlDB, err := sib.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	insertIfAbsent := official.Clauses(clause.OnConflict{DoNothing: true})

	var diskFiles []model.DiskFile
	if err := sib.Find(&diskFiles).Error; err != nil {
		return err
	}
	if len(diskFiles) > 0 {
		if err := insertIfAbsent.Create(&diskFiles).Error; err != nil {
			return err
		}
	}

	var softLinks []model.SoftLink
	if err := sib.Find(&softLinks).Error; err != nil {
		return err
	}
	if len(softLinks) > 0 {
		if err := insertIfAbsent.Create(&softLinks).Error; err != nil {
			return err
		}
	}

	var downloadLinks []model.DownloadLink
	if err := sib.Find(&downloadLinks).Error; err != nil {
		return err
	}
	if len(downloadLinks) > 0 {
		if err := insertIfAbsent.Create(&downloadLinks).Error; err != nil {
			return err
		}
	}

	var hashes []model.FileHash
	if err := sib.Find(&hashes).Error; err != nil {
		return err
	}
	if len(hashes) > 0 {
		if err := insertIfAbsent.Create(&hashes).Error; err != nil {
			return err
		}
	}

	return nil
}
