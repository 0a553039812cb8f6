// Package db contains things related to SQlite
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/model"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OfficialName is the store every instance merges into at startup
const OfficialName = "arsenal.db"

// Open opens the official index store under dataDir and migrates the
// mapping tables
func Open(dataDir string) (*gorm.DB, error) {
	// If running in a docker container the data directory should be
	// mounted with volumes, otherwise the index dies with the container
	if util.IsRunningInDocker() {
		if _, err := os.Stat(dataDir); err != nil {
			zap.L().Warn("Data directory is not mounted, index will not survive container restarts",
				zap.String("dir", dataDir))
		}
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory, %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dataDir, OfficialName)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite database, %w", err)
	}

	err = db.AutoMigrate(model.DiskFile{}, model.SoftLink{}, model.DownloadLink{}, model.FileHash{})
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return db, nil
}
