package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/model"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSibling(t *testing.T, dataDir, name string) *gorm.DB {
	t.Helper()

	sib, err := gorm.Open(sqlite.Open(filepath.Join(dataDir, name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, sib.AutoMigrate(model.DiskFile{}, model.SoftLink{}, model.DownloadLink{}, model.FileHash{}))
	return sib
}

func closeDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestReconcile_MergesSiblingStores(t *testing.T) {
	dataDir := t.TempDir()

	official, err := Open(dataDir)
	require.NoError(t, err)

	key := util.NewFileKey("a.txt")
	sib := newSibling(t, dataDir, "arsenal-abc123.db")
	require.NoError(t, sib.Create(&model.DiskFile{Key: key, Path: "files/a.txt"}).Error)
	require.NoError(t, sib.Create(&model.FileHash{Hash: "deadbeef", FileKey: key}).Error)
	closeDB(t, sib)

	require.NoError(t, Reconcile(official, dataDir))

	var rec model.DiskFile
	require.NoError(t, official.First(&rec, "key = ?", key).Error)
	require.Equal(t, "files/a.txt", rec.Path)

	var hash model.FileHash
	require.NoError(t, official.First(&hash, "hash = ?", "deadbeef").Error)
	require.Equal(t, key, hash.FileKey)

	_, statErr := os.Stat(filepath.Join(dataDir, "arsenal-abc123.db"))
	require.True(t, os.IsNotExist(statErr), "merged sibling should be deleted")
}

func TestReconcile_OfficialRecordWins(t *testing.T) {
	dataDir := t.TempDir()

	official, err := Open(dataDir)
	require.NoError(t, err)

	key := util.NewFileKey("a.txt")
	require.NoError(t, official.Create(&model.DiskFile{Key: key, Path: "files/official.txt"}).Error)

	sib := newSibling(t, dataDir, "arsenal-xyz.db")
	require.NoError(t, sib.Create(&model.DiskFile{Key: key, Path: "files/sibling.txt"}).Error)
	closeDB(t, sib)

	require.NoError(t, Reconcile(official, dataDir))

	var rec model.DiskFile
	require.NoError(t, official.First(&rec, "key = ?", key).Error)
	require.Equal(t, "files/official.txt", rec.Path, "insert-if-absent must not clobber the official record")
}

func TestReconcile_IgnoresUnrelatedFiles(t *testing.T) {
	dataDir := t.TempDir()

	official, err := Open(dataDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "notes.txt"), []byte("x"), 0o644))

	require.NoError(t, Reconcile(official, dataDir))

	require.FileExists(t, filepath.Join(dataDir, "notes.txt"))
	require.FileExists(t, filepath.Join(dataDir, OfficialName))
}

func TestReconcile_ProcessesDeferredDeletions(t *testing.T) {
	dataDir := t.TempDir()

	official, err := Open(dataDir)
	require.NoError(t, err)

	store := filepath.Join(dataDir, "arsenal-old.db")
	require.NoError(t, os.WriteFile(store, []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(store+markerSuffix, nil, 0o644))

	require.NoError(t, Reconcile(official, dataDir))

	_, statErr := os.Stat(store)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(store + markerSuffix)
	require.True(t, os.IsNotExist(statErr))
}
