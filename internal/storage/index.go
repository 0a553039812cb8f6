package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/model"
	"gorm.io/gorm"
)

// Index is the durable mapping layer between file keys and physical
// blobs. It wraps the three link tables plus the content-hash table
type Index struct {
	DB   *gorm.DB
	Root Root

	// Now is swappable so expiry can be tested with a fixed clock
	Now func() time.Time
}

func NewIndex(db *gorm.DB, root Root) *Index {
	return &Index{
		DB:   db,
		Root: root,
		Now:  time.Now,
	}
}

func (ix *Index) PutDiskFile(key, relPath string) error {
	rec := model.DiskFile{Key: key, Path: relPath, CreatedAt: ix.Now().Unix()}
	if err := ix.DB.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to store disk file record, %w", err)
	}
	return nil
}

func (ix *Index) GetDiskFile(key string) (model.DiskFile, bool, error) {
	var rec model.DiskFile
	err := ix.DB.First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, false, nil
	}
	return rec, err == nil, err
}

func (ix *Index) DeleteDiskFile(key string) error {
	return ix.DB.Delete(&model.DiskFile{}, "key = ?", key).Error
}

func (ix *Index) ListDiskFiles() ([]model.DiskFile, error) {
	var recs []model.DiskFile
	if err := ix.DB.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list disk file records, %w", err)
	}
	return recs, nil
}

func (ix *Index) PutSoftLink(key, targetKey string) error {
	rec := model.SoftLink{Key: key, TargetKey: targetKey, CreatedAt: ix.Now().Unix()}
	if err := ix.DB.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to store soft link record, %w", err)
	}
	return nil
}

func (ix *Index) GetSoftLink(key string) (model.SoftLink, bool, error) {
	var rec model.SoftLink
	err := ix.DB.First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, false, nil
	}
	return rec, err == nil, err
}

func (ix *Index) DeleteSoftLink(key string) error {
	return ix.DB.Delete(&model.SoftLink{}, "key = ?", key).Error
}

func (ix *Index) PutDownloadLink(rec model.DownloadLink) error {
	if err := ix.DB.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to store download link record, %w", err)
	}
	return nil
}

func (ix *Index) GetDownloadLink(key string) (model.DownloadLink, bool, error) {
	var rec model.DownloadLink
	err := ix.DB.First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, false, nil
	}
	return rec, err == nil, err
}

func (ix *Index) DeleteDownloadLink(key string) error {
	return ix.DB.Delete(&model.DownloadLink{}, "key = ?", key).Error
}

func (ix *Index) PutFileHash(hash, fileKey string) error {
	rec := model.FileHash{Hash: hash, FileKey: fileKey}
	if err := ix.DB.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to store file hash record, %w", err)
	}
	return nil
}

func (ix *Index) GetFileHash(hash string) (model.FileHash, bool, error) {
	var rec model.FileHash
	err := ix.DB.First(&rec, "hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, false, nil
	}
	return rec, err == nil, err
}

func (ix *Index) DeleteFileHash(hash string) error {
	return ix.DB.Delete(&model.FileHash{}, "hash = ?", hash).Error
}
