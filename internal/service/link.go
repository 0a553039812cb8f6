package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/model"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/Edric-Li/forguncy-arsenal-sub000/validators"
)

// LinkService creates time-limited download links for paths that may
// live outside normal storage
type LinkService struct {
	Index *storage.Index
}

func NewLinkService(ix *storage.Index) *LinkService {
	return &LinkService{Index: ix}
}

// CreateDownloadLink registers filePath under a fresh file key.
// createCopy duplicates the bytes into the quarantined links folder so
// the link survives the source moving or being deleted. expireMinutes
// of zero or less means the link never expires.
func (l *LinkService) CreateDownloadLink(filePath string, expireMinutes int, createCopy bool, displayName string) (string, error) {
	if filePath == "" {
		return "", apperr.New(apperr.KindValidation, "File path is required")
	}
	if _, err := os.Stat(filePath); err != nil {
		return "", apperr.New(apperr.KindNotFound, "File not found")
	}

	if displayName == "" {
		displayName = filepath.Base(filePath)
	}
	// The name ends up inside the minted key, which copy targets are
	// joined from, so it gets the same screening as upload names
	if err := validators.DisplayNameValidator(displayName); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	fileKey := util.NewFileKey(displayName)

	target := filePath
	if createCopy {
		copyPath := filepath.Join(l.Index.Root.DownloadCopies(), fileKey)
		if err := copyFile(filePath, copyPath); err != nil {
			return "", fmt.Errorf("failed to copy file into the links folder, %w", err)
		}
		target = copyPath
	}

	var expiresAt int64
	if expireMinutes > 0 {
		expiresAt = l.Index.Now().Unix() + int64(expireMinutes)*60
	}

	rec := model.DownloadLink{
		Key:       fileKey,
		FilePath:  target,
		ExpiresAt: expiresAt,
		IsCopy:    createCopy,
	}
	if err := l.Index.PutDownloadLink(rec); err != nil {
		if createCopy {
			os.Remove(target)
		}
		return "", err
	}

	return fileKey, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return err
	}
	return out.Close()
}
