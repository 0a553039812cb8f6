package storage

import (
	"os"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"go.uber.org/zap"
)

var errNotFound = apperr.New(apperr.KindNotFound, "File not found")

// Resolve maps a file key to an absolute physical path. Lookup order is
// DiskFile, then SoftLink (one hop), then DownloadLink. Malformed keys
// and expired links both come back as plain not-found so a caller cannot
// tell whether a key ever existed.
func (ix *Index) Resolve(fileKey string) (string, error) {
	if !util.IsFileKey(fileKey) {
		return "", errNotFound
	}

	df, ok, err := ix.GetDiskFile(fileKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "index lookup failed", err)
	}
	if ok {
		abs, err := ix.Root.Within(df.Path)
		if err != nil {
			return "", apperr.Wrap(apperr.KindInternal, "stored path is invalid", err)
		}
		return abs, nil
	}

	sl, ok, err := ix.GetSoftLink(fileKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "index lookup failed", err)
	}
	if ok {
		target, ok, err := ix.GetDiskFile(sl.TargetKey)
		if err != nil {
			return "", apperr.Wrap(apperr.KindInternal, "index lookup failed", err)
		}
		if !ok {
			// Dangling link, the target was deleted
			return "", errNotFound
		}
		abs, err := ix.Root.Within(target.Path)
		if err != nil {
			return "", apperr.Wrap(apperr.KindInternal, "stored path is invalid", err)
		}
		return abs, nil
	}

	dl, ok, err := ix.GetDownloadLink(fileKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "index lookup failed", err)
	}
	if !ok {
		return "", errNotFound
	}

	if dl.ExpiresAt > 0 && ix.Now().Unix() > dl.ExpiresAt {
		if dl.IsCopy {
			if err := os.Remove(dl.FilePath); err != nil && !os.IsNotExist(err) {
				zap.L().Warn("Failed to remove expired link copy",
					zap.String("path", dl.FilePath),
					zap.Error(err))
			}
		}
		if err := ix.DeleteDownloadLink(fileKey); err != nil {
			zap.L().Warn("Failed to remove expired link record", zap.Error(err))
		}
		return "", errNotFound
	}

	return dl.FilePath, nil
}
