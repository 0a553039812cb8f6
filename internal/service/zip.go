package service

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/Edric-Li/forguncy-arsenal-sub000/validators"
)

// ZipService lists, extracts and builds zip archives on top of the
// storage index. Every input goes through Resolve, never a raw path.
type ZipService struct {
	Index *storage.Index
}

func NewZipService(ix *storage.Index) *ZipService {
	return &ZipService{Index: ix}
}

type ZipEntry struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"isDir"`
}

func (z *ZipService) ListEntries(fileKey string) ([]ZipEntry, error) {
	p, err := z.Index.Resolve(fileKey)
	if err != nil {
		return nil, err
	}

	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "File is not a readable zip archive", err)
	}
	defer r.Close()

	entries := make([]ZipEntry, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, ZipEntry{
			Path:  f.Name,
			Size:  int64(f.UncompressedSize64),
			IsDir: f.FileInfo().IsDir(),
		})
	}
	return entries, nil
}

// ExtractEntry pulls one entry out of an archive into files/ and indexes
// it under a fresh key
func (z *ZipService) ExtractEntry(fileKey, entryPath string) (string, error) {
	p, err := z.Index.Resolve(fileKey)
	if err != nil {
		return "", err
	}

	r, err := zip.OpenReader(p)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "File is not a readable zip archive", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != entryPath || f.FileInfo().IsDir() {
			continue
		}

		name := filepath.Base(f.Name)
		newKey := util.NewFileKey(name)
		dst := filepath.Join(z.Index.Root.Files(), newKey)

		in, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open archive entry, %w", err)
		}
		out, err := os.Create(dst)
		if err != nil {
			in.Close()
			return "", fmt.Errorf("failed to create extracted file, %w", err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		out.Close()
		if err != nil {
			os.Remove(dst)
			return "", fmt.Errorf("failed to extract entry, %w", err)
		}

		rel, err := z.Index.Root.Rel(dst)
		if err != nil {
			return "", err
		}
		if err := z.Index.PutDiskFile(newKey, rel); err != nil {
			return "", err
		}
		return newKey, nil
	}

	return "", apperr.Newf(apperr.KindNotFound, "Archive has no entry %q", entryPath)
}

// Compress packs the given file keys into a new zip stored under files/
// and returns its key. keepFolders preserves each file's folder relative
// to files/ inside the archive.
func (z *ZipService) Compress(fileKeys []string, zipName string, keepFolders bool) (string, error) {
	if len(fileKeys) == 0 {
		return "", apperr.New(apperr.KindValidation, "No files given to compress")
	}
	if zipName == "" {
		zipName = "archive.zip"
	}
	if !strings.HasSuffix(zipName, ".zip") {
		zipName += ".zip"
	}
	if err := validators.DisplayNameValidator(zipName); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	newKey := util.NewFileKey(zipName)
	dst := filepath.Join(z.Index.Root.Files(), newKey)

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create archive, %w", err)
	}

	w := zip.NewWriter(out)
	ok := false
	defer func() {
		w.Close()
		out.Close()
		if !ok {
			os.Remove(dst)
		}
	}()

	for _, key := range fileKeys {
		p, err := z.Index.Resolve(key)
		if err != nil {
			return "", err
		}

		entryName := util.FileKeyName(key)
		if keepFolders {
			if rel, rerr := filepath.Rel(z.Index.Root.Files(), filepath.Dir(p)); rerr == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				entryName = filepath.ToSlash(filepath.Join(rel, entryName))
			}
		}

		entry, err := w.Create(entryName)
		if err != nil {
			return "", fmt.Errorf("failed to create archive entry, %w", err)
		}

		in, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("failed to open %q, %w", key, err)
		}
		_, err = io.Copy(entry, in)
		in.Close()
		if err != nil {
			return "", fmt.Errorf("failed to compress %q, %w", key, err)
		}
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish archive, %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to flush archive, %w", err)
	}

	rel, err := z.Index.Root.Rel(dst)
	if err != nil {
		return "", err
	}
	if err := z.Index.PutDiskFile(newKey, rel); err != nil {
		return "", err
	}

	ok = true
	return newKey, nil
}
