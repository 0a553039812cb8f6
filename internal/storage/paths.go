// Package storage owns the key-value index tables and the on-disk layout
// of the upload root. Every component that needs a physical path goes
// through Resolve instead of trusting client input.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is the single directory all persisted state lives under
type Root struct {
	Dir string
}

func (r Root) Files() string         { return filepath.Join(r.Dir, "files") }
func (r Root) DownloadCopies() string { return filepath.Join(r.Dir, "temporary_download_files") }
func (r Root) Converted() string     { return filepath.Join(r.Dir, "converted_files") }
func (r Root) Data() string          { return filepath.Join(r.Dir, "data") }
func (r Root) Temp() string          { return filepath.Join(r.Dir, "temp") }

// EnsureLayout creates the standard directory tree under the root
func (r Root) EnsureLayout() error {
	for _, dir := range []string{r.Files(), r.DownloadCopies(), r.Converted(), r.Data(), r.Temp()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s, %w", dir, err)
		}
	}
	return nil
}

// Within joins a stored relative path onto the root and verifies the
// result cannot escape it
func (r Root) Within(rel string) (string, error) {
	abs := filepath.Join(r.Dir, rel)

	rootAbs, err := filepath.Abs(r.Dir)
	if err != nil {
		return "", err
	}
	clean, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}

	if clean != rootAbs && !strings.HasPrefix(clean, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the upload root", rel)
	}

	return clean, nil
}

// Rel turns an absolute path inside the root back into the relative form
// stored in the index
func (r Root) Rel(abs string) (string, error) {
	rootAbs, err := filepath.Abs(r.Dir)
	if err != nil {
		return "", err
	}
	return filepath.Rel(rootAbs, abs)
}
