// Package validators holds request validation that is shared between
// handlers
package validators

import (
	"errors"
	"mime/multipart"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	ErrNoFile          = errors.New("no file provided")
	ErrFileTooLarge    = errors.New("file too large")
	ErrNoDisplayName   = errors.New("no display name provided")
	ErrFileNameTooLong = errors.New("file name is too long")
	ErrBadFileName     = errors.New("file name must not contain path separators")
)

const maxFileNameSize = 218 // File keys prepend 37 characters, keep the total under 255

// DisplayNameValidator checks a client-supplied file name before it is
// allowed anywhere near a path
func DisplayNameValidator(name string) error {
	if name == "" {
		return ErrNoDisplayName
	}
	if len(name) > maxFileNameSize {
		return ErrFileNameTooLong
	}
	if name != filepath.Base(name) {
		return ErrBadFileName
	}
	return nil
}

// PartValidator checks an uploaded part against the configured size cap
func PartValidator(fh *multipart.FileHeader) error {
	if fh == nil {
		return ErrNoFile
	}
	if fh.Size > viper.GetInt64("upload.max_size") {
		return ErrFileTooLarge
	}
	return nil
}
