package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
)

// resolveName applies a conflict strategy to a target name inside dir
// and returns the name to use. With commit=false nothing on disk is
// touched, which is how the init-time preview avoids deleting anything;
// the binding resolution at completion passes commit=true so Overwrite
// can clear the way.
func resolveName(dir, name string, strategy ConflictStrategy, commit bool) (string, error) {
	target := filepath.Join(dir, name)

	if _, err := os.Stat(target); os.IsNotExist(err) {
		return name, nil
	}

	switch strategy {
	case ConflictOverwrite:
		if !commit {
			return name, nil
		}
		if err := os.Remove(target); err != nil {
			return "", fmt.Errorf("failed to remove existing file, %w", err)
		}
		return name, nil

	case ConflictRename:
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s(%d)%s", base, i, ext)
			if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
				return candidate, nil
			}
		}

	case ConflictReject:
		return "", apperr.Newf(apperr.KindConflict, "File %q already exists in %q", name, filepath.Base(dir))

	default:
		return "", apperr.Newf(apperr.KindValidation, "Unknown conflict strategy %q", strategy)
	}
}
