package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestResolveName_FreeSlotIgnoresStrategy(t *testing.T) {
	dir := t.TempDir()

	for _, s := range []ConflictStrategy{ConflictOverwrite, ConflictRename, ConflictReject} {
		name, err := resolveName(dir, "doc.txt", s, true)
		require.NoError(t, err)
		require.Equal(t, "doc.txt", name)
	}
}

func TestResolveName_OverwriteCommitClearsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	name, err := resolveName(dir, "doc.txt", ConflictOverwrite, true)
	require.NoError(t, err)
	require.Equal(t, "doc.txt", name)

	_, statErr := os.Stat(target)
	require.True(t, os.IsNotExist(statErr))
}

func TestResolveName_OverwritePreviewKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	name, err := resolveName(dir, "doc.txt", ConflictOverwrite, false)
	require.NoError(t, err)
	require.Equal(t, "doc.txt", name)
	require.FileExists(t, target)
}

func TestResolveName_RenameSkipsTakenSlots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc(1).txt"), nil, 0o644))

	name, err := resolveName(dir, "doc.txt", ConflictRename, true)
	require.NoError(t, err)
	require.Equal(t, "doc(2).txt", name)
}

func TestResolveName_RejectOnConflict(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), nil, 0o644))

	_, err := resolveName(dir, "doc.txt", ConflictReject, true)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}
