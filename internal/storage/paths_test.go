package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithin_AllowsNestedPaths(t *testing.T) {
	root := Root{Dir: t.TempDir()}

	abs, err := root.Within(filepath.Join("files", "photos", "a.jpg"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root.Dir, "files", "photos", "a.jpg"), abs)
}

func TestWithin_RejectsTraversal(t *testing.T) {
	root := Root{Dir: t.TempDir()}

	for _, rel := range []string{
		filepath.Join("..", "outside.txt"),
		filepath.Join("files", "..", "..", "outside.txt"),
	} {
		_, err := root.Within(rel)
		require.Error(t, err, "should reject %q", rel)
	}
}

func TestRel_RoundTripsWithin(t *testing.T) {
	root := Root{Dir: t.TempDir()}

	abs, err := root.Within(filepath.Join("files", "a.txt"))
	require.NoError(t, err)

	rel, err := root.Rel(abs)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("files", "a.txt"), rel)
}

func TestEnsureLayout_CreatesAllDirs(t *testing.T) {
	root := Root{Dir: filepath.Join(t.TempDir(), "upload")}
	require.NoError(t, root.EnsureLayout())
	require.DirExists(t, root.Files())
	require.DirExists(t, root.DownloadCopies())
	require.DirExists(t, root.Converted())
	require.DirExists(t, root.Data())
	require.DirExists(t, root.Temp())
}
