package service

import (
	"testing"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/db"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *storage.Index {
	t.Helper()

	root := storage.Root{Dir: t.TempDir()}
	require.NoError(t, root.EnsureLayout())

	conn, err := db.Open(root.Data())
	require.NoError(t, err)

	return storage.NewIndex(conn, root)
}

func newTestCoordinator(t *testing.T) *UploadCoordinator {
	t.Helper()

	sessions := NewSessionStore(time.Minute)
	t.Cleanup(sessions.Close)

	return NewUploadCoordinator(newTestIndex(t), sessions, nil)
}
