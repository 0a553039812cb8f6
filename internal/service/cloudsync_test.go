package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an in-memory remote
type fakeProvider struct {
	mu       sync.Mutex
	objects  map[string]bool
	uploads  int
	existsFn func(name string) (bool, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{objects: map[string]bool{}}
}

func (p *fakeProvider) Exists(ctx context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.existsFn != nil {
		return p.existsFn(name)
	}
	return p.objects[name], nil
}

func (p *fakeProvider) Upload(ctx context.Context, name, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[name] = true
	p.uploads++
	return nil
}

func (p *fakeProvider) URL(name string) string {
	return "https://remote.example/" + name
}

func TestCloudSync_UploadsMissingFile(t *testing.T) {
	ix := newTestIndex(t)
	provider := newFakeProvider()
	s := NewCloudSync(ix, provider)

	path := filepath.Join(ix.Root.Files(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0o644))

	s.CreateTask(path)
	s.Wait()

	require.True(t, provider.objects[filepath.Join("files", "a.txt")])
	require.FileExists(t, path, "local copy stays until the remote is confirmed on a later pass")
}

func TestCloudSync_RemovesLocalCopyWhenMirrored(t *testing.T) {
	ix := newTestIndex(t)
	provider := newFakeProvider()
	s := NewCloudSync(ix, provider)

	path := filepath.Join(ix.Root.Files(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0o644))
	provider.objects[filepath.Join("files", "a.txt")] = true

	s.CreateTask(path)
	s.Wait()

	require.Equal(t, 0, provider.uploads)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "mirrored local copy should be dropped")
}

func TestCloudSync_RetriesTransientFailures(t *testing.T) {
	ix := newTestIndex(t)
	provider := newFakeProvider()

	calls := 0
	provider.existsFn = func(name string) (bool, error) {
		calls++
		if calls == 1 {
			return false, errors.New("connection reset")
		}
		return false, nil
	}

	s := NewCloudSync(ix, provider)

	path := filepath.Join(ix.Root.Files(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0o644))

	s.CreateTask(path)
	s.Wait()

	require.Equal(t, 2, calls)
	require.Equal(t, 1, provider.uploads)
}

func TestCloudSync_RefusesPathsOutsideRoot(t *testing.T) {
	ix := newTestIndex(t)
	provider := newFakeProvider()
	s := NewCloudSync(ix, provider)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	s.CreateTask(outside)
	s.Wait()

	require.Empty(t, provider.objects)
	require.FileExists(t, outside)
}

func TestCloudSync_SweepSchedulesOnlyExistingBlobs(t *testing.T) {
	ix := newTestIndex(t)
	provider := newFakeProvider()
	s := NewCloudSync(ix, provider)

	present := filepath.Join("files", "present.txt")
	require.NoError(t, os.WriteFile(filepath.Join(ix.Root.Dir, present), []byte("x"), 0o644))
	require.NoError(t, ix.PutDiskFile(util.NewFileKey("present.txt"), present))
	require.NoError(t, ix.PutDiskFile(util.NewFileKey("gone.txt"), filepath.Join("files", "gone.txt")))

	require.NoError(t, s.SweepOnStartup())
	s.Wait()

	require.Len(t, provider.objects, 1)
	require.True(t, provider.objects[present])
}
