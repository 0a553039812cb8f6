package service

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// CloudProvider is a remote storage backend the sync worker mirrors
// into. All calls carry the provider's configured capability token.
type CloudProvider interface {
	Exists(ctx context.Context, name string) (bool, error)
	Upload(ctx context.Context, name, path string) error
	// URL returns the address a client can fetch the mirrored object from
	URL(name string) string
}

const (
	// syncConcurrency caps how many transfers run at once
	syncConcurrency = 5
	// syncAttempts is the total number of exists-then-upload cycles
	// tried before giving up until the next sweep
	syncAttempts = 3
)

// CloudSync mirrors completed uploads to remote storage. It is strictly
// best effort: failures are logged and retried at the next startup
// sweep, never surfaced to the uploader.
type CloudSync struct {
	Index    *storage.Index
	Provider CloudProvider

	gate *semaphore.Weighted
	wg   sync.WaitGroup
}

func NewCloudSync(ix *storage.Index, provider CloudProvider) *CloudSync {
	return &CloudSync{
		Index:    ix,
		Provider: provider,
		gate:     semaphore.NewWeighted(syncConcurrency),
	}
}

// SweepOnStartup schedules every indexed file whose local bytes still
// exist. Anything already mirrored gets cleaned up by the idempotency
// check inside uploadOne.
func (s *CloudSync) SweepOnStartup() error {
	recs, err := s.Index.ListDiskFiles()
	if err != nil {
		return err
	}

	scheduled := 0
	for _, rec := range recs {
		abs, err := s.Index.Root.Within(rec.Path)
		if err != nil {
			zap.L().Warn("Skipping record with invalid path", zap.String("key", rec.Key))
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		s.CreateTask(abs)
		scheduled++
	}

	zap.L().Info("Cloud sync sweep scheduled", zap.Int("files", scheduled))
	return nil
}

// CreateTask mirrors a single file in the background, fire and forget.
// Called right after an upload completes so fresh files do not wait for
// the next restart.
func (s *CloudSync) CreateTask(path string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.uploadOne(context.Background(), path)
	}()
}

// Wait blocks until every scheduled transfer has finished
func (s *CloudSync) Wait() {
	s.wg.Wait()
}

// uploadOne runs up to syncAttempts full exists-then-upload cycles. The
// existence check doubles as the idempotency guard: a file the remote
// already holds just gets its local copy dropped.
func (s *CloudSync) uploadOne(ctx context.Context, path string) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.gate.Release(1)

	name, err := s.Index.Root.Rel(path)
	if err != nil || strings.HasPrefix(name, "..") {
		zap.L().Error("Refusing to sync path outside the upload root", zap.String("path", path))
		return
	}

	backoff := retry.WithMaxRetries(syncAttempts-1, retry.NewExponential(time.Second))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		exists, err := s.Provider.Exists(ctx, name)
		if err != nil {
			return retry.RetryableError(err)
		}

		if !exists {
			if err := s.Provider.Upload(ctx, name, path); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		}

		// Remote already holds the bytes, the local copy is now
		// redundant
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("Failed to remove mirrored local copy", zap.String("path", path), zap.Error(err))
		}
		return nil
	})

	if err != nil {
		// Leave the local copy untouched, the next startup sweep
		// retries from scratch
		zap.L().Error("Cloud sync gave up on file",
			zap.String("name", name),
			zap.Int("attempts", syncAttempts),
			zap.Error(err))
		return
	}

	zap.L().Debug("Cloud sync finished", zap.String("name", name))
}
