package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"go.uber.org/zap"
)

var targetTypePattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,8}$`)

// convertTask is one in-flight conversion shared by every concurrent
// requester of the same (source, target) pair
type convertTask struct {
	done chan struct{}
	path string
	err  error
}

func (t *convertTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// ConvertOrchestrator resolves (source, target) pairs to converted
// artifacts. Results are cached on disk under converted_files/ where
// existence is the cache index, and identical concurrent requests
// collapse into a single execution.
type ConvertOrchestrator struct {
	Index      *storage.Index
	Converters []Converter
	Client     *http.Client

	mu       sync.Mutex
	inflight map[string]*convertTask
}

func NewConvertOrchestrator(ix *storage.Index, converters []Converter) *ConvertOrchestrator {
	return &ConvertOrchestrator{
		Index:      ix,
		Converters: converters,
		Client:     http.DefaultClient,
		inflight:   make(map[string]*convertTask),
	}
}

// CachePath derives the deterministic cache filename for a source and
// target. Internal file keys contribute their 36 character id; external
// URLs get a stable content-derived pseudo id.
func (o *ConvertOrchestrator) CachePath(sourceURL, targetType string) string {
	id := ""
	if key, ok := extractFileKey(sourceURL); ok {
		id = util.FileKeyID(key)
	} else {
		id = util.URLDerivedID(sourceURL)
	}
	return filepath.Join(o.Index.Root.Converted(), id+"."+targetType)
}

// GetOrCreate returns the cached conversion of sourceURL to targetType,
// running the conversion when the cache misses. At most one non-forced
// conversion runs per (source, target) key; concurrent callers share its
// outcome. force bypasses the cache and always starts fresh work.
func (o *ConvertOrchestrator) GetOrCreate(ctx context.Context, sourceURL, targetType string, force bool) (string, error) {
	if sourceURL == "" {
		return "", apperr.New(apperr.KindValidation, "Source URL is required")
	}
	if !targetTypePattern.MatchString(targetType) {
		return "", apperr.Newf(apperr.KindValidation, "Invalid target type %q", targetType)
	}

	cachePath := o.CachePath(sourceURL, targetType)
	if !force {
		if _, err := os.Stat(cachePath); err == nil {
			return cachePath, nil
		}
	}

	key := sourceURL + targetType

	o.mu.Lock()
	t := o.inflight[key]
	if t != nil && (force || t.finished()) {
		// Finished, faulted or canceled tasks are evicted and
		// recreated; a forced request never joins existing work
		delete(o.inflight, key)
		t = nil
	}
	created := t == nil
	if created {
		t = &convertTask{done: make(chan struct{})}
		o.inflight[key] = t
	}
	o.mu.Unlock()

	if created {
		t.path, t.err = o.run(ctx, sourceURL, targetType, cachePath)
		close(t.done)
		return t.path, t.err
	}

	select {
	case <-t.done:
		return t.path, t.err
	case <-ctx.Done():
		return "", apperr.Wrap(apperr.KindResourceExhausted, "Conversion canceled", ctx.Err())
	}
}

// ConvertibleExtensions unions the supported source extensions of every
// converter whose backing application is currently reachable
func (o *ConvertOrchestrator) ConvertibleExtensions() []string {
	seen := map[string]bool{}
	for _, c := range o.Converters {
		if !c.Available() {
			continue
		}
		for _, ext := range c.Extensions() {
			seen[ext] = true
		}
	}

	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (o *ConvertOrchestrator) run(ctx context.Context, sourceURL, targetType, cachePath string) (string, error) {
	src, cleanup, err := o.localize(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	defer cleanup()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(src), "."))
	if ext == "" {
		return "", apperr.New(apperr.KindValidation, "Source file has no extension to dispatch on")
	}

	conv := o.pick(ext)
	if conv == nil {
		return "", apperr.Newf(apperr.KindValidation, "Conversion from .%s is not supported", ext)
	}

	// Convert into a temp name and rename on success so a failed run
	// never leaves a partial cache entry visible
	tmp := cachePath + "." + util.RandStr(6) + "." + targetType
	if err := conv.Convert(ctx, src, tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, cachePath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to publish converted file, %w", err)
	}

	zap.L().Info("Conversion finished",
		zap.String("converter", conv.Name()),
		zap.String("target", targetType),
		zap.String("cache", filepath.Base(cachePath)))

	return cachePath, nil
}

// pick returns the first available converter family supporting ext;
// registry order doubles as fallback order
func (o *ConvertOrchestrator) pick(ext string) Converter {
	for _, c := range o.Converters {
		if c.Available() && supports(c, ext) {
			return c
		}
	}
	return nil
}

// localize turns the source into a local file path: internal keys go
// through the storage index, external URLs are downloaded to a temp file
func (o *ConvertOrchestrator) localize(ctx context.Context, sourceURL string) (string, func(), error) {
	noop := func() {}

	if key, ok := extractFileKey(sourceURL); ok {
		p, err := o.Index.Resolve(key)
		return p, noop, err
	}

	u, err := url.Parse(sourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", noop, apperr.New(apperr.KindValidation, "Source is neither a file key nor an http(s) URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", noop, apperr.Wrap(apperr.KindValidation, "Invalid source URL", err)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", noop, apperr.Wrap(apperr.KindExternalFailure, "Failed to fetch source URL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", noop, apperr.Newf(apperr.KindExternalFailure, "Source URL answered %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "source-*"+path.Ext(u.Path))
	if err != nil {
		return "", noop, fmt.Errorf("failed to create download target, %w", err)
	}

	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		cleanup()
		return "", noop, apperr.Wrap(apperr.KindExternalFailure, "Failed to download source", err)
	}
	f.Close()

	return f.Name(), cleanup, nil
}

// extractFileKey digs a file key out of a source URL. Both serving forms
// are understood: a /Upload/{fileKey} path segment and a ?file={fileKey}
// query parameter. A bare key passes through unchanged.
func extractFileKey(sourceURL string) (string, bool) {
	if util.IsFileKey(sourceURL) {
		return sourceURL, true
	}

	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", false
	}

	if q := u.Query().Get("file"); util.IsFileKey(q) {
		return q, true
	}

	if seg, err := url.PathUnescape(path.Base(u.Path)); err == nil && util.IsFileKey(seg) {
		return seg, true
	}

	return "", false
}
