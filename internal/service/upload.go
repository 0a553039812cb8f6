package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadCoordinator owns the session lifecycle: init, part upload and
// merge. It writes completed files into the storage index and hands them
// off to the cloud sync worker.
type UploadCoordinator struct {
	Index    *storage.Index
	Sessions *SessionStore
	Sync     *CloudSync // optional

	// destMu serializes destination resolution at completion so two
	// finishing uploads cannot race for the same Rename slot
	destMu sync.Mutex
}

func NewUploadCoordinator(ix *storage.Index, sessions *SessionStore, sync *CloudSync) *UploadCoordinator {
	return &UploadCoordinator{
		Index:    ix,
		Sessions: sessions,
		Sync:     sync,
	}
}

type InitRequest struct {
	DisplayName  string
	ContentHash  string
	TargetFolder string
	ContentType  string
	Size         int64
	Strategy     ConflictStrategy
	Uploader     string
}

type InitResult struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
}

// Init opens a new upload session and reports the name the file is
// expected to land under. The name is a preview only: the binding
// resolution runs again at Complete, so a client should treat it as
// cosmetic until the upload finishes.
func (u *UploadCoordinator) Init(req InitRequest) (*InitResult, error) {
	if req.DisplayName == "" {
		return nil, apperr.New(apperr.KindValidation, "Display name is required")
	}
	if req.DisplayName != filepath.Base(req.DisplayName) {
		return nil, apperr.New(apperr.KindValidation, "Display name must not contain path separators")
	}
	if !req.Strategy.Valid() {
		return nil, apperr.Newf(apperr.KindValidation, "Unknown conflict strategy %q", req.Strategy)
	}

	targetDir, err := u.targetDir(req.TargetFolder)
	if err != nil {
		return nil, err
	}

	uploadID := uuid.NewString()
	for {
		if _, err := os.Stat(filepath.Join(u.Index.Root.Temp(), uploadID)); os.IsNotExist(err) {
			break
		}
		uploadID = uuid.NewString()
	}

	finalName, err := resolveName(targetDir, req.DisplayName, req.Strategy, false)
	if err != nil {
		return nil, err
	}

	sess := &UploadSession{
		UploadID:     uploadID,
		DisplayName:  req.DisplayName,
		ContentHash:  req.ContentHash,
		TargetFolder: req.TargetFolder,
		ContentType:  req.ContentType,
		Size:         req.Size,
		Strategy:     req.Strategy,
		Uploader:     req.Uploader,
	}

	if err := os.MkdirAll(u.stagingDir(sess), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory, %w", err)
	}

	u.Sessions.Put(sess)

	zap.L().Debug("Upload session initialized",
		zap.String("upload_id", uploadID),
		zap.String("name", req.DisplayName),
		zap.String("final_name", finalName))

	return &InitResult{UploadID: uploadID, FileName: finalName}, nil
}

type CheckResult struct {
	Exist bool  `json:"exist"`
	Parts []int `json:"parts"`
}

// CheckInfo reports whether the session's content hash already matches a
// stored file (the instant-upload short circuit) and which parts are
// already staged so a reconnecting client can skip them
func (u *UploadCoordinator) CheckInfo(uploadID string) (*CheckResult, error) {
	sess, ok := u.Sessions.Get(uploadID)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "Upload session not found")
	}

	res := &CheckResult{Parts: []int{}}

	if sess.ContentHash != "" {
		if _, ok := u.lookupHash(sess.ContentHash); ok {
			res.Exist = true
		}
	}

	entries, err := os.ReadDir(u.stagingDir(sess))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read staging directory, %w", err)
	}
	for _, e := range entries {
		if n, err := strconv.Atoi(e.Name()); err == nil {
			res.Parts = append(res.Parts, n)
		}
	}
	sort.Ints(res.Parts)

	return res, nil
}

// UploadPart stages one part. Overwriting an already staged part is fine,
// that is what makes client retries harmless.
func (u *UploadCoordinator) UploadPart(uploadID string, part int, r io.Reader) error {
	sess, ok := u.Sessions.Get(uploadID)
	if !ok {
		return apperr.New(apperr.KindNotFound, "Upload session not found")
	}
	if part < 0 {
		return apperr.New(apperr.KindValidation, "Part number must not be negative")
	}

	dir := u.stagingDir(sess)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory, %w", err)
	}

	f, err := os.Create(filepath.Join(dir, strconv.Itoa(part)))
	if err != nil {
		return fmt.Errorf("failed to create part file, %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write part file, %w", err)
	}

	return nil
}

type CompleteResult struct {
	FileKey  string `json:"fileKey"`
	FileName string `json:"fileName"`
}

// Complete merges the staged parts in ascending numeric order, resolves
// the destination name under the session's conflict strategy, moves the
// merged file into place and records it in the index. This is the
// binding name resolution; the one from Init was a preview.
func (u *UploadCoordinator) Complete(uploadID string) (*CompleteResult, error) {
	sess, ok := u.Sessions.Get(uploadID)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "Upload session not found")
	}

	staging := u.stagingDir(sess)
	parts, err := stagedParts(staging)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, apperr.New(apperr.KindValidation, "No parts have been uploaded")
	}

	merged, err := mergeParts(staging, parts)
	if err != nil {
		return nil, err
	}

	targetDir, err := u.targetDir(sess.TargetFolder)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create target directory, %w", err)
	}

	u.destMu.Lock()
	finalName, err := resolveName(targetDir, sess.DisplayName, sess.Strategy, true)
	if err != nil {
		u.destMu.Unlock()
		return nil, err
	}

	finalPath := filepath.Join(targetDir, finalName)
	if err := os.Rename(merged, finalPath); err != nil {
		u.destMu.Unlock()
		return nil, fmt.Errorf("failed to move merged file into place, %w", err)
	}
	u.destMu.Unlock()

	rel, err := u.Index.Root.Rel(finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to relativize final path, %w", err)
	}

	fileKey := util.NewFileKey(finalName)
	if err := u.Index.PutDiskFile(fileKey, rel); err != nil {
		return nil, err
	}
	if sess.ContentHash != "" {
		if err := u.Index.PutFileHash(sess.ContentHash, fileKey); err != nil {
			return nil, err
		}
	}

	if err := os.RemoveAll(staging); err != nil {
		zap.L().Warn("Failed to remove staging directory", zap.String("dir", staging), zap.Error(err))
	}
	u.Sessions.Remove(uploadID)

	if u.Sync != nil {
		u.Sync.CreateTask(finalPath)
	}

	zap.L().Info("Upload completed",
		zap.String("upload_id", uploadID),
		zap.String("file_key", fileKey))

	return &CompleteResult{FileKey: fileKey, FileName: finalName}, nil
}

// AddRecord is the dedup fast path: no bytes move, a fresh key is simply
// soft-linked to the file already stored under the session's hash
func (u *UploadCoordinator) AddRecord(uploadID string) (string, error) {
	sess, ok := u.Sessions.Get(uploadID)
	if !ok {
		return "", apperr.New(apperr.KindNotFound, "Upload session not found")
	}
	if sess.ContentHash == "" {
		return "", apperr.New(apperr.KindValidation, "Session has no content hash")
	}

	targetKey, ok := u.lookupHash(sess.ContentHash)
	if !ok {
		return "", apperr.New(apperr.KindNotFound, "No stored file matches the content hash")
	}

	fileKey := util.NewFileKey(sess.DisplayName)
	if err := u.Index.PutSoftLink(fileKey, targetKey); err != nil {
		return "", err
	}

	u.Sessions.Remove(uploadID)

	return fileKey, nil
}

// lookupHash returns the DiskFile key stored for a hash, ignoring stale
// records whose target record has disappeared
func (u *UploadCoordinator) lookupHash(hash string) (string, bool) {
	rec, ok, err := u.Index.GetFileHash(hash)
	if err != nil || !ok {
		return "", false
	}
	if _, ok, err := u.Index.GetDiskFile(rec.FileKey); err != nil || !ok {
		return "", false
	}
	return rec.FileKey, true
}

func (u *UploadCoordinator) stagingDir(sess *UploadSession) string {
	return filepath.Join(u.Index.Root.Temp(), sess.StagingKey())
}

func (u *UploadCoordinator) targetDir(folder string) (string, error) {
	dir, err := u.Index.Root.Within(filepath.Join("files", folder))
	if err != nil {
		return "", apperr.New(apperr.KindValidation, "Target folder escapes the upload root")
	}
	return dir, nil
}

func stagedParts(staging string) ([]int, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.KindNotFound, "Upload session not found")
		}
		return nil, fmt.Errorf("failed to read staging directory, %w", err)
	}

	parts := make([]int, 0, len(entries))
	for _, e := range entries {
		if n, err := strconv.Atoi(e.Name()); err == nil {
			parts = append(parts, n)
		}
	}
	sort.Ints(parts)
	return parts, nil
}

// mergeParts concatenates the staged parts into a single file inside the
// staging directory and returns its path. A single-part upload skips the
// copy entirely and reuses the part file.
func mergeParts(staging string, parts []int) (string, error) {
	if len(parts) == 1 {
		return filepath.Join(staging, strconv.Itoa(parts[0])), nil
	}

	merged := filepath.Join(staging, "merged.part")
	out, err := os.Create(merged)
	if err != nil {
		return "", fmt.Errorf("failed to create merge target, %w", err)
	}
	defer out.Close()

	for _, p := range parts {
		in, err := os.Open(filepath.Join(staging, strconv.Itoa(p)))
		if err != nil {
			return "", fmt.Errorf("failed to open part %d, %w", p, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return "", fmt.Errorf("failed to append part %d, %w", p, err)
		}
	}

	return merged, nil
}
