// Package service contains the core engine: the upload coordinator, the
// conversion orchestrator, the automation process pools and the cloud
// sync worker. The HTTP layer in api/ is a thin shell over this package.
package service

import (
	"time"

	"github.com/jellydator/ttlcache/v2"
)

// ConflictStrategy decides what happens when an upload's target name is
// already taken
type ConflictStrategy string

const (
	ConflictOverwrite ConflictStrategy = "overwrite"
	ConflictRename    ConflictStrategy = "rename"
	ConflictReject    ConflictStrategy = "reject"
)

func (s ConflictStrategy) Valid() bool {
	switch s {
	case ConflictOverwrite, ConflictRename, ConflictReject:
		return true
	}
	return false
}

// UploadSession is the ephemeral state of one chunked upload between
// init and complete
type UploadSession struct {
	UploadID     string
	DisplayName  string
	ContentHash  string // optional, client computed
	TargetFolder string
	ContentType  string
	Size         int64
	Strategy     ConflictStrategy
	Uploader     string
}

// StagingKey is the directory name parts are staged under. Sessions that
// carry the same content hash share staging, so independent clients
// uploading identical bytes resume each other's progress
func (s *UploadSession) StagingKey() string {
	if s.ContentHash != "" {
		return s.ContentHash
	}
	return s.UploadID
}

// DefaultSessionTTL is how long an idle session survives before the
// store drops it
const DefaultSessionTTL = 30 * time.Minute

// SessionStore holds in-flight upload sessions with a sliding TTL. It is
// an injected dependency of the coordinator, not a package global, so
// tests can run isolated instances side by side
type SessionStore struct {
	cache *ttlcache.Cache
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	c := ttlcache.NewCache()
	c.SetTTL(ttl)
	return &SessionStore{cache: c}
}

func (s *SessionStore) Put(sess *UploadSession) {
	s.cache.Set(sess.UploadID, sess)
}

func (s *SessionStore) Get(uploadID string) (*UploadSession, bool) {
	v, err := s.cache.Get(uploadID)
	if err != nil {
		return nil, false
	}
	return v.(*UploadSession), true
}

func (s *SessionStore) Remove(uploadID string) {
	s.cache.Remove(uploadID)
}

func (s *SessionStore) Close() {
	s.cache.Close()
}
