// Package model defines database models
package model

// DiskFile maps a file key to a blob path relative to the upload root
type DiskFile struct {
	Key       string `gorm:"primaryKey" json:"key"`
	Path      string `gorm:"not null" json:"path"`
	CreatedAt int64  `json:"created_at"` // Unix seconds
}

// SoftLink lets a second file key reference the same bytes as an existing
// DiskFile. Targets are always DiskFile keys, never other soft links
type SoftLink struct {
	Key       string `gorm:"primaryKey" json:"key"`
	TargetKey string `gorm:"not null;index" json:"target_key"`
	CreatedAt int64  `json:"created_at"`
}

// DownloadLink is a time-limited access record for a path that may live
// outside normal storage. Expiry is checked lazily on read
type DownloadLink struct {
	Key       string `gorm:"primaryKey" json:"key"`
	FilePath  string `gorm:"not null" json:"file_path"`
	ExpiresAt int64  `json:"expires_at"` // Unix seconds, 0 means never
	IsCopy    bool   `json:"is_copy"`
}

// FileHash maps a content hash to the DiskFile key first stored under it.
// Used for the instant-upload short circuit
type FileHash struct {
	Hash    string `gorm:"primaryKey" json:"hash"`
	FileKey string `gorm:"not null" json:"file_key"`
}
