package util

import (
	"regexp"

	"github.com/google/uuid"
)

// File keys look like "3f2a...-...-..._report.docx": a 36 character id
// followed by an underscore and the display name. Anything else is
// rejected before it can reach the filesystem.
var fileKeyPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}_.+$`)

const keyIDLen = 36

// NewFileKey mints a fresh key for the given display name
func NewFileKey(name string) string {
	return uuid.NewString() + "_" + name
}

func IsFileKey(key string) bool {
	return fileKeyPattern.MatchString(key)
}

// FileKeyID returns the 36 character id prefix of a valid key
func FileKeyID(key string) string {
	return key[:keyIDLen]
}

// FileKeyName returns the display name part of a valid key
func FileKeyName(key string) string {
	return key[keyIDLen+1:]
}

// URLDerivedID produces a stable 36 character id for content that has no
// file key of its own (external URLs). Identical inputs always map to the
// same id, which is what makes the conversion cache deterministic.
func URLDerivedID(rawURL string) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(rawURL)).String()
}
