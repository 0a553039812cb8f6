package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf_SurvivesWrapping(t *testing.T) {
	base := New(KindNotFound, "File not found")
	wrapped := fmt.Errorf("resolving key, %w", base)

	require.Equal(t, KindNotFound, KindOf(wrapped))
	require.True(t, IsKind(wrapped, KindNotFound))
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestMessage_MasksInternalDetails(t *testing.T) {
	require.Equal(t, "Internal server error", Message(errors.New("sql: connection refused")))
	require.Equal(t, "Internal server error", Message(Wrap(KindInternal, "index lookup failed", errors.New("boom"))))
	require.Equal(t, "File not found", Message(New(KindNotFound, "File not found")))
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindExternalFailure, "Upload failed", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "disk full")
	require.Contains(t, err.Error(), "Upload failed")
}
