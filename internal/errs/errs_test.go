package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteError_ErrorIncludesKindAndMessage(t *testing.T) {
	err := New(SourceRead, "could not read note.md", fmt.Errorf("permission denied"))
	assert.Contains(t, err.Error(), string(SourceRead))
	assert.Contains(t, err.Error(), "could not read note.md")
}

func TestNoteError_UnwrapSupportsErrorsIs(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := New(StoreIO, "write failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestNoteError_IsMatchesByKind(t *testing.T) {
	a := New(DimensionMismatch, "a", nil)
	b := &NoteError{Kind: DimensionMismatch}
	assert.True(t, errors.Is(a, b))

	c := &NoteError{Kind: StoreIO}
	assert.False(t, errors.Is(a, c))
}

func TestKindOf(t *testing.T) {
	err := New(VisionUnsupported, "no vision", nil)
	assert.Equal(t, VisionUnsupported, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(EmbeddingTransient, "timeout", nil)))
	assert.False(t, Retryable(New(SourceRead, "skip", nil)))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultRetryConfig()
	err := Retry(ctx, cfg, func() error { return fmt.Errorf("never used") })
	require.Error(t, err)
	assert.Equal(t, Cancelled, KindOf(err))
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return fmt.Errorf("still failing")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
