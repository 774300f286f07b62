package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorChain(t *testing.T) {
	cause := stderrors.New("yt-dlp exited 1")
	appErr := NewFetchFailure(cause, "❌ Download failed: boom")
	wrapped := fmt.Errorf("orchestrator: %w", appErr)

	got, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeFetchFailure, got.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ErrCodeFetchFailure, CodeOf(wrapped))
	assert.Equal(t, ErrCodeInternal, CodeOf(cause))
}

func TestStackOnlyForInternal(t *testing.T) {
	internal := Wrap(stderrors.New("x"), ErrCodeInternal, "oops")
	assert.NotEmpty(t, internal.Stack)

	fetch := Wrap(stderrors.New("x"), ErrCodeFetchFailure, "oops")
	assert.Empty(t, fetch.Stack)
}

func TestPolicyClassification(t *testing.T) {
	assert.True(t, NewPolicyDenied("banned", "You are banned").IsPolicy())
	assert.True(t, NewContextLost().IsPolicy())
	assert.False(t, NewSizeExceeded("too big", 10, 5).IsPolicy())
	assert.True(t, NewDatabaseError("insert", stderrors.New("x")).IsInternal())
}
