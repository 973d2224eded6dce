package modelerror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code      Code
		retriable bool
	}{
		{ModelNotFound, false},
		{ModelVerifyFailed, true},
		{RuntimeNotAvailable, true},
		{UnsupportedPlatform, false},
		{InsufficientMemory, true},
		{TaskTimeout, true},
		{TaskCancelled, true},
		{DownloadFailed, true},
		{InvalidModelFormat, false},
		{ConfigError, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.code), func(t *testing.T) {
			t.Parallel()
			err := New(tc.code, "boom")
			assert.Equal(t, tc.retriable, err.Retriable())
		})
	}
}

func TestErrorIsMatchesOnCode(t *testing.T) {
	t.Parallel()

	err := New(ModelVerifyFailed, "hash mismatch", WithDetail("artifact", "model.gguf"))
	sentinel := New(ModelVerifyFailed, "")

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, New(DownloadFailed, "")))
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := New(DownloadFailed, "fetch failed", WithCause(cause))

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	err := New(InsufficientMemory, "not enough RAM")
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, InsufficientMemory, code)

	_, ok = CodeOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestWithDetailsMerges(t *testing.T) {
	t.Parallel()

	err := New(ModelVerifyFailed, "mismatch",
		WithDetail("expectedSha256", "abc"),
		WithDetails(map[string]any{"actualSha256": "def"}),
	)

	assert.Equal(t, "abc", err.Details["expectedSha256"])
	assert.Equal(t, "def", err.Details["actualSha256"])
}

func TestIsRetriableNonModelError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetriable(errors.New("generic")))
}
