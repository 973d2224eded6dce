package install

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/modelerror"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func testItem(content []byte, sha string) *manifest.ModelItem {
	return &manifest.ModelItem{
		ID:      "llama3.1-8b-q4km",
		Type:    manifest.TypeLLM,
		Version: "1.0.0",
		RequiredArtifacts: []manifest.Artifact{
			{Name: "model.gguf", Role: manifest.RoleModel, Format: "gguf", Path: "model.gguf", Size: int64(len(content)), SHA256: sha},
		},
	}
}

func fetchBytes(content []byte) FetchFunc {
	return func(ctx context.Context, url string) (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(content)), int64(len(content)), nil
	}
}

func collect(t *testing.T, ch <-chan Progress) []Progress {
	t.Helper()
	var events []Progress
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, p)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for progress events")
		}
	}
}

func TestInstallVerifyFailThenRetry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := []byte("correct model bytes")
	item := testItem(content, sha256Hex(content))

	corrupted := []byte("wrong bytes entirely")
	p := NewPipeline(dir, "http://example.invalid", fetchBytes(corrupted))

	events := collect(t, p.Install(context.Background(), item))
	require.NotEmpty(t, events)
	terminal := events[len(events)-1]
	assert.Equal(t, PhaseFailed, terminal.Phase)
	require.NotNil(t, terminal.Error)
	assert.Equal(t, modelerror.ModelVerifyFailed, terminal.Error.Code)
	assert.Equal(t, sha256Hex(content), terminal.Error.Details["expectedSha256"])

	_, err := os.Stat(filepath.Join(dir, item.ID, item.Version, "model.gguf"))
	assert.True(t, os.IsNotExist(err))

	p2 := NewPipeline(dir, "http://example.invalid", fetchBytes(content))
	events2 := collect(t, p2.Install(context.Background(), item))
	terminal2 := events2[len(events2)-1]
	assert.Equal(t, PhaseReady, terminal2.Phase)

	data, err := os.ReadFile(filepath.Join(dir, item.ID, item.Version, "model.gguf"))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	assert.FileExists(t, filepath.Join(dir, item.ID, item.Version, ".ready"))
}

func TestInstallSingleFlight(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := []byte("shared model content")
	item := testItem(content, sha256Hex(content))

	var fetchCount int32
	fetch := func(ctx context.Context, url string) (io.ReadCloser, int64, error) {
		atomic.AddInt32(&fetchCount, 1)
		return io.NopCloser(bytes.NewReader(content)), int64(len(content)), nil
	}

	p := NewPipeline(dir, "http://example.invalid", fetch)

	ch1 := p.Install(context.Background(), item)
	ch2 := p.Install(context.Background(), item)

	ev1 := collect(t, ch1)
	ev2 := collect(t, ch2)

	assert.Equal(t, PhaseReady, ev1[len(ev1)-1].Phase)
	assert.Equal(t, PhaseReady, ev2[len(ev2)-1].Phase)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetchCount))
}

func TestInstallIdempotentWhenAlreadyReady(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := []byte("already installed")
	item := testItem(content, sha256Hex(content))

	versionDir := filepath.Join(dir, item.ID, item.Version)
	require.NoError(t, os.MkdirAll(versionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, ".ready"), []byte("x"), 0o644))

	called := false
	fetch := func(ctx context.Context, url string) (io.ReadCloser, int64, error) {
		called = true
		return io.NopCloser(bytes.NewReader(content)), int64(len(content)), nil
	}

	p := NewPipeline(dir, "http://example.invalid", fetch)
	events := collect(t, p.Install(context.Background(), item))

	require.Len(t, events, 1)
	assert.Equal(t, PhaseReady, events[0].Phase)
	assert.False(t, called)
}

func TestInstallNoArtifactLeftWithoutSentinel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := []byte("model bytes")
	item := testItem(content, "0000000000000000000000000000000000000000000000000000000000000")

	p := NewPipeline(dir, "http://example.invalid", fetchBytes(content))
	events := collect(t, p.Install(context.Background(), item))

	terminal := events[len(events)-1]
	assert.Equal(t, PhaseFailed, terminal.Phase)

	_, err := os.Stat(filepath.Join(dir, item.ID, item.Version, "model.gguf"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, item.ID, item.Version, ".ready"))
	assert.True(t, os.IsNotExist(err))
}
