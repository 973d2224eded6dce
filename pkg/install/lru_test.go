package install

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVersionDir(t *testing.T, cacheDir, modelID, version string, size int, ready bool, modTime time.Time) string {
	t.Helper()
	dir := filepath.Join(cacheDir, modelID, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data := make([]byte, size)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.bin"), data, 0o644))
	if ready {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".ready"), []byte("x"), 0o644))
	}
	require.NoError(t, os.Chtimes(filepath.Join(dir, "model.bin"), modTime, modTime))
	return dir
}

func TestEvictLRURemovesOldestNonActiveReady(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	now := time.Now()

	writeVersionDir(t, cacheDir, "m1", "1.0.0", 100, true, now.Add(-2*time.Hour))
	writeVersionDir(t, cacheDir, "m1", "1.1.0", 100, true, now.Add(-1*time.Hour))

	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "m1", "active"), []byte("1.1.0"), 0o644))

	err := EvictLRU(cacheDir, 150)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cacheDir, "m1", "1.0.0"))
	assert.True(t, os.IsNotExist(err), "oldest non-active version should be evicted")

	_, err = os.Stat(filepath.Join(cacheDir, "m1", "1.1.0"))
	assert.NoError(t, err, "active version must never be evicted")
}

func TestEvictLRUNeverRemovesActiveVersion(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	now := time.Now()

	writeVersionDir(t, cacheDir, "m1", "1.0.0", 1000, true, now.Add(-5*time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "m1", "active"), []byte("1.0.0"), 0o644))

	err := EvictLRU(cacheDir, 1)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cacheDir, "m1", "1.0.0"))
	assert.NoError(t, err)
}

func TestEvictLRUIgnoresNonReadyDirectories(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	writeVersionDir(t, cacheDir, "m1", "1.0.0", 1000, false, time.Now())

	err := EvictLRU(cacheDir, 1)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cacheDir, "m1", "1.0.0"))
	assert.NoError(t, err, "a partial (non-ready) install is not evicted by the LRU pass")
}

func TestCleanOrphansRemovesTmpFilesAndStage(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "m1", "1.0.0")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".stage"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.bin.tmp.abc123"), []byte("partial"), 0o644))

	err := CleanOrphans(cacheDir)
	require.NoError(t, err)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "a version directory without .ready is garbage-collected entirely")
}

func TestCleanOrphansKeepsReadyDirectory(t *testing.T) {
	t.Parallel()

	cacheDir2 := t.TempDir()
	versionDir := filepath.Join(cacheDir2, "m1", "1.0.0")
	require.NoError(t, os.MkdirAll(versionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, ".ready"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, "model.bin.tmp.xyz"), []byte("stale"), 0o644))

	require.NoError(t, CleanOrphans(cacheDir2))

	assert.FileExists(t, filepath.Join(versionDir, ".ready"))
	_, err := os.Stat(filepath.Join(versionDir, "model.bin.tmp.xyz"))
	assert.True(t, os.IsNotExist(err))
}
