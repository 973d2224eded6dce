package localindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptyIndex(t *testing.T) {
	t.Parallel()

	idx, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, idx.Models)
}

func TestUpsertReplacesSameVersion(t *testing.T) {
	t.Parallel()
	cacheDir := t.TempDir()

	_, err := Upsert(cacheDir, LocalModel{ModelID: "m1", Version: "1.0.0", SizeBytes: 10, InstalledAt: time.Now()})
	require.NoError(t, err)

	idx, err := Upsert(cacheDir, LocalModel{ModelID: "m1", Version: "1.0.0", SizeBytes: 20, InstalledAt: time.Now()})
	require.NoError(t, err)

	require.Len(t, idx.Models, 1)
	assert.Equal(t, int64(20), idx.Models[0].SizeBytes)
}

func TestUpsertActiveDemotesSiblings(t *testing.T) {
	t.Parallel()
	cacheDir := t.TempDir()

	_, err := Upsert(cacheDir, LocalModel{ModelID: "m1", Version: "1.0.0", Active: true})
	require.NoError(t, err)

	idx, err := Upsert(cacheDir, LocalModel{ModelID: "m1", Version: "1.1.0", Active: true})
	require.NoError(t, err)

	require.Len(t, idx.Models, 2)
	for _, m := range idx.Models {
		if m.Version == "1.0.0" {
			assert.False(t, m.Active)
		}
		if m.Version == "1.1.0" {
			assert.True(t, m.Active)
		}
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	t.Parallel()
	cacheDir := t.TempDir()

	_, err := Upsert(cacheDir, LocalModel{ModelID: "m1", Version: "1.0.0"})
	require.NoError(t, err)
	_, err = Upsert(cacheDir, LocalModel{ModelID: "m2", Version: "2.0.0"})
	require.NoError(t, err)

	idx, err := Remove(cacheDir, "m1", "1.0.0")
	require.NoError(t, err)

	require.Len(t, idx.Models, 1)
	assert.Equal(t, "m2", idx.Models[0].ModelID)
}

func TestByModelID(t *testing.T) {
	t.Parallel()
	cacheDir := t.TempDir()

	_, err := Upsert(cacheDir, LocalModel{ModelID: "m1", Version: "1.0.0"})
	require.NoError(t, err)
	_, err = Upsert(cacheDir, LocalModel{ModelID: "m1", Version: "1.1.0"})
	require.NoError(t, err)
	idx, err := Upsert(cacheDir, LocalModel{ModelID: "m2", Version: "1.0.0"})
	require.NoError(t, err)

	assert.Len(t, idx.ByModelID("m1"), 2)
	assert.Len(t, idx.ByModelID("m2"), 1)
}
