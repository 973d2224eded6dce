// Package localindex maintains models.json, the on-disk index of installed
// LocalModels described in §6's on-disk layout (the sibling of each
// model's versioned artifact directory under {cacheDir}). It exists purely
// for fast introspection — "what is installed, and which version is
// active" — without re-walking the cache directory tree; the install
// pipeline itself remains the sole source of truth for .ready sentinels.
package localindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LocalModel is one installed (modelId, version) entry in the index.
type LocalModel struct {
	ModelID     string    `json:"modelId"`
	Version     string    `json:"version"`
	Backend     string    `json:"backend,omitempty"`
	SizeBytes   int64     `json:"sizeBytes"`
	InstalledAt time.Time `json:"installedAt"`
	Active      bool      `json:"active"`
}

// Index is the decoded contents of models.json.
type Index struct {
	Models []LocalModel `json:"models"`
}

func indexPath(cacheDir string) string {
	return filepath.Join(cacheDir, "models.json")
}

// Load reads models.json from cacheDir. A missing file is not an error; it
// yields an empty Index, matching a freshly initialized cache directory.
func Load(cacheDir string) (*Index, error) {
	data, err := os.ReadFile(indexPath(cacheDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{}, nil
		}
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// Save writes idx to models.json atomically: encode to a sibling temp file,
// then rename over the real path, the same tmp-then-rename idiom the
// install pipeline uses for artifacts.
func Save(cacheDir string, idx *Index) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(cacheDir, ".models.json.tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, indexPath(cacheDir))
}

// Upsert records rec as installed, replacing any existing entry for the
// same (modelId, version), and returns the updated Index. If rec.Active is
// set, every other version of the same model is demoted to inactive,
// mirroring the single "active" pointer semantics of §3's OnDiskLayout.
func Upsert(cacheDir string, rec LocalModel) (*Index, error) {
	idx, err := Load(cacheDir)
	if err != nil {
		return nil, err
	}

	replaced := false
	for i := range idx.Models {
		if idx.Models[i].ModelID == rec.ModelID && idx.Models[i].Version == rec.Version {
			idx.Models[i] = rec
			replaced = true
			continue
		}
		if rec.Active && idx.Models[i].ModelID == rec.ModelID {
			idx.Models[i].Active = false
		}
	}
	if !replaced {
		idx.Models = append(idx.Models, rec)
	}
	sort.Slice(idx.Models, func(i, j int) bool {
		if idx.Models[i].ModelID != idx.Models[j].ModelID {
			return idx.Models[i].ModelID < idx.Models[j].ModelID
		}
		return idx.Models[i].Version < idx.Models[j].Version
	})

	if err := Save(cacheDir, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Remove deletes the (modelId, version) entry from the index, if present.
func Remove(cacheDir, modelID, version string) (*Index, error) {
	idx, err := Load(cacheDir)
	if err != nil {
		return nil, err
	}
	kept := idx.Models[:0]
	for _, m := range idx.Models {
		if m.ModelID == modelID && m.Version == version {
			continue
		}
		kept = append(kept, m)
	}
	idx.Models = kept
	if err := Save(cacheDir, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ByModelID returns every installed version of modelID, in version order.
func (idx *Index) ByModelID(modelID string) []LocalModel {
	var out []LocalModel
	for _, m := range idx.Models {
		if m.ModelID == modelID {
			out = append(out, m)
		}
	}
	return out
}
