package install

import (
	"os"
	"path/filepath"
	"sort"
)

// versionInfo describes one installed (modelId, version) directory for LRU
// eviction purposes.
type versionInfo struct {
	modelID    string
	version    string
	dir        string
	sizeBytes  int64
	modTime    int64
	isActive   bool
	isReady    bool
}

// EvictLRU removes least-recently-used ready (non-active) version
// directories under cacheDir until totalBytes is at or below maxBytes, or
// until no evictable directory remains. The currently activated version of
// any model is never removed.
func EvictLRU(cacheDir string, maxBytes int64) error {
	versions, total, err := scanVersions(cacheDir)
	if err != nil {
		return err
	}
	if total <= maxBytes {
		return nil
	}

	evictable := make([]versionInfo, 0, len(versions))
	for _, v := range versions {
		if v.isReady && !v.isActive {
			evictable = append(evictable, v)
		}
	}
	sort.Slice(evictable, func(i, j int) bool {
		return evictable[i].modTime < evictable[j].modTime
	})

	for _, v := range evictable {
		if total <= maxBytes {
			break
		}
		if err := os.RemoveAll(v.dir); err != nil {
			return err
		}
		total -= v.sizeBytes
	}
	return nil
}

func scanVersions(cacheDir string) ([]versionInfo, int64, error) {
	modelDirs, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var versions []versionInfo
	var total int64

	for _, md := range modelDirs {
		if !md.IsDir() {
			continue
		}
		modelID := md.Name()
		modelPath := filepath.Join(cacheDir, modelID)

		active := readActivePointer(modelPath)

		versionDirs, err := os.ReadDir(modelPath)
		if err != nil {
			continue
		}
		for _, vd := range versionDirs {
			if !vd.IsDir() {
				continue
			}
			version := vd.Name()
			dir := filepath.Join(modelPath, version)

			size, modTime := dirStats(dir)
			ready := fileExists(filepath.Join(dir, ".ready"))

			versions = append(versions, versionInfo{
				modelID:   modelID,
				version:   version,
				dir:       dir,
				sizeBytes: size,
				modTime:   modTime,
				isActive:  version == active,
				isReady:   ready,
			})
			total += size
		}
	}
	return versions, total, nil
}

func readActivePointer(modelPath string) string {
	data, err := os.ReadFile(filepath.Join(modelPath, "active"))
	if err != nil {
		return ""
	}
	return string(data)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirStats(dir string) (size int64, modTime int64) {
	var latest int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		size += info.Size()
		if t := info.ModTime().Unix(); t > latest {
			latest = t
		}
		return nil
	})
	return size, latest
}

// CleanOrphans removes *.tmp.* files and .stage/ directories left behind by
// a process crash mid-install, and deletes any version directory lacking
// .ready, per the on-init garbage collection rule.
func CleanOrphans(cacheDir string) error {
	modelDirs, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, md := range modelDirs {
		if !md.IsDir() {
			continue
		}
		modelPath := filepath.Join(cacheDir, md.Name())
		versionDirs, err := os.ReadDir(modelPath)
		if err != nil {
			continue
		}
		for _, vd := range versionDirs {
			if !vd.IsDir() {
				continue
			}
			dir := filepath.Join(modelPath, vd.Name())
			if err := cleanOrphansIn(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func cleanOrphansIn(dir string) error {
	stage := filepath.Join(dir, ".stage")
	if fileExists(stage) {
		if err := os.RemoveAll(stage); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if matchesTmpPattern(e.Name()) {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}

	if !fileExists(filepath.Join(dir, ".ready")) {
		return os.RemoveAll(dir)
	}
	return nil
}

func matchesTmpPattern(name string) bool {
	const marker = ".tmp."
	for i := 0; i+len(marker) <= len(name); i++ {
		if name[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}
