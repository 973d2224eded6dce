// Package envconfig centralizes environment-variable configuration for the
// runtime, following the lazy-accessor pattern used throughout the rest of
// this codebase: each setting is a small function read at call time (not
// cached at startup), so tests can mutate the environment freely.
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/modelrt/corerun/pkg/logging"
)

// Var returns an environment variable stripped of leading/trailing quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// String returns a lazy string accessor for the given environment variable.
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// BoolWithDefault returns a lazy bool accessor for the given environment
// variable, allowing a caller-specified default. If the variable is set but
// cannot be parsed as a bool, the defaultValue is returned.
func BoolWithDefault(key string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return defaultValue
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a lazy bool accessor that defaults to false when the variable is unset.
func Bool(key string) func() bool {
	withDefault := BoolWithDefault(key)
	return func() bool {
		return withDefault(false)
	}
}

// IntWithDefault returns a lazy int accessor with a caller-specified default.
func IntWithDefault(key string) func(defaultValue int) int {
	return func(defaultValue int) int {
		if s := Var(key); s != "" {
			n, err := strconv.Atoi(s)
			if err == nil {
				return n
			}
		}
		return defaultValue
	}
}

// BytesWithDefault returns a lazy byte-count accessor parsed with
// docker/go-units' human-readable size grammar (e.g. "10GB", "512MiB").
func BytesWithDefault(key string) func(defaultValue int64) int64 {
	return func(defaultValue int64) int64 {
		if s := Var(key); s != "" {
			if n, err := units.RAMInBytes(s); err == nil {
				return n
			}
		}
		return defaultValue
	}
}

// LogLevel reads MODELRT_LOG_LEVEL and returns the corresponding slog.Level.
func LogLevel() slog.Level {
	return logging.ParseLevel(Var("MODELRT_LOG_LEVEL"))
}

// CacheDir returns the root directory under which installed model versions
// are stored (the on-disk layout root from §6 of the spec).
// Configured via MODELRT_CACHE_DIR; defaults to ~/.cache/modelrt.
func CacheDir() (string, error) {
	if s := Var("MODELRT_CACHE_DIR"); s != "" {
		return s, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "modelrt"), nil
}

// ManifestPath returns the path to the model manifest JSON document.
// Configured via MODELRT_MANIFEST_PATH; defaults to "manifest.json" in the
// current working directory.
func ManifestPath() string {
	if s := Var("MODELRT_MANIFEST_PATH"); s != "" {
		return s
	}
	return "manifest.json"
}

// MaxCacheBytes returns the LRU eviction threshold for the cache directory.
// Configured via MODELRT_MAX_CACHE_BYTES (human-readable size, e.g. "20GB");
// defaults to 20 GiB.
var MaxCacheBytes = BytesWithDefault("MODELRT_MAX_CACHE_BYTES")

// MaxTotalConcurrent returns the scheduler's total worker pool size.
// Configured via MODELRT_MAX_TOTAL_CONCURRENT; defaults to 4.
var MaxTotalConcurrent = IntWithDefault("MODELRT_MAX_TOTAL_CONCURRENT")

// DisableMetrics is true when MODELRT_DISABLE_METRICS is set to a truthy value.
// Only modelctl config reports it; no component reads it, and metrics are
// collected and printed regardless.
var DisableMetrics = Bool("MODELRT_DISABLE_METRICS")

// DisableTracing is true when MODELRT_DISABLE_TRACING is set to a truthy value.
// Only modelctl config reports it; no component reads it, and scheduler
// spans are started regardless.
var DisableTracing = Bool("MODELRT_DISABLE_TRACING")

// DownloadTimeout returns the timeout modelctl install applies to one whole
// install run, covering every artifact of the model together.
// Configured via MODELRT_DOWNLOAD_TIMEOUT (Go duration string); defaults to 10 minutes.
func DownloadTimeout() time.Duration {
	if s := Var("MODELRT_DOWNLOAD_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return 10 * time.Minute
}

// EnvVar describes a single environment variable with its current value and
// a human-readable description.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns a map of all runtime environment variables with their
// current values and descriptions. Useful for introspection (modelctl config).
func AsMap() map[string]EnvVar {
	cacheDir, _ := CacheDir()
	return map[string]EnvVar{
		"MODELRT_CACHE_DIR":            {"MODELRT_CACHE_DIR", cacheDir, "Root directory for installed model versions (default: ~/.cache/modelrt)"},
		"MODELRT_MANIFEST_PATH":        {"MODELRT_MANIFEST_PATH", ManifestPath(), "Path to the model manifest JSON document (default: manifest.json)"},
		"MODELRT_MAX_CACHE_BYTES":      {"MODELRT_MAX_CACHE_BYTES", MaxCacheBytes(20 * units.GiB), "LRU eviction threshold for the cache directory (default: 20GiB)"},
		"MODELRT_MAX_TOTAL_CONCURRENT": {"MODELRT_MAX_TOTAL_CONCURRENT", MaxTotalConcurrent(4), "Scheduler worker pool size (default: 4)"},
		"MODELRT_DOWNLOAD_TIMEOUT":     {"MODELRT_DOWNLOAD_TIMEOUT", DownloadTimeout().String(), "Timeout for one whole install run, all artifacts together (default: 10m)"},
		"MODELRT_DISABLE_METRICS":      {"MODELRT_DISABLE_METRICS", DisableMetrics(), "Reported here only; no component reads it (any truthy value)"},
		"MODELRT_DISABLE_TRACING":      {"MODELRT_DISABLE_TRACING", DisableTracing(), "Reported here only; no component reads it (any truthy value)"},
		"MODELRT_LOG_LEVEL":            {"MODELRT_LOG_LEVEL", LogLevel().String(), "Log verbosity: debug, info, warn, error (default: info)"},
		"MODELRT_LLAMA_SERVER_BIN":     {"MODELRT_LLAMA_SERVER_BIN", Var("MODELRT_LLAMA_SERVER_BIN"), "Path to a llama-server binary; enables the llama.cpp adapter when set"},
		"MODELRT_BASE_URL":             {"MODELRT_BASE_URL", Var("MODELRT_BASE_URL"), "Base URL artifact relative paths are resolved against during install"},
	}
}
