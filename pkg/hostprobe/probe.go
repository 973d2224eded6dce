// Package hostprobe answers static host-capability questions the runtime
// selector needs: CPU count, available memory, which backends are
// installed, and whether hardware acceleration is available and stable for
// a given backend. It deliberately has no knowledge of any particular
// model; it only describes the machine.
package hostprobe

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Probe answers the static host-capability questions the selector needs.
// Implementations must be safe for concurrent use; the selector is purely
// functional over a Probe snapshot and must not mutate it.
type Probe interface {
	// CPUCount returns the number of logical CPUs available to the process.
	CPUCount() int
	// AvailableMemoryBytes returns currently available (not total) system memory.
	AvailableMemoryBytes() uint64
	// InstalledBackends reports which backend tags have a working adapter installed.
	InstalledBackends() map[string]bool
	// AccelAvailable returns the acceleration provider for backend on this
	// host (e.g. "coreml", "nnapi", or a detected GPU vendor) and whether that
	// provider is marked stable for production use. When no accelerator is
	// available it returns ("cpu", true).
	AccelAvailable(backend string) (provider string, stable bool)
	// Platform returns the host platform tag used against ModelItem.Platforms
	// (e.g. "linux", "darwin", "android", "ios", "windows").
	Platform() string
}

// HostProbe is the production Probe backed by gopsutil and the build-tagged
// GPU detection in this package.
type HostProbe struct {
	backends map[string]bool
}

// New constructs a HostProbe that reports installed as backends present in
// the supplied set (typically populated from backend.Registry).
func New(installedBackends map[string]bool) *HostProbe {
	backends := make(map[string]bool, len(installedBackends))
	for k, v := range installedBackends {
		backends[k] = v
	}
	return &HostProbe{backends: backends}
}

func (p *HostProbe) CPUCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (p *HostProbe) AvailableMemoryBytes() uint64 {
	vm, err := mem.VirtualMemoryWithContext(context.Background())
	if err != nil || vm == nil {
		return 0
	}
	return vm.Available
}

func (p *HostProbe) InstalledBackends() map[string]bool {
	out := make(map[string]bool, len(p.backends))
	for k, v := range p.backends {
		out[k] = v
	}
	return out
}

func (p *HostProbe) Platform() string {
	return runtime.GOOS
}

func (p *HostProbe) AccelAvailable(backend string) (string, bool) {
	switch runtime.GOOS {
	case "darwin":
		if backend == "llama.cpp" || backend == "onnx" {
			return "coreml", true
		}
	case "android":
		if backend == "onnx" {
			return "nnapi", true
		}
	case "linux", "windows":
		if vendor, ok := supportedGPUAvailable(); ok {
			return vendor, true
		}
	}
	return "cpu", true
}
