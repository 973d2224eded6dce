package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrt/corerun/pkg/hostprobe"
	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/modelerror"
)

func llamaItem(sizeBytes int64) *manifest.ModelItem {
	return &manifest.ModelItem{
		ID:            "llama3.1-8b-q4km",
		Type:          manifest.TypeLLM,
		Version:       "1.0.0",
		BackendHints:  []string{"llama.cpp"},
		Platforms:     []string{"linux", "darwin"},
		Quantization:  "Q5_K_M",
		ContextLength: 8192,
		Variants:      []string{"Q5_K_M", "Q4_K_M", "Q3_K_M"},
		MaxGpuLayers:  32,
		RequiredArtifacts: []manifest.Artifact{
			{Name: "model.gguf", Role: manifest.RoleModel, Format: "gguf", Path: "model.gguf", Size: sizeBytes, SHA256: "abc"},
		},
	}
}

func TestSelectDowngradeLadder(t *testing.T) {
	t.Parallel()

	// Baseline chosen so Q5_K_M@8192 needs ~5GiB and only downgrading both
	// quantization and contextLength fits within 3GiB available, mirroring
	// the scenario in the spec: Q5_K_M/8192 -> Q4_K_M/4096.
	const fiveGiB = int64(5) << 30
	item := llamaItem(int64(float64(fiveGiB) / 1.2))

	probe := hostprobe.NewFake().WithBackend("llama.cpp")
	probe.AvailableMem = 3 << 30

	report := Select(item, probe, Hints{Platform: "linux"})

	require.Nil(t, report.FinalDecision.Error)
	assert.Equal(t, "llama.cpp", report.FinalDecision.Backend)
	assert.Equal(t, "cpu", report.FinalDecision.Provider)
	assert.Equal(t, 0, report.FinalDecision.GpuLayers)
	assert.Equal(t, probe.CPUCount()-1, report.FinalDecision.Threads)

	require.Len(t, report.DowngradeSteps, 2)
	assert.Equal(t, DowngradeStep{"quantization", "Q5_K_M", "Q4_K_M"}, report.DowngradeSteps[0])
	assert.Equal(t, DowngradeStep{"contextLength", "8192", "4096"}, report.DowngradeSteps[1])
}

func TestSelectNoDowngradeWhenPlentyOfMemory(t *testing.T) {
	t.Parallel()

	item := llamaItem(1 << 20)
	probe := hostprobe.NewFake().WithBackend("llama.cpp")
	probe.AvailableMem = 64 << 30

	report := Select(item, probe, Hints{Platform: "linux"})

	require.Nil(t, report.FinalDecision.Error)
	assert.Empty(t, report.DowngradeSteps)
	assert.Equal(t, "Q5_K_M", report.FinalDecision.Quantization)
	assert.Equal(t, 8192, report.FinalDecision.ContextLength)
}

func TestSelectUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	item := llamaItem(1 << 20)
	probe := hostprobe.NewFake().WithBackend("llama.cpp")

	report := Select(item, probe, Hints{Platform: "android"})

	require.NotNil(t, report.FinalDecision.Error)
	assert.Equal(t, modelerror.UnsupportedPlatform, report.FinalDecision.Error.Code)
}

func TestSelectRuntimeNotAvailableWhenBackendNotInstalled(t *testing.T) {
	t.Parallel()

	item := llamaItem(1 << 20)
	probe := hostprobe.NewFake() // no backends installed

	report := Select(item, probe, Hints{Platform: "linux"})

	require.NotNil(t, report.FinalDecision.Error)
	assert.Equal(t, modelerror.RuntimeNotAvailable, report.FinalDecision.Error.Code)
}

func TestSelectPrefersAccelerationWhenStable(t *testing.T) {
	t.Parallel()

	item := llamaItem(1 << 20)
	probe := hostprobe.NewFake().WithBackend("llama.cpp").WithAccel("llama.cpp", "coreml", true)
	probe.AvailableMem = 64 << 30

	report := Select(item, probe, Hints{Platform: "darwin"})

	require.Nil(t, report.FinalDecision.Error)
	assert.Equal(t, "coreml", report.FinalDecision.Provider)
	assert.Equal(t, item.MaxGpuLayers, report.FinalDecision.GpuLayers)
}

func TestSelectDeterministic(t *testing.T) {
	t.Parallel()

	item := llamaItem(1 << 20)
	probe := hostprobe.NewFake().WithBackend("llama.cpp")
	probe.AvailableMem = 64 << 30

	r1 := Select(item, probe, Hints{Platform: "linux"})
	r2 := Select(item, probe, Hints{Platform: "linux"})

	assert.Equal(t, r1.FinalDecision, r2.FinalDecision)
	assert.Equal(t, r1.DowngradeSteps, r2.DowngradeSteps)
}
