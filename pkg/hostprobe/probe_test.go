package hostprobe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeDefaults(t *testing.T) {
	t.Parallel()

	f := NewFake()
	assert.Equal(t, 4, f.CPUCount())
	assert.Equal(t, uint64(8<<30), f.AvailableMemoryBytes())
	assert.Empty(t, f.InstalledBackends())

	provider, stable := f.AccelAvailable("llama.cpp")
	assert.Equal(t, "cpu", provider)
	assert.True(t, stable)
}

func TestFakeWithBackendAndAccel(t *testing.T) {
	t.Parallel()

	f := NewFake().WithBackend("llama.cpp").WithAccel("llama.cpp", "coreml", true)

	assert.True(t, f.InstalledBackends()["llama.cpp"])
	provider, stable := f.AccelAvailable("llama.cpp")
	assert.Equal(t, "coreml", provider)
	assert.True(t, stable)
}

func TestHostProbeCPUCountPositive(t *testing.T) {
	t.Parallel()

	p := New(map[string]bool{"llama.cpp": true})
	assert.Greater(t, p.CPUCount(), 0)
	assert.True(t, p.InstalledBackends()["llama.cpp"])
}
