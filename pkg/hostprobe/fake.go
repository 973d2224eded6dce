package hostprobe

// Fake is a deterministic Probe implementation for tests, following the
// pack's convention of hand-written fakes over generated mocks.
type Fake struct {
	CPUs          int
	AvailableMem  uint64
	Backends      map[string]bool
	AccelProvider map[string]fakeAccel
	Plat          string
}

type fakeAccel struct {
	provider string
	stable   bool
}

// NewFake returns a Fake with sane non-zero defaults (4 CPUs, 8GiB available,
// no backends installed, no acceleration, platform "linux").
func NewFake() *Fake {
	return &Fake{
		CPUs:          4,
		AvailableMem:  8 << 30,
		Backends:      map[string]bool{},
		AccelProvider: map[string]fakeAccel{},
		Plat:          "linux",
	}
}

// WithBackend marks backend as installed.
func (f *Fake) WithBackend(backend string) *Fake {
	f.Backends[backend] = true
	return f
}

// WithAccel configures AccelAvailable(backend) to return (provider, stable).
func (f *Fake) WithAccel(backend, provider string, stable bool) *Fake {
	f.AccelProvider[backend] = fakeAccel{provider: provider, stable: stable}
	return f
}

func (f *Fake) CPUCount() int                   { return f.CPUs }
func (f *Fake) AvailableMemoryBytes() uint64    { return f.AvailableMem }
func (f *Fake) Platform() string                { return f.Plat }

func (f *Fake) InstalledBackends() map[string]bool {
	out := make(map[string]bool, len(f.Backends))
	for k, v := range f.Backends {
		out[k] = v
	}
	return out
}

func (f *Fake) AccelAvailable(backend string) (string, bool) {
	if a, ok := f.AccelProvider[backend]; ok {
		return a.provider, a.stable
	}
	return "cpu", true
}
