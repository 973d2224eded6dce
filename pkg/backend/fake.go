package backend

import (
	"context"

	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/modelerror"
	"github.com/modelrt/corerun/pkg/stream"
)

// Fake is a hand-written test double implementing Adapter, following the
// scheduler and hostprobe packages' preference for explicit fakes over
// generated mocks.
type Fake struct {
	NameValue      string
	Platforms      map[string]bool
	AccelProvider  string
	AccelStable    bool
	LoadErr        error
	Deltas         []string
	FinishReason   stream.FinishReason
	InvokeResponse Response
	InvokeErr      error

	Loaded   int
	Unloaded int
}

// NewFake returns a Fake answering to name, supporting every platform by
// default, with no acceleration.
func NewFake(name string) *Fake {
	return &Fake{NameValue: name, FinishReason: stream.FinishEOS}
}

func (f *Fake) Name() string { return f.NameValue }

func (f *Fake) SupportsPlatform(platform string) bool {
	if f.Platforms == nil {
		return true
	}
	return f.Platforms[platform]
}

func (f *Fake) ProbeAcceleration(ctx context.Context) (string, bool) {
	return f.AccelProvider, f.AccelStable
}

func (f *Fake) Load(ctx context.Context, item *manifest.ModelItem, params LoadParams) (Handle, error) {
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	f.Loaded++
	return "fake-handle", nil
}

func (f *Fake) Unload(ctx context.Context, handle Handle) error {
	f.Unloaded++
	return nil
}

func (f *Fake) Stream(ctx context.Context, handle Handle, prompt string, params GenerationParams) (<-chan stream.RawEvent, error) {
	out := make(chan stream.RawEvent, len(f.Deltas)+1)
	for _, d := range f.Deltas {
		out <- stream.RawEvent{Text: d}
	}
	out <- stream.RawEvent{Done: true, FinishReason: f.FinishReason}
	close(out)
	return out, nil
}

func (f *Fake) Invoke(ctx context.Context, handle Handle, req Request) (Response, error) {
	if f.InvokeErr != nil {
		return Response{}, f.InvokeErr
	}
	return f.InvokeResponse, nil
}

var _ Adapter = (*Fake)(nil)

// ErrFakeNotConfigured is a ready-made modelerror for tests exercising the
// load-failure path.
var ErrFakeNotConfigured = modelerror.New(modelerror.RuntimeNotAvailable, "fake backend not configured")
