// Package backend defines the narrow interface every inference backend
// (C7) implements, and a registry for looking adapters up by name.
package backend

import (
	"context"

	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/stream"
)

// LoadParams configures a model load.
type LoadParams struct {
	ModelPath     string
	MmprojPath    string
	ContextLength int
	GpuLayers     int
	Threads       int
	Quantization  string
}

// Handle is an opaque loaded-session reference returned by Load and
// consumed by Unload and every task-specific operation.
type Handle any

// GenerationParams configures one LLM stream call.
type GenerationParams struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	StopStrings       []string
}

// Request is a generic, task-specific request payload for the non-LLM task
// types (OCR/STT/TTS/Embedding). Adapters type-assert Input to whatever
// shape their task expects.
type Request struct {
	Input any
}

// Response is the generic result of a non-LLM task-specific operation.
type Response struct {
	Output any
}

// Adapter is the interface every inference backend implements. Adapters
// return errors from the modelerror taxonomy, never ad hoc errors, so
// callers can branch on modelerror.CodeOf uniformly regardless of which
// backend ran.
type Adapter interface {
	// Name is the backend tag this adapter answers to, matching the
	// manifest's backendHints values (e.g. "llama.cpp").
	Name() string

	// SupportsPlatform reports whether this adapter can run at all on the
	// given platform string (e.g. "linux/amd64").
	SupportsPlatform(platform string) bool

	// ProbeAcceleration reports the hardware-acceleration provider this
	// adapter would use on the current host, and whether that provider is
	// considered stable enough to prefer over CPU fallback.
	ProbeAcceleration(ctx context.Context) (provider string, stable bool)

	// Load prepares a session for item using params, returning a handle
	// that must be passed to every subsequent operation and eventually to
	// Unload.
	Load(ctx context.Context, item *manifest.ModelItem, params LoadParams) (Handle, error)

	// Unload releases every resource associated with handle.
	Unload(ctx context.Context, handle Handle) error

	// Stream runs LLM generation, returning a channel of raw deltas
	// terminated by exactly one RawEvent with Done set. Cancelling ctx
	// must cause generation to stop and the channel to close promptly.
	Stream(ctx context.Context, handle Handle, prompt string, params GenerationParams) (<-chan stream.RawEvent, error)

	// Invoke performs one request/response task-specific operation (OCR,
	// STT, TTS, or Embedding). Cancelling ctx must abort the operation.
	Invoke(ctx context.Context, handle Handle, req Request) (Response, error)
}
