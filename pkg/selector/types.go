// Package selector implements the runtime selector (C4): a deterministic,
// purely functional decision procedure over (manifest item, host capability
// probe, caller hints) that picks a backend, a hardware provider, and a set
// of resource parameters, applying a reproducible downgrade ladder when the
// host cannot satisfy the model's declared requirements.
package selector

import (
	"github.com/modelrt/corerun/pkg/modelerror"
)

// Candidate records one considered backend, accepted or rejected, with
// human-readable reason codes. This is the audit trail consumers display
// when selection fails. Select leaves Provider empty on every candidate;
// the chosen provider is reported only in FinalDecision.
type Candidate struct {
	Backend  string   `json:"backend"`
	Provider string   `json:"provider"`
	Accepted bool     `json:"accepted"`
	Reasons  []string `json:"reasons,omitempty"`
}

// DowngradeStep records one step taken along the fixed downgrade ladder.
type DowngradeStep struct {
	Dimension string `json:"dimension"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// FinalDecision is the outcome of selection: either a complete runnable
// configuration, or an Error describing why none could be found.
type FinalDecision struct {
	Backend       string `json:"backend,omitempty"`
	Provider      string `json:"provider,omitempty"`
	Quantization  string `json:"quantization,omitempty"`
	ContextLength int    `json:"contextLength,omitempty"`
	Threads       int    `json:"threads,omitempty"`
	GpuLayers     int    `json:"gpuLayers,omitempty"`

	Error *modelerror.Error `json:"error,omitempty"`
}

// SelectionReport is the diagnostic emitted by the runtime selector whenever
// selection runs, whether it succeeds or fails.
type SelectionReport struct {
	RequestID      string          `json:"requestId"`
	Candidates     []Candidate     `json:"candidates"`
	DowngradeSteps []DowngradeStep `json:"downgradeSteps"`
	FinalDecision  FinalDecision   `json:"finalDecision"`
}

// Hints carries optional caller preferences that narrow (but never widen)
// the decision the selector would otherwise make.
type Hints struct {
	// Platform overrides the host platform tag detected from the probe,
	// useful for cross-compilation or testing a specific platform's rules.
	Platform string
}
