// Package install implements the install pipeline (C3): single-flight
// download, atomic verify-then-swap, and a phase-tracked state machine that
// emits a lazy sequence of progress events culminating in exactly one
// terminal event.
package install

import (
	"context"
	"io"

	"github.com/modelrt/corerun/pkg/modelerror"
)

// Phase is a state in the install state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseVerifying   Phase = "verifying"
	PhaseExtracting  Phase = "extracting"
	PhaseReady       Phase = "ready"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// Terminal reports whether p is one of the three terminal phases.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseFailed || p == PhaseCancelled
}

// Progress is one event in an install's lazy event sequence.
type Progress struct {
	ModelID       string
	Version       string
	RequestID     string
	Phase         Phase
	ReceivedBytes int64
	TotalBytes    int64
	// Progress is in [0,1], computed from the downloading phase alone;
	// verifying and extracting report 1.0 for the remainder of their phase.
	Progress float64
	Error    *modelerror.Error
}

// FetchFunc opens a readable stream for the artifact at url. The returned
// ReadCloser is read to EOF and closed by the caller. totalBytes may be -1
// if unknown in advance.
type FetchFunc func(ctx context.Context, url string) (body io.ReadCloser, totalBytes int64, err error)
