// Package modelerror defines the closed taxonomy of errors produced by the
// runtime, shared across the manifest, install, selector, scheduler, and
// stream packages so that callers can branch on a stable Code rather than
// parsing messages.
package modelerror

import (
	"errors"
	"fmt"
)

// Code is one of the closed set of stable error identifiers.
type Code string

const (
	ModelNotFound       Code = "MODEL_NOT_FOUND"
	ModelVerifyFailed   Code = "MODEL_VERIFY_FAILED"
	RuntimeNotAvailable Code = "RUNTIME_NOT_AVAILABLE"
	UnsupportedPlatform Code = "UNSUPPORTED_PLATFORM"
	InsufficientMemory  Code = "INSUFFICIENT_MEMORY"
	TaskTimeout         Code = "TASK_TIMEOUT"
	TaskCancelled       Code = "TASK_CANCELLED"
	DownloadFailed      Code = "DOWNLOAD_FAILED"
	InvalidModelFormat  Code = "INVALID_MODEL_FORMAT"
	ConfigError         Code = "CONFIG_ERROR"
)

// retriable records which codes are retriable per the taxonomy table.
var retriable = map[Code]bool{
	ModelNotFound:       false,
	ModelVerifyFailed:   true,
	RuntimeNotAvailable: true,
	UnsupportedPlatform: false,
	InsufficientMemory:  true,
	TaskTimeout:         true,
	TaskCancelled:       true,
	DownloadFailed:      true,
	InvalidModelFormat:  false,
	ConfigError:         false,
}

// Error is the structured error type used throughout the runtime. It
// carries enough context for both programmatic handling (Code) and
// human-facing diagnostics (Details, Suggestion).
type Error struct {
	Code       Code
	Message    string
	Details    map[string]any
	Suggestion string
	Cause      error
}

// Option configures an Error at construction time.
type Option func(*Error)

// WithDetails attaches structured diagnostic context to the error.
func WithDetails(details map[string]any) Option {
	return func(e *Error) {
		if e.Details == nil {
			e.Details = make(map[string]any, len(details))
		}
		for k, v := range details {
			e.Details[k] = v
		}
	}
}

// WithDetail attaches a single key/value pair of diagnostic context.
func WithDetail(key string, value any) Option {
	return func(e *Error) {
		if e.Details == nil {
			e.Details = make(map[string]any, 1)
		}
		e.Details[key] = value
	}
}

// WithSuggestion attaches human-facing remediation text.
func WithSuggestion(suggestion string) Option {
	return func(e *Error) {
		e.Suggestion = suggestion
	}
}

// WithCause wraps an underlying error for errors.Unwrap/errors.Is chains.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.Cause = cause
	}
}

// New constructs an Error with the given code and message, applying options.
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retriable reports whether an operation that produced this error is safe
// to retry, per the closed taxonomy table. Unknown codes are treated as
// non-retriable defensively.
func (e *Error) Retriable() bool {
	return retriable[e.Code]
}

// Is allows errors.Is(err, modelerror.New(code, "")) to match purely on Code,
// so callers can use sentinel-style comparisons without constructing a full
// Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error, and the
// zero value otherwise.
func CodeOf(err error) (Code, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Code, true
	}
	return "", false
}

// IsRetriable reports whether err is a *Error marked retriable. Non-Error
// values are treated as non-retriable.
func IsRetriable(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Retriable()
	}
	return false
}
