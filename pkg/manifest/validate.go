package manifest

import (
	"fmt"

	"github.com/modelrt/corerun/pkg/modelerror"
)

// knownBackends lists the backend tags the selector knows how to dispatch
// to. A manifest referencing any other backend in backendHints fails I4.
var knownBackends = map[string]bool{
	"llama.cpp": true,
	"onnx":      true,
	"whisper":   true,
	"vosk":      true,
	"mediapipe": true,
}

// validContextLengths is the fixed downgrade ladder domain (I3).
var validContextLengths = map[int]bool{
	8192: true,
	4096: true,
	2048: true,
}

func invalidFormat(message string, cause error) *modelerror.Error {
	opts := []modelerror.Option{}
	if cause != nil {
		opts = append(opts, modelerror.WithCause(cause))
	}
	return modelerror.New(modelerror.InvalidModelFormat, message, opts...)
}

// Validate checks manifest invariants I1-I4. A violation is the only class
// of error permitted to abort the core process itself per the error
// handling design, so callers of Parse should treat a non-nil error as fatal
// unless they have a reason to tolerate a partially invalid manifest.
func Validate(m *Manifest) error {
	seen := make(map[string]bool, len(m.Models))

	for i, item := range m.Models {
		// I1: ids unique per manifest.
		if item.ID == "" {
			return invalidFormat(fmt.Sprintf("model item %d: empty id", i), nil)
		}
		if seen[item.ID] {
			return invalidFormat(fmt.Sprintf("duplicate model id %q", item.ID), nil)
		}
		seen[item.ID] = true

		if !item.Type.Valid() {
			return invalidFormat(fmt.Sprintf("model %q: unknown type %q", item.ID, item.Type), nil)
		}

		if len(item.RequiredArtifacts) == 0 {
			return invalidFormat(fmt.Sprintf("model %q: requiredArtifacts must be non-empty", item.ID), nil)
		}

		// I2: every required artifact has non-empty sha256.
		for _, a := range item.RequiredArtifacts {
			if a.SHA256 == "" {
				return invalidFormat(fmt.Sprintf("model %q: artifact %q missing sha256", item.ID, a.Name), nil)
			}
			if !a.Role.Valid() {
				return invalidFormat(fmt.Sprintf("model %q: artifact %q has unknown role %q", item.ID, a.Name, a.Role), nil)
			}
		}

		// I3: contextLength, when present, must be a ladder rung.
		if item.ContextLength != 0 && !validContextLengths[item.ContextLength] {
			return invalidFormat(fmt.Sprintf("model %q: contextLength %d is not one of 8192, 4096, 2048", item.ID, item.ContextLength), nil)
		}

		// I4: backendHints[i] names a backend the selector knows.
		for _, hint := range item.BackendHints {
			if !knownBackends[hint] {
				return invalidFormat(fmt.Sprintf("model %q: backendHints references unknown backend %q", item.ID, hint), nil)
			}
		}
	}

	return nil
}
