package manifest

import (
	"github.com/modelrt/corerun/pkg/modelerror"
)

// ByID returns the model item with the given id, or a MODEL_NOT_FOUND error.
func (m *Manifest) ByID(id string) (*ModelItem, error) {
	for i := range m.Models {
		if m.Models[i].ID == id {
			return &m.Models[i], nil
		}
	}
	return nil, modelerror.New(modelerror.ModelNotFound, "no model with this id in manifest",
		modelerror.WithDetail("modelId", id))
}

// SupportsBackend reports whether backend appears anywhere in the item's
// backendHints, regardless of order.
func (m *ModelItem) SupportsBackend(backend string) bool {
	for _, b := range m.BackendHints {
		if b == backend {
			return true
		}
	}
	return false
}

// MinSdkFor returns the minimum SDK version required for platform, and
// whether one was declared.
func (m *ModelItem) MinSdkFor(platform string) (string, bool) {
	v, ok := m.MinSdkVersion[platform]
	return v, ok
}

// MinBackendVersionFor returns the minimum backend version required for
// backend, and whether one was declared.
func (m *ModelItem) MinBackendVersionFor(backend string) (string, bool) {
	v, ok := m.MinBackendVersion[backend]
	return v, ok
}

// ArtifactByRole returns the first required or optional artifact with the
// given role, or false if none is declared.
func (m *ModelItem) ArtifactByRole(role ArtifactRole) (Artifact, bool) {
	for _, a := range m.AllArtifacts() {
		if a.Role == role {
			return a, true
		}
	}
	return Artifact{}, false
}

// VariantsOrSelf returns the manifest-declared quantization variants list,
// or a single-element slice containing the item's own quantization if no
// variants list was declared. Runtime string guessing beyond this list is
// forbidden by the downgrade ladder contract.
func (m *ModelItem) VariantsOrSelf() []string {
	if len(m.Variants) > 0 {
		return m.Variants
	}
	if m.Quantization != "" {
		return []string{m.Quantization}
	}
	return nil
}
