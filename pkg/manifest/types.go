// Package manifest models the declarative model manifest: the typed data
// plane that the install pipeline, runtime selector, and core orchestrator
// all read from. Manifests are parsed once and treated as shared-immutable
// thereafter.
package manifest

import (
	"encoding/json"
	"time"
)

// ModelType enumerates the supported model task types.
type ModelType string

const (
	TypeLLM            ModelType = "llm"
	TypeEmbedding      ModelType = "embedding"
	TypeOCR            ModelType = "ocr"
	TypeSTT            ModelType = "stt"
	TypeTTS            ModelType = "tts"
	TypeClassification ModelType = "classification"
	TypeCustom         ModelType = "custom"
)

// String implements fmt.Stringer.
func (t ModelType) String() string {
	return string(t)
}

// Valid reports whether t is one of the known model types.
func (t ModelType) Valid() bool {
	switch t {
	case TypeLLM, TypeEmbedding, TypeOCR, TypeSTT, TypeTTS, TypeClassification, TypeCustom:
		return true
	default:
		return false
	}
}

// ArtifactRole enumerates the purpose of an artifact file within a model item.
type ArtifactRole string

const (
	RoleModel     ArtifactRole = "model"
	RoleTokenizer ArtifactRole = "tokenizer"
	RoleConfig    ArtifactRole = "config"
	RoleVocab     ArtifactRole = "vocab"
	RoleAdapter   ArtifactRole = "adapter"
)

// Valid reports whether r is one of the known artifact roles.
func (r ArtifactRole) Valid() bool {
	switch r {
	case RoleModel, RoleTokenizer, RoleConfig, RoleVocab, RoleAdapter:
		return true
	default:
		return false
	}
}

// Artifact is a single file referenced by a ModelItem.
type Artifact struct {
	Name   string       `json:"name"`
	Role   ArtifactRole `json:"role"`
	Format string       `json:"format"`
	Path   string       `json:"path"`
	Size   int64        `json:"size"`
	SHA256 string       `json:"sha256"`

	// Extra holds the unknown fields Parse captured. It is tagged json:"-",
	// so encoding the struct with encoding/json does not write them back.
	Extra map[string]json.RawMessage `json:"-"`
}

// GenerationConfig holds default sampling parameters for a model item.
type GenerationConfig struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"topP,omitempty"`
	TopK              *int     `json:"topK,omitempty"`
	MaxNewTokens      *int     `json:"maxNewTokens,omitempty"`
	RepetitionPenalty *float64 `json:"repetitionPenalty,omitempty"`
}

// ModelItem is a single entry in a manifest.
type ModelItem struct {
	ID      string    `json:"id"`
	Type    ModelType `json:"type"`
	Version string    `json:"version"`

	// BackendHints is an ordered preference list, not a set: order matters.
	BackendHints []string `json:"backendHints"`
	Platforms    []string `json:"platforms"`

	MinSdkVersion     map[string]string `json:"minSdkVersion,omitempty"`
	MinBackendVersion map[string]string `json:"minBackendVersion,omitempty"`

	Quantization  string  `json:"quantization,omitempty"`
	ContextLength int     `json:"contextLength,omitempty"`
	RopeScaling   string  `json:"ropeScaling,omitempty"`
	RopeTheta     float64 `json:"ropeTheta,omitempty"`
	MaxGpuLayers  int     `json:"maxGpuLayers,omitempty"`

	DefaultGenerationConfig *GenerationConfig `json:"defaultGenerationConfig,omitempty"`
	ChatTemplate            string            `json:"chatTemplate,omitempty"`
	SpecialTokens           map[string]string `json:"specialTokens,omitempty"`

	// Variants lists explicit quantization alternatives usable by the
	// downgrade ladder. Runtime string guessing of quantizations outside
	// this list is forbidden.
	Variants []string `json:"variants,omitempty"`

	RequiredArtifacts []Artifact `json:"requiredArtifacts"`
	OptionalArtifacts []Artifact `json:"optionalArtifacts,omitempty"`

	// Extra holds the unknown fields Parse captured. It is tagged json:"-",
	// so encoding the struct with encoding/json does not write them back.
	Extra map[string]json.RawMessage `json:"-"`
}

// AllArtifacts returns required and optional artifacts combined, required first.
func (m *ModelItem) AllArtifacts() []Artifact {
	all := make([]Artifact, 0, len(m.RequiredArtifacts)+len(m.OptionalArtifacts))
	all = append(all, m.RequiredArtifacts...)
	all = append(all, m.OptionalArtifacts...)
	return all
}

// SupportsPlatform reports whether platform is listed in m.Platforms.
func (m *ModelItem) SupportsPlatform(platform string) bool {
	for _, p := range m.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// Manifest is the root document describing every known model item.
type Manifest struct {
	SchemaVersion  string      `json:"schemaVersion"`
	ContentVersion string      `json:"contentVersion"`
	GeneratedAt    time.Time   `json:"generatedAt"`
	Models         []ModelItem `json:"models"`

	// Extra holds the unknown top-level fields Parse captured. It is tagged
	// json:"-", so encoding the struct with encoding/json does not write
	// them back.
	Extra map[string]json.RawMessage `json:"-"`
}
