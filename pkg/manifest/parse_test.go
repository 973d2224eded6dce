package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrt/corerun/pkg/modelerror"
)

const validManifestJSON = `{
	"schemaVersion": "1",
	"contentVersion": "2026.07.01",
	"generatedAt": "2026-07-01T00:00:00Z",
	"models": [
		{
			"id": "llama3.1-8b-q4km",
			"type": "llm",
			"version": "1.0.0",
			"backendHints": ["llama.cpp", "onnx"],
			"platforms": ["linux", "darwin"],
			"quantization": "Q4_K_M",
			"contextLength": 8192,
			"variants": ["Q5_K_M", "Q4_K_M", "Q3_K_M"],
			"requiredArtifacts": [
				{"name": "model.gguf", "role": "model", "format": "gguf", "path": "model.gguf", "size": 4500000000, "sha256": "abc123"}
			],
			"experimentalFlag": true
		}
	]
}`

func TestParseValidManifest(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(validManifestJSON))
	require.NoError(t, err)
	require.Len(t, m.Models, 1)

	item := m.Models[0]
	assert.Equal(t, "llama3.1-8b-q4km", item.ID)
	assert.Equal(t, TypeLLM, item.Type)
	assert.Equal(t, 8192, item.ContextLength)
	assert.Equal(t, []string{"llama.cpp", "onnx"}, item.BackendHints)
	assert.Contains(t, item.Extra, "experimentalFlag")
}

func TestParseDuplicateID(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"schemaVersion": "1", "contentVersion": "1", "generatedAt": "2026-07-01T00:00:00Z",
		"models": [
			{"id": "a", "type": "llm", "version": "1.0.0", "backendHints": [], "platforms": [],
			 "requiredArtifacts": [{"name":"m","role":"model","format":"gguf","path":"m","size":1,"sha256":"x"}]},
			{"id": "a", "type": "llm", "version": "1.0.0", "backendHints": [], "platforms": [],
			 "requiredArtifacts": [{"name":"m","role":"model","format":"gguf","path":"m","size":1,"sha256":"x"}]}
		]
	}`)

	_, err := Parse(data)
	require.Error(t, err)
	code, ok := modelerror.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, modelerror.InvalidModelFormat, code)
}

func TestParseMissingSHA256(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"schemaVersion": "1", "contentVersion": "1", "generatedAt": "2026-07-01T00:00:00Z",
		"models": [
			{"id": "a", "type": "llm", "version": "1.0.0", "backendHints": [], "platforms": [],
			 "requiredArtifacts": [{"name":"m","role":"model","format":"gguf","path":"m","size":1,"sha256":""}]}
		]
	}`)

	_, err := Parse(data)
	require.Error(t, err)
}

func TestParseInvalidContextLength(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"schemaVersion": "1", "contentVersion": "1", "generatedAt": "2026-07-01T00:00:00Z",
		"models": [
			{"id": "a", "type": "llm", "version": "1.0.0", "backendHints": [], "platforms": [], "contextLength": 3000,
			 "requiredArtifacts": [{"name":"m","role":"model","format":"gguf","path":"m","size":1,"sha256":"x"}]}
		]
	}`)

	_, err := Parse(data)
	require.Error(t, err)
}

func TestParseUnknownBackendHint(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"schemaVersion": "1", "contentVersion": "1", "generatedAt": "2026-07-01T00:00:00Z",
		"models": [
			{"id": "a", "type": "llm", "version": "1.0.0", "backendHints": ["nonexistent-backend"], "platforms": [],
			 "requiredArtifacts": [{"name":"m","role":"model","format":"gguf","path":"m","size":1,"sha256":"x"}]}
		]
	}`)

	_, err := Parse(data)
	require.Error(t, err)
}

func TestByID(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(validManifestJSON))
	require.NoError(t, err)

	item, err := m.ByID("llama3.1-8b-q4km")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", item.Version)

	_, err = m.ByID("does-not-exist")
	require.Error(t, err)
	code, _ := modelerror.CodeOf(err)
	assert.Equal(t, modelerror.ModelNotFound, code)
}

func TestVariantsOrSelf(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(validManifestJSON))
	require.NoError(t, err)
	item, err := m.ByID("llama3.1-8b-q4km")
	require.NoError(t, err)

	assert.Equal(t, []string{"Q5_K_M", "Q4_K_M", "Q3_K_M"}, item.VariantsOrSelf())
}

func TestArtifactByRole(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(validManifestJSON))
	require.NoError(t, err)
	item, err := m.ByID("llama3.1-8b-q4km")
	require.NoError(t, err)

	a, ok := item.ArtifactByRole(RoleModel)
	require.True(t, ok)
	assert.Equal(t, "model.gguf", a.Name)

	_, ok = item.ArtifactByRole(RoleTokenizer)
	assert.False(t, ok)
}
