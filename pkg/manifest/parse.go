package manifest

import (
	"encoding/json"
	"fmt"
)

// knownManifestFields and knownModelItemFields and knownArtifactFields list
// the JSON keys the typed structs already consume, so Parse can compute each
// record's Extra map as "everything else".
var (
	knownManifestFields = map[string]bool{
		"schemaVersion": true, "contentVersion": true, "generatedAt": true, "models": true,
	}
	knownModelItemFields = map[string]bool{
		"id": true, "type": true, "version": true, "backendHints": true, "platforms": true,
		"minSdkVersion": true, "minBackendVersion": true, "quantization": true, "contextLength": true,
		"ropeScaling": true, "ropeTheta": true, "maxGpuLayers": true, "defaultGenerationConfig": true,
		"chatTemplate": true, "specialTokens": true, "variants": true, "requiredArtifacts": true,
		"optionalArtifacts": true,
	}
	knownArtifactFields = map[string]bool{
		"name": true, "role": true, "format": true, "path": true, "size": true, "sha256": true,
	}
)

// Parse decodes a manifest JSON document, capturing unknown fields into
// each record's Extra map, and runs Validate before returning. Nothing in
// this package writes the Extra fields back out.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, invalidFormat("manifest JSON decode failed", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalidFormat("manifest JSON decode failed", err)
	}
	m.Extra = extraFields(raw, knownManifestFields)

	var rawRoot struct {
		Models []json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(data, &rawRoot); err != nil {
		return nil, invalidFormat("manifest JSON decode failed", err)
	}
	for i := range m.Models {
		if i >= len(rawRoot.Models) {
			break
		}
		if err := attachModelItemExtra(&m.Models[i], rawRoot.Models[i]); err != nil {
			return nil, invalidFormat(fmt.Sprintf("decoding model item %d", i), err)
		}
	}

	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func attachModelItemExtra(item *ModelItem, raw json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	item.Extra = extraFields(fields, knownModelItemFields)

	var rawArtifacts struct {
		Required []json.RawMessage `json:"requiredArtifacts"`
		Optional []json.RawMessage `json:"optionalArtifacts"`
	}
	if err := json.Unmarshal(raw, &rawArtifacts); err != nil {
		return err
	}
	attachArtifactExtras(item.RequiredArtifacts, rawArtifacts.Required)
	attachArtifactExtras(item.OptionalArtifacts, rawArtifacts.Optional)
	return nil
}

func attachArtifactExtras(artifacts []Artifact, raws []json.RawMessage) {
	for i := range artifacts {
		if i >= len(raws) {
			break
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raws[i], &fields); err != nil {
			continue
		}
		artifacts[i].Extra = extraFields(fields, knownArtifactFields)
	}
}

func extraFields(raw map[string]json.RawMessage, known map[string]bool) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
