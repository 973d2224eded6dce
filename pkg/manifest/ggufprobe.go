package manifest

import (
	"context"
	"fmt"

	parser "github.com/gpustack/gguf-parser-go"
)

// GGUFCrossCheck reports a discrepancy between a manifest's declared
// modeling fields and what was actually found in an installed GGUF file.
type GGUFCrossCheck struct {
	Field      string
	Manifest   string
	FromHeader string
}

// ProbeGGUFHeader opens the GGUF file at path and cross-checks its header
// metadata against the model item's declared quantization and
// contextLength. This is an optional post-install sanity check: a manifest
// author's claims about a model's shape can drift from what was actually
// uploaded, and catching that early is cheaper than a confusing runtime
// failure deep in an adapter.
func ProbeGGUFHeader(ctx context.Context, path string, item *ModelItem) ([]GGUFCrossCheck, error) {
	gf, err := parser.ParseGGUFFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("parsing gguf header: %w", err)
	}

	md := gf.Metadata()
	var checks []GGUFCrossCheck

	if item.Quantization != "" {
		header := md.FileType.String()
		if header != "" && header != item.Quantization {
			checks = append(checks, GGUFCrossCheck{
				Field:      "quantization",
				Manifest:   item.Quantization,
				FromHeader: header,
			})
		}
	}

	if item.ContextLength != 0 {
		if kv, found := gf.Header.MetadataKV.Get(md.Architecture + ".context_length"); found {
			headerLen := int(kv.ValueUint32())
			if headerLen != 0 && headerLen != item.ContextLength {
				checks = append(checks, GGUFCrossCheck{
					Field:      "contextLength",
					Manifest:   fmt.Sprintf("%d", item.ContextLength),
					FromHeader: fmt.Sprintf("%d", headerLen),
				})
			}
		}
	}

	return checks, nil
}
