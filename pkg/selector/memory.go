package selector

import "github.com/modelrt/corerun/pkg/manifest"

// quantRelativeBytes approximates the relative on-disk/in-memory weight
// cost of common GGUF quantization types, scaled so Q8_0 is the baseline
// unit. Mirrors the "bytes per parameter" reasoning GGUF VRAM estimators
// use (weight size plus an overhead fraction for runtime bookkeeping),
// simplified here to a lookup table since the manifest does not carry a
// per-variant parameter count.
var quantRelativeBytes = map[string]float64{
	"F32":    4.0,
	"F16":    2.0,
	"Q8_0":   1.0,
	"Q6_K":   0.75,
	"Q5_K_M": 0.6875,
	"Q5_K_S": 0.65,
	"Q4_K_M": 0.5625,
	"Q4_K_S": 0.5,
	"Q3_K_M": 0.4375,
	"Q3_K_S": 0.375,
	"Q2_K":   0.3125,
}

func quantFactor(q string) float64 {
	if f, ok := quantRelativeBytes[q]; ok {
		return f
	}
	return 1.0
}

// estimateMemoryBytes estimates the resident memory footprint for item at a
// candidate quantization and context length, scaled from the item's own
// declared baseline (its own quantization/contextLength and the size of its
// primary model artifact) plus a flat 20% runtime overhead. This governs
// only the host-RAM fit check the downgrade ladder uses; GPU VRAM budgeting
// for gpuLayers is intentionally out of scope of this estimate.
func estimateMemoryBytes(item *manifest.ModelItem, quant string, contextLength int) uint64 {
	baseline := primaryArtifactSize(item)
	if baseline == 0 {
		return 0
	}

	quantRatio := 1.0
	if item.Quantization != "" {
		quantRatio = quantFactor(quant) / quantFactor(item.Quantization)
	}

	contextRatio := 1.0
	if item.ContextLength > 0 && contextLength > 0 {
		contextRatio = float64(contextLength) / float64(item.ContextLength)
	}

	total := float64(baseline) * quantRatio * contextRatio * 1.2
	return uint64(total)
}

func primaryArtifactSize(item *manifest.ModelItem) int64 {
	for _, a := range item.RequiredArtifacts {
		if a.Role == manifest.RoleModel {
			return a.Size
		}
	}
	return 0
}
