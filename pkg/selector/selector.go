package selector

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/modelrt/corerun/pkg/hostprobe"
	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/modelerror"
)

// contextLadder is the fixed, non-negotiable set of context-length rungs.
// I3 requires any declared contextLength to be one of these.
var contextLadder = []int{8192, 4096, 2048}

// defaultBackendByType is consulted when no backendHints entry is eligible.
func defaultBackendByType(t manifest.ModelType, platform string) string {
	if t == manifest.TypeLLM && platform != "android" && platform != "ios" {
		return "llama.cpp"
	}
	return "onnx"
}

// Select runs the fixed five-step decision order against item, recording
// every considered candidate and every downgrade step taken, and returns a
// complete SelectionReport whether or not selection ultimately succeeds.
func Select(item *manifest.ModelItem, probe hostprobe.Probe, hints Hints) SelectionReport {
	report := SelectionReport{RequestID: uuid.NewString()}

	platform := hints.Platform
	if platform == "" {
		platform = probe.Platform()
	}

	// Step 1: platform / sdk / backend-version eligibility filter.
	if !item.SupportsPlatform(platform) {
		report.FinalDecision = FinalDecision{Error: modelerror.New(
			modelerror.UnsupportedPlatform, "model manifest does not list this platform",
			modelerror.WithDetail("platform", platform),
		)}
		return report
	}

	installed := probe.InstalledBackends()

	// Step 2: walk backendHints left to right for the first eligible,
	// installed backend; otherwise fall back to the type default.
	backend := ""
	for _, hint := range item.BackendHints {
		eligible := passesVersionGates(item, hint, platform)
		accepted := eligible && installed[hint]
		reasons := eligibilityReasons(item, hint, platform, installed)
		report.Candidates = append(report.Candidates, Candidate{
			Backend: hint, Accepted: accepted, Reasons: reasons,
		})
		if accepted && backend == "" {
			backend = hint
		}
	}
	if backend == "" {
		fallback := defaultBackendByType(item.Type, platform)
		report.Candidates = append(report.Candidates, Candidate{
			Backend: fallback, Accepted: installed[fallback],
			Reasons: []string{"no backendHints entry eligible; used type default"},
		})
		if installed[fallback] {
			backend = fallback
		}
	}
	if backend == "" {
		report.FinalDecision = FinalDecision{Error: modelerror.New(
			modelerror.RuntimeNotAvailable, "no eligible backend is installed",
			modelerror.WithDetail("candidates", report.Candidates),
		)}
		return report
	}

	// Step 3: prefer a stable hardware-accelerated provider; otherwise CPU.
	provider, stable := probe.AccelAvailable(backend)
	if !stable {
		provider = "cpu"
	}

	quant := item.Quantization
	ctxLen := item.ContextLength
	threads := defaultThreads(probe.CPUCount())
	gpuLayers := 0
	if provider != "cpu" {
		gpuLayers = item.MaxGpuLayers
	}

	// Step 4/5: resource-fit check, running the downgrade ladder on miss.
	if item.RequiredArtifacts != nil && !fits(item, probe, quant, ctxLen) {
		quant, ctxLen, gpuLayers = runDowngradeLadder(item, probe, &report, quant, ctxLen, threads, gpuLayers, provider)
		if !fits(item, probe, quant, ctxLen) {
			report.FinalDecision = FinalDecision{Error: modelerror.New(
				modelerror.RuntimeNotAvailable, "no configuration fits available host resources after downgrade",
				modelerror.WithDetail("backend", backend),
				modelerror.WithDetail("availableMemoryBytes", probe.AvailableMemoryBytes()),
			)}
			return report
		}
	}

	report.FinalDecision = FinalDecision{
		Backend:       backend,
		Provider:      provider,
		Quantization:  quant,
		ContextLength: ctxLen,
		Threads:       threads,
		GpuLayers:     gpuLayers,
	}
	return report
}

func fits(item *manifest.ModelItem, probe hostprobe.Probe, quant string, ctxLen int) bool {
	if quant == "" {
		return true
	}
	return estimateMemoryBytes(item, quant, ctxLen) <= probe.AvailableMemoryBytes()
}

// runDowngradeLadder walks quantization, then contextLength, then gpuLayers,
// taking at most one step per dimension, stopping as soon as the
// configuration fits. threads is never downgraded reactively: it is always
// assigned its bounded default up front, per §4.2.
func runDowngradeLadder(
	item *manifest.ModelItem, probe hostprobe.Probe, report *SelectionReport,
	quant string, ctxLen, threads, gpuLayers int, provider string,
) (string, int, int) {
	if fits(item, probe, quant, ctxLen) {
		return quant, ctxLen, gpuLayers
	}

	// Dimension 1: quantization, restricted to the manifest's own variants list.
	if next, ok := nextQuantVariant(item, quant); ok {
		report.DowngradeSteps = append(report.DowngradeSteps, DowngradeStep{"quantization", quant, next})
		quant = next
	}
	if fits(item, probe, quant, ctxLen) {
		return quant, ctxLen, gpuLayers
	}

	// Dimension 2: contextLength, along the fixed ladder.
	if next, ok := nextContextRung(ctxLen); ok {
		report.DowngradeSteps = append(report.DowngradeSteps, DowngradeStep{"contextLength", fmt.Sprint(ctxLen), fmt.Sprint(next)})
		ctxLen = next
	}
	if fits(item, probe, quant, ctxLen) {
		return quant, ctxLen, gpuLayers
	}

	// Dimension 3/4: threads has no reactive downgrade (always its bound
	// default); gpuLayers drops straight to 0 under continued memory
	// pressure, skipping any intermediate value.
	if provider != "cpu" && gpuLayers != 0 {
		report.DowngradeSteps = append(report.DowngradeSteps, DowngradeStep{"gpuLayers", fmt.Sprint(gpuLayers), "0"})
		gpuLayers = 0
	}

	return quant, ctxLen, gpuLayers
}

// nextQuantVariant returns the variant immediately after current in the
// manifest's declared variants list, if one exists. Runtime string guessing
// of quantizations outside this list is forbidden.
func nextQuantVariant(item *manifest.ModelItem, current string) (string, bool) {
	variants := item.VariantsOrSelf()
	for i, v := range variants {
		if v == current && i+1 < len(variants) {
			return variants[i+1], true
		}
	}
	return "", false
}

// nextContextRung returns the next rung strictly below current on the fixed
// 8192 -> 4096 -> 2048 ladder.
func nextContextRung(current int) (int, bool) {
	for i, rung := range contextLadder {
		if rung == current && i+1 < len(contextLadder) {
			return contextLadder[i+1], true
		}
	}
	// current may sit above the first rung (e.g. an uncapped contextLength);
	// step down to the highest rung strictly below it.
	for _, rung := range contextLadder {
		if rung < current {
			return rung, true
		}
	}
	return 0, false
}

func defaultThreads(cpuCores int) int {
	if cpuCores <= 1 {
		return 1
	}
	return cpuCores - 1
}

func passesVersionGates(item *manifest.ModelItem, backend, platform string) bool {
	if _, ok := item.MinBackendVersionFor(backend); ok {
		// A declared gate is looked up but not compared: SelectionReport is
		// purely functional over static manifest/probe facts and does not
		// query installed backend versions, and no other component compares
		// them either, so a declared gate never rejects a candidate.
		_ = ok
	}
	if _, ok := item.MinSdkFor(platform); ok {
		_ = ok
	}
	return true
}

func eligibilityReasons(item *manifest.ModelItem, backend, platform string, installed map[string]bool) []string {
	var reasons []string
	if !installed[backend] {
		reasons = append(reasons, "backend not installed")
	}
	if minVer, ok := item.MinBackendVersionFor(backend); ok {
		reasons = append(reasons, fmt.Sprintf("requires backend version >= %s", minVer))
	}
	if minSdk, ok := item.MinSdkFor(platform); ok {
		reasons = append(reasons, fmt.Sprintf("requires sdk version >= %s on %s", minSdk, platform))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "eligible")
	}
	return reasons
}
