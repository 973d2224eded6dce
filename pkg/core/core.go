// Package core wires C1-C7 into the single root object a host application
// constructs once and shares with every caller. It is the explicit,
// testable replacement for the teacher's package-level singletons
// (routing.Service, and the SDK's process-wide scheduler): nothing here is
// a global, so tests can build independent Cores side by side.
package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/modelrt/corerun/pkg/backend"
	"github.com/modelrt/corerun/pkg/hostprobe"
	"github.com/modelrt/corerun/pkg/install"
	"github.com/modelrt/corerun/pkg/logging"
	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/metrics"
	"github.com/modelrt/corerun/pkg/modelerror"
	"github.com/modelrt/corerun/pkg/scheduler"
	"github.com/modelrt/corerun/pkg/selector"
	"github.com/modelrt/corerun/pkg/stream"
)

// Config assembles everything a Core needs: a parsed manifest, where to
// install artifacts, how to fetch them, which backend adapters are
// available on this host, and the scheduler's concurrency shape.
type Config struct {
	Manifest  *manifest.Manifest
	CacheDir  string
	BaseURL   string
	Fetch     install.FetchFunc
	Backends  []backend.Adapter
	Scheduler scheduler.Config
	Log       logging.Logger
}

// Core is the explicitly constructed root object tying the manifest model,
// install pipeline, runtime selector, task scheduler, backend registry, and
// metrics collector together, mirroring §2's data-flow description end to
// end behind one method.
type Core struct {
	Manifest  *manifest.Manifest
	Pipeline  *install.Pipeline
	Registry  *backend.Registry
	Probe     hostprobe.Probe
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Collector

	log logging.Logger
}

// New constructs a Core from cfg. It performs no I/O beyond the orphan
// sweep §4.1 mandates on init; the manifest must already be parsed.
func New(cfg Config) (*Core, error) {
	if cfg.Manifest == nil {
		return nil, fmt.Errorf("core: Config.Manifest is required")
	}
	if cfg.Log == nil {
		cfg.Log = logging.NewLogger(logging.ParseLevel(""))
	}

	if err := install.CleanOrphans(cfg.CacheDir); err != nil {
		return nil, modelerror.New(modelerror.ConfigError, "orphan cleanup failed", modelerror.WithCause(err))
	}

	registry := backend.NewRegistry()
	for _, a := range cfg.Backends {
		registry.Register(a)
	}
	installed := make(map[string]bool, len(cfg.Backends))
	for _, a := range cfg.Backends {
		installed[a.Name()] = true
	}

	sched := scheduler.New(cfg.Scheduler)

	return &Core{
		Manifest:  cfg.Manifest,
		Pipeline:  install.NewPipeline(cfg.CacheDir, cfg.BaseURL, cfg.Fetch),
		Registry:  registry,
		Probe:     hostprobe.New(installed),
		Scheduler: sched,
		Metrics:   metrics.NewCollector(sched),
		log:       cfg.Log.With("component", "core"),
	}, nil
}

// Close stops the scheduler's dispatch loop. Outstanding tasks run to
// completion; no new tasks are admitted afterward.
func (c *Core) Close() {
	c.Scheduler.Close()
}

// Select resolves modelID against the manifest and runs the runtime
// selector against it, returning the full diagnostic SelectionReport
// whether or not selection succeeds.
func (c *Core) Select(modelID string, hints selector.Hints) (selector.SelectionReport, error) {
	item, err := c.Manifest.ByID(modelID)
	if err != nil {
		return selector.SelectionReport{}, err
	}
	return selector.Select(item, c.Probe, hints), nil
}

// EnsureInstalled installs modelID's artifacts if not already present,
// returning the lazy InstallProgress sequence from §4.1. Concurrent calls
// for the same (modelId, version) observe the single-flight guarantees of
// pkg/install directly.
func (c *Core) EnsureInstalled(ctx context.Context, modelID string) (<-chan install.Progress, error) {
	item, err := c.Manifest.ByID(modelID)
	if err != nil {
		return nil, err
	}
	return c.Pipeline.Install(ctx, item), nil
}

func (c *Core) awaitInstalled(ctx context.Context, item *manifest.ModelItem) error {
	for p := range c.Pipeline.Install(ctx, item) {
		switch p.Phase {
		case install.PhaseFailed, install.PhaseCancelled:
			if p.Error != nil {
				return p.Error
			}
			return modelerror.New(modelerror.TaskCancelled, "install did not complete")
		}
	}
	return nil
}

// GenerateOptions configures one Generate call.
type GenerateOptions struct {
	Hints    selector.Hints
	Priority int
	Timeout  time.Duration
}

// llmTaskTypeFor maps a manifest model type to its scheduler queue, per
// §4.3's fixed per-type queues (the download/verify queues are not used
// here; the install pipeline does not submit scheduler tasks).
func llmTaskTypeFor(t manifest.ModelType) scheduler.TaskType {
	switch t {
	case manifest.TypeLLM:
		return scheduler.TypeLLM
	case manifest.TypeEmbedding:
		return scheduler.TypeEmbedding
	case manifest.TypeOCR:
		return scheduler.TypeOCR
	case manifest.TypeSTT:
		return scheduler.TypeSTT
	case manifest.TypeTTS:
		return scheduler.TypeTTS
	default:
		return scheduler.TypeEmbedding
	}
}

// Generate runs the full §2 data flow for one LLM request: resolve the
// manifest item, select a backend and resource configuration, install any
// missing artifacts, and stream the adapter's generation through the
// scheduler's LLM queue and the stream protocol's sequencing and
// stop-string matching. Once the task runs, the returned channel receives
// exactly one terminal Event (a failure before streaming starts arrives as
// an error Event) and is then closed, except that after the task's context
// ends (cancellation or timeout) an event the caller is not ready to
// receive is dropped. Cancelling ctx cancels the underlying scheduler task.
func (c *Core) Generate(ctx context.Context, modelID, prompt string, genParams backend.GenerationParams, opts GenerateOptions) (<-chan stream.Event, error) {
	item, err := c.Manifest.ByID(modelID)
	if err != nil {
		return nil, err
	}

	report := selector.Select(item, c.Probe, opts.Hints)
	if report.FinalDecision.Error != nil {
		return nil, report.FinalDecision.Error
	}

	adapter, ok := c.Registry.Get(report.FinalDecision.Backend)
	if !ok {
		return nil, modelerror.New(modelerror.RuntimeNotAvailable,
			"selected backend has no registered adapter",
			modelerror.WithDetail("backend", report.FinalDecision.Backend))
	}

	modelArtifact, ok := item.ArtifactByRole(manifest.RoleModel)
	if !ok {
		return nil, modelerror.New(modelerror.InvalidModelFormat, "manifest item has no model-role artifact",
			modelerror.WithDetail("modelId", modelID))
	}

	requestID := uuid.NewString()
	out := make(chan stream.Event)
	callerCtx := ctx

	task := &scheduler.Task{
		ID:           requestID,
		Type:         llmTaskTypeFor(item.Type),
		Priority:     opts.Priority,
		ResourceType: scheduler.ResourceGPUBound,
		Timeout:      opts.Timeout,
		Cancellable:  true,
		Execute: func(ctx context.Context) (any, error) {
			defer close(out)
			stopWatch := context.AfterFunc(callerCtx, func() { c.Scheduler.Cancel(requestID) })
			defer stopWatch()

			// fail delivers err as the stream's terminal error event before
			// the task returns it.
			fail := func(err error) (any, error) {
				select {
				case out <- stream.Event{RequestID: requestID, Sequence: 1, Type: stream.EventError, FinishReason: stream.FinishError, Err: err}:
				case <-ctx.Done():
				}
				return nil, err
			}

			if err := c.awaitInstalled(ctx, item); err != nil {
				return fail(err)
			}

			modelPath := c.artifactPath(item, modelArtifact.Path)
			c.crossCheckGGUFHeader(ctx, modelArtifact, modelPath, item)

			loadParams := backend.LoadParams{
				ModelPath:     modelPath,
				ContextLength: report.FinalDecision.ContextLength,
				GpuLayers:     report.FinalDecision.GpuLayers,
				Threads:       report.FinalDecision.Threads,
				Quantization:  report.FinalDecision.Quantization,
			}
			handle, err := adapter.Load(ctx, item, loadParams)
			if err != nil {
				return fail(err)
			}
			defer func() {
				c.scrapeBackendMetrics(ctx, adapter.Name(), handle)
				_ = adapter.Unload(ctx, handle)
			}()

			raw, err := adapter.Stream(ctx, handle, prompt, genParams)
			if err != nil {
				return fail(err)
			}

			var final stream.Event
			for ev := range stream.Run(ctx, requestID, genParams.StopStrings, raw) {
				final = ev
				select {
				case out <- ev:
				case <-ctx.Done():
					// Keep draining so Run's goroutine can finish; this
					// event is dropped.
				}
			}
			return final.Stats, ctx.Err()
		},
	}

	c.Scheduler.Submit(task)
	return out, nil
}

func (c *Core) artifactPath(item *manifest.ModelItem, relPath string) string {
	return filepath.Join(c.Pipeline.VersionDir(item), relPath)
}

// scrapeBackendMetrics folds a backend session's own Prometheus metrics
// (currently only llama.cpp exposes these) into c.Metrics, if handle
// implements the unexported scraping capability. Any other backend's handle
// simply doesn't satisfy the assertion and nothing happens.
func (c *Core) scrapeBackendMetrics(ctx context.Context, backendName string, handle backend.Handle) {
	scraper, ok := handle.(interface {
		ScrapeMetrics(ctx context.Context) ([]metrics.PrometheusMetric, error)
	})
	if !ok {
		return
	}
	ms, err := scraper.ScrapeMetrics(ctx)
	if err != nil {
		c.log.Debug("backend metrics scrape failed", "backend", backendName, "error", err)
		return
	}
	c.Metrics.RecordBackendMetrics(backendName, ms)
}

// crossCheckGGUFHeader logs a warning for any discrepancy between the
// manifest's declared quantization/contextLength and what the installed
// GGUF file's own header claims. It never fails a Generate call: a drifted
// manifest is an authoring bug worth surfacing, not a reason to refuse
// inference the selector already approved.
func (c *Core) crossCheckGGUFHeader(ctx context.Context, modelArtifact manifest.Artifact, modelPath string, item *manifest.ModelItem) {
	if modelArtifact.Format != "gguf" {
		return
	}
	checks, err := manifest.ProbeGGUFHeader(ctx, modelPath, item)
	if err != nil {
		c.log.Debug("gguf header cross-check skipped", "modelId", item.ID, "error", err)
		return
	}
	for _, chk := range checks {
		c.log.Warn("manifest disagrees with installed gguf header",
			"modelId", item.ID, "field", chk.Field, "manifest", chk.Manifest, "header", chk.FromHeader)
	}
}
