package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/backend"
	"github.com/modelrt/corerun/pkg/backend/llamacpp"
	"github.com/modelrt/corerun/pkg/core"
	"github.com/modelrt/corerun/pkg/envconfig"
	"github.com/modelrt/corerun/pkg/install"
	"github.com/modelrt/corerun/pkg/logging"
	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/modelerror"
	"github.com/modelrt/corerun/pkg/scheduler"
)

var (
	manifestPath   string
	cacheDir       string
	llamaServerBin string
	jsonOutput     bool

	log logging.Logger
)

// Execute builds the root command and runs it against os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modelctl",
		Short:         "Inspect and exercise the model lifecycle runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logging.NewLogger(envconfig.LogLevel())
			// Mirrors §4.1's "on next init" recovery: a prior process crash
			// mid-install may have left orphan *.tmp.* files or a .stage/
			// directory behind; sweep them before any command touches the
			// cache directory.
			if err := install.CleanOrphans(cacheDir); err != nil {
				log.Warn("orphan cleanup failed", "cacheDir", cacheDir, "error", err)
			}
		},
	}

	defaultCacheDir, _ := envconfig.CacheDir()
	root.PersistentFlags().StringVar(&manifestPath, "manifest", envconfig.ManifestPath(), "Path to the model manifest JSON document")
	root.PersistentFlags().StringVar(&cacheDir, "cache-dir", defaultCacheDir, "Root directory for installed model versions")
	root.PersistentFlags().StringVar(&llamaServerBin, "llama-server-bin", envconfig.Var("MODELRT_LLAMA_SERVER_BIN"), "Path to a llama-server binary, enabling the llama.cpp backend")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON instead of tables")

	root.AddCommand(
		newValidateCmd(),
		newSelectCmd(),
		newInstallCmd(),
		newListCmd(),
		newStreamCmd(),
		newConfigCmd(),
		newVersionCmd(),
		newGCCmd(),
		newMetricsCmd(),
	)
	return root
}

// loadManifest reads and parses the manifest at manifestPath, surfacing
// modelerror.Error values the same way the core's own callers would see
// them rather than a bare decode error.
func loadManifest() (*manifest.Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, modelerror.New(modelerror.InvalidModelFormat, "could not read manifest file", modelerror.WithCause(err))
	}
	return manifest.Parse(data)
}

// buildBackends constructs every backend adapter this CLI invocation has
// enough configuration for. An adapter absent here is simply absent from
// the registry pkg/core builds around it, never a stub that always fails.
func buildBackends() []backend.Adapter {
	var backends []backend.Adapter
	if llamaServerBin != "" {
		backends = append(backends, llamacpp.New(llamaServerBin, log))
	}
	return backends
}

// buildCore constructs the root orchestrator for one command invocation,
// fetching artifacts relative to baseURL. Each command builds its own Core
// rather than sharing a package-level one, mirroring Core's own
// explicit-construction design (see pkg/core's doc comment).
func buildCore(baseURL string) (*core.Core, error) {
	m, err := loadManifest()
	if err != nil {
		return nil, err
	}
	return core.New(core.Config{
		Manifest:  m,
		CacheDir:  cacheDir,
		BaseURL:   baseURL,
		Fetch:     httpFetch,
		Backends:  buildBackends(),
		Scheduler: scheduler.Config{MaxTotalConcurrent: envconfig.MaxTotalConcurrent(4)},
		Log:       log,
	})
}

// printJSON marshals v as indented JSON to stdout, used by every command's
// --json branch so output shape stays consistent across the CLI.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printModelError renders a *modelerror.Error the way a human-facing CLI
// caller wants it: code, message, and suggestion if present, colorized
// when stdout is a terminal (fatih/color no-ops otherwise).
func printModelError(err error) {
	var merr *modelerror.Error
	if me, ok := err.(*modelerror.Error); ok {
		merr = me
	}
	if merr == nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		return
	}
	fmt.Fprintln(os.Stderr, color.RedString("error [%s]: %s", merr.Code, merr.Message))
	if merr.Suggestion != "" {
		fmt.Fprintln(os.Stderr, color.YellowString("suggestion: %s", merr.Suggestion))
	}
}
