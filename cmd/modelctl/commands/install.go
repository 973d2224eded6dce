package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/envconfig"
	"github.com/modelrt/corerun/pkg/install"
	"github.com/modelrt/corerun/pkg/localindex"
	"github.com/modelrt/corerun/pkg/manifest"
)

func newInstallCmd() *cobra.Command {
	var baseURL string
	var activate bool
	c := &cobra.Command{
		Use:   "install MODEL_ID",
		Short: "Install a manifest entry's artifacts into the cache directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildCore(baseURL)
			if err != nil {
				printModelError(err)
				return nil
			}
			defer rt.Close()

			item, err := rt.Manifest.ByID(args[0])
			if err != nil {
				printModelError(err)
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), envconfig.DownloadTimeout())
			defer cancel()

			progress, err := rt.EnsureInstalled(ctx, item.ID)
			if err != nil {
				printModelError(err)
				return nil
			}
			terminal, err := renderProgress(cmd, item, progress)
			if err != nil {
				return err
			}
			if terminal.Phase != install.PhaseReady {
				return nil
			}

			size := sizeOnDisk(item)
			_, err = localindex.Upsert(cacheDir, localindex.LocalModel{
				ModelID: item.ID, Version: item.Version, Backend: firstBackend(item),
				SizeBytes: size, InstalledAt: time.Now(), Active: activate,
			})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("install succeeded but models.json update failed: %v", err))
			} else if activate {
				_ = os.WriteFile(filepath.Join(cacheDir, item.ID, "active"), []byte(item.Version), 0o644)
			}
			return nil
		},
	}
	c.Flags().StringVar(&baseURL, "base-url", envconfig.Var("MODELRT_BASE_URL"), "Base URL artifacts' relative paths are resolved against")
	c.Flags().BoolVar(&activate, "activate", true, "Write the active pointer for this model id on success")
	return c
}

// renderProgress drains ch, printing one line per coalesced event, and
// returns the terminal event.
func renderProgress(cmd *cobra.Command, item *manifest.ModelItem, ch <-chan install.Progress) (install.Progress, error) {
	var last install.Progress
	for p := range ch {
		last = p
		switch p.Phase {
		case install.PhaseDownloading:
			fmt.Fprintf(cmd.OutOrStdout(), "\r%s %s  %5.1f%%  (%s / %s)",
				item.ID, p.Phase, p.Progress*100, units.HumanSize(float64(p.ReceivedBytes)), units.HumanSize(float64(p.TotalBytes)))
		case install.PhaseVerifying, install.PhaseExtracting:
			fmt.Fprintf(cmd.OutOrStdout(), "\r%s %s\n", item.ID, p.Phase)
		case install.PhaseReady:
			fmt.Fprintf(cmd.OutOrStdout(), "\r%s %s\n", item.ID, color.GreenString(string(p.Phase)))
		case install.PhaseFailed:
			fmt.Fprintln(cmd.OutOrStdout())
			printModelError(p.Error)
		case install.PhaseCancelled:
			fmt.Fprintf(cmd.OutOrStdout(), "\r%s %s\n", item.ID, color.YellowString(string(p.Phase)))
		}
	}
	return last, nil
}

func sizeOnDisk(item *manifest.ModelItem) int64 {
	var total int64
	for _, a := range item.RequiredArtifacts {
		total += a.Size
	}
	return total
}

func firstBackend(item *manifest.ModelItem) string {
	if len(item.BackendHints) > 0 {
		return item.BackendHints[0]
	}
	return ""
}

// httpFetch is the production install.FetchFunc, performing a plain HTTPS
// GET of url.
func httpFetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status fetching %s: %s", url, resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}
