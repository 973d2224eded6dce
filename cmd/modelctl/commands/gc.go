package commands

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/envconfig"
	"github.com/modelrt/corerun/pkg/install"
)

func newGCCmd() *cobra.Command {
	var maxBytes string
	c := &cobra.Command{
		Use:   "gc",
		Short: "Evict least-recently-used installed versions down to a space threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := envconfig.MaxCacheBytes(20 * units.GiB)
			if maxBytes != "" {
				parsed, err := units.RAMInBytes(maxBytes)
				if err != nil {
					return fmt.Errorf("invalid --max-bytes %q: %w", maxBytes, err)
				}
				limit = parsed
			}
			if err := install.EvictLRU(cacheDir, limit); err != nil {
				printModelError(err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted down to %s threshold\n", units.HumanSize(float64(limit)))
			return nil
		},
	}
	c.Flags().StringVar(&maxBytes, "max-bytes", "", "Space threshold (e.g. 20GB); defaults to MODELRT_MAX_CACHE_BYTES")
	return c
}
