package commands

import (
	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/envconfig"
)

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print this runtime's scheduler counters in Prometheus text exposition format",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildCore(envconfig.Var("MODELRT_BASE_URL"))
			if err != nil {
				printModelError(err)
				return nil
			}
			defer rt.Close()

			return rt.Metrics.WriteText(cmd.OutOrStdout())
		},
	}
}
