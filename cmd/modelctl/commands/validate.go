package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate the model manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest()
			if err != nil {
				printModelError(err)
				os.Exit(1)
				return nil
			}
			if jsonOutput {
				return printJSON(m)
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("manifest valid: %d model(s)", len(m.Models)))
			for _, item := range m.Models {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-30s %-8s v%-10s backends=%v platforms=%v\n",
					item.ID, item.Type, item.Version, item.BackendHints, item.Platforms)
			}
			return nil
		},
	}
}
