package commands

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/envconfig"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the runtime's effective environment configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := envconfig.AsMap()
			if jsonOutput {
				return printJSON(vars)
			}
			cmd.Print(configTable(vars))
			return nil
		},
	}
}

func configTable(vars map[string]envconfig.EnvVar) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	table := newTable(&buf, []string{"VARIABLE", "VALUE", "DESCRIPTION"})
	for _, name := range names {
		v := vars[name]
		table.Append([]string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}
	table.Render()
	return buf.String()
}
