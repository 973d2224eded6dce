package commands

import (
	"bytes"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/localindex"
)

func newListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "ps"},
		Short:   "List installed model versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := localindex.Load(cacheDir)
			if err != nil {
				printModelError(err)
				return nil
			}
			if jsonOutput {
				return printJSON(idx.Models)
			}
			cmd.Print(installedTable(idx.Models))
			return nil
		},
	}
	return c
}

func installedTable(models []localindex.LocalModel) string {
	var buf bytes.Buffer
	table := newTable(&buf, []string{"MODEL", "VERSION", "BACKEND", "SIZE", "ACTIVE", "INSTALLED"})
	for _, m := range models {
		active := ""
		if m.Active {
			active = color.GreenString("yes")
		}
		table.Append([]string{
			m.ModelID, m.Version, m.Backend,
			units.HumanSize(float64(m.SizeBytes)),
			active,
			m.InstalledAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return buf.String()
}
