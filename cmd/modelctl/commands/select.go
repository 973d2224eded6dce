package commands

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/envconfig"
	"github.com/modelrt/corerun/pkg/selector"
)

func newSelectCmd() *cobra.Command {
	var platform string
	c := &cobra.Command{
		Use:   "select MODEL_ID",
		Short: "Run the runtime selector against a manifest entry and print its SelectionReport",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildCore(envconfig.Var("MODELRT_BASE_URL"))
			if err != nil {
				printModelError(err)
				return nil
			}
			defer rt.Close()

			report, err := rt.Select(args[0], selector.Hints{Platform: platform})
			if err != nil {
				printModelError(err)
				return nil
			}

			if jsonOutput {
				return printJSON(report)
			}
			cmd.Print(selectionReportTable(report))
			return nil
		},
	}
	c.Flags().StringVar(&platform, "platform", "", "Override the detected host platform tag")
	return c
}

func selectionReportTable(r selector.SelectionReport) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "requestId: %s\n\n", r.RequestID)

	table := newTable(&buf, []string{"BACKEND", "PROVIDER", "ACCEPTED", "REASONS"})
	for _, c := range r.Candidates {
		accepted := color.RedString("no")
		if c.Accepted {
			accepted = color.GreenString("yes")
		}
		table.Append([]string{c.Backend, c.Provider, accepted, strings.Join(c.Reasons, "; ")})
	}
	table.Render()

	if len(r.DowngradeSteps) > 0 {
		fmt.Fprintln(&buf, "\ndowngrade steps:")
		dtable := newTable(&buf, []string{"DIMENSION", "FROM", "TO"})
		for _, d := range r.DowngradeSteps {
			dtable.Append([]string{d.Dimension, d.From, d.To})
		}
		dtable.Render()
	}

	fmt.Fprintln(&buf)
	if r.FinalDecision.Error != nil {
		fmt.Fprintln(&buf, color.RedString("final decision: FAILED [%s] %s", r.FinalDecision.Error.Code, r.FinalDecision.Error.Message))
	} else {
		fmt.Fprintln(&buf, color.GreenString("final decision: backend=%s provider=%s quantization=%s contextLength=%d threads=%d gpuLayers=%d",
			r.FinalDecision.Backend, r.FinalDecision.Provider, r.FinalDecision.Quantization,
			r.FinalDecision.ContextLength, r.FinalDecision.Threads, r.FinalDecision.GpuLayers))
	}
	return buf.String()
}
