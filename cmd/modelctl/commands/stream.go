package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/modelrt/corerun/pkg/backend"
	"github.com/modelrt/corerun/pkg/core"
	"github.com/modelrt/corerun/pkg/envconfig"
	"github.com/modelrt/corerun/pkg/stream"
)

func newStreamCmd() *cobra.Command {
	var maxNewTokens int
	var temperature float64
	var stopStrings []string
	c := &cobra.Command{
		Use:   "stream MODEL_ID PROMPT",
		Short: "Run selection, load the backend, and stream an LLM completion to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelID, prompt := args[0], args[1]

			rt, err := buildCore(envconfig.Var("MODELRT_BASE_URL"))
			if err != nil {
				printModelError(err)
				return nil
			}
			defer rt.Close()

			ctx := cmd.Context()
			out, err := rt.Generate(ctx, modelID, prompt, backend.GenerationParams{
				MaxNewTokens: maxNewTokens,
				Temperature:  temperature,
				StopStrings:  stopStrings,
			}, core.GenerateOptions{})
			if err != nil {
				printModelError(err)
				return nil
			}

			var text strings.Builder
			for ev := range out {
				switch ev.Type {
				case stream.EventDelta:
					text.WriteString(ev.DeltaText)
					fmt.Fprint(cmd.OutOrStdout(), ev.DeltaText)
				case stream.EventFinish:
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("finish=%s promptTokens=%d completionTokens=%d",
						ev.FinishReason, ev.Stats.PromptTokens, ev.Stats.CompletionTokens))
				case stream.EventError:
					fmt.Fprintln(cmd.OutOrStdout())
					printModelError(ev.Err)
				}
			}
			return nil
		},
	}
	c.Flags().IntVar(&maxNewTokens, "max-new-tokens", 256, "Maximum tokens to generate")
	c.Flags().Float64Var(&temperature, "temperature", 0.8, "Sampling temperature")
	c.Flags().StringSliceVar(&stopStrings, "stop", nil, "Stop strings, checked in the given order")
	return c
}
