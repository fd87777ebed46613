package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var category string
	var useRefiner bool
	var maxAttempts int

	cmd := &cobra.Command{
		Use:   "synth [task description]",
		Short: "Synthesize and register a new tool from a task description, without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := args[0]
			ctx := cmd.Context()

			if useRefiner {
				t, trace := app.Synth.SynthesizeWithRefine(ctx, task, "", category, nil, app.Refiner, maxAttempts)
				if t == nil {
					return fmt.Errorf("cliapp: synthesis failed: %s", trace.StdErr)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered: %s v%s (tool_id=%d)\n", t.Name, t.SemanticVersion, t.ID)
				return nil
			}

			t, traces := app.Synth.SynthesizeWithRetry(ctx, task, maxAttempts)
			if t == nil {
				last := ""
				if len(traces) > 0 {
					last = traces[len(traces)-1].StdErr
				}
				return fmt.Errorf("cliapp: synthesis failed after %d attempts: %s", maxAttempts, last)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered: %s v%s (tool_id=%d)\n", t.Name, t.SemanticVersion, t.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "fetch, calculation, or composite (inferred from the task if empty)")
	cmd.Flags().BoolVar(&useRefiner, "refine", true, "fall back to the analyze-patch-verify repair loop on first-pass failure")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "maximum synthesis/refinement attempts")
	return cmd
}
