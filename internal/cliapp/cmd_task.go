package cliapp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"finevo/internal/model"
	"finevo/internal/taskexec"
)

func newTaskCmd() *cobra.Command {
	var category, toolName string
	var maxRefineAttempts int

	cmd := &cobra.Command{
		Use:   "task [query]",
		Short: "Run a natural-language task, synthesizing a tool if none is registered yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			taskID := uuid.New().String()[:12]
			t := taskexec.Task{TaskID: taskID, Query: query, Category: category}

			trace, err := runTask(cmd.Context(), t, toolName, maxRefineAttempts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "task_id: %s\nexit_code: %d\n", trace.TaskID, trace.ExitCode)
			if trace.ExitCode == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "output: %s\n", trace.OutputRepr)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", trace.StdErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "fetch, calculation, or composite (inferred from the query if empty)")
	cmd.Flags().StringVar(&toolName, "tool", "", "registry name of an existing tool to reuse instead of synthesizing")
	cmd.Flags().IntVar(&maxRefineAttempts, "max-refine-attempts", 3, "refinement attempts if first synthesis fails verification")
	return cmd
}

// runTask locates a tool for t (by name, then by synthesis) and executes
// it, unless t is a simple fetch the task executor can serve directly.
func runTask(ctx context.Context, t taskexec.Task, toolName string, maxRefineAttempts int) (model.ExecutionTrace, error) {
	if t.Category == "fetch" || t.Category == "" {
		if trace, err := app.TaskExec.ExecuteTask(ctx, t, nil); err == nil {
			return trace, nil
		}
	}

	var tool *model.ToolArtifact
	if toolName != "" {
		found, err := app.Registry.GetByName(toolName)
		if err == nil && len(found) > 0 {
			tool = found[0]
		}
	}

	if tool == nil {
		var trace model.ExecutionTrace
		tool, trace = app.Synth.SynthesizeWithRefine(ctx, t.Query, toolName, t.Category, nil, app.Refiner, maxRefineAttempts)
		if tool == nil {
			return trace, fmt.Errorf("cliapp: synthesis failed for task %q: %s", t.Query, trace.StdErr)
		}
	}

	return app.TaskExec.ExecuteTask(ctx, t, tool)
}
