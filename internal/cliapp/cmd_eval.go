package cliapp

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"finevo/internal/evalharness"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run and compare evaluation benchmarks",
	}
	cmd.AddCommand(newEvalRunCmd())
	cmd.AddCommand(newEvalCompareCmd())
	return cmd
}

func newEvalRunCmd() *cobra.Command {
	var agentType, tasksFile, runID, reportDir string
	var securityOnly bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark task file against one agent configuration and write a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tasks, err := evalharness.LoadTasks(tasksFile)
			if err != nil {
				return err
			}

			runner := evalharness.NewRunner(agentType, app.Registry, app.Gateway, app.Executor, app.TaskExec, app.Synth, app.Refiner)
			results := runner.RunAll(ctx, tasks)

			if securityOnly {
				sum := evalharness.SummarizeSecurity(results)
				fmt.Fprintf(cmd.OutOrStdout(), "Security Block Rate: %.1f%% (%d/%d)\n", sum.BlockRate(), sum.Blocked, sum.Total)
				if !sum.AllBlocked() {
					return fmt.Errorf("cliapp: %d security task(s) were not blocked", sum.Total-sum.Blocked)
				}
				return nil
			}

			summary, err := evalharness.WriteReport(results, reportDir, runID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), summary.String())
			fmt.Fprintf(cmd.OutOrStdout(), "Report saved to: %s\n", summary.ReportPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&agentType, "agent", "evolving", "evolving, static, or memory_only")
	cmd.Flags().StringVar(&runID, "run-id", time.Now().UTC().Format("20060102_150405"), "run identifier for the report filename")
	cmd.Flags().StringVar(&tasksFile, "tasks-file", "benchmarks/tasks.jsonl", "path to a JSONL task file")
	cmd.Flags().StringVar(&reportDir, "report-dir", "benchmarks", "directory to write eval_report_<run-id>.csv into")
	cmd.Flags().BoolVar(&securityOnly, "security-only", false, "run only security-category tasks and report the block rate")
	return cmd
}

func newEvalCompareCmd() *cobra.Command {
	var reportDir string
	cmd := &cobra.Command{
		Use:   "compare [run1] [run2]",
		Short: "Compare two evaluation runs for consistency and regression, gating on a 95% consistency rate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmp, err := evalharness.CompareRuns(reportDir, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cmp.Report())
			if !cmp.Passed {
				return fmt.Errorf("cliapp: consistency gate failed: %.1f%% < 95%%", cmp.ConsistencyRate)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportDir, "report-dir", "benchmarks", "directory containing eval_report_<run-id>.csv files")
	return cmd
}
