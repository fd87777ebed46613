package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"finevo/internal/model"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}
	cmd.AddCommand(newToolsListCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := model.StatusVerified
			if status != "" {
				st = model.ToolStatus(status)
			}
			tools, err := app.Registry.List(st)
			if err != nil {
				return fmt.Errorf("cliapp: list tools: %w", err)
			}
			for _, t := range tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s v%-10s %-12s %-8s success_rate=%.2f\n",
					t.Name, t.SemanticVersion, t.Category, t.Status, t.SuccessRate())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "VERIFIED", "PROVISIONAL, VERIFIED, DEPRECATED, or FAILED")
	return cmd
}
