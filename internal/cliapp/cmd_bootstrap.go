package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"finevo/internal/bootstrap"
)

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Register the fixed set of seed tools (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			results := bootstrap.Seed(cmd.Context(), app.Gateway)
			failed := 0
			for _, r := range results {
				if r.Success {
					fmt.Fprintf(cmd.OutOrStdout(), "ok    %-20s tool_id=%d\n", r.Name, r.ToolID)
				} else {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %-20s %s\n", r.Name, r.Error)
				}
			}
			if failed > 0 {
				return fmt.Errorf("cliapp: %d/%d seed tools failed to bootstrap", failed, len(results))
			}
			return nil
		},
	}
}
