package cliapp

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose         bool
	dataDir         string
	constraintsPath string
	mode            string
	geminiAPIKey    string

	logger *zap.Logger
	app    *App
)

// NewRootCmd builds the finevo root command and every subcommand, wiring
// an App in PersistentPreRunE the way cmd/nerd/main.go wires its zap
// logger and file-based audit log before any subcommand body runs.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "finevo",
		Short: "finevo - a self-evolving financial analysis tool engine",
		Long: `finevo synthesizes, verifies, and registers Go calculation and data-
retrieval tools on demand, reusing and repairing what it has already
built rather than regenerating from scratch every time.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("cliapp: initialize logger: %w", err)
			}

			a, err := Build(cmd.Context(), Config{
				DataDir: dataDir, ConstraintsPath: constraintsPath,
				GeminiAPIKey: geminiAPIKey, Mode: mode,
			})
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
			if app != nil {
				_ = app.Close()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "engine data directory (default $HOME/.finevo)")
	root.PersistentFlags().StringVar(&constraintsPath, "constraints", "configs/constraints.yaml", "path to the constraints catalog")
	root.PersistentFlags().StringVar(&mode, "mode", "", "gatekeeper mode: dev or prod (default from constraints.yaml)")
	root.PersistentFlags().StringVar(&geminiAPIKey, "gemini-api-key", os.Getenv("GEMINI_API_KEY"), "Gemini API key; falls back to a mock LLM adapter when empty")

	root.AddCommand(newTaskCmd())
	root.AddCommand(newSynthCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newBootstrapCmd())
	root.AddCommand(newEvalCmd())

	return root
}
