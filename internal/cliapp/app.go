// Package cliapp wires every engine component (constraints, registry,
// checkpoints, gatekeeper, verifier, gateway, LLM adapter, data provider,
// sandbox, task executor, synthesizer, refiner, deduplicator, batch
// manager, evaluation harness) into a single App and exposes it as a
// cobra CLI, following cmd/nerd/main.go's root-command-plus-subcommands
// shape and its PersistentPreRunE zap/audit-log setup.
package cliapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"finevo/internal/batch"
	"finevo/internal/checkpoint"
	"finevo/internal/constraints"
	"finevo/internal/dataprovider"
	"finevo/internal/dedup"
	"finevo/internal/gatekeeper"
	"finevo/internal/gateway"
	"finevo/internal/llm"
	"finevo/internal/obslog"
	"finevo/internal/refine"
	"finevo/internal/registry"
	"finevo/internal/sandbox"
	"finevo/internal/synth"
	"finevo/internal/taskexec"
	"finevo/internal/verify"
)

// Config configures App construction. Fields mirror the CLI's persistent
// flags (see root.go).
type Config struct {
	DataDir         string
	ConstraintsPath string
	GeminiAPIKey    string
	Mode            string // "dev" or "prod", overrides the constraints file's default
	Approve         gatekeeper.ApprovalFunc
}

// App holds every wired engine component for the lifetime of one CLI
// invocation.
type App struct {
	Constraints *constraints.Constraints
	Registry    *registry.Registry
	Checkpoints *checkpoint.Manager
	Trail       *obslog.Trail
	Gatekeeper  *gatekeeper.Gatekeeper
	Data        dataprovider.Provider
	Executor    *sandbox.Executor
	Verifier    *verify.Verifier
	Gateway     *gateway.Gateway
	LLM         llm.Adapter
	TaskExec    *taskexec.TaskExecutor
	Synth       *synth.Synthesizer
	Refiner     *refine.Refiner
	Dedup       *dedup.Deduplicator
	Batch       *batch.Manager
}

// defaultBatchWorkers and defaultTaskTimeoutSec size the batch evolution
// manager's worker pool when the CLI doesn't override them.
const (
	defaultBatchWorkers    = 4
	defaultTaskTimeoutSec  = 30
)

// Build constructs every component in dependency order and returns the
// assembled App. Callers must call Close when done.
func Build(ctx context.Context, cfg Config) (*App, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cliapp: create data dir: %w", err)
	}
	if cfg.ConstraintsPath == "" {
		cfg.ConstraintsPath = "configs/constraints.yaml"
	}

	c, err := constraints.Load(cfg.ConstraintsPath)
	if err != nil {
		return nil, fmt.Errorf("cliapp: load constraints: %w", err)
	}

	mode := gatekeeper.Mode(c.EvolutionGates.DefaultMode)
	if cfg.Mode != "" {
		mode = gatekeeper.Mode(cfg.Mode)
	}

	reg, err := registry.Open(filepath.Join(cfg.DataDir, "db", "evolution.db"), filepath.Join(cfg.DataDir, "artifacts"))
	if err != nil {
		return nil, fmt.Errorf("cliapp: open registry: %w", err)
	}

	checkpoints, err := checkpoint.NewManager(cfg.DataDir)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("cliapp: open checkpoints: %w", err)
	}

	trail, err := obslog.Open(cfg.DataDir)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("cliapp: open audit trail: %w", err)
	}

	gk := gatekeeper.New(mode, c.EvolutionGates.CheckpointTimeoutSec, c.EvolutionGates.ApprovalTimeoutSec, cfg.Approve, checkpoints, trail)

	data := dataprovider.Provider(dataprovider.NewMockProvider(nil))
	exec := sandbox.New(c)
	verifier := verify.New(c, exec, data)
	gw := gateway.New(verifier, reg, gk, trail)

	var adapter llm.Adapter
	if cfg.GeminiAPIKey != "" {
		genai, err := llm.NewGenAIAdapter(ctx, llm.Config{APIKey: cfg.GeminiAPIKey})
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("cliapp: create LLM adapter: %w", err)
		}
		adapter = genai
	} else {
		adapter = llm.NewMockAdapter(nil)
	}

	te := taskexec.New(data, exec)
	synthesizer := synth.New(adapter, gw, reg)
	refiner := refine.New(adapter, gw, reg)
	deduper := dedup.New(reg)
	batcher := batch.NewManager(synthesizer, refiner, deduper, reg, trail, defaultBatchWorkers, defaultTaskTimeoutSec)

	return &App{
		Constraints: c, Registry: reg, Checkpoints: checkpoints, Trail: trail,
		Gatekeeper: gk, Data: data, Executor: exec, Verifier: verifier, Gateway: gw,
		LLM: adapter, TaskExec: te, Synth: synthesizer, Refiner: refiner,
		Dedup: deduper, Batch: batcher,
	}, nil
}

// Close releases every resource the App opened.
func (a *App) Close() error {
	var firstErr error
	if err := a.Trail.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.Registry.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finevo"
	}
	return filepath.Join(home, ".finevo")
}
