// Package constraints loads the single source of truth for allowed/banned
// modules, calls, and attributes, plus execution and gate limits.
package constraints

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Category is one of the three fixed tool categories.
type Category string

const (
	CategoryFetch       Category = "fetch"
	CategoryCalculation Category = "calculation"
	CategoryComposite   Category = "composite"
)

// Execution holds sandbox execution limits.
type Execution struct {
	TimeoutSec    int     `yaml:"timeout_sec"`
	MemoryMB      int     `yaml:"memory_mb"`
	MaxRetries    int     `yaml:"max_retries"`
	RetryDelaySec float64 `yaml:"retry_delay_sec"`
}

// CategoryRules holds the allowed/banned module sets for one category.
type CategoryRules struct {
	AllowedModules []string `yaml:"allowed_modules"`
	BannedModules  []string `yaml:"banned_modules"`
}

// Verification holds verifier-pipeline configuration.
type Verification struct {
	MaxRetries                   int     `yaml:"max_retries"`
	RetryDelaySec                float64 `yaml:"retry_delay_sec"`
	SchemaExtractionAccuracyGate float64 `yaml:"schema_extraction_accuracy_gate"`
}

// EvolutionGates holds gatekeeper timeouts and default mode.
type EvolutionGates struct {
	DefaultMode          string `yaml:"default_mode"`
	CheckpointTimeoutSec int    `yaml:"checkpoint_timeout_sec"`
	ApprovalTimeoutSec   int    `yaml:"approval_timeout_sec"`
}

// raw mirrors the on-disk YAML shape before it is frozen into Constraints.
type raw struct {
	Execution           Execution                `yaml:"execution"`
	Capabilities         map[string]CategoryRules `yaml:"capabilities"`
	AlwaysBannedModules  []string                 `yaml:"always_banned_modules"`
	AlwaysBannedCalls    []string                 `yaml:"always_banned_calls"`
	AlwaysBannedAttrs    []string                 `yaml:"always_banned_attributes"`
	Verification         Verification             `yaml:"verification"`
	EvolutionGates        EvolutionGates           `yaml:"evolution_gates"`
}

// Constraints is the immutable, in-memory view of the constraints file.
// Loaded once; all lookups below are read-only.
type Constraints struct {
	Execution      Execution
	Verification   Verification
	EvolutionGates EvolutionGates

	capabilities        map[string]CategoryRules
	alwaysBannedModules map[string]struct{}
	alwaysBannedCalls   map[string]struct{}
	alwaysBannedAttrs   map[string]struct{}
}

// Load reads and validates a constraints YAML file.
func Load(path string) (*Constraints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("constraints: read %s: %w", path, err)
	}
	var r raw
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("constraints: parse %s: %w", path, err)
	}
	return fromRaw(r)
}

func fromRaw(r raw) (*Constraints, error) {
	if r.Execution.TimeoutSec == 0 {
		r.Execution.TimeoutSec = 30
	}
	if r.Execution.MemoryMB == 0 {
		r.Execution.MemoryMB = 512
	}
	if r.Execution.MaxRetries == 0 {
		r.Execution.MaxRetries = 3
	}
	if r.Execution.RetryDelaySec == 0 {
		r.Execution.RetryDelaySec = 1.0
	}
	if r.Execution.TimeoutSec <= 0 {
		return nil, fmt.Errorf("constraints: execution.timeout_sec must be positive")
	}
	if r.Execution.MemoryMB <= 0 {
		return nil, fmt.Errorf("constraints: execution.memory_mb must be positive")
	}

	if r.Verification.MaxRetries == 0 {
		r.Verification.MaxRetries = 3
	}
	if r.Verification.RetryDelaySec == 0 {
		r.Verification.RetryDelaySec = 1.0
	}
	if r.Verification.SchemaExtractionAccuracyGate == 0 {
		r.Verification.SchemaExtractionAccuracyGate = 0.95
	}

	if r.EvolutionGates.DefaultMode == "" {
		r.EvolutionGates.DefaultMode = "dev"
	}
	if r.EvolutionGates.CheckpointTimeoutSec == 0 {
		r.EvolutionGates.CheckpointTimeoutSec = 60
	}
	if r.EvolutionGates.ApprovalTimeoutSec == 0 {
		r.EvolutionGates.ApprovalTimeoutSec = 300
	}

	c := &Constraints{
		Execution:           r.Execution,
		Verification:        r.Verification,
		EvolutionGates:       r.EvolutionGates,
		capabilities:        r.Capabilities,
		alwaysBannedModules: toSet(r.AlwaysBannedModules),
		alwaysBannedCalls:   toSet(r.AlwaysBannedCalls),
		alwaysBannedAttrs:   toSet(r.AlwaysBannedAttrs),
	}
	if c.capabilities == nil {
		c.capabilities = map[string]CategoryRules{}
	}
	return c, nil
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// AllowedModules returns the allowed-import set for a category.
func (c *Constraints) AllowedModules(category string) map[string]struct{} {
	rules, ok := c.capabilities[category]
	if !ok {
		rules = c.capabilities[string(CategoryCalculation)]
	}
	return toSet(rules.AllowedModules)
}

// BannedModules returns always-banned ∪ category-specific banned modules.
func (c *Constraints) BannedModules(category string) map[string]struct{} {
	banned := make(map[string]struct{}, len(c.alwaysBannedModules))
	for k := range c.alwaysBannedModules {
		banned[k] = struct{}{}
	}
	if rules, ok := c.capabilities[category]; ok {
		for _, m := range rules.BannedModules {
			banned[m] = struct{}{}
		}
	}
	return banned
}

// AlwaysBannedCalls returns the always-banned call identifiers.
func (c *Constraints) AlwaysBannedCalls() map[string]struct{} { return c.alwaysBannedCalls }

// AlwaysBannedAttributes returns the always-banned attribute/selector identifiers.
func (c *Constraints) AlwaysBannedAttributes() map[string]struct{} { return c.alwaysBannedAttrs }

// Default returns a hard-coded fallback Constraints, used when no file is
// supplied (e.g. in tests or `--init` before a constraints.yaml exists).
func Default() *Constraints {
	c, _ := fromRaw(raw{
		Capabilities: map[string]CategoryRules{
			string(CategoryCalculation): {
				AllowedModules: []string{"math", "sort", "strconv", "strings", "fmt", "time", "errors"},
				BannedModules:  []string{"net/http", "net", "finevo/internal/dataprovider"},
			},
			string(CategoryFetch): {
				AllowedModules: []string{"math", "sort", "strconv", "strings", "fmt", "time", "errors", "net/http", "encoding/json", "finevo/internal/dataprovider"},
			},
			string(CategoryComposite): {
				AllowedModules: []string{"math", "sort", "strconv", "strings", "fmt", "time", "errors"},
			},
		},
		AlwaysBannedModules: []string{
			"os", "os/exec", "os/signal", "os/user", "syscall", "unsafe", "plugin",
			"reflect", "encoding/gob", "net", "net/rpc", "runtime/debug", "debug/elf",
		},
		AlwaysBannedCalls: []string{
			"eval", "Eval", "exec.Command", "plugin.Open", "unsafe.Pointer",
		},
		AlwaysBannedAttrs: []string{
			"unsafe.Pointer", "reflect.Value", "os.Exit",
		},
	})
	return c
}
