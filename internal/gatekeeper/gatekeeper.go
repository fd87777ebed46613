// Package gatekeeper classifies evolution actions into AUTO / CHECKPOINT /
// APPROVAL risk tiers and runs them through the appropriate checkpoint and
// approval machinery. Adapted from original_source/src/core/gates.py.
package gatekeeper

import (
	"context"
	"fmt"
	"time"

	"finevo/internal/checkpoint"
	"finevo/internal/obslog"
)

// Tier is a risk classification for an evolution action.
type Tier int

const (
	TierAuto Tier = iota
	TierCheckpoint
	TierApproval
)

func (t Tier) String() string {
	switch t {
	case TierAuto:
		return "AUTO"
	case TierCheckpoint:
		return "CHECKPOINT"
	case TierApproval:
		return "APPROVAL"
	default:
		return "UNKNOWN"
	}
}

// Mode is the gate enforcement mode.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// actionTiers is the fixed classification table from spec §4.6.
var actionTiers = map[string]Tier{
	"read_cached_data":    TierAuto,
	"execute_calculation": TierAuto,
	"list_tools":          TierAuto,
	"get_tool_info":       TierAuto,

	"create_tool":   TierCheckpoint,
	"modify_tool":   TierCheckpoint,
	"execute_fetch": TierCheckpoint,
	"refine_tool":   TierCheckpoint,

	"persist_tool":               TierApproval,
	"delete_tool":                TierApproval,
	"modify_verification_rules":  TierApproval,
	"modify_constraints":         TierApproval,
}

// ApprovalFunc decides whether an APPROVAL-tier action proceeds. Returning
// false denies it. Implementations may block (CLI prompt) or consult an
// external approver; Gatekeeper enforces the approval timeout around it.
type ApprovalFunc func(ctx context.Context, action string, actionCtx map[string]any) bool

// Gatekeeper enforces the risk-tiered approval rules.
type Gatekeeper struct {
	mode               Mode
	checkpointTimeout  time.Duration
	approvalTimeout    time.Duration
	approve            ApprovalFunc
	checkpoints        *checkpoint.Manager
	trail              *obslog.Trail
}

// New creates a Gatekeeper. approve may be nil, in which case APPROVAL-tier
// actions in prod mode are always denied (no interactive terminal
// assumption is made inside the engine itself; the CLI layer supplies one).
func New(mode Mode, checkpointTimeoutSec, approvalTimeoutSec int, approve ApprovalFunc, checkpoints *checkpoint.Manager, trail *obslog.Trail) *Gatekeeper {
	return &Gatekeeper{
		mode:              mode,
		checkpointTimeout: time.Duration(checkpointTimeoutSec) * time.Second,
		approvalTimeout:   time.Duration(approvalTimeoutSec) * time.Second,
		approve:           approve,
		checkpoints:       checkpoints,
		trail:             trail,
	}
}

// Classify returns the tier for an action, defaulting to CHECKPOINT for any
// action not in the fixed table (spec §4.6: "defaults to CHECKPOINT if
// unknown action").
func Classify(action string) Tier {
	if t, ok := actionTiers[action]; ok {
		return t
	}
	return TierCheckpoint
}

// Execute runs fn through the gate appropriate for action. It returns
// whether the action was approved and fn's result (nil on denial or
// failure before fn ran).
func (g *Gatekeeper) Execute(ctx context.Context, action string, actionCtx map[string]any, fn func() (any, error)) (bool, any, error) {
	tier := Classify(action)

	switch tier {
	case TierAuto:
		g.log(action, tier, actionCtx, "executed", "")
		result, err := fn()
		return true, result, err

	case TierCheckpoint:
		return g.runWithCheckpoint(action, tier, actionCtx, fn)

	case TierApproval:
		if g.mode == ModeDev {
			g.log(action, tier, actionCtx, "auto_approved_dev_mode", "")
			return g.runWithCheckpoint(action, tier, actionCtx, fn)
		}
		approveCtx, cancel := context.WithTimeout(ctx, g.approvalTimeout)
		defer cancel()
		approved := g.approve != nil && g.approve(approveCtx, action, actionCtx)
		if !approved {
			g.log(action, tier, actionCtx, "denied", "")
			return false, nil, nil
		}
		g.log(action, tier, actionCtx, "approved", "")
		return g.runWithCheckpoint(action, tier, actionCtx, fn)
	}
	return false, nil, fmt.Errorf("gatekeeper: unreachable tier %v", tier)
}

func (g *Gatekeeper) runWithCheckpoint(action string, tier Tier, actionCtx map[string]any, fn func() (any, error)) (bool, any, error) {
	id, err := g.checkpoints.Create(action, actionCtx)
	if err != nil {
		return false, nil, fmt.Errorf("gatekeeper: create checkpoint: %w", err)
	}
	g.log(action, tier, actionCtx, "checkpoint_created", id)

	result, err := fn()
	if err != nil {
		_ = g.checkpoints.MarkFailed(id, err)
		g.log(action, tier, actionCtx, fmt.Sprintf("failed: %v", err), id)
		return false, nil, err
	}
	if err := g.checkpoints.MarkComplete(id); err != nil {
		return false, nil, fmt.Errorf("gatekeeper: mark complete: %w", err)
	}
	g.log(action, tier, actionCtx, "completed", id)
	return true, result, nil
}

func (g *Gatekeeper) log(action string, tier Tier, actionCtx map[string]any, result, checkpointID string) {
	if g.trail == nil {
		return
	}
	g.trail.LogGateAction(obslog.GateLogEntry{
		Action:       action,
		Gate:         tier.String(),
		Mode:         string(g.mode),
		Context:      actionCtx,
		Result:       result,
		CheckpointID: checkpointID,
	})
}
