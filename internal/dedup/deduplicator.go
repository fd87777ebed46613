// Package dedup implements contract-based tool deduplication: when
// multiple tools satisfy the same contract, keep the best-scoring one and
// deprecate the rest. Adapted from original_source's evolution/merger.py's
// SimpleDeduplicator, generalized to use the registry's real running
// success-rate and average-exec-time counters instead of Python's
// provisional/0.5 status proxy (SPEC_FULL.md's dedup scoring resolution).
package dedup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"finevo/internal/model"
	"finevo/internal/registry"
)

// Resolution is the outcome of a dedup pass.
type Resolution string

const (
	ResolutionKept       Resolution = "kept"
	ResolutionSuperseded Resolution = "superseded"
	ResolutionNoAction   Resolution = "no_action"
)

// Deduplicator resolves duplicate tools registered against the same
// contract.
type Deduplicator struct {
	registry *registry.Registry
}

// New creates a Deduplicator.
func New(reg *registry.Registry) *Deduplicator {
	return &Deduplicator{registry: reg}
}

// score ranks a tool for comparison: higher verification stage wins,
// then higher success rate, then lower average exec time, then newer
// semantic version as a final tie-breaker.
type score struct {
	stage       model.VerificationStage
	successRate float64
	negAvgTime  float64
	version     string
}

func (s score) less(o score) bool {
	if s.stage != o.stage {
		return s.stage < o.stage
	}
	if s.successRate != o.successRate {
		return s.successRate < o.successRate
	}
	if s.negAvgTime != o.negAvgTime {
		return s.negAvgTime < o.negAvgTime
	}
	pa, pb := strings.Split(s.version, "."), strings.Split(o.version, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA != nil || errB != nil {
			if pa[i] != pb[i] {
				return pa[i] < pb[i]
			}
			continue
		}
		if na != nb {
			return na < nb
		}
	}
	return len(pa) < len(pb)
}

func scoreTool(t *model.ToolArtifact) score {
	return score{
		stage:       t.VerificationStage,
		successRate: t.SuccessRate(),
		negAvgTime:  -t.AvgExecTimeMs,
		version:     t.SemanticVersion,
	}
}

// CheckAndResolve looks up every active tool registered against
// contractID and, if more than one exists, deprecates all but the
// best-scoring one. Returns which outcome applied to newToolID.
func (d *Deduplicator) CheckAndResolve(newToolID int64, contractID string) (Resolution, error) {
	candidates, err := d.registry.FindByContractID(contractID)
	if err != nil {
		return ResolutionNoAction, err
	}

	var active []*model.ToolArtifact
	for _, t := range candidates {
		if t.Status != model.StatusDeprecated {
			active = append(active, t)
		}
	}
	if len(active) <= 1 {
		return ResolutionNoAction, nil
	}

	sort.Slice(active, func(i, j int) bool {
		return scoreTool(active[j]).less(scoreTool(active[i])) // descending
	})
	best := active[0]
	rest := active[1:]

	for _, t := range rest {
		if err := d.registry.UpdateStatus(t.ID, model.StatusDeprecated); err != nil {
			return ResolutionNoAction, fmt.Errorf("dedup: deprecate tool %d: %w", t.ID, err)
		}
	}

	sourceIDs := make([]int64, len(rest))
	for i, t := range rest {
		sourceIDs[i] = t.ID
	}
	if _, err := d.registry.RecordMerge(model.BatchMergeRecord{
		SourceToolIDs:   sourceIDs,
		CanonicalToolID: best.ID,
		Strategy:        "contract_dedup",
		Stats: map[string]any{
			"contract_id":       contractID,
			"deprecated_count":  len(rest),
			"kept_tool_name":    best.Name,
			"kept_tool_version": best.SemanticVersion,
		},
	}); err != nil {
		return ResolutionNoAction, fmt.Errorf("dedup: record merge: %w", err)
	}

	if best.ID == newToolID {
		return ResolutionKept, nil
	}
	return ResolutionSuperseded, nil
}
