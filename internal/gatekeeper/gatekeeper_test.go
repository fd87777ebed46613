package gatekeeper

import (
	"context"
	"testing"

	"finevo/internal/checkpoint"
	"finevo/internal/obslog"
)

func newTestGatekeeper(t *testing.T, mode Mode, approve ApprovalFunc) *Gatekeeper {
	t.Helper()
	dir := t.TempDir()
	ckpt, err := checkpoint.NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	trail, err := obslog.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { trail.Close() })
	return New(mode, 1, 1, approve, ckpt, trail)
}

func TestClassifyKnownAndUnknownActions(t *testing.T) {
	if Classify("read_cached_data") != TierAuto {
		t.Error("expected read_cached_data to be AUTO tier")
	}
	if Classify("create_tool") != TierCheckpoint {
		t.Error("expected create_tool to be CHECKPOINT tier")
	}
	if Classify("delete_tool") != TierApproval {
		t.Error("expected delete_tool to be APPROVAL tier")
	}
	if Classify("some_never_listed_action") != TierCheckpoint {
		t.Error("expected an unknown action to default to CHECKPOINT tier")
	}
}

func TestExecuteAutoTierRunsImmediately(t *testing.T) {
	gk := newTestGatekeeper(t, ModeProd, nil)
	approved, result, err := gk.Execute(context.Background(), "list_tools", nil, func() (any, error) {
		return "ok", nil
	})
	if err != nil || !approved || result != "ok" {
		t.Errorf("expected AUTO tier to run and succeed, got approved=%v result=%v err=%v", approved, result, err)
	}
}

func TestExecuteCheckpointTierRunsAndCompletes(t *testing.T) {
	gk := newTestGatekeeper(t, ModeProd, nil)
	approved, result, err := gk.Execute(context.Background(), "create_tool", map[string]any{"tool_name": "x"}, func() (any, error) {
		return 42, nil
	})
	if err != nil || !approved || result != 42 {
		t.Errorf("expected CHECKPOINT tier to run and succeed, got approved=%v result=%v err=%v", approved, result, err)
	}
}

func TestExecuteApprovalTierAutoApprovedInDevMode(t *testing.T) {
	gk := newTestGatekeeper(t, ModeDev, nil)
	approved, _, err := gk.Execute(context.Background(), "delete_tool", nil, func() (any, error) {
		return nil, nil
	})
	if err != nil || !approved {
		t.Errorf("expected APPROVAL tier to auto-approve in dev mode, got approved=%v err=%v", approved, err)
	}
}

func TestExecuteApprovalTierDeniedInProdWithoutApprover(t *testing.T) {
	gk := newTestGatekeeper(t, ModeProd, nil)
	approved, result, err := gk.Execute(context.Background(), "delete_tool", nil, func() (any, error) {
		return "should not run", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if approved || result != nil {
		t.Errorf("expected a nil approver to deny APPROVAL tier actions in prod mode, got approved=%v result=%v", approved, result)
	}
}

func TestExecuteApprovalTierHonorsApproveFunc(t *testing.T) {
	gk := newTestGatekeeper(t, ModeProd, func(ctx context.Context, action string, actionCtx map[string]any) bool {
		return action == "delete_tool"
	})
	approved, _, err := gk.Execute(context.Background(), "delete_tool", nil, func() (any, error) { return nil, nil })
	if err != nil || !approved {
		t.Errorf("expected approve func to grant delete_tool, got approved=%v err=%v", approved, err)
	}

	approved2, _, err := gk.Execute(context.Background(), "modify_constraints", nil, func() (any, error) { return nil, nil })
	if err != nil || approved2 {
		t.Error("expected approve func to deny modify_constraints")
	}
}

func TestExecuteMarksCheckpointFailedOnError(t *testing.T) {
	gk := newTestGatekeeper(t, ModeProd, nil)
	approved, result, err := gk.Execute(context.Background(), "modify_tool", nil, func() (any, error) {
		return nil, context.DeadlineExceeded
	})
	if approved || result != nil || err == nil {
		t.Errorf("expected the checkpoint action's error to propagate and deny approval, got approved=%v err=%v", approved, err)
	}
}
