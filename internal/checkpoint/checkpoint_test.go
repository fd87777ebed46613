package checkpoint

import (
	"errors"
	"testing"

	"finevo/internal/model"
)

func TestCreateAndGetStartsPending(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id, err := m.Create("create_tool", map[string]any{"tool_name": "calc_rsi"})
	if err != nil {
		t.Fatal(err)
	}
	cp, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != model.CheckpointPending {
		t.Errorf("expected pending, got %s", cp.Status)
	}
	if cp.Action != "create_tool" {
		t.Errorf("expected action create_tool, got %s", cp.Action)
	}
}

func TestMarkCompleteTransitionsStatus(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	id, _ := m.Create("modify_tool", nil)
	if err := m.MarkComplete(id); err != nil {
		t.Fatal(err)
	}
	cp, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != model.CheckpointCompleted {
		t.Errorf("expected completed, got %s", cp.Status)
	}
	if cp.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	id, _ := m.Create("execute_fetch", nil)
	if err := m.MarkFailed(id, errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	cp, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != model.CheckpointFailed {
		t.Errorf("expected failed, got %s", cp.Status)
	}
	if cp.Error != "boom" {
		t.Errorf("expected error message boom, got %q", cp.Error)
	}
}

func TestRecoverMarksPendingAsFailed(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	pendingID, _ := m.Create("create_tool", nil)
	doneID, _ := m.Create("modify_tool", nil)
	if err := m.MarkComplete(doneID); err != nil {
		t.Fatal(err)
	}

	recovered, err := m.Recover()
	if err != nil {
		t.Fatal(err)
	}
	if len(recovered) != 1 || recovered[0] != pendingID {
		t.Errorf("expected only %s recovered, got %v", pendingID, recovered)
	}

	cp, err := m.Get(pendingID)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != model.CheckpointFailed {
		t.Errorf("expected recovered checkpoint to be failed, got %s", cp.Status)
	}

	done, err := m.Get(doneID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != model.CheckpointCompleted {
		t.Error("expected the already-completed checkpoint to be untouched by Recover")
	}
}

func TestGetUnknownIDErrors(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	if _, err := m.Get("cp_does_not_exist"); err == nil {
		t.Fatal("expected an error for an unknown checkpoint id")
	}
}
