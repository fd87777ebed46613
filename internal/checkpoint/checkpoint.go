// Package checkpoint manages durable rollback checkpoints for
// CHECKPOINT-tier evolution actions. Adapted from
// original_source/src/core/gates.py's CheckpointManager: one JSON file per
// checkpoint under <data>/checkpoints/, transitioning pending -> {completed,
// failed}. The on-disk transition must survive process crashes (spec §9):
// Recover scans the directory at startup for files still pending and marks
// them failed.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"finevo/internal/model"
)

// Manager creates and transitions checkpoint files under a directory.
type Manager struct {
	dir string
	mu  sync.Mutex
}

// NewManager ensures the checkpoint directory exists.
func NewManager(dataDir string) (*Manager, error) {
	dir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// Create writes a new pending checkpoint and returns its id, formatted
// `cp_<8-char-uuid-prefix>_<action-prefix>` (action truncated to 20
// characters), so ids from concurrent workers do not collide.
func (m *Manager) Create(action string, context map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := action
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	id := fmt.Sprintf("cp_%s_%s", uuid.New().String()[:8], prefix)

	cp := model.Checkpoint{
		ID:        id,
		Action:    action,
		Context:   context,
		Status:    model.CheckpointPending,
		CreatedAt: time.Now(),
	}
	if err := m.write(cp); err != nil {
		return "", err
	}
	return id, nil
}

// MarkComplete transitions a checkpoint to completed.
func (m *Manager) MarkComplete(id string) error {
	return m.transition(id, func(cp *model.Checkpoint) {
		cp.Status = model.CheckpointCompleted
		now := time.Now()
		cp.CompletedAt = &now
	})
}

// MarkFailed transitions a checkpoint to failed with an error message.
func (m *Manager) MarkFailed(id string, cause error) error {
	return m.transition(id, func(cp *model.Checkpoint) {
		cp.Status = model.CheckpointFailed
		now := time.Now()
		cp.FailedAt = &now
		if cause != nil {
			cp.Error = cause.Error()
		}
	})
}

func (m *Manager) transition(id string, mutate func(*model.Checkpoint)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.read(id)
	if err != nil {
		return err
	}
	mutate(cp)
	return m.write(*cp)
}

func (m *Manager) read(id string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(m.path(id))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", id, err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: parse %s: %w", id, err)
	}
	return &cp, nil
}

func (m *Manager) write(cp model.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal %s: %w", cp.ID, err)
	}
	tmp := m.path(cp.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", cp.ID, err)
	}
	return os.Rename(tmp, m.path(cp.ID))
}

// Get returns the current state of a checkpoint.
func (m *Manager) Get(id string) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(id)
}

// Recover scans the checkpoint directory for any file still pending and
// marks it failed, per spec §9's crash-recovery requirement. Returns the
// ids it recovered.
func (m *Manager) Recover() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: scan dir: %w", err)
	}
	var recovered []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		cp, err := m.read(id)
		if err != nil {
			continue
		}
		if cp.Status == model.CheckpointPending {
			cp.Status = model.CheckpointFailed
			cp.Error = "recovered at startup: checkpoint left pending by a crashed process"
			now := time.Now()
			cp.FailedAt = &now
			if err := m.write(*cp); err == nil {
				recovered = append(recovered, id)
			}
		}
	}
	sort.Strings(recovered)
	return recovered, nil
}
