// Package executor provides the CLI's default planner.Executor: it never
// makes a live call to the integration platform (spec.md §1's explicit
// Non-goal), it stages one reviewable script per action under a session's
// remediation-scripts/ directory (spec.md §6's output layout) for an
// operator to run by hand or feed to their own automation.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// ScriptExecutor implements planner.Executor by writing one JSON script
// file per action instead of calling out to a live system.
type ScriptExecutor struct {
	dir string
	mu  sync.Mutex
	n   int
}

// NewScriptExecutor creates dir if needed and returns a ScriptExecutor
// that writes into it.
func NewScriptExecutor(dir string) (*ScriptExecutor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("executor: create %s: %w", dir, err)
	}
	return &ScriptExecutor{dir: dir}, nil
}

// script is the on-disk shape of one staged action, readable by an
// operator or a follow-up automation step without the rest of the repo.
type script struct {
	ActionID     string              `json:"actionId"`
	Type         model.ActionType    `json:"type"`
	Target       model.ActionTarget  `json:"target"`
	Payload      model.ActionPayload `json:"payload"`
	Reason       string              `json:"reason"`
	Rollbackable bool                `json:"rollbackable"`
}

// ExecuteAction stages action as a script file; it never fails on the
// content of the action itself, only on a write error.
func (s *ScriptExecutor) ExecuteAction(ctx context.Context, action model.ExecutionAction) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.MarshalIndent(script{
		ActionID:     action.ID,
		Type:         action.Type,
		Target:       action.Target,
		Payload:      action.Payload,
		Reason:       action.Metadata.Reason,
		Rollbackable: action.Metadata.Rollbackable,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("executor: marshal action %s: %w", action.ID, err)
	}

	s.mu.Lock()
	s.n++
	seq := s.n
	s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%04d-%s-%s.json", seq, action.Type, action.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("executor: write %s: %w", path, err)
	}
	return nil
}
