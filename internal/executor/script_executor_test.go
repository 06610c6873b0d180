package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/integration-auditor/internal/model"
)

func TestExecuteAction_WritesOneScriptPerAction(t *testing.T) {
	dir := t.TempDir()
	exec, err := NewScriptExecutor(dir)
	require.NoError(t, err)

	action := model.ExecutionAction{
		ID:   "act-1",
		Type: model.ActionPatch,
		Target: model.ActionTarget{
			Type:         "settings",
			ResourceType: "connectorEdition",
			ResourceID:   "int-1",
		},
		Metadata: model.ActionMetadata{Reason: "edition mismatch", Rollbackable: true},
	}
	require.NoError(t, exec.ExecuteAction(context.Background(), action))
	require.NoError(t, exec.ExecuteAction(context.Background(), action))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var got script
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "act-1", got.ActionID)
	assert.True(t, got.Rollbackable)
}

func TestExecuteAction_RespectsCanceledContext(t *testing.T) {
	exec, err := NewScriptExecutor(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = exec.ExecuteAction(ctx, model.ExecutionAction{ID: "act-1"})
	assert.ErrorIs(t, err, context.Canceled)
}
