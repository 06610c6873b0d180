package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/audit"
	"github.com/catherinevee/integration-auditor/internal/detector"
	"github.com/catherinevee/integration-auditor/internal/ingest"
	"github.com/catherinevee/integration-auditor/internal/model"
	"github.com/catherinevee/integration-auditor/internal/planner"
	"github.com/catherinevee/integration-auditor/internal/remediation"
	"github.com/catherinevee/integration-auditor/internal/safety"
	"github.com/catherinevee/integration-auditor/internal/state"
)

func testBusinessRules() *model.BusinessRules {
	return &model.BusinessRules{
		LicenseValidation: model.LicenseValidationRules{
			ValidEditions:  []string{"starter", "premium"},
			CaseSensitive:  false,
			TrimWhitespace: true,
		},
	}
}

func testRemediationLogic() model.RemediationLogic {
	return model.RemediationLogic{
		model.CorruptionLicenseEditionMismatch: {
			{
				TemplateID: "patch-connector-edition",
				ActionType: model.ActionPatch,
				Target:     model.TargetTemplate{Type: "settings", ResourceType: "connectorEdition"},
				PayloadTemplate: map[string]interface{}{
					"connectorEdition": "{{ctx.edition}}",
				},
				Priority:     10,
				Rollbackable: true,
			},
		},
	}
}

// recordingExecutor always succeeds, capturing every action it is asked to
// run so tests can assert call counts.
type recordingExecutor struct {
	mu      sync.Mutex
	actions []model.ExecutionAction
}

func (r *recordingExecutor) ExecuteAction(ctx context.Context, action model.ExecutionAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func (r *recordingExecutor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

func newTestOrchestrator(t *testing.T, exec planner.Executor) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()

	auditLogger, err := audit.New(filepath.Join(dir, "audit"))
	require.NoError(t, err)
	t.Cleanup(func() { auditLogger.Close() })

	store, err := state.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	o := &Orchestrator{
		Ingestor:    ingest.New(),
		Detector:    detector.New(testBusinessRules()),
		Remediation: remediation.New(testRemediationLogic()),
		Safety:      safety.NewController(safety.DefaultConfig()),
		State:       store,
		Executor:    exec,
		Audit:       auditLogger,
	}
	return o, dir
}

func csvSources() ingest.Sources {
	integrations := "INTEGRATIONID,EMAIL,USERID,VERSION,STORECOUNT,LICENSEEDITION,UPDATEINPROGRESS,SETTINGS\n" +
		`test-001,a@example.com,u1,1,1,starter,false,"{""connectorEdition"":""premium""}"` + "\n"
	empty := "INTEGRATIONID,_ID,NAME\n"
	emptyConn := "INTEGRATIONID,_ID,OFFLINE,TARGET\n"

	return ingest.Sources{
		Integrations: strings.NewReader(integrations),
		Imports:      strings.NewReader(empty),
		Exports:      strings.NewReader(empty),
		Flows:        strings.NewReader(empty),
		Connections:  strings.NewReader(emptyConn),
	}
}

func TestRun_LicenseMismatchProducesOnePatchAction(t *testing.T) {
	exec := &recordingExecutor{}
	o, dir := newTestOrchestrator(t, exec)

	summary, err := o.Run(context.Background(), csvSources(), Options{
		OperatorID:                "op-1",
		SessionID:                 "sess-1",
		SessionDir:                dir,
		MaxConcurrentIntegrations: 2,
		MaxAttempts:               1,
		ForceReprocess:            true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.IntegrationsProcessed)
	assert.Equal(t, 1, summary.EventsByType[model.CorruptionLicenseEditionMismatch])
	assert.Equal(t, 1, summary.ActionsPlanned)
	assert.Equal(t, 1, summary.ActionsExecuted)
	assert.Equal(t, 0, summary.ActionsFailed)
	assert.False(t, summary.Failed())
	assert.Equal(t, 1, exec.count())

	rec, ok, err := o.State.Get("test-001", "op-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ProcessingStatusSuccess, rec.Status)
}

func TestRun_ShouldReprocessFalseSkipsIntegration(t *testing.T) {
	exec := &recordingExecutor{}
	o, dir := newTestOrchestrator(t, exec)

	require.NoError(t, o.State.Record(model.ProcessingStateRecord{
		IntegrationID:   "test-001",
		OperatorID:      "op-1",
		LastProcessedAt: time.Now(),
		Status:          model.ProcessingStatusSuccess,
	}))

	summary, err := o.Run(context.Background(), csvSources(), Options{
		OperatorID:                "op-1",
		SessionDir:                dir,
		MaxConcurrentIntegrations: 1,
		MaxAgeHours:               24,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.IntegrationsProcessed)
	assert.Equal(t, 1, summary.IntegrationsSkipped)
	assert.Equal(t, 0, exec.count())
}

func TestRun_DryRunBypassesExecutorAndSafety(t *testing.T) {
	exec := &recordingExecutor{}
	o, dir := newTestOrchestrator(t, exec)

	cfg := safety.DefaultConfig()
	cfg.AllowlistEnabled = true
	cfg.Allowlist = []string{"some-other-integration"}
	o.Safety = safety.NewController(cfg)

	summary, err := o.Run(context.Background(), csvSources(), Options{
		OperatorID:                "op-1",
		SessionDir:                dir,
		MaxConcurrentIntegrations: 1,
		ForceReprocess:            true,
		DryRun:                    true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ActionsExecuted)
	assert.Equal(t, 0, exec.count(), "dry run must not call the executor")
}

func TestRun_SafetyBlockRecordsErrorAndDoesNotExecute(t *testing.T) {
	exec := &recordingExecutor{}
	o, dir := newTestOrchestrator(t, exec)

	cfg := safety.DefaultConfig()
	cfg.AllowlistEnabled = true
	cfg.Allowlist = []string{"not-test-001"}
	o.Safety = safety.NewController(cfg)

	summary, err := o.Run(context.Background(), csvSources(), Options{
		OperatorID:                "op-1",
		SessionDir:                dir,
		MaxConcurrentIntegrations: 1,
		ForceReprocess:            true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, exec.count())
	assert.True(t, summary.Failed())
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, apperrors.KindSafety, summary.Errors[0].Kind)
	assert.Equal(t, "test-001", summary.Errors[0].IntegrationID)
}

func TestRun_EditionFilterSkipsNonMatchingIntegrations(t *testing.T) {
	exec := &recordingExecutor{}
	o, dir := newTestOrchestrator(t, exec)

	summary, err := o.Run(context.Background(), csvSources(), Options{
		OperatorID:                "op-1",
		SessionDir:                dir,
		MaxConcurrentIntegrations: 1,
		ForceReprocess:            true,
		EditionFilter:             model.EditionPremium,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.IntegrationsProcessed)
	assert.Equal(t, 1, summary.IntegrationsSkipped)
	assert.Equal(t, 0, exec.count())
}

func TestRun_CreateRestoreBundleCollectsExecutedIntegrations(t *testing.T) {
	exec := &recordingExecutor{}
	o, dir := newTestOrchestrator(t, exec)

	summary, err := o.Run(context.Background(), csvSources(), Options{
		OperatorID:                "op-1",
		SessionID:                 "sess-1",
		SessionDir:                dir,
		MaxConcurrentIntegrations: 1,
		ForceReprocess:            true,
		CreateRestoreBundle:       true,
		RestoreDescription:       "test bundle",
	})
	require.NoError(t, err)
	require.NotEmpty(t, summary.RestoreBundleID)

	bundle, err := o.Audit.(*audit.Logger).LoadRestoreBundle(summary.RestoreBundleID)
	require.NoError(t, err)
	require.Contains(t, bundle.Integrations, "test-001")

	restored := bundle.Integrations["test-001"]
	assert.JSONEq(t, `{"connectorEdition":"premium"}`, string(restored.Before))
	assert.JSONEq(t, `{"connectorEdition":"starter"}`, string(restored.After))
}
