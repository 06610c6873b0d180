package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/catherinevee/integration-auditor/internal/audit"
	"github.com/catherinevee/integration-auditor/internal/config"
	"github.com/catherinevee/integration-auditor/internal/detector"
	"github.com/catherinevee/integration-auditor/internal/executor"
	"github.com/catherinevee/integration-auditor/internal/ingest"
	"github.com/catherinevee/integration-auditor/internal/model"
	"github.com/catherinevee/integration-auditor/internal/orchestrator"
	"github.com/catherinevee/integration-auditor/internal/planner"
	"github.com/catherinevee/integration-auditor/internal/remediation"
	"github.com/catherinevee/integration-auditor/internal/rulesconfig"
	"github.com/catherinevee/integration-auditor/internal/safety"
	"github.com/catherinevee/integration-auditor/internal/state"
)

// fixFlags holds the `fix`/`audit` flag surface named in spec.md §6.
type fixFlags struct {
	product                   string
	edition                   string
	version                   string
	tier                      string
	allowlist                 []string
	allowlistAccounts         []string
	maxOpsPerIntegration      int
	maxConcurrent             int
	rateLimit                 float64
	batchSize                 int
	operatorID                string
	forceConfirmation         bool
	createRestoreBundle       bool
	maintenanceWindowDays     []string
	maintenanceWindowRange    string
	forceReprocess            bool
	maxAgeHours               int
	dryRun                    bool
}

// session bundles everything buildSession constructs so a command can run
// the orchestrator and then tear the collaborators down.
type session struct {
	orch       *orchestrator.Orchestrator
	opts       orchestrator.Options
	sources    ingest.Sources
	closers    []func() error
	sessionDir string
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// buildSession wires the Ingestor, Detector, Remediation Engine, Safety
// Controller, Audit Logger, State Store and (when not a dry run) a
// ScriptExecutor into one orchestrator.Orchestrator, following spec.md
// §6's output layout for the session directory.
func buildSession(f fixFlags) (*session, error) {
	cfgMgr, err := config.NewManager("auditor.yaml", rootLogger())
	if err != nil {
		return nil, fmt.Errorf("loading CLI config: %w", err)
	}
	cli := cfgMgr.Get()
	if configDir == "" {
		configDir = cli.ConfigDir
	}

	rules, err := rulesconfig.LoadForProduct(configDir, f.product, f.version)
	if err != nil {
		return nil, fmt.Errorf("loading business rules: %w", err)
	}
	logic, err := rulesconfig.LoadRemediationLogic(filepath.Join(configDir, "remediation-logic.json"))
	if err != nil {
		return nil, fmt.Errorf("loading remediation logic: %w", err)
	}

	tierDir := inputDir
	if f.tier != "" {
		tierDir = filepath.Join(inputDir, f.tier)
	}
	sources, closers, err := ingest.OpenTierDir(tierDir)
	if err != nil {
		return nil, fmt.Errorf("opening input tier %s: %w", tierDir, err)
	}
	sources = withIngestProgress(sources)

	sessionID := uuid.NewString()
	sessionDir := filepath.Join(outputDir, "session-"+time.Now().UTC().Format("20060102T150405Z"))
	for _, sub := range []string{"reports", "remediation-plan", "remediation-scripts", "logs", "audit"} {
		if err := os.MkdirAll(filepath.Join(sessionDir, sub), 0o755); err != nil {
			ingest.CloseAll(closers)
			return nil, fmt.Errorf("creating session directory: %w", err)
		}
	}

	auditLogger, err := audit.New(filepath.Join(sessionDir, "audit"))
	if err != nil {
		ingest.CloseAll(closers)
		return nil, fmt.Errorf("opening audit logger: %w", err)
	}

	statePath := cli.StateDBPath
	if statePath == "" {
		statePath = filepath.Join(sessionDir, "state.db")
	}
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		auditLogger.Close()
		ingest.CloseAll(closers)
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	store, err := state.Open(statePath)
	if err != nil {
		auditLogger.Close()
		ingest.CloseAll(closers)
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	safetyCfg := safety.DefaultConfig()
	safetyCfg = config.SafetyFromEnv(safetyCfg)
	if len(f.allowlist) > 0 || len(f.allowlistAccounts) > 0 {
		safetyCfg.AllowlistEnabled = true
		safetyCfg.Allowlist = append(append([]string{}, f.allowlist...), f.allowlistAccounts...)
	}
	if f.maxOpsPerIntegration > 0 {
		safetyCfg.MaxOpsPerIntegration = f.maxOpsPerIntegration
	}
	if f.maxConcurrent > 0 {
		safetyCfg.MaxConcurrentIntegrations = f.maxConcurrent
	}
	if f.rateLimit > 0 {
		safetyCfg.RateLimit.RequestsPerSecond = f.rateLimit
	}
	if len(f.maintenanceWindowDays) > 0 && f.maintenanceWindowRange != "" {
		win, err := safety.ParseMaintenanceWindow(f.maintenanceWindowDays, f.maintenanceWindowRange, time.Local)
		if err != nil {
			store.Close()
			auditLogger.Close()
			ingest.CloseAll(closers)
			return nil, fmt.Errorf("parsing maintenance window: %w", err)
		}
		safetyCfg.MaintenanceWindow = win
	}

	var exec planner.Executor
	if !f.dryRun {
		scriptExec, err := executor.NewScriptExecutor(filepath.Join(sessionDir, "remediation-scripts"))
		if err != nil {
			store.Close()
			auditLogger.Close()
			ingest.CloseAll(closers)
			return nil, fmt.Errorf("creating script executor: %w", err)
		}
		exec = scriptExec
	}

	orch := &orchestrator.Orchestrator{
		Ingestor:    ingest.New(),
		Detector:    detector.New(rules),
		Remediation: remediation.New(logic),
		Safety:      safety.NewController(safetyCfg),
		State:       store,
		Executor:    exec,
		Audit:       auditLogger,
		Logger:      rootLogger(),
	}

	opts := orchestrator.Options{
		OperatorID:                f.operatorID,
		SessionID:                 sessionID,
		SessionDir:                sessionDir,
		DryRun:                    f.dryRun,
		ForceReprocess:            f.forceReprocess,
		ForceConfirmation:         f.forceConfirmation,
		MaxAgeHours:               f.maxAgeHours,
		MaxOpsPerIntegration:      safetyCfg.MaxOpsPerIntegration,
		MaxConcurrentIntegrations: safetyCfg.MaxConcurrentIntegrations,
		MaxAttempts:               3,
		CreateRestoreBundle:       f.createRestoreBundle,
		RestoreDescription:        fmt.Sprintf("%s run by %s", f.product, f.operatorID),
		EditionFilter:             model.LicenseEdition(f.edition),
	}

	return &session{
		orch:       orch,
		opts:       opts,
		sources:    sources,
		sessionDir: sessionDir,
		closers: []func() error{
			store.Close,
			auditLogger.Close,
			func() error { ingest.CloseAll(closers); return nil },
		},
	}, nil
}
