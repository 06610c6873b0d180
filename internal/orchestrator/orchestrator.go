// Package orchestrator wires the Ingestor, Detector, Remediation Engine,
// Planner, Safety Controller, Audit Logger and State Store into one session
// run (SPEC_FULL.md §2, §5). It owns no business rules of its own: every
// collaborator is constructed by the caller (the CLI) and injected here,
// per spec.md §9's "explicitly constructed collaborators" design note.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/detector"
	"github.com/catherinevee/integration-auditor/internal/ingest"
	"github.com/catherinevee/integration-auditor/internal/logging"
	"github.com/catherinevee/integration-auditor/internal/model"
	"github.com/catherinevee/integration-auditor/internal/planner"
	"github.com/catherinevee/integration-auditor/internal/remediation"
	"github.com/catherinevee/integration-auditor/internal/safety"
	"github.com/catherinevee/integration-auditor/internal/state"
)

// Orchestrator holds one session's collaborators. All fields are required
// except Logger, which defaults to an Info-level logger writing to stdout
// if nil.
type Orchestrator struct {
	Ingestor    *ingest.Ingestor
	Detector    *detector.Detector
	Remediation *remediation.Engine
	Safety      *safety.Controller
	State       *state.Store
	Executor    planner.Executor
	Audit       auditSink
	Logger      *logging.Logger
}

// auditSink is the subset of *audit.Logger the orchestrator calls; declared
// locally so this package's tests can substitute a stub without importing
// internal/audit's concrete Logger.
type auditSink interface {
	LogAction(entry model.AuditLogEntry)
	LogExecutionResult(result model.ExecutionResult)
	CreateRestoreBundle(integrations map[string]model.RestoreIntegration, operatorID, sessionID, description string) (string, error)
}

// Options configures one Run call. The CLI fills most fields from `fix`
// flags (spec.md §6); the session id and directory, abort and retry/timeout
// tuning, environment and version are set by the CLI itself, not by flags.
type Options struct {
	OperatorID                string
	SessionID                 string
	SessionDir                string
	DryRun                    bool
	AbortOnFirstFailure       bool
	ForceReprocess            bool
	ForceConfirmation         bool
	MaxAgeHours               int
	MaxOpsPerIntegration      int
	MaxConcurrentIntegrations int
	MaxAttempts               int
	BaseDelay                 time.Duration
	BackoffMultiplier         float64
	MaxDelay                  time.Duration
	ActionTimeout             time.Duration
	Environment               string
	Version                   string
	CreateRestoreBundle       bool
	RestoreDescription        string

	// EditionFilter restricts processing to integrations whose
	// LicenseEdition matches, per the `fix --edition` flag (spec.md §6).
	// Empty means "process every edition".
	EditionFilter model.LicenseEdition
}

// sessionState is the mutable, mutex-guarded state every worker goroutine
// touches: the running summary and the restore bundle under construction.
type sessionState struct {
	mu                  sync.Mutex
	summary             Summary
	restoreIntegrations map[string]model.RestoreIntegration
}

// Run streams snapshots from src, processes each through the full
// detect/remediate/plan/execute pipeline with at most
// opts.MaxConcurrentIntegrations workers in flight, and returns the
// session's summary (spec.md §5, §7).
func (o *Orchestrator) Run(ctx context.Context, src ingest.Sources, opts Options) (Summary, error) {
	if opts.MaxConcurrentIntegrations <= 0 {
		opts.MaxConcurrentIntegrations = 1
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.New(logging.Info, nil)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshots, ingestErrs := o.Ingestor.Stream(sessionCtx, src)

	st := &sessionState{
		summary:             newSummary(opts.SessionDir),
		restoreIntegrations: make(map[string]model.RestoreIntegration),
	}

	var wg sync.WaitGroup
	for i := 0; i < opts.MaxConcurrentIntegrations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range snapshots {
				o.processIntegration(sessionCtx, snap, opts, st, logger)
			}
		}()
	}
	wg.Wait()

	var ingestErr error
	select {
	case err, ok := <-ingestErrs:
		if ok && err != nil {
			ingestErr = err
			st.mu.Lock()
			st.summary.recordError("", apperrors.KindConfig, err)
			st.mu.Unlock()
			logger.Error("ingest aborted the session", logging.F("error", err.Error()))
		}
	default:
	}

	summary := st.summary
	if opts.CreateRestoreBundle && len(st.restoreIntegrations) > 0 {
		id, err := o.Audit.CreateRestoreBundle(st.restoreIntegrations, opts.OperatorID, opts.SessionID, opts.RestoreDescription)
		if err != nil {
			logger.Warn("restore bundle creation failed", logging.F("error", err.Error()))
		} else {
			summary.RestoreBundleID = id
		}
	}

	return summary, ingestErr
}

// processIntegration runs one snapshot through detect -> remediate -> plan
// -> execute -> record. Every failure path is isolated to this integration
// (spec.md §7's propagation policy); nothing here aborts the session.
func (o *Orchestrator) processIntegration(ctx context.Context, snap model.IntegrationSnapshot, opts Options, st *sessionState, logger *logging.Logger) {
	log := logger.WithFields(logging.F("integrationId", snap.ID))

	if opts.EditionFilter != "" && snap.LicenseEdition != opts.EditionFilter {
		st.mu.Lock()
		st.summary.IntegrationsSkipped++
		st.mu.Unlock()
		log.Debug("skipping, edition filter does not match")
		return
	}

	should, err := o.State.ShouldReprocess(snap.ID, opts.OperatorID, opts.MaxAgeHours, opts.ForceReprocess)
	if err != nil {
		st.mu.Lock()
		st.summary.recordError(snap.ID, apperrors.KindConfig, err)
		st.mu.Unlock()
		return
	}
	if !should {
		st.mu.Lock()
		st.summary.IntegrationsSkipped++
		st.mu.Unlock()
		log.Debug("skipping, recently processed")
		return
	}

	result, err := o.Detector.Detect(&snap)
	if err != nil {
		st.mu.Lock()
		st.summary.recordError(snap.ID, apperrors.KindDetector, err)
		st.mu.Unlock()
		o.recordOutcome(snap.ID, opts.OperatorID, model.ProcessingStatusFailed, nil)
		return
	}

	st.mu.Lock()
	for _, ev := range result.CorruptionEvents {
		st.summary.EventsByType[ev.Params.CorruptionType]++
		st.summary.EventsBySeverity[string(ev.Severity)]++
	}
	st.mu.Unlock()

	if len(result.CorruptionEvents) == 0 {
		st.mu.Lock()
		st.summary.IntegrationsProcessed++
		st.mu.Unlock()
		o.recordOutcome(snap.ID, opts.OperatorID, model.ProcessingStatusSuccess, nil)
		return
	}

	remResult, err := o.Remediation.GenerateActions(result.CorruptionEvents, remediation.Context{
		IntegrationID:        snap.ID,
		Email:                snap.Email,
		StoreCount:           snap.StoreCount,
		Edition:              snap.LicenseEdition,
		OperatorID:           opts.OperatorID,
		DryRun:               opts.DryRun,
		MaxOpsPerIntegration: opts.MaxOpsPerIntegration,
	})
	if err != nil {
		st.mu.Lock()
		st.summary.recordError(snap.ID, apperrors.KindRemediation, err)
		st.mu.Unlock()
		o.recordOutcome(snap.ID, opts.OperatorID, model.ProcessingStatusFailed, nil)
		return
	}

	plan := planner.CreateExecutionPlan(snap.ID, remResult.Actions, opts.MaxOpsPerIntegration, opts.AbortOnFirstFailure)

	st.mu.Lock()
	st.summary.ActionsPlanned += len(plan.Actions)
	st.mu.Unlock()

	// Safety blocks this integration's plan before execution; a dry run still goes
	// ahead so an operator can see what would have been blocked
	// (spec.md §7(e)).
	if !opts.DryRun {
		preflight := o.Safety.PerformPreflightCheck(safety.PreflightRequest{
			IntegrationIDs:    []string{snap.ID},
			Plans:             []model.ExecutionPlan{plan},
			OperatorID:        opts.OperatorID,
			ForceConfirmation: opts.ForceConfirmation,
		})
		if !preflight.Allowed {
			err := fmt.Errorf("%w: %v", apperrors.ErrSafetyBlocked, preflight.Blockers)
			st.mu.Lock()
			st.summary.recordError(snap.ID, apperrors.KindSafety, apperrors.New(apperrors.KindSafety, snap.ID, err))
			st.mu.Unlock()
			o.recordOutcome(snap.ID, opts.OperatorID, model.ProcessingStatusFailed, nil)
			return
		}
	}

	execResult := planner.ExecutePlan(ctx, plan, o.Executor, o.Safety, o.Audit, planner.Options{
		DryRun:            opts.DryRun,
		StopOnFailure:     opts.AbortOnFirstFailure,
		MaxAttempts:       opts.MaxAttempts,
		BaseDelay:         opts.BaseDelay,
		BackoffMultiplier: opts.BackoffMultiplier,
		MaxDelay:          opts.MaxDelay,
		ActionTimeout:     opts.ActionTimeout,
		OperatorID:        opts.OperatorID,
		SessionID:         opts.SessionID,
		Environment:       opts.Environment,
		Version:           opts.Version,
	})
	o.Audit.LogExecutionResult(execResult)

	st.mu.Lock()
	st.summary.IntegrationsProcessed++
	st.summary.ActionsExecuted += len(execResult.Actions.Executed)
	st.summary.ActionsFailed += len(execResult.Actions.Failed)
	st.summary.ActionsSkipped += len(execResult.Actions.Skipped)
	for _, f := range execResult.Actions.Failed {
		st.summary.recordError(snap.ID, apperrors.KindExecutor, apperrors.New(apperrors.KindExecutor, snap.ID, fmt.Errorf("action %s: %s", f.ActionID, f.Error)))
	}
	if opts.CreateRestoreBundle && !opts.DryRun && len(plan.Actions) > 0 {
		st.restoreIntegrations[snap.ID] = model.RestoreIntegration{
			Before:  rawSettings(snap),
			After:   restoredAfter(snap, plan, execResult.Actions.Executed),
			Actions: plan.Actions,
		}
	}
	st.mu.Unlock()

	o.recordOutcome(snap.ID, opts.OperatorID, model.ProcessingStatus(execResult.Status), &execResult)
}

// recordOutcome upserts the state store record for one integration. State
// store write failures are logged by State.Record's caller chain but never
// surfaced here: losing one processing-state row doesn't invalidate the
// work already done, only the "should we skip next run" heuristic.
func (o *Orchestrator) recordOutcome(integrationID, operatorID string, status model.ProcessingStatus, execResult *model.ExecutionResult) {
	_ = o.State.Record(model.ProcessingStateRecord{
		IntegrationID:   integrationID,
		OperatorID:      operatorID,
		LastProcessedAt: time.Now(),
		LastResultHash:  resultHash(execResult),
		Status:          status,
	})
}

// resultHash fingerprints an execution result's action ids and statuses, so
// two runs with identical outcomes compare equal without storing the full
// payload.
func resultHash(execResult *model.ExecutionResult) string {
	if execResult == nil {
		return ""
	}
	data, err := json.Marshal(execResult.Actions)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func rawSettings(snap model.IntegrationSnapshot) json.RawMessage {
	data, err := json.Marshal(snap.Settings.Raw)
	if err != nil {
		return nil
	}
	return data
}

// restoredAfter reconstructs the settings state a restore bundle's
// "after" field documents (spec.md §3's per-integration {before, after,
// actions}): a copy of the pre-run settings with every executed action's
// Payload.After fragment merged on top, in plan order. Actions that never
// executed (failed, skipped) leave no trace here, matching what actually
// happened to the integration.
func restoredAfter(snap model.IntegrationSnapshot, plan model.ExecutionPlan, executed []model.ActionOutcome) json.RawMessage {
	after := map[string]interface{}{}
	for k, v := range snap.Settings.Raw {
		after[k] = v
	}

	executedIDs := make(map[string]bool, len(executed))
	for _, outcome := range executed {
		executedIDs[outcome.ActionID] = true
	}

	for _, action := range plan.Actions {
		if !executedIDs[action.ID] || len(action.Payload.After) == 0 {
			continue
		}
		var fragment map[string]interface{}
		if err := json.Unmarshal(action.Payload.After, &fragment); err != nil {
			continue
		}
		for k, v := range fragment {
			after[k] = v
		}
	}

	data, err := json.Marshal(after)
	if err != nil {
		return nil
	}
	return data
}
