// Package orchestrator runs the autonomous scan cycle: fan out detectors,
// deduplicate candidates, apply guardrails and the autonomy policy, and
// persist the resulting intents and actions under a scan log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/complyon/autonomy/pkg/autonomy"
	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/detect"
	"github.com/complyon/autonomy/pkg/guardrail"
	"github.com/complyon/autonomy/pkg/observability"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/store"
)

const (
	scanTypeAutonomous = "autonomous_scan"

	// Unresolved intents expire after a week; detectors will simply
	// re-propose anything still relevant.
	intentTTL = 7 * 24 * time.Hour
)

// CycleReport summarizes one scan cycle for callers and logs.
type CycleReport struct {
	ScanLogID           string
	Skipped             bool   // another cycle held the lock
	Aborted             string // non-empty when a cycle-wide guardrail stopped candidate processing
	Candidates          int
	Deduplicated        int
	ScopeBlocked        int
	SkippedConcurrency  int
	IntentsCreated      int
	ActionsCreated      int
	GuardrailsTriggered int
	DetectorErrors      int
}

// Orchestrator owns the scan cycle. One instance serves one process; the
// ScanLocker serializes cycles across processes sharing a store.
type Orchestrator struct {
	st        store.Store
	providers detect.Providers
	runner    *detect.Runner
	guard     *guardrail.Evaluator
	locker    ScanLocker
	obs       *observability.Provider
	logger    *slog.Logger
	now       func() time.Time
}

func New(st store.Store, providers detect.Providers, runner *detect.Runner, guard *guardrail.Evaluator, locker ScanLocker, obs *observability.Provider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = NewMutexLocker()
	}
	if obs == nil {
		obs, _ = observability.New(context.Background(), nil)
	}
	return &Orchestrator{
		st:        st,
		providers: providers,
		runner:    runner,
		guard:     guard,
		locker:    locker,
		obs:       obs,
		logger:    logger.With("component", "orchestrator"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunScanCycle executes one full scan cycle. A cycle that cannot take the
// scan lock is skipped, not queued. Guardrail aborts still complete the
// scan log; only infrastructure failures return an error.
func (o *Orchestrator) RunScanCycle(ctx context.Context) (*CycleReport, error) {
	acquired, err := o.locker.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan lock: %w", err)
	}
	if !acquired {
		o.logger.Info("scan cycle skipped, lock held elsewhere")
		return &CycleReport{Skipped: true}, nil
	}
	defer func() {
		if err := o.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			o.logger.Error("scan lock release failed", "error", err)
		}
	}()

	started := o.now()
	ctx, span := o.obs.StartCycle(ctx, "orchestrator.scan_cycle")
	defer span.End()

	snap, err := settings.Load(ctx, o.st)
	if err != nil {
		return nil, err
	}

	log := &contracts.ScanLog{
		ID:        uuid.New().String(),
		ScanType:  scanTypeAutonomous,
		StartedAt: started,
	}
	if err := o.st.CreateScanLog(ctx, log); err != nil {
		return nil, fmt.Errorf("open scan log: %w", err)
	}

	report := &CycleReport{ScanLogID: log.ID}
	res := o.runner.Run(ctx, o.providers, snap)
	report.Candidates = len(res.Candidates)
	report.DetectorErrors = len(res.Errors)

	scope, err := guardrail.CompileScopeRule(snap.GuardrailScopeExpression)
	if err != nil {
		// A broken scope rule blocks everything until an operator fixes it.
		o.guard.RecordScopeBlock(ctx, map[string]any{
			"error":      err.Error(),
			"expression": snap.GuardrailScopeExpression,
		})
		report.GuardrailsTriggered++
		report.Aborted = "scope rule compile failed"
		o.complete(ctx, log, report, res, "guardrail scope expression does not compile: "+err.Error())
		return report, nil
	}

	budgetLeft, err := o.guard.CheckDailyBudget(ctx, snap)
	if err != nil {
		var blocked *contracts.GuardrailBlockedError
		if !errors.As(err, &blocked) {
			o.complete(ctx, log, report, res, err.Error())
			return report, err
		}
		report.GuardrailsTriggered++
		report.Aborted = "daily budget exhausted"
		o.complete(ctx, log, report, res, blocked.Error())
		return report, nil
	}

	slots, err := o.guard.ConcurrencySlots(ctx, snap)
	if err != nil {
		o.complete(ctx, log, report, res, err.Error())
		return report, err
	}

	for i, cand := range res.Candidates {
		if targetID := cand.TargetID(); targetID != "" {
			exists, err := o.st.HasNonTerminalIntent(ctx, cand.IntentType, targetID)
			if err != nil {
				o.complete(ctx, log, report, res, err.Error())
				return report, fmt.Errorf("dedup check: %w", err)
			}
			if exists {
				report.Deduplicated++
				continue
			}
		}

		if blocked, err := scope.Blocks(&cand); blocked {
			details := map[string]any{
				"intent_type": string(cand.IntentType),
				"title":       cand.Title,
			}
			if err != nil {
				details["error"] = err.Error()
			}
			o.guard.RecordScopeBlock(ctx, details)
			report.ScopeBlocked++
			report.GuardrailsTriggered++
			continue
		}

		need := len(cand.Actions)
		if budgetLeft < need {
			o.guard.RecordBudgetExhausted(ctx, snap, budgetLeft, need)
			report.GuardrailsTriggered++
			report.Aborted = "daily budget exhausted"
			break
		}
		if slots < need {
			report.SkippedConcurrency = len(res.Candidates) - i
			o.guard.RecordConcurrencyExhausted(ctx, snap, report.SkippedConcurrency)
			report.GuardrailsTriggered++
			break
		}

		created, err := o.materialize(ctx, snap, &cand)
		if err != nil {
			o.complete(ctx, log, report, res, err.Error())
			return report, err
		}
		report.IntentsCreated++
		report.ActionsCreated += created
		// Every created action occupies a slot and a unit of today's budget
		// this cycle even while it waits for approval, so a burst of
		// proposals cannot overshoot either limit the moment a human
		// approves them.
		slots -= created
		budgetLeft -= created
	}

	o.complete(ctx, log, report, res, "")
	o.obs.RecordCycle(ctx, scanTypeAutonomous, report.IntentsCreated, report.ActionsCreated, report.GuardrailsTriggered, o.now().Sub(started))
	o.logger.Info("scan cycle complete",
		"scan_log_id", log.ID,
		"candidates", report.Candidates,
		"intents_created", report.IntentsCreated,
		"actions_created", report.ActionsCreated,
		"deduplicated", report.Deduplicated,
		"guardrails_triggered", report.GuardrailsTriggered,
		"detector_errors", report.DetectorErrors,
	)
	return report, nil
}

// materialize persists one candidate as a proposed intent plus its actions,
// each action gated individually by the autonomy policy. Returns the number
// of actions created.
func (o *Orchestrator) materialize(ctx context.Context, snap settings.Snapshot, cand *contracts.IntentCandidate) (int, error) {
	now := o.now()
	expires := now.Add(intentTTL)
	in := &contracts.Intent{
		ID:                 uuid.New().String(),
		IntentType:         cand.IntentType,
		SourceSignal:       cand.SourceSignal,
		Priority:           cand.Priority,
		ConfidenceScore:    cand.ConfidenceScore,
		Title:              cand.Title,
		Description:        cand.Description,
		Context:            cand.Context,
		RecommendedActions: cand.Actions,
		Status:             contracts.IntentProposed,
		ExpiresAt:          &expires,
		CreatedAt:          now,
	}
	if err := o.st.CreateIntent(ctx, in); err != nil {
		return 0, fmt.Errorf("create intent: %w", err)
	}

	for i, spec := range cand.Actions {
		d := autonomy.Decide(snap, cand.ConfidenceScore, cand.Priority)
		a := &contracts.Action{
			ID:               uuid.New().String(),
			IntentID:         in.ID,
			ActionType:       spec.ActionType,
			TargetEntityType: spec.TargetEntityType,
			TargetEntityID:   spec.TargetEntityID,
			Parameters:       spec.Parameters,
			Status:           d.InitialStatus,
			RequiresApproval: d.RequiresApproval,
			SequenceOrder:    i,
			CreatedAt:        now,
		}
		if err := o.st.CreateAction(ctx, a); err != nil {
			return i, fmt.Errorf("create action: %w", err)
		}
		o.logger.Debug("action created",
			"intent_id", in.ID,
			"action_type", a.ActionType,
			"status", a.Status,
			"reason", d.Reason,
		)
	}
	return len(cand.Actions), nil
}

// complete closes the scan log exactly once with the cycle's totals.
func (o *Orchestrator) complete(ctx context.Context, log *contracts.ScanLog, report *CycleReport, res detect.Result, errMsg string) {
	done := o.now()
	log.CompletedAt = &done
	log.IntentsDetected = report.IntentsCreated
	log.ActionsCreated = report.ActionsCreated
	log.GuardrailsTriggered = report.GuardrailsTriggered
	log.ErrorMessage = errMsg

	scanContext := map[string]any{
		"candidates":   report.Candidates,
		"deduplicated": report.Deduplicated,
		"per_detector": res.PerDetector,
	}
	if report.ScopeBlocked > 0 {
		scanContext["scope_blocked"] = report.ScopeBlocked
	}
	if report.SkippedConcurrency > 0 {
		scanContext["skipped_concurrency"] = report.SkippedConcurrency
	}
	if report.Aborted != "" {
		scanContext["aborted"] = report.Aborted
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, len(res.Errors))
		for i, err := range res.Errors {
			msgs[i] = err.Error()
		}
		scanContext["detector_errors"] = msgs
	}
	log.ScanContext = scanContext

	if err := o.st.CompleteScanLog(ctx, log); err != nil {
		o.logger.Error("failed to complete scan log", "scan_log_id", log.ID, "error", err)
	}
}
