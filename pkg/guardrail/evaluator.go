// Package guardrail enforces the resource and policy checks that bound the
// orchestrator independent of autonomy level: the daily action budget, the
// concurrent-action limit, the production approval lock, and the optional
// operator-defined CEL scope rule.
package guardrail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/store"
)

// Evaluator answers guardrail questions against persisted counters and
// records a GuardrailViolation for every block or flag it produces.
// Counter reads are read-modify-decide; the orchestrator serializes whole
// scan cycles so two cycles never jointly exceed a limit.
type Evaluator struct {
	actions    store.ActionStore
	violations store.ViolationStore
	logger     *slog.Logger
}

func NewEvaluator(actions store.ActionStore, violations store.ViolationStore, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{actions: actions, violations: violations, logger: logger.With("component", "guardrail")}
}

// CheckDailyBudget verifies that today's created-action count is still
// below max_daily_token_budget and returns how many more actions may be
// created today. On exhaustion it records one cycle-wide budget violation
// and returns a GuardrailBlockedError; the caller aborts candidate
// processing but still completes the scan log.
func (e *Evaluator) CheckDailyBudget(ctx context.Context, snap settings.Snapshot) (int, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	created, err := e.actions.CountActionsCreatedSince(ctx, dayStart)
	if err != nil {
		// Fail closed: an uncountable budget is an exhausted budget.
		e.logger.Error("daily budget count failed", "error", err)
		return 0, fmt.Errorf("daily budget count: %w", err)
	}
	if created < snap.MaxDailyTokenBudget {
		return snap.MaxDailyTokenBudget - created, nil
	}
	e.record(ctx, "", contracts.GuardrailBudget, settings.KeyMaxDailyTokenBudget, contracts.SeverityBlock, map[string]any{
		"created_today": created,
		"budget":        snap.MaxDailyTokenBudget,
	})
	return 0, &contracts.GuardrailBlockedError{
		GuardrailType: contracts.GuardrailBudget,
		GuardrailKey:  settings.KeyMaxDailyTokenBudget,
		Detail:        fmt.Sprintf("%d actions created today, budget is %d", created, snap.MaxDailyTokenBudget),
	}
}

// RecordBudgetExhausted records the block hit when creating a candidate's
// actions mid-cycle would push today's count past max_daily_token_budget.
func (e *Evaluator) RecordBudgetExhausted(ctx context.Context, snap settings.Snapshot, remaining, needed int) {
	e.record(ctx, "", contracts.GuardrailBudget, settings.KeyMaxDailyTokenBudget, contracts.SeverityBlock, map[string]any{
		"budget":           snap.MaxDailyTokenBudget,
		"remaining_today":  remaining,
		"actions_required": needed,
	})
}

// ConcurrencySlots returns how many more actions may become active this
// cycle: max_concurrent_actions minus actions currently in
// approved/simulating/executing. Never negative.
func (e *Evaluator) ConcurrencySlots(ctx context.Context, snap settings.Snapshot) (int, error) {
	active, err := e.actions.CountActiveActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("active action count: %w", err)
	}
	slots := snap.MaxConcurrentActions - active
	if slots < 0 {
		slots = 0
	}
	return slots, nil
}

// CheckApprovalSlots verifies that approving needed more actions stays
// within max_concurrent_actions. On exhaustion it records a block
// violation and returns a GuardrailBlockedError; the approval is refused.
func (e *Evaluator) CheckApprovalSlots(ctx context.Context, snap settings.Snapshot, needed int) error {
	slots, err := e.ConcurrencySlots(ctx, snap)
	if err != nil {
		return err
	}
	if slots >= needed {
		return nil
	}
	e.record(ctx, "", contracts.GuardrailConcurrentLimit, settings.KeyMaxConcurrentActions, contracts.SeverityBlock, map[string]any{
		"max_concurrent":   snap.MaxConcurrentActions,
		"slots_available":  slots,
		"actions_required": needed,
	})
	return &contracts.GuardrailBlockedError{
		GuardrailType: contracts.GuardrailConcurrentLimit,
		GuardrailKey:  settings.KeyMaxConcurrentActions,
		Detail:        fmt.Sprintf("approving %d action(s) needs more than the %d free slot(s)", needed, slots),
	}
}

// RecordConcurrencyExhausted logs the cycle-wide flag that remaining
// candidates were skipped. Skipped candidates are simply re-detected next
// cycle, so this is a warning, not a block.
func (e *Evaluator) RecordConcurrencyExhausted(ctx context.Context, snap settings.Snapshot, skipped int) {
	e.record(ctx, "", contracts.GuardrailConcurrentLimit, settings.KeyMaxConcurrentActions, contracts.SeverityWarning, map[string]any{
		"max_concurrent":     snap.MaxConcurrentActions,
		"candidates_skipped": skipped,
	})
}

// RecordSimulationFailure records one risk violation per named violation
// reason from a failed dry-run, severity block.
func (e *Evaluator) RecordSimulationFailure(ctx context.Context, actionID string, reasons []string) {
	for _, reason := range reasons {
		e.record(ctx, actionID, contracts.GuardrailRisk, "simulation", contracts.SeverityBlock, map[string]any{
			"reason": reason,
		})
	}
}

// RecordScopeBlock records a scope_lock block for a candidate the CEL scope
// rule rejected.
func (e *Evaluator) RecordScopeBlock(ctx context.Context, details map[string]any) {
	e.record(ctx, "", contracts.GuardrailScopeLock, settings.KeyGuardrailScopeExpression, contracts.SeverityBlock, details)
}

func (e *Evaluator) record(ctx context.Context, actionID string, t contracts.GuardrailType, key string, sev contracts.Severity, details map[string]any) {
	v := &contracts.GuardrailViolation{
		ID:               uuid.New().String(),
		ActionID:         actionID,
		GuardrailType:    t,
		GuardrailKey:     key,
		ViolationDetails: details,
		Severity:         sev,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.violations.CreateViolation(ctx, v); err != nil {
		// A violation we cannot record must not turn into a silent pass of
		// whatever triggered it; the decision already happened, so log loudly.
		e.logger.Error("failed to record guardrail violation", "type", t, "error", err)
	}
}

// ResolveViolation marks a violation resolved, recording the resolver.
func ResolveViolation(ctx context.Context, violations store.ViolationStore, id, resolvedBy string) error {
	v, err := violations.GetViolation(ctx, id)
	if err != nil {
		return err
	}
	if v.Resolved {
		return &contracts.ValidationError{Field: "violation", Reason: fmt.Sprintf("violation %s already resolved", id)}
	}
	now := time.Now().UTC()
	v.Resolved = true
	v.ResolvedBy = resolvedBy
	v.ResolvedAt = &now
	return violations.UpdateViolation(ctx, v)
}
