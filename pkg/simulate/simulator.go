// Package simulate computes dry-run previews for approved actions. The
// simulator never mutates the target domain: it marks an action
// simulating, computes an action-type-specific before/after delta against
// current read-only state, and settles on simulation_passed or
// simulation_failed. Re-simulating recomputes from current state.
package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/detect"
	"github.com/complyon/autonomy/pkg/guardrail"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/store"
)

// Violation reasons emitted by delta computation.
const (
	ViolationTargetNotFound    = "target_not_found"
	ViolationInvalidParameters = "invalid_parameters"
	ViolationConflictingChange = "conflicting_change"
)

// Simulator advances approved actions through dry-run validation.
type Simulator struct {
	store     store.Store
	providers detect.Providers
	guard     *guardrail.Evaluator
	schemas   map[contracts.ActionType]*jsonschema.Schema
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a simulator. The limiter paces delta computation so a large
// backlog of approved actions cannot saturate the providers.
func New(st store.Store, providers detect.Providers, guard *guardrail.Evaluator, logger *slog.Logger) (*Simulator, error) {
	schemas, err := compileParameterSchemas()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		store:     st,
		providers: providers,
		guard:     guard,
		schemas:   schemas,
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		logger:    logger.With("component", "simulate"),
	}, nil
}

// RunBatch simulates up to the snapshot's batch size of approved actions,
// one at a time, in ascending sequence order within each intent and at most
// one action per intent per batch. Individual failures are contained;
// RunBatch only errors when the batch cannot be listed at all.
func (s *Simulator) RunBatch(ctx context.Context, snap settings.Snapshot) (int, error) {
	actions, err := s.store.ListApprovedActions(ctx, snap.SimulationBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list approved actions: %w", err)
	}
	simulated := 0
	for _, a := range actions {
		if err := s.limiter.Wait(ctx); err != nil {
			return simulated, err
		}
		if err := s.simulateOne(ctx, a, snap); err != nil {
			s.logger.Warn("simulation errored", "action_id", a.ID, "error", err)
		}
		simulated++
	}
	return simulated, nil
}

func (s *Simulator) simulateOne(ctx context.Context, a *contracts.Action, snap settings.Snapshot) error {
	a.Status = contracts.ActionSimulating
	if err := s.store.UpdateAction(ctx, a); err != nil {
		return fmt.Errorf("mark simulating: %w", err)
	}

	dctx := ctx
	if snap.DetectorTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, snap.DetectorTimeout)
		defer cancel()
	}

	result, err := s.computeDelta(dctx, a)
	if err != nil {
		// Delta computation failed outright: the action is simulation_failed
		// with the error, never simulation_passed.
		simErr := &contracts.SimulationError{ActionID: a.ID, Err: err}
		a.Status = contracts.ActionSimulationFailed
		a.ErrorMessage = simErr.Error()
		a.SimulationResult = &contracts.SimulationResult{Passed: false, SimulatedAt: time.Now().UTC()}
		if uerr := s.store.UpdateAction(ctx, a); uerr != nil {
			return fmt.Errorf("record simulation error: %w", uerr)
		}
		return simErr
	}

	a.SimulationResult = result
	if result.Passed {
		a.Status = contracts.ActionSimulationPassed
	} else {
		a.Status = contracts.ActionSimulationFailed
		s.guard.RecordSimulationFailure(ctx, a.ID, result.Violations)
	}
	if err := s.store.UpdateAction(ctx, a); err != nil {
		return fmt.Errorf("record simulation result: %w", err)
	}

	if result.Passed {
		if err := s.maybeAdvanceIntent(ctx, a.IntentID); err != nil {
			s.logger.Warn("intent advance failed", "intent_id", a.IntentID, "error", err)
		}
	}
	s.logger.Info("action simulated", "action_id", a.ID, "passed", result.Passed, "violations", result.Violations)
	return nil
}

// computeDelta builds the before/after preview for one action against
// current read-only state.
func (s *Simulator) computeDelta(ctx context.Context, a *contracts.Action) (*contracts.SimulationResult, error) {
	result := &contracts.SimulationResult{SimulatedAt: time.Now().UTC()}

	params := a.Parameters
	if params == nil {
		params = map[string]any{}
	}
	if schema, ok := s.schemas[a.ActionType]; ok {
		if err := schema.Validate(toValidatable(params)); err != nil {
			result.Violations = append(result.Violations, ViolationInvalidParameters)
			result.Risks = append(result.Risks, err.Error())
		}
	}

	exists, err := s.providers.EntityExists(ctx, a.TargetEntityType, a.TargetEntityID)
	if err != nil {
		return nil, fmt.Errorf("target lookup: %w", err)
	}

	switch a.ActionType {
	case contracts.ActionCreateVariant:
		// Creation targets must exist as the parent entity to attach to.
		if !exists {
			result.Violations = append(result.Violations, ViolationTargetNotFound)
		}
		result.Before = map[string]any{"target_exists": exists, "variant_exists": false}
		result.After = map[string]any{"target_exists": exists, "variant_exists": true}
	case contracts.ActionUpdateDeployment, contracts.ActionRenewCertification,
		contracts.ActionFlagRisk, contracts.ActionProposeOntologyEdge,
		contracts.ActionSubmitMarketplaceListing:
		if !exists {
			result.Violations = append(result.Violations, ViolationTargetNotFound)
		}
		result.Before = map[string]any{"target_exists": exists}
		result.After = map[string]any{"target_exists": exists, "modified": exists}
	default:
		result.Violations = append(result.Violations, ViolationInvalidParameters)
		result.Risks = append(result.Risks, fmt.Sprintf("unknown action type %q", a.ActionType))
	}

	conflict, err := s.hasConflictingChange(ctx, a)
	if err != nil {
		return nil, err
	}
	if conflict {
		result.Violations = append(result.Violations, ViolationConflictingChange)
	}

	result.Passed = len(result.Violations) == 0
	return result, nil
}

// hasConflictingChange reports whether another intent's in-flight action
// targets the same entity.
func (s *Simulator) hasConflictingChange(ctx context.Context, a *contracts.Action) (bool, error) {
	others, err := s.store.ListActions(ctx, store.ActionFilter{
		Status: []contracts.ActionStatus{
			contracts.ActionApproved, contracts.ActionSimulating,
			contracts.ActionSimulationPassed, contracts.ActionExecuting,
		},
		Page: store.Page{Limit: 500},
	})
	if err != nil {
		return false, fmt.Errorf("conflict scan: %w", err)
	}
	for _, o := range others {
		if o.ID == a.ID || o.IntentID == a.IntentID {
			continue
		}
		if o.TargetEntityType == a.TargetEntityType && o.TargetEntityID == a.TargetEntityID {
			return true, nil
		}
	}
	return false, nil
}

// maybeAdvanceIntent moves the owning intent to simulating once every one
// of its actions has passed simulation.
func (s *Simulator) maybeAdvanceIntent(ctx context.Context, intentID string) error {
	actions, err := s.store.ListActions(ctx, store.ActionFilter{IntentID: intentID})
	if err != nil {
		return err
	}
	for _, a := range actions {
		if a.Status != contracts.ActionSimulationPassed {
			return nil
		}
	}
	in, err := s.store.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if in.Status.Terminal() {
		return nil
	}
	in.Status = contracts.IntentSimulating
	return s.store.UpdateIntent(ctx, in)
}

// toValidatable round-trips parameters into the plain JSON value shapes the
// schema validator expects (map[string]any with float64 numbers).
func toValidatable(params map[string]any) any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}
