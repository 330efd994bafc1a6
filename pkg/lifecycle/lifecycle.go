// Package lifecycle is the authoritative state machine for intents and
// their actions. All transitions go through here; illegal ones are rejected
// synchronously with a TransitionError naming the current state, never
// silently coerced. Cascades to child actions are applied atomically with
// the parent transition.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/guardrail"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/store"
)

const cancelledMessage = "intent cancelled"

// Service drives intent and action transitions against the store.
// Approvals re-check the concurrency guardrail: actions created as
// awaiting_approval are not active, so the creating cycle's slot
// accounting alone cannot bound what operators later approve.
type Service struct {
	store  store.Store
	guard  *guardrail.Evaluator
	logger *slog.Logger
}

func NewService(st store.Store, guard *guardrail.Evaluator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = guardrail.NewEvaluator(st, st, logger)
	}
	return &Service{store: st, guard: guard, logger: logger.With("component", "lifecycle")}
}

// ApproveIntent moves an intent from proposed to approved and cascades its
// pending/awaiting_approval actions to approved. The cascade is refused
// with a GuardrailBlockedError when it would exceed max_concurrent_actions.
func (s *Service) ApproveIntent(ctx context.Context, id, approvedBy string) error {
	in, err := s.store.GetIntent(ctx, id)
	if err != nil {
		return err
	}
	if in.Status != contracts.IntentProposed {
		return &contracts.TransitionError{
			Kind: "intent", ID: id,
			Current: string(in.Status), Attempted: string(contracts.IntentApproved),
		}
	}
	cascading, err := s.store.ListActions(ctx, store.ActionFilter{
		IntentID: id,
		Status:   []contracts.ActionStatus{contracts.ActionPending, contracts.ActionAwaitingApproval},
	})
	if err != nil {
		return fmt.Errorf("approve intent %s: %w", id, err)
	}
	if err := s.checkApprovalSlots(ctx, len(cascading)); err != nil {
		return err
	}
	moved, err := s.store.ApplyCascade(ctx, store.CascadeOp{
		IntentID:     id,
		IntentStatus: contracts.IntentApproved,
		ResolvedBy:   approvedBy,
		FromStatuses: []contracts.ActionStatus{contracts.ActionPending, contracts.ActionAwaitingApproval},
		ToStatus:     contracts.ActionApproved,
	})
	if err != nil {
		return fmt.Errorf("approve intent %s: %w", id, err)
	}
	s.logger.Info("intent approved", "intent_id", id, "by", approvedBy, "actions_approved", moved)
	return nil
}

// RejectIntent moves a non-terminal intent to rejected and fails all its
// non-terminal actions with the given reason.
func (s *Service) RejectIntent(ctx context.Context, id, rejectedBy, reason string) error {
	in, err := s.store.GetIntent(ctx, id)
	if err != nil {
		return err
	}
	if in.Status.Terminal() {
		return &contracts.TransitionError{
			Kind: "intent", ID: id,
			Current: string(in.Status), Attempted: string(contracts.IntentRejected),
		}
	}
	moved, err := s.store.ApplyCascade(ctx, store.CascadeOp{
		IntentID:     id,
		IntentStatus: contracts.IntentRejected,
		ResolvedBy:   rejectedBy,
		Reason:       reason,
		FromStatuses: nonTerminalActionStatuses(),
		ToStatus:     contracts.ActionFailed,
	})
	if err != nil {
		return fmt.Errorf("reject intent %s: %w", id, err)
	}
	s.logger.Info("intent rejected", "intent_id", id, "by", rejectedBy, "actions_failed", moved)
	return nil
}

// CancelIntent cancels an intent from any state except completed/cancelled
// and fails every action not already in a terminal state. Cancellation is
// immediate and synchronous; no action of the intent keeps running.
func (s *Service) CancelIntent(ctx context.Context, id, cancelledBy string) error {
	in, err := s.store.GetIntent(ctx, id)
	if err != nil {
		return err
	}
	if in.Status == contracts.IntentCompleted || in.Status == contracts.IntentCancelled {
		return &contracts.TransitionError{
			Kind: "intent", ID: id,
			Current: string(in.Status), Attempted: string(contracts.IntentCancelled),
		}
	}
	moved, err := s.store.ApplyCascade(ctx, store.CascadeOp{
		IntentID:     id,
		IntentStatus: contracts.IntentCancelled,
		ResolvedBy:   cancelledBy,
		Reason:       cancelledMessage,
		FromStatuses: nonTerminalActionStatuses(),
		ToStatus:     contracts.ActionFailed,
	})
	if err != nil {
		return fmt.Errorf("cancel intent %s: %w", id, err)
	}
	s.logger.Info("intent cancelled", "intent_id", id, "by", cancelledBy, "actions_failed", moved)
	return nil
}

// ApproveAction moves a single action from awaiting_approval to approved.
// The approval is refused with a GuardrailBlockedError when no concurrency
// slot is free.
func (s *Service) ApproveAction(ctx context.Context, id, approvedBy string) error {
	a, err := s.store.GetAction(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != contracts.ActionAwaitingApproval {
		return &contracts.TransitionError{
			Kind: "action", ID: id,
			Current: string(a.Status), Attempted: string(contracts.ActionApproved),
		}
	}
	if err := s.checkApprovalSlots(ctx, 1); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.Status = contracts.ActionApproved
	a.ApprovedBy = approvedBy
	a.ApprovedAt = &now
	if err := s.store.UpdateAction(ctx, a); err != nil {
		return fmt.Errorf("approve action %s: %w", id, err)
	}
	s.logger.Info("action approved", "action_id", id, "by", approvedBy)
	return nil
}

// RejectAction fails a single action with the given reason, from any
// pre-terminal state.
func (s *Service) RejectAction(ctx context.Context, id, rejectedBy, reason string) error {
	a, err := s.store.GetAction(ctx, id)
	if err != nil {
		return err
	}
	if a.Status.Terminal() {
		return &contracts.TransitionError{
			Kind: "action", ID: id,
			Current: string(a.Status), Attempted: string(contracts.ActionFailed),
		}
	}
	a.Status = contracts.ActionFailed
	a.ErrorMessage = reason
	if err := s.store.UpdateAction(ctx, a); err != nil {
		return fmt.Errorf("reject action %s: %w", id, err)
	}
	s.logger.Info("action rejected", "action_id", id, "by", rejectedBy, "reason", reason)
	return nil
}

// checkApprovalSlots loads a fresh settings snapshot and asks the guardrail
// whether needed more active actions still fit under the concurrency limit.
func (s *Service) checkApprovalSlots(ctx context.Context, needed int) error {
	if needed == 0 {
		return nil
	}
	snap, err := settings.Load(ctx, s.store)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	return s.guard.CheckApprovalSlots(ctx, snap, needed)
}

// nonTerminalActionStatuses lists every action status a cascade may move.
// Terminal statuses (completed, failed, rolled_back) are never touched.
func nonTerminalActionStatuses() []contracts.ActionStatus {
	return []contracts.ActionStatus{
		contracts.ActionPending,
		contracts.ActionAwaitingApproval,
		contracts.ActionApproved,
		contracts.ActionSimulating,
		contracts.ActionSimulationPassed,
		contracts.ActionSimulationFailed,
		contracts.ActionExecuting,
	}
}
