package guardrail_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/guardrail"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/store"
)

func createAction(t *testing.T, st *store.Memory, status contracts.ActionStatus, createdAt time.Time) *contracts.Action {
	t.Helper()
	a := &contracts.Action{
		ID:         uuid.New().String(),
		IntentID:   uuid.New().String(),
		ActionType: contracts.ActionFlagRisk,
		Status:     status,
		CreatedAt:  createdAt,
	}
	require.NoError(t, st.CreateAction(context.Background(), a))
	return a
}

func TestCheckDailyBudgetUnderLimit(t *testing.T) {
	st := store.NewMemory()
	eval := guardrail.NewEvaluator(st, st, nil)
	snap := settings.Snapshot{MaxDailyTokenBudget: 2}

	createAction(t, st, contracts.ActionPending, time.Now().UTC())
	remaining, err := eval.CheckDailyBudget(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	// No violation recorded on a pass.
	vs, err := st.ListViolations(context.Background(), store.ViolationFilter{})
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestCheckDailyBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	eval := guardrail.NewEvaluator(st, st, nil)
	snap := settings.Snapshot{MaxDailyTokenBudget: 2}

	now := time.Now().UTC()
	createAction(t, st, contracts.ActionPending, now)
	createAction(t, st, contracts.ActionCompleted, now)
	// Yesterday's actions never count against today.
	createAction(t, st, contracts.ActionPending, now.Add(-48*time.Hour))

	remaining, err := eval.CheckDailyBudget(ctx, snap)
	assert.Zero(t, remaining)
	var blocked *contracts.GuardrailBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, contracts.GuardrailBudget, blocked.GuardrailType)

	vs, err := st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.GuardrailBudget, vs[0].GuardrailType)
	assert.Equal(t, contracts.SeverityBlock, vs[0].Severity)
	assert.Empty(t, vs[0].ActionID) // cycle-wide, not tied to one action
	assert.False(t, vs[0].Resolved)
}

// brokenActionStore errors every counting query.
type brokenActionStore struct {
	store.ActionStore
}

func (brokenActionStore) CountActionsCreatedSince(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection reset")
}

func TestCheckDailyBudgetFailsClosed(t *testing.T) {
	st := store.NewMemory()
	eval := guardrail.NewEvaluator(brokenActionStore{st}, st, nil)

	_, err := eval.CheckDailyBudget(context.Background(), settings.Snapshot{MaxDailyTokenBudget: 100})
	require.Error(t, err)
}

func TestCheckApprovalSlots(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	eval := guardrail.NewEvaluator(st, st, nil)
	snap := settings.Snapshot{MaxConcurrentActions: 3}

	now := time.Now().UTC()
	createAction(t, st, contracts.ActionExecuting, now)
	createAction(t, st, contracts.ActionApproved, now)

	require.NoError(t, eval.CheckApprovalSlots(ctx, snap, 1))

	err := eval.CheckApprovalSlots(ctx, snap, 2)
	var blocked *contracts.GuardrailBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, contracts.GuardrailConcurrentLimit, blocked.GuardrailType)

	vs, err := st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.SeverityBlock, vs[0].Severity)
}

func TestConcurrencySlots(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	eval := guardrail.NewEvaluator(st, st, nil)
	snap := settings.Snapshot{MaxConcurrentActions: 3}

	now := time.Now().UTC()
	createAction(t, st, contracts.ActionExecuting, now)
	createAction(t, st, contracts.ActionSimulating, now)
	// pending and terminal actions hold no slot
	createAction(t, st, contracts.ActionPending, now)
	createAction(t, st, contracts.ActionCompleted, now)

	slots, err := eval.ConcurrencySlots(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, slots)

	createAction(t, st, contracts.ActionApproved, now)
	createAction(t, st, contracts.ActionApproved, now)
	slots, err = eval.ConcurrencySlots(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 0, slots) // clamped, never negative
}

func TestRecordSimulationFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	eval := guardrail.NewEvaluator(st, st, nil)

	eval.RecordSimulationFailure(ctx, "action-1", []string{"target_not_found", "conflicting_change"})

	vs, err := st.ListViolations(ctx, store.ViolationFilter{ActionID: "action-1"})
	require.NoError(t, err)
	require.Len(t, vs, 2)
	for _, v := range vs {
		assert.Equal(t, contracts.GuardrailRisk, v.GuardrailType)
		assert.Equal(t, contracts.SeverityBlock, v.Severity)
	}
}

func TestResolveViolation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	eval := guardrail.NewEvaluator(st, st, nil)
	eval.RecordConcurrencyExhausted(ctx, settings.Snapshot{MaxConcurrentActions: 3}, 2)

	vs, err := st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.SeverityWarning, vs[0].Severity)

	require.NoError(t, guardrail.ResolveViolation(ctx, st, vs[0].ID, "operator@example.com"))

	got, err := st.GetViolation(ctx, vs[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, "operator@example.com", got.ResolvedBy)
	require.NotNil(t, got.ResolvedAt)

	// Resolution is one-shot.
	err = guardrail.ResolveViolation(ctx, st, vs[0].ID, "someone-else")
	var verr *contracts.ValidationError
	require.ErrorAs(t, err, &verr)
}
