package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/detect"
	"github.com/complyon/autonomy/pkg/guardrail"
	"github.com/complyon/autonomy/pkg/orchestrator"
	"github.com/complyon/autonomy/pkg/providers"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/store"
)

type fixture struct {
	st   *store.Memory
	deps *providers.Static
	orch *orchestrator.Orchestrator
}

func newFixture(t *testing.T, deps *providers.Static) *fixture {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, st.SeedSettings(context.Background(), settings.Defaults()))
	guard := guardrail.NewEvaluator(st, st, nil)
	runner := detect.NewRunner(detect.DefaultDetectors(), nil)
	orch := orchestrator.New(st, deps, runner, guard, nil, nil, nil)
	return &fixture{st: st, deps: deps, orch: orch}
}

func gapProviders(industries ...string) *providers.Static {
	deps := &providers.Static{}
	for _, id := range industries {
		deps.IndustryList = append(deps.IndustryList, detect.Industry{ID: id, Name: id, VariantCount: 0})
	}
	return deps
}

func setSetting(t *testing.T, st *store.Memory, key, value string) {
	t.Helper()
	require.NoError(t, settings.NewService(st).Update(context.Background(), key, value))
}

func TestScanCycleCreatesIntentsAndActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, gapProviders("ind-1", "ind-2"))

	report, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.IntentsCreated)
	assert.Equal(t, 2, report.ActionsCreated)
	assert.Zero(t, report.GuardrailsTriggered)

	intents, err := f.st.ListIntents(ctx, store.IntentFilter{})
	require.NoError(t, err)
	require.Len(t, intents, 2)
	for _, in := range intents {
		assert.Equal(t, contracts.IntentProposed, in.Status)
		assert.Equal(t, contracts.IntentGapCoverage, in.IntentType)
		require.NotNil(t, in.ExpiresAt)
		assert.True(t, in.ExpiresAt.After(time.Now().UTC().Add(6*24*time.Hour)))
		require.Len(t, in.RecommendedActions, 1)
	}

	// Default autonomy level is advisory with the production lock on:
	// every action waits for a human.
	actions, err := f.st.ListActions(ctx, store.ActionFilter{})
	require.NoError(t, err)
	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, contracts.ActionAwaitingApproval, a.Status)
		assert.True(t, a.RequiresApproval)
	}

	// The scan log is completed with the cycle's totals.
	log, err := f.st.GetScanLog(ctx, report.ScanLogID)
	require.NoError(t, err)
	require.NotNil(t, log.CompletedAt)
	assert.Equal(t, "autonomous_scan", log.ScanType)
	assert.Equal(t, 2, log.IntentsDetected)
	assert.Equal(t, 2, log.ActionsCreated)
	assert.Empty(t, log.ErrorMessage)
	perDetector, ok := log.ScanContext["per_detector"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 2, perDetector["gap_coverage"])
}

func TestScanCycleAutoApproves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, gapProviders("ind-1"))
	setSetting(t, f.st, settings.KeyAutonomyLevel, "semi_autonomous")
	setSetting(t, f.st, settings.KeyApprovalRequiredProduction, "false")

	_, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)

	// Gap coverage confidence 0.85 exceeds the 0.8 floor at medium priority.
	actions, err := f.st.ListActions(ctx, store.ActionFilter{})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, contracts.ActionApproved, actions[0].Status)
	assert.False(t, actions[0].RequiresApproval)
}

func TestScanCycleDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, gapProviders("ind-1"))

	_, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)

	report, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Deduplicated)
	assert.Zero(t, report.IntentsCreated)

	intents, err := f.st.ListIntents(ctx, store.IntentFilter{})
	require.NoError(t, err)
	assert.Len(t, intents, 1)
}

func TestScanCycleRedetectsAfterTerminalResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, gapProviders("ind-1"))

	_, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)

	intents, err := f.st.ListIntents(ctx, store.IntentFilter{})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	intents[0].Status = contracts.IntentRejected
	require.NoError(t, f.st.UpdateIntent(ctx, intents[0]))

	report, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.IntentsCreated)
}

func TestScanCycleDailyBudgetAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, gapProviders("ind-1"))
	setSetting(t, f.st, settings.KeyMaxDailyTokenBudget, "2")

	for i := 0; i < 2; i++ {
		require.NoError(t, f.st.CreateAction(ctx, &contracts.Action{
			ID:         uuid.New().String(),
			IntentID:   uuid.New().String(),
			ActionType: contracts.ActionFlagRisk,
			Status:     contracts.ActionCompleted,
			CreatedAt:  time.Now().UTC(),
		}))
	}

	report, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "daily budget exhausted", report.Aborted)
	assert.Zero(t, report.IntentsCreated)
	assert.Equal(t, 1, report.GuardrailsTriggered)

	// The abort still closes the scan log, with the block in its error.
	log, err := f.st.GetScanLog(ctx, report.ScanLogID)
	require.NoError(t, err)
	require.NotNil(t, log.CompletedAt)
	assert.Contains(t, log.ErrorMessage, "budget")

	vs, err := f.st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.GuardrailBudget, vs[0].GuardrailType)
}

func TestScanCycleConcurrencyLimit(t *testing.T) {
	ctx := context.Background()
	// Three gap candidates, limit 3, two slots already held.
	f := newFixture(t, gapProviders("ind-1", "ind-2", "ind-3"))
	for i := 0; i < 2; i++ {
		require.NoError(t, f.st.CreateAction(ctx, &contracts.Action{
			ID:         uuid.New().String(),
			IntentID:   uuid.New().String(),
			ActionType: contracts.ActionFlagRisk,
			Status:     contracts.ActionExecuting,
			CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
		}))
	}

	report, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.IntentsCreated)
	assert.Equal(t, 1, report.ActionsCreated)
	assert.Equal(t, 2, report.SkippedConcurrency)
	assert.Equal(t, 1, report.GuardrailsTriggered)

	vs, err := f.st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.GuardrailConcurrentLimit, vs[0].GuardrailType)
	assert.Equal(t, contracts.SeverityWarning, vs[0].Severity)
}

func TestScanCycleScopeRuleBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, gapProviders("ind-1"))
	setSetting(t, f.st, settings.KeyGuardrailScopeExpression, `intent_type == "gap_coverage"`)

	report, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ScopeBlocked)
	assert.Zero(t, report.IntentsCreated)

	vs, err := f.st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.GuardrailScopeLock, vs[0].GuardrailType)
}

func TestScanCycleScopeCompileErrorFailsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, gapProviders("ind-1"))
	setSetting(t, f.st, settings.KeyGuardrailScopeExpression, `intent_type ==`)

	report, err := f.orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scope rule compile failed", report.Aborted)
	assert.Zero(t, report.IntentsCreated)

	log, err := f.st.GetScanLog(ctx, report.ScanLogID)
	require.NoError(t, err)
	require.NotNil(t, log.CompletedAt)
	assert.Contains(t, log.ErrorMessage, "compile")
}

func TestScanCycleSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	locker := orchestrator.NewMutexLocker()
	st := store.NewMemory()
	require.NoError(t, st.SeedSettings(ctx, settings.Defaults()))
	guard := guardrail.NewEvaluator(st, st, nil)
	runner := detect.NewRunner(detect.DefaultDetectors(), nil)
	orch := orchestrator.New(st, gapProviders("ind-1"), runner, guard, locker, nil, nil)

	held, err := locker.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, held)

	report, err := orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	// No scan log for a skipped cycle.
	logs, err := st.ListScanLogs(ctx, store.ScanLogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, locker.Unlock(ctx))
	report, err = orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.IntentsCreated)
}

func TestScanCycleRecordsDetectorErrors(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SeedSettings(ctx, settings.Defaults()))
	guard := guardrail.NewEvaluator(st, st, nil)
	runner := detect.NewRunner([]detect.Detector{failingDetector{}}, nil)
	orch := orchestrator.New(st, &providers.Static{}, runner, guard, nil, nil, nil)

	report, err := orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DetectorErrors)
	assert.Zero(t, report.IntentsCreated)

	log, err := st.GetScanLog(ctx, report.ScanLogID)
	require.NoError(t, err)
	require.NotNil(t, log.CompletedAt)
	assert.Empty(t, log.ErrorMessage) // contained failures do not fail the cycle
	assert.NotEmpty(t, log.ScanContext["detector_errors"])
}

func TestScanCycleConcurrencyCountsEveryAction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SeedSettings(ctx, settings.Defaults()))
	setSetting(t, st, settings.KeyAutonomyLevel, "full_autonomous")
	setSetting(t, st, settings.KeyApprovalRequiredProduction, "false")

	guard := guardrail.NewEvaluator(st, st, nil)
	runner := detect.NewRunner([]detect.Detector{multiActionDetector{targets: []string{"dep-1", "dep-2"}}}, nil)
	orch := orchestrator.New(st, &providers.Static{}, runner, guard, nil, nil, nil)

	// Each candidate carries two actions; with the default limit of three
	// only the first candidate fits, and both of its actions hold slots.
	report, err := orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.IntentsCreated)
	assert.Equal(t, 2, report.ActionsCreated)
	assert.Equal(t, 1, report.SkippedConcurrency)
	assert.Equal(t, 1, report.GuardrailsTriggered)

	active, err := st.CountActiveActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active)

	vs, err := st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.GuardrailConcurrentLimit, vs[0].GuardrailType)
}

func TestScanCycleBudgetBoundsMidCycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SeedSettings(ctx, settings.Defaults()))
	setSetting(t, st, settings.KeyMaxDailyTokenBudget, "3")
	setSetting(t, st, settings.KeyMaxConcurrentActions, "50")

	guard := guardrail.NewEvaluator(st, st, nil)
	runner := detect.NewRunner([]detect.Detector{multiActionDetector{targets: []string{"dep-1", "dep-2"}}}, nil)
	orch := orchestrator.New(st, &providers.Static{}, runner, guard, nil, nil, nil)

	// The first candidate's two actions leave one unit of budget; the
	// second needs two, so the cycle stops at two created actions.
	report, err := orch.RunScanCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "daily budget exhausted", report.Aborted)
	assert.Equal(t, 1, report.IntentsCreated)
	assert.Equal(t, 2, report.ActionsCreated)

	created, err := st.CountActionsCreatedSince(ctx, time.Now().UTC().Truncate(24*time.Hour))
	require.NoError(t, err)
	assert.LessOrEqual(t, created, 3)

	vs, err := st.ListViolations(ctx, store.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, contracts.GuardrailBudget, vs[0].GuardrailType)
	assert.Equal(t, contracts.SeverityBlock, vs[0].Severity)

	log, err := st.GetScanLog(ctx, report.ScanLogID)
	require.NoError(t, err)
	require.NotNil(t, log.CompletedAt)
	assert.Equal(t, "daily budget exhausted", log.ScanContext["aborted"])
}

type multiActionDetector struct{ targets []string }

func (multiActionDetector) Name() string      { return "multi" }
func (multiActionDetector) ToggleKey() string { return "detector_multi_enabled" }
func (d multiActionDetector) Detect(context.Context, detect.Providers, settings.Snapshot) ([]contracts.IntentCandidate, error) {
	var out []contracts.IntentCandidate
	for _, id := range d.targets {
		out = append(out, contracts.IntentCandidate{
			IntentType:      contracts.IntentRiskMitigation,
			SourceSignal:    "multi",
			Priority:        contracts.PriorityMedium,
			ConfidenceScore: 0.9,
			Title:           "remediate " + id,
			Context:         map[string]any{contracts.ContextKeyTargetID: id},
			Actions: []contracts.ActionSpec{
				{ActionType: contracts.ActionFlagRisk, TargetEntityType: "deployment", TargetEntityID: id, Parameters: map[string]any{"risk_level": "high"}},
				{ActionType: contracts.ActionUpdateDeployment, TargetEntityType: "deployment", TargetEntityID: id, Parameters: map[string]any{"reason": "drift remediation"}},
			},
		})
	}
	return out, nil
}

type failingDetector struct{}

func (failingDetector) Name() string      { return "failing" }
func (failingDetector) ToggleKey() string { return "detector_failing_enabled" }
func (failingDetector) Detect(context.Context, detect.Providers, settings.Snapshot) ([]contracts.IntentCandidate, error) {
	return nil, assert.AnError
}
