package settings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/settings"
	"github.com/complyon/autonomy/pkg/store"
)

func seeded(t *testing.T) *store.Memory {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, st.SeedSettings(context.Background(), settings.Defaults()))
	return st
}

func TestLoadDefaults(t *testing.T) {
	snap, err := settings.Load(context.Background(), seeded(t))
	require.NoError(t, err)

	assert.Equal(t, contracts.AutonomyAdvisory, snap.AutonomyLevel)
	assert.Equal(t, 50, snap.MaxDailyTokenBudget)
	assert.Equal(t, 3, snap.MaxConcurrentActions)
	assert.InDelta(t, 20, snap.MaxDriftThreshold, 0.001)
	assert.True(t, snap.ApprovalRequiredProduction)
	assert.Equal(t, 15*time.Minute, snap.ScanInterval)
	assert.Equal(t, 5, snap.SimulationBatchSize)
	assert.Equal(t, 30*time.Second, snap.DetectorTimeout)

	// Ontology ships off, everything else on.
	assert.False(t, snap.DetectorOn(settings.KeyDetectorOntologyEvolution))
	assert.True(t, snap.DetectorOn(settings.KeyDetectorGapCoverage))
	assert.True(t, snap.DetectorOn(settings.KeyDetectorDriftRemediation))
}

func TestLoadEmptyStoreFallsBackToDefaults(t *testing.T) {
	snap, err := settings.Load(context.Background(), store.NewMemory())
	require.NoError(t, err)
	assert.Equal(t, contracts.AutonomyAdvisory, snap.AutonomyLevel)
	assert.Equal(t, 50, snap.MaxDailyTokenBudget)
	assert.True(t, snap.DetectorOn("some_unknown_toggle"))
}

func TestServiceUpdateBounds(t *testing.T) {
	ctx := context.Background()
	svc := settings.NewService(seeded(t))

	require.NoError(t, svc.Update(ctx, settings.KeyMaxConcurrentActions, "10"))

	err := svc.Update(ctx, settings.KeyMaxConcurrentActions, "0")
	var verr *contracts.ValidationError
	require.ErrorAs(t, err, &verr)

	err = svc.Update(ctx, settings.KeyMaxConcurrentActions, "51")
	require.ErrorAs(t, err, &verr)

	err = svc.Update(ctx, settings.KeyMaxDailyTokenBudget, "not-a-number")
	require.ErrorAs(t, err, &verr)

	err = svc.Update(ctx, settings.KeyApprovalRequiredProduction, "maybe")
	require.ErrorAs(t, err, &verr)

	err = svc.Update(ctx, "no_such_setting", "1")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestServiceUpdateVisibleInSnapshot(t *testing.T) {
	ctx := context.Background()
	st := seeded(t)
	svc := settings.NewService(st)

	require.NoError(t, svc.Update(ctx, settings.KeyAutonomyLevel, "semi_autonomous"))
	require.NoError(t, svc.Update(ctx, settings.KeyMaxDriftThreshold, "35"))

	snap, err := settings.Load(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, contracts.AutonomySemiAutonomous, snap.AutonomyLevel)
	assert.InDelta(t, 35, snap.MaxDriftThreshold, 0.001)
}
