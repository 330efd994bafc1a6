package detect_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/detect"
	"github.com/complyon/autonomy/pkg/providers"
	"github.com/complyon/autonomy/pkg/settings"
)

func defaultSnap() settings.Snapshot {
	return settings.Snapshot{
		MaxDriftThreshold: 20,
		DetectorTimeout:   5 * time.Second,
		DetectorEnabled: map[string]bool{
			settings.KeyDetectorOntologyEvolution: false,
		},
	}
}

func fixtures() *providers.Static {
	return &providers.Static{
		IndustryList: []detect.Industry{
			{ID: "ind-covered", Name: "Finance", VariantCount: 4},
			{ID: "ind-gap", Name: "Healthcare", VariantCount: 0},
		},
		DeploymentList: []detect.Deployment{
			{ID: "dep-ok", AgentID: "a1", AgentName: "alpha", Environment: "production", Active: true, PerformanceScore: 92},
			{ID: "dep-drift", AgentID: "a2", AgentName: "beta", Environment: "production", Active: true, PerformanceScore: 61},
			{ID: "dep-inactive", AgentID: "a3", AgentName: "gamma", Active: false, PerformanceScore: 10},
		},
		CertificationList: []detect.Certification{
			{ID: "cert-soon", AgentID: "a1", AgentName: "alpha", Name: "SOC2", ExpiresAt: time.Now().UTC().Add(5 * 24 * time.Hour)},
			{ID: "cert-later", AgentID: "a2", AgentName: "beta", Name: "ISO27001", ExpiresAt: time.Now().UTC().Add(90 * 24 * time.Hour)},
		},
		UseCaseList: []detect.UseCase{
			{ID: "uc-1", Name: "KYC screening", Active: true, ScopeIndustryIDs: []string{"ind-covered", "ind-gap"}},
		},
		TaxonomyNodeList: []detect.TaxonomyNode{
			{ID: "tax-hot", Name: "payment fraud", RiskLevel: "critical", IndustryID: "ind-gap", CoverageCount: 0},
			{ID: "tax-covered", Name: "chargebacks", RiskLevel: "high", IndustryID: "ind-covered", CoverageCount: 2},
		},
		SkeletonList: []detect.CapabilitySkeleton{
			{ID: "sk-bare", Name: "doc-ingest", ComplianceEdgeCount: 0},
		},
	}
}

func TestGapCoverageDetector(t *testing.T) {
	d := &detect.GapCoverageDetector{}
	out, err := d.Detect(context.Background(), fixtures(), defaultSnap())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, contracts.IntentGapCoverage, out[0].IntentType)
	assert.Equal(t, "ind-gap", out[0].TargetID())
	assert.Equal(t, contracts.PriorityMedium, out[0].Priority)
	assert.InDelta(t, 0.85, out[0].ConfidenceScore, 0.001)
	require.Len(t, out[0].Actions, 1)
	assert.Equal(t, contracts.ActionCreateVariant, out[0].Actions[0].ActionType)
	assert.Equal(t, "ind-gap", out[0].Actions[0].Parameters["industry_id"])
}

func TestDriftRemediationDetector(t *testing.T) {
	d := &detect.DriftRemediationDetector{}
	out, err := d.Detect(context.Background(), fixtures(), defaultSnap())
	require.NoError(t, err)
	// Floor is 80: only dep-drift at 61 is below it, and inactive
	// deployments never count.
	require.Len(t, out, 1)
	assert.Equal(t, "dep-drift", out[0].TargetID())
	assert.Equal(t, contracts.PriorityHigh, out[0].Priority)
	assert.InDelta(t, 0.9, out[0].ConfidenceScore, 0.001)
}

func TestDriftPriorityBands(t *testing.T) {
	snap := defaultSnap()
	deps := &providers.Static{DeploymentList: []detect.Deployment{
		{ID: "d-med", Active: true, PerformanceScore: 72},
		{ID: "d-high", Active: true, PerformanceScore: 55},
		{ID: "d-crit", Active: true, PerformanceScore: 30},
	}}
	snap.MaxDriftThreshold = 30 // floor 70
	out, err := (&detect.DriftRemediationDetector{}).Detect(context.Background(), deps, snap)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, contracts.PriorityHigh, out[0].Priority)     // 55
	assert.Equal(t, contracts.PriorityCritical, out[1].Priority) // 30
}

func TestCertificationRenewalDetector(t *testing.T) {
	d := &detect.CertificationRenewalDetector{}
	out, err := d.Detect(context.Background(), fixtures(), defaultSnap())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cert-soon", out[0].TargetID())
	assert.Equal(t, contracts.PriorityCritical, out[0].Priority) // 5 days out
	assert.Equal(t, contracts.ActionRenewCertification, out[0].Actions[0].ActionType)
	assert.Equal(t, "SOC2", out[0].Actions[0].Parameters["certification_name"])
}

func TestExpansionOpportunityDetector(t *testing.T) {
	d := &detect.ExpansionOpportunityDetector{}
	out, err := d.Detect(context.Background(), fixtures(), defaultSnap())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, contracts.IntentExpansionOpportunity, out[0].IntentType)
	assert.Equal(t, "ind-gap", out[0].TargetID())
	assert.Equal(t, "uc-1", out[0].Actions[0].Parameters["use_case_id"])
}

func TestExpansionNeedsComparableCoverage(t *testing.T) {
	deps := fixtures()
	// No industry in scope has coverage, so there is nothing to expand from.
	deps.IndustryList[0].VariantCount = 0
	out, err := (&detect.ExpansionOpportunityDetector{}).Detect(context.Background(), deps, defaultSnap())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRiskMitigationDetector(t *testing.T) {
	d := &detect.RiskMitigationDetector{}
	out, err := d.Detect(context.Background(), fixtures(), defaultSnap())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "tax-hot", out[0].TargetID())
	assert.Equal(t, contracts.PriorityCritical, out[0].Priority)
	assert.Equal(t, "critical", out[0].Actions[0].Parameters["risk_level"])
}

func TestOntologyEvolutionDetector(t *testing.T) {
	d := &detect.OntologyEvolutionDetector{}
	out, err := d.Detect(context.Background(), fixtures(), defaultSnap())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, contracts.PriorityLow, out[0].Priority)
	assert.Equal(t, contracts.ActionProposeOntologyEdge, out[0].Actions[0].ActionType)
}

// failingDetector always errors; the runner must contain it.
type failingDetector struct{}

func (failingDetector) Name() string      { return "failing" }
func (failingDetector) ToggleKey() string { return "detector_failing_enabled" }
func (failingDetector) Detect(context.Context, detect.Providers, settings.Snapshot) ([]contracts.IntentCandidate, error) {
	return nil, errors.New("upstream unavailable")
}

func TestRunnerContainsDetectorFailure(t *testing.T) {
	runner := detect.NewRunner([]detect.Detector{
		failingDetector{},
		&detect.GapCoverageDetector{},
	}, nil)

	res := runner.Run(context.Background(), fixtures(), defaultSnap())

	require.Len(t, res.Errors, 1)
	var derr *contracts.DetectorError
	require.ErrorAs(t, res.Errors[0], &derr)
	assert.Equal(t, "failing", derr.Detector)

	// The healthy detector still contributed.
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, contracts.IntentGapCoverage, res.Candidates[0].IntentType)
	assert.Equal(t, 1, res.PerDetector["gap_coverage"])
	assert.NotContains(t, res.PerDetector, "failing")
}

func TestRunnerSkipsDisabledDetectors(t *testing.T) {
	runner := detect.NewRunner(detect.DefaultDetectors(), nil)
	snap := defaultSnap()

	res := runner.Run(context.Background(), fixtures(), snap)
	assert.NotContains(t, res.PerDetector, "ontology_evolution")

	snap.DetectorEnabled[settings.KeyDetectorOntologyEvolution] = true
	res = runner.Run(context.Background(), fixtures(), snap)
	assert.Equal(t, 1, res.PerDetector["ontology_evolution"])
}

func TestRunnerMergeOrderIsStable(t *testing.T) {
	runner := detect.NewRunner(detect.DefaultDetectors(), nil)
	first := runner.Run(context.Background(), fixtures(), defaultSnap())
	second := runner.Run(context.Background(), fixtures(), defaultSnap())

	require.Equal(t, len(first.Candidates), len(second.Candidates))
	for i := range first.Candidates {
		assert.Equal(t, first.Candidates[i].IntentType, second.Candidates[i].IntentType)
		assert.Equal(t, first.Candidates[i].TargetID(), second.Candidates[i].TargetID())
	}
}
