// Package settings holds the orchestrator's operator-tunable controls.
//
// A Snapshot is loaded once at the start of each scan or simulation cycle
// and passed explicitly to detectors and evaluators, so a mid-cycle setting
// edit never produces read-after-check races inside a cycle.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/store"
)

// Well-known setting keys.
const (
	KeyAutonomyLevel              = "autonomy_level"
	KeyMaxDailyTokenBudget        = "max_daily_token_budget"
	KeyMaxConcurrentActions       = "max_concurrent_actions"
	KeyMaxDriftThreshold          = "max_drift_threshold"
	KeyApprovalRequiredProduction = "approval_required_production"
	KeyGuardrailScopeExpression   = "guardrail_scope_expression"
	KeyScanIntervalMinutes        = "scan_interval_minutes"
	KeySimulationBatchSize        = "simulation_batch_size"
	KeyDetectorTimeoutSeconds     = "detector_timeout_seconds"

	KeyDetectorGapCoverage          = "detector_gap_coverage_enabled"
	KeyDetectorDriftRemediation     = "detector_drift_remediation_enabled"
	KeyDetectorCertificationRenewal = "detector_certification_renewal_enabled"
	KeyDetectorExpansionOpportunity = "detector_expansion_opportunity_enabled"
	KeyDetectorRiskMitigation       = "detector_risk_mitigation_enabled"
	KeyDetectorOntologyEvolution    = "detector_ontology_evolution_enabled"
)

// Snapshot is an immutable, typed view of all settings at one instant.
type Snapshot struct {
	AutonomyLevel              contracts.AutonomyLevel
	MaxDailyTokenBudget        int
	MaxConcurrentActions       int
	MaxDriftThreshold          float64
	ApprovalRequiredProduction bool
	GuardrailScopeExpression   string
	ScanInterval               time.Duration
	SimulationBatchSize        int
	DetectorTimeout            time.Duration

	DetectorEnabled map[string]bool // keyed by detector toggle setting key
}

// DetectorOn reports whether the detector gated by the given toggle key is
// enabled. Unknown keys default to enabled so a missing toggle never
// silences a detector.
func (s Snapshot) DetectorOn(key string) bool {
	if s.DetectorEnabled == nil {
		return true
	}
	on, ok := s.DetectorEnabled[key]
	if !ok {
		return true
	}
	return on
}

// Load builds a Snapshot from the setting store, falling back to each
// setting's default for missing or unparseable values.
func Load(ctx context.Context, st store.SettingStore) (Snapshot, error) {
	all, err := st.ListSettings(ctx, "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	byKey := make(map[string]*contracts.Setting, len(all))
	for _, s := range all {
		byKey[s.Key] = s
	}

	snap := Snapshot{
		AutonomyLevel:              contracts.AutonomyLevel(strVal(byKey, KeyAutonomyLevel, string(contracts.AutonomyAdvisory))),
		MaxDailyTokenBudget:        intVal(byKey, KeyMaxDailyTokenBudget, 50),
		MaxConcurrentActions:       intVal(byKey, KeyMaxConcurrentActions, 3),
		MaxDriftThreshold:          floatVal(byKey, KeyMaxDriftThreshold, 20),
		ApprovalRequiredProduction: boolVal(byKey, KeyApprovalRequiredProduction, true),
		GuardrailScopeExpression:   strVal(byKey, KeyGuardrailScopeExpression, ""),
		ScanInterval:               time.Duration(intVal(byKey, KeyScanIntervalMinutes, 15)) * time.Minute,
		SimulationBatchSize:        intVal(byKey, KeySimulationBatchSize, 5),
		DetectorTimeout:            time.Duration(intVal(byKey, KeyDetectorTimeoutSeconds, 30)) * time.Second,
		DetectorEnabled:            make(map[string]bool),
	}
	for _, key := range []string{
		KeyDetectorGapCoverage, KeyDetectorDriftRemediation, KeyDetectorCertificationRenewal,
		KeyDetectorExpansionOpportunity, KeyDetectorRiskMitigation, KeyDetectorOntologyEvolution,
	} {
		def := key != KeyDetectorOntologyEvolution // ontology detector ships off
		snap.DetectorEnabled[key] = boolVal(byKey, key, def)
	}
	return snap, nil
}

func strVal(m map[string]*contracts.Setting, key, def string) string {
	if s, ok := m[key]; ok && s.Value != "" {
		return s.Value
	}
	return def
}

func intVal(m map[string]*contracts.Setting, key string, def int) int {
	if s, ok := m[key]; ok {
		if v, err := strconv.Atoi(s.Value); err == nil {
			return v
		}
	}
	return def
}

func floatVal(m map[string]*contracts.Setting, key string, def float64) float64 {
	if s, ok := m[key]; ok {
		if v, err := strconv.ParseFloat(s.Value, 64); err == nil {
			return v
		}
	}
	return def
}

func boolVal(m map[string]*contracts.Setting, key string, def bool) bool {
	if s, ok := m[key]; ok {
		if v, err := strconv.ParseBool(s.Value); err == nil {
			return v
		}
	}
	return def
}
