package settings

import "github.com/complyon/autonomy/pkg/contracts"

func ptr(v float64) *float64 { return &v }

// Defaults is the declarative setting catalog. SeedSettings installs it
// idempotently at startup; existing operator edits are never overwritten.
func Defaults() []contracts.Setting {
	return []contracts.Setting{
		{
			Key: KeyAutonomyLevel, Value: string(contracts.AutonomyAdvisory),
			Type: contracts.SettingSelect, Category: contracts.CategoryAutonomy,
			DefaultValue: string(contracts.AutonomyAdvisory),
			Description:  "How much approval automation is permitted: advisory, semi_autonomous, full_autonomous.",
		},
		{
			Key: KeyMaxDailyTokenBudget, Value: "50",
			Type: contracts.SettingNumber, Category: contracts.CategoryGuardrails,
			MinValue: ptr(1), MaxValue: ptr(1000), DefaultValue: "50",
			Description: "Maximum actions the orchestrator may create per UTC day.",
		},
		{
			Key: KeyMaxConcurrentActions, Value: "3",
			Type: contracts.SettingNumber, Category: contracts.CategoryGuardrails,
			MinValue: ptr(1), MaxValue: ptr(50), DefaultValue: "3",
			Description: "Maximum actions in approved/simulating/executing at once.",
		},
		{
			Key: KeyMaxDriftThreshold, Value: "20",
			Type: contracts.SettingSlider, Category: contracts.CategoryGuardrails,
			MinValue: ptr(5), MaxValue: ptr(50), DefaultValue: "20",
			Description: "Performance-score drop that triggers drift remediation.",
		},
		{
			Key: KeyApprovalRequiredProduction, Value: "true",
			Type: contracts.SettingToggle, Category: contracts.CategoryGuardrails,
			DefaultValue: "true",
			Description:  "When on, every action requires human approval regardless of autonomy level.",
		},
		{
			Key: KeyGuardrailScopeExpression, Value: "",
			Type: contracts.SettingSelect, Category: contracts.CategoryGuardrails,
			DefaultValue: "",
			Description:  "Optional CEL expression; candidates it evaluates true for are blocked.",
		},
		{
			Key: KeyScanIntervalMinutes, Value: "15",
			Type: contracts.SettingNumber, Category: contracts.CategoryScheduling,
			MinValue: ptr(1), MaxValue: ptr(1440), DefaultValue: "15",
			Description: "Minutes between scan cycles.",
		},
		{
			Key: KeySimulationBatchSize, Value: "5",
			Type: contracts.SettingNumber, Category: contracts.CategoryScheduling,
			MinValue: ptr(1), MaxValue: ptr(50), DefaultValue: "5",
			Description: "Approved actions simulated per simulation cycle.",
		},
		{
			Key: KeyDetectorTimeoutSeconds, Value: "30",
			Type: contracts.SettingNumber, Category: contracts.CategoryScheduling,
			MinValue: ptr(1), MaxValue: ptr(300), DefaultValue: "30",
			Description: "Per-detector execution timeout.",
		},
		detectorToggle(KeyDetectorGapCoverage, "true", "Detect industries with zero agent coverage."),
		detectorToggle(KeyDetectorDriftRemediation, "true", "Detect deployments drifting below the performance floor."),
		detectorToggle(KeyDetectorCertificationRenewal, "true", "Detect certifications expiring within 30 days."),
		detectorToggle(KeyDetectorExpansionOpportunity, "true", "Detect use-case scopes with uncovered industries."),
		detectorToggle(KeyDetectorRiskMitigation, "true", "Detect high-risk taxonomy nodes without coverage."),
		detectorToggle(KeyDetectorOntologyEvolution, "false", "Detect capability skeletons with no compliance edges."),
	}
}

func detectorToggle(key, def, desc string) contracts.Setting {
	return contracts.Setting{
		Key: key, Value: def,
		Type: contracts.SettingToggle, Category: contracts.CategoryScheduling,
		DefaultValue: def, Description: desc,
	}
}
