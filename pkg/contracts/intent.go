// Package contracts defines the shared data model of the autonomy
// orchestrator: intents, actions, guardrail violations, settings,
// scan logs, and the error taxonomy used across every component.
package contracts

import "time"

// IntentType classifies the governance opportunity a detector found.
type IntentType string

const (
	IntentGapCoverage           IntentType = "gap_coverage"
	IntentDriftRemediation      IntentType = "drift_remediation"
	IntentExpansionOpportunity  IntentType = "expansion_opportunity"
	IntentCertificationRenewal  IntentType = "certification_renewal"
	IntentRiskMitigation        IntentType = "risk_mitigation"
	IntentOntologyEvolution     IntentType = "ontology_evolution"
	IntentTaxonomyExpansion     IntentType = "taxonomy_expansion"
	IntentMarketplaceSubmission IntentType = "marketplace_submission"
)

// Priority orders intents for human review and gates auto-approval.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IntentStatus is the lifecycle state of an Intent.
type IntentStatus string

const (
	IntentDetected   IntentStatus = "detected"
	IntentProposed   IntentStatus = "proposed"
	IntentApproved   IntentStatus = "approved"
	IntentRejected   IntentStatus = "rejected"
	IntentSimulating IntentStatus = "simulating"
	IntentExecuting  IntentStatus = "executing"
	IntentCompleted  IntentStatus = "completed"
	IntentFailed     IntentStatus = "failed"
	IntentCancelled  IntentStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentCompleted, IntentFailed, IntentCancelled, IntentRejected:
		return true
	}
	return false
}

// Intent is a detected, human-reviewable opportunity for a governance action.
//
// RecommendedActions is a provenance snapshot taken at detection time. It is
// never updated, even as the live Actions created from it change state.
type Intent struct {
	ID                 string         `json:"id"`
	IntentType         IntentType     `json:"intent_type"`
	SourceSignal       string         `json:"source_signal"`
	Priority           Priority       `json:"priority"`
	ConfidenceScore    float64        `json:"confidence_score"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Context            map[string]any `json:"context,omitempty"`
	RecommendedActions []ActionSpec   `json:"recommended_actions,omitempty"`
	Status             IntentStatus   `json:"status"`
	ResolvedBy         string         `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// TargetID returns the primary target entity id recorded in the intent
// context, or "" when the intent is not bound to a single target.
// Deduplication keys on this value.
func (i *Intent) TargetID() string {
	if i.Context == nil {
		return ""
	}
	if v, ok := i.Context[ContextKeyTargetID].(string); ok {
		return v
	}
	return ""
}

// ContextKeyTargetID is the well-known context key holding the primary
// target entity id of an intent. Detectors must set it for any candidate
// that should participate in deduplication.
const ContextKeyTargetID = "target_id"
