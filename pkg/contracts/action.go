package contracts

import "time"

// ActionType identifies the concrete operation an Action performs.
// The orchestrator never executes these itself; it only sequences,
// gates, and previews them.
type ActionType string

const (
	ActionCreateVariant            ActionType = "create_variant"
	ActionUpdateDeployment         ActionType = "update_deployment"
	ActionRenewCertification       ActionType = "renew_certification"
	ActionFlagRisk                 ActionType = "flag_risk"
	ActionProposeOntologyEdge      ActionType = "propose_ontology_edge"
	ActionSubmitMarketplaceListing ActionType = "submit_marketplace_listing"
)

// ActionStatus is the lifecycle state of an Action.
type ActionStatus string

const (
	ActionPending          ActionStatus = "pending"
	ActionAwaitingApproval ActionStatus = "awaiting_approval"
	ActionApproved         ActionStatus = "approved"
	ActionSimulating       ActionStatus = "simulating"
	ActionSimulationPassed ActionStatus = "simulation_passed"
	ActionSimulationFailed ActionStatus = "simulation_failed"
	ActionExecuting        ActionStatus = "executing"
	ActionCompleted        ActionStatus = "completed"
	ActionFailed           ActionStatus = "failed"
	ActionRolledBack       ActionStatus = "rolled_back"
)

// Terminal reports whether the status admits no further transitions.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionCompleted, ActionFailed, ActionRolledBack:
		return true
	}
	return false
}

// Active reports whether the action counts against the concurrency
// guardrail (approved, simulating, or executing work in flight).
func (s ActionStatus) Active() bool {
	switch s {
	case ActionApproved, ActionSimulating, ActionExecuting:
		return true
	}
	return false
}

// ActionSpec is the detector-declared shape of one recommended action.
// Specs are stored verbatim on the Intent as provenance and expanded
// into live Actions at intent creation.
type ActionSpec struct {
	ActionType       ActionType     `json:"action_type"`
	TargetEntityType string         `json:"target_entity_type"`
	TargetEntityID   string         `json:"target_entity_id"`
	Parameters       map[string]any `json:"parameters,omitempty"`
}

// Action is one ordered unit of work belonging to exactly one Intent.
//
// SequenceOrder values are unique within the owning intent and define the
// only ordering guarantee. RequiresApproval is computed once at creation
// from the autonomy policy and the production lock; it never changes.
type Action struct {
	ID               string            `json:"id"`
	IntentID         string            `json:"intent_id"`
	ActionType       ActionType        `json:"action_type"`
	TargetEntityType string            `json:"target_entity_type"`
	TargetEntityID   string            `json:"target_entity_id"`
	Parameters       map[string]any    `json:"parameters,omitempty"`
	Status           ActionStatus      `json:"status"`
	RequiresApproval bool              `json:"requires_approval"`
	SequenceOrder    int               `json:"sequence_order"`
	ApprovedBy       string            `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	SimulationResult *SimulationResult `json:"simulation_result,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// SimulationResult is the dry-run preview computed for an action.
// Before/After describe the target state without mutating it.
type SimulationResult struct {
	Passed      bool           `json:"passed"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	Risks       []string       `json:"risks,omitempty"`
	Violations  []string       `json:"violations,omitempty"`
	SimulatedAt time.Time      `json:"simulated_at"`
}
