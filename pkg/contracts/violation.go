package contracts

import "time"

// GuardrailType classifies what policy check produced a violation.
type GuardrailType string

const (
	GuardrailBudget           GuardrailType = "budget"
	GuardrailRisk             GuardrailType = "risk"
	GuardrailDrift            GuardrailType = "drift"
	GuardrailTaxonomyBoundary GuardrailType = "taxonomy_boundary"
	GuardrailRateLimit        GuardrailType = "rate_limit"
	GuardrailConcurrentLimit  GuardrailType = "concurrent_limit"
	GuardrailProductionLock   GuardrailType = "production_lock"
	GuardrailScopeLock        GuardrailType = "scope_lock"
)

// Severity of a guardrail violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityBlock   Severity = "block"
)

// GuardrailViolation records a blocked or flagged condition. Violations are
// never created pre-resolved; resolution is an explicit human operation.
// ActionID is empty for cycle-wide violations (e.g. a daily budget abort).
type GuardrailViolation struct {
	ID               string         `json:"id"`
	ActionID         string         `json:"action_id,omitempty"`
	GuardrailType    GuardrailType  `json:"guardrail_type"`
	GuardrailKey     string         `json:"guardrail_key"`
	ViolationDetails map[string]any `json:"violation_details,omitempty"`
	Severity         Severity       `json:"severity"`
	Resolved         bool           `json:"resolved"`
	ResolvedBy       string         `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
