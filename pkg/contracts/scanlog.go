package contracts

import "time"

// ScanLog is the audit record of one orchestrator cycle. It is created when
// the cycle opens and completed exactly once when the cycle closes; it is
// never mutated afterward.
type ScanLog struct {
	ID                  string         `json:"id"`
	ScanType            string         `json:"scan_type"`
	StartedAt           time.Time      `json:"started_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	IntentsDetected     int            `json:"intents_detected"`
	ActionsCreated      int            `json:"actions_created"`
	GuardrailsTriggered int            `json:"guardrails_triggered"`
	ScanContext         map[string]any `json:"scan_context,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
}

// IntentCandidate is the output of one detector: a proposed intent plus its
// ordered action specs, before deduplication and guardrail checks.
type IntentCandidate struct {
	IntentType      IntentType     `json:"intent_type"`
	SourceSignal    string         `json:"source_signal"`
	Priority        Priority       `json:"priority"`
	ConfidenceScore float64        `json:"confidence_score"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Context         map[string]any `json:"context,omitempty"`
	Actions         []ActionSpec   `json:"actions,omitempty"`
}

// TargetID returns the primary target id of the candidate, or "".
func (c *IntentCandidate) TargetID() string {
	if c.Context == nil {
		return ""
	}
	if v, ok := c.Context[ContextKeyTargetID].(string); ok {
		return v
	}
	return ""
}
