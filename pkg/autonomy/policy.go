// Package autonomy maps the configured autonomy level and a candidate's
// confidence and priority to a per-action approval decision. The production
// lock guardrail always wins over the level.
package autonomy

import (
	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/settings"
)

// Auto-approval threshold for semi_autonomous mode.
const semiAutonomousConfidenceFloor = 0.8

// Decision is the approval outcome for one action at creation time.
type Decision struct {
	AutoApprove      bool
	RequiresApproval bool
	InitialStatus    contracts.ActionStatus
	Reason           string
}

// Decide computes the approval decision for an action of an intent with the
// given confidence and priority under the current settings snapshot.
//
// RequiresApproval = productionLock OR NOT autoApprove. The initial action
// status is approved only when nothing requires a human.
func Decide(snap settings.Snapshot, confidence float64, priority contracts.Priority) Decision {
	var (
		auto   bool
		reason string
	)
	switch snap.AutonomyLevel {
	case contracts.AutonomyFullAutonomous:
		auto = true
		reason = "full_autonomous"
	case contracts.AutonomySemiAutonomous:
		if confidence > semiAutonomousConfidenceFloor && priority != contracts.PriorityCritical {
			auto = true
			reason = "semi_autonomous: confidence above threshold"
		} else if priority == contracts.PriorityCritical {
			reason = "semi_autonomous: critical priority requires human approval"
		} else {
			reason = "semi_autonomous: confidence below threshold"
		}
	default: // advisory, or an unparseable level: everything needs a human
		reason = "advisory: all actions require approval"
	}

	if snap.ApprovalRequiredProduction {
		// The production lock cannot be overridden by any autonomy level.
		d := Decision{
			AutoApprove:      false,
			RequiresApproval: true,
			InitialStatus:    contracts.ActionAwaitingApproval,
			Reason:           "production approval lock",
		}
		return d
	}

	if auto {
		return Decision{
			AutoApprove:      true,
			RequiresApproval: false,
			InitialStatus:    contracts.ActionApproved,
			Reason:           reason,
		}
	}
	return Decision{
		AutoApprove:      false,
		RequiresApproval: true,
		InitialStatus:    contracts.ActionAwaitingApproval,
		Reason:           reason,
	}
}
