// Package store persists the orchestrator's five record types. The SQL
// implementation backs SQLite (self-migrating, default) and Postgres
// (schema applied externally); the in-memory implementation backs tests
// and single-process development.
package store

import (
	"context"
	"time"

	"github.com/complyon/autonomy/pkg/contracts"
)

// Page bounds list results. A zero Limit means the store default (100).
type Page struct {
	Limit  int
	Offset int
}

// IntentFilter selects intents for listing.
type IntentFilter struct {
	Status     []contracts.IntentStatus
	IntentType []contracts.IntentType
	Priority   []contracts.Priority
	Page       Page
}

// ActionFilter selects actions for listing.
type ActionFilter struct {
	IntentID string
	Status   []contracts.ActionStatus
	Page     Page
}

// ViolationFilter selects guardrail violations for listing.
type ViolationFilter struct {
	ActionID      string
	GuardrailType []contracts.GuardrailType
	Resolved      *bool
	Since         time.Time
	Until         time.Time
	Page          Page
}

// ScanLogFilter selects scan logs for listing.
type ScanLogFilter struct {
	ScanType string
	Since    time.Time
	Until    time.Time
	Page     Page
}

// CascadeOp is a transactional parent transition plus child status cascade.
// The intent moves to IntentStatus and every action of the intent currently
// in one of FromStatuses moves to ToStatus, all atomically.
type CascadeOp struct {
	IntentID     string
	IntentStatus contracts.IntentStatus
	ResolvedBy   string
	Reason       string // copied to each cascaded action's error_message when non-empty
	FromStatuses []contracts.ActionStatus
	ToStatus     contracts.ActionStatus
}

// IntentStore persists intents.
type IntentStore interface {
	CreateIntent(ctx context.Context, in *contracts.Intent) error
	GetIntent(ctx context.Context, id string) (*contracts.Intent, error)
	UpdateIntent(ctx context.Context, in *contracts.Intent) error
	ListIntents(ctx context.Context, f IntentFilter) ([]*contracts.Intent, error)

	// HasNonTerminalIntent reports whether any intent of the given type whose
	// context references targetID is still non-terminal. The deduplicator's
	// presence check.
	HasNonTerminalIntent(ctx context.Context, t contracts.IntentType, targetID string) (bool, error)

	// ApplyCascade performs the parent transition and child cascade
	// atomically, returning the number of actions moved.
	ApplyCascade(ctx context.Context, op CascadeOp) (int, error)
}

// ActionStore persists actions and answers the guardrail counting queries.
type ActionStore interface {
	CreateAction(ctx context.Context, a *contracts.Action) error
	GetAction(ctx context.Context, id string) (*contracts.Action, error)
	UpdateAction(ctx context.Context, a *contracts.Action) error
	ListActions(ctx context.Context, f ActionFilter) ([]*contracts.Action, error)

	// CountActionsCreatedSince counts actions with created_at >= t.
	// The daily budget guardrail passes the start of the current UTC day.
	CountActionsCreatedSince(ctx context.Context, t time.Time) (int, error)

	// CountActiveActions counts actions in approved/simulating/executing.
	CountActiveActions(ctx context.Context) (int, error)

	// ListApprovedActions returns up to limit actions in status approved,
	// ordered by intent then ascending sequence_order, at most one per
	// intent (later actions of an intent may depend on earlier ones).
	ListApprovedActions(ctx context.Context, limit int) ([]*contracts.Action, error)
}

// ViolationStore persists guardrail violations.
type ViolationStore interface {
	CreateViolation(ctx context.Context, v *contracts.GuardrailViolation) error
	GetViolation(ctx context.Context, id string) (*contracts.GuardrailViolation, error)
	UpdateViolation(ctx context.Context, v *contracts.GuardrailViolation) error
	ListViolations(ctx context.Context, f ViolationFilter) ([]*contracts.GuardrailViolation, error)
}

// SettingStore persists settings, keyed uniquely by Key.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (*contracts.Setting, error)
	UpdateSettingValue(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context, category contracts.SettingCategory) ([]*contracts.Setting, error)

	// SeedSettings inserts any settings not already present. Existing rows
	// are left untouched so operator edits survive restarts.
	SeedSettings(ctx context.Context, defaults []contracts.Setting) error
}

// ScanLogStore persists scan logs.
type ScanLogStore interface {
	CreateScanLog(ctx context.Context, l *contracts.ScanLog) error
	CompleteScanLog(ctx context.Context, l *contracts.ScanLog) error
	GetScanLog(ctx context.Context, id string) (*contracts.ScanLog, error)
	ListScanLogs(ctx context.Context, f ScanLogFilter) ([]*contracts.ScanLog, error)
}

// Store is the full persistence surface.
type Store interface {
	IntentStore
	ActionStore
	ViolationStore
	SettingStore
	ScanLogStore
}

const defaultPageLimit = 100

func (p Page) limit() int {
	if p.Limit <= 0 {
		return defaultPageLimit
	}
	return p.Limit
}
