package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/complyon/autonomy/pkg/contracts"
)

// Memory implements Store in memory. Thread-safe via RWMutex; values are
// copied on the way in and out so callers never share mutable state.
type Memory struct {
	mu         sync.RWMutex
	intents    map[string]*contracts.Intent
	actions    map[string]*contracts.Action
	violations map[string]*contracts.GuardrailViolation
	settings   map[string]*contracts.Setting
	scanLogs   map[string]*contracts.ScanLog
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		intents:    make(map[string]*contracts.Intent),
		actions:    make(map[string]*contracts.Action),
		violations: make(map[string]*contracts.GuardrailViolation),
		settings:   make(map[string]*contracts.Setting),
		scanLogs:   make(map[string]*contracts.ScanLog),
	}
}

var _ Store = (*Memory)(nil)

// --- Intents ---

func (m *Memory) CreateIntent(ctx context.Context, in *contracts.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[in.ID] = copyIntent(in)
	return nil
}

func (m *Memory) GetIntent(ctx context.Context, id string) (*contracts.Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.intents[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "intent", ID: id}
	}
	return copyIntent(in), nil
}

func (m *Memory) UpdateIntent(ctx context.Context, in *contracts.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[in.ID]; !ok {
		return &contracts.NotFoundError{Kind: "intent", ID: in.ID}
	}
	m.intents[in.ID] = copyIntent(in)
	return nil
}

func (m *Memory) ListIntents(ctx context.Context, f IntentFilter) ([]*contracts.Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contracts.Intent
	for _, in := range m.intents {
		if len(f.Status) > 0 && !containsIntentStatus(f.Status, in.Status) {
			continue
		}
		if len(f.IntentType) > 0 && !containsIntentType(f.IntentType, in.IntentType) {
			continue
		}
		if len(f.Priority) > 0 && !containsPriority(f.Priority, in.Priority) {
			continue
		}
		out = append(out, copyIntent(in))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	return paginate(out, f.Page), nil
}

func (m *Memory) HasNonTerminalIntent(ctx context.Context, t contracts.IntentType, targetID string) (bool, error) {
	if targetID == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, in := range m.intents {
		if in.IntentType == t && !in.Status.Terminal() && in.TargetID() == targetID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ApplyCascade(ctx context.Context, op CascadeOp) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[op.IntentID]
	if !ok {
		return 0, &contracts.NotFoundError{Kind: "intent", ID: op.IntentID}
	}
	now := time.Now().UTC()
	in.Status = op.IntentStatus
	in.ResolvedBy = op.ResolvedBy
	in.ResolvedAt = &now

	moved := 0
	for _, a := range m.actions {
		if a.IntentID != op.IntentID {
			continue
		}
		if !containsActionStatus(op.FromStatuses, a.Status) {
			continue
		}
		a.Status = op.ToStatus
		if op.Reason != "" {
			a.ErrorMessage = op.Reason
		}
		moved++
	}
	return moved, nil
}

// --- Actions ---

func (m *Memory) CreateAction(ctx context.Context, a *contracts.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[a.ID] = copyAction(a)
	return nil
}

func (m *Memory) GetAction(ctx context.Context, id string) (*contracts.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "action", ID: id}
	}
	return copyAction(a), nil
}

func (m *Memory) UpdateAction(ctx context.Context, a *contracts.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[a.ID]; !ok {
		return &contracts.NotFoundError{Kind: "action", ID: a.ID}
	}
	m.actions[a.ID] = copyAction(a)
	return nil
}

func (m *Memory) ListActions(ctx context.Context, f ActionFilter) ([]*contracts.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contracts.Action
	for _, a := range m.actions {
		if f.IntentID != "" && a.IntentID != f.IntentID {
			continue
		}
		if len(f.Status) > 0 && !containsActionStatus(f.Status, a.Status) {
			continue
		}
		out = append(out, copyAction(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IntentID != out[j].IntentID {
			return out[i].IntentID < out[j].IntentID
		}
		return out[i].SequenceOrder < out[j].SequenceOrder
	})
	return paginate(out, f.Page), nil
}

func (m *Memory) CountActionsCreatedSince(ctx context.Context, t time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.actions {
		if !a.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountActiveActions(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.actions {
		if a.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListApprovedActions(ctx context.Context, limit int) ([]*contracts.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*contracts.Action
	for _, a := range m.actions {
		if a.Status == contracts.ActionApproved {
			all = append(all, copyAction(a))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].IntentID != all[j].IntentID {
			return all[i].IntentID < all[j].IntentID
		}
		return all[i].SequenceOrder < all[j].SequenceOrder
	})
	// One per intent per batch: an intent's later actions may depend on the
	// earlier ones' simulated state.
	seen := make(map[string]bool)
	var out []*contracts.Action
	for _, a := range all {
		if seen[a.IntentID] {
			continue
		}
		seen[a.IntentID] = true
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Violations ---

func (m *Memory) CreateViolation(ctx context.Context, v *contracts.GuardrailViolation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations[v.ID] = copyViolation(v)
	return nil
}

func (m *Memory) GetViolation(ctx context.Context, id string) (*contracts.GuardrailViolation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.violations[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "violation", ID: id}
	}
	return copyViolation(v), nil
}

func (m *Memory) UpdateViolation(ctx context.Context, v *contracts.GuardrailViolation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.violations[v.ID]; !ok {
		return &contracts.NotFoundError{Kind: "violation", ID: v.ID}
	}
	m.violations[v.ID] = copyViolation(v)
	return nil
}

func (m *Memory) ListViolations(ctx context.Context, f ViolationFilter) ([]*contracts.GuardrailViolation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contracts.GuardrailViolation
	for _, v := range m.violations {
		if f.ActionID != "" && v.ActionID != f.ActionID {
			continue
		}
		if f.Resolved != nil && v.Resolved != *f.Resolved {
			continue
		}
		if len(f.GuardrailType) > 0 && !containsGuardrailType(f.GuardrailType, v.GuardrailType) {
			continue
		}
		if !f.Since.IsZero() && v.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && v.CreatedAt.After(f.Until) {
			continue
		}
		out = append(out, copyViolation(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, f.Page), nil
}

// --- Settings ---

func (m *Memory) GetSetting(ctx context.Context, key string) (*contracts.Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[key]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "setting", ID: key}
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpdateSettingValue(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[key]
	if !ok {
		return &contracts.NotFoundError{Kind: "setting", ID: key}
	}
	s.Value = value
	return nil
}

func (m *Memory) ListSettings(ctx context.Context, category contracts.SettingCategory) ([]*contracts.Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contracts.Setting
	for _, s := range m.settings {
		if category != "" && s.Category != category {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) SeedSettings(ctx context.Context, defaults []contracts.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range defaults {
		if _, ok := m.settings[s.Key]; ok {
			continue
		}
		cp := s
		m.settings[s.Key] = &cp
	}
	return nil
}

// --- Scan logs ---

func (m *Memory) CreateScanLog(ctx context.Context, l *contracts.ScanLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanLogs[l.ID] = copyScanLog(l)
	return nil
}

func (m *Memory) CompleteScanLog(ctx context.Context, l *contracts.ScanLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scanLogs[l.ID]; !ok {
		return &contracts.NotFoundError{Kind: "scan_log", ID: l.ID}
	}
	m.scanLogs[l.ID] = copyScanLog(l)
	return nil
}

func (m *Memory) GetScanLog(ctx context.Context, id string) (*contracts.ScanLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.scanLogs[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "scan_log", ID: id}
	}
	return copyScanLog(l), nil
}

func (m *Memory) ListScanLogs(ctx context.Context, f ScanLogFilter) ([]*contracts.ScanLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contracts.ScanLog
	for _, l := range m.scanLogs {
		if f.ScanType != "" && l.ScanType != f.ScanType {
			continue
		}
		if !f.Since.IsZero() && l.StartedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && l.StartedAt.After(f.Until) {
			continue
		}
		out = append(out, copyScanLog(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, f.Page), nil
}

// --- copies ---

// copyIntent clones an intent including its context map and recommended
// action specs, so stored and returned values never share mutable state.
func copyIntent(in *contracts.Intent) *contracts.Intent {
	cp := *in
	cp.Context = maps.Clone(in.Context)
	cp.RecommendedActions = slices.Clone(in.RecommendedActions)
	for i := range cp.RecommendedActions {
		cp.RecommendedActions[i].Parameters = maps.Clone(cp.RecommendedActions[i].Parameters)
	}
	return &cp
}

func copyAction(a *contracts.Action) *contracts.Action {
	cp := *a
	cp.Parameters = maps.Clone(a.Parameters)
	if a.SimulationResult != nil {
		r := *a.SimulationResult
		r.Before = maps.Clone(r.Before)
		r.After = maps.Clone(r.After)
		r.Risks = slices.Clone(r.Risks)
		r.Violations = slices.Clone(r.Violations)
		cp.SimulationResult = &r
	}
	return &cp
}

func copyViolation(v *contracts.GuardrailViolation) *contracts.GuardrailViolation {
	cp := *v
	cp.ViolationDetails = maps.Clone(v.ViolationDetails)
	return &cp
}

func copyScanLog(l *contracts.ScanLog) *contracts.ScanLog {
	cp := *l
	cp.ScanContext = maps.Clone(l.ScanContext)
	return &cp
}

// --- helpers ---

func paginate[T any](items []T, p Page) []T {
	if p.Offset >= len(items) {
		return nil
	}
	items = items[p.Offset:]
	if lim := p.limit(); len(items) > lim {
		items = items[:lim]
	}
	return items
}

func containsIntentStatus(ss []contracts.IntentStatus, s contracts.IntentStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsIntentType(ts []contracts.IntentType, t contracts.IntentType) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

func containsPriority(ps []contracts.Priority, p contracts.Priority) bool {
	for _, v := range ps {
		if v == p {
			return true
		}
	}
	return false
}

func containsActionStatus(ss []contracts.ActionStatus, s contracts.ActionStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsGuardrailType(ts []contracts.GuardrailType, t contracts.GuardrailType) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}
