package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/complyon/autonomy/pkg/contracts"
)

// Dialect selects SQL placeholder style.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// SQL implements Store on database/sql. The same implementation serves
// SQLite (modernc driver, self-migrating) and Postgres (lib/pq, schema
// applied by the deployment's migration tooling).
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLite wraps an open SQLite database and creates the schema if absent.
func NewSQLite(db *sql.DB) (*SQL, error) {
	s := &SQL{db: db, dialect: DialectSQLite}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return s, nil
}

// NewPostgres wraps an open Postgres database. The schema (schema.sql) is
// expected to be applied already.
func NewPostgres(db *sql.DB) *SQL {
	return &SQL{db: db, dialect: DialectPostgres}
}

var _ Store = (*SQL)(nil)

func (s *SQL) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS intents (
			id TEXT PRIMARY KEY,
			intent_type TEXT NOT NULL,
			source_signal TEXT NOT NULL,
			priority TEXT NOT NULL,
			confidence_score REAL NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			context TEXT,
			recommended_actions TEXT,
			status TEXT NOT NULL,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMP,
			expires_at TIMESTAMP,
			target_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_dedup ON intents (intent_type, target_id, status)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			target_entity_type TEXT NOT NULL DEFAULT '',
			target_entity_id TEXT NOT NULL DEFAULT '',
			parameters TEXT,
			status TEXT NOT NULL,
			requires_approval BOOLEAN NOT NULL,
			sequence_order INTEGER NOT NULL,
			approved_by TEXT NOT NULL DEFAULT '',
			approved_at TIMESTAMP,
			simulation_result TEXT,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			UNIQUE (intent_id, sequence_order)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_status ON actions (status)`,
		`CREATE TABLE IF NOT EXISTS guardrail_violations (
			id TEXT PRIMARY KEY,
			action_id TEXT NOT NULL DEFAULT '',
			guardrail_type TEXT NOT NULL,
			guardrail_key TEXT NOT NULL,
			violation_details TEXT,
			severity TEXT NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			type TEXT NOT NULL,
			category TEXT NOT NULL,
			min_value REAL,
			max_value REAL,
			default_value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS scan_logs (
			id TEXT PRIMARY KEY,
			scan_type TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			intents_detected INTEGER NOT NULL DEFAULT 0,
			actions_created INTEGER NOT NULL DEFAULT 0,
			guardrails_triggered INTEGER NOT NULL DEFAULT 0,
			scan_context TEXT,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return err
		}
	}
	return nil
}

// bind rewrites ? placeholders to $n for Postgres. Queries in this file are
// written in SQLite style.
func (s *SQL) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMap(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// --- Intents ---

const intentColumns = `id, intent_type, source_signal, priority, confidence_score, title, description, context, recommended_actions, status, resolved_by, resolved_at, expires_at, created_at`

func (s *SQL) CreateIntent(ctx context.Context, in *contracts.Intent) error {
	ctxJSON, err := marshalJSON(in.Context)
	if err != nil {
		return fmt.Errorf("marshal intent context: %w", err)
	}
	raJSON, err := marshalJSON(in.RecommendedActions)
	if err != nil {
		return fmt.Errorf("marshal recommended actions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO intents (id, intent_type, source_signal, priority, confidence_score, title, description, context, recommended_actions, status, resolved_by, resolved_at, expires_at, target_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		in.ID, string(in.IntentType), in.SourceSignal, string(in.Priority), in.ConfidenceScore,
		in.Title, in.Description, ctxJSON, raJSON, string(in.Status),
		in.ResolvedBy, nullTime(in.ResolvedAt), nullTime(in.ExpiresAt), in.TargetID(), in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

func (s *SQL) scanIntent(row interface{ Scan(...any) error }) (*contracts.Intent, error) {
	var (
		in         contracts.Intent
		ctxJSON    sql.NullString
		raJSON     sql.NullString
		resolvedAt sql.NullTime
		expiresAt  sql.NullTime
	)
	err := row.Scan(&in.ID, &in.IntentType, &in.SourceSignal, &in.Priority, &in.ConfidenceScore,
		&in.Title, &in.Description, &ctxJSON, &raJSON, &in.Status,
		&in.ResolvedBy, &resolvedAt, &expiresAt, &in.CreatedAt)
	if err != nil {
		return nil, err
	}
	if in.Context, err = unmarshalMap(ctxJSON); err != nil {
		return nil, fmt.Errorf("unmarshal intent context: %w", err)
	}
	if raJSON.Valid && raJSON.String != "" {
		if err := json.Unmarshal([]byte(raJSON.String), &in.RecommendedActions); err != nil {
			return nil, fmt.Errorf("unmarshal recommended actions: %w", err)
		}
	}
	in.ResolvedAt = timePtr(resolvedAt)
	in.ExpiresAt = timePtr(expiresAt)
	return &in, nil
}

func (s *SQL) GetIntent(ctx context.Context, id string) (*contracts.Intent, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+intentColumns+` FROM intents WHERE id = ?`), id)
	in, err := s.scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, &contracts.NotFoundError{Kind: "intent", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return in, nil
}

func (s *SQL) UpdateIntent(ctx context.Context, in *contracts.Intent) error {
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE intents SET status = ?, resolved_by = ?, resolved_at = ?, expires_at = ? WHERE id = ?`),
		string(in.Status), in.ResolvedBy, nullTime(in.ResolvedAt), nullTime(in.ExpiresAt), in.ID)
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	return requireRow(res, "intent", in.ID)
}

func (s *SQL) ListIntents(ctx context.Context, f IntentFilter) ([]*contracts.Intent, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Status) > 0 {
		where = append(where, `status IN (`+placeholders(len(f.Status))+`)`)
		for _, v := range f.Status {
			args = append(args, string(v))
		}
	}
	if len(f.IntentType) > 0 {
		where = append(where, `intent_type IN (`+placeholders(len(f.IntentType))+`)`)
		for _, v := range f.IntentType {
			args = append(args, string(v))
		}
	}
	if len(f.Priority) > 0 {
		where = append(where, `priority IN (`+placeholders(len(f.Priority))+`)`)
		for _, v := range f.Priority {
			args = append(args, string(v))
		}
	}
	query := `SELECT ` + intentColumns + ` FROM intents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Page.limit(), f.Page.Offset)

	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Intent
	for rows.Next() {
		in, err := s.scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *SQL) HasNonTerminalIntent(ctx context.Context, t contracts.IntentType, targetID string) (bool, error) {
	if targetID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, s.bind(
		`SELECT COUNT(*) FROM intents WHERE intent_type = ? AND target_id = ? AND status NOT IN (?, ?, ?, ?)`),
		string(t), targetID,
		string(contracts.IntentCompleted), string(contracts.IntentFailed),
		string(contracts.IntentCancelled), string(contracts.IntentRejected)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return n > 0, nil
}

func (s *SQL) ApplyCascade(ctx context.Context, op CascadeOp) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cascade: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, s.bind(
		`UPDATE intents SET status = ?, resolved_by = ?, resolved_at = ? WHERE id = ?`),
		string(op.IntentStatus), op.ResolvedBy, now, op.IntentID)
	if err != nil {
		return 0, fmt.Errorf("cascade intent update: %w", err)
	}
	if err := requireRow(res, "intent", op.IntentID); err != nil {
		return 0, err
	}

	moved := 0
	if len(op.FromStatuses) > 0 {
		args := []any{string(op.ToStatus), op.Reason, op.Reason, op.IntentID}
		for _, st := range op.FromStatuses {
			args = append(args, string(st))
		}
		res, err = tx.ExecContext(ctx, s.bind(
			`UPDATE actions SET status = ?, error_message = CASE WHEN ? = '' THEN error_message ELSE ? END `+
				`WHERE intent_id = ? AND status IN (`+placeholders(len(op.FromStatuses))+`)`),
			args...)
		if err != nil {
			return 0, fmt.Errorf("cascade action update: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			moved = int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cascade: %w", err)
	}
	return moved, nil
}

// --- Actions ---

const actionColumns = `id, intent_id, action_type, target_entity_type, target_entity_id, parameters, status, requires_approval, sequence_order, approved_by, approved_at, simulation_result, error_message, created_at`

func (s *SQL) CreateAction(ctx context.Context, a *contracts.Action) error {
	params, err := marshalJSON(a.Parameters)
	if err != nil {
		return fmt.Errorf("marshal action parameters: %w", err)
	}
	sim, err := marshalJSON(a.SimulationResult)
	if err != nil {
		return fmt.Errorf("marshal simulation result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO actions (id, intent_id, action_type, target_entity_type, target_entity_id, parameters, status, requires_approval, sequence_order, approved_by, approved_at, simulation_result, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.IntentID, string(a.ActionType), a.TargetEntityType, a.TargetEntityID,
		params, string(a.Status), a.RequiresApproval, a.SequenceOrder,
		a.ApprovedBy, nullTime(a.ApprovedAt), sim, a.ErrorMessage, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (s *SQL) scanAction(row interface{ Scan(...any) error }) (*contracts.Action, error) {
	var (
		a          contracts.Action
		params     sql.NullString
		sim        sql.NullString
		approvedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.IntentID, &a.ActionType, &a.TargetEntityType, &a.TargetEntityID,
		&params, &a.Status, &a.RequiresApproval, &a.SequenceOrder,
		&a.ApprovedBy, &approvedAt, &sim, &a.ErrorMessage, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if a.Parameters, err = unmarshalMap(params); err != nil {
		return nil, fmt.Errorf("unmarshal action parameters: %w", err)
	}
	if sim.Valid && sim.String != "" {
		a.SimulationResult = &contracts.SimulationResult{}
		if err := json.Unmarshal([]byte(sim.String), a.SimulationResult); err != nil {
			return nil, fmt.Errorf("unmarshal simulation result: %w", err)
		}
	}
	a.ApprovedAt = timePtr(approvedAt)
	return &a, nil
}

func (s *SQL) GetAction(ctx context.Context, id string) (*contracts.Action, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+actionColumns+` FROM actions WHERE id = ?`), id)
	a, err := s.scanAction(row)
	if err == sql.ErrNoRows {
		return nil, &contracts.NotFoundError{Kind: "action", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

func (s *SQL) UpdateAction(ctx context.Context, a *contracts.Action) error {
	sim, err := marshalJSON(a.SimulationResult)
	if err != nil {
		return fmt.Errorf("marshal simulation result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE actions SET status = ?, approved_by = ?, approved_at = ?, simulation_result = ?, error_message = ? WHERE id = ?`),
		string(a.Status), a.ApprovedBy, nullTime(a.ApprovedAt), sim, a.ErrorMessage, a.ID)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return requireRow(res, "action", a.ID)
}

func (s *SQL) ListActions(ctx context.Context, f ActionFilter) ([]*contracts.Action, error) {
	var (
		where []string
		args  []any
	)
	if f.IntentID != "" {
		where = append(where, `intent_id = ?`)
		args = append(args, f.IntentID)
	}
	if len(f.Status) > 0 {
		where = append(where, `status IN (`+placeholders(len(f.Status))+`)`)
		for _, v := range f.Status {
			args = append(args, string(v))
		}
	}
	query := `SELECT ` + actionColumns + ` FROM actions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY intent_id, sequence_order LIMIT ? OFFSET ?`
	args = append(args, f.Page.limit(), f.Page.Offset)

	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Action
	for rows.Next() {
		a, err := s.scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQL) CountActionsCreatedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM actions WHERE created_at >= ?`), t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count actions since: %w", err)
	}
	return n, nil
}

func (s *SQL) CountActiveActions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.bind(
		`SELECT COUNT(*) FROM actions WHERE status IN (?, ?, ?)`),
		string(contracts.ActionApproved), string(contracts.ActionSimulating), string(contracts.ActionExecuting)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active actions: %w", err)
	}
	return n, nil
}

func (s *SQL) ListApprovedActions(ctx context.Context, limit int) ([]*contracts.Action, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(
		`SELECT `+actionColumns+` FROM actions WHERE status = ? ORDER BY intent_id, sequence_order`),
		string(contracts.ActionApproved))
	if err != nil {
		return nil, fmt.Errorf("list approved actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// One action per intent per batch: later actions of the same intent may
	// depend on the earlier ones' simulated state.
	seen := make(map[string]bool)
	var out []*contracts.Action
	for rows.Next() {
		a, err := s.scanAction(rows)
		if err != nil {
			return nil, err
		}
		if seen[a.IntentID] {
			continue
		}
		seen[a.IntentID] = true
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// --- Violations ---

const violationColumns = `id, action_id, guardrail_type, guardrail_key, violation_details, severity, resolved, resolved_by, resolved_at, created_at`

func (s *SQL) CreateViolation(ctx context.Context, v *contracts.GuardrailViolation) error {
	details, err := marshalJSON(v.ViolationDetails)
	if err != nil {
		return fmt.Errorf("marshal violation details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO guardrail_violations (id, action_id, guardrail_type, guardrail_key, violation_details, severity, resolved, resolved_by, resolved_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.ActionID, string(v.GuardrailType), v.GuardrailKey, details,
		string(v.Severity), v.Resolved, v.ResolvedBy, nullTime(v.ResolvedAt), v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

func (s *SQL) scanViolation(row interface{ Scan(...any) error }) (*contracts.GuardrailViolation, error) {
	var (
		v          contracts.GuardrailViolation
		details    sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&v.ID, &v.ActionID, &v.GuardrailType, &v.GuardrailKey, &details,
		&v.Severity, &v.Resolved, &v.ResolvedBy, &resolvedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if v.ViolationDetails, err = unmarshalMap(details); err != nil {
		return nil, fmt.Errorf("unmarshal violation details: %w", err)
	}
	v.ResolvedAt = timePtr(resolvedAt)
	return &v, nil
}

func (s *SQL) GetViolation(ctx context.Context, id string) (*contracts.GuardrailViolation, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+violationColumns+` FROM guardrail_violations WHERE id = ?`), id)
	v, err := s.scanViolation(row)
	if err == sql.ErrNoRows {
		return nil, &contracts.NotFoundError{Kind: "violation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get violation: %w", err)
	}
	return v, nil
}

func (s *SQL) UpdateViolation(ctx context.Context, v *contracts.GuardrailViolation) error {
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE guardrail_violations SET resolved = ?, resolved_by = ?, resolved_at = ? WHERE id = ?`),
		v.Resolved, v.ResolvedBy, nullTime(v.ResolvedAt), v.ID)
	if err != nil {
		return fmt.Errorf("update violation: %w", err)
	}
	return requireRow(res, "violation", v.ID)
}

func (s *SQL) ListViolations(ctx context.Context, f ViolationFilter) ([]*contracts.GuardrailViolation, error) {
	var (
		where []string
		args  []any
	)
	if f.ActionID != "" {
		where = append(where, `action_id = ?`)
		args = append(args, f.ActionID)
	}
	if len(f.GuardrailType) > 0 {
		where = append(where, `guardrail_type IN (`+placeholders(len(f.GuardrailType))+`)`)
		for _, v := range f.GuardrailType {
			args = append(args, string(v))
		}
	}
	if f.Resolved != nil {
		where = append(where, `resolved = ?`)
		args = append(args, *f.Resolved)
	}
	if !f.Since.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		where = append(where, `created_at <= ?`)
		args = append(args, f.Until)
	}
	query := `SELECT ` + violationColumns + ` FROM guardrail_violations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Page.limit(), f.Page.Offset)

	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.GuardrailViolation
	for rows.Next() {
		v, err := s.scanViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Settings ---

const settingColumns = `key, value, type, category, min_value, max_value, default_value, description`

func (s *SQL) GetSetting(ctx context.Context, key string) (*contracts.Setting, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+settingColumns+` FROM settings WHERE key = ?`), key)
	st, err := s.scanSetting(row)
	if err == sql.ErrNoRows {
		return nil, &contracts.NotFoundError{Kind: "setting", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return st, nil
}

func (s *SQL) scanSetting(row interface{ Scan(...any) error }) (*contracts.Setting, error) {
	var (
		st       contracts.Setting
		minValue sql.NullFloat64
		maxValue sql.NullFloat64
	)
	err := row.Scan(&st.Key, &st.Value, &st.Type, &st.Category, &minValue, &maxValue, &st.DefaultValue, &st.Description)
	if err != nil {
		return nil, err
	}
	if minValue.Valid {
		v := minValue.Float64
		st.MinValue = &v
	}
	if maxValue.Valid {
		v := maxValue.Float64
		st.MaxValue = &v
	}
	return &st, nil
}

func (s *SQL) UpdateSettingValue(ctx context.Context, key, value string) error {
	res, err := s.db.ExecContext(ctx, s.bind(`UPDATE settings SET value = ? WHERE key = ?`), value, key)
	if err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	return requireRow(res, "setting", key)
}

func (s *SQL) ListSettings(ctx context.Context, category contracts.SettingCategory) ([]*contracts.Setting, error) {
	query := `SELECT ` + settingColumns + ` FROM settings`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Setting
	for rows.Next() {
		st, err := s.scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQL) SeedSettings(ctx context.Context, defaults []contracts.Setting) error {
	for _, st := range defaults {
		var minV, maxV any
		if st.MinValue != nil {
			minV = *st.MinValue
		}
		if st.MaxValue != nil {
			maxV = *st.MaxValue
		}
		var query string
		if s.dialect == DialectPostgres {
			query = `INSERT INTO settings (key, value, type, category, min_value, max_value, default_value, description)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (key) DO NOTHING`
		} else {
			query = `INSERT OR IGNORE INTO settings (key, value, type, category, min_value, max_value, default_value, description)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		}
		if _, err := s.db.ExecContext(ctx, s.bind(query),
			st.Key, st.Value, string(st.Type), string(st.Category), minV, maxV, st.DefaultValue, st.Description); err != nil {
			return fmt.Errorf("seed setting %s: %w", st.Key, err)
		}
	}
	return nil
}

// --- Scan logs ---

const scanLogColumns = `id, scan_type, started_at, completed_at, intents_detected, actions_created, guardrails_triggered, scan_context, error_message`

func (s *SQL) CreateScanLog(ctx context.Context, l *contracts.ScanLog) error {
	sc, err := marshalJSON(l.ScanContext)
	if err != nil {
		return fmt.Errorf("marshal scan context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO scan_logs (id, scan_type, started_at, completed_at, intents_detected, actions_created, guardrails_triggered, scan_context, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.ScanType, l.StartedAt, nullTime(l.CompletedAt),
		l.IntentsDetected, l.ActionsCreated, l.GuardrailsTriggered, sc, l.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return nil
}

func (s *SQL) CompleteScanLog(ctx context.Context, l *contracts.ScanLog) error {
	sc, err := marshalJSON(l.ScanContext)
	if err != nil {
		return fmt.Errorf("marshal scan context: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE scan_logs SET completed_at = ?, intents_detected = ?, actions_created = ?, guardrails_triggered = ?, scan_context = ?, error_message = ? WHERE id = ?`),
		nullTime(l.CompletedAt), l.IntentsDetected, l.ActionsCreated, l.GuardrailsTriggered, sc, l.ErrorMessage, l.ID)
	if err != nil {
		return fmt.Errorf("complete scan log: %w", err)
	}
	return requireRow(res, "scan_log", l.ID)
}

func (s *SQL) GetScanLog(ctx context.Context, id string) (*contracts.ScanLog, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+scanLogColumns+` FROM scan_logs WHERE id = ?`), id)
	l, err := s.scanScanLog(row)
	if err == sql.ErrNoRows {
		return nil, &contracts.NotFoundError{Kind: "scan_log", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get scan log: %w", err)
	}
	return l, nil
}

func (s *SQL) scanScanLog(row interface{ Scan(...any) error }) (*contracts.ScanLog, error) {
	var (
		l           contracts.ScanLog
		completedAt sql.NullTime
		sc          sql.NullString
	)
	err := row.Scan(&l.ID, &l.ScanType, &l.StartedAt, &completedAt,
		&l.IntentsDetected, &l.ActionsCreated, &l.GuardrailsTriggered, &sc, &l.ErrorMessage)
	if err != nil {
		return nil, err
	}
	if l.ScanContext, err = unmarshalMap(sc); err != nil {
		return nil, fmt.Errorf("unmarshal scan context: %w", err)
	}
	l.CompletedAt = timePtr(completedAt)
	return &l, nil
}

func (s *SQL) ListScanLogs(ctx context.Context, f ScanLogFilter) ([]*contracts.ScanLog, error) {
	var (
		where []string
		args  []any
	)
	if f.ScanType != "" {
		where = append(where, `scan_type = ?`)
		args = append(args, f.ScanType)
	}
	if !f.Since.IsZero() {
		where = append(where, `started_at >= ?`)
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		where = append(where, `started_at <= ?`)
		args = append(args, f.Until)
	}
	query := `SELECT ` + scanLogColumns + ` FROM scan_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Page.limit(), f.Page.Offset)

	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.ScanLog
	for rows.Next() {
		l, err := s.scanScanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- helpers ---

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver without RowsAffected support; trust the exec
	}
	if n == 0 {
		return &contracts.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
