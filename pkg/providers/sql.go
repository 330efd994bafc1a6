// Package providers implements the read-only catalog queries the detectors
// and simulator consume, backed by the governed platform's SQL schema.
// Static is the in-memory fixture implementation used by tests and the
// development daemon.
package providers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/complyon/autonomy/pkg/detect"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// SQL reads the platform catalog tables. All methods are read-only.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

var _ detect.Providers = (*SQL)(nil)

func (p *SQL) bind(q string) string {
	if p.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p *SQL) Industries(ctx context.Context) ([]detect.Industry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, variant_count FROM industries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query industries: %w", err)
	}
	defer rows.Close()

	var out []detect.Industry
	for rows.Next() {
		var ind detect.Industry
		if err := rows.Scan(&ind.ID, &ind.Name, &ind.VariantCount); err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

func (p *SQL) ActiveDeployments(ctx context.Context) ([]detect.Deployment, error) {
	rows, err := p.db.QueryContext(ctx, p.bind(
		`SELECT id, agent_id, agent_name, environment, performance_score
		 FROM deployments WHERE active = ? ORDER BY id`), true)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	var out []detect.Deployment
	for rows.Next() {
		d := detect.Deployment{Active: true}
		if err := rows.Scan(&d.ID, &d.AgentID, &d.AgentName, &d.Environment, &d.PerformanceScore); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *SQL) CertificationsExpiringWithin(ctx context.Context, window time.Duration) ([]detect.Certification, error) {
	cutoff := time.Now().UTC().Add(window)
	rows, err := p.db.QueryContext(ctx, p.bind(
		`SELECT id, agent_id, agent_name, name, expires_at
		 FROM certifications WHERE expires_at <= ? ORDER BY expires_at`), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query certifications: %w", err)
	}
	defer rows.Close()

	var out []detect.Certification
	for rows.Next() {
		var c detect.Certification
		if err := rows.Scan(&c.ID, &c.AgentID, &c.AgentName, &c.Name, &c.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *SQL) ActiveUseCases(ctx context.Context) ([]detect.UseCase, error) {
	rows, err := p.db.QueryContext(ctx, p.bind(
		`SELECT id, name, scope_industry_ids FROM use_cases WHERE active = ? ORDER BY id`), true)
	if err != nil {
		return nil, fmt.Errorf("query use cases: %w", err)
	}
	defer rows.Close()

	var out []detect.UseCase
	for rows.Next() {
		uc := detect.UseCase{Active: true}
		var scope sql.NullString
		if err := rows.Scan(&uc.ID, &uc.Name, &scope); err != nil {
			return nil, err
		}
		if scope.Valid && scope.String != "" {
			uc.ScopeIndustryIDs = strings.Split(scope.String, ",")
		}
		out = append(out, uc)
	}
	return out, rows.Err()
}

func (p *SQL) HighRiskTaxonomyNodes(ctx context.Context) ([]detect.TaxonomyNode, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, risk_level, industry_id, coverage_count
		 FROM taxonomy_nodes WHERE risk_level IN ('high', 'critical') ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query taxonomy nodes: %w", err)
	}
	defer rows.Close()

	var out []detect.TaxonomyNode
	for rows.Next() {
		var n detect.TaxonomyNode
		if err := rows.Scan(&n.ID, &n.Name, &n.RiskLevel, &n.IndustryID, &n.CoverageCount); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *SQL) CapabilitySkeletons(ctx context.Context) ([]detect.CapabilitySkeleton, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, compliance_edge_count FROM capability_skeletons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query capability skeletons: %w", err)
	}
	defer rows.Close()

	var out []detect.CapabilitySkeleton
	for rows.Next() {
		var s detect.CapabilitySkeleton
		if err := rows.Scan(&s.ID, &s.Name, &s.ComplianceEdgeCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// entityTables whitelists the tables EntityExists may probe, keyed by the
// target_entity_type values detectors emit.
var entityTables = map[string]string{
	"industry":            "industries",
	"deployment":          "deployments",
	"certification":       "certifications",
	"use_case":            "use_cases",
	"taxonomy_node":       "taxonomy_nodes",
	"capability_skeleton": "capability_skeletons",
}

func (p *SQL) EntityExists(ctx context.Context, entityType, id string) (bool, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return false, fmt.Errorf("unknown entity type %q", entityType)
	}
	var one int
	err := p.db.QueryRowContext(ctx,
		p.bind(fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table)), id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("entity lookup %s/%s: %w", entityType, id, err)
	}
	return true, nil
}
