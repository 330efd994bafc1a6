package detect

import (
	"context"
	"time"
)

// External read-only snapshots the detectors inspect. Every provider method
// may return an empty slice; detectors treat missing data as "nothing to
// report", never as an error worth aborting a cycle for.

// Industry is one entry of the industry/coverage catalog.
type Industry struct {
	ID           string
	Name         string
	VariantCount int // linked execution variants
}

// Deployment is one row of deployment performance telemetry.
type Deployment struct {
	ID               string
	AgentID          string
	AgentName        string
	Environment      string // "production", "staging", ...
	Active           bool
	PerformanceScore float64 // 0-100
}

// Certification is one certification expiry record.
type Certification struct {
	ID        string
	AgentID   string
	AgentName string
	Name      string
	ExpiresAt time.Time
}

// UseCase is one active use case with its declared industry scope.
type UseCase struct {
	ID               string
	Name             string
	Active           bool
	ScopeIndustryIDs []string
}

// TaxonomyNode is one node of the taxonomy risk graph.
type TaxonomyNode struct {
	ID            string
	Name          string
	RiskLevel     string // "low", "medium", "high", "critical"
	IndustryID    string
	CoverageCount int
}

// CapabilitySkeleton is one registered capability skeleton in the
// ontology graph.
type CapabilitySkeleton struct {
	ID                  string
	Name                string
	ComplianceEdgeCount int
}

// Providers bundles the external read-only query functions. Each detector
// uses a subset; the simulator uses EntityExists for target checks.
type Providers interface {
	Industries(ctx context.Context) ([]Industry, error)
	ActiveDeployments(ctx context.Context) ([]Deployment, error)
	CertificationsExpiringWithin(ctx context.Context, window time.Duration) ([]Certification, error)
	ActiveUseCases(ctx context.Context) ([]UseCase, error)
	HighRiskTaxonomyNodes(ctx context.Context) ([]TaxonomyNode, error)
	CapabilitySkeletons(ctx context.Context) ([]CapabilitySkeleton, error)

	// EntityExists reports whether the entity of the given type and id
	// currently exists. Used by the simulator's dry-run target checks.
	EntityExists(ctx context.Context, entityType, id string) (bool, error)
}
