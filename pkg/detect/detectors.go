package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/settings"
)

// Confidence scores are fixed per detector. They are policy inputs for the
// autonomy evaluator, not learned statistics.
const (
	confidenceGapCoverage          = 0.85
	confidenceDriftRemediation     = 0.9
	confidenceCertificationRenewal = 0.95
	confidenceExpansionOpportunity = 0.7
	confidenceRiskMitigation       = 0.8
	confidenceOntologyEvolution    = 0.6
)

const certificationWindow = 30 * 24 * time.Hour

// GapCoverageDetector flags industries with zero linked execution variants.
type GapCoverageDetector struct{}

func (d *GapCoverageDetector) Name() string      { return "gap_coverage" }
func (d *GapCoverageDetector) ToggleKey() string { return settings.KeyDetectorGapCoverage }

func (d *GapCoverageDetector) Detect(ctx context.Context, deps Providers, _ settings.Snapshot) ([]contracts.IntentCandidate, error) {
	industries, err := deps.Industries(ctx)
	if err != nil {
		return nil, err
	}
	var out []contracts.IntentCandidate
	for _, ind := range industries {
		if ind.VariantCount > 0 {
			continue
		}
		out = append(out, contracts.IntentCandidate{
			IntentType:      contracts.IntentGapCoverage,
			SourceSignal:    d.Name(),
			Priority:        contracts.PriorityMedium,
			ConfidenceScore: confidenceGapCoverage,
			Title:           fmt.Sprintf("No coverage for industry %s", ind.Name),
			Description:     fmt.Sprintf("Industry %q has zero linked execution variants.", ind.Name),
			Context: candidateContext(ind.ID, map[string]any{
				"industry_name": ind.Name,
			}),
			Actions: []contracts.ActionSpec{{
				ActionType:       contracts.ActionCreateVariant,
				TargetEntityType: "industry",
				TargetEntityID:   ind.ID,
				Parameters:       map[string]any{"industry_id": ind.ID},
			}},
		})
	}
	return out, nil
}

// DriftRemediationDetector flags active deployments whose performance score
// fell below 100 - max_drift_threshold. Priority scales with severity:
// >=70 medium, >=50 high, below critical.
type DriftRemediationDetector struct{}

func (d *DriftRemediationDetector) Name() string      { return "drift_remediation" }
func (d *DriftRemediationDetector) ToggleKey() string { return settings.KeyDetectorDriftRemediation }

func (d *DriftRemediationDetector) Detect(ctx context.Context, deps Providers, snap settings.Snapshot) ([]contracts.IntentCandidate, error) {
	deployments, err := deps.ActiveDeployments(ctx)
	if err != nil {
		return nil, err
	}
	floor := 100 - snap.MaxDriftThreshold
	var out []contracts.IntentCandidate
	for _, dep := range deployments {
		if !dep.Active || dep.PerformanceScore >= floor {
			continue
		}
		out = append(out, contracts.IntentCandidate{
			IntentType:      contracts.IntentDriftRemediation,
			SourceSignal:    d.Name(),
			Priority:        scoreBand(dep.PerformanceScore),
			ConfidenceScore: confidenceDriftRemediation,
			Title:           fmt.Sprintf("Performance drift on deployment %s", dep.ID),
			Description: fmt.Sprintf("Deployment of agent %q scores %.1f, below the %.1f floor.",
				dep.AgentName, dep.PerformanceScore, floor),
			Context: candidateContext(dep.ID, map[string]any{
				"agent_id":          dep.AgentID,
				"performance_score": dep.PerformanceScore,
				"environment":       dep.Environment,
			}),
			Actions: []contracts.ActionSpec{{
				ActionType:       contracts.ActionUpdateDeployment,
				TargetEntityType: "deployment",
				TargetEntityID:   dep.ID,
				Parameters:       map[string]any{"reason": "performance_drift"},
			}},
		})
	}
	return out, nil
}

// CertificationRenewalDetector flags certifications expiring within 30
// days. Priority: critical at <=7 days, high at <=14, else medium.
type CertificationRenewalDetector struct{}

func (d *CertificationRenewalDetector) Name() string { return "certification_renewal" }
func (d *CertificationRenewalDetector) ToggleKey() string {
	return settings.KeyDetectorCertificationRenewal
}

func (d *CertificationRenewalDetector) Detect(ctx context.Context, deps Providers, _ settings.Snapshot) ([]contracts.IntentCandidate, error) {
	certs, err := deps.CertificationsExpiringWithin(ctx, certificationWindow)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []contracts.IntentCandidate
	for _, c := range certs {
		days := int(c.ExpiresAt.Sub(now).Hours() / 24)
		if days < 0 || c.ExpiresAt.Sub(now) > certificationWindow {
			continue
		}
		out = append(out, contracts.IntentCandidate{
			IntentType:      contracts.IntentCertificationRenewal,
			SourceSignal:    d.Name(),
			Priority:        expiryBand(days),
			ConfidenceScore: confidenceCertificationRenewal,
			Title:           fmt.Sprintf("Certification %s expires in %d days", c.Name, days),
			Description: fmt.Sprintf("Certification %q for agent %q expires on %s.",
				c.Name, c.AgentName, c.ExpiresAt.Format("2006-01-02")),
			Context: candidateContext(c.ID, map[string]any{
				"agent_id":       c.AgentID,
				"expires_at":     c.ExpiresAt.Format(time.RFC3339),
				"days_remaining": days,
			}),
			Actions: []contracts.ActionSpec{{
				ActionType:       contracts.ActionRenewCertification,
				TargetEntityType: "certification",
				TargetEntityID:   c.ID,
				Parameters:       map[string]any{"certification_name": c.Name},
			}},
		})
	}
	return out, nil
}

// ExpansionOpportunityDetector flags industries inside an active use case's
// declared scope that lack coverage while other industries in the same
// scope already have it.
type ExpansionOpportunityDetector struct{}

func (d *ExpansionOpportunityDetector) Name() string { return "expansion_opportunity" }
func (d *ExpansionOpportunityDetector) ToggleKey() string {
	return settings.KeyDetectorExpansionOpportunity
}

func (d *ExpansionOpportunityDetector) Detect(ctx context.Context, deps Providers, _ settings.Snapshot) ([]contracts.IntentCandidate, error) {
	useCases, err := deps.ActiveUseCases(ctx)
	if err != nil {
		return nil, err
	}
	industries, err := deps.Industries(ctx)
	if err != nil {
		return nil, err
	}
	coverage := make(map[string]int, len(industries))
	names := make(map[string]string, len(industries))
	for _, ind := range industries {
		coverage[ind.ID] = ind.VariantCount
		names[ind.ID] = ind.Name
	}

	var out []contracts.IntentCandidate
	emitted := make(map[string]bool)
	for _, uc := range useCases {
		if !uc.Active {
			continue
		}
		covered := 0
		for _, id := range uc.ScopeIndustryIDs {
			if coverage[id] > 0 {
				covered++
			}
		}
		if covered == 0 {
			continue // nothing comparable to expand from
		}
		for _, id := range uc.ScopeIndustryIDs {
			if coverage[id] > 0 || emitted[id] {
				continue
			}
			emitted[id] = true
			out = append(out, contracts.IntentCandidate{
				IntentType:      contracts.IntentExpansionOpportunity,
				SourceSignal:    d.Name(),
				Priority:        contracts.PriorityMedium,
				ConfidenceScore: confidenceExpansionOpportunity,
				Title:           fmt.Sprintf("Expansion opportunity in %s", names[id]),
				Description: fmt.Sprintf("Use case %q covers comparable industries but %q has no variants.",
					uc.Name, names[id]),
				Context: candidateContext(id, map[string]any{
					"use_case_id": uc.ID,
				}),
				Actions: []contracts.ActionSpec{{
					ActionType:       contracts.ActionCreateVariant,
					TargetEntityType: "industry",
					TargetEntityID:   id,
					Parameters:       map[string]any{"industry_id": id, "use_case_id": uc.ID},
				}},
			})
		}
	}
	return out, nil
}

// RiskMitigationDetector flags high/critical-risk taxonomy nodes whose
// mapped industry has zero coverage.
type RiskMitigationDetector struct{}

func (d *RiskMitigationDetector) Name() string      { return "risk_mitigation" }
func (d *RiskMitigationDetector) ToggleKey() string { return settings.KeyDetectorRiskMitigation }

func (d *RiskMitigationDetector) Detect(ctx context.Context, deps Providers, _ settings.Snapshot) ([]contracts.IntentCandidate, error) {
	nodes, err := deps.HighRiskTaxonomyNodes(ctx)
	if err != nil {
		return nil, err
	}
	var out []contracts.IntentCandidate
	for _, n := range nodes {
		if n.RiskLevel != "high" && n.RiskLevel != "critical" {
			continue
		}
		if n.CoverageCount > 0 {
			continue
		}
		out = append(out, contracts.IntentCandidate{
			IntentType:      contracts.IntentRiskMitigation,
			SourceSignal:    d.Name(),
			Priority:        riskBand(n.RiskLevel),
			ConfidenceScore: confidenceRiskMitigation,
			Title:           fmt.Sprintf("Uncovered %s-risk node %s", n.RiskLevel, n.Name),
			Description: fmt.Sprintf("Taxonomy node %q is tagged %s risk and maps to an industry with zero coverage.",
				n.Name, n.RiskLevel),
			Context: candidateContext(n.ID, map[string]any{
				"industry_id": n.IndustryID,
				"risk_level":  n.RiskLevel,
			}),
			Actions: []contracts.ActionSpec{{
				ActionType:       contracts.ActionFlagRisk,
				TargetEntityType: "taxonomy_node",
				TargetEntityID:   n.ID,
				Parameters:       map[string]any{"risk_level": n.RiskLevel},
			}},
		})
	}
	return out, nil
}

// OntologyEvolutionDetector flags capability skeletons with no compliance
// relationship edges at all. Ships disabled; gated by its own toggle.
type OntologyEvolutionDetector struct{}

func (d *OntologyEvolutionDetector) Name() string      { return "ontology_evolution" }
func (d *OntologyEvolutionDetector) ToggleKey() string { return settings.KeyDetectorOntologyEvolution }

func (d *OntologyEvolutionDetector) Detect(ctx context.Context, deps Providers, _ settings.Snapshot) ([]contracts.IntentCandidate, error) {
	skeletons, err := deps.CapabilitySkeletons(ctx)
	if err != nil {
		return nil, err
	}
	var out []contracts.IntentCandidate
	for _, sk := range skeletons {
		if sk.ComplianceEdgeCount > 0 {
			continue
		}
		out = append(out, contracts.IntentCandidate{
			IntentType:      contracts.IntentOntologyEvolution,
			SourceSignal:    d.Name(),
			Priority:        contracts.PriorityLow,
			ConfidenceScore: confidenceOntologyEvolution,
			Title:           fmt.Sprintf("Capability %s has no compliance edges", sk.Name),
			Description:     fmt.Sprintf("Capability skeleton %q has no compliance-relationship edges.", sk.Name),
			Context:         candidateContext(sk.ID, nil),
			Actions: []contracts.ActionSpec{{
				ActionType:       contracts.ActionProposeOntologyEdge,
				TargetEntityType: "capability_skeleton",
				TargetEntityID:   sk.ID,
			}},
		})
	}
	return out, nil
}
