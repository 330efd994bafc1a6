package providers

import (
	"context"
	"time"

	"github.com/complyon/autonomy/pkg/detect"
)

// Static serves fixed catalog data. Tests and the development daemon use it
// in place of a live platform database.
type Static struct {
	IndustryList      []detect.Industry
	DeploymentList    []detect.Deployment
	CertificationList []detect.Certification
	UseCaseList       []detect.UseCase
	TaxonomyNodeList  []detect.TaxonomyNode
	SkeletonList      []detect.CapabilitySkeleton
	MissingEntities   map[string]bool // "type/id" keys that EntityExists denies
}

var _ detect.Providers = (*Static)(nil)

func (s *Static) Industries(context.Context) ([]detect.Industry, error) {
	return s.IndustryList, nil
}

func (s *Static) ActiveDeployments(context.Context) ([]detect.Deployment, error) {
	var out []detect.Deployment
	for _, d := range s.DeploymentList {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Static) CertificationsExpiringWithin(_ context.Context, window time.Duration) ([]detect.Certification, error) {
	cutoff := time.Now().UTC().Add(window)
	var out []detect.Certification
	for _, c := range s.CertificationList {
		if !c.ExpiresAt.After(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Static) ActiveUseCases(context.Context) ([]detect.UseCase, error) {
	var out []detect.UseCase
	for _, uc := range s.UseCaseList {
		if uc.Active {
			out = append(out, uc)
		}
	}
	return out, nil
}

func (s *Static) HighRiskTaxonomyNodes(context.Context) ([]detect.TaxonomyNode, error) {
	var out []detect.TaxonomyNode
	for _, n := range s.TaxonomyNodeList {
		if n.RiskLevel == "high" || n.RiskLevel == "critical" {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Static) CapabilitySkeletons(context.Context) ([]detect.CapabilitySkeleton, error) {
	return s.SkeletonList, nil
}

func (s *Static) EntityExists(_ context.Context, entityType, id string) (bool, error) {
	if s.MissingEntities[entityType+"/"+id] {
		return false, nil
	}
	return true, nil
}
