// Package detect implements the six signal detectors and the concurrent
// runner that fans them out and merges their candidates deterministically.
package detect

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/settings"
)

// Detector is one side-effect-free signal analyzer. Detect inspects external
// read-only state plus the settings snapshot and returns zero or more
// candidates. Detectors must return an empty list on missing data rather
// than failing, and must honor ctx cancellation.
type Detector interface {
	Name() string

	// ToggleKey is the setting key that enables or disables this detector.
	ToggleKey() string

	Detect(ctx context.Context, deps Providers, snap settings.Snapshot) ([]contracts.IntentCandidate, error)
}

// Result is the merged output of one detector fan-out.
type Result struct {
	Candidates []contracts.IntentCandidate
	// PerDetector maps detector name to the number of candidates it
	// produced; disabled detectors are absent.
	PerDetector map[string]int
	// Errors holds one DetectorError per failed detector. Failures never
	// abort the run; the failed detector simply contributes nothing.
	Errors []error
}

// Runner fans detectors out concurrently and merges their candidate lists
// in declaration order, so output ordering is stable for a given snapshot.
type Runner struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewRunner creates a runner over the given detectors. Declaration order
// defines merge order.
func NewRunner(detectors []Detector, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{detectors: detectors, logger: logger.With("component", "detect")}
}

// DefaultDetectors returns the standard six detectors in their canonical
// declaration order.
func DefaultDetectors() []Detector {
	return []Detector{
		&GapCoverageDetector{},
		&DriftRemediationDetector{},
		&CertificationRenewalDetector{},
		&ExpansionOpportunityDetector{},
		&RiskMitigationDetector{},
		&OntologyEvolutionDetector{},
	}
}

// Run executes all enabled detectors concurrently, each under the
// snapshot's per-detector timeout. A detector failure or timeout is
// contained: it is recorded in Result.Errors and the remaining detectors'
// candidates are still returned.
func (r *Runner) Run(ctx context.Context, deps Providers, snap settings.Snapshot) Result {
	res := Result{PerDetector: make(map[string]int)}

	type slot struct {
		candidates []contracts.IntentCandidate
		err        error
		ran        bool
	}
	slots := make([]slot, len(r.detectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range r.detectors {
		if !snap.DetectorOn(d.ToggleKey()) {
			r.logger.Debug("detector disabled", "detector", d.Name())
			continue
		}
		slots[i].ran = true
		g.Go(func() error {
			dctx := gctx
			if snap.DetectorTimeout > 0 {
				var cancel context.CancelFunc
				dctx, cancel = context.WithTimeout(gctx, snap.DetectorTimeout)
				defer cancel()
			}
			candidates, err := d.Detect(dctx, deps, snap)
			if err != nil {
				slots[i].err = &contracts.DetectorError{Detector: d.Name(), Err: err}
				return nil // contained, never cancels siblings
			}
			slots[i].candidates = candidates
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures live in slots

	for i, d := range r.detectors {
		if !slots[i].ran {
			continue
		}
		if slots[i].err != nil {
			r.logger.Warn("detector failed", "detector", d.Name(), "error", slots[i].err)
			res.Errors = append(res.Errors, slots[i].err)
			continue
		}
		res.PerDetector[d.Name()] = len(slots[i].candidates)
		res.Candidates = append(res.Candidates, slots[i].candidates...)
	}
	return res
}

func candidateContext(targetID string, extra map[string]any) map[string]any {
	c := map[string]any{contracts.ContextKeyTargetID: targetID}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func scoreBand(score float64) contracts.Priority {
	switch {
	case score >= 70:
		return contracts.PriorityMedium
	case score >= 50:
		return contracts.PriorityHigh
	default:
		return contracts.PriorityCritical
	}
}

func expiryBand(days int) contracts.Priority {
	switch {
	case days <= 7:
		return contracts.PriorityCritical
	case days <= 14:
		return contracts.PriorityHigh
	default:
		return contracts.PriorityMedium
	}
}

func riskBand(level string) contracts.Priority {
	if level == "critical" {
		return contracts.PriorityCritical
	}
	return contracts.PriorityHigh
}
