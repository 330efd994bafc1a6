package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/complyon/autonomy/pkg/settings"
)

// AutonomyProfile is a named preset of setting values applied in one step,
// so operators can switch the orchestrator between postures without editing
// settings one by one. Values go through the same bounds-checked write path
// as individual edits.
type AutonomyProfile struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Settings    map[string]string `yaml:"settings" json:"settings"`
}

// LoadProfile loads an autonomy profile by name: a built-in preset, or
// profile_<name>.yaml from the profiles directory. File profiles shadow
// built-ins of the same name.
func LoadProfile(profilesDir, name string) (*AutonomyProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if p, ok := builtinProfiles[name]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var profile AutonomyProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return &profile, nil
}

// Apply writes every profile value through the settings service. A value
// the bounds check rejects aborts the application so a profile never half
// applies silently.
func (p *AutonomyProfile) Apply(ctx context.Context, svc *settings.Service) error {
	for key, value := range p.Settings {
		if err := svc.Update(ctx, key, value); err != nil {
			return fmt.Errorf("profile %q: setting %s: %w", p.Name, key, err)
		}
	}
	return nil
}

// Built-in postures. Conservative keeps everything behind a human,
// aggressive trusts high-confidence detections in non-production scopes.
var builtinProfiles = map[string]*AutonomyProfile{
	"conservative": {
		Name:        "conservative",
		Description: "Advisory only. Every action waits for a human.",
		Settings: map[string]string{
			settings.KeyAutonomyLevel:              "advisory",
			settings.KeyMaxDailyTokenBudget:        "20",
			settings.KeyMaxConcurrentActions:       "1",
			settings.KeyApprovalRequiredProduction: "true",
		},
	},
	"balanced": {
		Name:        "balanced",
		Description: "Semi-autonomous with the default limits.",
		Settings: map[string]string{
			settings.KeyAutonomyLevel:              "semi_autonomous",
			settings.KeyMaxDailyTokenBudget:        "50",
			settings.KeyMaxConcurrentActions:       "3",
			settings.KeyApprovalRequiredProduction: "true",
		},
	},
	"aggressive": {
		Name:        "aggressive",
		Description: "Fully autonomous outside production.",
		Settings: map[string]string{
			settings.KeyAutonomyLevel:              "full_autonomous",
			settings.KeyMaxDailyTokenBudget:        "200",
			settings.KeyMaxConcurrentActions:       "10",
			settings.KeyApprovalRequiredProduction: "true",
		},
	},
}
