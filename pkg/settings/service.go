package settings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/complyon/autonomy/pkg/contracts"
	"github.com/complyon/autonomy/pkg/store"
)

// Service is the bounds-checked write path for settings. All operator
// edits, including profile application, go through Update.
type Service struct {
	store store.SettingStore
}

func NewService(st store.SettingStore) *Service {
	return &Service{store: st}
}

// Update validates value against the setting's type and bounds, then
// persists it. Numeric values outside [MinValue, MaxValue] fail with a
// ValidationError; unknown keys fail with a NotFoundError.
func (s *Service) Update(ctx context.Context, key, value string) error {
	setting, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return err
	}
	if err := validate(setting, value); err != nil {
		return err
	}
	return s.store.UpdateSettingValue(ctx, key, value)
}

// Get returns a single setting by key.
func (s *Service) Get(ctx context.Context, key string) (*contracts.Setting, error) {
	return s.store.GetSetting(ctx, key)
}

// List returns all settings, optionally filtered by category.
func (s *Service) List(ctx context.Context, category contracts.SettingCategory) ([]*contracts.Setting, error) {
	return s.store.ListSettings(ctx, category)
}

func validate(setting *contracts.Setting, value string) error {
	switch setting.Type {
	case contracts.SettingToggle:
		if _, err := strconv.ParseBool(value); err != nil {
			return &contracts.ValidationError{Field: setting.Key, Reason: fmt.Sprintf("%q is not a boolean", value)}
		}
	case contracts.SettingNumber, contracts.SettingSlider:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &contracts.ValidationError{Field: setting.Key, Reason: fmt.Sprintf("%q is not numeric", value)}
		}
		if setting.MinValue != nil && v < *setting.MinValue {
			return &contracts.ValidationError{
				Field:  setting.Key,
				Reason: fmt.Sprintf("%v is below minimum %v", v, *setting.MinValue),
			}
		}
		if setting.MaxValue != nil && v > *setting.MaxValue {
			return &contracts.ValidationError{
				Field:  setting.Key,
				Reason: fmt.Sprintf("%v is above maximum %v", v, *setting.MaxValue),
			}
		}
	case contracts.SettingSelect:
		// Select options are validated by the consumer (e.g. autonomy level
		// parse falls back to advisory); free-form selects like the scope
		// expression are validated at evaluation time.
	}
	return nil
}
