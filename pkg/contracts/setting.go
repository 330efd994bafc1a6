package contracts

// SettingType describes how a setting value is edited and validated.
type SettingType string

const (
	SettingToggle SettingType = "toggle"
	SettingSlider SettingType = "slider"
	SettingSelect SettingType = "select"
	SettingNumber SettingType = "number"
)

// SettingCategory groups settings in the operator UI.
type SettingCategory string

const (
	CategoryAutonomy    SettingCategory = "autonomy"
	CategoryGuardrails  SettingCategory = "guardrails"
	CategoryScheduling  SettingCategory = "scheduling"
	CategoryMarketplace SettingCategory = "marketplace"
)

// Setting is a single named control. Values are stored as strings and
// parsed by the settings snapshot; numeric types carry bounds that the
// update path enforces.
type Setting struct {
	Key          string          `json:"key"`
	Value        string          `json:"value"`
	Type         SettingType     `json:"type"`
	Category     SettingCategory `json:"category"`
	MinValue     *float64        `json:"min_value,omitempty"`
	MaxValue     *float64        `json:"max_value,omitempty"`
	DefaultValue string          `json:"default_value"`
	Description  string          `json:"description,omitempty"`
}

// AutonomyLevel is the global approval-automation policy.
type AutonomyLevel string

const (
	AutonomyAdvisory       AutonomyLevel = "advisory"
	AutonomySemiAutonomous AutonomyLevel = "semi_autonomous"
	AutonomyFullAutonomous AutonomyLevel = "full_autonomous"
)
