package model

import "time"

// Defaults applied when the automation_config row is first seeded.
const (
	DefaultRenewalAdvanceMinutes = 60
	DefaultRenewalPeriodMinutes  = 30 * 24 * 60
)

// AutomationConfig is the per-deployment singleton controlling automatic
// renewal. It is re-read on every scheduler tick.
type AutomationConfig struct {
	IsEnabled            bool
	RenewalAdvanceTime   int // minutes
	RenewalPeriodMinutes int
	DefaultAutoRenewal   bool
	LastRunAt            *time.Time
	Version              int64
	UpdatedAt            time.Time
}

// DefaultAutomationConfig returns the configuration used before any operator
// update has been made.
func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		IsEnabled:            false,
		RenewalAdvanceTime:   DefaultRenewalAdvanceMinutes,
		RenewalPeriodMinutes: DefaultRenewalPeriodMinutes,
		DefaultAutoRenewal:   true,
	}
}

// AutomationConfigUpdate carries the operator-editable fields of
// AutomationConfig.
type AutomationConfigUpdate struct {
	IsEnabled            bool
	RenewalAdvanceTime   int
	RenewalPeriodMinutes int
	DefaultAutoRenewal   bool
}
