package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// AutomationConfigStore defines the driven port for the singleton automation
// configuration row.
type AutomationConfigStore interface {
	GetAutomationConfig(ctx context.Context) (model.AutomationConfig, error)
	// UpdateAutomationConfig replaces the operator-editable fields and bumps
	// the version.
	UpdateAutomationConfig(ctx context.Context, update model.AutomationConfigUpdate) (model.AutomationConfig, error)
	// TouchLastRun records the end of a scheduler tick without bumping the
	// version.
	TouchLastRun(ctx context.Context, at time.Time) error
}
