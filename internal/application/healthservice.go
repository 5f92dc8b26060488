package application

import (
	"context"
	"time"

	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// HealthSummary is the operational view reported by the health endpoint.
type HealthSummary struct {
	Status            string
	StoreOK           bool
	PanelConfigured   bool
	AutomationEnabled bool
	TickRunning       bool
	LastRunAt         *time.Time
}

// tickReporter is satisfied by RenewalScheduler.
type tickReporter interface {
	Running() bool
}

// HealthService assembles the health summary from the automation config,
// the panel client provider and the scheduler. It depends only on port
// interfaces and in-process services.
type HealthService struct {
	configs   driven.AutomationConfigStore
	provider  *PanelClientProvider
	scheduler tickReporter
}

// NewHealthService creates a new HealthService with the required dependencies.
func NewHealthService(configs driven.AutomationConfigStore, provider *PanelClientProvider, scheduler tickReporter) *HealthService {
	return &HealthService{
		configs:   configs,
		provider:  provider,
		scheduler: scheduler,
	}
}

// Check reports "ok" when the datastore answers, "degraded" when it does not
// or when no panel credentials are configured.
func (s *HealthService) Check(ctx context.Context) HealthSummary {
	summary := HealthSummary{
		Status:          "ok",
		PanelConfigured: s.provider.HasClient(),
		TickRunning:     s.scheduler.Running(),
	}

	cfg, err := s.configs.GetAutomationConfig(ctx)
	if err != nil {
		summary.Status = "degraded"
		return summary
	}
	summary.StoreOK = true
	summary.AutomationEnabled = cfg.IsEnabled
	summary.LastRunAt = cfg.LastRunAt

	if !summary.PanelConfigured {
		summary.Status = "degraded"
	}
	return summary
}
