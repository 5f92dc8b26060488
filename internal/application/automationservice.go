package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// ErrInvalidSettings is wrapped by every rejected configuration or
// per-account renewal update.
var ErrInvalidSettings = errors.New("invalid renewal settings")

// Ledger listing bounds.
const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// MaxNoteLength caps an account note, in characters.
const MaxNoteLength = 4000

// AutomationService exposes the operator-facing automation settings, the
// ledger and per-account renewal controls.
type AutomationService struct {
	configs  driven.AutomationConfigStore
	accounts driven.AccountStore
	ledger   driven.AutomationLedger
}

// NewAutomationService creates a new AutomationService.
func NewAutomationService(configs driven.AutomationConfigStore, accounts driven.AccountStore, ledger driven.AutomationLedger) *AutomationService {
	return &AutomationService{configs: configs, accounts: accounts, ledger: ledger}
}

// GetConfig returns the current automation configuration.
func (s *AutomationService) GetConfig(ctx context.Context) (model.AutomationConfig, error) {
	return s.configs.GetAutomationConfig(ctx)
}

// UpdateConfig validates and stores a configuration update. The advance time
// must be positive and strictly shorter than the renewal period, and no
// per-account override may reach the new period. The scheduler picks the
// change up on its next tick.
func (s *AutomationService) UpdateConfig(ctx context.Context, update model.AutomationConfigUpdate) (model.AutomationConfig, error) {
	if update.RenewalAdvanceTime < 1 {
		return model.AutomationConfig{}, fmt.Errorf("%w: renewal advance time must be at least 1 minute", ErrInvalidSettings)
	}
	if update.RenewalAdvanceTime >= update.RenewalPeriodMinutes {
		return model.AutomationConfig{}, fmt.Errorf("%w: renewal advance time (%d) must be shorter than the renewal period (%d)",
			ErrInvalidSettings, update.RenewalAdvanceTime, update.RenewalPeriodMinutes)
	}

	accounts, err := s.accounts.ListLocalAccounts(ctx)
	if err != nil {
		return model.AutomationConfig{}, fmt.Errorf("listing accounts: %w", err)
	}
	for _, a := range accounts {
		if a.RenewalAdvanceMinutes != nil && *a.RenewalAdvanceMinutes >= update.RenewalPeriodMinutes {
			return model.AutomationConfig{}, fmt.Errorf("%w: account %s advance override (%d) must be shorter than the renewal period (%d)",
				ErrInvalidSettings, a.Username, *a.RenewalAdvanceMinutes, update.RenewalPeriodMinutes)
		}
	}

	return s.configs.UpdateAutomationConfig(ctx, update)
}

// ListLogs returns the newest ledger entries. limit is clamped to
// [1, MaxLogLimit]; zero or negative selects DefaultLogLimit.
func (s *AutomationService) ListLogs(ctx context.Context, limit int) ([]model.AutomationTaskLog, error) {
	switch {
	case limit <= 0:
		limit = DefaultLogLimit
	case limit > MaxLogLimit:
		limit = MaxLogLimit
	}

	entries, err := s.ledger.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.AutomationTaskLog{}
	}
	return entries, nil
}

// ListAccounts returns every local account.
func (s *AutomationService) ListAccounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := s.accounts.ListLocalAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	return accounts, nil
}

// GetAccount returns one local account or driven.ErrAccountNotFound.
func (s *AutomationService) GetAccount(ctx context.Context, id int64) (model.Account, error) {
	return s.accounts.GetLocalAccount(ctx, id)
}

// SetAccountRenewal updates the local-only renewal settings of an account.
// A non-nil advance override must be positive and shorter than the configured
// renewal period.
func (s *AutomationService) SetAccountRenewal(ctx context.Context, id int64, autoRenewal bool, advanceMinutes *int) (model.Account, error) {
	if advanceMinutes != nil {
		if *advanceMinutes < 1 {
			return model.Account{}, fmt.Errorf("%w: advance override must be at least 1 minute", ErrInvalidSettings)
		}

		cfg, err := s.configs.GetAutomationConfig(ctx)
		if err != nil {
			return model.Account{}, fmt.Errorf("loading automation config: %w", err)
		}
		if *advanceMinutes >= cfg.RenewalPeriodMinutes {
			return model.Account{}, fmt.Errorf("%w: advance override (%d) must be shorter than the renewal period (%d)",
				ErrInvalidSettings, *advanceMinutes, cfg.RenewalPeriodMinutes)
		}
	}

	if err := s.accounts.SetRenewalSettings(ctx, id, autoRenewal, advanceMinutes); err != nil {
		return model.Account{}, err
	}
	return s.accounts.GetLocalAccount(ctx, id)
}

// ResumeRenewal clears a renewal suspension so the scheduler considers the
// account again on its next tick.
func (s *AutomationService) ResumeRenewal(ctx context.Context, id int64) (model.Account, error) {
	if err := s.accounts.ResumeRenewal(ctx, id); err != nil {
		return model.Account{}, err
	}
	return s.accounts.GetLocalAccount(ctx, id)
}

// SetAccountNote replaces the operator's markdown note on an account.
// Surrounding whitespace is trimmed and an empty note clears it.
func (s *AutomationService) SetAccountNote(ctx context.Context, id int64, note string) (model.Account, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return model.Account{}, fmt.Errorf("%w: note exceeds %d characters", ErrInvalidSettings, MaxNoteLength)
	}

	if err := s.accounts.SetNote(ctx, id, note); err != nil {
		return model.Account{}, err
	}
	return s.accounts.GetLocalAccount(ctx, id)
}
