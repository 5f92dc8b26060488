// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// ErrTickInProgress is returned by Tick when another tick is still running.
var ErrTickInProgress = errors.New("renewal tick already in progress")

const (
	msgExpiredBeforeRenewal = "expired before renewal"
	msgAutomationDisabled   = "automation disabled"
	msgAccountOptedOut      = "auto-renewal disabled for account"
	msgRenewalSuspended     = "renewal suspended"
)

// ledgerWriteTimeout bounds ledger and store writes made on a context that
// no longer observes the caller's cancellation.
const ledgerWriteTimeout = 10 * time.Second

// accountOutcome classifies what a tick did with one account.
type accountOutcome int

const (
	outcomeNone accountOutcome = iota
	outcomeRenewed
	outcomeFailed
	outcomeSkipped
	outcomeExpired
)

// RenewalScheduler renews accounts entering their renewal window, at most once
// per expiration, and records every attempt in the automation ledger.
type RenewalScheduler struct {
	accounts      driven.AccountStore
	configs       driven.AutomationConfigStore
	ledger        driven.AutomationLedger
	panel         driven.PanelClient
	interval      time.Duration
	remoteTimeout time.Duration
	now           func() time.Time
	running       atomic.Bool
}

// NewRenewalScheduler creates a new RenewalScheduler with all required dependencies.
func NewRenewalScheduler(
	accounts driven.AccountStore,
	configs driven.AutomationConfigStore,
	ledger driven.AutomationLedger,
	panel driven.PanelClient,
	interval time.Duration,
	remoteTimeout time.Duration,
) *RenewalScheduler {
	return &RenewalScheduler{
		accounts:      accounts,
		configs:       configs,
		ledger:        ledger,
		panel:         panel,
		interval:      interval,
		remoteTimeout: remoteTimeout,
		now:           time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *RenewalScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Running reports whether a tick is currently in progress.
func (s *RenewalScheduler) Running() bool {
	return s.running.Load()
}

// Start runs an immediate tick, then ticks on the configured interval. Start
// blocks until the context is canceled and the current tick has returned.
func (s *RenewalScheduler) Start(ctx context.Context) {
	s.runTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("renewal scheduler stopped")
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// DrainTimeout bounds how long Start may keep running after its context is
// canceled: one remote renewal call plus four bookkeeping writes (started
// entry, local update, terminal entry, last-run stamp).
func (s *RenewalScheduler) DrainTimeout() time.Duration {
	return s.remoteTimeout + 4*ledgerWriteTimeout
}

func (s *RenewalScheduler) runTick(ctx context.Context) {
	start := time.Now()

	result, err := s.Tick(ctx)
	if errors.Is(err, ErrTickInProgress) {
		slog.Debug("renewal tick skipped, previous tick still running")
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("renewal tick failed", "error", err)
	}

	slog.Info("renewal tick complete",
		"scanned", result.Scanned,
		"eligible", result.Eligible,
		"renewed", result.Renewed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"expired", result.Expired,
		"errors", len(result.Errors),
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// Tick performs one scan over all local accounts. Ticks never overlap: a call
// made while another tick runs returns ErrTickInProgress immediately. The
// returned error is non-nil only when the scan itself could not run or was cut
// short; per-account failures are reported through TickResult.
func (s *RenewalScheduler) Tick(ctx context.Context) (model.TickResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return model.TickResult{}, ErrTickInProgress
	}
	defer s.running.Store(false)

	now := s.now()
	defer s.touchLastRun(ctx)

	var result model.TickResult

	cfg, err := s.configs.GetAutomationConfig(ctx)
	if err != nil {
		err = fmt.Errorf("loading automation config: %w", err)
		s.recordTickFailure(ctx, "load automation config", err, &result)
		return result, err
	}

	accounts, err := s.accounts.ListLocalAccounts(ctx)
	if err != nil {
		err = fmt.Errorf("listing local accounts: %w", err)
		s.recordTickFailure(ctx, "list local accounts", err, &result)
		return result, err
	}

	result.Scanned = len(accounts)

	for _, account := range accounts {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		outcome, err := s.processAccount(ctx, cfg, account, now, &result)
		switch outcome {
		case outcomeRenewed:
			result.Renewed++
		case outcomeFailed:
			result.Failed++
		case outcomeSkipped:
			result.Skipped++
		case outcomeExpired:
			result.Expired++
		}

		if driven.IsUnauthorizedRemote(err) {
			err = fmt.Errorf("panel rejected credentials: %w", err)
			s.recordTickFailure(ctx, "renewal tick aborted", err, &result)
			return result, err
		}
	}

	return result, nil
}

// processAccount evaluates one account against the renewal window and acts on
// it. The returned error is the remote error of a failed renewal, if any.
func (s *RenewalScheduler) processAccount(ctx context.Context, cfg model.AutomationConfig, account model.Account, now time.Time, result *model.TickResult) (accountOutcome, error) {
	windowStart := account.RenewalWindowStart(cfg.RenewalAdvanceTime)
	if now.Before(windowStart) {
		return outcomeNone, nil
	}

	renewed, err := s.hasEntry(ctx, account, model.TaskStatusSuccess)
	if err != nil {
		s.recordError(result, account, "check renewal ledger", err)
		return outcomeFailed, nil
	}
	if renewed {
		return outcomeNone, nil
	}

	if !now.Before(account.Expiration) {
		return s.handleExpired(ctx, cfg, account, result), nil
	}

	// One renewal per cycle: a renewal made inside the current window means
	// the panel has not yet reported the extended expiration.
	if account.LastRenewalAt != nil && !account.LastRenewalAt.Before(windowStart) {
		return outcomeNone, nil
	}

	switch {
	case !cfg.IsEnabled:
		return s.skipOnce(ctx, account, msgAutomationDisabled, result), nil
	case !account.AutoRenewalEnabled:
		return s.skipOnce(ctx, account, msgAccountOptedOut, result), nil
	case account.IsRenewalSuspended():
		return s.skipOnce(ctx, account, msgRenewalSuspended+": "+account.RenewalSuspendReason, result), nil
	}

	result.Eligible++
	return s.renew(ctx, account, result)
}

// renew performs one renewal attempt. The attempt runs on a context detached
// from ctx so that shutdown never leaves a started entry without its terminal
// entry.
func (s *RenewalScheduler) renew(ctx context.Context, account model.Account, result *model.TickResult) (accountOutcome, error) {
	detached := context.WithoutCancel(ctx)
	correlationID := uuid.NewString()
	expiration := account.Expiration

	if _, err := s.appendEntry(detached, model.AutomationTaskLog{
		CorrelationID:    correlationID,
		TaskType:         model.TaskTypeRenewal,
		Status:           model.TaskStatusStarted,
		Message:          fmt.Sprintf("renewing %s", account.Username),
		RelatedAccountID: &account.ID,
		Expiration:       &expiration,
	}); err != nil {
		s.recordError(result, account, "append started entry", err)
		return outcomeFailed, nil
	}

	outcome, err := s.callRenew(detached, account)
	if err != nil {
		slog.Error("renewal failed",
			"account", account.Username,
			"correlation_id", correlationID,
			"error", err,
		)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", account.Username, err))

		if _, lerr := s.appendEntry(detached, model.AutomationTaskLog{
			CorrelationID:    correlationID,
			TaskType:         model.TaskTypeRenewal,
			Status:           model.TaskStatusFailure,
			Message:          fmt.Sprintf("renewal of %s failed", account.Username),
			Error:            err.Error(),
			RelatedAccountID: &account.ID,
			Expiration:       &expiration,
		}); lerr != nil {
			s.recordError(result, account, "append failure entry", lerr)
		}

		if driven.IsPermanentRemote(err) {
			s.suspend(detached, account, err, result)
		}
		return outcomeFailed, err
	}

	if outcome.NewExpiration.Before(expiration) {
		slog.Warn("panel returned an earlier expiration, keeping the current one",
			"account", account.Username,
			"current", expiration,
			"returned", outcome.NewExpiration,
		)
	}

	entry := model.AutomationTaskLog{
		CorrelationID:    correlationID,
		TaskType:         model.TaskTypeRenewal,
		Status:           model.TaskStatusSuccess,
		Message:          fmt.Sprintf("renewed %s until %s", account.Username, outcome.NewExpiration.UTC().Format(time.RFC3339)),
		RelatedAccountID: &account.ID,
		Expiration:       &expiration,
	}

	// The panel has already extended the line. The success entry is written
	// even if the local update fails so the next tick cannot renew again.
	storeCtx, cancel := context.WithTimeout(detached, ledgerWriteTimeout)
	err = s.accounts.RecordRenewal(storeCtx, account.ID, account.RenewalCount, outcome.NewExpiration, s.now())
	cancel()
	if err != nil {
		entry.Error = fmt.Sprintf("local update failed: %v", err)
		s.recordError(result, account, "record renewal", err)
	}

	if _, err := s.appendEntry(detached, entry); err != nil {
		s.recordError(result, account, "append success entry", err)
	}

	slog.Info("account renewed",
		"account", account.Username,
		"correlation_id", correlationID,
		"expiration", outcome.NewExpiration,
	)
	return outcomeRenewed, nil
}

func (s *RenewalScheduler) callRenew(ctx context.Context, account model.Account) (model.RenewalOutcome, error) {
	if account.RemoteID == "" {
		return model.RenewalOutcome{}, &driven.RemoteError{
			Kind: driven.RemotePermanent,
			Op:   "renew account",
			Err:  errors.New("account has no panel id"),
		}
	}

	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	outcome, err := s.panel.RenewAccount(rctx, account.RemoteID)
	if err != nil {
		return model.RenewalOutcome{}, err
	}
	return outcome, nil
}

func (s *RenewalScheduler) suspend(ctx context.Context, account model.Account, cause error, result *model.TickResult) {
	wctx, cancel := context.WithTimeout(ctx, ledgerWriteTimeout)
	defer cancel()

	if err := s.accounts.SuspendRenewal(wctx, account.ID, s.now(), cause.Error()); err != nil {
		s.recordError(result, account, "suspend renewal", err)
		return
	}
	slog.Warn("automatic renewal suspended", "account", account.Username, "reason", cause)
}

// skipOnce records a skipped entry for the account's current expiration
// unless a skipped or success entry already exists for it.
func (s *RenewalScheduler) skipOnce(ctx context.Context, account model.Account, reason string, result *model.TickResult) accountOutcome {
	skipped, err := s.hasEntry(ctx, account, model.TaskStatusSkipped)
	if err != nil {
		s.recordError(result, account, "check skipped entries", err)
		return outcomeSkipped
	}
	if skipped {
		return outcomeSkipped
	}

	expiration := account.Expiration
	if _, err := s.appendEntry(ctx, model.AutomationTaskLog{
		CorrelationID:    uuid.NewString(),
		TaskType:         model.TaskTypeRenewal,
		Status:           model.TaskStatusSkipped,
		Message:          reason,
		RelatedAccountID: &account.ID,
		Expiration:       &expiration,
	}); err != nil {
		s.recordError(result, account, "append skipped entry", err)
	}
	return outcomeSkipped
}

// handleExpired records one failure entry per expiration for accounts the
// scheduler was expected to renew but did not.
func (s *RenewalScheduler) handleExpired(ctx context.Context, cfg model.AutomationConfig, account model.Account, result *model.TickResult) accountOutcome {
	if !cfg.IsEnabled || !account.AutoRenewalEnabled {
		return outcomeNone
	}

	latest, err := s.ledger.FindLatestForExpiration(ctx, account.ID, model.TaskTypeRenewal, account.Expiration, model.TaskStatusFailure)
	if err != nil {
		s.recordError(result, account, "check failure entries", err)
		return outcomeExpired
	}
	if latest != nil && latest.Message == msgExpiredBeforeRenewal {
		return outcomeExpired
	}

	expiration := account.Expiration
	if _, err := s.appendEntry(ctx, model.AutomationTaskLog{
		CorrelationID:    uuid.NewString(),
		TaskType:         model.TaskTypeRenewal,
		Status:           model.TaskStatusFailure,
		Message:          msgExpiredBeforeRenewal,
		RelatedAccountID: &account.ID,
		Expiration:       &expiration,
	}); err != nil {
		s.recordError(result, account, "append expired entry", err)
	}

	slog.Warn("account expired before renewal", "account", account.Username, "expiration", account.Expiration)
	return outcomeExpired
}

func (s *RenewalScheduler) hasEntry(ctx context.Context, account model.Account, status model.TaskStatus) (bool, error) {
	entry, err := s.ledger.FindLatestForExpiration(ctx, account.ID, model.TaskTypeRenewal, account.Expiration, status)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (s *RenewalScheduler) appendEntry(ctx context.Context, entry model.AutomationTaskLog) (model.AutomationTaskLog, error) {
	wctx, cancel := context.WithTimeout(ctx, ledgerWriteTimeout)
	defer cancel()

	entry.CreatedAt = s.now()
	return s.ledger.Append(wctx, entry)
}

func (s *RenewalScheduler) recordTickFailure(ctx context.Context, message string, cause error, result *model.TickResult) {
	result.Errors = append(result.Errors, cause.Error())

	if _, err := s.appendEntry(context.WithoutCancel(ctx), model.AutomationTaskLog{
		CorrelationID: uuid.NewString(),
		TaskType:      model.TaskTypeRenewalTick,
		Status:        model.TaskStatusFailure,
		Message:       message,
		Error:         cause.Error(),
	}); err != nil {
		slog.Error("append tick failure entry failed", "error", err)
	}
}

func (s *RenewalScheduler) recordError(result *model.TickResult, account model.Account, op string, err error) {
	slog.Error("renewal bookkeeping failed", "account", account.Username, "op", op, "error", err)
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %s: %v", account.Username, op, err))
}

func (s *RenewalScheduler) touchLastRun(ctx context.Context) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	if err := s.configs.TouchLastRun(wctx, s.now()); err != nil {
		slog.Error("update automation last run failed", "error", err)
	}
}
