package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// Reconciler converges the local account store onto the remote panel. The
// panel is authoritative for which accounts exist and for mirrored fields; the
// local store is authoritative for scheduling metadata.
type Reconciler struct {
	accounts      driven.AccountStore
	configs       driven.AutomationConfigStore
	ledger        driven.AutomationLedger
	panel         driven.PanelClient
	remoteTimeout time.Duration
	now           func() time.Time
	mu            sync.Mutex
}

// NewReconciler creates a new Reconciler with all required dependencies.
func NewReconciler(
	accounts driven.AccountStore,
	configs driven.AutomationConfigStore,
	ledger driven.AutomationLedger,
	panel driven.PanelClient,
	remoteTimeout time.Duration,
) *Reconciler {
	return &Reconciler{
		accounts:      accounts,
		configs:       configs,
		ledger:        ledger,
		panel:         panel,
		remoteTimeout: remoteTimeout,
		now:           time.Now,
	}
}

// Reconcile runs one reconciliation pass. Runs are serialized. A failed remote
// or local listing aborts the run before anything is changed and is returned as
// the error; per-account failures are collected in ReconcileResult.Errors.
func (r *Reconciler) Reconcile(ctx context.Context) (model.ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := model.ReconcileResult{StartedAt: r.now()}
	correlationID := uuid.NewString()

	r.appendEntry(ctx, correlationID, model.TaskStatusStarted, "reconciliation started", "")

	rctx, cancel := context.WithTimeout(ctx, r.remoteTimeout)
	remote, err := r.panel.ListRemoteAccounts(rctx)
	cancel()
	if err != nil {
		return r.abort(ctx, correlationID, result, fmt.Errorf("listing remote accounts: %w", err))
	}

	local, err := r.accounts.ListLocalAccounts(ctx)
	if err != nil {
		return r.abort(ctx, correlationID, result, fmt.Errorf("listing local accounts: %w", err))
	}

	cfg, err := r.configs.GetAutomationConfig(ctx)
	if err != nil {
		slog.Warn("automation config unavailable, using defaults for new accounts", "error", err)
		cfg = model.DefaultAutomationConfig()
	}

	remoteByUsername := make(map[string]model.RemoteAccount, len(remote))
	for _, ra := range remote {
		if _, dup := remoteByUsername[ra.Username]; dup {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: duplicate username on panel, keeping the first", ra.Username))
			continue
		}
		remoteByUsername[ra.Username] = ra
	}

	localByUsername := make(map[string]model.Account, len(local))
	for _, la := range local {
		localByUsername[la.Username] = la
	}

	for _, username := range sortedKeys(remoteByUsername) {
		if ctx.Err() != nil {
			return r.abort(ctx, correlationID, result, ctx.Err())
		}

		ra := remoteByUsername[username]
		la, exists := localByUsername[username]

		switch {
		case !exists:
			if _, err := r.accounts.UpsertLocalAccount(ctx, newAccountFromRemote(ra, cfg)); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: create: %v", username, err))
				continue
			}
			result.Created++
		case !la.MirrorsRemote(ra):
			if err := r.accounts.UpdateMirroredFields(ctx, la.ID, ra); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: update: %v", username, err))
				continue
			}
			result.Updated++
		}
	}

	for _, username := range sortedKeys(localByUsername) {
		if _, ok := remoteByUsername[username]; ok {
			continue
		}
		if ctx.Err() != nil {
			return r.abort(ctx, correlationID, result, ctx.Err())
		}

		if err := r.accounts.DeleteLocalAccount(ctx, localByUsername[username].ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: delete: %v", username, err))
			continue
		}
		result.Deleted++
	}

	result.Duration = r.now().Sub(result.StartedAt)

	summary := fmt.Sprintf("created %d, updated %d, deleted %d", result.Created, result.Updated, result.Deleted)
	if len(result.Errors) > 0 {
		r.appendEntry(ctx, correlationID, model.TaskStatusFailure, summary, strings.Join(result.Errors, "; "))
	} else {
		r.appendEntry(ctx, correlationID, model.TaskStatusSuccess, summary, "")
	}

	slog.Info("reconciliation complete",
		"remote", len(remote),
		"local", len(local),
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"errors", len(result.Errors),
		"duration", result.Duration.Round(time.Millisecond),
	)

	return result, nil
}

// StartPeriodic runs Reconcile on the given interval until ctx is canceled.
func (r *Reconciler) StartPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("periodic reconciliation stopped")
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				slog.Error("periodic reconciliation failed", "error", err)
			}
		}
	}
}

func (r *Reconciler) abort(ctx context.Context, correlationID string, result model.ReconcileResult, err error) (model.ReconcileResult, error) {
	result.Errors = append(result.Errors, err.Error())
	result.Duration = r.now().Sub(result.StartedAt)
	r.appendEntry(ctx, correlationID, model.TaskStatusFailure, "reconciliation aborted", err.Error())
	return result, err
}

func (r *Reconciler) appendEntry(ctx context.Context, correlationID string, status model.TaskStatus, message, errText string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	_, err := r.ledger.Append(wctx, model.AutomationTaskLog{
		CorrelationID: correlationID,
		TaskType:      model.TaskTypeReconcile,
		Status:        status,
		Message:       message,
		Error:         errText,
		CreatedAt:     r.now(),
	})
	if err != nil {
		slog.Error("append reconcile ledger entry failed", "status", status, "error", err)
	}
}

// newAccountFromRemote builds the local record for an account that so far
// only exists on the panel. The advance override is left unset so the global
// default applies.
func newAccountFromRemote(ra model.RemoteAccount, cfg model.AutomationConfig) model.Account {
	return model.Account{
		RemoteID:           ra.ID,
		Username:           ra.Username,
		Password:           ra.Password,
		MaxActivePoints:    ra.MaxActivePoints,
		Expiration:         ra.Expiration,
		AutoRenewalEnabled: cfg.DefaultAutoRenewal,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
