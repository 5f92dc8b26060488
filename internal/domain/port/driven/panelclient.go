// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// PanelClient defines the driven port for the third-party IPTV panel.
// Reconciliation and renewal only use ListRemoteAccounts and RenewAccount; the
// write methods exist for provisioning flows outside the automation core.
type PanelClient interface {
	// ListRemoteAccounts returns every account on the panel. An error means the
	// listing is incomplete and must not be used to infer deletions.
	ListRemoteAccounts(ctx context.Context) ([]model.RemoteAccount, error)
	// RenewAccount asks the panel to extend the account identified by the
	// panel-assigned id and returns the expiration the panel computed.
	RenewAccount(ctx context.Context, remoteID string) (model.RenewalOutcome, error)

	CreateRemoteAccount(ctx context.Context, in model.RemoteAccountInput) (model.RemoteAccount, error)
	UpdateRemoteAccount(ctx context.Context, remoteID string, in model.RemoteAccountInput) (model.RemoteAccount, error)
	DeleteRemoteAccount(ctx context.Context, remoteID string) error
}
