package application

import (
	"context"
	"errors"
	"sync"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// ErrPanelNotConfigured is wrapped in the RemoteError returned while no panel
// credentials are available.
var ErrPanelNotConfigured = errors.New("panel credentials not configured")

// Compile-time interface satisfaction check.
var _ driven.PanelClient = (*PanelClientProvider)(nil)

// PanelClientProvider enables runtime hot-swap of the panel client.
// It holds a mutex-protected reference to the current driven.PanelClient,
// allowing credential updates to take effect without restarting the
// application. It is itself a PanelClient that delegates to the current
// client, so services are wired once at startup.
type PanelClientProvider struct {
	mu     sync.RWMutex
	client driven.PanelClient
}

// NewPanelClientProvider creates a new provider with the given initial client.
// client may be nil if no credentials are available at startup.
func NewPanelClientProvider(client driven.PanelClient) *PanelClientProvider {
	return &PanelClientProvider{client: client}
}

// Get returns the current panel client, or nil.
func (p *PanelClientProvider) Get() driven.PanelClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Replace swaps the current client. The next call through the provider uses
// the new client; calls already in flight finish on the old one.
func (p *PanelClientProvider) Replace(client driven.PanelClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// HasClient returns true if a non-nil client is currently held.
func (p *PanelClientProvider) HasClient() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

func (p *PanelClientProvider) current(op string) (driven.PanelClient, error) {
	client := p.Get()
	if client == nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteUnauthorized, Op: op, Err: ErrPanelNotConfigured}
	}
	return client, nil
}

// ListRemoteAccounts delegates to the current client.
func (p *PanelClientProvider) ListRemoteAccounts(ctx context.Context) ([]model.RemoteAccount, error) {
	client, err := p.current("list accounts")
	if err != nil {
		return nil, err
	}
	return client.ListRemoteAccounts(ctx)
}

// RenewAccount delegates to the current client.
func (p *PanelClientProvider) RenewAccount(ctx context.Context, remoteID string) (model.RenewalOutcome, error) {
	client, err := p.current("renew account")
	if err != nil {
		return model.RenewalOutcome{}, err
	}
	return client.RenewAccount(ctx, remoteID)
}

// CreateRemoteAccount delegates to the current client.
func (p *PanelClientProvider) CreateRemoteAccount(ctx context.Context, in model.RemoteAccountInput) (model.RemoteAccount, error) {
	client, err := p.current("create account")
	if err != nil {
		return model.RemoteAccount{}, err
	}
	return client.CreateRemoteAccount(ctx, in)
}

// UpdateRemoteAccount delegates to the current client.
func (p *PanelClientProvider) UpdateRemoteAccount(ctx context.Context, remoteID string, in model.RemoteAccountInput) (model.RemoteAccount, error) {
	client, err := p.current("update account")
	if err != nil {
		return model.RemoteAccount{}, err
	}
	return client.UpdateRemoteAccount(ctx, remoteID, in)
}

// DeleteRemoteAccount delegates to the current client.
func (p *PanelClientProvider) DeleteRemoteAccount(ctx context.Context, remoteID string) error {
	client, err := p.current("delete account")
	if err != nil {
		return err
	}
	return client.DeleteRemoteAccount(ctx, remoteID)
}
