package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// PanelClientFactory builds a panel client for the given credentials.
type PanelClientFactory func(baseURL, token string) (driven.PanelClient, error)

// PanelCredentialService stores panel credentials encrypted and hot-swaps
// the client held by the provider.
type PanelCredentialService struct {
	store    driven.CredentialStore
	provider *PanelClientProvider
	factory  PanelClientFactory
}

// NewPanelCredentialService creates a new PanelCredentialService.
func NewPanelCredentialService(store driven.CredentialStore, provider *PanelClientProvider, factory PanelClientFactory) *PanelCredentialService {
	return &PanelCredentialService{store: store, provider: provider, factory: factory}
}

// Resolve returns the credentials to use at startup. Stored credentials take
// priority over the given fallbacks (usually from the environment). A missing
// encryption key is not an error; the fallbacks are used.
func (s *PanelCredentialService) Resolve(ctx context.Context, fallbackURL, fallbackToken string) (baseURL, token string) {
	baseURL, token = fallbackURL, fallbackToken

	stored, err := s.store.GetAll(ctx, model.CredentialServicePanel)
	if err != nil {
		slog.Warn("stored panel credentials unavailable, using environment", "error", err)
		return baseURL, token
	}
	if v := stored[model.CredentialKeyBaseURL]; v != "" {
		baseURL = v
	}
	if v := stored[model.CredentialKeyToken]; v != "" {
		token = v
	}
	return baseURL, token
}

// Connect builds a client from the given credentials and installs it in the
// provider without persisting anything.
func (s *PanelCredentialService) Connect(baseURL, token string) error {
	client, err := s.factory(baseURL, token)
	if err != nil {
		return fmt.Errorf("creating panel client: %w", err)
	}
	s.provider.Replace(client)
	return nil
}

// Update validates the credentials by building a client, persists them
// encrypted, then swaps the live client.
func (s *PanelCredentialService) Update(ctx context.Context, baseURL, token string) error {
	client, err := s.factory(baseURL, token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	if err := s.store.Set(ctx, model.CredentialServicePanel, model.CredentialKeyBaseURL, baseURL); err != nil {
		return fmt.Errorf("storing panel base URL: %w", err)
	}
	if err := s.store.Set(ctx, model.CredentialServicePanel, model.CredentialKeyToken, token); err != nil {
		return fmt.Errorf("storing panel token: %w", err)
	}

	s.provider.Replace(client)
	slog.Info("panel credentials updated", "base_url", baseURL)
	return nil
}
