package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// PANELSYNC_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set PANELSYNC_SECRET_KEY")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Set stores or replaces the credential for service/key.
	Set(ctx context.Context, service, key, plaintext string) error
	// Get returns ("", nil) if no credential exists for service/key.
	Get(ctx context.Context, service, key string) (string, error)
	// GetAll returns every key for the service mapped to its plaintext value.
	GetAll(ctx context.Context, service string) (map[string]string, error)
	List(ctx context.Context) ([]model.Credential, error)
	Delete(ctx context.Context, service, key string) error
}
