package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// ErrAccountNotFound is returned when no local account matches the given id.
var ErrAccountNotFound = errors.New("account not found")

// ErrRenewalConflict is returned by RecordRenewal when the account's
// renewal_count changed since it was read.
var ErrRenewalConflict = errors.New("renewal state changed concurrently")

// AccountStore defines the driven port for locally persisted accounts.
// Writers touch disjoint column groups: UpdateMirroredFields only writes
// remote-owned columns and RecordRenewal only writes renewal columns, so the
// reconciler and the scheduler can update the same row without a shared lock.
type AccountStore interface {
	ListLocalAccounts(ctx context.Context) ([]model.Account, error)
	// GetLocalAccount returns ErrAccountNotFound when id does not exist.
	GetLocalAccount(ctx context.Context, id int64) (model.Account, error)
	// UpsertLocalAccount inserts an account keyed by username and returns the
	// stored row. On conflict only the mirrored columns are overwritten.
	UpsertLocalAccount(ctx context.Context, account model.Account) (model.Account, error)
	// UpdateMirroredFields writes remote id, password, capacity and expiration.
	UpdateMirroredFields(ctx context.Context, id int64, remote model.RemoteAccount) error
	// RecordRenewal stores a successful renewal. expectedCount is the
	// renewal_count the caller observed; the expiration never moves backwards.
	RecordRenewal(ctx context.Context, id int64, expectedCount int, newExpiration, renewedAt time.Time) error
	SetRenewalSettings(ctx context.Context, id int64, autoRenewal bool, advanceMinutes *int) error
	// SetNote replaces the operator note. It never touches scheduling columns.
	SetNote(ctx context.Context, id int64, note string) error
	SuspendRenewal(ctx context.Context, id int64, at time.Time, reason string) error
	ResumeRenewal(ctx context.Context, id int64) error
	DeleteLocalAccount(ctx context.Context, id int64) error
}
