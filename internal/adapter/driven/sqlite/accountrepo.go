package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AccountStore = (*AccountRepo)(nil)

// AccountRepo is the SQLite implementation of the AccountStore port interface.
type AccountRepo struct {
	db  *DB
	now func() time.Time
}

// NewAccountRepo creates a new AccountRepo backed by the given DB.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db, now: time.Now}
}

const accountColumns = `
	id, remote_id, username, password, max_active_points, expiration, note,
	auto_renewal_enabled, renewal_advance_minutes, renewal_count, last_renewal_at,
	renewal_suspended_at, renewal_suspend_reason, created_at, updated_at
`

// ListLocalAccounts returns all accounts ordered by expiration, soonest first.
func (r *AccountRepo) ListLocalAccounts(ctx context.Context) ([]model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY expiration, id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// GetLocalAccount returns a single account by local id.
func (r *AccountRepo) GetLocalAccount(ctx context.Context, id int64) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	account, err := scanAccount(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, driven.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}

	return *account, nil
}

// UpsertLocalAccount inserts an account, or on a username conflict overwrites
// only the remote-owned columns of the existing row, then returns the stored
// row. Scheduling state, the note and created_at survive a conflict.
func (r *AccountRepo) UpsertLocalAccount(ctx context.Context, account model.Account) (model.Account, error) {
	const query = `
		INSERT INTO accounts (
			remote_id, username, password, max_active_points, expiration, note,
			auto_renewal_enabled, renewal_advance_minutes, renewal_count, last_renewal_at,
			renewal_suspended_at, renewal_suspend_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			remote_id = excluded.remote_id,
			password = excluded.password,
			max_active_points = excluded.max_active_points,
			expiration = excluded.expiration,
			updated_at = excluded.updated_at
		RETURNING id
	`

	now := r.now().UTC()
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var advance any
	if account.RenewalAdvanceMinutes != nil {
		advance = *account.RenewalAdvanceMinutes
	}

	var id int64
	err := r.db.Writer.QueryRowContext(ctx, query,
		account.RemoteID, account.Username, account.Password, account.MaxActivePoints,
		formatTime(account.Expiration), account.Note,
		boolToInt(account.AutoRenewalEnabled), advance, account.RenewalCount,
		formatNullableTime(account.LastRenewalAt), formatNullableTime(account.RenewalSuspendedAt),
		account.RenewalSuspendReason, formatTime(createdAt), formatTime(now),
	).Scan(&id)
	if err != nil {
		return model.Account{}, &driven.LocalStoreError{Op: "upsert", Entity: "account " + account.Username, Err: err}
	}

	return r.GetLocalAccount(ctx, id)
}

// UpdateMirroredFields overwrites the remote-owned columns of an account.
// Scheduling columns are left untouched.
func (r *AccountRepo) UpdateMirroredFields(ctx context.Context, id int64, remote model.RemoteAccount) error {
	const query = `
		UPDATE accounts SET
			remote_id = ?,
			password = ?,
			max_active_points = ?,
			expiration = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		remote.ID, remote.Password, remote.MaxActivePoints, formatTime(remote.Expiration),
		formatTime(r.now()), id,
	)
	if err != nil {
		return &driven.LocalStoreError{Op: "update mirrored fields", Entity: fmt.Sprintf("account %d", id), Err: err}
	}

	return expectOneRow(result, id)
}

// RecordRenewal stores a successful renewal. The update only applies when
// renewal_count still equals expectedCount, so a renewal is counted once even
// if two writers race. The stored expiration never decreases.
func (r *AccountRepo) RecordRenewal(ctx context.Context, id int64, expectedCount int, newExpiration, renewedAt time.Time) error {
	const query = `
		UPDATE accounts SET
			expiration = MAX(expiration, ?),
			renewal_count = renewal_count + 1,
			last_renewal_at = ?,
			updated_at = ?
		WHERE id = ? AND renewal_count = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		formatTime(newExpiration), formatTime(renewedAt), formatTime(r.now()), id, expectedCount,
	)
	if err != nil {
		return &driven.LocalStoreError{Op: "record renewal", Entity: fmt.Sprintf("account %d", id), Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	if _, err := r.GetLocalAccount(ctx, id); err != nil {
		return err
	}
	return driven.ErrRenewalConflict
}

// SetRenewalSettings updates the local-only auto-renewal flag and advance
// override. A nil advanceMinutes clears the override.
func (r *AccountRepo) SetRenewalSettings(ctx context.Context, id int64, autoRenewal bool, advanceMinutes *int) error {
	const query = `
		UPDATE accounts SET
			auto_renewal_enabled = ?,
			renewal_advance_minutes = ?,
			updated_at = ?
		WHERE id = ?
	`

	var advance any
	if advanceMinutes != nil {
		advance = *advanceMinutes
	}

	result, err := r.db.Writer.ExecContext(ctx, query, boolToInt(autoRenewal), advance, formatTime(r.now()), id)
	if err != nil {
		return &driven.LocalStoreError{Op: "set renewal settings", Entity: fmt.Sprintf("account %d", id), Err: err}
	}

	return expectOneRow(result, id)
}

// SetNote replaces the operator's free-text markdown note.
func (r *AccountRepo) SetNote(ctx context.Context, id int64, note string) error {
	const query = `UPDATE accounts SET note = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, note, formatTime(r.now()), id)
	if err != nil {
		return &driven.LocalStoreError{Op: "set note", Entity: fmt.Sprintf("account %d", id), Err: err}
	}

	return expectOneRow(result, id)
}

// SuspendRenewal blocks automatic renewal for the account until ResumeRenewal
// is called.
func (r *AccountRepo) SuspendRenewal(ctx context.Context, id int64, at time.Time, reason string) error {
	const query = `
		UPDATE accounts SET
			renewal_suspended_at = ?,
			renewal_suspend_reason = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), reason, formatTime(r.now()), id)
	if err != nil {
		return &driven.LocalStoreError{Op: "suspend renewal", Entity: fmt.Sprintf("account %d", id), Err: err}
	}

	return expectOneRow(result, id)
}

// ResumeRenewal clears a renewal suspension.
func (r *AccountRepo) ResumeRenewal(ctx context.Context, id int64) error {
	const query = `
		UPDATE accounts SET
			renewal_suspended_at = NULL,
			renewal_suspend_reason = '',
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(r.now()), id)
	if err != nil {
		return &driven.LocalStoreError{Op: "resume renewal", Entity: fmt.Sprintf("account %d", id), Err: err}
	}

	return expectOneRow(result, id)
}

// DeleteLocalAccount removes an account by local id.
func (r *AccountRepo) DeleteLocalAccount(ctx context.Context, id int64) error {
	const query = `DELETE FROM accounts WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return &driven.LocalStoreError{Op: "delete", Entity: fmt.Sprintf("account %d", id), Err: err}
	}

	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("account %d: %w", id, driven.ErrAccountNotFound)
	}

	return nil
}

func scanAccount(s scanner) (*model.Account, error) {
	var a model.Account
	var expiration, createdAt, updatedAt string
	var autoRenewal int
	var advance sql.NullInt64
	var lastRenewalAt, suspendedAt sql.NullString

	err := s.Scan(
		&a.ID, &a.RemoteID, &a.Username, &a.Password, &a.MaxActivePoints, &expiration, &a.Note,
		&autoRenewal, &advance, &a.RenewalCount, &lastRenewalAt,
		&suspendedAt, &a.RenewalSuspendReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.AutoRenewalEnabled = autoRenewal != 0
	if advance.Valid {
		v := int(advance.Int64)
		a.RenewalAdvanceMinutes = &v
	}

	if a.Expiration, err = parseTime(expiration); err != nil {
		return nil, fmt.Errorf("parse expiration: %w", err)
	}
	if a.LastRenewalAt, err = parseNullableTime(lastRenewalAt); err != nil {
		return nil, fmt.Errorf("parse last_renewal_at: %w", err)
	}
	if a.RenewalSuspendedAt, err = parseNullableTime(suspendedAt); err != nil {
		return nil, fmt.Errorf("parse renewal_suspended_at: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &a, nil
}
