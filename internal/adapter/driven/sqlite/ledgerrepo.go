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
var _ driven.AutomationLedger = (*LedgerRepo)(nil)

// LedgerRepo is the SQLite implementation of the AutomationLedger port
// interface. A trigger in the schema rejects UPDATEs on the table.
type LedgerRepo struct {
	db  *DB
	now func() time.Time
}

// NewLedgerRepo creates a new LedgerRepo backed by the given DB.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db, now: time.Now}
}

const ledgerColumns = `
	id, correlation_id, task_type, status, message, error, related_account_id, expiration, created_at
`

// Append inserts an entry and returns it with its id and creation time set.
// A zero CreatedAt is stamped with the current time.
func (r *LedgerRepo) Append(ctx context.Context, entry model.AutomationTaskLog) (model.AutomationTaskLog, error) {
	const query = `
		INSERT INTO automation_task_logs (
			correlation_id, task_type, status, message, error, related_account_id, expiration, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	var accountID any
	if entry.RelatedAccountID != nil {
		accountID = *entry.RelatedAccountID
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		entry.CorrelationID, string(entry.TaskType), string(entry.Status), entry.Message, entry.Error,
		accountID, formatNullableTime(entry.Expiration), formatTime(entry.CreatedAt),
	)
	if err != nil {
		return model.AutomationTaskLog{}, fmt.Errorf("append %s/%s ledger entry: %w", entry.TaskType, entry.Status, err)
	}

	entry.ID, err = result.LastInsertId()
	if err != nil {
		return model.AutomationTaskLog{}, fmt.Errorf("ledger entry id: %w", err)
	}

	return entry, nil
}

// FindLatestForExpiration returns the newest matching entry, or nil, nil.
func (r *LedgerRepo) FindLatestForExpiration(ctx context.Context, accountID int64, taskType model.TaskType, expiration time.Time, status model.TaskStatus) (*model.AutomationTaskLog, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM automation_task_logs
		WHERE related_account_id = ? AND task_type = ? AND expiration = ? AND status = ?
		ORDER BY id DESC
		LIMIT 1
	`

	entry, err := scanLedgerEntry(r.db.Reader.QueryRowContext(ctx, query,
		accountID, string(taskType), formatTime(expiration), string(status),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger entry for account %d: %w", accountID, err)
	}

	return entry, nil
}

// ListRecent returns up to limit entries ordered newest first.
func (r *LedgerRepo) ListRecent(ctx context.Context, limit int) ([]model.AutomationTaskLog, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM automation_task_logs
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AutomationTaskLog
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, nil
}

func scanLedgerEntry(s scanner) (*model.AutomationTaskLog, error) {
	var e model.AutomationTaskLog
	var taskType, status, createdAt string
	var accountID sql.NullInt64
	var expiration sql.NullString

	err := s.Scan(
		&e.ID, &e.CorrelationID, &taskType, &status, &e.Message, &e.Error,
		&accountID, &expiration, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	e.TaskType = model.TaskType(taskType)
	e.Status = model.TaskStatus(status)
	if accountID.Valid {
		id := accountID.Int64
		e.RelatedAccountID = &id
	}

	if e.Expiration, err = parseNullableTime(expiration); err != nil {
		return nil, fmt.Errorf("parse expiration: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &e, nil
}
