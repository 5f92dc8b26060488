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
var _ driven.AutomationConfigStore = (*AutomationConfigRepo)(nil)

// AutomationConfigRepo is the SQLite implementation of the
// AutomationConfigStore port interface. The configuration lives in a single
// row with id 1, seeded by the migrations.
type AutomationConfigRepo struct {
	db  *DB
	now func() time.Time
}

// NewAutomationConfigRepo creates a new AutomationConfigRepo backed by the given DB.
func NewAutomationConfigRepo(db *DB) *AutomationConfigRepo {
	return &AutomationConfigRepo{db: db, now: time.Now}
}

// GetAutomationConfig returns the current configuration row. Falls back to
// model.DefaultAutomationConfig() if the row is missing.
func (r *AutomationConfigRepo) GetAutomationConfig(ctx context.Context) (model.AutomationConfig, error) {
	return r.get(ctx, r.db.Reader)
}

func (r *AutomationConfigRepo) get(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) (model.AutomationConfig, error) {
	const query = `
		SELECT is_enabled, renewal_advance_time, renewal_period_minutes, default_auto_renewal,
		       last_run_at, version, updated_at
		FROM automation_config
		WHERE id = 1
	`

	var cfg model.AutomationConfig
	var enabled, defaultAuto int
	var lastRunAt sql.NullString
	var updatedAt string

	err := q.QueryRowContext(ctx, query).Scan(
		&enabled, &cfg.RenewalAdvanceTime, &cfg.RenewalPeriodMinutes, &defaultAuto,
		&lastRunAt, &cfg.Version, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultAutomationConfig(), nil
	}
	if err != nil {
		return model.AutomationConfig{}, fmt.Errorf("get automation config: %w", err)
	}

	cfg.IsEnabled = enabled != 0
	cfg.DefaultAutoRenewal = defaultAuto != 0

	if cfg.LastRunAt, err = parseNullableTime(lastRunAt); err != nil {
		return model.AutomationConfig{}, fmt.Errorf("parse last_run_at: %w", err)
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.AutomationConfig{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return cfg, nil
}

// UpdateAutomationConfig replaces the operator-editable fields, bumps the
// version and returns the stored row. last_run_at is preserved.
func (r *AutomationConfigRepo) UpdateAutomationConfig(ctx context.Context, update model.AutomationConfigUpdate) (model.AutomationConfig, error) {
	const query = `
		INSERT INTO automation_config (
			id, is_enabled, renewal_advance_time, renewal_period_minutes, default_auto_renewal,
			version, updated_at
		) VALUES (1, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			renewal_advance_time = excluded.renewal_advance_time,
			renewal_period_minutes = excluded.renewal_period_minutes,
			default_auto_renewal = excluded.default_auto_renewal,
			version = automation_config.version + 1,
			updated_at = excluded.updated_at
	`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.AutomationConfig{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, query,
		boolToInt(update.IsEnabled), update.RenewalAdvanceTime, update.RenewalPeriodMinutes,
		boolToInt(update.DefaultAutoRenewal), formatTime(r.now()),
	)
	if err != nil {
		return model.AutomationConfig{}, fmt.Errorf("update automation config: %w", err)
	}

	cfg, err := r.get(ctx, tx)
	if err != nil {
		return model.AutomationConfig{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.AutomationConfig{}, fmt.Errorf("commit automation config: %w", err)
	}

	return cfg, nil
}

// TouchLastRun sets last_run_at without changing the version.
func (r *AutomationConfigRepo) TouchLastRun(ctx context.Context, at time.Time) error {
	const query = `UPDATE automation_config SET last_run_at = ? WHERE id = 1`

	if _, err := r.db.Writer.ExecContext(ctx, query, formatTime(at)); err != nil {
		return fmt.Errorf("touch automation last run: %w", err)
	}
	return nil
}
