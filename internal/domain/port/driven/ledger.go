package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// AutomationLedger defines the driven port for the append-only automation
// task log. Entries are never updated or deleted by the core.
type AutomationLedger interface {
	Append(ctx context.Context, entry model.AutomationTaskLog) (model.AutomationTaskLog, error)
	// FindLatestForExpiration returns the newest entry for the account, task
	// type, expiration and status, or nil when none exists.
	FindLatestForExpiration(ctx context.Context, accountID int64, taskType model.TaskType, expiration time.Time, status model.TaskStatus) (*model.AutomationTaskLog, error)
	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.AutomationTaskLog, error)
}
