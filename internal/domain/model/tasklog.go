package model

import "time"

// TaskType identifies the automation task that produced a ledger entry.
type TaskType string

const (
	TaskTypeRenewal     TaskType = "renewal"
	TaskTypeRenewalTick TaskType = "renewal_tick"
	TaskTypeReconcile   TaskType = "reconcile"
)

// TaskStatus is the state recorded by a ledger entry.
type TaskStatus string

const (
	TaskStatusStarted TaskStatus = "started"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailure TaskStatus = "failure"
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal reports whether the status closes an attempt.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailure || s == TaskStatusSkipped
}

// AutomationTaskLog is one immutable entry in the automation ledger. A
// renewal attempt is a started entry plus one terminal entry sharing the
// same CorrelationID.
type AutomationTaskLog struct {
	ID               int64
	CorrelationID    string
	TaskType         TaskType
	Status           TaskStatus
	Message          string
	Error            string
	RelatedAccountID *int64
	Expiration       *time.Time
	CreatedAt        time.Time
}
