package model

import "time"

// ReconcileResult reports what a reconciliation run changed locally. Errors
// holds one message per failed account or a single message when the run was
// aborted.
type ReconcileResult struct {
	Created   int
	Updated   int
	Deleted   int
	Errors    []string
	StartedAt time.Time
	Duration  time.Duration
}

// TickResult reports the outcome of one renewal scheduler scan. Expired
// counts accounts that passed their expiration without a renewal.
type TickResult struct {
	Scanned  int
	Eligible int
	Renewed  int
	Failed   int
	Skipped  int
	Expired  int
	Errors   []string
}
