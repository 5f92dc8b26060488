package model

import "time"

// DivergenceReport summarizes identity mismatches between the local store and
// the remote panel. It is computed on demand and never persisted.
type DivergenceReport struct {
	HasDivergences  bool
	Count           int
	MissingLocally  []string
	MissingRemotely []string
	LocalCount      int
	RemoteCount     int
	CheckedAt       time.Time
}
