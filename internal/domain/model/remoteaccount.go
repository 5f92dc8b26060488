package model

import "time"

// RemoteAccount is an account as reported by the remote panel.
type RemoteAccount struct {
	ID              string
	Username        string
	Password        string
	MaxActivePoints int
	Expiration      time.Time
}

// RemoteAccountInput holds the fields used to provision or edit an account
// on the panel.
type RemoteAccountInput struct {
	Username        string
	Password        string
	MaxActivePoints int
	Expiration      time.Time
}

// RenewalOutcome is the panel's answer to a renewal request. The panel owns
// billing, so the new expiration is always taken from here.
type RenewalOutcome struct {
	NewExpiration time.Time
}
