package model

import "time"

// Account is a credential-bearing IPTV line hosted on the remote panel and
// mirrored locally for renewal scheduling. Username is the identity key shared
// with the panel.
type Account struct {
	ID              int64
	RemoteID        string
	Username        string
	Password        string
	MaxActivePoints int
	Expiration      time.Time
	Note            string

	// Local-only scheduling metadata. Never overwritten by reconciliation.
	AutoRenewalEnabled    bool
	RenewalAdvanceMinutes *int
	RenewalCount          int
	LastRenewalAt         *time.Time
	RenewalSuspendedAt    *time.Time
	RenewalSuspendReason  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdvanceMinutes returns the per-account renewal advance override, or
// fallback when the account has none.
func (a Account) AdvanceMinutes(fallback int) int {
	if a.RenewalAdvanceMinutes != nil {
		return *a.RenewalAdvanceMinutes
	}
	return fallback
}

// RenewalWindowStart returns the instant from which the account is eligible
// for automatic renewal.
func (a Account) RenewalWindowStart(fallbackMinutes int) time.Time {
	return a.Expiration.Add(-time.Duration(a.AdvanceMinutes(fallbackMinutes)) * time.Minute)
}

// IsRenewalSuspended reports whether a permanent remote error has blocked
// automatic renewal until an operator resumes it.
func (a Account) IsRenewalSuspended() bool {
	return a.RenewalSuspendedAt != nil
}

// MirrorsRemote reports whether every remote-owned field already matches the
// given remote account.
func (a Account) MirrorsRemote(r RemoteAccount) bool {
	return a.RemoteID == r.ID &&
		a.Password == r.Password &&
		a.MaxActivePoints == r.MaxActivePoints &&
		a.Expiration.Equal(r.Expiration)
}
