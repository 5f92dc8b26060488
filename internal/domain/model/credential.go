package model

import "time"

// Credential holds a service credential key-value pair. Service identifies
// the external system ("panel"), and Key identifies the credential type
// within that service ("base_url", "token").
type Credential struct {
	ID        int64
	Service   string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Panel credential identifiers.
const (
	CredentialServicePanel = "panel"
	CredentialKeyBaseURL   = "base_url"
	CredentialKeyToken     = "token"
)
