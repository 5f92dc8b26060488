package driven

import (
	"errors"
	"fmt"
)

// RemoteErrorKind classifies failures returned by a PanelClient.
type RemoteErrorKind int

const (
	// RemoteTransient covers timeouts, 5xx, 429 and connection failures. The
	// next natural scan or reconcile cycle retries.
	RemoteTransient RemoteErrorKind = iota
	// RemotePermanent covers 4xx answers such as an unknown account. The
	// account is excluded from automatic renewal until an operator intervenes.
	RemotePermanent
	// RemoteUnauthorized covers rejected panel credentials. It affects every
	// call, so callers abort the current run.
	RemoteUnauthorized
)

// String returns a short label for the kind.
func (k RemoteErrorKind) String() string {
	switch k {
	case RemoteTransient:
		return "transient"
	case RemotePermanent:
		return "permanent"
	case RemoteUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// RemoteError is returned by PanelClient implementations for every failed
// call.
type RemoteError struct {
	Kind       RemoteErrorKind
	Op         string
	StatusCode int // 0 when no HTTP response was received.
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("panel %s (%s, status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("panel %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsTransientRemote reports whether err is a transient remote failure.
// Errors that are not RemoteErrors, such as a context deadline raised by the
// caller, are treated as transient.
func IsTransientRemote(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind == RemoteTransient
	}
	return err != nil
}

// IsPermanentRemote reports whether err is a permanent per-account failure.
func IsPermanentRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == RemotePermanent
}

// IsUnauthorizedRemote reports whether the panel rejected the credentials.
func IsUnauthorizedRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == RemoteUnauthorized
}

// LocalStoreError wraps a persistence failure for a single entity.
type LocalStoreError struct {
	Op     string
	Entity string
	Err    error
}

func (e *LocalStoreError) Error() string {
	return fmt.Sprintf("local store %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *LocalStoreError) Unwrap() error { return e.Err }
