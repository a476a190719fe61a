package radiosession

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure per the taxonomy the session engine
// reports. It is a kind, not a distinct Go type per error, so callers can
// switch on a single field.
type Kind string

const (
	KindTransportError       Kind = "transport-error"
	KindSessionClosed        Kind = "session-closed"
	KindHandleTimeout        Kind = "handle-timeout"
	KindCommandRejected      Kind = "command-rejected"
	KindCommandTimeout       Kind = "command-timeout"
	KindStateUnavailable     Kind = "state-unavailable"
	KindDiscoveryUnavailable Kind = "discovery-unavailable"
	KindParseError           Kind = "parse-error"
)

// Error is the single error type the session engine returns. Fields beyond
// Kind are populated only where the taxonomy in spec §7 calls for them.
type Error struct {
	Kind Kind

	// command-rejected
	Code        uint32
	Description string
	Raw         string

	// state-unavailable
	Entity string
	ID     string

	// parse-error
	Attribute string
	Value     string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCommandRejected:
		return fmt.Sprintf("command-rejected: code=0x%x %s (%s)", e.Code, e.Description, e.Raw)
	case KindStateUnavailable:
		return fmt.Sprintf("state-unavailable: %s %s", e.Entity, e.ID)
	case KindParseError:
		return fmt.Sprintf("parse-error: %s=%q: %v", e.Attribute, e.Value, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, KindX) via the sentinel-by-kind values below.
func (e *Error) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return string(s.kind) }

// sentinel returns a value usable with errors.Is(err, sentinel(KindX)).
func sentinel(k Kind) error { return &kindSentinel{kind: k} }

var (
	ErrTransportClosed      = sentinel(KindTransportError)
	ErrSessionClosed        = sentinel(KindSessionClosed)
	ErrHandleTimeout        = sentinel(KindHandleTimeout)
	ErrCommandTimeout       = sentinel(KindCommandTimeout)
	ErrDiscoveryUnavailable = sentinel(KindDiscoveryUnavailable)
)

func newError(k Kind, err error) *Error { return &Error{Kind: k, Err: err} }

func stateUnavailable(entity, id string) *Error {
	return &Error{Kind: KindStateUnavailable, Entity: entity, ID: id}
}

func commandRejected(code uint32, description, raw string) *Error {
	return &Error{Kind: KindCommandRejected, Code: code, Description: description, Raw: raw}
}
