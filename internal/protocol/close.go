package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Close codes reported by the protocol in lastDisconnect
const (
	CodeLoggedOut           = 401
	CodeForbidden           = 403
	CodeTimedOut            = 408
	CodeMultideviceMismatch = 411
	CodeConnectionClosed    = 428
	CodeConnectionReplaced  = 440
	CodeBadSession          = 500
	CodeUnavailableService  = 503
	CodeRestartRequired     = 515
)

var codeNames = map[int]string{
	CodeLoggedOut:           "logged_out",
	CodeForbidden:           "forbidden",
	CodeTimedOut:            "timed_out",
	CodeMultideviceMismatch: "multidevice_mismatch",
	CodeConnectionClosed:    "connection_closed",
	CodeConnectionReplaced:  "connection_replaced",
	CodeBadSession:          "bad_session",
	CodeUnavailableService:  "unavailable_service",
	CodeRestartRequired:     "restart_required",
}

// CodeName returns a readable name for a close code
func CodeName(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", code)
}

// CloseKind splits close reasons into those worth reconnecting for and those that are final
type CloseKind int

const (
	CloseTransient CloseKind = iota
	CloseTerminal
)

func (k CloseKind) String() string {
	if k == CloseTerminal {
		return "terminal"
	}
	return "transient"
}

// CloseError is the reason a connection closed
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection closed: %s (%d): %s", CodeName(e.Code), e.Code, e.Reason)
	}
	return fmt.Sprintf("connection closed: %s (%d)", CodeName(e.Code), e.Code)
}

// Kind classifies the close
func (e *CloseError) Kind() CloseKind {
	return Classify(e.Code)
}

// Classify returns CloseTerminal only when the account revoked the session.
// Every other code, including unknown ones, is assumed recoverable.
func Classify(code int) CloseKind {
	switch code {
	case CodeLoggedOut, CodeForbidden:
		return CloseTerminal
	default:
		return CloseTransient
	}
}

// IsTerminal reports whether err carries a terminal close reason
func IsTerminal(err error) bool {
	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Kind() == CloseTerminal
	}
	return false
}

// Suppress reports whether a background fault from the protocol layer should
// be absorbed instead of surfaced. Only terminal closes get through; rate
// limits, stream errors and timeouts are left to the reconnect path.
func Suppress(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return !IsTerminal(err)
}

// NormalizeUserID strips the device suffix from a user id,
// e.g. "15551234567:12@s.whatsapp.net" becomes "15551234567@s.whatsapp.net".
func NormalizeUserID(id string) string {
	user, domain, found := strings.Cut(id, "@")
	if !found {
		return id
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user + "@" + domain
}

// UserIDFor builds the user id for a canonical number
func UserIDFor(number, domain string) string {
	return number + "@" + domain
}
