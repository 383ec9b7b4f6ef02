package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrSessionEnded is sent to a waiting caller when the session stops before any code was issued
var ErrSessionEnded = errors.New("session ended before a pairing code was issued")

// PairingCodeError means the protocol refused or failed the pairing code request
type PairingCodeError struct {
	Err error
}

func (e *PairingCodeError) Error() string {
	return fmt.Sprintf("pairing code request failed: %v", e.Err)
}

func (e *PairingCodeError) Unwrap() error {
	return e.Err
}

// NotificationError is a failed message to the user. It is logged, never returned.
type NotificationError struct {
	Kind string
	Err  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s notification failed: %v", e.Kind, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Reply is the single answer a pairing caller gets
type Reply struct {
	Code string
	Err  error
}

// Responder delivers at most one Reply per top-level session, however many
// times the lifecycle restarts.
type Responder struct {
	once sync.Once
	ch   chan Reply
}

// NewResponder creates an unanswered responder
func NewResponder() *Responder {
	return &Responder{ch: make(chan Reply, 1)}
}

// Code answers with a pairing code. It reports false if an answer was already sent.
func (r *Responder) Code(code string) bool {
	return r.send(Reply{Code: code})
}

// Fail answers with an error. It reports false if an answer was already sent.
func (r *Responder) Fail(err error) bool {
	return r.send(Reply{Err: err})
}

func (r *Responder) send(reply Reply) bool {
	sent := false
	r.once.Do(func() {
		r.ch <- reply
		sent = true
	})
	return sent
}

// Done yields the reply once it is available
func (r *Responder) Done() <-chan Reply {
	return r.ch
}

// FormatCode splits a pairing code into groups of size runes joined by sep,
// e.g. "ABCD1234" becomes "ABCD-1234".
func FormatCode(code string, size int, sep string) string {
	if size < 1 || utf8.RuneCountInString(code) <= size {
		return code
	}
	runes := []rune(code)
	groups := make([]string, 0, len(runes)/size+1)
	for len(runes) > 0 {
		n := min(size, len(runes))
		groups = append(groups, string(runes[:n]))
		runes = runes[n:]
	}
	return strings.Join(groups, sep)
}

// SessionMessage is the human readable notification carrying the link
func SessionMessage(url string) string {
	return "*SESSION GENERATED* ✅\n\nUse this link in your ENV file:\n\n" + url + "\n\n_Keep this link private!_"
}

// EnvLine is the machine readable KEY=value notification
func EnvLine(key, url string) string {
	return key + "=" + url
}

// FailureMessage tells the user the export did not go through
func FailureMessage() string {
	return "*SESSION EXPORT FAILED* ❌\n\nYour device was linked but the session could not be uploaded.\n\nPlease request a new code."
}
