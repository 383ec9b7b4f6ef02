// Package protocol defines the contract with the external messaging protocol
// client: dialing a connection, the events it pushes, and how close reasons
// are classified.
package protocol

import (
	"context"
	"time"
)

// EventType tells connection updates apart from credential updates
type EventType int

const (
	EventConnection EventType = iota
	EventCredentials
)

func (t EventType) String() string {
	switch t {
	case EventConnection:
		return "connection.update"
	case EventCredentials:
		return "creds.update"
	default:
		return "unknown"
	}
}

// Connection is the connection field of a connection update
type Connection string

const (
	ConnectionConnecting Connection = "connecting"
	ConnectionOpen       Connection = "open"
	ConnectionClose      Connection = "close"
)

// Event is one item of the client's event stream
type Event struct {
	Seq  uint64
	Type EventType

	// Connection updates
	Connection Connection
	// LastDisconnect is set on close
	LastDisconnect *CloseError
	// UserID is the authenticated identity, known once the connection opens
	UserID string

	// Credential updates carry the full bundle to persist
	Credentials []byte
}

// AuthState is what a connection starts from
type AuthState struct {
	SessionID string
	// Credentials is the last persisted bundle, nil for a fresh pairing
	Credentials []byte
}

// Options are the connect options passed to the protocol client
type Options struct {
	Browser        string
	ConnectTimeout time.Duration
	MarkOnline     bool
}

// Dialer constructs protocol connections. Dial performs no network I/O so
// that callers can subscribe before anything is delivered.
type Dialer interface {
	Dial(auth AuthState, opts Options) (Client, error)
}

// Client is one protocol connection
type Client interface {
	// Subscribe returns a channel of events in delivery order and a function
	// that detaches it. After the returned function is called, or after
	// Close, nothing more is delivered on the channel.
	Subscribe() (<-chan Event, func())

	// Open starts the connection
	Open(ctx context.Context) error

	// Registered reports whether the credentials already belong to a paired device
	Registered() bool

	RequestPairingCode(ctx context.Context, phone string) (string, error)
	SendMessage(ctx context.Context, to, text string) error

	// UserID is the authenticated identity, empty until the connection opens
	UserID() string

	Close() error
}
