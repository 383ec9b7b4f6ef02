// Package protocoltest provides a scriptable in-memory protocol client.
package protocoltest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parnexcodes/pairlink/internal/protocol"
)

// ErrClosed is returned by calls on a closed client
var ErrClosed = errors.New("client closed")

// Message is one SendMessage call
type Message struct {
	To   string
	Text string
}

// Dialer hands out fake clients and remembers every one of them
type Dialer struct {
	// Code is returned by RequestPairingCode; CodeErr wins when set
	Code    string
	CodeErr error
	OpenErr error
	DialErr error
	// SendErr makes every SendMessage fail
	SendErr error

	mu      sync.Mutex
	clients []*Client
	dialed  chan struct{}
}

// NewDialer returns a dialer whose clients issue code
func NewDialer(code string) *Dialer {
	return &Dialer{Code: code, dialed: make(chan struct{}, 128)}
}

// Dial creates a new fake client
func (d *Dialer) Dial(auth protocol.AuthState, opts protocol.Options) (protocol.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}

	c := &Client{
		Auth:       auth,
		Opts:       opts,
		registered: len(auth.Credentials) > 0,
		code:       d.Code,
		codeErr:    d.CodeErr,
		openErr:    d.OpenErr,
		sendErr:    d.SendErr,
		messages:   make(chan Message, 16),
	}
	d.clients = append(d.clients, c)
	select {
	case d.dialed <- struct{}{}:
	default:
	}
	return c, nil
}

// Clients returns every client dialed so far, oldest first
func (d *Dialer) Clients() []*Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Client, len(d.clients))
	copy(out, d.clients)
	return out
}

// WaitClient blocks until the n-th client (1-based) has been dialed and subscribed to
func (d *Dialer) WaitClient(n int, timeout time.Duration) (*Client, bool) {
	deadline := time.After(timeout)
	for {
		clients := d.Clients()
		if len(clients) >= n && clients[n-1].Subscribed() {
			return clients[n-1], true
		}
		select {
		case <-d.dialed:
		case <-deadline:
			return nil, false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Client is a fake protocol connection driven by the test
type Client struct {
	protocol.Hub

	Auth protocol.AuthState
	Opts protocol.Options

	mu              sync.Mutex
	registered      bool
	code            string
	codeErr         error
	openErr         error
	sendErr         error
	userID          string
	opened          bool
	closed          bool
	subscribed      bool
	pairingRequests []string
	sent            []Message
	messages        chan Message
}

// Subscribe records that the client has a listener, then subscribes
func (c *Client) Subscribe() (<-chan protocol.Event, func()) {
	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()
	return c.Hub.Subscribe()
}

// Subscribed reports whether Subscribe has been called
func (c *Client) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.openErr != nil {
		return c.openErr
	}
	c.opened = true
	return nil
}

func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

func (c *Client) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	c.pairingRequests = append(c.pairingRequests, phone)
	if c.codeErr != nil {
		return "", c.codeErr
	}
	return c.code, nil
}

func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sendErr != nil {
		c.mu.Unlock()
		return c.sendErr
	}
	msg := Message{To: to, Text: text}
	c.sent = append(c.sent, msg)
	c.mu.Unlock()

	select {
	case c.messages <- msg:
	default:
	}
	return nil
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Hub.Close()
	return nil
}

// Closed reports whether Close was called
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Opened reports whether Open succeeded
func (c *Client) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// PairingRequests returns the numbers pairing codes were requested for
func (c *Client) PairingRequests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pairingRequests...)
}

// Sent returns the messages sent so far
func (c *Client) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// Emit publishes ev to subscribers; it is a no-op after Close
func (c *Client) Emit(ev protocol.Event) bool {
	return c.Publish(ev)
}

// EmitOpen reports the connection as open for userID
func (c *Client) EmitOpen(userID string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.userID = userID
	c.registered = true
	c.mu.Unlock()
	return c.Emit(protocol.Event{Type: protocol.EventConnection, Connection: protocol.ConnectionOpen, UserID: userID})
}

// EmitClose reports the connection as closed with code
func (c *Client) EmitClose(code int) bool {
	return c.Emit(protocol.Event{
		Type:           protocol.EventConnection,
		Connection:     protocol.ConnectionClose,
		LastDisconnect: &protocol.CloseError{Code: code},
	})
}

// EmitCredentials pushes a credential update
func (c *Client) EmitCredentials(data []byte) bool {
	return c.Emit(protocol.Event{Type: protocol.EventCredentials, Credentials: data})
}

// WaitMessages blocks until n messages have been sent or timeout elapses
func (c *Client) WaitMessages(n int, timeout time.Duration) []Message {
	deadline := time.After(timeout)
	for {
		if sent := c.Sent(); len(sent) >= n {
			return sent
		}
		select {
		case <-c.messages:
		case <-deadline:
			return c.Sent()
		}
	}
}
