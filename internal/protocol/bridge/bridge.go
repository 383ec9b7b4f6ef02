// Package bridge implements the protocol client against a JSON/HTTP gateway
// process that runs the messaging protocol on our behalf.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/protocol"
)

const (
	maxResponseBody = 4 << 20
	closeTimeout    = 5 * time.Second
)

// Config holds gateway connection settings
type Config struct {
	GatewayURL      string
	Timeout         time.Duration
	PollWait        time.Duration
	MaxPollFailures int
	// PollRetryDelay is the pause after a failed poll, multiplied by the failure count
	PollRetryDelay time.Duration
}

// GatewayError is a non-2xx answer from the gateway
type GatewayError struct {
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Message)
}

// Dialer creates gateway-backed clients
type Dialer struct {
	cfg    Config
	client *http.Client
}

// NewDialer creates a dialer; zero config values fall back to defaults
func NewDialer(cfg Config) *Dialer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 25 * time.Second
	}
	if cfg.MaxPollFailures < 1 {
		cfg.MaxPollFailures = 3
	}
	if cfg.PollRetryDelay <= 0 {
		cfg.PollRetryDelay = 500 * time.Millisecond
	}
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")

	// Per-request deadlines come from contexts; long polls outlive any fixed client timeout
	return &Dialer{cfg: cfg, client: &http.Client{}}
}

// Dial builds a client without touching the network
func (d *Dialer) Dial(auth protocol.AuthState, opts protocol.Options) (protocol.Client, error) {
	if d.cfg.GatewayURL == "" {
		return nil, fmt.Errorf("gateway url is not configured")
	}
	if auth.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	return &Client{
		dialer: d,
		auth:   auth,
		opts:   opts,
		done:   make(chan struct{}),
	}, nil
}

// Client is one gateway session
type Client struct {
	protocol.Hub

	dialer *Dialer
	auth   protocol.AuthState
	opts   protocol.Options

	mu         sync.Mutex
	registered bool
	userID     string
	opened     bool
	cancel     context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

type openRequest struct {
	SessionID        string `json:"session_id"`
	Credentials      []byte `json:"credentials,omitempty"`
	Browser          string `json:"browser,omitempty"`
	ConnectTimeoutMS int64  `json:"connect_timeout_ms,omitempty"`
	MarkOnline       bool   `json:"mark_online"`
}

type openResponse struct {
	Registered bool `json:"registered"`
}

type pairingCodeRequest struct {
	Phone string `json:"phone"`
}

type pairingCodeResponse struct {
	Code string `json:"code"`
}

type messageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type wireEvent struct {
	Seq         uint64 `json:"seq"`
	Type        string `json:"type"`
	Connection  string `json:"connection,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	Reason      string `json:"reason,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Credentials []byte `json:"credentials,omitempty"`
}

type eventsResponse struct {
	Events []wireEvent `json:"events"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Open creates the gateway session and starts delivering events
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return fmt.Errorf("session %s already opened", c.auth.SessionID)
	}
	c.opened = true
	c.mu.Unlock()

	req := openRequest{
		SessionID:        c.auth.SessionID,
		Credentials:      c.auth.Credentials,
		Browser:          c.opts.Browser,
		ConnectTimeoutMS: c.opts.ConnectTimeout.Milliseconds(),
		MarkOnline:       c.opts.MarkOnline,
	}
	var resp openResponse
	if err := c.call(ctx, http.MethodPost, "/sessions", req, &resp, c.dialer.cfg.Timeout); err != nil {
		c.mu.Lock()
		c.opened = false
		c.mu.Unlock()
		return fmt.Errorf("failed to open session: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.registered = resp.Registered
	c.cancel = cancel
	c.mu.Unlock()

	select {
	case <-c.done:
		cancel()
		return fmt.Errorf("session %s closed while opening", c.auth.SessionID)
	default:
	}

	go c.poll(pollCtx)
	return nil
}

// Registered reports whether the gateway already considers the device paired
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// UserID returns the identity reported with the last open event
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// RequestPairingCode asks the gateway for a pairing code for phone
func (c *Client) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	var resp pairingCodeResponse
	if err := c.call(ctx, http.MethodPost, c.sessionPath("pairing-code"), pairingCodeRequest{Phone: phone}, &resp, c.dialer.cfg.Timeout); err != nil {
		return "", fmt.Errorf("pairing code request failed: %w", err)
	}
	if resp.Code == "" {
		return "", fmt.Errorf("pairing code request failed: empty code")
	}
	return resp.Code, nil
}

// SendMessage sends a text message to a user id
func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	if err := c.call(ctx, http.MethodPost, c.sessionPath("messages"), messageRequest{To: to, Text: text}, nil, c.dialer.cfg.Timeout); err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	return nil
}

// Close stops event delivery and ends the gateway session. Only the first call does anything.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.Hub.Close()

		c.mu.Lock()
		cancel := c.cancel
		opened := c.opened
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if !opened {
			return
		}

		ctx, done := context.WithTimeout(context.Background(), closeTimeout)
		defer done()
		err = c.call(ctx, http.MethodDelete, c.sessionPath(""), nil, nil, closeTimeout)
		if err != nil && !protocol.Suppress(err) {
			logging.ErrorContext("gateway_close", err, map[string]interface{}{
				"session_id": c.auth.SessionID,
			})
		}
	})
	return err
}

// poll long-polls the gateway for events until the session closes. After
// MaxPollFailures consecutive failures it reports the connection as lost.
func (c *Client) poll(ctx context.Context) {
	var after uint64
	failures := 0

	for {
		events, err := c.fetch(ctx, after)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			if protocol.Suppress(err) {
				logging.Debug("Gateway poll failed", map[string]interface{}{
					"session_id": c.auth.SessionID,
					"failures":   failures,
					"error":      err.Error(),
				})
			} else {
				logging.ErrorContext("gateway_poll", err, map[string]interface{}{
					"session_id": c.auth.SessionID,
				})
			}

			if failures >= c.dialer.cfg.MaxPollFailures {
				c.Publish(protocol.Event{
					Seq:            after + 1,
					Type:           protocol.EventConnection,
					Connection:     protocol.ConnectionClose,
					LastDisconnect: &protocol.CloseError{Code: protocol.CodeTimedOut, Reason: "gateway unreachable"},
				})
				return
			}

			timer := time.NewTimer(time.Duration(failures) * c.dialer.cfg.PollRetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		failures = 0

		for _, we := range events {
			if we.Seq <= after {
				continue
			}
			after = we.Seq

			ev, ok := c.convert(we)
			if !ok {
				continue
			}
			if !c.Publish(ev) {
				return
			}
			if ev.Type == protocol.EventConnection && ev.Connection == protocol.ConnectionClose {
				return
			}
		}
	}
}

func (c *Client) convert(we wireEvent) (protocol.Event, bool) {
	ev := protocol.Event{Seq: we.Seq}

	switch we.Type {
	case "creds.update":
		ev.Type = protocol.EventCredentials
		ev.Credentials = we.Credentials
		return ev, true

	case "connection.update":
		ev.Type = protocol.EventConnection
		ev.Connection = protocol.Connection(we.Connection)
		switch ev.Connection {
		case protocol.ConnectionOpen:
			ev.UserID = we.UserID
			c.mu.Lock()
			if we.UserID != "" {
				c.userID = we.UserID
			}
			c.registered = true
			c.mu.Unlock()
		case protocol.ConnectionClose:
			ev.LastDisconnect = &protocol.CloseError{Code: we.StatusCode, Reason: we.Reason}
		}
		return ev, true

	default:
		logging.Debug("Ignoring gateway event", map[string]interface{}{
			"session_id": c.auth.SessionID,
			"type":       we.Type,
		})
		return ev, false
	}
}

func (c *Client) fetch(ctx context.Context, after uint64) ([]wireEvent, error) {
	wait := c.dialer.cfg.PollWait
	query := url.Values{}
	query.Set("after", strconv.FormatUint(after, 10))
	query.Set("wait", wait.String())

	var resp eventsResponse
	if err := c.call(ctx, http.MethodGet, c.sessionPath("events")+"?"+query.Encode(), nil, &resp, wait+c.dialer.cfg.Timeout); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) sessionPath(suffix string) string {
	p := "/sessions/" + url.PathEscape(c.auth.SessionID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// call performs one JSON request against the gateway
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	headers := map[string]string{"Accept": "application/json"}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
		headers["Content-Type"] = "application/json"
	}

	target := c.dialer.cfg.GatewayURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	logging.HTTPRequest(method, target, headers)

	start := time.Now()
	resp, err := c.dialer.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	// Bodies carry codes and credentials, so only the status is logged
	logging.HTTPResponse(resp.StatusCode, "", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		if json.Unmarshal(data, &e) != nil || e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &GatewayError{Status: resp.StatusCode, Message: e.Message}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
