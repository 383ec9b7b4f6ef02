package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/parnexcodes/pairlink/internal/config"
	"github.com/parnexcodes/pairlink/internal/ledger"
	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/metrics"
	"github.com/parnexcodes/pairlink/internal/protocol"
	"github.com/parnexcodes/pairlink/internal/session"
	"github.com/parnexcodes/pairlink/internal/uploader"
)

// Exporter uploads a credential bundle and returns where it went
type Exporter interface {
	UploadCredentials(ctx context.Context, bundlePath string) (*uploader.UploadResult, error)
}

// Settings are the timings and formatting a controller works with
type Settings struct {
	PairingDelay  time.Duration
	OpenGrace     time.Duration
	BundleWait    time.Duration
	TeardownDelay time.Duration

	CodeGroupSize int
	CodeSeparator string

	Browser        string
	ConnectTimeout time.Duration
	UserDomain     string
	EnvKey         string
}

// SettingsFromConfig maps configuration onto controller settings
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		PairingDelay:   cfg.Pairing.PairingDelay,
		OpenGrace:      cfg.Pairing.OpenGrace,
		BundleWait:     cfg.Pairing.BundleWait,
		TeardownDelay:  cfg.Pairing.TeardownDelay,
		CodeGroupSize:  cfg.Pairing.CodeGroupSize,
		CodeSeparator:  cfg.Pairing.CodeSeparator,
		Browser:        cfg.Protocol.Browser,
		ConnectTimeout: cfg.Protocol.Timeout,
		UserDomain:     cfg.Protocol.UserDomain,
		EnvKey:         cfg.Notify.EnvKey,
	}
}

// Deps are the collaborators shared by every controller
type Deps struct {
	Dialer   protocol.Dialer
	Store    *session.Store
	Exporter Exporter
	Metrics  *metrics.Metrics
	Ledger   ledger.Recorder
}

// Session identifies the top-level pairing attempt a controller works for
type Session struct {
	Handle    *session.Handle
	Phone     string
	AttemptID string
	Responder *Responder
}

// Result is what a controller, or a whole supervised session, ended with
type Result struct {
	Outcome  Outcome
	Close    *protocol.CloseError
	Err      error
	Upload   *uploader.UploadResult
	Restarts int
}

// Controller owns one protocol connection for one session. It is single
// threaded: only Run's goroutine touches its state, apart from the event
// pump which persists credentials.
type Controller struct {
	deps     Deps
	settings Settings
	sess     Session
	attempt  int

	client protocol.Client
	closed bool
	snap   Snapshot
	result Result
}

// NewController creates a controller for attempt n (1-based) of a session
func NewController(deps Deps, settings Settings, sess Session, attempt int) *Controller {
	if deps.Ledger == nil {
		deps.Ledger = ledger.Nop{}
	}
	return &Controller{
		deps:     deps,
		settings: settings,
		sess:     sess,
		attempt:  attempt,
	}
}

// Snapshot returns the current state machine state
func (c *Controller) Snapshot() Snapshot {
	return c.snap
}

// Run drives the connection until the state machine closes. Before it
// returns the connection is closed and every subscription detached.
func (c *Controller) Run(ctx context.Context) Result {
	id := c.sess.Handle.ID

	creds, err := c.sess.Handle.LoadCredentials()
	if err != nil {
		logging.ErrorContext("load_credentials", err, map[string]interface{}{"session_id": id})
	}

	client, err := c.deps.Dialer.Dial(protocol.AuthState{SessionID: id, Credentials: creds}, protocol.Options{
		Browser:        c.settings.Browser,
		ConnectTimeout: c.settings.ConnectTimeout,
		MarkOnline:     false,
	})
	if err != nil {
		codeErr := &PairingCodeError{Err: err}
		c.sess.Responder.Fail(codeErr)
		logging.ErrorContext("protocol_dial", err, map[string]interface{}{"session_id": id})
		return Result{Outcome: OutcomeCodeFailed, Err: codeErr}
	}
	c.client = client

	// Subscribe before any network I/O so early events are not missed
	events, unsubscribe := client.Subscribe()
	conn := make(chan protocol.Event)
	pumpCtx, stopPump := context.WithCancel(context.Background())
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.pump(pumpCtx, events, conn)
	}()

	defer func() {
		stopPump()
		<-pumpDone
		unsubscribe()
		c.closeConnection()
	}()

	if err := client.Open(ctx); err != nil {
		if ctx.Err() != nil {
			c.dispatch(ctx, Input{Kind: InputCancel})
			return c.result
		}
		var closeErr *protocol.CloseError
		if !errors.As(err, &closeErr) {
			closeErr = &protocol.CloseError{Code: protocol.CodeConnectionClosed, Reason: err.Error()}
		}
		c.closeInput(closeErr)
		return c.result
	}

	c.dispatch(ctx, Input{Kind: InputStarted, Registered: client.Registered()})

	for c.snap.State != StateClosed {
		select {
		case <-ctx.Done():
			c.dispatch(ctx, Input{Kind: InputCancel})

		case ev := <-conn:
			switch ev.Connection {
			case protocol.ConnectionOpen:
				c.dispatch(ctx, Input{Kind: InputOpen, UserID: ev.UserID})
			case protocol.ConnectionClose:
				c.closeInput(ev.LastDisconnect)
			}
		}
	}

	return c.result
}

func (c *Controller) closeInput(closeErr *protocol.CloseError) {
	code := 0
	kind := protocol.CloseTransient
	if closeErr != nil {
		code = closeErr.Code
		kind = closeErr.Kind()
	}
	logging.ConnectionClosed(c.sess.Handle.ID, code, kind.String())
	c.deps.Metrics.ConnectionClosed(kind.String())

	// Effects of a close never block, so no context is needed
	c.dispatch(context.Background(), Input{Kind: InputClose, Close: closeErr})
}

// dispatch feeds in to the state machine and runs the resulting effects.
// Effects may produce follow-up inputs, which are handled in order.
func (c *Controller) dispatch(ctx context.Context, in Input) {
	queue := []Input{in}
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]

		prev := c.snap
		next, effects := Transition(c.snap, in)
		c.snap = next
		if prev.State != next.State {
			logging.StateTransition(c.sess.Handle.ID, prev.State.String(), next.State.String(), in.Kind.String())
		}

		for _, eff := range effects {
			if follow, ok := c.run(ctx, eff); ok {
				queue = append(queue, follow)
			}
		}
	}

	c.result.Outcome = c.snap.Outcome
	c.result.Close = c.snap.Close
	if c.snap.Outcome == OutcomeLoggedOut && c.result.Err == nil {
		c.result.Err = c.snap.Close
	}
}

func (c *Controller) run(ctx context.Context, eff Effect) (Input, bool) {
	id := c.sess.Handle.ID

	switch eff.Kind {
	case EffectRequestCode:
		// The socket has to settle before the protocol accepts this call
		if err := sleep(ctx, c.settings.PairingDelay); err != nil {
			return Input{Kind: InputCancel}, true
		}
		code, err := c.client.RequestPairingCode(ctx, c.sess.Phone)
		if ctx.Err() != nil {
			return Input{Kind: InputCancel}, true
		}
		if err != nil {
			return Input{Kind: InputCodeFailed, Err: err}, true
		}
		return Input{Kind: InputCodeIssued, Code: code}, true

	case EffectReplyCode:
		formatted := FormatCode(eff.Code, c.settings.CodeGroupSize, c.settings.CodeSeparator)
		logging.PairingCodeIssued(id, c.attempt)
		if c.sess.Responder.Code(formatted) {
			if err := c.deps.Ledger.MarkCodeIssued(context.Background(), c.sess.AttemptID); err != nil {
				logging.ErrorContext("ledger_code_issued", err, map[string]interface{}{"attempt_id": c.sess.AttemptID})
			}
		} else {
			logging.Debug("Pairing code not delivered, caller already answered", map[string]interface{}{
				"session_id": id,
				"attempt":    c.attempt,
			})
		}

	case EffectReplyUnavailable:
		codeErr := &PairingCodeError{Err: eff.Err}
		c.result.Err = codeErr
		c.sess.Responder.Fail(codeErr)
		logging.ErrorContext("pairing_code", eff.Err, map[string]interface{}{
			"session_id": id,
			"attempt":    c.attempt,
		})

	case EffectExport:
		if err := c.deps.Ledger.MarkOpened(context.Background(), c.sess.AttemptID); err != nil {
			logging.ErrorContext("ledger_opened", err, map[string]interface{}{"attempt_id": c.sess.AttemptID})
		}
		if err := c.export(ctx); err != nil {
			return Input{Kind: InputCancel}, true
		}
		return Input{Kind: InputExportDone}, true

	case EffectCloseConnection:
		c.closeConnection()

	case EffectDestroySession:
		c.deps.Store.Destroy(c.sess.Handle)

	case EffectRestart:
		logging.Info("Session will restart", map[string]interface{}{
			"session_id": id,
			"attempt":    c.attempt,
		})
	}

	return Input{}, false
}

// export runs the open path: wait for the bundle, push it through the
// provider chain and tell the user. Upload and notification failures are
// swallowed; only cancellation is returned.
func (c *Controller) export(ctx context.Context) error {
	id := c.sess.Handle.ID
	userID := c.userID()

	// Credentials are persisted asynchronously after open
	if err := sleep(ctx, c.settings.OpenGrace); err != nil {
		return err
	}

	path := c.sess.Handle.BundlePath()
	upload, err := func() (*uploader.UploadResult, error) {
		if err := uploader.WaitForBundle(ctx, path, c.settings.BundleWait); err != nil {
			return nil, err
		}
		return c.deps.Exporter.UploadCredentials(ctx, path)
	}()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		c.result.Err = err
		logging.ErrorContext("export", err, map[string]interface{}{
			"session_id": id,
			"attempt_id": c.sess.AttemptID,
		})
		c.notify(ctx, userID, "failure", FailureMessage())
	} else {
		c.result.Upload = upload
		logging.Info("Session exported", map[string]interface{}{
			"session_id": id,
			"attempt_id": c.sess.AttemptID,
			"provider":   upload.Provider,
			"digest":     upload.Digest,
		})
		c.notify(ctx, userID, "session", SessionMessage(upload.URL))
		c.notify(ctx, userID, "env", EnvLine(c.settings.EnvKey, upload.URL))
	}

	if err := sleep(ctx, c.settings.TeardownDelay); err != nil && c.result.Upload == nil {
		return err
	}
	// Delivered; a cancel during teardown still counts as exported
	return nil
}

func (c *Controller) notify(ctx context.Context, to, kind, text string) {
	if err := c.client.SendMessage(ctx, to, text); err != nil {
		logging.NotificationFailed(c.sess.Handle.ID, kind, &NotificationError{Kind: kind, Err: err})
	}
}

// userID is the normalized identity the connection opened as, falling back
// to the canonical number
func (c *Controller) userID() string {
	id := c.snap.UserID
	if id == "" {
		id = c.client.UserID()
	}
	if id == "" {
		return protocol.UserIDFor(c.sess.Phone, c.settings.UserDomain)
	}
	return protocol.NormalizeUserID(id)
}

func (c *Controller) closeConnection() {
	if c.closed || c.client == nil {
		return
	}
	c.closed = true
	if err := c.client.Close(); err != nil && !protocol.Suppress(err) {
		logging.ErrorContext("connection_close", err, map[string]interface{}{"session_id": c.sess.Handle.ID})
	}
}

// pump relays credential updates to the session store as they arrive and
// queues connection updates for Run, so persistence never waits on a slow
// export or pairing code request.
func (c *Controller) pump(ctx context.Context, events <-chan protocol.Event, out chan<- protocol.Event) {
	var queue []protocol.Event
	for {
		var send chan<- protocol.Event
		var head protocol.Event
		if len(queue) > 0 {
			send = out
			head = queue[0]
		}

		select {
		case <-ctx.Done():
			c.drainCredentials(events)
			return

		case ev := <-events:
			if ev.Type == protocol.EventCredentials {
				c.saveCredentials(ev.Credentials)
				continue
			}
			if ev.Type == protocol.EventConnection {
				queue = append(queue, ev)
			}

		case send <- head:
			queue = queue[1:]
		}
	}
}

func (c *Controller) drainCredentials(events <-chan protocol.Event) {
	for {
		select {
		case ev := <-events:
			if ev.Type == protocol.EventCredentials {
				c.saveCredentials(ev.Credentials)
			}
		default:
			return
		}
	}
}

func (c *Controller) saveCredentials(data []byte) {
	err := c.sess.Handle.SaveCredentials(data)
	if errors.Is(err, session.ErrDestroyed) {
		logging.Debug("Dropping credential update for destroyed session", map[string]interface{}{
			"session_id": c.sess.Handle.ID,
		})
		return
	}
	if err != nil {
		logging.ErrorContext("save_credentials", err, map[string]interface{}{"session_id": c.sess.Handle.ID})
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
