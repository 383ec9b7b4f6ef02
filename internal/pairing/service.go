// Package pairing turns a phone number into a pairing code and leaves the
// rest of the session lifecycle running in the background.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/parnexcodes/pairlink/internal/ledger"
	"github.com/parnexcodes/pairlink/internal/lifecycle"
	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/metrics"
	"github.com/parnexcodes/pairlink/internal/phone"
	"github.com/parnexcodes/pairlink/internal/protocol"
	"github.com/parnexcodes/pairlink/internal/session"
	"github.com/parnexcodes/pairlink/internal/uploader"
)

var (
	// ErrMissingNumber is returned when no phone number was supplied
	ErrMissingNumber = errors.New("phone number is required")
	// ErrServiceUnavailable wraps every failure to produce a code for a valid number
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrBusy means the concurrent session cap is reached
	ErrBusy = errors.New("too many pairing sessions in progress")
	// ErrCodeTimeout means no code arrived within the configured wait
	ErrCodeTimeout = errors.New("timed out waiting for a pairing code")
	// ErrShutdown is returned once Shutdown has been called
	ErrShutdown = errors.New("pairing service is shutting down")
)

// PairingCodeError means the protocol refused the pairing code request
type PairingCodeError = lifecycle.PairingCodeError

// Options wires a Service
type Options struct {
	Store    *session.Store
	Dialer   protocol.Dialer
	Exporter lifecycle.Exporter
	Metrics  *metrics.Metrics
	Ledger   ledger.Recorder

	Settings   lifecycle.Settings
	Supervisor lifecycle.SupervisorConfig

	// CodeTimeout bounds how long BeginPairing waits; zero waits for the caller's context only
	CodeTimeout   time.Duration
	MaxConcurrent int
}

// Service is the request orchestrator. Each accepted number gets its own
// supervised session that outlives the call that started it.
type Service struct {
	opts Options
	sem  *semaphore.Weighted

	baseCtx   context.Context
	cancelAll context.CancelFunc

	// startMu serialises replacement of a session id
	startMu sync.Mutex

	mu       sync.Mutex
	running  map[string]*live
	shutdown bool
	wg       sync.WaitGroup
}

type live struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService validates opts and returns a ready service
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("protocol dialer is required")
	}
	if opts.Exporter == nil {
		return nil, errors.New("exporter is required")
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.Nop{}
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}

	logging.ConcurrencySettings(opts.MaxConcurrent, opts.MaxConcurrent)

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		baseCtx:   ctx,
		cancelAll: cancel,
		running:   make(map[string]*live),
	}, nil
}

// BeginPairing validates raw, starts a supervised session for it and
// returns the formatted pairing code as soon as one is issued. Invalid
// input fails before anything is allocated.
func (s *Service) BeginPairing(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		s.opts.Metrics.PairingRequest(metrics.ResultMissing)
		return "", ErrMissingNumber
	}

	number, err := phone.Canonicalize(raw)
	if err != nil {
		s.opts.Metrics.PairingRequest(metrics.ResultInvalid)
		return "", err
	}

	responder, cancel, err := s.start(number)
	if err != nil {
		s.opts.Metrics.PairingRequest(metrics.ResultUnavailable)
		return "", err
	}

	var timeout <-chan time.Time
	if s.opts.CodeTimeout > 0 {
		timer := time.NewTimer(s.opts.CodeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case reply := <-responder.Done():
		if reply.Err != nil {
			s.opts.Metrics.PairingRequest(metrics.ResultUnavailable)
			return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, reply.Err)
		}
		s.opts.Metrics.PairingRequest(metrics.ResultOK)
		return reply.Code, nil

	case <-timeout:
		cancel()
		s.opts.Metrics.PairingRequest(metrics.ResultUnavailable)
		logging.Warn("No pairing code in time, cancelling session", map[string]interface{}{
			"session_id": number.String(),
			"timeout":    s.opts.CodeTimeout.String(),
		})
		return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, ErrCodeTimeout)

	case <-ctx.Done():
		// Nobody is left to read the code
		cancel()
		s.opts.Metrics.PairingRequest(metrics.ResultUnavailable)
		return "", ctx.Err()
	}
}

// start replaces any live session for number and launches a new supervisor
func (s *Service) start(number phone.Number) (*lifecycle.Responder, context.CancelFunc, error) {
	id := number.String()

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, ErrShutdown)
	}
	prev := s.running[id]
	s.mu.Unlock()

	if prev != nil {
		logging.Info("Replacing live session", map[string]interface{}{"session_id": id})
		prev.cancel()
		<-prev.done
	}

	if !s.sem.TryAcquire(1) {
		return nil, nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, ErrBusy)
	}

	handle, err := s.opts.Store.Create(id)
	if err != nil {
		s.sem.Release(1)
		return nil, nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	attemptID, err := s.opts.Ledger.Start(context.Background(), id, id)
	if err != nil {
		logging.ErrorContext("ledger_start", err, map[string]interface{}{"session_id": id})
		attemptID = ledger.NewID()
	}

	responder := lifecycle.NewResponder()
	runCtx, cancel := context.WithCancel(s.baseCtx)
	run := &live{cancel: cancel, done: make(chan struct{})}

	sup := lifecycle.NewSupervisor(lifecycle.Deps{
		Dialer:   s.opts.Dialer,
		Store:    s.opts.Store,
		Exporter: s.opts.Exporter,
		Metrics:  s.opts.Metrics,
		Ledger:   s.opts.Ledger,
	}, s.opts.Settings, s.opts.Supervisor, lifecycle.Session{
		Handle:    handle,
		Phone:     id,
		AttemptID: attemptID,
		Responder: responder,
	})

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		cancel()
		s.opts.Store.Destroy(handle)
		s.sem.Release(1)
		return nil, nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, ErrShutdown)
	}
	s.running[id] = run
	s.wg.Add(1)
	s.mu.Unlock()

	s.opts.Metrics.SessionStarted()
	logging.Info("Pairing session started", map[string]interface{}{
		"session_id": id,
		"attempt_id": attemptID,
	})

	go func() {
		defer s.wg.Done()
		res := sup.Run(runCtx)
		cancel()
		s.finish(id, attemptID, run, res)
	}()

	return responder, cancel, nil
}

func (s *Service) finish(id, attemptID string, run *live, res lifecycle.Result) {
	defer close(run.done)

	s.opts.Metrics.SessionEnded()
	// The chain counts every export it ran; only a bundle that never appeared is left
	if res.Outcome == lifecycle.OutcomeExported && errors.Is(res.Err, uploader.ErrBundleMissing) {
		s.opts.Metrics.Export(metrics.ResultFailed)
	}

	f := ledger.Finish{
		Outcome:  ledgerOutcome(res),
		Restarts: res.Restarts,
		Err:      res.Err,
	}
	if res.Upload != nil {
		f.Provider = res.Upload.Provider
		f.BundleDigest = res.Upload.Digest
	}
	if err := s.opts.Ledger.Finish(context.Background(), attemptID, f); err != nil {
		logging.ErrorContext("ledger_finish", err, map[string]interface{}{"attempt_id": attemptID})
	}

	logging.Info("Pairing session finished", map[string]interface{}{
		"session_id": id,
		"attempt_id": attemptID,
		"outcome":    res.Outcome.String(),
		"restarts":   res.Restarts,
	})

	s.mu.Lock()
	if s.running[id] == run {
		delete(s.running, id)
	}
	s.mu.Unlock()
	s.sem.Release(1)
}

func ledgerOutcome(res lifecycle.Result) string {
	switch res.Outcome {
	case lifecycle.OutcomeExported:
		if res.Err != nil {
			return ledger.OutcomeFailed
		}
		return ledger.OutcomeExported
	case lifecycle.OutcomeLoggedOut:
		return ledger.OutcomeLoggedOut
	case lifecycle.OutcomeCodeFailed:
		return ledger.OutcomeCodeError
	case lifecycle.OutcomeCancelled:
		return ledger.OutcomeCancelled
	default:
		return ledger.OutcomeAbandoned
	}
}

// Active returns the number of live sessions
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown cancels every live session and waits for them to clean up
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.cancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
