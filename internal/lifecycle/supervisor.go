package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/parnexcodes/pairlink/internal/config"
	"github.com/parnexcodes/pairlink/internal/logging"
)

// SupervisorConfig bounds how often a session reconnects
type SupervisorConfig struct {
	// MaxRestarts caps consecutive restarts; zero means never restart
	MaxRestarts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// StableAfter resets the consecutive count once a controller ran this long
	StableAfter time.Duration
}

// SupervisorConfigFromConfig maps configuration onto supervisor settings
func SupervisorConfigFromConfig(cfg *config.Config) SupervisorConfig {
	return SupervisorConfig{
		MaxRestarts:    cfg.Supervisor.MaxRestarts,
		BackoffInitial: cfg.Supervisor.BackoffInitial,
		BackoffMax:     cfg.Supervisor.BackoffMax,
		StableAfter:    cfg.Supervisor.StableAfter,
	}
}

// Supervisor owns a session id and runs one controller at a time for it,
// replacing the controller after every transient close.
type Supervisor struct {
	deps     Deps
	settings Settings
	cfg      SupervisorConfig
	sess     Session

	// newController is swapped in tests
	newController func(attempt int) runner
}

type runner interface {
	Run(ctx context.Context) Result
}

// NewSupervisor creates a supervisor for one top-level session
func NewSupervisor(deps Deps, settings Settings, cfg SupervisorConfig, sess Session) *Supervisor {
	s := &Supervisor{
		deps:     deps,
		settings: settings,
		cfg:      cfg,
		sess:     sess,
	}
	s.newController = func(attempt int) runner {
		return NewController(s.deps, s.settings, s.sess, attempt)
	}
	return s
}

// Run supervises the session until it ends for good. The previous
// controller has fully released its connection before the next is built.
func (s *Supervisor) Run(ctx context.Context) (final Result) {
	id := s.sess.Handle.ID

	defer func() {
		// Wakes a caller still waiting for a code; no-op once it was answered
		s.sess.Responder.Fail(fmt.Errorf("%w: %s", ErrSessionEnded, final.Outcome))
	}()

	backoff := s.cfg.BackoffInitial
	consecutive := 0

	for attempt := 1; ; attempt++ {
		started := time.Now()
		res := s.newController(attempt).Run(ctx)
		res.Restarts = attempt - 1

		switch res.Outcome {
		case OutcomeRestart:
		case OutcomeCancelled:
			// Abandoned mid-flight; a later attempt starts from a clean directory anyway
			s.deps.Store.Destroy(s.sess.Handle)
			return res
		default:
			return res
		}

		if s.cfg.StableAfter > 0 && time.Since(started) >= s.cfg.StableAfter {
			consecutive = 0
			backoff = s.cfg.BackoffInitial
		}
		consecutive++

		if consecutive > s.cfg.MaxRestarts {
			logging.Warn("Restart limit reached, abandoning session", map[string]interface{}{
				"session_id":   id,
				"restarts":     consecutive - 1,
				"max_restarts": s.cfg.MaxRestarts,
			})
			s.deps.Store.Destroy(s.sess.Handle)
			res.Outcome = OutcomeAbandoned
			return res
		}

		s.deps.Metrics.SessionRestarted()
		logging.Info("Restarting session", map[string]interface{}{
			"session_id": id,
			"attempt":    attempt + 1,
			"backoff":    backoff.String(),
		})

		if err := sleep(ctx, backoff); err != nil {
			s.deps.Store.Destroy(s.sess.Handle)
			res.Outcome = OutcomeCancelled
			return res
		}

		backoff *= 2
		if s.cfg.BackoffMax > 0 && backoff > s.cfg.BackoffMax {
			backoff = s.cfg.BackoffMax
		}
	}
}
