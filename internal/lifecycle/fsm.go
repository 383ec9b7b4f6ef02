// Package lifecycle drives one pairing session: the connection state machine,
// the controller executing its effects, and the supervisor restarting it.
package lifecycle

import "github.com/parnexcodes/pairlink/internal/protocol"

// State is the connection state of one controller
type State int

const (
	StateConnecting State = iota
	StateAwaitingPairing
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outcome is why a controller reached StateClosed
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeExported means the open path ran to completion, whatever the upload result
	OutcomeExported
	OutcomeLoggedOut
	OutcomeRestart
	OutcomeCodeFailed
	OutcomeCancelled
	// OutcomeAbandoned is set by the supervisor when restarts run out
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExported:
		return "exported"
	case OutcomeLoggedOut:
		return "logged_out"
	case OutcomeRestart:
		return "restart"
	case OutcomeCodeFailed:
		return "code_failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "none"
	}
}

// Snapshot is the full state machine state
type Snapshot struct {
	State      State
	Registered bool
	CodeIssued bool
	UserID     string
	Close      *protocol.CloseError
	Outcome    Outcome
}

// InputKind enumerates what can drive a transition
type InputKind int

const (
	// InputStarted follows a successful Open and carries Registered
	InputStarted InputKind = iota
	InputCodeIssued
	InputCodeFailed
	InputOpen
	InputClose
	InputExportDone
	InputCancel
)

func (k InputKind) String() string {
	switch k {
	case InputStarted:
		return "started"
	case InputCodeIssued:
		return "code_issued"
	case InputCodeFailed:
		return "code_failed"
	case InputOpen:
		return "connection_open"
	case InputClose:
		return "connection_close"
	case InputExportDone:
		return "export_done"
	case InputCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Input is one event fed to Transition
type Input struct {
	Kind       InputKind
	Registered bool
	Code       string
	Err        error
	UserID     string
	Close      *protocol.CloseError
}

// EffectKind enumerates the side effects a transition can ask for
type EffectKind int

const (
	EffectRequestCode EffectKind = iota
	EffectReplyCode
	EffectReplyUnavailable
	EffectExport
	EffectCloseConnection
	EffectDestroySession
	EffectRestart
)

func (k EffectKind) String() string {
	switch k {
	case EffectRequestCode:
		return "request_code"
	case EffectReplyCode:
		return "reply_code"
	case EffectReplyUnavailable:
		return "reply_unavailable"
	case EffectExport:
		return "export"
	case EffectCloseConnection:
		return "close_connection"
	case EffectDestroySession:
		return "destroy_session"
	case EffectRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// Effect is a side effect to run after a transition, in order
type Effect struct {
	Kind EffectKind
	Code string
	Err  error
}

// Transition is the pure state machine. It never performs I/O; the
// controller runs the returned effects. Once closed, every input is ignored.
func Transition(s Snapshot, in Input) (Snapshot, []Effect) {
	if s.State == StateClosed {
		return s, nil
	}

	switch in.Kind {
	case InputStarted:
		if s.State != StateConnecting {
			return s, nil
		}
		s.Registered = in.Registered
		if in.Registered {
			return s, nil
		}
		s.State = StateAwaitingPairing
		return s, []Effect{{Kind: EffectRequestCode}}

	case InputCodeIssued:
		if s.State != StateAwaitingPairing {
			return s, nil
		}
		s.CodeIssued = true
		return s, []Effect{{Kind: EffectReplyCode, Code: in.Code}}

	case InputCodeFailed:
		if s.State != StateAwaitingPairing {
			return s, nil
		}
		s.State = StateClosed
		s.Outcome = OutcomeCodeFailed
		return s, []Effect{
			{Kind: EffectReplyUnavailable, Err: in.Err},
			{Kind: EffectCloseConnection},
		}

	case InputOpen:
		if s.State == StateOpen {
			return s, nil
		}
		s.State = StateOpen
		s.Registered = true
		s.UserID = in.UserID
		return s, []Effect{{Kind: EffectExport}}

	case InputExportDone:
		if s.State != StateOpen {
			return s, nil
		}
		s.State = StateClosed
		s.Outcome = OutcomeExported
		return s, []Effect{
			{Kind: EffectCloseConnection},
			{Kind: EffectDestroySession},
		}

	case InputClose:
		// After open the export path owns the connection and closes it itself
		if s.State == StateOpen {
			return s, nil
		}
		s.State = StateClosed
		s.Close = in.Close
		if in.Close != nil && in.Close.Kind() == protocol.CloseTerminal {
			s.Outcome = OutcomeLoggedOut
			return s, []Effect{
				{Kind: EffectCloseConnection},
				{Kind: EffectDestroySession},
			}
		}
		s.Outcome = OutcomeRestart
		return s, []Effect{
			{Kind: EffectCloseConnection},
			{Kind: EffectRestart},
		}

	case InputCancel:
		s.State = StateClosed
		s.Outcome = OutcomeCancelled
		return s, []Effect{{Kind: EffectCloseConnection}}
	}

	return s, nil
}
