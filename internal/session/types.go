package session

import "errors"

// State is the lifecycle phase of a voice session.
type State int

const (
	StateIdle State = iota
	StateGating
	StateConnecting
	StateLive
	StateStopping
	StateClosed
	StateLimitReached
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGating:
		return "gating"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	case StateLimitReached:
		return "limit_reached"
	default:
		return "unknown"
	}
}

// StopReason records why a session ended.
type StopReason int

const (
	ReasonUser StopReason = iota
	ReasonLimit
	ReasonError
)

func (r StopReason) String() string {
	switch r {
	case ReasonUser:
		return "user"
	case ReasonLimit:
		return "limit"
	case ReasonError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrDailyLimitReached is returned when today's usage already meets or
	// exceeds the tier's daily cap; no session is started.
	ErrDailyLimitReached = errors.New("daily usage limit reached")

	// ErrMicrophone wraps capture device failures before the session goes live.
	ErrMicrophone = errors.New("microphone unavailable")

	// ErrConnect wraps transport failures before the session goes live.
	ErrConnect = errors.New("connection failed")
)

// Result summarizes a finished session.
type Result struct {
	State           State
	Reason          StopReason
	DurationSeconds int
	EntryID         string
	Err             error
}
