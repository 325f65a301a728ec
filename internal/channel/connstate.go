package channel

import "sync"

// ConnState is the lifecycle of a transport session.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	// StateClosedRetryable means the link dropped and the client reconnects.
	StateClosedRetryable
	// StateClosedTerminal means the session was logged out; only a fresh
	// pairing brings it back.
	StateClosedTerminal
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetryable:
		return "closed_retryable"
	case StateClosedTerminal:
		return "closed_terminal"
	default:
		return "unknown"
	}
}

type connEvent int

const (
	evConnecting connEvent = iota
	evConnected
	evDisconnected
	evLoggedOut
)

// connTracker applies connection events. Terminal is absorbing.
type connTracker struct {
	mu       sync.Mutex
	state    ConnState
	onChange func(from, to ConnState)
}

func newConnTracker(onChange func(from, to ConnState)) *connTracker {
	return &connTracker{state: StateConnecting, onChange: onChange}
}

func (t *connTracker) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *connTracker) apply(ev connEvent) ConnState {
	t.mu.Lock()
	from := t.state
	to := from
	if from != StateClosedTerminal {
		switch ev {
		case evConnecting:
			to = StateConnecting
		case evConnected:
			to = StateOpen
		case evDisconnected:
			to = StateClosedRetryable
		case evLoggedOut:
			to = StateClosedTerminal
		}
	}
	t.state = to
	t.mu.Unlock()

	if to != from && t.onChange != nil {
		t.onChange(from, to)
	}
	return to
}
