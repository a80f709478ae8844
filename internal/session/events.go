package session

// EventKind identifies a session lifecycle transition.
type EventKind int

const (
	SessionStarted EventKind = iota
	SessionStopped
)

func (k EventKind) String() string {
	switch k {
	case SessionStarted:
		return "started"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after the manager's state has changed.
// SessionID is the new session for SessionStarted and NoSession otherwise.
type Event struct {
	Kind      EventKind
	SessionID int64
}
