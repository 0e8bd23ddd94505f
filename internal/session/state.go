package session

import "github.com/openkcm/member-manager/internal/identity"

type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is a point-in-time view of the session for display.
type State struct {
	Status   Status
	Identity identity.Identity
	IsAdmin  bool
	Members  []identity.Identity
	// LastError is the reason of the most recent failed action or connect
	// attempt. It is cleared by the next success.
	LastError string
}
