package action

import (
	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/remote"
)

const (
	ReasonNotAdmin    = "only admins may add members"
	ReasonNoResponse  = "no response received"
	ReasonTimeout     = "timed out waiting for result"
	ReasonRemoteError = "remote process reported an error"
)

// Failure is the normalized form of every error an action can run into.
// Reason is meant for display; Unwrap exposes the serviceerr sentinel and the cause.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string { return f.Reason }

func (f *Failure) Unwrap() error { return f.Err }

// Outcome is the classified result of one action. Err is nil on success.
type Outcome struct {
	Kind  Kind
	Token remote.Token

	// Members is set by a successful GetMembers.
	Members []identity.Identity
	// Text is set by a successful AddMember.
	Text string

	Err *Failure
}

func (o Outcome) OK() bool { return o.Err == nil }

func failed(kind Kind, token remote.Token, reason string, err error) Outcome {
	return Outcome{
		Kind:  kind,
		Token: token,
		Err:   &Failure{Reason: reason, Err: err},
	}
}
