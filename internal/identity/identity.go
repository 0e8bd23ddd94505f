// Package identity defines the identity of the connected user and the
// provider capability the session controller obtains it from.
package identity

import "context"

// Identity is an opaque wallet address. The zero value means "not connected".
type Identity string

func (i Identity) String() string { return string(i) }

// IsZero reports whether no identity is present.
func (i Identity) IsZero() bool { return i == "" }

// Scope is a permission requested from the identity provider on connect.
type Scope string

const (
	ScopeAccessAddress   Scope = "ACCESS_ADDRESS"
	ScopeSignTransaction Scope = "SIGN_TRANSACTION"
)

// DefaultScopes are requested when the configuration does not name any.
var DefaultScopes = []Scope{ScopeAccessAddress, ScopeSignTransaction}

// Provider is the wallet capability injected into the session controller.
type Provider interface {
	// Connect asks the provider for the given scopes. It fails with
	// serviceerr.ErrConnection when the user declines or no provider exists.
	Connect(ctx context.Context, scopes []Scope) error
	// CurrentIdentity returns the active address. It fails with
	// serviceerr.ErrNoIdentity when not connected.
	CurrentIdentity(ctx context.Context) (Identity, error)
}
