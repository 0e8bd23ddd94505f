package identitymock

import (
	"context"
	"sync"

	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/serviceerr"
)

type ProviderOption func(*Provider)

// Provider is an in-memory identity provider. It hands out the configured
// identity once Connect succeeded.
type Provider struct {
	mu sync.Mutex

	identity  identity.Identity
	connected bool
	scopes    []identity.Scope

	connectErr, identityErr error
	connectCalls            int
}

func WithIdentity(id identity.Identity) ProviderOption {
	return func(p *Provider) { p.identity = id }
}
func WithConnectError(err error) ProviderOption {
	return func(p *Provider) { p.connectErr = err }
}
func WithIdentityError(err error) ProviderOption {
	return func(p *Provider) { p.identityErr = err }
}

var _ = identity.Provider(&Provider{})

func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Provider) Connect(_ context.Context, scopes []identity.Scope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connectCalls++
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	p.scopes = append([]identity.Scope(nil), scopes...)
	return nil
}

func (p *Provider) CurrentIdentity(_ context.Context) (identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.identityErr != nil {
		return "", p.identityErr
	}
	if !p.connected || p.identity.IsZero() {
		return "", serviceerr.ErrNoIdentity
	}
	return p.identity, nil
}

// SwitchIdentity simulates the user selecting another address in the wallet.
func (p *Provider) SwitchIdentity(id identity.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = id
}

// SetIdentityError makes subsequent CurrentIdentity calls fail.
func (p *Provider) SetIdentityError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identityErr = err
}

func (p *Provider) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

func (p *Provider) Scopes() []identity.Scope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]identity.Scope(nil), p.scopes...)
}
