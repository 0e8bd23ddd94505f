// Package wallet implements an identity provider on top of an RSA JWK
// wallet keyfile. The address is the unpadded base64url encoding of the
// SHA-256 digest of the key's modulus.
package wallet

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-jose/go-jose/v4"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/serviceerr"
)

var ErrUnsupportedKey = errors.New("wallet key is not an RSA key")

type Provider struct {
	keyfile []byte
	allowed []identity.Scope

	mu      sync.RWMutex
	address identity.Identity
}

var _ = identity.Provider(&Provider{})

// NewProvider returns a provider for the given JWK keyfile content. Connect
// requests are granted only for scopes listed in allowed; an empty list
// allows the default scopes.
func NewProvider(keyfile []byte, allowed []identity.Scope) *Provider {
	if len(allowed) == 0 {
		allowed = identity.DefaultScopes
	}

	return &Provider{
		keyfile: keyfile,
		allowed: allowed,
	}
}

func (p *Provider) Connect(ctx context.Context, scopes []identity.Scope) error {
	for _, scope := range scopes {
		if !slices.Contains(p.allowed, scope) {
			return fmt.Errorf("%w: scope %s declined", serviceerr.ErrConnection, scope)
		}
	}

	address, err := Address(p.keyfile)
	if err != nil {
		return errors.Join(serviceerr.ErrConnection, err)
	}

	p.mu.Lock()
	p.address = address
	p.mu.Unlock()

	slogctx.Debug(ctx, "Wallet connected", "identity", address, "scopes", scopes)

	return nil
}

func (p *Provider) CurrentIdentity(_ context.Context) (identity.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.address.IsZero() {
		return "", serviceerr.ErrNoIdentity
	}

	return p.address, nil
}

// Address derives the wallet address from a JWK keyfile.
func Address(keyfile []byte) (identity.Identity, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(keyfile); err != nil {
		return "", fmt.Errorf("parsing wallet keyfile: %w", err)
	}

	var modulus []byte
	switch key := jwk.Key.(type) {
	case *rsa.PrivateKey:
		modulus = key.N.Bytes()
	case *rsa.PublicKey:
		modulus = key.N.Bytes()
	default:
		return "", ErrUnsupportedKey
	}

	digest := sha256.Sum256(modulus)

	return identity.Identity(base64.RawURLEncoding.EncodeToString(digest[:])), nil
}
