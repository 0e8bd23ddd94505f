// Package session ties the connected identity to the local member set.
//
// The admin flag is never stored: it is derived from the connection status,
// the identity and the member set each time it is read.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/member-manager/internal/action"
	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/serviceerr"
)

// Actions is the part of the action client the controller drives.
type Actions interface {
	FetchMembers(ctx context.Context, issuer identity.Identity) action.Outcome
	AddMember(ctx context.Context, issuer, member identity.Identity) action.Outcome
}

// MemberStore is the local member set. The controller is its only writer.
type MemberStore interface {
	Replace(members []identity.Identity)
	Members() []identity.Identity
	IsMember(id identity.Identity) bool
}

type Controller struct {
	provider identity.Provider
	actions  Actions
	members  MemberStore
	scopes   []identity.Scope

	mu        sync.Mutex
	status    Status
	identity  identity.Identity
	lastError string

	listenersMu sync.Mutex
	listeners   map[int]func(State)
	nextID      int
}

func NewController(provider identity.Provider, actions Actions, members MemberStore, scopes []identity.Scope) *Controller {
	if len(scopes) == 0 {
		scopes = identity.DefaultScopes
	}

	return &Controller{
		provider:  provider,
		actions:   actions,
		members:   members,
		scopes:    scopes,
		status:    Disconnected,
		listeners: make(map[int]func(State)),
	}
}

// Connect resolves the identity and loads the member set once. Connection
// failures are not retried. If loading the members fails the session stays
// connected and the *action.Failure is returned.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status != Disconnected {
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot connect while %s", serviceerr.ErrInvalidState, status)
	}
	c.status = Connecting
	c.mu.Unlock()
	c.notify()

	id, err := c.resolveIdentity(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to connect", "error", err)

		c.mu.Lock()
		c.status = Disconnected
		c.identity = ""
		c.lastError = err.Error()
		c.mu.Unlock()
		c.notify()

		return err
	}

	c.mu.Lock()
	c.status = Connected
	c.identity = id
	c.lastError = ""
	c.mu.Unlock()
	c.notify()

	ctx = slogctx.With(ctx, "identity", id)
	slogctx.Info(ctx, "Connected")

	if out := c.refresh(ctx, id); !out.OK() {
		return out.Err
	}

	return nil
}

// Disconnect forgets the identity. The member list is kept for display.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case Disconnected:
		c.mu.Unlock()
		return nil
	case Connecting:
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot disconnect while connecting", serviceerr.ErrInvalidState)
	}
	id := c.identity
	c.status = Disconnected
	c.identity = ""
	c.mu.Unlock()
	c.notify()

	slogctx.Info(ctx, "Disconnected", "identity", id)

	return nil
}

// Refresh reloads the member set. A failure keeps the previous members.
func (c *Controller) Refresh(ctx context.Context) action.Outcome {
	c.mu.Lock()
	status, id := c.status, c.identity
	c.mu.Unlock()

	if status != Connected {
		return action.Outcome{
			Kind: action.GetMembers,
			Err:  &action.Failure{Reason: "not connected", Err: serviceerr.ErrNoIdentity},
		}
	}

	return c.refresh(slogctx.With(ctx, "identity", id), id)
}

// AddMember asks the remote process to add addr and reloads the member set
// when it confirms. The member set is never updated optimistically.
func (c *Controller) AddMember(ctx context.Context, addr identity.Identity) action.Outcome {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()

	ctx = slogctx.With(ctx, "identity", id, "member", addr)

	out := c.actions.AddMember(ctx, id, addr)
	if !out.OK() {
		c.setLastError(out.Err.Reason)
		return out
	}

	slogctx.Info(ctx, "Member add confirmed", "confirmation", out.Text)

	if refreshed := c.refresh(ctx, id); !refreshed.OK() {
		slogctx.Warn(ctx, "Member list not refreshed after add", "reason", refreshed.Err.Reason)
	}

	return out
}

// CheckIdentity re-reads the active identity from the provider. A changed
// identity is adopted and the member set reloaded; a lost identity
// disconnects the session.
func (c *Controller) CheckIdentity(ctx context.Context) error {
	c.mu.Lock()
	if c.status != Connected {
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot check identity while %s", serviceerr.ErrInvalidState, status)
	}
	previous := c.identity
	c.mu.Unlock()

	id, err := c.provider.CurrentIdentity(ctx)
	if err == nil && id.IsZero() {
		err = serviceerr.ErrNoIdentity
	}
	if err != nil {
		err = fmt.Errorf("reading current identity: %w", ensure(serviceerr.ErrNoIdentity, err))
		slogctx.Warn(ctx, "Identity lost, disconnecting", "identity", previous, "error", err)

		c.mu.Lock()
		if c.identity == previous {
			c.status = Disconnected
			c.identity = ""
		}
		c.lastError = err.Error()
		c.mu.Unlock()
		c.notify()

		return err
	}

	if id == previous {
		return nil
	}

	c.mu.Lock()
	if c.status != Connected || c.identity != previous {
		c.mu.Unlock()
		return nil
	}
	c.identity = id
	c.mu.Unlock()
	c.notify()

	ctx = slogctx.With(ctx, "identity", id)
	slogctx.Info(ctx, "Identity changed", "previous", previous)

	if out := c.refresh(ctx, id); !out.OK() {
		return out.Err
	}

	return nil
}

// IsAdmin reports whether the session is connected with an identity that is
// currently a member.
func (c *Controller) IsAdmin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.isAdminLocked()
}

func (c *Controller) Members() []identity.Identity {
	return c.members.Members()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Status:    c.status,
		Identity:  c.identity,
		IsAdmin:   c.isAdminLocked(),
		Members:   c.members.Members(),
		LastError: c.lastError,
	}
}

// Subscribe registers fn to be called with a fresh State after every change.
// The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Controller) isAdminLocked() bool {
	return c.status == Connected && !c.identity.IsZero() && c.members.IsMember(c.identity)
}

func (c *Controller) resolveIdentity(ctx context.Context) (identity.Identity, error) {
	if err := c.provider.Connect(ctx, c.scopes); err != nil {
		return "", fmt.Errorf("connecting identity provider: %w", ensure(serviceerr.ErrConnection, err))
	}

	id, err := c.provider.CurrentIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("reading current identity: %w", ensure(serviceerr.ErrNoIdentity, err))
	}
	if id.IsZero() {
		return "", fmt.Errorf("reading current identity: %w", serviceerr.ErrNoIdentity)
	}

	return id, nil
}

func (c *Controller) refresh(ctx context.Context, id identity.Identity) action.Outcome {
	out := c.actions.FetchMembers(ctx, id)

	c.mu.Lock()
	if out.OK() {
		c.members.Replace(out.Members)
		c.lastError = ""
	} else {
		c.lastError = out.Err.Reason
	}
	c.mu.Unlock()
	c.notify()

	return out
}

func (c *Controller) setLastError(reason string) {
	c.mu.Lock()
	c.lastError = reason
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	state := c.State()

	c.listenersMu.Lock()
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func ensure(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.Join(sentinel, err)
}
