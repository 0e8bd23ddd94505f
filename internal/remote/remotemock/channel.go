package remotemock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/remote"
	"github.com/openkcm/member-manager/internal/serviceerr"
)

// Handler computes the result of an action at submission time.
type Handler func(tags []remote.Tag, signer identity.Identity) (remote.Result, error)

type Submission struct {
	Target remote.ProcessID
	Tags   []remote.Tag
	Signer identity.Identity
	Token  remote.Token
}

type ChannelOption func(*Channel)

// Channel is an in-memory remote channel. Handlers are selected by the value
// of the Action tag.
type Channel struct {
	mu sync.Mutex

	handlers    map[string]Handler
	pending     map[remote.Token]pending
	submissions []Submission

	submitErr error
	hang      bool
}

type pending struct {
	target remote.ProcessID
	result remote.Result
	err    error
}

func WithHandler(action string, h Handler) ChannelOption {
	return func(c *Channel) { c.handlers[action] = h }
}
func WithSubmitError(err error) ChannelOption {
	return func(c *Channel) { c.submitErr = err }
}

// WithHangingResults makes AwaitResult block until its context is done.
func WithHangingResults() ChannelOption {
	return func(c *Channel) { c.hang = true }
}

var _ = remote.Channel(&Channel{})

func NewChannel(opts ...ChannelOption) *Channel {
	c := &Channel{
		handlers: make(map[string]Handler),
		pending:  make(map[remote.Token]pending),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Channel) Submit(_ context.Context, target remote.ProcessID, tags []remote.Tag, signer identity.Identity) (remote.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		return "", c.submitErr
	}

	token := remote.Token(uuid.NewString())
	c.submissions = append(c.submissions, Submission{
		Target: target,
		Tags:   append([]remote.Tag(nil), tags...),
		Signer: signer,
		Token:  token,
	})

	var p pending
	p.target = target
	action, _ := remote.TagValue(tags, "Action")
	if h, ok := c.handlers[action]; ok {
		p.result, p.err = h(tags, signer)
	}
	c.pending[token] = p

	return token, nil
}

func (c *Channel) AwaitResult(ctx context.Context, token remote.Token, target remote.ProcessID) (remote.Result, error) {
	c.mu.Lock()
	p, ok := c.pending[token]
	hang := c.hang
	c.mu.Unlock()

	if hang {
		<-ctx.Done()
		return remote.Result{}, ctx.Err()
	}

	if !ok || p.target != target {
		return remote.Result{}, errors.Join(serviceerr.ErrResolution, serviceerr.ErrNotFound)
	}
	if p.err != nil {
		return remote.Result{}, p.err
	}
	if p.result.Error != "" {
		return remote.Result{}, fmt.Errorf("%w: %s", serviceerr.ErrResolution, p.result.Error)
	}

	return p.result, nil
}

// Submissions returns every action submitted so far, in order.
func (c *Channel) Submissions() []Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Submission(nil), c.submissions...)
}

// SubmissionCount returns the number of submitted actions.
func (c *Channel) SubmissionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submissions)
}
