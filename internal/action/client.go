// Package action sends tagged actions to the remote process, awaits the
// correlated results and classifies them into outcomes.
//
// Actions are not serialized unless WithSerializedIssuers is set: a
// GetMembers submitted before an in-flight AddMember may resolve after it.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/remote"
	"github.com/openkcm/member-manager/internal/serviceerr"
)

const DefaultResultTimeout = 30 * time.Second

// MemberLookup answers whether an identity is currently a member. Being a
// member is what makes an issuer an admin.
type MemberLookup interface {
	IsMember(id identity.Identity) bool
}

// Request is a single action. Params are keyed by parameter name, e.g.
// ParamMemberToAdd.
type Request struct {
	Kind   Kind
	Params map[string]string
	Issuer identity.Identity
}

type Client struct {
	channel remote.Channel
	process remote.ProcessID
	members MemberLookup

	resultTimeout time.Duration
	lanes         *lanes

	metrics *metrics
	tracer  trace.Tracer
}

type Option func(*Client)

// WithResultTimeout bounds the wait for a correlated result.
func WithResultTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.resultTimeout = d
		}
	}
}

// WithSerializedIssuers runs the actions of one issuer one after another in
// submission order.
func WithSerializedIssuers() Option {
	return func(c *Client) { c.lanes = newLanes() }
}

func NewClient(channel remote.Channel, process remote.ProcessID, members MemberLookup, opts ...Option) (*Client, error) {
	if process == "" {
		return nil, fmt.Errorf("%w: process id is empty", serviceerr.ErrInvalidRequest)
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	c := &Client{
		channel:       channel,
		process:       process,
		members:       members,
		resultTimeout: DefaultResultTimeout,
		metrics:       m,
		tracer:        otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// FetchMembers asks the remote process for the current member set.
func (c *Client) FetchMembers(ctx context.Context, issuer identity.Identity) Outcome {
	return c.Submit(ctx, Request{Kind: GetMembers, Issuer: issuer})
}

// AddMember asks the remote process to add member. Non-admin issuers are
// rejected without contacting the remote process; the remote process is
// still expected to check the signer itself.
func (c *Client) AddMember(ctx context.Context, issuer, member identity.Identity) Outcome {
	return c.Submit(ctx, Request{
		Kind:   AddMember,
		Params: map[string]string{ParamMemberToAdd: member.String()},
		Issuer: issuer,
	})
}

// Submit runs one action end to end. It never returns an error: every
// failure is reported through Outcome.Err.
func (c *Client) Submit(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()

	ctx = slogctx.With(ctx,
		"action_id", uuid.NewString(),
		"kind", req.Kind,
		"issuer", req.Issuer,
	)
	ctx, span := c.tracer.Start(ctx, "action."+string(req.Kind),
		trace.WithAttributes(attribute.String("action.kind", string(req.Kind))))

	defer func() {
		if r := recover(); r != nil {
			out = failed(req.Kind, out.Token, "unexpected error", fmt.Errorf("%w: panic: %v", serviceerr.ErrResolution, r))
		}

		c.report(ctx, span, out)
		c.metrics.record(ctx, out, time.Since(start))
		span.End()
	}()

	proto, ok := kinds[req.Kind]
	if !ok {
		return failed(req.Kind, "", fmt.Sprintf("unknown action %q", req.Kind), serviceerr.ErrInvalidRequest)
	}

	if proto.adminOnly && !c.isAdmin(req.Issuer) {
		return failed(req.Kind, "", ReasonNotAdmin, serviceerr.ErrAuthorization)
	}

	if req.Issuer.IsZero() {
		return failed(req.Kind, "", "not connected", serviceerr.ErrNoIdentity)
	}

	tags, err := proto.tags(req.Kind, req.Params)
	if err != nil {
		return failed(req.Kind, "", "invalid action parameters", err)
	}

	if c.lanes != nil {
		release, err := c.lanes.acquire(ctx, req.Issuer)
		if err != nil {
			return failed(req.Kind, "", "action canceled while queued", errors.Join(serviceerr.ErrSubmission, err))
		}
		defer release()
	}

	token, err := c.channel.Submit(ctx, c.process, tags, req.Issuer)
	if err != nil {
		return failed(req.Kind, "", "sending action failed", ensure(serviceerr.ErrSubmission, err))
	}

	span.SetAttributes(attribute.String("action.token", string(token)))
	slogctx.Debug(ctx, "Submitted action", "token", token)

	awaitCtx, cancel := context.WithTimeout(ctx, c.resultTimeout)
	defer cancel()

	result, err := c.channel.AwaitResult(awaitCtx, token, c.process)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return failed(req.Kind, token, "action canceled", errors.Join(serviceerr.ErrResolution, ctx.Err()))
		case errors.Is(awaitCtx.Err(), context.DeadlineExceeded):
			return failed(req.Kind, token, ReasonTimeout, errors.Join(serviceerr.ErrTimeout, err))
		default:
			return failed(req.Kind, token, "fetching result failed", ensure(serviceerr.ErrResolution, err))
		}
	}

	slogctx.Debug(ctx, "Received action result",
		"token", token,
		"messages", len(result.Messages),
		"spawns", len(result.Spawns),
		"output", result.Output,
	)

	out = Outcome{Kind: req.Kind, Token: token}
	if f := proto.decode(&out, result); f != nil {
		out.Err = f
	}

	return out
}

func (c *Client) isAdmin(issuer identity.Identity) bool {
	return !issuer.IsZero() && c.members != nil && c.members.IsMember(issuer)
}

func (c *Client) report(ctx context.Context, span trace.Span, out Outcome) {
	if out.OK() {
		span.SetStatus(codes.Ok, "")
		slogctx.Info(ctx, "Action succeeded", "token", out.Token, "members", len(out.Members), "text", out.Text)
		return
	}

	span.SetStatus(codes.Error, out.Err.Reason)
	span.RecordError(out.Err)
	slogctx.Error(ctx, "Action failed", "token", out.Token, "reason", out.Err.Reason, "error", out.Err.Err)
}

// ensure wraps err with sentinel unless it already carries it.
func ensure(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.Join(sentinel, err)
}
