// Package remotevalkey relays actions to a remote process through Valkey.
// Actions are appended to the process inbox stream; the stream entry ID is
// the correlation token. The process answers by pushing a JSON result onto
// the result list of that token.
package remotevalkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/remote"
	"github.com/openkcm/member-manager/internal/serviceerr"
)

const (
	fieldTarget = "Target"
	fieldOwner  = "Owner"
	fieldTags   = "Tags"

	minBlock = 100 * time.Millisecond
)

var (
	ErrAddToInbox  = errors.New("adding action to process inbox")
	ErrPopResult   = errors.New("popping result from store")
	ErrPushResult  = errors.New("pushing result into store")
	ErrDecodeEntry = errors.New("decoding result entry")
)

type Channel struct {
	valkey valkey.Client
	keys   keyspace
	cache  *cache.Cache

	pollInterval time.Duration
	resultTTL    time.Duration
}

var _ = remote.Channel(&Channel{})

type Option func(*Channel)

// WithPollInterval bounds a single blocking pop. Await loops until ctx is done.
func WithPollInterval(d time.Duration) Option {
	return func(c *Channel) { c.pollInterval = d }
}

// WithResultTTL sets how long results stay in the store and in the local cache.
func WithResultTTL(d time.Duration) Option {
	return func(c *Channel) { c.resultTTL = d }
}

func NewChannel(valkeyClient valkey.Client, prefix string, opts ...Option) *Channel {
	c := &Channel{
		valkey:       valkeyClient,
		keys:         newKeyspace(prefix),
		pollInterval: 5 * time.Second,
		resultTTL:    10 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.cache = cache.New(c.resultTTL, 2*c.resultTTL)

	return c
}

func (c *Channel) Submit(ctx context.Context, target remote.ProcessID, tags []remote.Tag, signer identity.Identity) (remote.Token, error) {
	encodedTags, err := encode(tags)
	if err != nil {
		return "", errors.Join(serviceerr.ErrSubmission, err)
	}

	fields := c.valkey.B().Xadd().Key(c.keys.inbox(target)).Id("*").FieldValue().
		FieldValue(fieldTarget, string(target)).
		FieldValue(fieldOwner, signer.String()).
		FieldValue(fieldTags, encodedTags)
	for _, tag := range tags {
		fields = fields.FieldValue(tag.Name, tag.Value)
	}

	id, err := c.valkey.Do(ctx, fields.Build()).ToString()
	if err != nil {
		return "", errors.Join(serviceerr.ErrSubmission, ErrAddToInbox, err)
	}

	slogctx.Debug(ctx, "Added action to process inbox", "process", target, "token", id)

	return remote.Token(id), nil
}

func (c *Channel) AwaitResult(ctx context.Context, token remote.Token, target remote.ProcessID) (remote.Result, error) {
	key := c.keys.result(target, token)
	if cached, ok := c.cache.Get(key); ok {
		return checkResult(cached.(remote.Result))
	}

	for {
		if err := ctx.Err(); err != nil {
			return remote.Result{}, err
		}

		entry, err := c.pop(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return remote.Result{}, ctx.Err()
			}
			return remote.Result{}, errors.Join(serviceerr.ErrResolution, err)
		}
		if entry == "" {
			continue
		}

		var result remote.Result
		if err := decode(entry, &result); err != nil {
			return remote.Result{}, errors.Join(serviceerr.ErrResolution, ErrDecodeEntry, err)
		}

		c.cache.SetDefault(key, result)
		slogctx.Debug(ctx, "Received action result", "process", target, "token", token, "messages", len(result.Messages))

		return checkResult(result)
	}
}

// PublishResult stores the result of the action identified by token. It is
// the counterpart a process adapter uses to answer an action.
func (c *Channel) PublishResult(ctx context.Context, target remote.ProcessID, token remote.Token, result remote.Result) error {
	entry, err := encode(result)
	if err != nil {
		return errors.Join(ErrPushResult, err)
	}

	key := c.keys.result(target, token)
	cmds := valkey.Commands{
		c.valkey.B().Rpush().Key(key).Element(entry).Build(),
		c.valkey.B().Expire().Key(key).Seconds(int64(c.resultTTL.Seconds())).Build(),
	}
	for _, resp := range c.valkey.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return errors.Join(ErrPushResult, err)
		}
	}

	return nil
}

// pop blocks on the result list for at most one poll interval. An empty
// entry means nothing arrived yet.
func (c *Channel) pop(ctx context.Context, key string) (string, error) {
	block := c.pollInterval
	if deadline, ok := ctx.Deadline(); ok {
		block = min(block, time.Until(deadline))
	}
	block = max(block, minBlock)

	values, err := c.valkey.Do(ctx, c.valkey.B().Blpop().Key(key).Timeout(block.Seconds()).Build()).AsStrSlice()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", nil
		}
		return "", errors.Join(ErrPopResult, err)
	}
	if len(values) != 2 {
		return "", fmt.Errorf("%w: unexpected reply length %d", ErrPopResult, len(values))
	}

	return values[1], nil
}

func checkResult(result remote.Result) (remote.Result, error) {
	if result.Error != "" {
		return remote.Result{}, fmt.Errorf("%w: %s", serviceerr.ErrResolution, result.Error)
	}

	return result, nil
}
