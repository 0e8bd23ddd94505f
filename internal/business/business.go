package business

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/member-manager/internal/action"
	"github.com/openkcm/member-manager/internal/config"
	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/identity/wallet"
	"github.com/openkcm/member-manager/internal/membership"
	"github.com/openkcm/member-manager/internal/remote"
	"github.com/openkcm/member-manager/internal/session"

	remotevalkey "github.com/openkcm/member-manager/internal/remote/valkey"
)

// ListMain connects and prints the member list.
func ListMain(ctx context.Context, cfg *config.Config, w io.Writer) error {
	controller, closeFn, err := initController(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session controller: %w", err)
	}
	defer closeFn()

	return List(ctx, controller, w)
}

// AddMain connects and adds member.
func AddMain(ctx context.Context, cfg *config.Config, member string, w io.Writer) error {
	controller, closeFn, err := initController(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session controller: %w", err)
	}
	defer closeFn()

	return Add(ctx, controller, identity.Identity(member), w)
}

// List connects the controller and prints the members in the order the
// remote process returned them.
func List(ctx context.Context, controller *session.Controller, w io.Writer) error {
	if err := controller.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	printState(w, controller.State())

	return nil
}

// Add connects the controller, adds member and prints the refreshed list.
func Add(ctx context.Context, controller *session.Controller, member identity.Identity, w io.Writer) error {
	if err := controller.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	out := controller.AddMember(ctx, member)
	if !out.OK() {
		return fmt.Errorf("adding member %s: %w", member, out.Err)
	}

	_, _ = fmt.Fprintln(w, out.Text)
	printState(w, controller.State())

	return nil
}

func printState(w io.Writer, state session.State) {
	_, _ = fmt.Fprintf(w, "identity: %s (admin: %t)\n", state.Identity, state.IsAdmin)
	_, _ = fmt.Fprintf(w, "members (%d):\n", len(state.Members))
	for _, m := range state.Members {
		_, _ = fmt.Fprintf(w, "  %s\n", m)
	}
	if state.LastError != "" {
		_, _ = fmt.Fprintf(w, "last error: %s\n", state.LastError)
	}
}

func initController(ctx context.Context, cfg *config.Config) (_ *session.Controller, closeFn func(), _ error) {
	keyfile, err := commoncfg.LoadValueFromSourceRef(cfg.Wallet.Keyfile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading wallet keyfile: %w", err)
	}

	valkeyOpts, err := config.MakeValkeyOptions(cfg.ValKey)
	if err != nil {
		return nil, nil, fmt.Errorf("making valkey options from config: %w", err)
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	channel := remotevalkey.NewChannel(valkeyClient, cfg.ValKey.Prefix,
		remotevalkey.WithPollInterval(cfg.ValKey.PollInterval),
		remotevalkey.WithResultTTL(cfg.ValKey.ResultTTL),
	)

	controller, err := newController(cfg, wallet.NewProvider(keyfile, toScopes(cfg.Wallet.AllowedScopes)), channel)
	if err != nil {
		valkeyClient.Close()
		return nil, nil, err
	}

	slogctx.Debug(ctx, "Initialised the session controller", "process", cfg.Process.ID)

	return controller, valkeyClient.Close, nil
}

func newController(cfg *config.Config, provider identity.Provider, channel remote.Channel) (*session.Controller, error) {
	if cfg.Process.ID == "" {
		return nil, errors.New("process id is not configured")
	}

	opts := []action.Option{action.WithResultTimeout(cfg.Action.ResultTimeout)}
	if cfg.Action.SerializePerIdentity {
		opts = append(opts, action.WithSerializedIssuers())
	}

	store := membership.NewStore()
	actions, err := action.NewClient(channel, remote.ProcessID(cfg.Process.ID), store, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating action client: %w", err)
	}

	return session.NewController(provider, actions, store, toScopes(cfg.Process.Scopes)), nil
}

func toScopes(values []string) []identity.Scope {
	scopes := make([]identity.Scope, 0, len(values))
	for _, v := range values {
		scopes = append(scopes, identity.Scope(v))
	}
	return scopes
}
