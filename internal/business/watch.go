package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/member-manager/internal/action"
	"github.com/openkcm/member-manager/internal/config"
	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/session"
)

const defaultRefreshInterval = time.Minute

// WatchMain keeps the member list in sync until ctx is done.
func WatchMain(ctx context.Context, cfg *config.Config) error {
	controller, closeFn, err := initController(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the session controller: %w", err)
	}
	defer closeFn()

	return Watch(ctx, controller, cfg.Watch.RefreshInterval)
}

// Watch connects once and then, on every tick, re-checks the identity and
// reloads the member set, logging who joined or left. Failed ticks are
// logged and retried on the next tick.
func Watch(ctx context.Context, controller *session.Controller, interval time.Duration) error {
	if err := controller.Connect(ctx); err != nil {
		// A failed first load still leaves the session connected.
		var failure *action.Failure
		if !errors.As(err, &failure) {
			return fmt.Errorf("connecting: %w", err)
		}
		slogctx.Error(ctx, "Initial member list not loaded", "error", err)
	}

	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	previous := controller.Members()
	slogctx.Info(ctx, "Watching members", "members", len(previous), "admin", controller.IsAdmin())

	c := time.Tick(interval)
	for {
		select {
		case <-c:
		case <-ctx.Done():
			return nil
		}

		if controller.State().Status != session.Connected {
			if err := controller.Connect(ctx); err != nil {
				slogctx.Error(ctx, "Failed to reconnect", "error", err)
				continue
			}
		} else if err := controller.CheckIdentity(ctx); err != nil {
			slogctx.Error(ctx, "Failed to check identity", "error", err)
			continue
		}

		if out := controller.Refresh(ctx); !out.OK() {
			slogctx.Error(ctx, "Failed to refresh members", "reason", out.Err.Reason)
			continue
		}

		current := controller.Members()
		added, removed := diffMembers(previous, current)
		if len(added) > 0 || len(removed) > 0 {
			slogctx.Info(ctx, "Members changed", "added", added, "removed", removed, "admin", controller.IsAdmin())
		}
		previous = current
	}
}

func diffMembers(previous, current []identity.Identity) (added, removed []identity.Identity) {
	before := make(map[identity.Identity]struct{}, len(previous))
	for _, m := range previous {
		before[m] = struct{}{}
	}
	after := make(map[identity.Identity]struct{}, len(current))
	for _, m := range current {
		after[m] = struct{}{}
		if _, ok := before[m]; !ok {
			added = append(added, m)
		}
	}
	for _, m := range previous {
		if _, ok := after[m]; !ok {
			removed = append(removed, m)
		}
	}
	return added, removed
}
