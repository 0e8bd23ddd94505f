package cmdutils

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/openkcm/common-sdk/pkg/status"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/member-manager/internal/config"
)

const (
	healthStatusTimeout = 5 * time.Second
)

// BusinessFunc runs a command with the loaded configuration and the
// positional arguments of the command line.
type BusinessFunc func(ctx context.Context, cfg *config.Config, args []string) error

// WrapperFunc prepares the ambient stack around a BusinessFunc.
type WrapperFunc func(ctx context.Context, fn BusinessFunc, cfg *config.Config, args []string) error

func CobraCommand(
	use, short, long, buildInfo string,
	args cobra.PositionalArgs,
	wrapperFunc WrapperFunc,
	businessFunc BusinessFunc,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(buildInfo)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			err = wrapperFunc(cmd.Context(), businessFunc, cfg, args)
			if err != nil {
				return fmt.Errorf("running %s: %w", use, err)
			}

			return nil
		},
	}
}

func RunAsService(ctx context.Context, fn BusinessFunc, cfg *config.Config, args []string) error {
	return run(ctx, true, true, fn, cfg, args)
}

func RunAsJob(ctx context.Context, fn BusinessFunc, cfg *config.Config, args []string) error {
	return run(ctx, false, false, fn, cfg, args)
}

func run(ctx context.Context, withTelemetry, withStatusServer bool, fn BusinessFunc, cfg *config.Config, args []string) error {
	// LoggerConfig
	err := logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}
	slogctx.Debug(ctx, "Starting the application", slog.Any("config", cfg))

	// OpenTelemetry
	if withTelemetry {
		err = otlp.Init(ctx, &cfg.Application, &cfg.Telemetry, &cfg.Logger)
		if err != nil {
			return oops.In("main").Wrapf(err, "Failed to load the telemetry")
		}
	}

	// Status Server
	if withStatusServer {
		go func() {
			err := startStatusServer(ctx, cfg)
			if err != nil {
				slogctx.Error(ctx, "Failure on the status server", "error", err)
				_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
			}
		}()
	}

	// Business Logic
	err = fn(ctx, cfg, args)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to run the member manager")
	}

	return nil
}

func loadConfig(buildInfo string) (*config.Config, error) {
	defaultValues := map[string]any{}
	cfg := &config.Config{}

	err := commoncfg.LoadConfig(
		cfg,
		defaultValues,
		"/etc/member-manager",
		"$HOME/.member-manager",
		".",
	)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// Update Version
	err = commoncfg.UpdateConfigVersion(
		&cfg.BaseConfig,
		buildInfo,
	)
	if err != nil {
		return nil, fmt.Errorf("updating the version configuration: %w", err)
	}

	return cfg, nil
}

func startStatusServer(ctx context.Context, cfg *config.Config) error {
	liveness := status.WithLiveness(
		health.NewHandler(
			health.NewChecker(health.WithDisabledAutostart()),
		),
	)

	healthOptions := []health.Option{
		health.WithDisabledAutostart(),
		health.WithTimeout(healthStatusTimeout),
		health.WithStatusListener(statusListener),
	}

	readiness := status.WithReadiness(
		health.NewHandler(
			health.NewChecker(healthOptions...),
		),
	)

	err := status.Start(ctx, &cfg.BaseConfig, liveness, readiness)
	if err != nil {
		return fmt.Errorf("starting status server: %w", err)
	}

	return nil
}

func statusListener(ctx context.Context, state health.State) {
	attrs := make([]any, 0, len(state.CheckState)+1)
	attrs = append(attrs, slog.Any("status", state.Status))
	for name, check := range state.CheckState {
		attrs = append(attrs, slog.Group(name, slog.Any("status", check.Status), slog.Any("error", check.Result)))
	}

	slogctx.Info(ctx, "readiness status changed", attrs...)
}
