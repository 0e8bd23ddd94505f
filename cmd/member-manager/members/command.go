package members

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/member-manager/internal/business"
	"github.com/openkcm/member-manager/internal/cmdutils"
	"github.com/openkcm/member-manager/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Inspect and manage the member set",
	}

	cmd.AddCommand(
		cmdutils.CobraCommand(
			"list",
			"List the members",
			"Connects the wallet identity and prints the member set of the remote process.",
			buildInfo,
			cobra.NoArgs,
			cmdutils.RunAsJob,
			func(ctx context.Context, cfg *config.Config, _ []string) error {
				return business.ListMain(ctx, cfg, os.Stdout)
			},
		),
		cmdutils.CobraCommand(
			"add <address>",
			"Add a member",
			"Asks the remote process to add the address. Only members may add members.",
			buildInfo,
			cobra.ExactArgs(1),
			cmdutils.RunAsJob,
			func(ctx context.Context, cfg *config.Config, args []string) error {
				return business.AddMain(ctx, cfg, args[0], os.Stdout)
			},
		),
		cmdutils.CobraCommand(
			"watch",
			"Keep the member set in sync",
			"Connects once and reloads the member set on every refresh interval, logging joins and leaves.",
			buildInfo,
			cobra.NoArgs,
			cmdutils.RunAsService,
			func(ctx context.Context, cfg *config.Config, _ []string) error {
				return business.WatchMain(ctx, cfg)
			},
		),
	)

	return cmd
}
