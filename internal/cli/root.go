package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

// NewRootCommand builds the librarian command tree.
func NewRootCommand(version, commit string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Library catalog and loan manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (JSON, YAML or TOML); environment variables override it")

	// openApp is shared by every command that needs a data source.
	openApp := func(ctx context.Context) (*entrypoint.App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return entrypoint.New(ctx, cfg)
	}

	root.AddCommand(
		newInitCommand(openApp),
		newShellCommand(openApp),
		newOverdueCommand(openApp),
		newWatchOverdueCommand(openApp),
		newVersionCommand(version, commit),
	)
	return root
}

type appOpener func(ctx context.Context) (*entrypoint.App, error)

func newInitCommand(openApp appOpener) *cobra.Command {
	var seed, force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the storage layout of the configured data source",
		Long: "Create the storage layout of the configured data source. Existing data is kept.\n" +
			"With --seed the data source is replaced by the sample catalog, which requires --force\n" +
			"when it already holds data.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.InitStore(cmd.Context(), seed, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s data source\n", app.Selector.Kind())
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "replace the contents with the sample catalog")
	cmd.Flags().BoolVar(&force, "force", false, "allow --seed to overwrite existing data")
	return cmd
}

func newShellCommand(openApp appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			return NewShell(app, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
		},
	}
}

func newOverdueCommand(openApp appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Print the overdue loans once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			_, err = app.OverdueReportScheduler(cmd.OutOrStdout()).RunNow(cmd.Context())
			return err
		},
	}
}

func newWatchOverdueCommand(openApp appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "watch-overdue",
		Short: "Print the overdue loans on OVERDUE_REPORT_SCHEDULE until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			reports := app.OverdueReportScheduler(cmd.OutOrStdout())
			if err := reports.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			reports.Stop()
			return nil
		},
	}
}

func newVersionCommand(version, commit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), version, commit)
		},
	}
}

func printVersion(w io.Writer, version, commit string) {
	fmt.Fprintf(w, "librarian %s (commit %s)\n", version, commit)
}
