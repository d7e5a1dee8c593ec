package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-push/internal/config"
	"github.com/oshokin/alarm-push/internal/service/server"
	"github.com/oshokin/alarm-push/internal/service/status"
	"github.com/oshokin/alarm-push/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// alarmsFile with the alarm definitions.
	alarmsFile string
	// adminAddress of the gRPC admin endpoint.
	adminAddress string
	// journalFile of the SQLite delivery journal.
	journalFile string
	// watchAlarms enables reloading the alarms file on change.
	watchAlarms bool
	// logLevel overrides the configured log level.
	logLevel string
	// statusJSON prints the status snapshot as JSON.
	statusJSON bool
	// historyLimit caps the deliveries printed by history.
	historyLimit int

	// rootCmd represents the base command for running the alarm server.
	rootCmd = &cobra.Command{
		Use:   "alarm-server [listen-port] [tick-interval-seconds]",
		Short: "Push scheduled alarm messages to identified TCP clients.",
		Long: `Starts the alarm server that schedules the alarms from the alarms file and
pushes their messages to connected clients whose identity matches the alarm owner.

Alarms fired while their owner is offline are kept until a matching client
identifies itself. The listen port and tick interval can be given as positional
arguments and override the configuration file; a non-positive interval selects
the default of 60 seconds.`,
		Args: cobra.MaximumNArgs(2), //nolint:mnd // Port and interval.
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &server.Options{
				ConfigPath:   configPath,
				AlarmsFile:   alarmsFile,
				AdminAddress: adminAddress,
				JournalFile:  journalFile,
				WatchAlarms:  watchAlarms,
				LogLevel:     logLevel,
			}

			if len(args) > 0 {
				listenAddress, err := config.PortListenAddress(args[0])
				if err != nil {
					return err
				}

				options.ListenAddress = listenAddress
			}

			if len(args) > 1 {
				interval, err := config.ParseIntervalSeconds(args[1])
				if err != nil {
					return err
				}

				options.Interval = interval
			}

			return server.Run(ctx, options)
		},
	}

	// checkCmd validates the alarms file and prints the resulting schedule.
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Validate the alarms file and print the schedule.",
		Long: `Loads the alarms file strictly, failing on the first malformed record, and
prints every alarm at its next trigger time as the server would schedule it now.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return server.Check(cmd.Context(), &server.CheckOptions{
				ConfigPath: configPath,
				AlarmsFile: alarmsFile,
				Out:        cmd.OutOrStdout(),
			})
		},
	}

	// historyCmd lists recent delivery attempts from the journal.
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recent alert deliveries from the delivery journal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return server.History(cmd.Context(), &server.HistoryOptions{
				ConfigPath:  configPath,
				JournalFile: journalFile,
				Limit:       historyLimit,
				Out:         cmd.OutOrStdout(),
			})
		},
	}

	// statusCmd queries a running server over the admin endpoint.
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the schedule, clients and pending alarms of a running server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return status.Run(cmd.Context(), &status.Options{
				ConfigPath:   configPath,
				AdminAddress: adminAddress,
				JSON:         statusJSON,
				Out:          cmd.OutOrStdout(),
			})
		},
	}
)

// Execute runs the alarm-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&alarmsFile, "alarms", "a", "", "path to alarms file (overrides alarms_file)")
	rootCmd.PersistentFlags().
		StringVar(&adminAddress, "admin", "", "gRPC admin endpoint address (overrides admin_addr)")
	rootCmd.PersistentFlags().
		StringVarP(&journalFile, "journal", "j", "", "SQLite delivery journal path (overrides journal_file)")

	rootCmd.Flags().BoolVarP(&watchAlarms, "watch", "w", false, "reload the alarms file when it changes")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn or error")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
	historyCmd.Flags().
		IntVarP(&historyLimit, "limit", "n", server.DefaultHistoryLimit, "number of deliveries to print")

	rootCmd.AddCommand(checkCmd, statusCmd, historyCmd)
}
