package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-push/internal/config"
	"github.com/oshokin/alarm-push/internal/service/client"
	"github.com/oshokin/alarm-push/internal/version"
)

// errPortRequired is returned when a hostname is given without a port.
var errPortRequired = errors.New("port must follow hostname")

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for running the alarm client.
	rootCmd = &cobra.Command{
		Use:   "alarm-client [hostname] [port] [client-identity] [reconnect-interval-seconds]",
		Short: "Receive alarm messages pushed by the alarm server.",
		Long: `Connects to the alarm server, announces the client identity and prints every
alarm message the server pushes. When the connection is silent for one interval
a heartbeat is sent; when it fails the client reconnects after the same interval.

Positional arguments override server_addr, identity and interval from the
configuration file. The identity defaults to the current OS user name and a
non-positive interval selects the default of 60 seconds.`,
		Args: cobra.RangeArgs(0, 4), //nolint:mnd // Host, port, identity and interval.
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &client.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Out:        cmd.OutOrStdout(),
			}

			if len(args) == 1 {
				return errPortRequired
			}

			if len(args) > 1 {
				if _, err := config.PortListenAddress(args[1]); err != nil {
					return err
				}

				options.ServerAddress = net.JoinHostPort(args[0], args[1])
			}

			if len(args) > 2 { //nolint:mnd // Third argument.
				options.Identity = args[2]
			}

			if len(args) > 3 { //nolint:mnd // Fourth argument.
				interval, err := config.ParseIntervalSeconds(args[3])
				if err != nil {
					return err
				}

				options.Interval = interval
			}

			return client.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-client CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn or error")
}
