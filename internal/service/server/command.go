package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/oshokin/alarm-push/internal/api/grpc/admin"
	"github.com/oshokin/alarm-push/internal/config"
	domain "github.com/oshokin/alarm-push/internal/domain/alarm"
	"github.com/oshokin/alarm-push/internal/logger"
	"github.com/oshokin/alarm-push/internal/repository/alarms"
	"github.com/oshokin/alarm-push/internal/repository/journal"
	"github.com/oshokin/alarm-push/internal/schedule"
	"github.com/oshokin/alarm-push/internal/version"
)

// Options controls the alarm-server process and configuration.
// Non-zero fields override the settings file.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress is the TCP address clients connect to.
	ListenAddress string
	// Interval is the tick timeout and restart delay.
	Interval time.Duration
	// AlarmsFile is the path of the alarm definitions.
	AlarmsFile string
	// AdminAddress enables the gRPC admin endpoint.
	AdminAddress string
	// JournalFile enables the SQLite delivery journal.
	JournalFile string
	// WatchAlarms rebuilds the schedule when the alarms file changes.
	WatchAlarms bool
	// LogLevel overrides the configured log level.
	LogLevel string
}

// errInvalidLogLevel is returned for an unrecognized log level.
var errInvalidLogLevel = errors.New("invalid log level")

// Run starts the alarm server and blocks until ctx is canceled.
// Only configuration errors are returned; runtime errors are logged and the
// listening session is restarted.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-server")

	settings, err := resolveSettings(opts)
	if err != nil {
		return err
	}

	warnAboutPeers(ctx)

	repo := alarms.NewFileRepository(settings.AlarmsFile)

	sched, err := loadSchedule(ctx, repo, time.Now())
	if err != nil {
		return err
	}

	deps := dispatcherOptions{
		interval:     settings.Interval,
		writeTimeout: settings.WriteTimeout,
		capacity:     settings.MaxClients,
		listen:       tcpListener(settings.ListenAddress),
		alarms:       repo,
		schedule:     sched,
	}

	if settings.JournalFile != "" {
		store, openErr := journal.Open(ctx, settings.JournalFile)
		if openErr != nil {
			return fmt.Errorf("open delivery journal: %w", openErr)
		}

		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.WarnKV(ctx, "Unable to close delivery journal", "error", closeErr)
			}
		}()

		deps.journal = store

		logger.InfoKV(ctx, "Delivery journal enabled", "path", settings.JournalFile)
	}

	if settings.AdminAddress != "" {
		deps.snapshots = new(admin.Store)

		adminServer, stop, startErr := startAdmin(ctx, settings.AdminAddress, deps.snapshots)
		if startErr != nil {
			return startErr
		}

		defer stop()

		deps.health = adminServer
	}

	reloads := make(chan struct{}, 1)

	if settings.WatchAlarms {
		watchAlarms(ctx, repo.Path(), reloads)
	}

	d := newDispatcher(deps)
	d.publish(time.Now())

	logger.InfoKV(
		ctx,
		"Alarm server started",
		append([]any{
			"listen_address", settings.ListenAddress,
			"interval", settings.Interval,
			"alarms_file", settings.AlarmsFile,
			"alarms", sched.Len(),
		}, version.Fields()...)...,
	)

	notify(ctx, notifyReady)
	d.serve(ctx, reloads)
	notify(ctx, notifyStopping)

	logger.Info(ctx, "Alarm server stopped")

	return nil
}

// resolveSettings loads the settings file and applies the overrides in opts.
func resolveSettings(opts *Options) (*config.Config, error) {
	settings, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if opts.Interval != 0 {
		settings.Interval = opts.Interval
	}

	if opts.AlarmsFile != "" {
		settings.AlarmsFile = opts.AlarmsFile
	}

	if opts.AdminAddress != "" {
		settings.AdminAddress = opts.AdminAddress
	}

	if opts.JournalFile != "" {
		settings.JournalFile = opts.JournalFile
	}

	if opts.WatchAlarms {
		settings.WatchAlarms = true
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	if err = config.ValidateServer(settings); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	if settings.LogLevel != "" {
		level, ok := logger.ParseLogLevel(settings.LogLevel)
		if !ok {
			return nil, fmt.Errorf("%w %q", errInvalidLogLevel, settings.LogLevel)
		}

		logger.SetLevel(level)
	}

	return settings, nil
}

// loadSchedule reads the alarms file and builds the initial schedule at now.
// A missing file yields an empty schedule and a malformed record keeps the
// alarms before it; a degenerate periodic alarm aborts startup.
func loadSchedule(ctx context.Context, repo alarms.Repository, now time.Time) (*schedule.Schedule, error) {
	loaded, err := repo.Load(ctx)

	var recordErr *alarms.RecordError

	switch {
	case err == nil:
	case errors.Is(err, alarms.ErrNotFound):
		logger.Warn(ctx, "Alarms file not found, starting with an empty schedule")
	case errors.Is(err, domain.ErrZeroInterval):
		return nil, fmt.Errorf("load alarms: %w", err)
	case errors.As(err, &recordErr):
		logger.WarnKV(ctx, "Alarms loading stopped at a malformed record", "error", err, "loaded", len(loaded))
	default:
		return nil, fmt.Errorf("load alarms: %w", err)
	}

	sched, err := schedule.Build(loaded, now)
	if err != nil {
		logger.ErrorKV(ctx, "Alarms removed from schedule", "error", err)
	}

	logSchedule(ctx, sched, now)

	return sched, nil
}

// tcpListener returns a listenFunc binding address.
func tcpListener(address string) listenFunc {
	return func(ctx context.Context) (net.Listener, error) {
		lc := net.ListenConfig{}

		return lc.Listen(ctx, "tcp", address)
	}
}

// startAdmin serves the admin API on address. The returned function stops it.
func startAdmin(ctx context.Context, address string, store *admin.Store) (*admin.Server, func(), error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	grpcServer := grpc.NewServer()
	adminServer := admin.NewServer(store)
	adminServer.Register(grpcServer)

	go func() {
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			logger.ErrorKV(ctx, "Admin server failed", "error", serveErr)
		}
	}()

	logger.InfoKV(ctx, "Admin API listening", "admin_address", address)

	stop := func() {
		adminServer.Shutdown()
		grpcServer.GracefulStop()
		logger.Info(ctx, "Admin API stopped")
	}

	return adminServer, stop, nil
}

// watchAlarms starts the alarms file watcher in the background.
// A watcher that cannot start only disables reloads.
func watchAlarms(ctx context.Context, path string, reloads chan<- struct{}) {
	w, err := newAlarmsWatcher(path)
	if err != nil {
		logger.WarnKV(ctx, "Alarms file watching disabled", "error", err)

		return
	}

	go func() {
		if runErr := w.run(ctx, reloads); runErr != nil {
			logger.WarnKV(ctx, "Alarms file watching stopped", "error", runErr)
		}
	}()

	logger.InfoKV(ctx, "Watching alarms file", "path", path)
}
