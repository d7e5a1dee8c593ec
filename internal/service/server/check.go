package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/alarm-push/internal/config"
	"github.com/oshokin/alarm-push/internal/repository/alarms"
	"github.com/oshokin/alarm-push/internal/schedule"
)

// CheckOptions controls the check command.
type CheckOptions struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// AlarmsFile overrides the configured alarms file.
	AlarmsFile string
	// Out receives the report; defaults to stdout.
	Out io.Writer
	// Now is the reference time; defaults to the current time.
	Now time.Time
}

// Check loads the alarms file strictly and prints the schedule the server
// would build from it. Any malformed record is an error.
func Check(ctx context.Context, opts *CheckOptions) error {
	settings, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if opts.AlarmsFile != "" {
		settings.AlarmsFile = opts.AlarmsFile
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	loaded, err := alarms.NewFileRepository(settings.AlarmsFile).Load(ctx)
	if err != nil {
		return fmt.Errorf("load alarms from %s: %w", settings.AlarmsFile, err)
	}

	sched, err := schedule.Build(loaded, now)
	if err != nil {
		return fmt.Errorf("build schedule: %w", err)
	}

	_, _ = fmt.Fprintf(out, "%s: %s alarms scheduled\n", settings.AlarmsFile, humanize.Comma(int64(sched.Len())))

	for _, line := range sched.Describe(now) {
		_, _ = fmt.Fprintln(out, line)
	}

	return nil
}
