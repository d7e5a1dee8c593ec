package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/alarm-push/internal/config"
	"github.com/oshokin/alarm-push/internal/repository/journal"
	"github.com/oshokin/alarm-push/internal/schedule"
)

// DefaultHistoryLimit is the number of deliveries history prints by default.
const DefaultHistoryLimit = 20

var (
	// errJournalNotConfigured is returned when no journal file is known.
	errJournalNotConfigured = errors.New("journal file must be provided")
	// errJournalNotFound is returned when the journal file does not exist.
	errJournalNotFound = errors.New("journal file not found")
)

// HistoryOptions controls the history command.
type HistoryOptions struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// JournalFile overrides the configured journal file.
	JournalFile string
	// Limit caps the number of deliveries; non-positive selects DefaultHistoryLimit.
	Limit int
	// Out receives the report; defaults to stdout.
	Out io.Writer
	// Now is the reference time for relative ages; defaults to the current time.
	Now time.Time
}

// History prints the most recent delivery attempts from the journal, newest first.
func History(ctx context.Context, opts *HistoryOptions) error {
	settings, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	path := settings.JournalFile
	if opts.JournalFile != "" {
		path = opts.JournalFile
	}

	if path == "" {
		return errJournalNotConfigured
	}

	// Opening would create an empty database.
	if _, err = os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", errJournalNotFound, path)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	store, err := journal.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open delivery journal: %w", err)
	}

	defer func() {
		_ = store.Close()
	}()

	deliveries, err := store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("read delivery journal: %w", err)
	}

	if len(deliveries) == 0 {
		_, _ = fmt.Fprintf(out, "%s: no deliveries recorded\n", path)

		return nil
	}

	for _, d := range deliveries {
		_, _ = fmt.Fprintf(
			out,
			"%s (%s) %s %s: %s [%s]\n",
			d.At.In(now.Location()).Format(schedule.TimeLayout),
			humanize.RelTime(d.At, now, "ago", "from now"),
			d.Status,
			d.Owner,
			d.Message,
			d.RemoteAddr,
		)
	}

	return nil
}
