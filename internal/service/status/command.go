package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-push/internal/config"
	"github.com/oshokin/alarm-push/internal/logger"
	"github.com/oshokin/alarm-push/internal/schedule"
	"github.com/oshokin/alarm-push/internal/service/common"
)

// Options configures the status command.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// AdminAddress overrides the configured admin endpoint.
	AdminAddress string
	// JSON prints the raw snapshot as protobuf JSON.
	JSON bool
	// Out receives the report; defaults to stdout.
	Out io.Writer
}

// errAdminAddressRequired is returned when no admin endpoint is known.
var errAdminAddressRequired = errors.New("admin address must be provided (admin_addr or --admin)")

// Run fetches the health status and snapshot of a running server and prints them.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-status")

	settings, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	address := settings.AdminAddress
	if opts.AdminAddress != "" {
		address = opts.AdminAddress
	}

	if address == "" {
		return errAdminAddressRequired
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	client, err := common.Dial(ctx, address, common.WithCallTimeout(settings.WriteTimeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	health, err := client.Health(ctx)
	if err != nil {
		return err
	}

	snapshot, err := client.Snapshot(ctx)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Snapshot received", "admin_address", address, "health", health.String())

	if opts.JSON {
		data, marshalErr := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(snapshot)
		if marshalErr != nil {
			return fmt.Errorf("marshal snapshot: %w", marshalErr)
		}

		_, err = fmt.Fprintln(out, string(data))

		return err
	}

	return render(out, health, snapshot, time.Now())
}

// render prints a human-readable report of the snapshot.
func render(out io.Writer, health healthpb.HealthCheckResponse_ServingStatus, snapshot *structpb.Struct, now time.Time) error {
	fields := snapshot.GetFields()
	w := &errWriter{out: out}

	w.printf("Status: %s (snapshot %s)\n", health, relative(fields["generated_at"].GetStringValue(), now))

	entries := fields["schedule"].GetListValue().GetValues()
	w.printf("\nSchedule (%d):\n", len(entries))

	for _, v := range entries {
		e := v.GetStructValue().GetFields()
		w.printf(
			"  %s (%s) %s: %d:%02d (%s) %s\n",
			formatTime(e["at"].GetStringValue()),
			relative(e["at"].GetStringValue(), now),
			e["owner"].GetStringValue(),
			int(e["hour"].GetNumberValue()),
			int(e["minute"].GetNumberValue()),
			e["kind"].GetStringValue(),
			e["message"].GetStringValue(),
		)
	}

	clients := fields["clients"].GetListValue().GetValues()
	w.printf("\nClients (%d):\n", len(clients))

	for _, v := range clients {
		c := v.GetStructValue().GetFields()

		identity := c["identity"].GetStringValue()
		if identity == "" {
			identity = "<unidentified>"
		}

		w.printf(
			"  %s %s from %s, connected %s, last delivery %s\n",
			c["conn_id"].GetStringValue(),
			identity,
			c["remote_addr"].GetStringValue(),
			relative(c["connected_at"].GetStringValue(), now),
			relative(c["last_delivery"].GetStringValue(), now),
		)
	}

	pending := fields["pending"].GetStructValue().GetFields()
	owners := make([]string, 0, len(pending))

	for owner := range pending {
		owners = append(owners, owner)
	}

	slices.Sort(owners)

	w.printf("\nPending (%d owners):\n", len(owners))

	for _, owner := range owners {
		w.printf("  %s: %d\n", owner, int(pending[owner].GetNumberValue()))
	}

	return w.err
}

// relative renders an RFC 3339 timestamp relative to now, or "never" when empty.
func relative(value string, now time.Time) string {
	if value == "" {
		return "never"
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}

	return humanize.RelTime(t, now, "ago", "from now")
}

// formatTime renders an RFC 3339 timestamp in the local schedule layout.
func formatTime(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}

	return t.Local().Format(schedule.TimeLayout)
}

// errWriter stops writing after the first error.
type errWriter struct {
	// out is the destination.
	out io.Writer
	// err is the first write error.
	err error
}

func (w *errWriter) printf(format string, args ...any) {
	if w.err != nil {
		return
	}

	_, w.err = fmt.Fprintf(w.out, format, args...)
}
