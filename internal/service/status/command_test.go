package status

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-push/internal/api/grpc/admin"
)

// testSnapshot returns a snapshot generated at now.
func testSnapshot(now time.Time) *admin.Snapshot {
	return &admin.Snapshot{
		GeneratedAt: now.Add(-5 * time.Second),
		Schedule: []admin.ScheduledAlarm{
			{At: now.Add(time.Hour), Owner: "alice", Kind: "normal", Hour: 8, Minute: 0, Message: "wake"},
		},
		Clients: []admin.ClientInfo{
			{ConnID: "c-1", Identity: "alice", RemoteAddr: "127.0.0.1:5000", ConnectedAt: now.Add(-3 * time.Minute)},
			{ConnID: "c-2", RemoteAddr: "127.0.0.1:5001", ConnectedAt: now.Add(-time.Minute)},
		},
		Pending: map[string]int{"carol": 2, "bob": 1},
		Serving: true,
	}
}

// TestRender prints schedule, clients and pending counts.
func TestRender(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 14, 7, 0, 0, 0, time.UTC)

	snapshot, err := testSnapshot(now).ToStruct()
	require.NoError(t, err)

	var out bytes.Buffer

	require.NoError(t, render(&out, healthpb.HealthCheckResponse_SERVING, snapshot, now))

	report := out.String()
	require.Contains(t, report, "Status: SERVING (snapshot 5 seconds ago)")
	require.Contains(t, report, "Schedule (1):")
	require.Contains(t, report, "(1 hour from now) alice: 8:00 (normal) wake")
	require.Contains(t, report, "c-1 alice from 127.0.0.1:5000, connected 3 minutes ago, last delivery never")
	require.Contains(t, report, "c-2 <unidentified> from 127.0.0.1:5001")
	require.Contains(t, report, "Pending (2 owners):\n  bob: 1\n  carol: 2\n")
}

// TestRun queries a live admin endpoint.
func TestRun(t *testing.T) {
	t.Parallel()

	store := new(admin.Store)
	store.Publish(testSnapshot(time.Now()))

	adminServer := admin.NewServer(store)
	adminServer.SetServing(true)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer()
	adminServer.Register(grpcServer)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	t.Cleanup(grpcServer.Stop)

	absent := filepath.Join(t.TempDir(), "absent.yaml")

	var out bytes.Buffer

	require.NoError(t, Run(context.Background(), &Options{
		ConfigPath:   absent,
		AdminAddress: lis.Addr().String(),
		JSON:         true,
		Out:          &out,
	}))

	decoded := new(structpb.Struct)
	require.NoError(t, protojson.Unmarshal(out.Bytes(), decoded))
	require.True(t, decoded.GetFields()["serving"].GetBoolValue())

	schedule := decoded.GetFields()["schedule"].GetListValue().GetValues()
	require.Len(t, schedule, 1)
	require.Equal(t, "alice", schedule[0].GetStructValue().GetFields()["owner"].GetStringValue())

	out.Reset()

	require.NoError(t, Run(context.Background(), &Options{
		ConfigPath:   absent,
		AdminAddress: lis.Addr().String(),
		Out:          &out,
	}))
	require.Contains(t, out.String(), "Status: SERVING")
}

// TestRun_RequiresAddress fails without an admin endpoint.
func TestRun_RequiresAddress(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	require.ErrorIs(t, err, errAdminAddressRequired)
}
