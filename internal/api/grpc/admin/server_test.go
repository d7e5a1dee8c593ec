package admin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// startBufconn serves an admin server over an in-memory listener and returns a connected client.
func startBufconn(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 16)
	grpcServer := grpc.NewServer()
	s.Register(grpcServer)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
	})

	return conn
}

// TestServer_SnapshotRoundtrip publishes a snapshot and reads it back over gRPC.
func TestServer_SnapshotRoundtrip(t *testing.T) {
	t.Parallel()

	store := new(Store)
	at := time.Date(2024, 5, 14, 7, 0, 0, 0, time.UTC)

	store.Publish(&Snapshot{
		GeneratedAt: at,
		Schedule: []ScheduledAlarm{
			{At: at.Add(time.Hour), Owner: "alice", Kind: "normal", Hour: 8, Minute: 0, Message: "wake"},
		},
		Clients: []ClientInfo{
			{ConnID: "c-1", Identity: "alice", RemoteAddr: "127.0.0.1:5000", ConnectedAt: at},
		},
		Pending: map[string]int{"bob": 2},
		Serving: true,
	})

	conn := startBufconn(t, NewServer(store))

	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(context.Background(), SnapshotMethod, new(emptypb.Empty), out))

	fields := out.GetFields()
	require.True(t, fields["serving"].GetBoolValue())
	require.Equal(t, at.Format(time.RFC3339), fields["generated_at"].GetStringValue())

	schedule := fields["schedule"].GetListValue().GetValues()
	require.Len(t, schedule, 1)
	require.Equal(t, "wake", schedule[0].GetStructValue().GetFields()["message"].GetStringValue())

	clients := fields["clients"].GetListValue().GetValues()
	require.Len(t, clients, 1)
	require.Empty(t, clients[0].GetStructValue().GetFields()["last_delivery"].GetStringValue())

	require.InDelta(t, 2, fields["pending"].GetStructValue().GetFields()["bob"].GetNumberValue(), 0)
}

// TestServer_Health follows SetServing transitions.
func TestServer_Health(t *testing.T) {
	t.Parallel()

	s := NewServer(new(Store))
	conn := startBufconn(t, s)
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	s.SetServing(true)

	resp, err = client.Check(context.Background(), new(healthpb.HealthCheckRequest))
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

// TestStore_LoadBeforePublish returns an empty snapshot.
func TestStore_LoadBeforePublish(t *testing.T) {
	t.Parallel()

	snapshot := new(Store).Load()
	require.False(t, snapshot.Serving)
	require.Empty(t, snapshot.Schedule)

	out, err := snapshot.ToStruct()
	require.NoError(t, err)
	require.Empty(t, out.GetFields()["generated_at"].GetStringValue())
}
