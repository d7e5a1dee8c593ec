//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oshokin/alarm-push/internal/api/grpc/admin"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_SnapshotAndHealth talks to an in-memory admin server.
func TestClient_SnapshotAndHealth(t *testing.T) {
	t.Parallel()

	store := new(admin.Store)
	store.Publish(&admin.Snapshot{
		GeneratedAt: time.Date(2024, 5, 14, 7, 0, 0, 0, time.UTC),
		Pending:     map[string]int{},
		Serving:     true,
	})

	adminServer := admin.NewServer(store)
	adminServer.SetServing(true)

	lis := bufconn.Listen(1 << 16)
	grpcServer := grpc.NewServer()
	adminServer.Register(grpcServer)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	t.Cleanup(grpcServer.Stop)

	c, err := Dial(
		context.Background(),
		"passthrough:///bufnet",
		WithCallTimeout(3*time.Second),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	st, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, st)

	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.True(t, snapshot.GetFields()["serving"].GetBoolValue())
}
