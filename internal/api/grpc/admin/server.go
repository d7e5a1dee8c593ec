package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified name of the Admin service.
	ServiceName = "alarmpush.admin.v1.Admin"
	// SnapshotMethod is the full RPC path of Admin.Snapshot.
	SnapshotMethod = "/" + ServiceName + "/Snapshot"
)

// SnapshotService is the server API of the Admin service.
type SnapshotService interface {
	Snapshot(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// serviceDesc describes the Admin service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by gRPC convention.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SnapshotService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Snapshot",
			Handler:    snapshotHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alarmpush/admin/v1/admin.proto",
}

// Server implements the Admin service and owns the health status.
type Server struct {
	// store provides the latest dispatcher snapshot.
	store *Store
	// health reports serving status to grpc.health.v1 clients.
	health *health.Server
}

// NewServer creates an admin server reading snapshots from store.
func NewServer(store *Store) *Server {
	s := &Server{
		store:  store,
		health: health.NewServer(),
	}

	s.SetServing(false)

	return s
}

// Register attaches the Admin and health services to a gRPC server.
func (s *Server) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(grpcServer, s.health)
}

// SetServing updates the overall and per-service health status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown marks every service NOT_SERVING and stops health watchers.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Snapshot returns the latest dispatcher snapshot.
func (s *Server) Snapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	result, err := s.store.Load().ToStruct()
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode snapshot")
	}

	return result, nil
}

func snapshotHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	//nolint:forcetypeassert // RegisterService guarantees the handler type.
	service := srv.(SnapshotService)

	if interceptor == nil {
		return service.Snapshot(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SnapshotMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return service.Snapshot(ctx, req.(*emptypb.Empty)) //nolint:forcetypeassert // Decoded above.
	}

	return interceptor(ctx, in, info, handler)
}
