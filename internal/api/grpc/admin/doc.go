// Package admin implements the gRPC admin transport of alarm-server.
//
// It serves the standard grpc.health.v1 service, reporting SERVING while a
// client listening session is up, and a small Admin service whose Snapshot
// method returns the schedule, registered clients and pending dispatch counts
// as a google.protobuf.Struct. The event loop publishes an immutable Snapshot
// after every tick; RPC handlers only read the latest one.
package admin
