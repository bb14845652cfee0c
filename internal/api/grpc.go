package api

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported through the gRPC health
// protocol. The empty name reports the same status.
const HealthService = "orderwatch.Engine"

// RegisterGRPC registers the health service on the given gRPC server.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s.health)
}

// SetHealthy publishes the engine's health. Monitors keep running while
// degraded; only quote-dependent decisions are held.
func (s *Server) SetHealthy(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthService, status)
}
