// Package health serves grpc.health.v1 for orchestrators probing the
// lock service.
package health

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported alongside the overall ("") status.
const Service = "thesislock.v1.Lock"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// New registers the health service. Both statuses start NOT_SERVING.
func New(logger *zap.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, hs)

	return &Server{grpc: g, health: hs, logger: logger}
}

func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(Service, st)
}

// Serve blocks accepting connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("health server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop marks the service NOT_SERVING and drains in-flight checks.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
