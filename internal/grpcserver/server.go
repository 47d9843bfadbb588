// Package grpcserver exposes the standard gRPC health service. Each platform
// is reported as its own service, "passport.<platform>", so orchestrators
// can tell which integrations are usable.
package grpcserver

import (
	"log"
	"net"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServicePrefix prefixes every per-platform health service name.
const ServicePrefix = "passport."

// Server wraps a grpc.Server carrying the health service.
type Server struct {
	grpc      *grpc.Server
	health    *health.Server
	readiness func() map[string]error
}

// New builds the server. readiness reports a configuration error per
// platform, nil meaning ready.
func New(readiness func() map[string]error) *Server {
	s := &Server{
		grpc:      grpc.NewServer(),
		health:    health.NewServer(),
		readiness: readiness,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.Refresh()
	return s
}

// Refresh recomputes every platform status. The overall service ("") is
// always SERVING while the process runs.
func (s *Server) Refresh() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if s.readiness == nil {
		return
	}
	checks := s.readiness()
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := healthpb.HealthCheckResponse_SERVING
		if checks[name] != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(ServicePrefix+name, st)
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("[grpc] listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	log.Println("[grpc] stopped")
}
