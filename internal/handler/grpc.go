package handler

import (
	"github.com/mir00r/stand-router/internal/domain"
	"github.com/mir00r/stand-router/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes grpc.health.v1 with one service entry per backend
// name plus the empty name for the router as a whole
type GRPCHealthServer struct {
	health   *health.Server
	registry domain.BackendRegistry
	logger   *logger.Logger
}

// NewGRPCHealthServer creates a health server with every backend SERVING
func NewGRPCHealthServer(reg domain.BackendRegistry, log *logger.Logger) *GRPCHealthServer {
	gh := &GRPCHealthServer{
		health:   health.NewServer(),
		registry: reg,
		logger:   log.WithField("component", "grpc_health"),
	}

	gh.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range reg.Names() {
		gh.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}

	return gh
}

// Register installs the health service on s
func (gh *GRPCHealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, gh.health)
}

// SetServing updates the status reported for one backend
func (gh *GRPCHealthServer) SetServing(name string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	gh.health.SetServingStatus(name, status)

	gh.logger.WithFields(map[string]interface{}{
		"service": name,
		"status":  status.String(),
	}).Info("gRPC health status changed")
}

// Shutdown reports NOT_SERVING for every service and ignores later updates
func (gh *GRPCHealthServer) Shutdown() {
	gh.health.Shutdown()
	gh.logger.Info("gRPC health server shut down")
}
