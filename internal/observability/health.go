package observability

import (
	"context"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
)

// HealthService is the service name reported by HealthReporter alongside
// the overall ("") status.
const HealthService = "evacsim.Simulation"

// HealthReporter serves the standard gRPC health protocol for a running
// evacuation. The simulation service reports SERVING while the clock runs
// and NOT_SERVING otherwise.
type HealthReporter struct {
	server *grpc.Server
	health *health.Server
	log    logging.Logger
}

// NewHealthReporter builds the gRPC server. RPCs are traced through otelgrpc
// and counted by collector when it is non-nil.
func NewHealthReporter(collector *SimCollector, log logging.Logger) *HealthReporter {
	opts := []grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}
	if collector != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()))
	}
	server := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	return &HealthReporter{server: server, health: hs, log: logging.OrNoop(log)}
}

// SetRunning flips the simulation service status.
func (h *HealthReporter) SetRunning(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(HealthService, status)
}

// Serve blocks serving lis until Stop is called.
func (h *HealthReporter) Serve(lis net.Listener) error {
	h.log.Info(context.Background(), "serving gRPC health", logging.String("addr", lis.Addr().String()))
	return h.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (h *HealthReporter) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
