package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/evacuation-simulator/model"
)

// SimCollector bundles Prometheus metrics for an evacuation run and the
// gRPC surface that reports on it. It satisfies the sim, crowd and pathfind
// metrics recorder interfaces.
type SimCollector struct {
	*RouteCollector

	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	TickDuration prometheus.Histogram

	AgentsActive prometheus.Gauge
	FireSources  prometheus.Gauge
	RiskCells    prometheus.Gauge
	DensityMean  prometheus.Gauge
	DensityPeak  prometheus.Gauge

	AgentsSpawned   *prometheus.CounterVec
	AgentsEvacuated *prometheus.CounterVec
}

// NewSimCollector registers run metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil. Registering twice
// against the same registry reuses the existing collectors.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	routes, err := NewRouteCollector(reg)
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evacsim_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "evacsim_rpc_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evacsim_rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "evacsim_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evacsim_tick_duration_seconds",
		Help:    "Wall time spent executing one simulation tick.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "evacsim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	gauges := map[string]string{
		"evacsim_agents_active": "Agents currently in the building.",
		"evacsim_fire_sources":  "Active fire sources.",
		"evacsim_risk_cells":    "Grid cells marked as fire risk.",
		"evacsim_density_mean":  "Mean agents per grid cell.",
		"evacsim_density_peak":  "Highest number of agents in a single grid cell.",
	}
	registered := make(map[string]prometheus.Gauge, len(gauges))
	for name, help := range gauges {
		g, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}), name)
		if err != nil {
			return nil, err
		}
		registered[name] = g
	}

	spawned, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evacsim_agents_spawned_total",
		Help: "Agents created, labeled by mobility class.",
	}, []string{"class"}), "evacsim_agents_spawned_total")
	if err != nil {
		return nil, err
	}
	evacuated, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evacsim_agents_evacuated_total",
		Help: "Agents that reached an evacuation point, labeled by mobility class.",
	}, []string{"class"}), "evacsim_agents_evacuated_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		RouteCollector:  routes,
		gatherer:        gatherer,
		RPCRequests:     requests,
		RPCDurations:    durations,
		TickDuration:    tick,
		AgentsActive:    registered["evacsim_agents_active"],
		FireSources:     registered["evacsim_fire_sources"],
		RiskCells:       registered["evacsim_risk_cells"],
		DensityMean:     registered["evacsim_density_mean"],
		DensityPeak:     registered["evacsim_density_peak"],
		AgentsSpawned:   spawned,
		AgentsEvacuated: evacuated,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SimCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records the wall time of one tick.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// SetPopulation refreshes the per-tick gauges.
func (c *SimCollector) SetPopulation(active, fireSources, riskCells int, meanDensity, peakDensity float64) {
	if c == nil {
		return
	}
	setGauge(c.AgentsActive, float64(active))
	setGauge(c.FireSources, float64(fireSources))
	setGauge(c.RiskCells, float64(riskCells))
	setGauge(c.DensityMean, meanDensity)
	setGauge(c.DensityPeak, peakDensity)
}

// RecordSpawn counts a new agent.
func (c *SimCollector) RecordSpawn(class model.AgentClass) {
	if c == nil || c.AgentsSpawned == nil {
		return
	}
	c.AgentsSpawned.WithLabelValues(class.String()).Inc()
}

// RecordEvacuation counts an agent reaching an exit.
func (c *SimCollector) RecordEvacuation(class model.AgentClass) {
	if c == nil || c.AgentsEvacuated == nil {
		return
	}
	c.AgentsEvacuated.WithLabelValues(class.String()).Inc()
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func setGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
