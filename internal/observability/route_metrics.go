package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RouteCollector exposes route-planning Prometheus metrics.
type RouteCollector struct {
	gatherer prometheus.Gatherer

	PathComputationDuration *prometheus.HistogramVec
	PathExpansions          prometheus.Histogram
	ReplansTotal            *prometheus.CounterVec
	PathFailuresTotal       prometheus.Counter
}

// NewRouteCollector registers route metrics against the provided registerer.
func NewRouteCollector(reg prometheus.Registerer) (*RouteCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	pathHistogram, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evacsim_path_computation_duration_seconds",
		Help:    "Duration of A* searches, labeled by outcome.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"outcome"}), "evacsim_path_computation_duration_seconds")
	if err != nil {
		return nil, err
	}

	expansions, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evacsim_path_expansions",
		Help:    "Nodes expanded per A* search.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 9),
	}), "evacsim_path_expansions")
	if err != nil {
		return nil, err
	}

	replans, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evacsim_replans_total",
		Help: "Cumulative agent route replans, labeled by trigger.",
	}, []string{"reason"}), "evacsim_replans_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evacsim_path_failures_total",
		Help: "Cumulative planning attempts that left an agent without a new route.",
	}), "evacsim_path_failures_total")
	if err != nil {
		return nil, err
	}

	return &RouteCollector{
		gatherer:                gatherer,
		PathComputationDuration: pathHistogram,
		PathExpansions:          expansions,
		ReplansTotal:            replans,
		PathFailuresTotal:       failures,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RouteCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObservePathComputation records one search.
func (c *RouteCollector) ObservePathComputation(d time.Duration, expanded int, outcome string) {
	if c == nil {
		return
	}
	if c.PathComputationDuration != nil {
		c.PathComputationDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
	if c.PathExpansions != nil {
		c.PathExpansions.Observe(float64(expanded))
	}
}

// RecordReplan increments the replan counter for reason.
func (c *RouteCollector) RecordReplan(reason string) {
	if c == nil || c.ReplansTotal == nil {
		return
	}
	c.ReplansTotal.WithLabelValues(reason).Inc()
}

// RecordPathFailure increments the failure counter.
func (c *RouteCollector) RecordPathFailure() {
	if c == nil || c.PathFailuresTotal == nil {
		return
	}
	c.PathFailuresTotal.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
