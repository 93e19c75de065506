package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/fleet"
)

// Collector bundles Prometheus metrics for the simulation: world tick
// progress, fleet health gauges, and event bus throughput. It satisfies
// bus.Instrumentation and fleet.HealthRecorder so both subsystems report
// through it without depending on this package's types.
type Collector struct {
	gatherer prometheus.Gatherer

	WorldTicks       prometheus.Counter
	AgentStatus      *prometheus.GaugeVec
	AgentKinds       *prometheus.GaugeVec
	FleetHealthScore prometheus.Gauge
	EventsPublished  *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	StreamsActive    prometheus.Gauge
}

// NewCollector registers simulation metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "world_ticks_total",
		Help: "Total number of world simulation ticks executed.",
	}), "world_ticks_total")
	if err != nil {
		return nil, err
	}

	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_agents",
		Help: "Current number of registered agents, labeled by status.",
	}, []string{"status"})
	status, err = registerGaugeVec(reg, status, "fleet_agents")
	if err != nil {
		return nil, err
	}

	kinds := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_agents_by_kind",
		Help: "Current number of registered agents, labeled by kind.",
	}, []string{"kind"})
	kinds, err = registerGaugeVec(reg, kinds, "fleet_agents_by_kind")
	if err != nil {
		return nil, err
	}

	score, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_health_score",
		Help: "Fleet health score, 0-100.",
	}), "fleet_health_score")
	if err != nil {
		return nil, err
	}

	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_published_total",
		Help: "Total events accepted by the bus, labeled by event type.",
	}, []string{"type"})
	published, err = registerCounterVec(reg, published, "bus_events_published_total")
	if err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_dropped_total",
		Help: "Total events dropped by the bus, labeled by drop reason.",
	}, []string{"reason"})
	dropped, err = registerCounterVec(reg, dropped, "bus_events_dropped_total")
	if err != nil {
		return nil, err
	}

	streams, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bus_streams_active",
		Help: "Current number of open event streams.",
	}), "bus_streams_active")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		WorldTicks:       ticks,
		AgentStatus:      status,
		AgentKinds:       kinds,
		FleetHealthScore: score,
		EventsPublished:  published,
		EventsDropped:    dropped,
		StreamsActive:    streams,
	}, nil
}

// Handler serves the collector's metrics in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// RecordTick counts one world tick.
func (c *Collector) RecordTick() {
	if c == nil {
		return
	}
	c.WorldTicks.Inc()
}

// EventPublished implements bus.Instrumentation.
func (c *Collector) EventPublished(t bus.Type) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(string(t)).Inc()
}

// EventDropped implements bus.Instrumentation.
func (c *Collector) EventDropped(reason string) {
	if c == nil {
		return
	}
	c.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordStreams sets the active stream gauge.
func (c *Collector) RecordStreams(n int) {
	if c == nil {
		return
	}
	c.StreamsActive.Set(float64(n))
}

// RecordFleet implements fleet.HealthRecorder.
func (c *Collector) RecordFleet(h fleet.Health) {
	if c == nil {
		return
	}
	c.AgentStatus.WithLabelValues(string(fleet.StatusOnline)).Set(float64(h.OnlineAgents))
	c.AgentStatus.WithLabelValues(string(fleet.StatusOffline)).Set(float64(h.OfflineAgents))
	c.AgentStatus.WithLabelValues(string(fleet.StatusDegraded)).Set(float64(h.DegradedAgents))
	for kind, n := range h.ByType {
		c.AgentKinds.WithLabelValues(string(kind)).Set(float64(n))
	}
	c.FleetHealthScore.Set(float64(h.HealthScore))
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

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
