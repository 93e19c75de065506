// Fleet registry: agent lifecycle, liveness monitoring, health aggregation
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/logging"
)

// ErrAgentNotFound is returned when a command names an unknown agent.
var ErrAgentNotFound = errors.New("agent not found")

const (
	defaultHeartbeatTimeout = 30 * time.Second
	defaultMonitorInterval  = 15 * time.Second
)

// HealthRecorder receives fleet health snapshots, typically backed by
// Prometheus gauges.
type HealthRecorder interface {
	RecordFleet(Health)
}

// Health summarizes fleet status counts.
type Health struct {
	TotalAgents    int          `json:"total_agents"`
	OnlineAgents   int          `json:"online_agents"`
	OfflineAgents  int          `json:"offline_agents"`
	DegradedAgents int          `json:"degraded_agents"`
	ByType         map[Kind]int `json:"by_type"`
	HealthScore    int          `json:"health_score"`
}

type entry struct {
	agent  Agent
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry tracks all registered agents and manages their loops plus one
// liveness monitor.
type Registry struct {
	log              *slog.Logger
	bus              *bus.Bus
	heartbeatTimeout time.Duration
	monitorInterval  time.Duration
	health           HealthRecorder
	now              func() time.Time

	mu      sync.RWMutex
	agents  map[string]*entry
	running bool
	runCtx  context.Context

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHeartbeatTimeout overrides the 30s liveness timeout.
func WithHeartbeatTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.heartbeatTimeout = d }
}

// WithMonitorInterval overrides the 15s liveness sweep interval.
func WithMonitorInterval(d time.Duration) RegistryOption {
	return func(r *Registry) { r.monitorInterval = d }
}

// WithHealthRecorder attaches fleet gauges.
func WithHealthRecorder(h HealthRecorder) RegistryOption {
	return func(r *Registry) { r.health = h }
}

// WithClock overrides the wall clock, mainly for liveness tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger, b *bus.Bus, opts ...RegistryOption) *Registry {
	r := &Registry{
		log:              log,
		bus:              b,
		heartbeatTimeout: defaultHeartbeatTimeout,
		monitorInterval:  defaultMonitorInterval,
		now:              time.Now,
		agents:           make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Register adds an agent to the registry. Registering an ID that already
// exists replaces the old agent after stopping its loop. If the fleet is
// already running, the new agent's loop starts immediately.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	if old, ok := r.agents[a.ID()]; ok {
		r.mu.Unlock()
		r.stopEntry(old)
		r.mu.Lock()
	}
	e := &entry{agent: a}
	r.agents[a.ID()] = e
	running := r.running
	runCtx := r.runCtx
	r.mu.Unlock()

	r.log.Info("agent registered", "agent_id", a.ID(), "agent_type", a.Kind())
	if running {
		r.startEntry(runCtx, e)
	}
	r.recordHealth()
}

// Unregister cancels the agent's loop, waits for it to exit, and removes the
// agent entirely. Unknown IDs are a no-op.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	e, ok := r.agents[agentID]
	if ok {
		delete(r.agents, agentID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.stopEntry(e)
	r.log.Info("agent unregistered", "agent_id", agentID)
	r.recordHealth()
}

// Get returns the agent with the given ID.
func (r *Registry) Get(agentID string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok {
		return nil, false
	}
	return e.agent, true
}

// List returns registered agents sorted by ID, optionally filtered by kind.
// An empty kind matches everything.
func (r *Registry) List(kind Kind) []Agent {
	r.mu.RLock()
	out := make([]Agent, 0, len(r.agents))
	for _, e := range r.agents {
		if kind != "" && e.agent.Kind() != kind {
			continue
		}
		out = append(out, e.agent)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Size returns the number of registered agents.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// StartAll launches every registered agent's loop and the liveness monitor.
// Starting a running fleet is a no-op.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.runCtx = ctx
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}

	monCtx, cancel := context.WithCancel(ctx)
	r.monitorCancel = cancel
	done := make(chan struct{})
	r.monitorDone = done
	r.mu.Unlock()

	for _, e := range entries {
		r.startEntry(ctx, e)
	}
	go func() {
		defer close(done)
		r.monitor(monCtx)
	}()
	r.log.Info("fleet started", "agents", len(entries))
}

// StopAll cancels every agent loop and the liveness monitor, leaving registry
// entries intact. Stopping a stopped fleet is a no-op.
func (r *Registry) StopAll() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	monitorCancel := r.monitorCancel
	monitorDone := r.monitorDone
	r.monitorCancel = nil
	r.mu.Unlock()

	for _, e := range entries {
		r.stopEntry(e)
	}
	if monitorCancel != nil {
		monitorCancel()
		<-monitorDone
	}
	r.log.Info("fleet stopped")
}

// startEntry launches one agent loop. Safe to call only once per entry until
// the loop is stopped again.
func (r *Registry) startEntry(ctx context.Context, e *entry) {
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	a := e.agent
	r.bus.Publish(bus.New(bus.TypeAgentDiscovered, map[string]any{
		"agent_id":   a.ID(),
		"agent_type": string(a.Kind()),
		"name":       a.Name(),
	}))
	go r.runLoop(loopCtx, a, e.done)
}

func (r *Registry) stopEntry(e *entry) {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
}

// runLoop is one agent's independent cadence: heartbeat, tick, sleep.
func (r *Registry) runLoop(ctx context.Context, a Agent, done chan struct{}) {
	defer close(done)
	log := logging.FromContext(ctx).With("agent_id", a.ID())
	ticker := time.NewTicker(a.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.Heartbeat()
		r.safeTick(ctx, log, a)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// safeTick runs one agent tick, isolating failures from the scheduler and
// from other agents.
func (r *Registry) safeTick(ctx context.Context, log *slog.Logger, a Agent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("agent tick panicked", "panic", rec)
		}
	}()
	if err := a.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent tick failed", "err", err)
	}
}

// monitor is the liveness sweep loop, independent of individual agent
// cadences.
func (r *Registry) monitor(ctx context.Context) {
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(r.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("liveness monitor stopping")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep demotes agents whose heartbeat has gone stale. The registry lock is
// held only while collecting the agent list, never across status changes or
// event publishes.
func (r *Registry) sweep() {
	now := r.now()

	r.mu.RLock()
	agents := make([]Agent, 0, len(r.agents))
	for _, e := range r.agents {
		agents = append(agents, e.agent)
	}
	r.mu.RUnlock()

	for _, a := range agents {
		last := a.LastHeartbeat()
		if last.IsZero() || now.Sub(last) <= r.heartbeatTimeout {
			continue
		}
		prev, changed := a.MarkOffline()
		if !changed {
			continue
		}
		r.log.Warn("agent marked offline, no heartbeat", "agent_id", a.ID(), "previous_status", prev)
		r.bus.Publish(bus.New(bus.TypeAgentOffline, map[string]any{
			"agent_id":        a.ID(),
			"previous_status": string(prev),
		}))
	}
	r.recordHealth()
}

// FleetHealth is a pure read of current in-memory state.
func (r *Registry) FleetHealth() Health {
	agents := r.List("")
	h := Health{TotalAgents: len(agents), ByType: make(map[Kind]int)}
	for _, k := range Kinds() {
		h.ByType[k] = 0
	}
	for _, a := range agents {
		switch a.Status() {
		case StatusOnline:
			h.OnlineAgents++
		case StatusOffline:
			h.OfflineAgents++
		case StatusDegraded, StatusBusy:
			h.DegradedAgents++
		}
		h.ByType[a.Kind()]++
	}
	h.HealthScore = h.OnlineAgents * 100 / max(1, h.TotalAgents)
	return h
}

func (r *Registry) recordHealth() {
	if r.health == nil {
		return
	}
	r.health.RecordFleet(r.FleetHealth())
}

// ExecuteCommand delivers cmd to exactly the named agent.
func (r *Registry) ExecuteCommand(ctx context.Context, agentID string, cmd Command) (Ack, error) {
	a, ok := r.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	r.log.Info("command dispatched", "agent_id", agentID, "action", cmd.Action)
	return a.Execute(ctx, cmd)
}
