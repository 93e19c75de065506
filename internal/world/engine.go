// World simulation engine advancing shared environmental state on a fixed tick
package world

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"edgeops-sim/internal/logging"
)

// ErrUnknownScenario is returned when activating a scenario name that is not
// in the built-in table.
var ErrUnknownScenario = errors.New("unknown scenario")

// Listener receives a read-only snapshot after every tick.
type Listener func(State)

// Step is one timed mutation in a scenario script.
type Step struct {
	Name       string         `yaml:"name,omitempty" json:"name,omitempty"`
	DelayTicks int64          `yaml:"delay_ticks" json:"delay_ticks"`
	Mutations  map[string]any `yaml:"mutations" json:"mutations"`
}

type queuedStep struct {
	triggerTick int64
	step        Step
}

// Noise channel offsets keep independent smooth-noise streams apart.
const (
	noiseValveTemp = 11.0
	noiseFlowRate  = 23.0
	noiseFlowTemp  = 37.0
)

// Engine owns the mutable world state. Exactly one goroutine (the tick loop)
// mutates it; every reader gets a value snapshot.
type Engine struct {
	tickInterval time.Duration

	mu        sync.Mutex
	state     State
	queue     []queuedStep
	listeners []Listener
	rand      *rand.Rand
	noise     opensimplex.Noise
	now       func() time.Time

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source, mainly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rand = r }
}

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a stopped engine with default state.
func NewEngine(tickInterval time.Duration, opts ...Option) *Engine {
	e := &Engine{
		tickInterval: tickInterval,
		state:        defaultState(),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.noise = opensimplex.NewNormalized(e.rand.Int63())
	return e
}

// TickInterval returns the engine's tick cadence.
func (e *Engine) TickInterval() time.Duration { return e.tickInterval }

// Start launches the tick loop. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	logging.FromContext(ctx).Info("world engine started", "tick_interval", e.tickInterval)
	go func() {
		defer close(done)
		e.Run(runCtx)
	}()
}

// Stop cancels the tick loop and waits for it to exit. The last state snapshot
// stays readable. Stopping twice is a no-op the second time.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	<-done
}

// Run drives the tick loop until ctx is cancelled. Most callers use Start;
// Run is exported so the loop can be supervised directly.
func (e *Engine) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.step(ctx)
		case <-ctx.Done():
			log.Info("world engine stopping")
			return
		}
	}
}

// step advances the state once: mutate, apply due scenario steps, then notify
// listeners with the finished snapshot. Listeners run outside the state lock.
func (e *Engine) step(ctx context.Context) {
	log := logging.FromContext(ctx)

	e.mu.Lock()
	e.advanceTick()
	applied := e.applyDueSteps()
	snap := e.state
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, st := range applied {
		log.Info("scenario step applied", "tick", snap.Tick, "mutations", st.Mutations)
	}
	for _, fn := range listeners {
		e.notify(ctx, fn, snap)
	}
}

func (e *Engine) notify(ctx context.Context, fn Listener, snap State) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("tick listener panicked", "tick", snap.Tick, "panic", r)
		}
	}()
	fn(snap)
}

// advanceTick recomputes the state for the next tick. Caller holds e.mu.
func (e *Engine) advanceTick() {
	s := &e.state
	tickSeconds := e.tickInterval.Seconds()

	s.Tick++
	s.SimTime += tickSeconds

	// 1 real second = 1 sim minute.
	s.TimeOfDayHours = wrapHours(s.TimeOfDayHours + tickSeconds/60.0)

	s.AmbientTemperatureC = DiurnalTemperature(s.TimeOfDayHours, 25.0)
	s.BasePressurePa = DiurnalPressure(s.TimeOfDayHours, 2500000)
	s.OperationalLoad = OperationalLoadCurve(s.TimeOfDayHours)

	// Bounded random walk, step at most ±0.01.
	s.WeatherFactor = clamp(s.WeatherFactor+(e.rand.Float64()-0.5)*0.02, 0.3, 1.0)
	s.WindSpeedMps = math.Max(0, 3.0+(1.0-s.WeatherFactor)*15+(e.rand.Float64()-0.5)*2)
	s.VisibilityKm = math.Max(0.5, 10.0*s.WeatherFactor+(e.rand.Float64()-0.5))
}

// applyDueSteps pops and applies every queued step whose trigger tick has
// been reached. Caller holds e.mu.
func (e *Engine) applyDueSteps() []Step {
	var applied []Step
	for len(e.queue) > 0 && e.queue[0].triggerTick <= e.state.Tick {
		st := e.queue[0].step
		e.queue = e.queue[1:]
		for field, value := range st.Mutations {
			e.state.apply(field, value)
		}
		applied = append(applied, st)
	}
	return applied
}

// Snapshot returns a value copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnTick registers a listener invoked with a snapshot after every tick.
func (e *Engine) OnTick(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// InjectScenario queues steps with trigger ticks relative to the current tick
// and marks the first step's name as the active scenario.
func (e *Engine) InjectScenario(steps []Step) {
	if len(steps) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.state.Tick
	for _, st := range steps {
		e.queue = append(e.queue, queuedStep{triggerTick: base + st.DelayTicks, step: st})
	}
	sort.SliceStable(e.queue, func(i, j int) bool {
		return e.queue[i].triggerTick < e.queue[j].triggerTick
	})

	name := steps[0].Name
	if name == "" {
		name = "custom"
	}
	e.state.ActiveScenario = name
}

// ClearScenario empties the pending queue and resets every scenario override
// to its default.
func (e *Engine) ClearScenario() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
	e.state.ActiveScenario = ""
	e.state.ForceLeak = false
	e.state.ForceValveFault = false
	e.state.ForceCameraOffline = false
	e.state.ShutdownActive = false
	e.state.LeakLambda = defaultLeakLambda
}

// ActivateScenario replaces any running scenario with the named built-in one.
func (e *Engine) ActivateScenario(name string) error {
	sc, ok := BuiltIn()[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}
	e.ClearScenario()
	e.InjectScenario(sc.Steps)
	return nil
}

// ---- coherent readings ----
//
// Every consumer asking the engine for a derived reading sees the same
// moment: profile value plus a bounded noise term. The additive noise comes
// from a smooth simplex stream keyed on sim time, so consecutive readings
// drift instead of jumping.

// smoothNoise returns a value in [-1, 1] that varies smoothly with sim time.
// Caller holds e.mu.
func (e *Engine) smoothNoise(channel float64) float64 {
	return e.noise.Eval2(e.state.SimTime/60.0, channel)*2 - 1
}

// ValveTemperature returns a coherent valve body temperature for the given
// design baseline.
func (e *Engine) ValveTemperature(base float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	noise := e.smoothNoise(noiseValveTemp) * 0.75
	return base*0.3 + s.AmbientTemperatureC*0.3 + base*s.OperationalLoad*0.4 + noise
}

// ValvePressure returns a coherent valve line pressure.
func (e *Engine) ValvePressure(base float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	noise := (e.rand.Float64() - 0.5) * 30000
	return base*(0.85+e.state.OperationalLoad*0.15) + noise
}

// FlowMetrics returns coherent flow metrics against a sensor baseline.
func (e *Engine) FlowMetrics(baseline FlowBaseline) FlowMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	return FlowMetrics{
		FlowRateLPM: math.Max(50,
			baseline.FlowRateLPM*s.OperationalLoad+e.smoothNoise(noiseFlowRate)*4),
		PressurePa: math.Max(2000000,
			baseline.PressurePa*(0.9+s.OperationalLoad*0.1)+(e.rand.Float64()-0.5)*30000),
		TemperatureC: math.Max(15,
			s.AmbientTemperatureC+baseline.TemperatureC*0.4+e.smoothNoise(noiseFlowTemp)),
		Timestamp: e.now().UTC(),
	}
}

// DetectionConfidence returns a visual-detection confidence in [0.3, 1.0]
// scaled down in poor visibility.
func (e *Engine) DetectionConfidence() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	base := 0.7 + e.rand.Float64()*0.3
	return math.Max(0.3, base*math.Min(1.0, e.state.VisibilityKm/5.0))
}

// CameraDegraded reports whether a camera feed should degrade this tick.
// Adverse weather raises the chance; the scenario override forces it.
func (e *Engine) CameraDegraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.ForceCameraOffline {
		return true
	}
	return e.rand.Float64() < 0.03+(1-e.state.WeatherFactor)*0.1
}

// ShouldEmit draws one Poisson arrival for the given rate.
func (e *Engine) ShouldEmit(lambda float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rand.Float64() < PoissonProbability(lambda)
}

// ShouldEmitLeak asks whether a leak occurs this tick, honoring the scenario
// override before the stochastic policy.
func (e *Engine) ShouldEmitLeak() bool {
	e.mu.Lock()
	if e.state.ForceLeak {
		e.mu.Unlock()
		return true
	}
	lambda := e.state.LeakLambda
	p := e.rand.Float64()
	e.mu.Unlock()
	return p < PoissonProbability(lambda)
}
