// Edge agent contract and the shared agent core
package fleet

import (
	"context"
	"sync"
	"time"

	"edgeops-sim/internal/bus"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusDegraded Status = "degraded"
	StatusBusy     Status = "busy"
)

// Kind is the closed set of agent variants.
type Kind string

const (
	KindDrone   Kind = "drone"
	KindRover   Kind = "rover"
	KindSensor  Kind = "sensor"
	KindGateway Kind = "gateway"
)

// Kinds lists every agent kind.
func Kinds() []Kind {
	return []Kind{KindDrone, KindRover, KindSensor, KindGateway}
}

// KnownKind reports whether k is a valid agent kind.
func KnownKind(k Kind) bool {
	switch k {
	case KindDrone, KindRover, KindSensor, KindGateway:
		return true
	}
	return false
}

// Location is a ground position.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Command is one instruction dispatched to a single agent. Each agent kind
// interprets its own action vocabulary.
type Command struct {
	Action  string         `json:"action"`
	Target  *Location      `json:"target,omitempty"`
	ValveID string         `json:"valve_id,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// Ack is the synchronous result of a command. Long-running effects complete
// asynchronously and are reported through the event bus.
type Ack map[string]any

// Info is a point-in-time agent summary for the directory surface.
type Info struct {
	AgentID       string    `json:"agent_id"`
	AgentType     Kind      `json:"agent_type"`
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	Location      Location  `json:"location"`
	Capabilities  []string  `json:"capabilities"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// Telemetry is one recorded agent report.
type Telemetry struct {
	AgentID   string         `json:"agent_id"`
	Timestamp time.Time      `json:"ts"`
	Data      map[string]any `json:"data"`
}

// Agent is one fleet member. The registry owns its lifecycle; the agent owns
// its tick cadence and command vocabulary.
type Agent interface {
	ID() string
	Kind() Kind
	Name() string
	Info() Info
	History() []Telemetry
	Status() Status
	LastHeartbeat() time.Time
	Heartbeat()
	MarkOffline() (previous Status, changed bool)
	TickInterval() time.Duration
	Tick(ctx context.Context) error
	Execute(ctx context.Context, cmd Command) (Ack, error)
}

const historyLimit = 50

// Core carries the state every agent kind shares. Concrete agents embed it
// and are always used by pointer.
type Core struct {
	id           string
	kind         Kind
	name         string
	capabilities []string
	bus          *bus.Bus
	now          func() time.Time

	mu       sync.Mutex
	st       Status
	loc      Location
	lastBeat time.Time
	history  []Telemetry
}

// NewCore initializes the shared agent state. New agents start online.
func NewCore(id string, kind Kind, name string, loc Location, capabilities []string, b *bus.Bus) Core {
	return Core{
		id:           id,
		kind:         kind,
		name:         name,
		capabilities: capabilities,
		bus:          b,
		now:          time.Now,
		st:           StatusOnline,
		loc:          loc,
	}
}

func (c *Core) ID() string   { return c.id }
func (c *Core) Kind() Kind   { return c.kind }
func (c *Core) Name() string { return c.name }

// Status returns the current lifecycle state.
func (c *Core) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// SetStatus transitions the agent's state. Only the agent's own logic and
// the liveness monitor call this.
func (c *Core) SetStatus(s Status) {
	c.mu.Lock()
	c.st = s
	c.mu.Unlock()
}

// MarkOffline demotes the agent if it is not already offline, returning the
// previous status.
func (c *Core) MarkOffline() (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == StatusOffline {
		return StatusOffline, false
	}
	prev := c.st
	c.st = StatusOffline
	return prev, true
}

// Location returns the agent's current position.
func (c *Core) Location() Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loc
}

// SetLocation moves the agent.
func (c *Core) SetLocation(loc Location) {
	c.mu.Lock()
	c.loc = loc
	c.mu.Unlock()
}

// LastHeartbeat returns the time of the most recent heartbeat, zero before
// the first one.
func (c *Core) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBeat
}

// Heartbeat stamps the liveness timestamp and publishes a device.status
// event.
func (c *Core) Heartbeat() {
	c.mu.Lock()
	c.lastBeat = c.now()
	st := c.st
	loc := c.loc
	c.mu.Unlock()

	c.bus.Publish(bus.New(bus.TypeDeviceStatus, map[string]any{
		"agent_id":   c.id,
		"agent_type": string(c.kind),
		"name":       c.name,
		"status":     string(st),
		"lat":        loc.Lat,
		"lon":        loc.Lon,
	}))
}

// ReportTelemetry records a reading in the bounded history ring and publishes
// it as an agent.telemetry event.
func (c *Core) ReportTelemetry(data map[string]any) {
	rec := Telemetry{AgentID: c.id, Timestamp: c.now().UTC(), Data: data}

	c.mu.Lock()
	c.history = append(c.history, rec)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
	c.mu.Unlock()

	payload := map[string]any{"agent_id": c.id, "ts": rec.Timestamp}
	for k, v := range data {
		payload[k] = v
	}
	c.bus.Publish(bus.New(bus.TypeAgentTelemetry, payload))
}

// History returns a copy of the recorded telemetry, oldest first.
func (c *Core) History() []Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Telemetry, len(c.history))
	copy(out, c.history)
	return out
}

// Info returns a snapshot summary of the agent.
func (c *Core) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	caps := make([]string, len(c.capabilities))
	copy(caps, c.capabilities)
	return Info{
		AgentID:       c.id,
		AgentType:     c.kind,
		Name:          c.name,
		Status:        c.st,
		Location:      c.loc,
		Capabilities:  caps,
		LastHeartbeat: c.lastBeat,
	}
}

// defaultAck acknowledges an action no specific handler claimed.
func (c *Core) defaultAck(action string) Ack {
	return Ack{"ok": true, "agent_id": c.id, "ack": action}
}
