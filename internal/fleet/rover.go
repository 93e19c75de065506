package fleet

import (
	"context"
	"math/rand"
	"time"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/world"
)

// actuationDelay is how long a valve actuation takes before the completion
// event is reported.
const actuationDelay = 2 * time.Second

// Rover is a ground robot dispatched to valve locations for actuation and
// inspection work.
type Rover struct {
	Core
	world    *world.Engine
	home     Location
	interval time.Duration
	rand     *rand.Rand
}

// NewRover creates a ground rover. A non-positive interval selects the
// default 5s cadence.
func NewRover(id, name string, home Location, interval time.Duration, w *world.Engine, b *bus.Bus) *Rover {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Rover{
		Core: NewCore(id, KindRover, name, home, []string{
			"valve_actuation", "visual_inspection", "sample_collection", "emergency_shutoff",
		}, b),
		world:    w,
		home:     home,
		interval: interval,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Rover) TickInterval() time.Duration { return r.interval }

func (r *Rover) Tick(ctx context.Context) error {
	load := r.world.Snapshot().OperationalLoad
	payload := "none"
	if r.Status() == StatusBusy {
		payload = "sample"
	}
	r.ReportTelemetry(map[string]any{
		"type":              "rover_status",
		"battery_pct":       95 - r.rand.Float64()*5,
		"motor_temp_c":      35 + load*15 + (r.rand.Float64()-0.5)*3,
		"obstacle_detected": r.rand.Float64() < 0.05,
		"payload":           payload,
	})
	return nil
}

func (r *Rover) Execute(ctx context.Context, cmd Command) (Ack, error) {
	switch cmd.Action {
	case "dispatch":
		target := r.home
		if cmd.Target != nil {
			target = *cmd.Target
		}
		r.SetStatus(StatusBusy)
		r.SetLocation(target)
		r.bus.Publish(bus.New(bus.TypeMissionStarted, map[string]any{
			"agent_id": r.ID(),
			"kind":     "dispatch",
			"lat":      target.Lat,
			"lon":      target.Lon,
		}))
		return Ack{"ok": true, "agent_id": r.ID(), "dispatched_to": target}, nil
	case "actuate_valve":
		r.SetStatus(StatusBusy)
		r.bus.Publish(bus.New(bus.TypeValveActuationRequested, map[string]any{
			"agent_id": r.ID(),
			"valve_id": cmd.ValveID,
		}))
		// The actuation itself runs on hardware time; completion is reported
		// through the bus once it finishes.
		valveID := cmd.ValveID
		time.AfterFunc(actuationDelay, func() {
			success := !r.world.Snapshot().ForceValveFault
			r.bus.Publish(bus.New(bus.TypeValveActuationCompleted, map[string]any{
				"agent_id": r.ID(),
				"valve_id": valveID,
				"success":  success,
			}))
			r.SetStatus(StatusOnline)
		})
		return Ack{"ok": true, "agent_id": r.ID(), "actuating": valveID}, nil
	case "return_to_base":
		wasBusy := r.Status() == StatusBusy
		r.SetLocation(r.home)
		r.SetStatus(StatusOnline)
		if wasBusy {
			r.bus.Publish(bus.New(bus.TypeMissionCompleted, map[string]any{
				"agent_id": r.ID(),
				"kind":     "dispatch",
			}))
		}
		return Ack{"ok": true, "agent_id": r.ID(), "returned": true}, nil
	}
	return r.defaultAck(cmd.Action), nil
}
