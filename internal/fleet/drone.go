package fleet

import (
	"context"
	"math"
	"math/rand"
	"time"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/world"
)

// Drone is an aerial patrol agent. It flies a circular route around its
// patrol center and reports thermal/visual detections with a confidence that
// tracks current visibility.
type Drone struct {
	Core
	world        *world.Engine
	patrolCenter Location
	patrolRadius float64 // degrees
	angle        float64
	interval     time.Duration
	rand         *rand.Rand
}

var detectionKinds = []string{"thermal_anomaly", "leak_sign", "equipment_damage", "personnel"}

// NewDrone creates a patrol drone. A non-positive interval selects the
// default 4s cadence.
func NewDrone(id, name string, center Location, interval time.Duration, w *world.Engine, b *bus.Bus) *Drone {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &Drone{
		Core: NewCore(id, KindDrone, name, center, []string{
			"thermal_imaging", "visual_inspection", "patrol", "emergency_dispatch",
		}, b),
		world:        w,
		patrolCenter: center,
		patrolRadius: 0.01,
		interval:     interval,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *Drone) TickInterval() time.Duration { return d.interval }

func (d *Drone) Tick(ctx context.Context) error {
	d.angle = math.Mod(d.angle+0.3, 2*math.Pi)
	d.SetLocation(Location{
		Lat: d.patrolCenter.Lat + d.patrolRadius*math.Cos(d.angle),
		Lon: d.patrolCenter.Lon + d.patrolRadius*math.Sin(d.angle),
	})

	// A busy drone is on a dispatch; leave its status to command handling.
	if st := d.Status(); st == StatusOnline || st == StatusDegraded {
		if d.world.CameraDegraded() {
			d.SetStatus(StatusDegraded)
		} else if st == StatusDegraded {
			d.SetStatus(StatusOnline)
		}
	}

	if d.rand.Float64() < 0.15 {
		confidence := d.world.DetectionConfidence()
		detection := detectionKinds[d.rand.Intn(len(detectionKinds))]
		snap := d.world.Snapshot()
		d.ReportTelemetry(map[string]any{
			"type":        "drone_detection",
			"detection":   detection,
			"confidence":  math.Round(confidence*100) / 100,
			"altitude_m":  30 + d.rand.Float64()*20,
			"battery_pct": math.Max(10, 100-float64(snap.Tick)*0.2),
		})
		d.bus.Publish(bus.New(bus.TypeAnomalyDetected, map[string]any{
			"agent_id":   d.ID(),
			"detection":  detection,
			"confidence": confidence,
		}))
	}
	return nil
}

func (d *Drone) Execute(ctx context.Context, cmd Command) (Ack, error) {
	switch cmd.Action {
	case "dispatch":
		target := d.patrolCenter
		if cmd.Target != nil {
			target = *cmd.Target
		}
		d.SetStatus(StatusBusy)
		d.SetLocation(target)
		d.bus.Publish(bus.New(bus.TypeMissionStarted, map[string]any{
			"agent_id": d.ID(),
			"kind":     "dispatch",
			"lat":      target.Lat,
			"lon":      target.Lon,
		}))
		return Ack{"ok": true, "agent_id": d.ID(), "dispatched_to": target}, nil
	case "return_to_base":
		wasBusy := d.Status() == StatusBusy
		d.SetLocation(d.patrolCenter)
		d.SetStatus(StatusOnline)
		if wasBusy {
			d.bus.Publish(bus.New(bus.TypeMissionCompleted, map[string]any{
				"agent_id": d.ID(),
				"kind":     "dispatch",
			}))
		}
		return Ack{"ok": true, "agent_id": d.ID(), "returned": true}, nil
	}
	return d.defaultAck(cmd.Action), nil
}
