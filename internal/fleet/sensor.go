package fleet

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/world"
)

// Sensor is a stationary flow sensor streaming coherent flow, pressure, and
// temperature readings, and raising leak alerts per the engine's stochastic
// policy.
type Sensor struct {
	Core
	world    *world.Engine
	baseline world.FlowBaseline
	interval time.Duration
	rand     *rand.Rand
}

// NewSensor creates a flow sensor. A non-positive interval selects the
// default 5s cadence.
func NewSensor(id, name string, loc Location, interval time.Duration, w *world.Engine, b *bus.Bus) *Sensor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sensor{
		Core: NewCore(id, KindSensor, name, loc, []string{
			"flow_measurement", "pressure_measurement", "temperature_measurement",
		}, b),
		world: w,
		baseline: world.FlowBaseline{
			FlowRateLPM:  150,
			PressurePa:   2500000,
			TemperatureC: 45,
		},
		interval: interval,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Sensor) TickInterval() time.Duration { return s.interval }

func (s *Sensor) Tick(ctx context.Context) error {
	m := s.world.FlowMetrics(s.baseline)
	s.ReportTelemetry(map[string]any{
		"type":          "sensor_reading",
		"flow_rate_lpm": m.FlowRateLPM,
		"pressure_pa":   m.PressurePa,
		"temperature_c": m.TemperatureC,
	})
	s.bus.Publish(bus.New(bus.TypeFlowMetricsUpdated, map[string]any{
		"agent_id":      s.ID(),
		"flow_rate_lpm": m.FlowRateLPM,
		"pressure_pa":   m.PressurePa,
		"temperature_c": m.TemperatureC,
	}))

	if s.world.ShouldEmitLeak() {
		volume := 50 + s.rand.Float64()*600
		severity := world.SeverityFromVolume(volume)
		s.bus.Publish(bus.New(bus.TypeLeakAlert, map[string]any{
			"agent_id":      s.ID(),
			"volume_liters": volume,
			"severity":      severity,
		}))
		s.bus.Publish(bus.New(bus.TypeAlertCreated, map[string]any{
			"alert_id": uuid.New().String(),
			"source":   s.ID(),
			"kind":     "leak",
			"severity": severity,
		}))
	}
	return nil
}

func (s *Sensor) Execute(ctx context.Context, cmd Command) (Ack, error) {
	return s.defaultAck(cmd.Action), nil
}
