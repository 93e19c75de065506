// World state record shared by every simulated component
package world

import "time"

// State is a snapshot of the simulated world at a point in time. The engine
// owns the single mutable copy; everything else receives value copies.
type State struct {
	Tick    int64   `json:"tick"`
	SimTime float64 `json:"sim_time"` // seconds since sim start

	TimeOfDayHours  float64 `json:"time_of_day"`      // 0-24, wraps
	WeatherFactor   float64 `json:"weather_factor"`   // 1.0 = clear, <1 = adverse
	OperationalLoad float64 `json:"operational_load"` // 0-1

	// Derived environment values, recomputed each tick.
	AmbientTemperatureC float64 `json:"ambient_temperature_c"`
	BasePressurePa      float64 `json:"base_pressure_pa"`
	WindSpeedMps        float64 `json:"wind_speed_mps"`
	VisibilityKm        float64 `json:"visibility_km"`

	// Scenario overrides.
	ActiveScenario     string  `json:"active_scenario,omitempty"`
	ForceLeak          bool    `json:"force_leak"`
	ForceValveFault    bool    `json:"force_valve_fault"`
	ForceCameraOffline bool    `json:"force_camera_offline"`
	ShutdownActive     bool    `json:"shutdown_active"`
	LeakLambda         float64 `json:"leak_lambda"` // Poisson λ per tick
}

const defaultLeakLambda = 0.008

func defaultState() State {
	return State{
		TimeOfDayHours:      8.0,
		WeatherFactor:       1.0,
		OperationalLoad:     0.7,
		AmbientTemperatureC: 25.0,
		BasePressurePa:      2500000,
		WindSpeedMps:        3.0,
		VisibilityKm:        10.0,
		LeakLambda:          defaultLeakLambda,
	}
}

// apply mutates a single named field. Unknown field names are ignored so
// scenario scripts can carry overrides this engine does not model.
func (s *State) apply(field string, value any) bool {
	switch field {
	case "force_leak":
		if b, ok := value.(bool); ok {
			s.ForceLeak = b
			return true
		}
	case "force_valve_fault":
		if b, ok := value.(bool); ok {
			s.ForceValveFault = b
			return true
		}
	case "force_camera_offline":
		if b, ok := value.(bool); ok {
			s.ForceCameraOffline = b
			return true
		}
	case "shutdown_active":
		if b, ok := value.(bool); ok {
			s.ShutdownActive = b
			return true
		}
	case "leak_lambda":
		if f, ok := toFloat(value); ok {
			s.LeakLambda = f
			return true
		}
	case "weather_factor":
		if f, ok := toFloat(value); ok {
			s.WeatherFactor = clamp(f, 0.3, 1.0)
			return true
		}
	case "operational_load":
		if f, ok := toFloat(value); ok {
			s.OperationalLoad = clamp(f, 0, 1)
			return true
		}
	case "time_of_day_hours":
		if f, ok := toFloat(value); ok {
			s.TimeOfDayHours = wrapHours(f)
			return true
		}
	}
	return false
}

// toFloat accepts the numeric types YAML and JSON decoders produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapHours(h float64) float64 {
	h = h - 24*float64(int64(h/24))
	if h < 0 {
		h += 24
	}
	return h
}

// FlowBaseline is the nominal operating point a flow sensor measures against.
type FlowBaseline struct {
	FlowRateLPM  float64
	PressurePa   float64
	TemperatureC float64
}

// FlowMetrics is one coherent flow reading derived from the world state.
type FlowMetrics struct {
	FlowRateLPM  float64   `json:"flow_rate_lpm"`
	PressurePa   float64   `json:"pressure_pa"`
	TemperatureC float64   `json:"temperature_c"`
	Timestamp    time.Time `json:"ts"`
}
