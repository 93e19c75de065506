package world

import "math"

// Deterministic diurnal profile curves. All take a time-of-day in hours (0-24).

// DiurnalTemperature is a sinusoidal temperature curve peaking at ~14:00.
func DiurnalTemperature(hour, base float64) float64 {
	const amplitude = 12.0
	phase := (hour - 14.0) / 24.0 * 2 * math.Pi
	return base + amplitude*math.Cos(phase)
}

// DiurnalPressure varies slightly around base, higher in the morning.
func DiurnalPressure(hour, base float64) float64 {
	const amplitude = 50000
	phase := (hour - 10.0) / 24.0 * 2 * math.Pi
	return base + amplitude*math.Cos(phase)
}

// OperationalLoadCurve ramps up at 06:00, holds 1.0 from 10:00 to 16:00, and
// ramps back down to the 0.2 overnight floor by 22:00.
func OperationalLoadCurve(hour float64) float64 {
	switch {
	case hour < 6:
		return 0.2
	case hour < 10:
		return 0.2 + 0.8*((hour-6)/4)
	case hour < 16:
		return 1.0
	case hour < 22:
		return 1.0 - 0.8*((hour-16)/6)
	default:
		return 0.2
	}
}

// PoissonProbability is the chance of at least one arrival in a tick given
// rate λ: 1 - e^{-λ}.
func PoissonProbability(lambda float64) float64 {
	return 1 - math.Exp(-lambda)
}

// SeverityFromVolume classifies a leak by spilled volume.
func SeverityFromVolume(volumeLiters float64) string {
	switch {
	case volumeLiters > 500:
		return "critical"
	case volumeLiters > 100:
		return "major"
	default:
		return "minor"
	}
}
