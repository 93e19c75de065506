package fleet

import (
	"fmt"
	"math/rand"
	"time"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/config"
	"edgeops-sim/internal/world"
)

// BuildFleet instantiates and registers agents for every fleet entry in the
// config. Agent IDs are <fleet-name>-NN and locations are jittered around the
// site center so agents of one fleet don't stack on a single point.
func BuildFleet(cfg *config.SimulationConfig, w *world.Engine, b *bus.Bus, reg *Registry) error {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	center := Location{Lat: cfg.Site.CenterLat, Lon: cfg.Site.CenterLon}

	for _, fc := range cfg.Fleets {
		kind := Kind(fc.Kind)
		if !KnownKind(kind) {
			return fmt.Errorf("fleet %q: unknown agent kind %q", fc.Name, fc.Kind)
		}
		interval := time.Duration(fc.TickSeconds * float64(time.Second))

		for i := 0; i < fc.Count; i++ {
			id := fmt.Sprintf("%s-%02d", fc.Name, i+1)
			name := fmt.Sprintf("%s %d", fc.Name, i+1)
			loc := Location{
				Lat: center.Lat + (rnd.Float64()-0.5)*0.01,
				Lon: center.Lon + (rnd.Float64()-0.5)*0.01,
			}

			var a Agent
			switch kind {
			case KindDrone:
				a = NewDrone(id, name, loc, interval, w, b)
			case KindRover:
				a = NewRover(id, name, loc, interval, w, b)
			case KindSensor:
				a = NewSensor(id, name, loc, interval, w, b)
			case KindGateway:
				a = NewGateway(id, name, loc, interval, reg, b)
			}
			reg.Register(a)
		}
	}
	return nil
}
