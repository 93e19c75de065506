package fleet

import (
	"context"
	"math"
	"math/rand"
	"time"

	"edgeops-sim/internal/bus"
)

// Directory is the read-only agent listing a gateway uses to count reachable
// mesh nodes. The registry implements it.
type Directory interface {
	List(kind Kind) []Agent
}

// Gateway aggregates nearby agent traffic and acts as the communication hub
// for its mesh segment.
type Gateway struct {
	Core
	dir      Directory
	interval time.Duration
	rand     *rand.Rand
}

// NewGateway creates a gateway. A non-positive interval selects the default
// 10s cadence.
func NewGateway(id, name string, loc Location, interval time.Duration, dir Directory, b *bus.Bus) *Gateway {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Gateway{
		Core: NewCore(id, KindGateway, name, loc, []string{
			"data_aggregation", "mesh_routing", "edge_compute",
		}, b),
		dir:      dir,
		interval: interval,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Gateway) TickInterval() time.Duration { return g.interval }

func (g *Gateway) Tick(ctx context.Context) error {
	connected := 0
	for _, a := range g.dir.List("") {
		if a.ID() == g.ID() || a.Status() == StatusOffline {
			continue
		}
		connected++
	}
	g.ReportTelemetry(map[string]any{
		"type":            "gateway_status",
		"connected_nodes": connected,
		"uplink_quality":  math.Round((0.8+g.rand.Float64()*0.2)*100) / 100,
		"cpu_pct":         math.Round((20+g.rand.Float64()*30)*10) / 10,
		"memory_pct":      math.Round((40+g.rand.Float64()*20)*10) / 10,
	})
	return nil
}

func (g *Gateway) Execute(ctx context.Context, cmd Command) (Ack, error) {
	return g.defaultAck(cmd.Action), nil
}
