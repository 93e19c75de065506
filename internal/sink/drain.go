package sink

import (
	"context"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/logging"
)

// Drain pumps events from a bus stream into a writer until the context is
// cancelled or the stream is closed. Writer errors are logged and playback
// continues; a sink outage must not stall the stream.
func Drain(ctx context.Context, st *bus.Stream, w EventWriter) {
	log := logging.FromContext(ctx).With("stream_id", st.ID())
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-st.Events():
			if !ok {
				return
			}
			if err := w.WriteEvent(e); err != nil {
				log.Error("event sink write failed", "type", e.Type, "err", err)
			}
		}
	}
}
