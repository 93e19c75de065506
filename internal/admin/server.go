// Admin HTTP surface: world control, fleet inspection, event streaming.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/fleet"
	"edgeops-sim/internal/world"
)

// Collector is the optional metrics surface exposed at /metrics.
type Collector interface {
	Handler() http.Handler
	RecordStreams(n int)
}

// Server exposes the simulation over HTTP: status and scenario control for
// the world engine, agent inspection and commands for the fleet, and a
// websocket event feed backed by per-connection bus streams.
type Server struct {
	log      *slog.Logger
	world    *world.Engine
	registry *fleet.Registry
	bus      *bus.Bus
	metrics  Collector
	upgrader websocket.Upgrader

	httpSrv *http.Server
}

// NewServer wires the admin surface. metrics may be nil.
func NewServer(log *slog.Logger, w *world.Engine, reg *fleet.Registry, b *bus.Bus, metrics Collector) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log,
		world:    w,
		registry: reg,
		bus:      b,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /scenarios", s.handleScenarios)
	mux.HandleFunc("POST /scenario", s.handleScenario)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /agents", s.handleAgents)
	mux.HandleFunc("GET /agents/{id}", s.handleAgent)
	mux.HandleFunc("POST /agents/{id}/command", s.handleCommand)
	mux.HandleFunc("POST /alerts/{id}/ack", s.handleAlertAck)
	mux.HandleFunc("GET /fleet-health", s.handleHealth)
	mux.HandleFunc("GET /events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start runs the admin server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("admin server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.world.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"world":        state,
		"fleet_health": s.registry.FleetHealth(),
		"bus":          s.bus.Stats(),
		"streams":      s.bus.StreamCount(),
	})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, world.ListScenarios())
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing scenario name")
		return
	}
	if err := s.world.ActivateScenario(name); err != nil {
		if errors.Is(err, world.ErrUnknownScenario) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("scenario activated", "scenario", name)
	writeJSON(w, http.StatusOK, map[string]string{"active_scenario": name})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.world.ClearScenario()
	s.log.Info("scenario cleared")
	writeJSON(w, http.StatusOK, map[string]string{"active_scenario": ""})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	kind := fleet.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !fleet.KnownKind(kind) {
		writeError(w, http.StatusBadRequest, "unknown agent kind: "+string(kind))
		return
	}
	agents := s.registry.List(kind)
	infos := make([]fleet.Info, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"info":    a.Info(),
		"history": a.History(),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var cmd fleet.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid command body: "+err.Error())
		return
	}
	if cmd.Action == "" {
		writeError(w, http.StatusBadRequest, "missing command action")
		return
	}
	ack, err := s.registry.ExecuteCommand(r.Context(), id, cmd)
	if err != nil {
		if errors.Is(err, fleet.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// handleAlertAck records an operator acknowledgement for an alert raised on
// the bus. Alerts are not persisted, so the acknowledgement is itself just an
// event for downstream consumers.
func (s *Server) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.bus.Publish(bus.New(bus.TypeAlertAcknowledged, map[string]any{
		"alert_id": id,
		"remote":   r.RemoteAddr,
	}))
	s.log.Info("alert acknowledged", "alert_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"acknowledged": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.FleetHealth())
}

// handleEvents upgrades to websocket and relays one dedicated bus stream to
// the client. A slow client only loses its own events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	st := s.bus.OpenStream()
	if s.metrics != nil {
		s.metrics.RecordStreams(s.bus.StreamCount())
	}
	s.log.Info("event stream opened", "stream_id", st.ID(), "remote", r.RemoteAddr)

	defer func() {
		s.bus.CloseStream(st)
		if s.metrics != nil {
			s.metrics.RecordStreams(s.bus.StreamCount())
		}
		conn.Close()
		s.log.Info("event stream closed", "stream_id", st.ID(), "dropped", st.Dropped())
	}()

	// Read pump: detect client disconnect, discard inbound frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-st.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
