package admin

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/fleet"
	"edgeops-sim/internal/world"
)

func newTestServer(t *testing.T) (*Server, *world.Engine, *fleet.Registry, *bus.Bus) {
	t.Helper()
	b := bus.NewBus(nil)
	w := world.NewEngine(time.Second, world.WithRand(rand.New(rand.NewSource(3))))
	reg := fleet.NewRegistry(nil, b)
	reg.Register(fleet.NewSensor("sensor-01", "sensor 1", fleet.Location{}, time.Hour, w, b))
	reg.Register(fleet.NewDrone("drone-01", "drone 1", fleet.Location{}, time.Hour, w, b))
	return NewServer(nil, w, reg, b, nil), w, reg, b
}

func wsDial(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"world", "fleet_health", "bus", "streams"} {
		if _, ok := body[key]; !ok {
			t.Errorf("status missing %q", key)
		}
	}
}

func TestHandleScenarios(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/scenarios", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var infos []world.ScenarioInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(infos) != 5 {
		t.Errorf("expected 5 scenarios, got %d", len(infos))
	}
}

func TestActivateScenario(t *testing.T) {
	s, w, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/scenario?name=bad_weather", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if w.Snapshot().ActiveScenario != "bad_weather" {
		t.Errorf("scenario not activated: %q", w.Snapshot().ActiveScenario)
	}

	rec = doRequest(t, s, http.MethodPost, "/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if w.Snapshot().ActiveScenario != "" {
		t.Errorf("scenario not cleared")
	}
}

func TestActivateUnknownScenarioReturns404(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/scenario?name=volcano", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestActivateScenarioMissingName(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/scenario", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListAgents(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/agents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var infos []fleet.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(infos))
	}

	rec = doRequest(t, s, http.MethodGet, "/agents?kind=sensor", "")
	infos = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(infos) != 1 || infos[0].AgentType != fleet.KindSensor {
		t.Errorf("kind filter failed: %+v", infos)
	}

	rec = doRequest(t, s, http.MethodGet, "/agents?kind=submarine", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind not rejected: %d", rec.Code)
	}
}

func TestGetAgent(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/agents/sensor-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Info    fleet.Info        `json:"info"`
		History []fleet.Telemetry `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Info.AgentID != "sensor-01" {
		t.Errorf("wrong agent: %+v", body.Info)
	}

	rec = doRequest(t, s, http.MethodGet, "/agents/ghost-01", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", rec.Code)
	}
}

func TestAgentCommand(t *testing.T) {
	s, _, reg, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/agents/drone-01/command",
		`{"action":"dispatch","target":{"lat":35.5,"lon":-97.5}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var ack fleet.Ack
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if ack["ok"] != true {
		t.Errorf("command not acknowledged: %+v", ack)
	}
	a, _ := reg.Get("drone-01")
	if a.Status() != fleet.StatusBusy {
		t.Errorf("drone not dispatched: %s", a.Status())
	}

	rec = doRequest(t, s, http.MethodPost, "/agents/ghost-01/command", `{"action":"dispatch"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/agents/drone-01/command", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty action status = %d, want 400", rec.Code)
	}
}

func TestFleetHealthEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/fleet-health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var h fleet.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if h.TotalAgents != 2 || h.HealthScore != 100 {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	s, _, _, b := newTestServer(t)

	var got bus.Event
	b.Subscribe(bus.TypeAlertAcknowledged, func(e bus.Event) { got = e })

	rec := doRequest(t, s, http.MethodPost, "/alerts/alrt-42/ack", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["acknowledged"] != "alrt-42" {
		t.Errorf("acknowledged = %q", body["acknowledged"])
	}
	if got.Type != bus.TypeAlertAcknowledged {
		t.Fatalf("no alert.acknowledged event published")
	}
	if got.Payload["alert_id"] != "alrt-42" {
		t.Errorf("alert_id = %v", got.Payload["alert_id"])
	}
}

func TestEventWebsocketStream(t *testing.T) {
	s, _, _, b := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, resp, err := wsDial(wsURL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for b.StreamCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never opened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(bus.New(bus.TypeLeakAlert, map[string]any{"severity": "major"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev bus.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != bus.TypeLeakAlert || ev.Payload["severity"] != "major" {
		t.Errorf("unexpected event: %+v", ev)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for b.StreamCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream not closed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
