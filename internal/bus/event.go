// Typed domain events and the fixed vocabulary the bus distributes
package bus

import "time"

// Type identifies a domain event kind. Only types in the registered
// vocabulary are distributed; anything else is dropped at publish time.
type Type string

const (
	TypeValveActuationRequested Type = "valve.actuation.requested"
	TypeValveActuationCompleted Type = "valve.actuation.completed"
	TypeLeakAlert               Type = "leak.alert"
	TypeTelemetryTick           Type = "telemetry.tick"
	TypeAnomalyDetected         Type = "anomaly.detected"
	TypeMissionStarted          Type = "mission.started"
	TypeMissionCompleted        Type = "mission.completed"
	TypeDeviceStatus            Type = "device.status"
	TypeAgentTelemetry          Type = "agent.telemetry"
	TypeAgentDiscovered         Type = "agent.discovered"
	TypeAgentOffline            Type = "agent.offline"
	TypeFlowMetricsUpdated      Type = "flow.metrics.updated"
	TypeAlertCreated            Type = "alert.created"
	TypeAlertAcknowledged       Type = "alert.acknowledged"
)

var vocabulary = map[Type]struct{}{
	TypeValveActuationRequested: {},
	TypeValveActuationCompleted: {},
	TypeLeakAlert:               {},
	TypeTelemetryTick:           {},
	TypeAnomalyDetected:         {},
	TypeMissionStarted:          {},
	TypeMissionCompleted:        {},
	TypeDeviceStatus:            {},
	TypeAgentTelemetry:          {},
	TypeAgentDiscovered:         {},
	TypeAgentOffline:            {},
	TypeFlowMetricsUpdated:      {},
	TypeAlertCreated:            {},
	TypeAlertAcknowledged:       {},
}

// Known reports whether t belongs to the registered vocabulary.
func Known(t Type) bool {
	_, ok := vocabulary[t]
	return ok
}

// Types returns the full vocabulary. The slice is a copy.
func Types() []Type {
	out := make([]Type, 0, len(vocabulary))
	for t := range vocabulary {
		out = append(out, t)
	}
	return out
}

// Event is one typed occurrence with an arbitrary payload.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"ts"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New builds an event of the given type. The bus stamps the timestamp at
// publish time if left zero.
func New(t Type, payload map[string]any) Event {
	return Event{Type: t, Payload: payload}
}
