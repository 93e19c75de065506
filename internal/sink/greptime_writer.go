package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"edgeops-sim/internal/bus"
)

// GreptimeDBWriter persists events to GreptimeDB via the ingester client.
// Event type and originating agent become tag columns so dashboards can
// filter without unpacking the payload JSON.
type GreptimeDBWriter struct {
	client greptime.Client
	log    *slog.Logger
	db     string
	table  string
}

// NewGreptimeDBWriter creates a new GreptimeDB writer and auto-creates the table if needed.
func NewGreptimeDBWriter(endpoint, database string, log *slog.Logger) (*GreptimeDBWriter, error) {
	ctx := ingesterContext.NewContext(context.Background())
	client, err := greptime.NewClient(ctx, &greptime.Config{
		Endpoint: endpoint,
	})
	if err != nil {
		return nil, err
	}

	// Auto-create table schema
	ddl := `
CREATE TABLE IF NOT EXISTS edge_events (
  event_type STRING TAG,
  agent_id STRING TAG,
  payload STRING,
  ts TIMESTAMP TIME INDEX
) WITH (ttl='30d')
`
	if _, err := client.SQL(ctx, ddl); err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{
		client: client,
		log:    log,
		db:     database,
		table:  "edge_events",
	}, nil
}

// WriteEvent inserts a single event.
func (w *GreptimeDBWriter) WriteEvent(e bus.Event) error {
	return w.WriteEvents([]bus.Event{e})
}

// WriteEvents inserts multiple events.
func (w *GreptimeDBWriter) WriteEvents(events []bus.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx := ingesterContext.NewContext(context.Background())

	tbl := table.New(w.table)
	tbl.AddTagColumn("event_type", types.StringType, 0)
	tbl.AddTagColumn("agent_id", types.StringType, 0)
	tbl.AddFieldColumn("payload", types.StringType)
	tbl.SetTimeIndex("ts", types.TimestampType)

	for _, e := range events {
		agentID, _ := e.Payload["agent_id"].(string)
		payload, _ := json.Marshal(e.Payload)
		tbl.AppendTagValue("event_type", string(e.Type))
		tbl.AppendTagValue("agent_id", agentID)
		tbl.AppendFieldValue("payload", string(payload))
		tbl.AppendTimeIndex(e.Timestamp)
	}

	if err := w.client.Write(ctx, w.db, []*table.Table{tbl}); err != nil {
		w.log.Error("greptime write failed", "err", err, "events", len(events))
		return err
	}
	return nil
}
