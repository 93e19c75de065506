package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"edgeops-sim/internal/bus"
)

// captureWriter records events and optionally fails.
type captureWriter struct {
	mu     sync.Mutex
	events []bus.Event
	err    error
}

func (c *captureWriter) WriteEvent(e bus.Event) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *captureWriter) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}

	ev := bus.New(bus.TypeLeakAlert, map[string]any{"severity": "minor"})
	if err := w.WriteEvent(ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	var decoded bus.Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if decoded.Type != bus.TypeLeakAlert || decoded.Payload["severity"] != "minor" {
		t.Errorf("roundtrip mismatch: %+v", decoded)
	}
}

func TestFileWriterAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := fw.WriteEvent(bus.New(bus.TypeTelemetryTick, map[string]any{"tick": i})); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev bus.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("expected 3 lines, got %d", lines)
	}
}

func TestMultiWriterFanOut(t *testing.T) {
	a := &captureWriter{}
	b := &captureWriter{}
	mw := NewMultiWriter(a, b)

	if err := mw.WriteEvent(bus.New(bus.TypeDeviceStatus, nil)); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("event not fanned out: %d, %d", len(a.events), len(b.events))
	}

	failing := &captureWriter{err: errors.New("sink down")}
	mw = NewMultiWriter(failing, a)
	if err := mw.WriteEvent(bus.New(bus.TypeDeviceStatus, nil)); err == nil {
		t.Errorf("expected error from failing writer")
	}
}

func TestReplayPreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		ev := bus.Event{
			Type:      bus.TypeTelemetryTick,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Payload:   map[string]any{"tick": float64(i)},
		}
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	out := &captureWriter{}
	if err := ReplayLog(&buf, out, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(out.events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(out.events))
	}
	for i, ev := range out.events {
		if ev.Payload["tick"] != float64(i) {
			t.Errorf("event %d out of order: %v", i, ev.Payload["tick"])
		}
	}
}

func TestReplayStopsOnWriterError(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		enc.Encode(bus.New(bus.TypeTelemetryTick, nil))
	}

	out := &captureWriter{err: errors.New("sink down")}
	if err := ReplayLog(&buf, out, 0); err == nil {
		t.Fatalf("expected writer error to surface")
	}
}

func TestDrainPumpsStreamToWriter(t *testing.T) {
	b := bus.NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	st := b.OpenStream()
	out := &captureWriter{}
	done := make(chan struct{})
	go func() {
		Drain(ctx, st, out)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		b.Publish(bus.New(bus.TypeTelemetryTick, map[string]any{"tick": i}))
	}

	deadline := time.Now().Add(time.Second)
	for out.len() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("drain delivered %d of 5 events", out.len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Closing the stream ends the pump.
	b.CloseStream(st)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("drain did not exit on stream close")
	}
}
