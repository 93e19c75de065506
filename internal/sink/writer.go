// Event sinks: pluggable writers fed from bus streams.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"edgeops-sim/internal/bus"
)

// EventWriter consumes events pulled off a bus stream.
type EventWriter interface {
	WriteEvent(bus.Event) error
}

// batchEventWriter is implemented by writers that can ingest events in bulk.
type batchEventWriter interface {
	WriteEvents([]bus.Event) error
}

// JSONStdoutWriter prints events as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// WriteEvent outputs one event in JSON format.
func (w *JSONStdoutWriter) WriteEvent(e bus.Event) error {
	data, _ := json.Marshal(e)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteEvents outputs multiple events in JSON format.
func (w *JSONStdoutWriter) WriteEvents(events []bus.Event) error {
	for _, e := range events {
		_ = w.WriteEvent(e)
	}
	return nil
}

// MultiWriter fans events out to multiple writers.
type MultiWriter struct {
	writers []EventWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...EventWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Writers returns the fan-out targets.
func (mw *MultiWriter) Writers() []EventWriter {
	return mw.writers
}

// WriteEvent sends one event to all writers.
func (mw *MultiWriter) WriteEvent(e bus.Event) error {
	for _, w := range mw.writers {
		if err := w.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvents sends multiple events to all writers, using batch ingestion
// where supported.
func (mw *MultiWriter) WriteEvents(events []bus.Event) error {
	for _, w := range mw.writers {
		if bw, ok := w.(batchEventWriter); ok {
			if err := bw.WriteEvents(events); err != nil {
				return err
			}
			continue
		}
		for _, e := range events {
			if err := w.WriteEvent(e); err != nil {
				return err
			}
		}
	}
	return nil
}
