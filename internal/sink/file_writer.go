package sink

import (
	"encoding/json"
	"os"

	"edgeops-sim/internal/bus"
)

// FileWriter appends events to a JSONL log file, suitable for later replay.
type FileWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter creates a FileWriter, truncating any existing file at path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// WriteEvent logs a single event.
func (f *FileWriter) WriteEvent(e bus.Event) error {
	return f.enc.Encode(e)
}

// WriteEvents logs multiple events.
func (f *FileWriter) WriteEvents(events []bus.Event) error {
	for _, e := range events {
		if err := f.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	return f.file.Close()
}
