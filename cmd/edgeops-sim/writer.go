package main

import (
	"log/slog"
	"os"

	"edgeops-sim/internal/config"
	"edgeops-sim/internal/sink"
)

// newEventWriter sets up the event sink based on flags and env vars.
// It returns the writer and a cleanup function to close any resources.
func newEventWriter(cfg *config.SimulationConfig, log *slog.Logger, printOnly, tui bool, logFile string) (sink.EventWriter, func(), error) {
	cleanup := func() {}

	writer, err := baseEventWriter(cfg, log, printOnly, tui)
	if err != nil {
		return nil, nil, err
	}
	if logFile == "" {
		return writer, cleanup, nil
	}

	fw, err := sink.NewFileWriter(logFile)
	if err != nil {
		return nil, nil, err
	}
	cleanup = func() { fw.Close() }
	return sink.NewMultiWriter(writer, fw), cleanup, nil
}

// baseEventWriter chooses the underlying writer based on flags and env vars.
func baseEventWriter(cfg *config.SimulationConfig, log *slog.Logger, printOnly, tui bool) (sink.EventWriter, error) {
	if tui {
		return sink.NewTUIWriter(cfg.Site.Name), nil
	}
	if printOnly || os.Getenv("GREPTIMEDB_ENDPOINT") == "" {
		return sink.NewJSONStdoutWriter(), nil
	}
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	return sink.NewGreptimeDBWriter(endpoint, database, log)
}

// sinkTUI unwraps the TUI writer if one is in the sink chain.
func sinkTUI(w sink.EventWriter) (*sink.TUIWriter, bool) {
	switch v := w.(type) {
	case *sink.TUIWriter:
		return v, true
	case *sink.MultiWriter:
		for _, inner := range v.Writers() {
			if t, ok := inner.(*sink.TUIWriter); ok {
				return t, true
			}
		}
	}
	return nil, false
}
