// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Site describes the physical facility the simulation is anchored to.
type Site struct {
	Name      string  `yaml:"name"`
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`
}

// World holds simulation engine settings.
type World struct {
	TickSeconds     float64 `yaml:"tick_seconds"`
	InitialScenario string  `yaml:"initial_scenario"`
}

// Monitor holds fleet liveness settings.
type Monitor struct {
	HeartbeatTimeoutSeconds float64 `yaml:"heartbeat_timeout_seconds"`
	IntervalSeconds         float64 `yaml:"interval_seconds"`
}

// Bus holds event bus buffer sizes. Zero values fall back to the bus
// package defaults.
type Bus struct {
	QueueSize    int `yaml:"queue_size"`
	StreamBuffer int `yaml:"stream_buffer"`
}

// FleetConfig defines a group of agents of the same kind and cadence.
type FleetConfig struct {
	Name        string  `yaml:"name"`
	Kind        string  `yaml:"kind"`
	Count       int     `yaml:"count"`
	TickSeconds float64 `yaml:"tick_seconds"`
}

// SimulationConfig is the root configuration for site, world, fleets, and bus.
type SimulationConfig struct {
	Site    Site          `yaml:"site"`
	World   World         `yaml:"world"`
	Monitor Monitor       `yaml:"monitor"`
	Bus     Bus           `yaml:"bus"`
	Fleets  []FleetConfig `yaml:"fleets"`
}

// Load loads YAML config and validates it against a CUE schema
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	// Validate with CUE first
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
