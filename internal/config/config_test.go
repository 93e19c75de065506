package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testSchema = `
site: {
	name:       string & !=""
	center_lat: number & >=-90 & <=90
	center_lon: number & >=-180 & <=180
}

world: {
	tick_seconds:     number & >0
	initial_scenario: string
}

fleets: [...{
	name:         string & !=""
	kind:         "drone" | "rover" | "sensor" | "gateway"
	count:        int & >0
	tick_seconds: number & >0
}]
`

func writeTestFiles(t *testing.T, yaml string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "simulation.yaml")
	cuePath := filepath.Join(dir, "simulation.cue")
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(cuePath, []byte(testSchema), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	return cfgPath, cuePath
}

func TestLoadConfigValid(t *testing.T) {
	yaml := `
site:
  name: test-site
  center_lat: 35.4
  center_lon: -97.5
world:
  tick_seconds: 2.0
  initial_scenario: normal_operations
fleets:
  - name: flow-sensor
    kind: sensor
    count: 3
    tick_seconds: 5.0
  - name: patrol-drone
    kind: drone
    count: 2
    tick_seconds: 4.0
`
	cfgPath, cuePath := writeTestFiles(t, yaml)

	cfg, err := Load(cfgPath, cuePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Site.Name != "test-site" {
		t.Errorf("site name not parsed: %q", cfg.Site.Name)
	}
	if cfg.World.TickSeconds != 2.0 {
		t.Errorf("tick seconds not parsed: %f", cfg.World.TickSeconds)
	}
	if len(cfg.Fleets) != 2 || cfg.Fleets[0].Kind != "sensor" || cfg.Fleets[1].Count != 2 {
		t.Errorf("fleets not parsed: %+v", cfg.Fleets)
	}
}

func TestLoadConfigUnknownKindRejected(t *testing.T) {
	yaml := `
site:
  name: test-site
  center_lat: 35.4
  center_lon: -97.5
world:
  tick_seconds: 2.0
  initial_scenario: ""
fleets:
  - name: submarine-pod
    kind: submarine
    count: 1
    tick_seconds: 5.0
`
	cfgPath, cuePath := writeTestFiles(t, yaml)

	if _, err := Load(cfgPath, cuePath); err == nil {
		t.Fatalf("expected schema rejection for unknown kind")
	}
}

func TestLoadConfigZeroCountRejected(t *testing.T) {
	yaml := `
site:
  name: test-site
  center_lat: 35.4
  center_lon: -97.5
world:
  tick_seconds: 2.0
  initial_scenario: ""
fleets:
  - name: flow-sensor
    kind: sensor
    count: 0
    tick_seconds: 5.0
`
	cfgPath, cuePath := writeTestFiles(t, yaml)

	if _, err := Load(cfgPath, cuePath); err == nil {
		t.Fatalf("expected schema rejection for zero count")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load("missing.yaml", "missing.cue"); err == nil {
		t.Fatalf("expected error for missing files")
	}
}
