package world

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltInScenarios(t *testing.T) {
	builtins := BuiltIn()
	for _, name := range []string{
		"normal_operations",
		"cascade_failure",
		"maintenance_window",
		"emergency_shutdown",
		"bad_weather",
	} {
		sc, ok := builtins[name]
		if !ok {
			t.Errorf("missing built-in scenario %q", name)
			continue
		}
		if len(sc.Steps) == 0 {
			t.Errorf("scenario %q has no steps", name)
		}
		if sc.Description == "" {
			t.Errorf("scenario %q has no description", name)
		}
	}
}

func TestListScenariosSorted(t *testing.T) {
	infos := ListScenarios()
	if len(infos) != len(BuiltIn()) {
		t.Fatalf("expected %d scenarios, got %d", len(BuiltIn()), len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].Name >= infos[i].Name {
			t.Errorf("listing not sorted: %q before %q", infos[i-1].Name, infos[i].Name)
		}
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	yaml := `
name: custom-drill
description: Drill scenario for testing.
steps:
  - name: custom-drill
    delay_ticks: 0
    mutations:
      force_leak: true
  - delay_ticks: 5
    mutations:
      force_leak: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write temp scenario: %v", err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Name != "custom-drill" || len(sc.Steps) != 2 {
		t.Fatalf("unexpected scenario: %+v", sc)
	}
	if sc.Steps[1].DelayTicks != 5 {
		t.Errorf("delay not parsed: %+v", sc.Steps[1])
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	if _, err := LoadScenario("does-not-exist.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
