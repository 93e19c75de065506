package world

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is an ordered list of timed world mutations.
type Scenario struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// ScenarioInfo is the listing entry exposed to operators.
type ScenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenario reads a YAML scenario definition from disk.
func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &sc, nil
}

// ListScenarios returns the built-in scenarios sorted by name.
func ListScenarios() []ScenarioInfo {
	builtins := BuiltIn()
	infos := make([]ScenarioInfo, 0, len(builtins))
	for name, sc := range builtins {
		infos = append(infos, ScenarioInfo{Name: name, Description: sc.Description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// BuiltIn returns the predefined scenario table.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"normal_operations": {
			Name:        "normal_operations",
			Description: "Steady-state normal operations, no faults injected.",
			Steps: []Step{
				{
					Name:       "normal_operations",
					DelayTicks: 0,
					Mutations: map[string]any{
						"force_leak":           false,
						"force_valve_fault":    false,
						"force_camera_offline": false,
						"shutdown_active":      false,
						"leak_lambda":          0.008,
						"weather_factor":       1.0,
					},
				},
			},
		},
		"cascade_failure": {
			Name:        "cascade_failure",
			Description: "Leak triggers pressure drop, valve fault, then incident cascade.",
			Steps: []Step{
				{
					Name:       "cascade_failure",
					DelayTicks: 0,
					Mutations:  map[string]any{"leak_lambda": 0.5, "force_leak": true},
				},
				{
					DelayTicks: 3,
					Mutations:  map[string]any{"force_valve_fault": true},
				},
				{
					DelayTicks: 6,
					Mutations:  map[string]any{"force_camera_offline": true, "weather_factor": 0.4},
				},
				{
					DelayTicks: 12,
					Mutations: map[string]any{
						"force_leak":           false,
						"force_valve_fault":    false,
						"force_camera_offline": false,
						"leak_lambda":          0.008,
						"weather_factor":       0.8,
					},
				},
			},
		},
		"maintenance_window": {
			Name:        "maintenance_window",
			Description: "Planned maintenance, valves go offline one at a time.",
			Steps: []Step{
				{
					Name:       "maintenance_window",
					DelayTicks: 0,
					Mutations:  map[string]any{"operational_load": 0.3, "force_valve_fault": true},
				},
				{
					DelayTicks: 10,
					Mutations:  map[string]any{"force_valve_fault": false, "operational_load": 0.5},
				},
				{
					DelayTicks: 20,
					Mutations:  map[string]any{"operational_load": 0.9},
				},
			},
		},
		"emergency_shutdown": {
			Name:        "emergency_shutdown",
			Description: "Emergency shutdown, all systems ramp down rapidly.",
			Steps: []Step{
				{
					Name:       "emergency_shutdown",
					DelayTicks: 0,
					Mutations: map[string]any{
						"shutdown_active":  true,
						"operational_load": 0.05,
						"force_leak":       true,
						"leak_lambda":      0.8,
					},
				},
				{
					DelayTicks: 4,
					Mutations:  map[string]any{"force_valve_fault": true, "force_camera_offline": true},
				},
				{
					DelayTicks: 15,
					Mutations: map[string]any{
						"shutdown_active":      false,
						"force_leak":           false,
						"force_valve_fault":    false,
						"force_camera_offline": false,
						"operational_load":     0.2,
						"leak_lambda":          0.008,
					},
				},
			},
		},
		"bad_weather": {
			Name:        "bad_weather",
			Description: "Severe weather reduces visibility and raises failure rates.",
			Steps: []Step{
				{
					Name:       "bad_weather",
					DelayTicks: 0,
					Mutations:  map[string]any{"weather_factor": 0.3, "leak_lambda": 0.04},
				},
				{
					DelayTicks: 20,
					Mutations:  map[string]any{"weather_factor": 0.7, "leak_lambda": 0.015},
				},
				{
					DelayTicks: 40,
					Mutations:  map[string]any{"weather_factor": 1.0, "leak_lambda": 0.008},
				},
			},
		},
	}
}
