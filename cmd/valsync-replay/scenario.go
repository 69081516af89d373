package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"valsync/pkg/instance/memtree"
	"valsync/pkg/template"
)

const defaultRoot = "canvas"

// Scenario is a replayable sequence of commits against one template set.
type Scenario struct {
	Templates template.Document `yaml:"templates"`
	// Context seeds SetContextData before the first commit.
	Context []ContextData `yaml:"context,omitempty"`
	Commits []Commit      `yaml:"commits"`
	Unmount []string      `yaml:"unmount,omitempty"`
}

// ContextData is handed to the prop validators of one code component.
type ContextData struct {
	Frame       string `yaml:"frame"`
	InstanceKey string `yaml:"instance_key"`
	Data        any    `yaml:"data"`
}

// Commit renders Tree into Root.
type Commit struct {
	Name string          `yaml:"name,omitempty"`
	Root string          `yaml:"root,omitempty"`
	Tree memtree.Element `yaml:"tree"`
}

func loadScenario(path string) (Scenario, error) {
	// #nosec G304 -- path is an operator supplied scenario file.
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return parseScenario(data)
}

func parseScenario(data []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Commits) == 0 {
		return Scenario{}, fmt.Errorf("scenario has no commits")
	}
	for i := range sc.Commits {
		if sc.Commits[i].Root == "" {
			sc.Commits[i].Root = defaultRoot
		}
		if sc.Commits[i].Name == "" {
			sc.Commits[i].Name = fmt.Sprintf("commit-%d", i+1)
		}
	}
	return sc, nil
}
