package domain

import (
	"fmt"
	"strings"
)

// Scenario selects the timing and failure policy of a simulated apply.
type Scenario string

const (
	// ScenarioDefault is the moderate policy used when no scenario is given.
	ScenarioDefault          Scenario = ""
	ScenarioFastSuccess      Scenario = "fast-success"
	ScenarioSimulatedFailure Scenario = "simulated-failure"
	ScenarioLongRunning      Scenario = "long-running"
	ScenarioPartialFailure   Scenario = "partial-failure"
)

// ParseScenario parses a scenario name. The empty string maps to ScenarioDefault.
func ParseScenario(s string) (Scenario, error) {
	switch sc := Scenario(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScenarioDefault, ScenarioFastSuccess, ScenarioSimulatedFailure, ScenarioLongRunning, ScenarioPartialFailure:
		return sc, nil
	default:
		return "", fmt.Errorf("unknown scenario %q", s)
	}
}

func (s Scenario) String() string {
	if s == ScenarioDefault {
		return "default"
	}
	return string(s)
}
