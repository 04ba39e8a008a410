package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a sequence of step actions
// against one transaction, and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TransactionID fixes the transaction id so stub collaborator
	// references are stable. Defaults to "tx-scenario".
	TransactionID string `yaml:"transaction_id,omitempty"`

	// Catalog is optional inline CUE source. Empty means the embedded
	// closing catalog.
	Catalog string `yaml:"catalog,omitempty"`

	// Documents are recorded before the flow runs, as if uploaded.
	Documents []string `yaml:"documents,omitempty"`

	// Flow is the ordered list of step actions to execute.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate final state and the audit trail.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one action in the scenario flow.
type FlowStep struct {
	// Step is the catalog step number to act on.
	Step int `yaml:"step"`

	// Action is one of start, complete, task, cancel.
	Action string `yaml:"action"`

	// Task is the task id, required when Action is "task".
	Task string `yaml:"task,omitempty"`

	// Status is the target task status; defaults to completed.
	Status string `yaml:"status,omitempty"`

	// By records who completed the task.
	By string `yaml:"by,omitempty"`

	// Notes is the cancellation reason for cancel actions.
	Notes string `yaml:"notes,omitempty"`

	// Documents are recorded just before this step runs, for flows where
	// an upload happens mid-closing.
	Documents []string `yaml:"documents,omitempty"`

	// Expect validates the outcome. Nil means the action must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a flow step.
type ExpectClause struct {
	// Error is the expected workflow error code (e.g.
	// PREREQUISITES_NOT_MET). Empty means success.
	Error string `yaml:"error,omitempty"`

	// Blockers is the expected number of blockers on a rejected action.
	Blockers int `yaml:"blockers,omitempty"`
}

// Assertion validates final state or the audit trail.
type Assertion struct {
	// Type is one of step_status, task_status, detail, event_count,
	// event_order.
	Type string `yaml:"type"`

	// Step is the step number (step_status, task_status, detail).
	Step int `yaml:"step,omitempty"`

	// Task is the task id (task_status).
	Task string `yaml:"task,omitempty"`

	// Status is the expected status (step_status, task_status).
	Status string `yaml:"status,omitempty"`

	// Key and Value are the expected detail entry (detail).
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`

	// Event is the event name (event_count).
	Event string `yaml:"event,omitempty"`

	// Count is the expected occurrence count (event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected subsequence of event names (event_order).
	Events []string `yaml:"events,omitempty"`

	// Steps is the expected set of startable steps (next_available). An
	// absent or empty list asserts nothing is startable.
	Steps []int `yaml:"steps,omitempty"`
}

// Assertion type constants.
const (
	AssertStepStatus    = "step_status"
	AssertTaskStatus    = "task_status"
	AssertDetail        = "detail"
	AssertEventCount    = "event_count"
	AssertEventOrder    = "event_order"
	AssertNextAvailable = "next_available"
)

// Flow action constants.
const (
	FlowStart    = "start"
	FlowComplete = "complete"
	FlowTask     = "task"
	FlowCancel   = "cancel"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML source.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.TransactionID == "" {
		scenario.TransactionID = "tx-scenario"
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Step <= 0 {
			return fmt.Errorf("flow[%d]: step must be positive", i)
		}
		switch step.Action {
		case FlowStart, FlowComplete, FlowCancel:
		case FlowTask:
			if step.Task == "" {
				return fmt.Errorf("flow[%d]: task is required for task actions", i)
			}
		default:
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertStepStatus:
		if a.Step <= 0 || a.Status == "" {
			return fmt.Errorf("assertions[%d]: step and status are required for step_status", index)
		}
	case AssertTaskStatus:
		if a.Step <= 0 || a.Task == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: step, task, and status are required for task_status", index)
		}
	case AssertDetail:
		if a.Step <= 0 || a.Key == "" {
			return fmt.Errorf("assertions[%d]: step and key are required for detail", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertNextAvailable:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
