package harness

import (
	"fmt"
	"slices"
	"strings"
)

// Check evaluates every assertion in the scenario against the run result.
// All failures are reported together so a broken scenario reads in one pass.
func Check(result *Result) error {
	var failures []string
	for i, a := range result.Scenario.Assertions {
		if err := checkAssertion(result, &a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d assertion(s) failed:\n  %s", len(failures), strings.Join(failures, "\n  "))
	}
	return nil
}

func checkAssertion(result *Result, a *Assertion) error {
	switch a.Type {
	case AssertStepStatus:
		got, ok := result.StepStatuses[a.Step]
		if !ok {
			return fmt.Errorf("step %d has no recorded progress", a.Step)
		}
		if string(got) != a.Status {
			return fmt.Errorf("step %d: status %s, want %s", a.Step, got, a.Status)
		}

	case AssertTaskStatus:
		key := fmt.Sprintf("%d/%s", a.Step, a.Task)
		got, ok := result.TaskStatuses[key]
		if !ok {
			return fmt.Errorf("task %s has no recorded progress", key)
		}
		if string(got) != a.Status {
			return fmt.Errorf("task %s: status %s, want %s", key, got, a.Status)
		}

	case AssertDetail:
		key := fmt.Sprintf("%d/%s", a.Step, a.Key)
		got, ok := result.Details[key]
		if !ok {
			return fmt.Errorf("detail %s not recorded", key)
		}
		if got != a.Value {
			return fmt.Errorf("detail %s: value %q, want %q", key, got, a.Value)
		}

	case AssertEventCount:
		count := 0
		for _, event := range result.Events {
			if event.Name == a.Event {
				count++
			}
		}
		if count != a.Count {
			return fmt.Errorf("event %s emitted %d time(s), want %d", a.Event, count, a.Count)
		}

	case AssertEventOrder:
		// Events must appear as a subsequence of the emission order.
		next := 0
		for _, event := range result.Events {
			if next < len(a.Events) && event.Name == a.Events[next] {
				next++
			}
		}
		if next != len(a.Events) {
			if next == 0 {
				return fmt.Errorf("event %s never emitted", a.Events[0])
			}
			return fmt.Errorf("event %s never emitted after %s", a.Events[next], a.Events[next-1])
		}

	case AssertNextAvailable:
		if !slices.Equal(result.NextAvailable, a.Steps) {
			return fmt.Errorf("next available steps %v, want %v", result.NextAvailable, a.Steps)
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
