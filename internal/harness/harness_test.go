package harness_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyturn/keyturn/internal/harness"
)

// TestScenarios runs every YAML scenario under testdata/scenarios and
// compares its audit trace against the matching golden file.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenarios found")

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := harness.LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match file name")

			result, err := harness.Run(scenario)
			require.NoError(t, err)
			require.NoError(t, harness.Check(result))
			harness.AssertGolden(t, result)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario := &harness.Scenario{
		Name:          "determinism",
		Description:   "two runs of the same flow produce identical traces",
		TransactionID: "tx-repeat",
		Documents:     []string{"pre_approval_letter"},
		Flow: []harness.FlowStep{
			{Step: 1, Action: harness.FlowStart},
			{Step: 1, Action: harness.FlowTask, Task: "financial-profile"},
			{Step: 1, Action: harness.FlowTask, Task: "submit-application"},
			{Step: 1, Action: harness.FlowTask, Task: "receive-letter"},
		},
	}

	first, err := harness.Run(scenario)
	require.NoError(t, err)
	second, err := harness.Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, harness.RenderTrace(first), harness.RenderTrace(second))
	assert.NotEmpty(t, first.Transitions)
}

func TestCheck_ReportsEveryFailure(t *testing.T) {
	scenario := &harness.Scenario{
		Name:        "failing-assertions",
		Description: "assertion failures are collected, not short-circuited",
		Flow: []harness.FlowStep{
			{Step: 1, Action: harness.FlowStart},
		},
		Assertions: []harness.Assertion{
			{Type: harness.AssertStepStatus, Step: 1, Status: "completed"},
			{Type: harness.AssertEventCount, Event: "step.completed", Count: 3},
		},
	}

	result, err := harness.Run(scenario)
	require.NoError(t, err)

	err = harness.Check(result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 assertion(s) failed")
	assert.Contains(t, err.Error(), "status in_progress, want completed")
	assert.Contains(t, err.Error(), "emitted 0 time(s), want 3")
}

func TestRun_UnexpectedErrorFailsTheRun(t *testing.T) {
	scenario := &harness.Scenario{
		Name:        "surprise-rejection",
		Description: "a rejection without an expect clause fails the run",
		Flow: []harness.FlowStep{
			{Step: 2, Action: harness.FlowStart},
		},
	}

	_, err := harness.Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected error")
}

func TestParseScenario_Rejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: y\nflows: []\n",
			want: "parse scenario",
		},
		{
			name: "missing name",
			yaml: "description: y\nflow:\n  - {step: 1, action: start}\n",
			want: "name is required",
		},
		{
			name: "empty flow",
			yaml: "name: x\ndescription: y\nflow: []\n",
			want: "flow list is required",
		},
		{
			name: "unknown action",
			yaml: "name: x\ndescription: y\nflow:\n  - {step: 1, action: pause}\n",
			want: `unknown action "pause"`,
		},
		{
			name: "task action without task id",
			yaml: "name: x\ndescription: y\nflow:\n  - {step: 1, action: task}\n",
			want: "task is required",
		},
		{
			name: "unknown assertion type",
			yaml: "name: x\ndescription: y\nflow:\n  - {step: 1, action: start}\nassertions:\n  - {type: step_state, step: 1, status: pending}\n",
			want: `unknown assertion type "step_state"`,
		},
		{
			name: "event order without events",
			yaml: "name: x\ndescription: y\nflow:\n  - {step: 1, action: start}\nassertions:\n  - {type: event_order}\n",
			want: "events list is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := harness.ParseScenario([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseScenario_DefaultsTransactionID(t *testing.T) {
	scenario, err := harness.ParseScenario([]byte(
		"name: x\ndescription: y\nflow:\n  - {step: 1, action: start}\n"))
	require.NoError(t, err)
	assert.Equal(t, "tx-scenario", scenario.TransactionID)
}
