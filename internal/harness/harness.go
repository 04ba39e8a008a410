package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/keyturn/keyturn/internal/activity"
	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/progress"
	"github.com/keyturn/keyturn/internal/store"
	"github.com/keyturn/keyturn/internal/testutil"
	"github.com/keyturn/keyturn/internal/workflow"
)

// FlowOutcome records what happened when one flow step ran.
type FlowOutcome struct {
	Index  int
	Step   int
	Action string
	Result *workflow.StepExecutionResult
	Err    error
}

// Result is the full outcome of running a scenario: final state, the audit
// trail, and every event the engine emitted, in order.
type Result struct {
	Scenario *Scenario

	// StepStatuses maps step number to final status.
	StepStatuses map[int]progress.StepStatus

	// TaskStatuses maps "step/taskID" to final status.
	TaskStatuses map[string]progress.TaskStatus

	// Details maps "step/key" to the recorded value.
	Details map[string]string

	// NextAvailable lists the steps startable after the flow ran.
	NextAvailable []int

	// Transitions is the committed audit trail, ordered by seq.
	Transitions []progress.Transition

	// Events is every engine notification in emission order.
	Events []workflow.Event

	// Outcomes holds the per-flow-step results and errors.
	Outcomes []FlowOutcome
}

// Run executes a scenario against a fresh in-memory store with a
// deterministic clock and stubbed collaborators, so repeated runs produce
// identical traces. Flow steps whose outcome disagrees with their Expect
// clause fail the run.
func Run(scenario *Scenario) (*Result, error) {
	cat, err := compileCatalog(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	notifier := &testutil.RecordingNotifier{}
	clock := testutil.NewDeterministicClock()
	engine := workflow.New(cat, st,
		workflow.WithRegistry(activity.DefaultRegistry(activity.Stubs())),
		workflow.WithNotifier(notifier),
		workflow.WithClock(clock),
		workflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx := context.Background()
	txID := scenario.TransactionID

	if err := recordDocuments(ctx, st, txID, scenario.Documents, clock); err != nil {
		return nil, err
	}

	result := &Result{
		Scenario:     scenario,
		StepStatuses: make(map[int]progress.StepStatus),
		TaskStatuses: make(map[string]progress.TaskStatus),
		Details:      make(map[string]string),
	}

	for i, flow := range scenario.Flow {
		if err := recordDocuments(ctx, st, txID, flow.Documents, clock); err != nil {
			return nil, err
		}
		action, err := flowAction(flow)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		res, execErr := engine.ExecuteStep(ctx, txID, flow.Step, action)
		result.Outcomes = append(result.Outcomes, FlowOutcome{
			Index:  i,
			Step:   flow.Step,
			Action: flow.Action,
			Result: res,
			Err:    execErr,
		})
		if err := checkExpect(i, flow, execErr); err != nil {
			return nil, err
		}
	}

	if err := collectState(ctx, st, txID, result); err != nil {
		return nil, err
	}
	result.NextAvailable, err = engine.NextAvailableSteps(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("next available steps: %w", err)
	}
	result.Events = notifier.Events()
	return result, nil
}

func compileCatalog(scenario *Scenario) (*catalog.Catalog, error) {
	if scenario.Catalog == "" {
		return catalog.Default()
	}
	cat, err := catalog.Compile(scenario.Name, []byte(scenario.Catalog))
	if err != nil {
		return nil, fmt.Errorf("compile scenario catalog: %w", err)
	}
	return cat, nil
}

func recordDocuments(ctx context.Context, st *store.Store, txID string, docs []string, clock *testutil.DeterministicClock) error {
	for _, doc := range docs {
		if err := st.AddDocument(ctx, txID, catalog.DocumentType(doc), clock.Now()); err != nil {
			return fmt.Errorf("record document %q: %w", doc, err)
		}
	}
	return nil
}

func flowAction(flow FlowStep) (workflow.Action, error) {
	switch flow.Action {
	case FlowStart:
		return workflow.Start(), nil
	case FlowComplete:
		return workflow.Complete(), nil
	case FlowCancel:
		return workflow.Cancel(flow.Notes), nil
	case FlowTask:
		if flow.Status == "" || flow.Status == string(progress.TaskCompleted) {
			return workflow.CompleteTask(flow.Task, flow.By), nil
		}
		return workflow.SetTask(flow.Task, progress.TaskStatus(flow.Status)), nil
	default:
		return workflow.Action{}, fmt.Errorf("unknown action %q", flow.Action)
	}
}

func checkExpect(index int, flow FlowStep, execErr error) error {
	if flow.Expect == nil || flow.Expect.Error == "" {
		if execErr != nil {
			return fmt.Errorf("flow[%d]: %s step %d: unexpected error: %w", index, flow.Action, flow.Step, execErr)
		}
		return nil
	}
	code := workflow.CodeOf(execErr)
	if string(code) != flow.Expect.Error {
		return fmt.Errorf("flow[%d]: %s step %d: expected error %s, got %v", index, flow.Action, flow.Step, flow.Expect.Error, execErr)
	}
	if flow.Expect.Blockers > 0 {
		blockers := workflow.BlockersOf(execErr)
		if len(blockers) != flow.Expect.Blockers {
			return fmt.Errorf("flow[%d]: expected %d blockers, got %d", index, flow.Expect.Blockers, len(blockers))
		}
	}
	return nil
}

func collectState(ctx context.Context, st *store.Store, txID string, result *Result) error {
	steps, err := st.ListSteps(ctx, txID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	for _, s := range steps {
		result.StepStatuses[s.Step] = s.Status

		tasks, err := st.ListTasks(ctx, txID, s.Step)
		if err != nil {
			return fmt.Errorf("list tasks for step %d: %w", s.Step, err)
		}
		for _, t := range tasks {
			result.TaskStatuses[fmt.Sprintf("%d/%s", t.Step, t.TaskID)] = t.Status
		}

		details, err := st.ListDetails(ctx, txID, s.Step)
		if err != nil {
			return fmt.Errorf("list details for step %d: %w", s.Step, err)
		}
		for key, value := range details {
			result.Details[fmt.Sprintf("%d/%s", s.Step, key)] = value
		}
	}

	result.Transitions, err = st.ListTransitions(ctx, txID)
	if err != nil {
		return fmt.Errorf("list transitions: %w", err)
	}
	return nil
}
