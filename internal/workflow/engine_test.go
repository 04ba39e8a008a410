package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/progress"
	"github.com/keyturn/keyturn/internal/store"
	"github.com/keyturn/keyturn/internal/testutil"
	"github.com/keyturn/keyturn/internal/workflow"
)

// testCatalog is a small closing catalog exercising every rule shape:
// an advance chain, a fan-out, a document-gated step, and a branch.
const testCatalog = `
catalog: {
	phases: [{id: "p1", name: "p1", display_name: "Test", order: 1}]
	steps: [
		{number: 1, title: "Offer", phase: "p1", depends_on: [], required_documents: [], estimated_days: 1, tasks: [{id: "a1", name: "Draft"}, {id: "a2", name: "Sign"}]},
		{number: 2, title: "Deposit", phase: "p1", depends_on: [1], required_documents: [], estimated_days: 1, tasks: [{id: "b1", name: "Wire"}]},
		{number: 3, title: "Inspection", phase: "p1", depends_on: [], required_documents: ["inspection_report"], estimated_days: 1, tasks: [{id: "c1", name: "Walk"}]},
		{number: 4, title: "Contract", phase: "p1", depends_on: [], required_documents: [], estimated_days: 1, tasks: [{id: "d1", name: "Execute"}]},
		{number: 5, title: "Loan", phase: "p1", depends_on: [], required_documents: [], estimated_days: 1, tasks: [{id: "e1", name: "Apply"}]},
		{number: 6, title: "Title", phase: "p1", depends_on: [], required_documents: [], estimated_days: 1, tasks: [{id: "f1", name: "Search"}]},
		{number: 7, title: "Review", phase: "p1", depends_on: [], required_documents: [], estimated_days: 1, tasks: [{id: "g1", name: "Assess"}]},
		{number: 8, title: "Repairs", phase: "p1", depends_on: [], required_documents: [], estimated_days: 1, tasks: [{id: "h1", name: "Negotiate"}]},
	]
	automation: [
		{advance: {from: 1, to: 2}},
		{fanout: {from: 4, to: [5, 6]}},
		{branch: {from: 7, when: {step: 7, key: "inspection.result", equals: "issues"}, true_step: 8, false_step: 6}},
	]
}
`

type fixture struct {
	engine   *workflow.Engine
	store    *store.Store
	registry *workflow.Registry
	notifier *testutil.RecordingNotifier
	clock    *testutil.DeterministicClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c, err := catalog.Compile("test.cue", []byte(testCatalog))
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "keyturn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := workflow.NewRegistry()
	notifier := &testutil.RecordingNotifier{}
	clock := testutil.NewDeterministicClock()

	engine := workflow.New(c, st,
		workflow.WithRegistry(registry),
		workflow.WithNotifier(notifier),
		workflow.WithClock(clock),
	)
	return &fixture{engine: engine, store: st, registry: registry, notifier: notifier, clock: clock}
}

func (f *fixture) stepStatus(t *testing.T, txID string, step int) progress.StepStatus {
	t.Helper()
	sp, err := f.store.GetStep(context.Background(), txID, step)
	require.NoError(t, err)
	return sp.Status
}

// completeTasks drives every task of a step to completed, one at a time.
func (f *fixture) completeTasks(t *testing.T, txID string, step int, taskIDs ...string) *workflow.StepExecutionResult {
	t.Helper()
	var last *workflow.StepExecutionResult
	for _, id := range taskIDs {
		res, err := f.engine.ExecuteStep(context.Background(), txID, step, workflow.CompleteTask(id, "tester"))
		require.NoError(t, err)
		last = res
	}
	return last
}

func TestExecuteStep_StartFreshTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)

	assert.Equal(t, progress.StepInProgress, res.Status)
	assert.Equal(t, progress.StepInProgress, f.stepStatus(t, "tx-1", 1))

	sp, err := f.store.GetStep(ctx, "tx-1", 1)
	require.NoError(t, err)
	require.NotNil(t, sp.StartedAt)
	assert.Nil(t, sp.CompletedAt)

	assert.Equal(t, []string{"step.started"}, f.notifier.Names())
}

func TestExecuteStep_StartBlockedByDependency(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ExecuteStep(context.Background(), "tx-1", 2, workflow.Start())
	require.Error(t, err)

	assert.Equal(t, workflow.CodePrerequisitesNotMet, workflow.CodeOf(err))
	blockers := workflow.BlockersOf(err)
	require.Len(t, blockers, 1)
	assert.Equal(t, workflow.BlockerMissingDependency, blockers[0].Kind)
	assert.Equal(t, 1, blockers[0].Dependency)

	assert.Equal(t, progress.StepPending, f.stepStatus(t, "tx-1", 2))
	assert.Empty(t, f.notifier.Names())
}

func TestExecuteStep_UnknownStepAndTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 99, workflow.Start())
	assert.Equal(t, workflow.CodeInvalidStep, workflow.CodeOf(err))

	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.CompleteTask("nope", "tester"))
	assert.Equal(t, workflow.CodeInvalidTask, workflow.CodeOf(err))
}

func TestExecuteStep_DerivedCompletionOnLastTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)

	// First of two tasks: step stays in progress.
	res, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.CompleteTask("a1", "buyer"))
	require.NoError(t, err)
	assert.Equal(t, progress.StepInProgress, res.Status)
	assert.False(t, res.AutoCompleted)

	// Last task: step completes and the advance rule starts step 2.
	res, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.CompleteTask("a2", "buyer"))
	require.NoError(t, err)
	assert.Equal(t, progress.StepCompleted, res.Status)
	assert.True(t, res.AutoCompleted)
	require.Len(t, res.Cascade, 1)
	assert.True(t, res.Cascade[0].Started)
	assert.Equal(t, 2, res.Cascade[0].Step)

	assert.Equal(t, progress.StepCompleted, f.stepStatus(t, "tx-1", 1))
	assert.Equal(t, progress.StepInProgress, f.stepStatus(t, "tx-1", 2))

	// Exactly one completion event for step 1.
	completions := 0
	for _, e := range f.notifier.Events() {
		if e.Name == "step.completed" && e.Step == 1 {
			completions++
		}
	}
	assert.Equal(t, 1, completions)

	tp, err := f.store.GetTask(ctx, "tx-1", 1, "a1")
	require.NoError(t, err)
	assert.Equal(t, "buyer", tp.CompletedBy)
}

func TestExecuteStep_CompleteGatedByDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 3, workflow.Start())
	require.NoError(t, err)

	// All tasks done but the report is missing: the step stays in progress
	// and the task update itself succeeds.
	res, err := f.engine.ExecuteStep(ctx, "tx-1", 3, workflow.CompleteTask("c1", "inspector"))
	require.NoError(t, err)
	assert.Equal(t, progress.StepInProgress, res.Status)
	assert.False(t, res.AutoCompleted)

	// Explicit complete reports the document blocker.
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 3, workflow.Complete())
	require.Equal(t, workflow.CodePrerequisitesNotMet, workflow.CodeOf(err))
	blockers := workflow.BlockersOf(err)
	require.Len(t, blockers, 1)
	assert.Equal(t, workflow.BlockerMissingDocument, blockers[0].Kind)
	assert.Equal(t, catalog.DocInspectionReport, blockers[0].Document)

	// Upload the report; complete now succeeds.
	require.NoError(t, f.store.AddDocument(ctx, "tx-1", catalog.DocInspectionReport, f.clock.Now()))
	res, err = f.engine.ExecuteStep(ctx, "tx-1", 3, workflow.Complete())
	require.NoError(t, err)
	assert.Equal(t, progress.StepCompleted, res.Status)
	assert.False(t, res.AutoCompleted)
}

func TestExecuteStep_FanOutIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("loan officer unreachable")
	f.registry.Register(5, &testutil.ScriptedActivity{StartErr: boom})

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 4, workflow.Start())
	require.NoError(t, err)

	res, err := f.engine.ExecuteStep(ctx, "tx-1", 4, workflow.CompleteTask("d1", "agent"))
	require.Error(t, err)
	assert.Equal(t, workflow.CodeActivityFailed, workflow.CodeOf(err))
	assert.ErrorIs(t, err, boom)

	// The failing target stays pending; the sibling still started.
	require.NotNil(t, res)
	assert.Equal(t, progress.StepCompleted, f.stepStatus(t, "tx-1", 4))
	assert.Equal(t, progress.StepPending, f.stepStatus(t, "tx-1", 5))
	assert.Equal(t, progress.StepInProgress, f.stepStatus(t, "tx-1", 6))

	require.Len(t, res.Cascade, 2)
	assert.False(t, res.Cascade[0].Started)
	assert.Error(t, res.Cascade[0].Err)
	assert.True(t, res.Cascade[1].Started)
}

func TestExecuteStep_BranchOnRecordedDetail(t *testing.T) {
	t.Run("issues found", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		f.registry.Register(7, &testutil.ScriptedActivity{
			TaskDetails: workflow.Details{"inspection.result": "issues"},
		})

		_, err := f.engine.ExecuteStep(ctx, "tx-1", 7, workflow.Start())
		require.NoError(t, err)
		res, err := f.engine.ExecuteStep(ctx, "tx-1", 7, workflow.CompleteTask("g1", "inspector"))
		require.NoError(t, err)

		require.Len(t, res.Cascade, 1)
		assert.Equal(t, 8, res.Cascade[0].Step)
		assert.Equal(t, progress.StepInProgress, f.stepStatus(t, "tx-1", 8))
		assert.Equal(t, progress.StepPending, f.stepStatus(t, "tx-1", 6))
	})

	t.Run("clean inspection", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.engine.ExecuteStep(ctx, "tx-1", 7, workflow.Start())
		require.NoError(t, err)
		res, err := f.engine.ExecuteStep(ctx, "tx-1", 7, workflow.CompleteTask("g1", "inspector"))
		require.NoError(t, err)

		require.Len(t, res.Cascade, 1)
		assert.Equal(t, 6, res.Cascade[0].Step)
		assert.Equal(t, progress.StepInProgress, f.stepStatus(t, "tx-1", 6))
		assert.Equal(t, progress.StepPending, f.stepStatus(t, "tx-1", 8))
	})
}

func TestExecuteStep_AutomationTargetAlreadyActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Start step 6 manually, then complete step 4: the fan-out's second
	// target is a benign no-op.
	_, err := f.engine.ExecuteStep(ctx, "tx-1", 6, workflow.Start())
	require.NoError(t, err)
	f.notifier.Reset()

	_, err = f.engine.ExecuteStep(ctx, "tx-1", 4, workflow.Start())
	require.NoError(t, err)
	res, err := f.engine.ExecuteStep(ctx, "tx-1", 4, workflow.CompleteTask("d1", "agent"))
	require.NoError(t, err)

	require.Len(t, res.Cascade, 2)
	assert.True(t, res.Cascade[0].Started) // step 5
	assert.False(t, res.Cascade[1].Started)
	assert.Equal(t, "already active", res.Cascade[1].Reason)

	// No duplicate started event for step 6.
	for _, e := range f.notifier.Events() {
		if e.Name == "step.started" && e.Step == 6 {
			t.Fatalf("duplicate step.started for already-active target")
		}
	}
}

func TestExecuteStep_StartIsNotRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)

	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	assert.Equal(t, workflow.CodeInvalidTransition, workflow.CodeOf(err))
}

func TestExecuteStep_TaskMonotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.CompleteTask("a1", "buyer"))
	require.NoError(t, err)
	f.notifier.Reset()

	// Same status again is an idempotent no-op: no event, no error.
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.CompleteTask("a1", "buyer"))
	require.NoError(t, err)
	assert.Empty(t, f.notifier.Names())

	// Regression is rejected.
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.SetTask("a1", progress.TaskInProgress))
	assert.Equal(t, workflow.CodeInvalidTransition, workflow.CodeOf(err))
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.SetTask("a1", progress.TaskPending))
	assert.Equal(t, workflow.CodeInvalidTransition, workflow.CodeOf(err))
}

func TestExecuteStep_TaskRequiresActiveStep(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ExecuteStep(context.Background(), "tx-1", 1, workflow.CompleteTask("a1", "buyer"))
	assert.Equal(t, workflow.CodeInvalidTransition, workflow.CodeOf(err))
}

func TestExecuteStep_StartHookFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("mls connect refused")
	f.registry.Register(1, &testutil.ScriptedActivity{
		StartErr:     boom,
		StartDetails: workflow.Details{"mls.id": "should-not-persist"},
	})

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.Equal(t, workflow.CodeActivityFailed, workflow.CodeOf(err))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, progress.StepPending, f.stepStatus(t, "tx-1", 1))
	details, err := f.store.ListDetails(ctx, "tx-1", 1)
	require.NoError(t, err)
	assert.Empty(t, details)
	transitions, err := f.store.ListTransitions(ctx, "tx-1")
	require.NoError(t, err)
	assert.Empty(t, transitions)
	assert.Empty(t, f.notifier.Names())
}

func TestExecuteStep_HookDetailsPersistWithTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.registry.Register(1, &testutil.ScriptedActivity{
		StartDetails: workflow.Details{"offer.price": "450000"},
	})

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)

	value, ok, err := f.store.GetDetail(ctx, "tx-1", 1, "offer.price")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "450000", value)

	transitions, err := f.store.ListTransitions(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "450000", transitions[0].Payload["offer.price"])
}

func TestExecuteStep_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)

	res, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Cancel("deal fell through"))
	require.NoError(t, err)
	assert.Equal(t, progress.StepCancelled, res.Status)

	sp, err := f.store.GetStep(ctx, "tx-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "deal fell through", sp.Notes)

	// Terminal: nothing restarts a cancelled step.
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	assert.Equal(t, workflow.CodeInvalidTransition, workflow.CodeOf(err))
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Cancel("again"))
	assert.Equal(t, workflow.CodeInvalidTransition, workflow.CodeOf(err))
}

func TestExecuteStep_ConcurrentTaskCompletionsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []string{"a1", "a2"} {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.CompleteTask(taskID, "buyer"))
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, progress.StepCompleted, f.stepStatus(t, "tx-1", 1))
	assert.Equal(t, progress.StepInProgress, f.stepStatus(t, "tx-1", 2))

	// Derived completion fired exactly once despite the race.
	completions := 0
	for _, e := range f.notifier.Events() {
		if e.Name == "step.completed" && e.Step == 1 {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestCanStart_MatchesDependencyRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.engine.CanStart(ctx, "tx-1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.CanStart(ctx, "tx-1", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	// Complete step 1; the automation starts step 2, so it is no longer
	// startable either, just for a different reason.
	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)
	f.completeTasks(t, "tx-1", 1, "a1", "a2")

	ok, err = f.engine.CanStart(ctx, "tx-1", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.engine.CanStart(ctx, "tx-1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAvailableActions_FollowStepStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	actions, err := f.engine.AvailableActions(ctx, "tx-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []workflow.ActionKind{workflow.ActionCancel, workflow.ActionStart}, actions)

	// A blocked pending step offers only cancel.
	actions, err = f.engine.AvailableActions(ctx, "tx-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []workflow.ActionKind{workflow.ActionCancel}, actions)

	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)
	actions, err = f.engine.AvailableActions(ctx, "tx-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []workflow.ActionKind{workflow.ActionCancel, workflow.ActionComplete, workflow.ActionTask}, actions)

	_, err = f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Cancel(""))
	require.NoError(t, err)
	actions, err = f.engine.AvailableActions(ctx, "tx-1", 1)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestAuditTrail_SequentialPerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteStep(ctx, "tx-1", 1, workflow.Start())
	require.NoError(t, err)
	f.completeTasks(t, "tx-1", 1, "a1", "a2")

	transitions, err := f.store.ListTransitions(ctx, "tx-1")
	require.NoError(t, err)
	// start, task a1, task a2, step completed, cascade start of step 2.
	require.Len(t, transitions, 5)
	for i, tr := range transitions {
		assert.Equal(t, int64(i+1), tr.Seq)
	}
	assert.Equal(t, progress.EntityStep, transitions[0].Entity)
	assert.Equal(t, progress.EntityTask, transitions[1].Entity)
	assert.Equal(t, "a1", transitions[1].TaskID)
	assert.Equal(t, string(progress.StepCompleted), transitions[3].To)
	assert.Equal(t, 2, transitions[4].Step)

	report, err := f.store.VerifyReplay(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}
