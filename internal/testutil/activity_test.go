package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyturn/keyturn/internal/catalog"
	"github.com/keyturn/keyturn/internal/workflow"
)

func TestScriptedActivity_ReturnsConfiguredDetails(t *testing.T) {
	act := &ScriptedActivity{
		StartDetails: workflow.Details{"loan.id": "L-1"},
		DoneDetails:  workflow.Details{"loan.status": "submitted"},
	}

	details, err := act.OnStart(context.Background(), workflow.Txn{ID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.Details{"loan.id": "L-1"}, details)

	details, err = act.OnComplete(context.Background(), workflow.Txn{ID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.Details{"loan.status": "submitted"}, details)

	assert.Equal(t, []string{"start", "complete"}, act.Calls())
}

func TestScriptedActivity_ErrorsPropagate(t *testing.T) {
	boom := errors.New("lender unreachable")
	act := &ScriptedActivity{StartErr: boom}

	_, err := act.OnStart(context.Background(), workflow.Txn{ID: "tx-1"})
	assert.ErrorIs(t, err, boom)
}

func TestScriptedActivity_RecordsTaskID(t *testing.T) {
	act := &ScriptedActivity{}

	task := catalog.TaskDefinition{ID: "gather-documents", Step: 1}
	_, err := act.OnTaskComplete(context.Background(), workflow.Txn{ID: "tx-1"}, task)
	require.NoError(t, err)

	assert.Equal(t, []string{"task:gather-documents"}, act.Calls())
}

func TestRecordingNotifier_CapturesInOrder(t *testing.T) {
	var n RecordingNotifier

	n.Notify(context.Background(), workflow.Event{Name: "step.started", Step: 1})
	n.Notify(context.Background(), workflow.Event{Name: "step.completed", Step: 1})

	assert.Equal(t, []string{"step.started", "step.completed"}, n.Names())

	events := n.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Step)

	n.Reset()
	assert.Empty(t, n.Events())
}
