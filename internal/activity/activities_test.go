package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyturn/keyturn/internal/workflow"
)

func TestDefaultRegistry_PreApprovalDetails(t *testing.T) {
	r := DefaultRegistry(Stubs())

	details, err := r.Lookup(stepPreApproval).OnStart(context.Background(), workflow.Txn{ID: "tx-9"})
	require.NoError(t, err)

	assert.Equal(t, "PA-tx-9", details["pre_approval.reference"])
	assert.Equal(t, "First Keystone Bank", details["pre_approval.lender"])
}

func TestDefaultRegistry_UnderwritingRunsOnComplete(t *testing.T) {
	r := DefaultRegistry(Stubs())
	act := r.Lookup(stepUnderwriting)

	// Underwriting is a completion-time decision; starting the step calls
	// nothing.
	details, err := act.OnStart(context.Background(), workflow.Txn{ID: "tx-9"})
	require.NoError(t, err)
	assert.Empty(t, details)

	details, err = act.OnComplete(context.Background(), workflow.Txn{ID: "tx-9"})
	require.NoError(t, err)
	assert.Equal(t, "approved", details["underwriting.decision"])
}

func TestDefaultRegistry_SigningUsesRecordedPackage(t *testing.T) {
	captured := ""
	s := Stubs()
	s.ESign = esignFunc(func(_ context.Context, txID, document string) (Envelope, error) {
		captured = document
		return Envelope{EnvelopeID: "ENV-1", Provider: "signwell"}, nil
	})
	r := DefaultRegistry(s)

	txn := workflow.Txn{ID: "tx-9", Details: map[string]string{"closing.package": "PKG-tx-9"}}
	_, err := r.Lookup(stepSigning).OnStart(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, "PKG-tx-9", captured)
}

func TestDefaultRegistry_CollaboratorErrorPropagates(t *testing.T) {
	boom := errors.New("wire service down")
	s := Stubs()
	s.Wires = wireFunc(func(context.Context, string, string) (WireReceipt, error) {
		return WireReceipt{}, boom
	})
	r := DefaultRegistry(s)

	_, err := r.Lookup(stepDisbursement).OnComplete(context.Background(), workflow.Txn{ID: "tx-9"})
	assert.ErrorIs(t, err, boom)
}

func TestDefaultRegistry_PartialWiring(t *testing.T) {
	// Only a lender: every other step falls back to the engine's no-op.
	r := DefaultRegistry(Services{Lender: stubLender{}})

	details, err := r.Lookup(stepTitleSearch).OnStart(context.Background(), workflow.Txn{ID: "tx-9"})
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestStubs_Deterministic(t *testing.T) {
	s := Stubs()

	first, err := s.Lender.SubmitPreApproval(context.Background(), "tx-9")
	require.NoError(t, err)
	second, err := s.Lender.SubmitPreApproval(context.Background(), "tx-9")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type esignFunc func(ctx context.Context, txID, document string) (Envelope, error)

func (f esignFunc) CreateEnvelope(ctx context.Context, txID, document string) (Envelope, error) {
	return f(ctx, txID, document)
}

type wireFunc func(ctx context.Context, txID, purpose string) (WireReceipt, error)

func (f wireFunc) RequestWire(ctx context.Context, txID, purpose string) (WireReceipt, error) {
	return f(ctx, txID, purpose)
}
