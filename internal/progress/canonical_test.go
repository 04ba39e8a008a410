package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPayload_Empty(t *testing.T) {
	out, err := MarshalPayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestMarshalPayload_SortedKeys(t *testing.T) {
	out, err := MarshalPayload(map[string]string{
		"zebra": "z",
		"apple": "a",
		"mango": "m",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":"a","mango":"m","zebra":"z"}`, string(out))
}

func TestMarshalPayload_Deterministic(t *testing.T) {
	payload := map[string]string{"lender": "First Federal", "rate": "6.25"}
	first, err := MarshalPayload(payload)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalPayload(payload)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshalPayload_NoHTMLEscaping(t *testing.T) {
	out, err := MarshalPayload(map[string]string{"cmp": "a < b & c > d"})
	require.NoError(t, err)
	assert.Equal(t, `{"cmp":"a < b & c > d"}`, string(out))
}

func TestMarshalPayload_EscapesControlCharacters(t *testing.T) {
	out, err := MarshalPayload(map[string]string{"note": "line1\nline2\t\"quoted\""})
	require.NoError(t, err)
	assert.Equal(t, `{"note":"line1\nline2\t\"quoted\""}`, string(out))
}

func TestMarshalPayload_NFCNormalization(t *testing.T) {
	// "é" as combining sequence (U+0065 U+0301) normalizes to U+00E9.
	decomposed := map[string]string{"name": "café"}
	composed := map[string]string{"name": "café"}

	a, err := MarshalPayload(decomposed)
	require.NoError(t, err)
	b, err := MarshalPayload(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestStepStatus_Terminal(t *testing.T) {
	assert.False(t, StepPending.Terminal())
	assert.False(t, StepInProgress.Terminal())
	assert.True(t, StepCompleted.Terminal())
	assert.True(t, StepCancelled.Terminal())
}
