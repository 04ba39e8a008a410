package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func dbFlag(t *testing.T) string {
	t.Helper()
	return "--db=" + filepath.Join(t.TempDir(), "keyturn.db")
}

func TestValidate_EmbeddedCatalog(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog valid")
	assert.Contains(t, out, "25 steps")
}

func TestValidate_JSON(t *testing.T) {
	out, err := execute(t, "validate", "--format=json")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   ValidationSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 25, resp.Data.Steps)
	assert.Equal(t, 4, resp.Data.Phases)
}

func TestValidate_BadFormat(t *testing.T) {
	_, err := execute(t, "validate", "--format=xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInit_ExplicitID(t *testing.T) {
	db := dbFlag(t)

	out, err := execute(t, "init", "tx-100", db)
	require.NoError(t, err)
	assert.Contains(t, out, "tx-100")
	assert.Contains(t, out, "25 steps pending")

	// Idempotent.
	_, err = execute(t, "init", "tx-100", db)
	require.NoError(t, err)
}

func TestInit_MintsUUID(t *testing.T) {
	out, err := execute(t, "init", dbFlag(t), "--format=json")
	require.NoError(t, err)

	var resp struct {
		Data InitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.TransactionID, 36)
	assert.Equal(t, 25, resp.Data.Steps)
}

func TestStep_StartAndBlockers(t *testing.T) {
	db := dbFlag(t)

	out, err := execute(t, "step", "start", "tx-1", "1", db)
	require.NoError(t, err)
	assert.Contains(t, out, "step 1")
	assert.Contains(t, out, "in_progress")

	// Step 2 depends on step 1.
	_, err = execute(t, "step", "start", "tx-1", "2", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err = execute(t, "blockers", "tx-1", "2", db)
	require.NoError(t, err)
	assert.Contains(t, out, "requires step 1 completed")
}

func TestStep_TaskFlow(t *testing.T) {
	db := dbFlag(t)

	_, err := execute(t, "step", "start", "tx-2", "1", db)
	require.NoError(t, err)

	out, err := execute(t, "step", "task", "tx-2", "1", "financial-profile", "--by=buyer", db)
	require.NoError(t, err)
	assert.Contains(t, out, "task financial-profile")

	out, err = execute(t, "requirements", "tx-2", "1", db)
	require.NoError(t, err)
	assert.Contains(t, out, "financial-profile")
	assert.Contains(t, out, "cancel, complete, task")
}

func TestStep_InvalidNumber(t *testing.T) {
	_, err := execute(t, "step", "start", "tx-1", "abc", dbFlag(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDocs_AddAndList(t *testing.T) {
	db := dbFlag(t)

	out, err := execute(t, "docs", "add", "tx-3", "pre_approval_letter", db)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded pre_approval_letter")

	out, err = execute(t, "docs", "list", "tx-3", db)
	require.NoError(t, err)
	assert.Contains(t, out, "pre_approval_letter")
}

func TestDocs_UnknownType(t *testing.T) {
	_, err := execute(t, "docs", "add", "tx-3", "mystery_paper", dbFlag(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatus_FreshTransaction(t *testing.T) {
	out, err := execute(t, "status", "tx-4", dbFlag(t), "--format=json")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			TotalSteps         int   `json:"total_steps"`
			CompletedSteps     int   `json:"completed_steps"`
			NextAvailableSteps []int `json:"next_available_steps"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 25, resp.Data.TotalSteps)
	assert.Equal(t, 0, resp.Data.CompletedSteps)
	assert.Contains(t, resp.Data.NextAvailableSteps, 1)
}

func TestSteps_ListsCatalog(t *testing.T) {
	out, err := execute(t, "steps")
	require.NoError(t, err)
	assert.Contains(t, out, "Buyer pre-approval")
	assert.Contains(t, out, "Keys and possession")
}

func TestReplay_Verify(t *testing.T) {
	db := dbFlag(t)

	_, err := execute(t, "step", "start", "tx-5", "1", db)
	require.NoError(t, err)

	out, err := execute(t, "replay", "tx-5", "--verify", db)
	require.NoError(t, err)
	assert.Contains(t, out, "pending -> in_progress")
	assert.Contains(t, out, "replay consistent")
}

func TestReplay_EmptyLog(t *testing.T) {
	out, err := execute(t, "replay", "tx-none", dbFlag(t))
	require.NoError(t, err)
	assert.Contains(t, out, "no transitions recorded")
}
