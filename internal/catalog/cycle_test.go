package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCycles_Empty(t *testing.T) {
	assert.NoError(t, checkCycles(nil))
}

func TestCheckCycles_DAG(t *testing.T) {
	rules := []AutomationRule{
		{Kind: RuleAdvance, From: 1, To: []int{2}},
		{Kind: RuleFanOut, From: 2, To: []int{3, 4}},
		{Kind: RuleAdvance, From: 3, To: []int{5}},
		{Kind: RuleAdvance, From: 4, To: []int{5}},
	}
	assert.NoError(t, checkCycles(rules))
}

func TestCheckCycles_SelfLoop(t *testing.T) {
	rules := []AutomationRule{
		{Kind: RuleAdvance, From: 3, To: []int{3}},
	}
	err := checkCycles(rules)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []int{3, 3}, cycleErr.Path)
}

func TestCheckCycles_TwoStepCycle(t *testing.T) {
	rules := []AutomationRule{
		{Kind: RuleAdvance, From: 1, To: []int{2}},
		{Kind: RuleAdvance, From: 2, To: []int{1}},
	}
	err := checkCycles(rules)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.GreaterOrEqual(t, len(cycleErr.Path), 3)
	assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
}

func TestCheckCycles_BranchArmCreatesCycle(t *testing.T) {
	// Either branch arm is a reachable edge; a cycle through the false arm
	// must be rejected even if the predicate would never select it.
	pred := &Predicate{Step: 2, Key: "k", Equals: "v"}
	rules := []AutomationRule{
		{Kind: RuleAdvance, From: 1, To: []int{2}},
		{Kind: RuleBranch, From: 2, To: []int{3, 1}, Predicate: pred, TrueStep: 3, FalseStep: 1},
	}
	err := checkCycles(rules)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestCheckCycles_MultipleRulesSameTarget(t *testing.T) {
	// Converging edges are not cycles.
	rules := []AutomationRule{
		{Kind: RuleAdvance, From: 1, To: []int{4}},
		{Kind: RuleAdvance, From: 2, To: []int{4}},
		{Kind: RuleAdvance, From: 3, To: []int{4}},
	}
	assert.NoError(t, checkCycles(rules))
}

func TestCompile_RejectsAutomationCycle(t *testing.T) {
	src := `
catalog: {
	phases: [{id: "p1", name: "p1", display_name: "P1", order: 1}]
	steps: [
		{number: 1, title: "One", phase: "p1", depends_on: [], required_documents: [], estimated_days: 0, tasks: [{id: "a", name: "A"}]},
		{number: 2, title: "Two", phase: "p1", depends_on: [], required_documents: [], estimated_days: 0, tasks: [{id: "b", name: "B"}]},
	]
	automation: [
		{advance: {from: 1, to: 2}},
		{advance: {from: 2, to: 1}},
	]
}
`
	_, err := Compile("cyclic.cue", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "automation rule cycle")
}

func TestDefault_AutomationIsAcyclic(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.NoError(t, checkCycles(c.Rules()))
}
