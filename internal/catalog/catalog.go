// Package catalog holds the static definition of the closing workflow: the
// ordered phases, the 25 steps with their tasks, dependencies, and required
// documents, and the automation rules that chain steps together.
//
// Catalogs are authored in CUE, compiled once at process start, and are
// immutable and safe for concurrent reads afterwards. A catalog that fails
// structural validation or contains a cycle in its automation-rule graph is
// rejected at load time; there is no partially valid catalog.
package catalog

import (
	"fmt"
	"sort"
)

// UnknownStepError reports a lookup of a step number the catalog does not
// define. This is a programmer error, never silently ignored.
type UnknownStepError struct {
	Number int
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step %d", e.Number)
}

// UnknownTaskError reports a lookup of a task the catalog does not define
// for the given step.
type UnknownTaskError struct {
	Step int
	ID   string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task %q for step %d", e.ID, e.Step)
}

// Catalog is the compiled, read-only workflow definition.
type Catalog struct {
	phases   []Phase
	steps    map[int]StepDefinition
	tasks    map[int][]TaskDefinition
	taskByID map[int]map[string]TaskDefinition
	rules    map[int][]AutomationRule
	allRules []AutomationRule
}

// Phases returns the phases in display order.
func (c *Catalog) Phases() []Phase {
	out := make([]Phase, len(c.phases))
	copy(out, c.phases)
	return out
}

// Phase returns the phase with the given id.
func (c *Catalog) Phase(id string) (Phase, bool) {
	for _, p := range c.phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// Step returns the definition for a step number.
func (c *Catalog) Step(number int) (StepDefinition, error) {
	def, ok := c.steps[number]
	if !ok {
		return StepDefinition{}, &UnknownStepError{Number: number}
	}
	return def, nil
}

// Steps returns every step definition in ascending step-number order.
func (c *Catalog) Steps() []StepDefinition {
	out := make([]StepDefinition, 0, len(c.steps))
	for _, def := range c.steps {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Tasks returns the ordered tasks owned by a step.
func (c *Catalog) Tasks(step int) ([]TaskDefinition, error) {
	if _, ok := c.steps[step]; !ok {
		return nil, &UnknownStepError{Number: step}
	}
	defs := c.tasks[step]
	out := make([]TaskDefinition, len(defs))
	copy(out, defs)
	return out, nil
}

// Task returns a single task definition by step number and task id.
func (c *Catalog) Task(step int, id string) (TaskDefinition, error) {
	if _, ok := c.steps[step]; !ok {
		return TaskDefinition{}, &UnknownStepError{Number: step}
	}
	def, ok := c.taskByID[step][id]
	if !ok {
		return TaskDefinition{}, &UnknownTaskError{Step: step, ID: id}
	}
	return def, nil
}

// Dependencies returns the step numbers that must be completed before the
// given step may start.
func (c *Catalog) Dependencies(step int) ([]int, error) {
	def, ok := c.steps[step]
	if !ok {
		return nil, &UnknownStepError{Number: step}
	}
	out := make([]int, len(def.DependsOn))
	copy(out, def.DependsOn)
	return out, nil
}

// RulesFrom returns the automation rules fired by the completion of the
// given step, in declaration order. Unknown steps simply have no rules.
func (c *Catalog) RulesFrom(step int) []AutomationRule {
	rules := c.rules[step]
	out := make([]AutomationRule, len(rules))
	copy(out, rules)
	return out
}

// Rules returns every automation rule in declaration order.
func (c *Catalog) Rules() []AutomationRule {
	out := make([]AutomationRule, len(c.allRules))
	copy(out, c.allRules)
	return out
}

// Len returns the number of steps in the catalog.
func (c *Catalog) Len() int {
	return len(c.steps)
}
