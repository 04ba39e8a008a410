package catalog

import "fmt"

// validate runs the structural checks that the CUE schema cannot express:
// cross-references between steps, phases, tasks, rules, and predicates.
func (c *Catalog) validate() error {
	if len(c.phases) == 0 {
		return fmt.Errorf("catalog has no phases")
	}
	if len(c.steps) == 0 {
		return fmt.Errorf("catalog has no steps")
	}

	seenPhase := make(map[string]bool, len(c.phases))
	for _, p := range c.phases {
		if seenPhase[p.ID] {
			return fmt.Errorf("phase %q: duplicate phase id", p.ID)
		}
		seenPhase[p.ID] = true
	}

	// Step numbers must be contiguous from 1 so that progress reporting and
	// display ordering are unambiguous.
	for n := 1; n <= len(c.steps); n++ {
		if _, ok := c.steps[n]; !ok {
			return fmt.Errorf("step numbers are not contiguous: missing step %d", n)
		}
	}

	for _, def := range c.steps {
		if !seenPhase[def.Phase] {
			return fmt.Errorf("step %d: unknown phase %q", def.Number, def.Phase)
		}
		if len(c.tasks[def.Number]) == 0 {
			return fmt.Errorf("step %d: no tasks defined (zero-task steps are not modeled)", def.Number)
		}
		for _, dep := range def.DependsOn {
			if _, ok := c.steps[dep]; !ok {
				return fmt.Errorf("step %d: depends on unknown step %d", def.Number, dep)
			}
			if dep == def.Number {
				return fmt.Errorf("step %d: depends on itself", def.Number)
			}
		}
	}

	if err := checkDependencyDAG(c.steps); err != nil {
		return err
	}

	for _, rule := range c.allRules {
		if _, ok := c.steps[rule.From]; !ok {
			return fmt.Errorf("automation rule from unknown step %d", rule.From)
		}
		for _, to := range rule.To {
			if _, ok := c.steps[to]; !ok {
				return fmt.Errorf("automation rule from step %d targets unknown step %d", rule.From, to)
			}
		}
		if rule.Kind == RuleBranch {
			if _, ok := c.steps[rule.Predicate.Step]; !ok {
				return fmt.Errorf("automation branch from step %d: predicate references unknown step %d",
					rule.From, rule.Predicate.Step)
			}
			if rule.Predicate.Key == "" {
				return fmt.Errorf("automation branch from step %d: predicate has no detail key", rule.From)
			}
		}
	}

	return nil
}

// checkDependencyDAG rejects cyclic depends_on declarations. A dependency
// cycle would make every step in the cycle permanently unstartable.
func checkDependencyDAG(steps map[int]StepDefinition) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[int]int, len(steps))

	var visit func(n int) error
	visit = func(n int) error {
		switch state[n] {
		case visiting:
			return fmt.Errorf("step %d: dependency cycle", n)
		case done:
			return nil
		}
		state[n] = visiting
		for _, dep := range steps[n].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[n] = done
		return nil
	}

	for n := range steps {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
