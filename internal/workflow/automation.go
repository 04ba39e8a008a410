package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyturn/keyturn/internal/catalog"
)

// Cascade skip reasons reported in CascadeEntry.Reason.
const (
	reasonAlreadyActive = "already active"
	reasonPrereqsOpen   = "prerequisites open"
)

// runCascade fires the automation rules declared on a just-completed step,
// starting each target. Rules fire on completion only: a target the cascade
// starts does not trigger its own rules until it completes in turn, so one
// cascade handles exactly one completion event.
//
// A target that is already active is a benign no-op; a target with open
// prerequisites is skipped, because the converging rule that closes them
// fires it later. Activity failures on one target do not stop the remaining
// targets; they are collected and joined into the returned error after all
// targets were attempted. The budget bounds starts per completion against
// misconfigured rule sets.
func (e *Engine) runCascade(ctx context.Context, txID string, from int) ([]CascadeEntry, error) {
	var (
		entries []CascadeEntry
		errs    []error
	)
	budget := e.maxCascade

	for _, rule := range e.catalog.RulesFrom(from) {
		targets, err := e.resolveTargets(ctx, txID, rule)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, target := range targets {
			if budget <= 0 {
				errs = append(errs, fmt.Errorf("automation cascade from step %d exceeded %d starts", from, e.maxCascade))
				return entries, errors.Join(errs...)
			}
			budget--

			entry := CascadeEntry{
				Rule: string(rule.Kind),
				From: from,
				Step: target,
			}
			def, err := e.catalog.Step(target)
			if err != nil {
				entry.Err = invalidStep(txID, target, err)
				entry.Failure = entry.Err.Error()
				errs = append(errs, entry.Err)
				entries = append(entries, entry)
				continue
			}

			_, err = e.startStep(ctx, txID, def)
			switch {
			case err == nil:
				entry.Started = true
				e.logger.Debug("automation started step",
					"tx", txID, "rule", entry.Rule, "from", from, "step", target)
			case CodeOf(err) == CodeInvalidTransition:
				entry.Reason = reasonAlreadyActive
			case CodeOf(err) == CodePrerequisitesNotMet:
				entry.Reason = reasonPrereqsOpen
			default:
				entry.Err = err
				entry.Failure = err.Error()
				errs = append(errs, err)
			}
			entries = append(entries, entry)
		}
	}

	return entries, errors.Join(errs...)
}

// resolveTargets evaluates a rule against the current transaction state and
// returns the step numbers it fires. Advance and fanout rules are static;
// branch rules read a recorded detail and pick a side. An absent detail
// takes the false branch.
func (e *Engine) resolveTargets(ctx context.Context, txID string, rule catalog.AutomationRule) ([]int, error) {
	switch rule.Kind {
	case catalog.RuleAdvance, catalog.RuleFanOut:
		return rule.To, nil
	case catalog.RuleBranch:
		if rule.Predicate == nil {
			return nil, fmt.Errorf("branch from step %d has no predicate", rule.From)
		}
		value, _, err := e.store.GetDetail(ctx, txID, rule.Predicate.Step, rule.Predicate.Key)
		if err != nil {
			return nil, fmt.Errorf("branch from step %d: read %q: %w", rule.From, rule.Predicate.Key, err)
		}
		if value == rule.Predicate.Equals {
			return []int{rule.TrueStep}, nil
		}
		return []int{rule.FalseStep}, nil
	default:
		return nil, fmt.Errorf("unknown automation rule kind %q from step %d", rule.Kind, rule.From)
	}
}
