package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/keyturn/keyturn/internal/progress"
	"github.com/keyturn/keyturn/internal/workflow"
)

var (
	styleCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	styleInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	styleCancelled  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	stylePending    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	styleHeading    = lipgloss.NewStyle().Bold(true)
	styleMuted      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

func styleForStatus(s progress.StepStatus) lipgloss.Style {
	switch s {
	case progress.StepCompleted:
		return styleCompleted
	case progress.StepInProgress:
		return styleInProgress
	case progress.StepCancelled:
		return styleCancelled
	default:
		return stylePending
	}
}

func renderStatusWord(s progress.StepStatus) string {
	return styleForStatus(s).Render(string(s))
}

// renderResult renders one step execution outcome, including whatever the
// automation cascade did.
func renderResult(res *workflow.StepExecutionResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s step %d -> %s",
		styleHeading.Render(res.TransactionID), res.Step, renderStatusWord(res.Status))
	if res.TaskID != "" {
		fmt.Fprintf(&b, " (task %s -> %s)", res.TaskID, res.TaskStatus)
	}
	if res.AutoCompleted {
		b.WriteString(styleMuted.Render("  [auto-completed]"))
	}

	for _, entry := range res.Cascade {
		b.WriteString("\n")
		switch {
		case entry.Started:
			fmt.Fprintf(&b, "  %s rule %s: started step %d",
				styleInProgress.Render("->"), entry.Rule, entry.Step)
		case entry.Err != nil:
			fmt.Fprintf(&b, "  %s rule %s: step %d failed: %v",
				styleCancelled.Render("!!"), entry.Rule, entry.Step, entry.Err)
		default:
			fmt.Fprintf(&b, "  %s rule %s: step %d skipped (%s)",
				styleMuted.Render("--"), entry.Rule, entry.Step, entry.Reason)
		}
	}

	return b.String()
}

func renderBlockers(step int, blockers []workflow.Blocker) string {
	if len(blockers) == 0 {
		return fmt.Sprintf("step %d: %s", step, styleCompleted.Render("no blockers"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "step %d: %d blocker(s)", step, len(blockers))
	for _, blocker := range blockers {
		fmt.Fprintf(&b, "\n  %s %s", styleCancelled.Render("x"), blocker)
	}
	return b.String()
}

func renderWorkflowStatus(ws *workflow.WorkflowStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", styleHeading.Render("transaction "+ws.TransactionID))
	phase := ws.CurrentPhase
	if phase == "" {
		phase = "done"
	}
	fmt.Fprintf(&b, "phase:     %s\n", phase)
	fmt.Fprintf(&b, "progress:  %d/%d completed (%.0f%%)",
		ws.CompletedSteps, ws.TotalSteps, ws.OverallProgress*100)
	if ws.CancelledSteps > 0 {
		fmt.Fprintf(&b, ", %d cancelled", ws.CancelledSteps)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "active:    %s\n", renderStepList(ws.ActiveSteps))
	fmt.Fprintf(&b, "available: %s", renderStepList(ws.NextAvailableSteps))

	if len(ws.Blockers) > 0 {
		fmt.Fprintf(&b, "\n%s", styleHeading.Render("blocked steps:"))
		for _, step := range sortedKeys(ws.Blockers) {
			for _, blocker := range ws.Blockers[step] {
				fmt.Fprintf(&b, "\n  %s %s", styleMuted.Render(fmt.Sprintf("%2d", step)), blocker)
			}
		}
	}

	return b.String()
}

func renderRequirements(report *RequirementsReport) string {
	var b strings.Builder
	req := report.StepRequirements

	fmt.Fprintf(&b, "step %d is %s\n", req.Step, renderStatusWord(req.Status))
	fmt.Fprintf(&b, "can start: %v, can complete: %v", req.CanStart, req.CanComplete)
	if len(report.AvailableActions) > 0 {
		parts := make([]string, len(report.AvailableActions))
		for i, a := range report.AvailableActions {
			parts[i] = string(a)
		}
		fmt.Fprintf(&b, "\nactions:   %s", strings.Join(parts, ", "))
	}

	section := func(name string, reqs []workflow.StepRequirement, describe func(workflow.StepRequirement) string) {
		if len(reqs) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s", styleHeading.Render(name+":"))
		for _, r := range reqs {
			mark := styleCancelled.Render("x")
			if r.Satisfied {
				mark = styleCompleted.Render("ok")
			}
			fmt.Fprintf(&b, "\n  [%s] %s", mark, describe(r))
		}
	}

	section("dependencies", req.Dependencies, func(r workflow.StepRequirement) string {
		return fmt.Sprintf("step %d completed", r.Step)
	})
	section("documents", req.Documents, func(r workflow.StepRequirement) string {
		return string(r.Document)
	})
	section("tasks", req.Tasks, func(r workflow.StepRequirement) string {
		return r.TaskID
	})

	return b.String()
}

func renderStepList(steps []int) string {
	if len(steps) == 0 {
		return styleMuted.Render("none")
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[int][]workflow.Blocker) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
