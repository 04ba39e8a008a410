package harness

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/keyturn/keyturn/internal/progress"
)

// AssertGolden renders the run's audit trail as a text trace and compares it
// against testdata/golden/<name>.golden. Regenerate goldens with -update.
func AssertGolden(t *testing.T, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Scenario.Name, []byte(RenderTrace(result)))
}

// RenderTrace renders the committed transitions as one line per transition.
// Timestamps are omitted so traces depend only on the flow, not the clock.
func RenderTrace(result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", result.Scenario.Name)
	for _, tr := range result.Transitions {
		b.WriteString(renderTransition(tr))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderTransition(tr progress.Transition) string {
	var b strings.Builder
	if tr.Entity == progress.EntityTask {
		fmt.Fprintf(&b, "%03d task %d/%s", tr.Seq, tr.Step, tr.TaskID)
	} else {
		fmt.Fprintf(&b, "%03d step %d", tr.Seq, tr.Step)
	}
	fmt.Fprintf(&b, ": %s -> %s", tr.From, tr.To)
	if len(tr.Payload) > 0 {
		keys := make([]string, 0, len(tr.Payload))
		for key := range tr.Payload {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, key := range keys {
			pairs[i] = fmt.Sprintf("%s=%s", key, tr.Payload[key])
		}
		fmt.Fprintf(&b, " {%s}", strings.Join(pairs, " "))
	}
	return b.String()
}
