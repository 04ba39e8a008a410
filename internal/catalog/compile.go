package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed closing.cue
var defaultCatalogCUE []byte

// rawCatalog mirrors the CUE catalog value for decoding. Field names follow
// the CUE attribute names via json tags (cue.Value.Decode honors them).
type rawCatalog struct {
	Phases []rawPhase `json:"phases"`
	Steps  []rawStep  `json:"steps"`
	Rules  []rawRule  `json:"automation"`
}

type rawPhase struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Order       int    `json:"order"`
}

type rawStep struct {
	Number            int       `json:"number"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Phase             string    `json:"phase"`
	DependsOn         []int     `json:"depends_on"`
	RequiredDocuments []string  `json:"required_documents"`
	EstimatedDays     int       `json:"estimated_days"`
	Tasks             []rawTask `json:"tasks"`
}

type rawTask struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawPredicate struct {
	Step   int    `json:"step"`
	Key    string `json:"key"`
	Equals string `json:"equals"`
}

// rawRule is a tagged union: exactly one of the three fields is set.
type rawRule struct {
	Advance *struct {
		From int `json:"from"`
		To   int `json:"to"`
	} `json:"advance"`
	FanOut *struct {
		From int   `json:"from"`
		To   []int `json:"to"`
	} `json:"fanout"`
	Branch *struct {
		From      int          `json:"from"`
		When      rawPredicate `json:"when"`
		TrueStep  int          `json:"true_step"`
		FalseStep int          `json:"false_step"`
	} `json:"branch"`
}

// Default compiles the embedded residential closing catalog.
func Default() (*Catalog, error) {
	return Compile("closing.cue", defaultCatalogCUE)
}

// Compile parses CUE source into a validated Catalog.
//
// Compilation unifies the source against the #Step/#Rule schemas it carries,
// decodes the catalog value, then runs the structural validation and
// automation cycle analysis. Any failure is a configuration error; there is
// no partially loaded catalog.
func Compile(name string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog %s: %w", name, err)
	}
	return build(v)
}

// LoadDir loads every CUE file in dir as a single instance and compiles the
// catalog from it. Used when an operator overrides the embedded catalog.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog path %s: not a directory", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("catalog dir %s: no CUE instances", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", dir, inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("build catalog from %s: %w", dir, err)
	}
	return build(v)
}

func build(v cue.Value) (*Catalog, error) {
	catVal := v.LookupPath(cue.ParsePath("catalog"))
	if !catVal.Exists() {
		return nil, fmt.Errorf("catalog value not found (expected top-level \"catalog\")")
	}
	if err := catVal.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("catalog is not concrete: %w", err)
	}

	var raw rawCatalog
	if err := catVal.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if err := checkCycles(c.allRules); err != nil {
		return nil, err
	}
	return c, nil
}

func fromRaw(raw rawCatalog) (*Catalog, error) {
	c := &Catalog{
		steps:    make(map[int]StepDefinition, len(raw.Steps)),
		tasks:    make(map[int][]TaskDefinition, len(raw.Steps)),
		taskByID: make(map[int]map[string]TaskDefinition, len(raw.Steps)),
		rules:    make(map[int][]AutomationRule),
		phases:   make([]Phase, 0, len(raw.Phases)),
	}

	for _, p := range raw.Phases {
		c.phases = append(c.phases, Phase(p))
	}
	sort.Slice(c.phases, func(i, j int) bool { return c.phases[i].Order < c.phases[j].Order })

	for _, s := range raw.Steps {
		if _, dup := c.steps[s.Number]; dup {
			return nil, fmt.Errorf("step %d: duplicate step number", s.Number)
		}
		docs := make([]DocumentType, len(s.RequiredDocuments))
		for i, d := range s.RequiredDocuments {
			docs[i] = DocumentType(d)
		}
		c.steps[s.Number] = StepDefinition{
			Number:            s.Number,
			Title:             s.Title,
			Description:       s.Description,
			Phase:             s.Phase,
			DependsOn:         append([]int(nil), s.DependsOn...),
			RequiredDocuments: docs,
			EstimatedDays:     s.EstimatedDays,
		}

		byID := make(map[string]TaskDefinition, len(s.Tasks))
		defs := make([]TaskDefinition, 0, len(s.Tasks))
		for i, t := range s.Tasks {
			if _, dup := byID[t.ID]; dup {
				return nil, fmt.Errorf("step %d: duplicate task id %q", s.Number, t.ID)
			}
			def := TaskDefinition{ID: t.ID, Step: s.Number, Name: t.Name, DisplayOrder: i + 1}
			byID[t.ID] = def
			defs = append(defs, def)
		}
		c.tasks[s.Number] = defs
		c.taskByID[s.Number] = byID
	}

	for i, r := range raw.Rules {
		rule, err := ruleFromRaw(r)
		if err != nil {
			return nil, fmt.Errorf("automation rule %d: %w", i, err)
		}
		c.rules[rule.From] = append(c.rules[rule.From], rule)
		c.allRules = append(c.allRules, rule)
	}

	return c, nil
}

func ruleFromRaw(r rawRule) (AutomationRule, error) {
	set := 0
	if r.Advance != nil {
		set++
	}
	if r.FanOut != nil {
		set++
	}
	if r.Branch != nil {
		set++
	}
	if set != 1 {
		return AutomationRule{}, fmt.Errorf("exactly one of advance, fanout, branch must be set")
	}

	switch {
	case r.Advance != nil:
		return AutomationRule{
			Kind: RuleAdvance,
			From: r.Advance.From,
			To:   []int{r.Advance.To},
		}, nil
	case r.FanOut != nil:
		if len(r.FanOut.To) == 0 {
			return AutomationRule{}, fmt.Errorf("fanout from %d has no targets", r.FanOut.From)
		}
		return AutomationRule{
			Kind: RuleFanOut,
			From: r.FanOut.From,
			To:   append([]int(nil), r.FanOut.To...),
		}, nil
	default:
		p := Predicate(r.Branch.When)
		return AutomationRule{
			Kind:      RuleBranch,
			From:      r.Branch.From,
			To:        []int{r.Branch.TrueStep, r.Branch.FalseStep},
			Predicate: &p,
			TrueStep:  r.Branch.TrueStep,
			FalseStep: r.Branch.FalseStep,
		}, nil
	}
}
