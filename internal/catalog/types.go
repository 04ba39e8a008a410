package catalog

// DocumentType identifies a category of uploaded document that a step can
// require before it may complete. Document presence is a collaborator fact;
// the catalog only names the requirement.
type DocumentType string

// Document types referenced by the built-in closing catalog.
const (
	DocPreApprovalLetter  DocumentType = "pre_approval_letter"
	DocProofOfFunds       DocumentType = "proof_of_funds"
	DocSignedOffer        DocumentType = "signed_offer"
	DocDepositReceipt     DocumentType = "deposit_receipt"
	DocInspectionReport   DocumentType = "inspection_report"
	DocPurchaseAgreement  DocumentType = "purchase_agreement"
	DocLoanApplication    DocumentType = "loan_application"
	DocAppraisalReport    DocumentType = "appraisal_report"
	DocTitleReport        DocumentType = "title_report"
	DocInsuranceBinder    DocumentType = "insurance_binder"
	DocLoanCommitment     DocumentType = "loan_commitment"
	DocClosingDisclosure  DocumentType = "closing_disclosure"
	DocClosingPackage     DocumentType = "closing_package"
	DocDeed               DocumentType = "deed"
)

// Phase groups steps for display and reporting. Phases are ordered and
// immutable after catalog load; they are not state-machine entities.
type Phase struct {
	ID          string
	Name        string
	DisplayName string
	Order       int
}

// StepDefinition is the static catalog entry for one of the ordered closing
// steps. Immutable at runtime.
type StepDefinition struct {
	Number            int
	Title             string
	Description       string
	Phase             string // Phase.ID
	DependsOn         []int
	RequiredDocuments []DocumentType
	EstimatedDays     int
}

// TaskDefinition is the static definition of a task owned by a step.
// Task IDs are unique within their step.
type TaskDefinition struct {
	ID           string
	Step         int
	Name         string
	DisplayOrder int
}

// RuleKind distinguishes the three automation rule shapes.
type RuleKind string

const (
	// RuleAdvance starts a single target step when the source completes.
	RuleAdvance RuleKind = "advance"
	// RuleFanOut starts every target step when the source completes.
	// Targets are independent: a failure on one must not block the others.
	RuleFanOut RuleKind = "fanout"
	// RuleBranch evaluates a predicate and starts exactly one of two targets.
	RuleBranch RuleKind = "branch"
)

// Predicate is a domain condition evaluated over recorded step details.
// It holds when the detail value stored under (Step, Key) equals Equals.
type Predicate struct {
	Step   int
	Key    string
	Equals string
}

// AutomationRule declares that completing From should start further steps.
//
// For RuleAdvance and RuleFanOut the targets are in To. For RuleBranch the
// predicate selects TrueStep or FalseStep and To lists both (for graph
// analysis, which must consider every reachable edge).
type AutomationRule struct {
	Kind      RuleKind
	From      int
	To        []int
	Predicate *Predicate
	TrueStep  int
	FalseStep int
}

// Targets returns every step this rule could start. For branches that is
// both arms; cycle analysis and validation walk all of them.
func (r AutomationRule) Targets() []int {
	return r.To
}
