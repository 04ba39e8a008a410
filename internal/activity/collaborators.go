// Package activity binds the closing steps to their external collaborators:
// lender, title agency, e-signature provider, wire service, and the rest.
//
// Each collaborator is an opaque capability behind a small interface; the
// engine never sees their internals, only the details they return. Real
// integrations live outside this repository and are injected; the stubs in
// this package stand in for them in the CLI and in tests.
package activity

import "context"

// PreApproval is a lender's answer to a pre-approval submission.
type PreApproval struct {
	Reference string
	Amount    string
	Lender    string
}

// LoanApplication is the lender's acknowledgment of a mortgage application.
type LoanApplication struct {
	Reference string
	Officer   string
}

// UnderwritingDecision is the lender's underwriting outcome.
type UnderwritingDecision struct {
	Decision   string // approved, approved_with_conditions, declined
	Conditions string
}

// LenderGateway covers every touchpoint with the buyer's lender.
type LenderGateway interface {
	SubmitPreApproval(ctx context.Context, txID string) (PreApproval, error)
	SubmitApplication(ctx context.Context, txID string) (LoanApplication, error)
	Underwrite(ctx context.Context, txID string) (UnderwritingDecision, error)
}

// ListingConnection is an MLS feed subscription for a buyer's search.
type ListingConnection struct {
	FeedID string
	Market string
}

// ListingService connects a transaction to listing search infrastructure.
type ListingService interface {
	Connect(ctx context.Context, txID string) (ListingConnection, error)
}

// GeneratedDocument points at a rendered document in external storage.
type GeneratedDocument struct {
	Reference string
	Kind      string
}

// DocumentGenerator renders offers, contracts, and closing packages.
type DocumentGenerator interface {
	GenerateOffer(ctx context.Context, txID string) (GeneratedDocument, error)
	GenerateContract(ctx context.Context, txID string) (GeneratedDocument, error)
	GenerateClosingPackage(ctx context.Context, txID string) (GeneratedDocument, error)
}

// InspectionBooking is a confirmed home inspection appointment.
type InspectionBooking struct {
	Reference string
	Inspector string
	Date      string
}

// InspectionScheduler books home inspections.
type InspectionScheduler interface {
	Schedule(ctx context.Context, txID string) (InspectionBooking, error)
}

// AppraisalOrder is a placed appraisal order.
type AppraisalOrder struct {
	Reference string
	Appraiser string
}

// AppraisalService orders property appraisals.
type AppraisalService interface {
	Order(ctx context.Context, txID string) (AppraisalOrder, error)
}

// TitleSearch is an opened title search file.
type TitleSearch struct {
	FileNumber string
	Agency     string
}

// TitleAgency opens title searches and issues title commitments.
type TitleAgency interface {
	OpenSearch(ctx context.Context, txID string) (TitleSearch, error)
}

// InsuranceBinder is proof of bound homeowners coverage.
type InsuranceBinder struct {
	PolicyNumber string
	Carrier      string
}

// InsuranceBroker binds homeowners insurance.
type InsuranceBroker interface {
	Bind(ctx context.Context, txID string) (InsuranceBinder, error)
}

// EscrowAccount is an opened escrow account for earnest money and closing
// funds.
type EscrowAccount struct {
	AccountID string
	Agent     string
}

// EscrowAgent opens and administers escrow accounts.
type EscrowAgent interface {
	OpenEscrow(ctx context.Context, txID string) (EscrowAccount, error)
}

// Envelope is an e-signature envelope sent for signing.
type Envelope struct {
	EnvelopeID string
	Provider   string
}

// ESignProvider sends documents for electronic signature.
type ESignProvider interface {
	CreateEnvelope(ctx context.Context, txID, document string) (Envelope, error)
}

// WireReceipt confirms a requested wire transfer.
type WireReceipt struct {
	Confirmation string
	Purpose      string
}

// WireService requests wire transfers for deposits and disbursements.
type WireService interface {
	RequestWire(ctx context.Context, txID, purpose string) (WireReceipt, error)
}

// Recording is a deed recording confirmation from the county.
type Recording struct {
	InstrumentNumber string
	County           string
}

// CountyRecorder records deeds with the county.
type CountyRecorder interface {
	RecordDeed(ctx context.Context, txID string) (Recording, error)
}
