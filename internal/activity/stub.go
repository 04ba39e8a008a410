package activity

import (
	"context"
	"fmt"
)

// Stubs returns a Services value backed entirely by deterministic in-process
// stubs. Every reference they mint is a pure function of the transaction id,
// so two runs over the same transaction produce identical details. The CLI
// uses this wiring by default; real deployments inject real integrations.
func Stubs() Services {
	return Services{
		Lender:      stubLender{},
		Listings:    stubListings{},
		Documents:   stubDocuments{},
		Inspections: stubInspections{},
		Appraisals:  stubAppraisals{},
		Title:       stubTitle{},
		Insurance:   stubInsurance{},
		Escrow:      stubEscrow{},
		ESign:       stubESign{},
		Wires:       stubWires{},
		Recorder:    stubRecorder{},
	}
}

func ref(prefix, txID string) string {
	return fmt.Sprintf("%s-%s", prefix, txID)
}

type stubLender struct{}

func (stubLender) SubmitPreApproval(_ context.Context, txID string) (PreApproval, error) {
	return PreApproval{Reference: ref("PA", txID), Amount: "450000", Lender: "First Keystone Bank"}, nil
}

func (stubLender) SubmitApplication(_ context.Context, txID string) (LoanApplication, error) {
	return LoanApplication{Reference: ref("LOAN", txID), Officer: "M. Ruiz"}, nil
}

func (stubLender) Underwrite(context.Context, string) (UnderwritingDecision, error) {
	return UnderwritingDecision{Decision: "approved"}, nil
}

type stubListings struct{}

func (stubListings) Connect(_ context.Context, txID string) (ListingConnection, error) {
	return ListingConnection{FeedID: ref("MLS", txID), Market: "metro"}, nil
}

type stubDocuments struct{}

func (stubDocuments) GenerateOffer(_ context.Context, txID string) (GeneratedDocument, error) {
	return GeneratedDocument{Reference: ref("OFFER", txID), Kind: "offer"}, nil
}

func (stubDocuments) GenerateContract(_ context.Context, txID string) (GeneratedDocument, error) {
	return GeneratedDocument{Reference: ref("PSA", txID), Kind: "purchase_agreement"}, nil
}

func (stubDocuments) GenerateClosingPackage(_ context.Context, txID string) (GeneratedDocument, error) {
	return GeneratedDocument{Reference: ref("PKG", txID), Kind: "closing_package"}, nil
}

type stubInspections struct{}

func (stubInspections) Schedule(_ context.Context, txID string) (InspectionBooking, error) {
	return InspectionBooking{Reference: ref("INSP", txID), Inspector: "HomeCheck LLC", Date: "tbd"}, nil
}

type stubAppraisals struct{}

func (stubAppraisals) Order(_ context.Context, txID string) (AppraisalOrder, error) {
	return AppraisalOrder{Reference: ref("APPR", txID), Appraiser: "Valuation Partners"}, nil
}

type stubTitle struct{}

func (stubTitle) OpenSearch(_ context.Context, txID string) (TitleSearch, error) {
	return TitleSearch{FileNumber: ref("TITLE", txID), Agency: "Clear Title Co"}, nil
}

type stubInsurance struct{}

func (stubInsurance) Bind(_ context.Context, txID string) (InsuranceBinder, error) {
	return InsuranceBinder{PolicyNumber: ref("POL", txID), Carrier: "Shelter Mutual"}, nil
}

type stubEscrow struct{}

func (stubEscrow) OpenEscrow(_ context.Context, txID string) (EscrowAccount, error) {
	return EscrowAccount{AccountID: ref("ESC", txID), Agent: "Clear Title Co"}, nil
}

type stubESign struct{}

func (stubESign) CreateEnvelope(_ context.Context, txID, _ string) (Envelope, error) {
	return Envelope{EnvelopeID: ref("ENV", txID), Provider: "signwell"}, nil
}

type stubWires struct{}

func (stubWires) RequestWire(_ context.Context, txID, purpose string) (WireReceipt, error) {
	return WireReceipt{Confirmation: ref("WIRE", txID) + "-" + purpose, Purpose: purpose}, nil
}

type stubRecorder struct{}

func (stubRecorder) RecordDeed(_ context.Context, txID string) (Recording, error) {
	return Recording{InstrumentNumber: ref("REC", txID), County: "Hamilton"}, nil
}
