package activity

import (
	"context"

	"github.com/keyturn/keyturn/internal/workflow"
)

// Services bundles every external collaborator the built-in activities call.
// A nil field simply leaves the corresponding steps without an activity (the
// engine treats them as no-ops), so partial wiring is fine in tests and in
// stripped-down deployments.
type Services struct {
	Lender      LenderGateway
	Listings    ListingService
	Documents   DocumentGenerator
	Inspections InspectionScheduler
	Appraisals  AppraisalService
	Title       TitleAgency
	Insurance   InsuranceBroker
	Escrow      EscrowAgent
	ESign       ESignProvider
	Wires       WireService
	Recorder    CountyRecorder
}

// Catalog step numbers the built-in activities attach to. These mirror the
// embedded closing catalog.
const (
	stepPreApproval    = 1
	stepListingSearch  = 3
	stepOfferPrep      = 5
	stepAgreementDraft = 8
	stepEarnestDeposit = 9
	stepInspection     = 10
	stepMortgageApp    = 13
	stepAppraisal      = 14
	stepTitleSearch    = 15
	stepInsurance      = 16
	stepUnderwriting   = 17
	stepClosingDocs    = 21
	stepSigning        = 22
	stepDisbursement   = 23
	stepDeedRecording  = 24
)

// DefaultRegistry wires the built-in step activities over the supplied
// collaborators. Steps without a collaborator-backed action (negotiations,
// reviews, walkthroughs) stay unregistered; their progress is driven purely
// by task completion.
func DefaultRegistry(s Services) *workflow.Registry {
	r := workflow.NewRegistry()

	if s.Lender != nil {
		r.Register(stepPreApproval, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				pa, err := s.Lender.SubmitPreApproval(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"pre_approval.reference": pa.Reference,
					"pre_approval.amount":    pa.Amount,
					"pre_approval.lender":    pa.Lender,
				}, nil
			},
		})
		r.Register(stepMortgageApp, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				app, err := s.Lender.SubmitApplication(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"loan.reference": app.Reference,
					"loan.officer":   app.Officer,
				}, nil
			},
		})
		r.Register(stepUnderwriting, workflow.Funcs{
			Complete: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				dec, err := s.Lender.Underwrite(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"underwriting.decision":   dec.Decision,
					"underwriting.conditions": dec.Conditions,
				}, nil
			},
		})
	}

	if s.Listings != nil {
		r.Register(stepListingSearch, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				conn, err := s.Listings.Connect(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"listing.feed":   conn.FeedID,
					"listing.market": conn.Market,
				}, nil
			},
		})
	}

	if s.Documents != nil {
		r.Register(stepOfferPrep, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				doc, err := s.Documents.GenerateOffer(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{"offer.document": doc.Reference}, nil
			},
		})
		r.Register(stepAgreementDraft, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				doc, err := s.Documents.GenerateContract(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{"agreement.document": doc.Reference}, nil
			},
		})
	}

	if s.Escrow != nil || s.Wires != nil {
		r.Register(stepEarnestDeposit, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				if s.Escrow == nil {
					return nil, nil
				}
				acct, err := s.Escrow.OpenEscrow(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"escrow.account": acct.AccountID,
					"escrow.agent":   acct.Agent,
				}, nil
			},
			Complete: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				if s.Wires == nil {
					return nil, nil
				}
				receipt, err := s.Wires.RequestWire(ctx, txn.ID, "earnest-money")
				if err != nil {
					return nil, err
				}
				return workflow.Details{"deposit.confirmation": receipt.Confirmation}, nil
			},
		})
	}

	if s.Inspections != nil {
		r.Register(stepInspection, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				booking, err := s.Inspections.Schedule(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"inspection.reference": booking.Reference,
					"inspection.inspector": booking.Inspector,
					"inspection.date":      booking.Date,
				}, nil
			},
		})
	}

	if s.Appraisals != nil {
		r.Register(stepAppraisal, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				order, err := s.Appraisals.Order(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{"appraisal.reference": order.Reference}, nil
			},
		})
	}

	if s.Title != nil {
		r.Register(stepTitleSearch, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				search, err := s.Title.OpenSearch(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"title.file":   search.FileNumber,
					"title.agency": search.Agency,
				}, nil
			},
		})
	}

	if s.Insurance != nil {
		r.Register(stepInsurance, workflow.Funcs{
			Complete: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				binder, err := s.Insurance.Bind(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"insurance.policy":  binder.PolicyNumber,
					"insurance.carrier": binder.Carrier,
				}, nil
			},
		})
	}

	if s.Documents != nil || s.ESign != nil {
		r.Register(stepClosingDocs, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				if s.Documents == nil {
					return nil, nil
				}
				pkg, err := s.Documents.GenerateClosingPackage(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{"closing.package": pkg.Reference}, nil
			},
		})
	}

	if s.ESign != nil {
		r.Register(stepSigning, workflow.Funcs{
			Start: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				env, err := s.ESign.CreateEnvelope(ctx, txn.ID, txn.Details["closing.package"])
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"signing.envelope": env.EnvelopeID,
					"signing.provider": env.Provider,
				}, nil
			},
		})
	}

	if s.Wires != nil {
		r.Register(stepDisbursement, workflow.Funcs{
			Complete: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				receipt, err := s.Wires.RequestWire(ctx, txn.ID, "closing-funds")
				if err != nil {
					return nil, err
				}
				return workflow.Details{"disbursement.confirmation": receipt.Confirmation}, nil
			},
		})
	}

	if s.Recorder != nil {
		r.Register(stepDeedRecording, workflow.Funcs{
			Complete: func(ctx context.Context, txn workflow.Txn) (workflow.Details, error) {
				rec, err := s.Recorder.RecordDeed(ctx, txn.ID)
				if err != nil {
					return nil, err
				}
				return workflow.Details{
					"deed.instrument": rec.InstrumentNumber,
					"deed.county":     rec.County,
				}, nil
			},
		})
	}

	return r
}
