package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loanflow/apperrors"
	"loanflow/database"
	"loanflow/finance"
	"loanflow/models"
	"loanflow/underwriting"
	"loanflow/utils"

	"github.com/go-playground/validator/v10"
)

// ApplyLoanRequest is the body of a loan application
type ApplyLoanRequest struct {
	Amount       float64 `json:"amount"`
	TenureMonths int     `json:"tenure_months"`
	Purpose      string  `json:"purpose" validate:"max=255"`
}

// ApplyResult is the stored application with the decision that produced
// its status
type ApplyResult struct {
	Application *models.LoanApplication `json:"application"`
	Decision    underwriting.Decision   `json:"decision"`
	// Affordability is set when the applicant has declared an income.
	Affordability *finance.AffordabilityResult `json:"affordability,omitempty"`
}

// AttachResult describes a stored document and its effect on the loan
type AttachResult struct {
	Document      *models.Document        `json:"document"`
	Loan          *models.LoanApplication `json:"loan,omitempty"`
	StatusUpdated bool                    `json:"statusUpdated"`
	Decision      *underwriting.Decision  `json:"decision,omitempty"`
}

// LoanService owns the persisted loan application and its status
// transitions
type LoanService struct {
	repo      database.Repository
	locker    utils.Locker
	validator *validator.Validate
	now       func() time.Time
}

// NewLoanService creates a LoanService
func NewLoanService(repo database.Repository, locker utils.Locker) *LoanService {
	return &LoanService{
		repo:      repo,
		locker:    locker,
		validator: validator.New(),
		now:       time.Now,
	}
}

// WithClock replaces the time source
func (s *LoanService) WithClock(now func() time.Time) *LoanService {
	s.now = now
	return s
}

// Apply records a new application and decides it in the same transaction
func (s *LoanService) Apply(ctx context.Context, applicantID uint, req ApplyLoanRequest) (*ApplyResult, error) {
	if req.Amount <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}
	if req.TenureMonths < 1 {
		return nil, apperrors.ErrInvalidTenure
	}
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	// The application is inserted with its decision and never stored pending.
	var res ApplyResult
	err := s.repo.Transaction(ctx, func(tx database.Repository) error {
		a, err := tx.GetApplicantByID(ctx, applicantID)
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.ErrApplicantNotFound
		}
		if err != nil {
			return err
		}

		decision, err := underwriting.Evaluate(underwriting.SnapshotOf(a), underwriting.Request{
			Amount:       req.Amount,
			TenureMonths: req.TenureMonths,
		})
		if err != nil {
			return err
		}

		now := s.now()
		loan := &models.LoanApplication{
			ApplicantID:  applicantID,
			Amount:       req.Amount,
			TenureMonths: req.TenureMonths,
			Purpose:      req.Purpose,
			CreatedAt:    now,
		}
		applyDecision(loan, decision, now)
		if loan.AffordabilityCheck, err = affordabilityOf(a, req); err != nil {
			return err
		}
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return fmt.Errorf("create loan application: %w", err)
		}

		res = ApplyResult{Application: loan, Decision: decision, Affordability: loan.AffordabilityCheck}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.GetMetrics().RecordDecision(string(res.Decision.Status), false)
	utils.LogInfo("loan %d for applicant %d decided %s by rule %s",
		res.Application.ID, applicantID, res.Decision.Status, res.Decision.Rule)
	return &res, nil
}

// affordabilityOf prices the request at the applicant's rate band, whatever
// the decision, and checks it against the declared income
func affordabilityOf(a *models.Applicant, req ApplyLoanRequest) (*finance.AffordabilityResult, error) {
	if !a.FinancialProfile.HasIncome() {
		return nil, nil
	}
	rate := finance.InterestRate(a.CreditScore)
	emi, err := finance.EMI(req.Amount, rate, req.TenureMonths)
	if err != nil {
		return nil, err
	}
	res := finance.Affordability(finance.AffordabilityInput{
		MonthlyIncome: a.FinancialProfile.MonthlyIncome,
		ExistingEMI:   a.FinancialProfile.ExistingEMI,
		ProposedEMI:   emi,
		AnnualRate:    rate,
		TenureMonths:  req.TenureMonths,
	})
	return &res, nil
}

func applyDecision(loan *models.LoanApplication, d underwriting.Decision, at time.Time) {
	loan.Status = d.Status
	loan.InterestRate = d.InterestRate
	loan.EMI = d.EMI
	loan.TotalPayable = d.TotalPayable
	loan.RejectionReason = d.RejectionReason()
	loan.DecisionReason = d.Reason
	loan.UpdatedAt = at
	decided := at
	loan.DecidedAt = &decided
}

// List returns the applicant's applications, most recent first
func (s *LoanService) List(ctx context.Context, applicantID uint) ([]models.LoanApplication, error) {
	return s.repo.ListLoans(ctx, applicantID)
}

// Get returns one of the applicant's applications
func (s *LoanService) Get(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error) {
	loan, err := s.repo.GetLoan(ctx, applicantID, loanID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.ErrUnknownLoan
	}
	return loan, err
}

// AttachDocument records doc for the applicant, against loanID when set.
// write stores the file contents; it runs once every precondition holds
// and before the document row is created. Attaching to a loan waiting on
// documents re-evaluates it in the same transaction. A salary slip marks
// the declared income as verified wherever it is attached. At most one
// attachment per loan runs at a time. Locks are taken loan first, then
// applicant.
func (s *LoanService) AttachDocument(ctx context.Context, applicantID uint, loanID *uint, doc *models.Document, write func(context.Context) error) (*AttachResult, error) {
	doc.ApplicantID = applicantID
	doc.LoanApplicationID = loanID
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = s.now()
	}

	if loanID == nil {
		return s.attachToProfile(ctx, applicantID, doc, write)
	}

	unlock, err := s.locker.Lock(ctx, loanLockKey(*loanID))
	if err != nil {
		return nil, fmt.Errorf("lock loan: %w", err)
	}
	defer unlock()
	unlockApplicant, err := s.locker.Lock(ctx, applicantLockKey(applicantID))
	if err != nil {
		return nil, fmt.Errorf("lock applicant: %w", err)
	}
	defer unlockApplicant()

	var res AttachResult
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		loan, err := tx.GetLoanForUpdate(ctx, applicantID, *loanID)
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.ErrUnknownLoan
		}
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusRequiresDocuments {
			return apperrors.ErrAlreadyFinalized.WithMessage(
				fmt.Sprintf("loan application %d is %s", loan.ID, loan.Status))
		}

		a, err := tx.GetApplicantByID(ctx, applicantID)
		if err != nil {
			return err
		}

		if err := write(ctx); err != nil {
			return err
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := markIncomeVerified(ctx, tx, a, doc); err != nil {
			return err
		}

		docs, err := tx.ListDocumentsByLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		types := make([]models.DocType, 0, len(docs))
		for _, d := range docs {
			types = append(types, d.DocType)
		}

		decision, err := underwriting.Reevaluate(underwriting.SnapshotOf(a), underwriting.StoredOf(loan), types)
		if err != nil {
			return err
		}
		res = AttachResult{Document: doc, Loan: loan, Decision: &decision}
		if decision.Status == loan.Status {
			return nil
		}

		applyDecision(loan, decision, s.now())
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return fmt.Errorf("store loan decision: %w", err)
		}
		res.StatusUpdated = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.StatusUpdated {
		utils.GetMetrics().RecordDecision(string(res.Loan.Status), true)
		utils.LogInfo("loan %d re-evaluated to %s after %s upload", res.Loan.ID, res.Loan.Status, doc.DocType)
	}
	return &res, nil
}

// markIncomeVerified sets the income flag once a salary slip is on file
func markIncomeVerified(ctx context.Context, tx database.Repository, a *models.Applicant, doc *models.Document) error {
	if doc.DocType != models.DocSalarySlip || a.FinancialProfile.IncomeVerified {
		return nil
	}
	a.FinancialProfile.IncomeVerified = true
	if err := tx.UpdateApplicant(ctx, a); err != nil {
		return fmt.Errorf("mark income verified: %w", err)
	}
	return nil
}

// attachToProfile stores a document with no loan
func (s *LoanService) attachToProfile(ctx context.Context, applicantID uint, doc *models.Document, write func(context.Context) error) (*AttachResult, error) {
	unlock, err := s.locker.Lock(ctx, applicantLockKey(applicantID))
	if err != nil {
		return nil, fmt.Errorf("lock applicant: %w", err)
	}
	defer unlock()

	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		a, err := tx.GetApplicantByID(ctx, applicantID)
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.ErrApplicantNotFound
		}
		if err != nil {
			return err
		}

		if err := write(ctx); err != nil {
			return err
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}

		return markIncomeVerified(ctx, tx, a, doc)
	})
	if err != nil {
		return nil, err
	}
	return &AttachResult{Document: doc}, nil
}
