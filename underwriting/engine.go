// Package underwriting decides loan applications from an applicant snapshot.
// Decisions are deterministic: the same snapshot and request always produce
// the same decision.
package underwriting

import (
	"loanflow/apperrors"
	"loanflow/finance"
	"loanflow/models"
)

const (
	// MinCreditScore is the lowest score eligible for any loan.
	MinCreditScore = 700
	// MaxLimitMultiple bounds conditional approvals relative to the
	// pre-approved limit.
	MaxLimitMultiple = 2
)

const (
	ReasonLowScore           = "credit score below minimum threshold"
	ReasonIdentityIncomplete = "identity verification incomplete"
	ReasonDocumentsRequired  = "supporting income documentation required for amount above pre-approved limit"
	ReasonExceedsMultiple    = "requested amount exceeds maximum eligible multiple of pre-approved limit"
)

// Rule names the branch of the decision tree that produced a decision.
type Rule string

const (
	RuleCreditScore       Rule = "credit_score"
	RuleIdentity          Rule = "identity"
	RuleWithinLimit       Rule = "within_limit"
	RuleAboveLimit        Rule = "above_limit"
	RuleExceedsMultiple   Rule = "exceeds_multiple"
	RuleDocumentsReceived Rule = "documents_received"
	RuleAwaitingDocuments Rule = "awaiting_documents"
)

// Snapshot is the part of the applicant profile the engine reads.
type Snapshot struct {
	CreditScore      int
	PreApprovedLimit float64
	PhoneVerified    bool
	EmailVerified    bool
}

// SnapshotOf captures the decision inputs of an applicant.
func SnapshotOf(a *models.Applicant) Snapshot {
	return Snapshot{
		CreditScore:      a.CreditScore,
		PreApprovedLimit: a.PreApprovedLimit,
		PhoneVerified:    a.Verification.PhoneVerified,
		EmailVerified:    a.Verification.EmailVerified,
	}
}

// Request is the amount and tenure being applied for.
type Request struct {
	Amount       float64
	TenureMonths int
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Status models.LoanStatus `json:"status"`
	finance.Terms
	Reason string `json:"reason,omitempty"`
	Rule   Rule   `json:"rule"`
}

// RejectionReason returns the reason when the decision is a rejection.
func (d Decision) RejectionReason() *string {
	if d.Status != models.LoanStatusRejected {
		return nil
	}
	reason := d.Reason
	return &reason
}

// Evaluate runs the first-pass decision tree. Rules are checked in order and
// the first match wins.
func Evaluate(s Snapshot, req Request) (Decision, error) {
	if req.Amount <= 0 {
		return Decision{}, apperrors.ErrInvalidAmount
	}
	if req.TenureMonths < 1 {
		return Decision{}, apperrors.ErrInvalidTenure
	}

	if s.CreditScore < MinCreditScore {
		return reject(RuleCreditScore, ReasonLowScore), nil
	}
	if !(s.PhoneVerified && s.EmailVerified) {
		return reject(RuleIdentity, ReasonIdentityIncomplete), nil
	}

	switch {
	case req.Amount <= s.PreApprovedLimit:
		terms, err := finance.Quote(req.Amount, s.CreditScore, req.TenureMonths)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Status: models.LoanStatusApproved, Terms: terms, Rule: RuleWithinLimit}, nil

	case req.Amount <= MaxLimitMultiple*s.PreApprovedLimit:
		terms, err := finance.Quote(req.Amount, s.CreditScore, req.TenureMonths)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			Status: models.LoanStatusRequiresDocuments,
			Terms:  terms,
			Reason: ReasonDocumentsRequired,
			Rule:   RuleAboveLimit,
		}, nil
	}

	return reject(RuleExceedsMultiple, ReasonExceedsMultiple), nil
}

// Stored is a loan application as already decided once.
type Stored struct {
	Status models.LoanStatus
	Amount float64
	Terms  finance.Terms
}

// StoredOf captures the decision-relevant fields of a persisted loan.
func StoredOf(l *models.LoanApplication) Stored {
	return Stored{
		Status: l.Status,
		Amount: l.Amount,
		Terms: finance.Terms{
			InterestRate: l.InterestRate,
			EMI:          l.EMI,
			TotalPayable: l.TotalPayable,
		},
	}
}

// Reevaluate re-runs the amount tiers for a loan waiting on documents. The
// stored terms are carried over unchanged. An upload never turns the loan
// into a rejection: anything short of approval leaves it waiting.
func Reevaluate(s Snapshot, loan Stored, docs []models.DocType) (Decision, error) {
	if loan.Status != models.LoanStatusRequiresDocuments {
		return Decision{}, apperrors.ErrAlreadyFinalized
	}

	waiting := Decision{
		Status: models.LoanStatusRequiresDocuments,
		Terms:  loan.Terms,
		Reason: ReasonDocumentsRequired,
		Rule:   RuleAwaitingDocuments,
	}

	switch {
	case loan.Amount <= s.PreApprovedLimit:
		return Decision{Status: models.LoanStatusApproved, Terms: loan.Terms, Rule: RuleWithinLimit}, nil

	case loan.Amount <= MaxLimitMultiple*s.PreApprovedLimit:
		if hasIncomeProof(docs) {
			return Decision{Status: models.LoanStatusApproved, Terms: loan.Terms, Rule: RuleDocumentsReceived}, nil
		}
	}

	return waiting, nil
}

func hasIncomeProof(docs []models.DocType) bool {
	for _, d := range docs {
		if d.ProvesIncome() {
			return true
		}
	}
	return false
}

func reject(rule Rule, reason string) Decision {
	return Decision{Status: models.LoanStatusRejected, Reason: reason, Rule: rule}
}
