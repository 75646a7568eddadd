package models

import (
	"time"

	"loanflow/finance"
)

// LoanStatus is the decision state of a loan application
type LoanStatus string

const (
	LoanStatusPending           LoanStatus = "pending"
	LoanStatusApproved          LoanStatus = "approved"
	LoanStatusRejected          LoanStatus = "rejected"
	LoanStatusRequiresDocuments LoanStatus = "requires_documents"
)

// Terminal reports whether no further transitions are allowed
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusApproved || s == LoanStatusRejected
}

// LoanApplication is a request for a personal loan and its decision.
// Rate, EMI and total payable are fixed once the first decision is stored.
type LoanApplication struct {
	ID                 uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicantID        uint       `gorm:"not null;index" json:"applicant_id"`
	Amount             float64    `gorm:"type:numeric(14,2);not null" json:"amount"`
	TenureMonths       int        `gorm:"not null" json:"tenure_months"`
	Purpose            string     `gorm:"size:255" json:"purpose"`
	Status             LoanStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	InterestRate       float64    `gorm:"type:numeric(5,2);not null;default:0" json:"interest_rate"`
	EMI                float64    `gorm:"column:emi;type:numeric(14,2);not null;default:0" json:"emi"`
	TotalPayable       float64    `gorm:"type:numeric(14,2);not null;default:0" json:"total_payable"`
	RejectionReason    *string    `gorm:"size:255" json:"rejection_reason,omitempty"`
	DecisionReason     string     `gorm:"size:255" json:"decision_reason,omitempty"`
	SanctionLetterPath string     `gorm:"size:255" json:"-"`
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`

	// AffordabilityCheck is the income check taken when the application
	// was made. Nil when no income was declared.
	AffordabilityCheck *finance.AffordabilityResult `gorm:"type:jsonb;serializer:json" json:"affordability_check,omitempty"`

	Documents []Document `gorm:"foreignKey:LoanApplicationID" json:"documents,omitempty"`
}

func (LoanApplication) TableName() string {
	return "loan_applications"
}
