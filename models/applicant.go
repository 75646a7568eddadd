package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// EmploymentType describes how the applicant earns income
type EmploymentType string

const (
	EmploymentSalaried     EmploymentType = "salaried"
	EmploymentSelfEmployed EmploymentType = "self-employed"
	EmploymentBusiness     EmploymentType = "business"
)

// Applicant is the account holder applying for loans
type Applicant struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName         string    `gorm:"column:full_name;not null;size:100" json:"full_name"`
	Email            string    `gorm:"column:email;unique;not null;size:100;index" json:"email"`
	PasswordHash     string    `gorm:"column:password_hash;not null;size:100" json:"-"`
	Phone            string    `gorm:"column:phone;not null;size:20" json:"phone"`
	Address          string    `gorm:"column:address;size:255" json:"address"`
	City             string    `gorm:"column:city;size:100" json:"city"`
	Age              int       `gorm:"column:age" json:"age"`
	CreditScore      int       `gorm:"column:credit_score;not null" json:"credit_score"`
	PreApprovedLimit float64   `gorm:"column:pre_approved_limit;type:numeric(14,2);not null;default:0" json:"pre_approved_limit"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`

	FinancialProfile FinancialProfile `gorm:"embedded" json:"financial_profile"`
	Verification     Verification     `gorm:"embedded" json:"verification"`
}

// FinancialProfile is the self-declared income picture of an applicant
type FinancialProfile struct {
	MonthlyIncome  float64        `gorm:"column:monthly_income;type:numeric(14,2);not null;default:0" json:"monthly_income"`
	ExistingEMI    float64        `gorm:"column:existing_emi;type:numeric(14,2);not null;default:0" json:"existing_emi"`
	EmploymentType EmploymentType `gorm:"column:employment_type;type:varchar(20)" json:"employment_type,omitempty"`
	IncomeVerified bool           `gorm:"column:income_verified;not null;default:false" json:"income_verified"`
}

// HasIncome reports whether the financial profile has been captured
func (p FinancialProfile) HasIncome() bool {
	return p.MonthlyIncome > 0
}

// Verification holds the per-channel identity flags
type Verification struct {
	PhoneVerified bool `gorm:"column:phone_verified;not null;default:false" json:"phone_verified"`
	EmailVerified bool `gorm:"column:email_verified;not null;default:false" json:"email_verified"`
	KYCVerified   bool `gorm:"column:kyc_verified;not null;default:false" json:"kyc_verified"`
}

// IdentityVerified is true once both contact channels are confirmed
func (v Verification) IdentityVerified() bool {
	return v.PhoneVerified && v.EmailVerified
}

// IsVerified returns the flag of one channel
func (v Verification) IsVerified(ch Channel) bool {
	switch ch {
	case ChannelPhone:
		return v.PhoneVerified
	case ChannelEmail:
		return v.EmailVerified
	}
	return false
}

// MarkVerified sets the channel flag and derives the KYC flag
func (v *Verification) MarkVerified(ch Channel) {
	switch ch {
	case ChannelPhone:
		v.PhoneVerified = true
	case ChannelEmail:
		v.EmailVerified = true
	}
	v.KYCVerified = v.IdentityVerified()
}

func (Applicant) TableName() string {
	return "applicants"
}

// BeforeCreate validates fields the database cannot
func (a *Applicant) BeforeCreate(tx *gorm.DB) error {
	return a.Validate()
}

// Validate checks identity and scoring ranges
func (a *Applicant) Validate() error {
	if len(a.FullName) < 2 || len(a.FullName) > 100 {
		return errors.New("full name must be between 2 and 100 characters")
	}
	if a.CreditScore < 300 || a.CreditScore > 900 {
		return errors.New("credit score must be between 300 and 900")
	}
	if a.PreApprovedLimit < 0 {
		return errors.New("pre-approved limit cannot be negative")
	}
	return nil
}
