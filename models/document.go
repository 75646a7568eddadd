package models

import "time"

// DocType classifies an uploaded document
type DocType string

const (
	DocSalarySlip    DocType = "salary_slip"
	DocAadhaar       DocType = "aadhaar"
	DocPAN           DocType = "pan"
	DocBankStatement DocType = "bank_statement"
	DocOther         DocType = "other"
)

// Valid reports whether the document type is known
func (t DocType) Valid() bool {
	switch t {
	case DocSalarySlip, DocAadhaar, DocPAN, DocBankStatement, DocOther:
		return true
	}
	return false
}

// ProvesIncome reports whether the document counts as income evidence
func (t DocType) ProvesIncome() bool {
	return t == DocSalarySlip || t == DocBankStatement
}

// Document is an uploaded file, optionally attached to a loan application.
// Rows are insert-only.
type Document struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ApplicantID       uint      `gorm:"not null;index" json:"applicant_id"`
	LoanApplicationID *uint     `gorm:"index" json:"loan_application_id,omitempty"`
	DocType           DocType   `gorm:"type:varchar(20);not null" json:"doc_type"`
	FileName          string    `gorm:"size:255;not null" json:"file_name"`
	ContentType       string    `gorm:"size:100" json:"content_type"`
	Size              int64     `gorm:"not null" json:"size"`
	StorageKey        string    `gorm:"size:255;not null" json:"-"`
	ThumbnailKey      string    `gorm:"size:255" json:"-"`
	UploadedAt        time.Time `gorm:"not null" json:"uploaded_at"`
}

func (Document) TableName() string {
	return "documents"
}
