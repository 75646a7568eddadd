package services

import (
	"context"
	"fmt"
	"io"

	"loanflow/database"
	"loanflow/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DashboardStats summarizes an applicant's lending position
type DashboardStats struct {
	CreditScore         int                     `json:"credit_score"`
	PreApprovedLimit    float64                 `json:"pre_approved_limit"`
	TotalLoans          int                     `json:"total_loans"`
	ActiveLoans         int                     `json:"active_loans"`
	PendingApplications int                     `json:"pending_applications"`
	TotalBorrowed       float64                 `json:"total_borrowed"`
	MonthlyEMI          float64                 `json:"monthly_emi"`
	AvailableCredit     float64                 `json:"available_credit"`
	VerificationStatus  models.Verification     `json:"verification_status"`
	FinancialProfile    models.FinancialProfile `json:"financial_profile"`
}

// DashboardService builds read-only summaries
type DashboardService struct {
	repo  database.Repository
	users *UserService
}

// NewDashboardService creates a DashboardService
func NewDashboardService(repo database.Repository, users *UserService) *DashboardService {
	return &DashboardService{repo: repo, users: users}
}

// Stats computes the dashboard. Approved loans are active; pending and
// document-waiting ones count as pending.
func (s *DashboardService) Stats(ctx context.Context, applicantID uint) (*DashboardStats, error) {
	a, err := s.users.Me(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	loans, err := s.repo.ListLoans(ctx, applicantID)
	if err != nil {
		return nil, err
	}

	borrowed, emi := decimal.Zero, decimal.Zero
	stats := &DashboardStats{
		CreditScore:        a.CreditScore,
		PreApprovedLimit:   a.PreApprovedLimit,
		TotalLoans:         len(loans),
		VerificationStatus: a.Verification,
		FinancialProfile:   a.FinancialProfile,
	}
	for _, l := range loans {
		switch l.Status {
		case models.LoanStatusApproved:
			stats.ActiveLoans++
			borrowed = borrowed.Add(decimal.NewFromFloat(l.Amount))
			emi = emi.Add(decimal.NewFromFloat(l.EMI))
		case models.LoanStatusPending, models.LoanStatusRequiresDocuments:
			stats.PendingApplications++
		}
	}

	stats.TotalBorrowed = borrowed.Round(2).InexactFloat64()
	stats.MonthlyEMI = emi.Round(2).InexactFloat64()
	stats.AvailableCredit = decimal.NewFromFloat(a.PreApprovedLimit).Sub(borrowed).Round(2).InexactFloat64()
	return stats, nil
}

const loansSheet = "Loans"

// ExportLoans writes the applicant's applications as an XLSX workbook
func (s *DashboardService) ExportLoans(ctx context.Context, applicantID uint, w io.Writer) error {
	loans, err := s.repo.ListLoans(ctx, applicantID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", loansSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []interface{}{"Application", "Created", "Amount", "Tenure (months)", "Purpose",
		"Status", "Interest Rate", "EMI", "Total Payable", "Reason"}
	if err := f.SetSheetRow(loansSheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, l := range loans {
		reason := l.DecisionReason
		if l.RejectionReason != nil {
			reason = *l.RejectionReason
		}
		row := []interface{}{l.ID, l.CreatedAt.Format("2006-01-02"), l.Amount, l.TenureMonths, l.Purpose,
			string(l.Status), l.InterestRate, l.EMI, l.TotalPayable, reason}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(loansSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	return f.Write(w)
}
