package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// SanctionLetterRenderer renders sanction letters as PDF
type SanctionLetterRenderer struct {
	lender string
}

// NewSanctionLetterRenderer creates a renderer signing letters as lender
func NewSanctionLetterRenderer(lender string) *SanctionLetterRenderer {
	return &SanctionLetterRenderer{lender: lender}
}

var sanctionTerms = []string{
	"1. The loan is subject to all terms and conditions mentioned in the loan agreement.",
	"2. Repayment will be through EMI starting from next month.",
	"3. Prepayment is allowed with applicable charges.",
	"4. Please sign and return the loan agreement within 7 days.",
}

func (r *SanctionLetterRenderer) RenderSanctionLetter(ctx context.Context, l SanctionLetter) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Sanction Letter %d", l.LoanID), false)
	pdf.SetAuthor(r.lender, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, strings.ToUpper(r.lender), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 12, "LOAN SANCTION LETTER", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Date: "+l.IssuedAt.Format("02 January 2006"), "", 1, "R", false, 0, "")
	pdf.Ln(2)
	pdf.CellFormat(0, 6, "To,", "", 1, "L", false, 0, "")
	for _, line := range []string{l.FullName, l.Address, l.City} {
		if line != "" {
			pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Subject: Sanction of Personal Loan - Application No. %d", l.LoanID), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, fmt.Sprintf("Dear %s,\n\nWe are pleased to inform you that your personal loan application has been "+
		"sanctioned by %s.\n\nThe loan details are as follows:", l.FullName, r.lender), "", "L", false)
	pdf.Ln(3)

	rows := [][2]string{
		{"Loan Amount", formatINR(l.Amount)},
		{"Interest Rate", fmt.Sprintf("%.2f%% per annum", l.InterestRate)},
		{"Loan Tenure", fmt.Sprintf("%d months", l.TenureMonths)},
		{"Monthly EMI", formatINR(l.EMI)},
		{"Total Amount Payable", formatINR(l.TotalPayable)},
	}
	pdf.SetFillColor(230, 236, 245)
	for i, row := range rows {
		fill := i%2 == 0
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(80, 8, row[0], "1", 0, "L", fill, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(90, 8, row[1], "1", 1, "L", fill, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Terms and Conditions:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, t := range sanctionTerms {
		pdf.MultiCell(0, 6, t, "", "L", false)
	}
	pdf.Ln(4)
	pdf.MultiCell(0, 6, "Congratulations on your loan approval! We look forward to serving you.", "", "L", false)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "For "+r.lender, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Authorized Signatory", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render sanction letter: %w", err)
	}
	return buf.Bytes(), nil
}
