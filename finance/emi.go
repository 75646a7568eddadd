package finance

import (
	"math"

	"loanflow/apperrors"

	"github.com/shopspring/decimal"
)

// Terms are the repayment terms quoted for a principal.
type Terms struct {
	InterestRate float64 `json:"interest_rate"`
	EMI          float64 `json:"emi"`
	TotalPayable float64 `json:"total_payable"`
}

// RoundCurrency rounds to currency minor units (2 places, half away from zero).
func RoundCurrency(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// EMI computes the equated monthly installment on a reducing balance.
func EMI(principal, annualRatePercent float64, months int) (float64, error) {
	if months < 1 {
		return 0, apperrors.ErrInvalidTenure
	}

	monthlyRate := annualRatePercent / 1200
	if monthlyRate == 0 {
		return RoundCurrency(principal / float64(months)), nil
	}

	growth := math.Pow(1+monthlyRate, float64(months))
	return RoundCurrency(principal * monthlyRate * growth / (growth - 1)), nil
}

// TotalPayable is the sum of all installments.
func TotalPayable(emi float64, months int) float64 {
	return decimal.NewFromFloat(emi).Mul(decimal.NewFromInt(int64(months))).Round(2).InexactFloat64()
}

// Quote prices a loan for the given score band.
func Quote(principal float64, creditScore, months int) (Terms, error) {
	rate := InterestRate(creditScore)
	emi, err := EMI(principal, rate, months)
	if err != nil {
		return Terms{}, err
	}
	return Terms{
		InterestRate: rate,
		EMI:          emi,
		TotalPayable: TotalPayable(emi, months),
	}, nil
}

// PrincipalForEMI solves the EMI formula backward: the largest principal
// whose installment equals emi at the given rate and tenure.
func PrincipalForEMI(emi, annualRatePercent float64, months int) float64 {
	if emi <= 0 || months < 1 {
		return 0
	}
	monthlyRate := annualRatePercent / 1200
	if monthlyRate == 0 {
		return RoundCurrency(emi * float64(months))
	}
	growth := math.Pow(1+monthlyRate, float64(months))
	return RoundCurrency(emi * (growth - 1) / (monthlyRate * growth))
}
