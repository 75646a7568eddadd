package finance

import (
	"errors"
	"testing"

	"loanflow/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterestRate_Bands(t *testing.T) {
	tests := []struct {
		score int
		want  float64
	}{
		{300, 14.0},
		{699, 14.0},
		{700, 12.5},
		{749, 12.5},
		{750, 11.5},
		{799, 11.5},
		{800, 10.5},
		{900, 10.5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InterestRate(tt.score), "score %d", tt.score)
	}
}

func TestInterestRate_MonotonicNonIncreasing(t *testing.T) {
	prev := InterestRate(300)
	for s := 301; s <= 900; s++ {
		rate := InterestRate(s)
		assert.LessOrEqual(t, rate, prev, "score %d", s)
		prev = rate
	}
}

func TestEMI(t *testing.T) {
	emi, err := EMI(100000, 12.5, 36)
	require.NoError(t, err)
	assert.InDelta(t, 3345.36, emi, 0.001)
	assert.Equal(t, 120432.96, TotalPayable(emi, 36))

	again, err := EMI(100000, 12.5, 36)
	require.NoError(t, err)
	assert.Equal(t, emi, again)
}

func TestEMI_ZeroRate(t *testing.T) {
	emi, err := EMI(12000, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, emi)
}

func TestEMI_InvalidTenure(t *testing.T) {
	_, err := EMI(10000, 12.5, 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTenure))
}

func TestQuote(t *testing.T) {
	terms, err := Quote(100000, 720, 36)
	require.NoError(t, err)
	assert.Equal(t, 12.5, terms.InterestRate)
	assert.Equal(t, 3345.36, terms.EMI)
	assert.Equal(t, 120432.96, terms.TotalPayable)
}

func TestAffordability_BoundaryIsInclusive(t *testing.T) {
	res := Affordability(AffordabilityInput{
		MonthlyIncome: 50000,
		ExistingEMI:   5000,
		ProposedEMI:   15000,
		AnnualRate:    12.5,
		TenureMonths:  36,
	})

	assert.Equal(t, 40.0, res.EMIPercentage)
	assert.Equal(t, 40.0, res.DTIRatio)
	assert.Equal(t, 20000.0, res.TotalEMI)
	assert.True(t, res.IsAffordable)
	assert.Equal(t, RecommendApproved, res.Recommendation)
	assert.Equal(t, MaxEMIPercentage, res.MaxEMIPercentage)
	assert.Equal(t, MaxDTIRatio, res.MaxDTIRatio)
	assert.InDelta(t, 448381.89, res.MaxAffordableLoan, 0.01)
}

func TestAffordability_OverCap(t *testing.T) {
	res := Affordability(AffordabilityInput{
		MonthlyIncome: 50000,
		ExistingEMI:   5000,
		ProposedEMI:   15001,
		AnnualRate:    12.5,
		TenureMonths:  36,
	})

	assert.False(t, res.IsAffordable)
	assert.Equal(t, RecommendLowerAmount, res.Recommendation)
	assert.Equal(t, 40.0, res.EMIPercentage)
}

func TestAffordability_NoBudgetLeft(t *testing.T) {
	res := Affordability(AffordabilityInput{
		MonthlyIncome: 30000,
		ExistingEMI:   12000,
		ProposedEMI:   5000,
		AnnualRate:    14,
		TenureMonths:  24,
	})

	assert.False(t, res.IsAffordable)
	assert.Zero(t, res.MaxAffordableLoan)
}

func TestAffordability_NoIncome(t *testing.T) {
	res := Affordability(AffordabilityInput{ProposedEMI: 1000, AnnualRate: 12.5, TenureMonths: 12})

	assert.False(t, res.IsAffordable)
	assert.Zero(t, res.MaxAffordableLoan)
	assert.Zero(t, res.EMIPercentage)
}

func TestPrincipalForEMI_InvertsEMI(t *testing.T) {
	principal := PrincipalForEMI(3345.36, 12.5, 36)
	assert.InDelta(t, 100000, principal, 0.5)

	assert.Equal(t, 12000.0, PrincipalForEMI(1000, 0, 12))
	assert.Zero(t, PrincipalForEMI(0, 12.5, 12))
}
