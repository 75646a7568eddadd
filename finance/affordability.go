package finance

import "github.com/shopspring/decimal"

const (
	// MaxEMIPercentage caps total installments as a share of monthly income.
	MaxEMIPercentage = 40.0
	// MaxDTIRatio caps annual debt obligations as a share of annual income.
	MaxDTIRatio = 60.0
)

// Recommendation values of an affordability check.
const (
	RecommendApproved    = "approved"
	RecommendLowerAmount = "consider_lower_amount"
)

// AffordabilityInput describes the obligations to assess.
type AffordabilityInput struct {
	MonthlyIncome float64
	ExistingEMI   float64
	ProposedEMI   float64
	// AnnualRate and TenureMonths price the max affordable loan.
	AnnualRate   float64
	TenureMonths int
}

// AffordabilityResult is the outcome of an affordability check.
type AffordabilityResult struct {
	ProposedEMI       float64 `json:"proposed_emi"`
	TotalEMI          float64 `json:"total_emi"`
	EMIPercentage     float64 `json:"emi_percentage"`
	MaxEMIPercentage  float64 `json:"max_emi_percentage"`
	DTIRatio          float64 `json:"dti_ratio"`
	MaxDTIRatio       float64 `json:"max_dti_ratio"`
	IsAffordable      bool    `json:"is_affordable"`
	MaxAffordableLoan float64 `json:"max_affordable_loan"`
	Recommendation    string  `json:"recommendation"`
}

// Affordability evaluates the EMI share and debt-to-income ratio of the
// combined installments. DTI is always taken on annual totals: twelve months
// of installments over twelve months of income.
func Affordability(in AffordabilityInput) AffordabilityResult {
	total := decimal.NewFromFloat(in.ExistingEMI).Add(decimal.NewFromFloat(in.ProposedEMI))
	res := AffordabilityResult{
		ProposedEMI:      RoundCurrency(in.ProposedEMI),
		TotalEMI:         total.Round(2).InexactFloat64(),
		MaxEMIPercentage: MaxEMIPercentage,
		MaxDTIRatio:      MaxDTIRatio,
		Recommendation:   RecommendLowerAmount,
	}

	if in.MonthlyIncome <= 0 {
		return res
	}

	hundred := decimal.NewFromInt(100)
	twelve := decimal.NewFromInt(12)
	income := decimal.NewFromFloat(in.MonthlyIncome)

	emiPct := total.Mul(hundred).Div(income)
	dti := total.Mul(twelve).Mul(hundred).Div(income.Mul(twelve))

	res.EMIPercentage = emiPct.Round(2).InexactFloat64()
	res.DTIRatio = dti.Round(2).InexactFloat64()
	res.IsAffordable = emiPct.LessThanOrEqual(decimal.NewFromFloat(MaxEMIPercentage)) &&
		dti.LessThanOrEqual(decimal.NewFromFloat(MaxDTIRatio))
	res.MaxAffordableLoan = maxAffordableLoan(in)
	if res.IsAffordable {
		res.Recommendation = RecommendApproved
	}

	return res
}

func maxAffordableLoan(in AffordabilityInput) float64 {
	budget := decimal.NewFromFloat(in.MonthlyIncome).
		Mul(decimal.NewFromFloat(MaxEMIPercentage)).
		Div(decimal.NewFromInt(100)).
		Sub(decimal.NewFromFloat(in.ExistingEMI))
	if !budget.IsPositive() {
		return 0
	}
	return PrincipalForEMI(budget.InexactFloat64(), in.AnnualRate, in.TenureMonths)
}
