package finance

// Rate bands by credit score, highest band first.
var rateBands = []struct {
	minScore int
	rate     float64
}{
	{800, 10.5},
	{750, 11.5},
	{700, 12.5},
}

// BaseRate applies to every score below the lowest band.
const BaseRate = 14.0

// InterestRate returns the annual interest rate (percent) offered for a
// credit score.
func InterestRate(creditScore int) float64 {
	for _, band := range rateBands {
		if creditScore >= band.minScore {
			return band.rate
		}
	}
	return BaseRate
}
