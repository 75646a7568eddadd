// Package journey derives the customer's position in the lending pipeline.
// Nothing here is persisted; progress is recomputed from its inputs on
// every read.
package journey

import "loanflow/models"

// StageID identifies a pipeline stage.
type StageID string

const (
	StageRegistration     StageID = "registration"
	StageVerification     StageID = "verification"
	StageFinancialProfile StageID = "financial_profile"
	StageNeedDiscovery    StageID = "need_discovery"
	StageUnderwriting     StageID = "underwriting"
	StageApproved         StageID = "approved"
)

// Pipeline lists the stages in order.
var Pipeline = []struct {
	ID    StageID
	Label string
}{
	{StageRegistration, "Registration"},
	{StageVerification, "Verification"},
	{StageFinancialProfile, "Financial Profile"},
	{StageNeedDiscovery, "Need Discovery"},
	{StageUnderwriting, "Underwriting"},
	{StageApproved, "Approved"},
}

// Inputs are the facts the stage pipeline is derived from.
type Inputs struct {
	PhoneVerified bool
	EmailVerified bool
	MonthlyIncome float64
	// LatestLoan is the status of the most recent loan application, nil
	// when the applicant has not applied yet.
	LatestLoan *models.LoanStatus
}

// InputsOf collects the inputs from an applicant and their applications,
// which must be ordered most recent first.
func InputsOf(a *models.Applicant, loans []models.LoanApplication) Inputs {
	in := Inputs{
		PhoneVerified: a.Verification.PhoneVerified,
		EmailVerified: a.Verification.EmailVerified,
		MonthlyIncome: a.FinancialProfile.MonthlyIncome,
	}
	if len(loans) > 0 {
		status := loans[0].Status
		in.LatestLoan = &status
	}
	return in
}

// Stage is one entry of the derived pipeline.
type Stage struct {
	ID         StageID `json:"id"`
	Label      string  `json:"label"`
	Completed  bool    `json:"completed"`
	InProgress bool    `json:"inProgress"`
}

// Progress is the derived pipeline with counters.
type Progress struct {
	Stages         []Stage `json:"stages"`
	CompletedCount int     `json:"completedCount"`
	Total          int     `json:"total"`
	// Current is the in-progress stage, empty once every stage is complete.
	Current    StageID `json:"current,omitempty"`
	Percentage float64 `json:"percentage"`
}

// Derive computes the pipeline. The first stage whose condition does not
// hold is in progress; everything after it is pending even if its own
// condition happens to hold.
func Derive(in Inputs) Progress {
	done := map[StageID]bool{
		StageRegistration:     true,
		StageVerification:     in.PhoneVerified && in.EmailVerified,
		StageFinancialProfile: in.MonthlyIncome > 0,
		StageNeedDiscovery:    in.LatestLoan != nil,
		StageUnderwriting:     in.LatestLoan != nil && in.LatestLoan.Terminal(),
		StageApproved:         in.LatestLoan != nil && *in.LatestLoan == models.LoanStatusApproved,
	}

	p := Progress{Total: len(Pipeline), Stages: make([]Stage, 0, len(Pipeline))}
	blocked := false
	for _, st := range Pipeline {
		stage := Stage{ID: st.ID, Label: st.Label}
		switch {
		case blocked:
		case done[st.ID]:
			stage.Completed = true
			p.CompletedCount++
		default:
			stage.InProgress = true
			p.Current = st.ID
			blocked = true
		}
		p.Stages = append(p.Stages, stage)
	}

	p.Percentage = float64(p.CompletedCount) * 100 / float64(p.Total)
	return p
}
