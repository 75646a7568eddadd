package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"loanflow/apperrors"
	"loanflow/services"
)

// LoanController handles loan applications and sanction letters
type LoanController struct {
	orch *services.Orchestrator
}

func NewLoanController(orch *services.Orchestrator) *LoanController {
	return &LoanController{orch: orch}
}

// Apply creates an application and decides it in the same request
func (c *LoanController) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	var req services.ApplyLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := c.orch.ApplyForLoan(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (c *LoanController) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	loans, err := c.orch.ListLoans(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (c *LoanController) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	loan, err := c.orch.GetLoan(r.Context(), userID, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Affordability quotes a prospective loan against the financial profile.
// Query: amount, tenure (months).
func (c *LoanController) Affordability(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	amount, err := queryFloat(r, "amount")
	if err != nil {
		writeError(w, r, apperrors.Validation("amount must be a number"))
		return
	}
	tenure, err := strconv.Atoi(r.URL.Query().Get("tenure"))
	if err != nil {
		writeError(w, r, apperrors.Validation("tenure must be a whole number of months"))
		return
	}

	res, err := c.orch.CheckAffordability(r.Context(), userID, amount, tenure)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SanctionLetter streams the PDF sanction letter of an approved loan
func (c *LoanController) SanctionLetter(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	pdf, filename, err := c.orch.DownloadSanctionLetter(r.Context(), userID, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
