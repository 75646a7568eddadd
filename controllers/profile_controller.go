package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"loanflow/services"
)

// ProfileController handles the financial profile, the journey tracker and
// the dashboard
type ProfileController struct {
	orch      *services.Orchestrator
	dashboard *services.DashboardService
}

func NewProfileController(orch *services.Orchestrator, dashboard *services.DashboardService) *ProfileController {
	return &ProfileController{orch: orch, dashboard: dashboard}
}

func (c *ProfileController) UpdateFinancial(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	var req services.FinancialProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	a, err := c.orch.UpdateFinancialProfile(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           "Financial profile updated successfully",
		"financial_profile": a.FinancialProfile,
	})
}

func (c *ProfileController) Journey(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	progress, err := c.orch.GetJourneyStage(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (c *ProfileController) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	stats, err := c.dashboard.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ExportLoans downloads the applicant's applications as an XLSX workbook
func (c *ProfileController) ExportLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := c.dashboard.ExportLoans(r.Context(), userID, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("loans_%d.xlsx", userID)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
