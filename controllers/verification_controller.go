package controllers

import (
	"fmt"
	"net/http"

	"loanflow/models"
	"loanflow/services"
)

type otpRequest struct {
	Type models.Channel `json:"type"`
}

type otpVerifyRequest struct {
	Type models.Channel `json:"type"`
	OTP  string         `json:"otp"`
}

type otpSentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*services.IssueResult
}

type otpVerifiedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*services.VerifyResult
}

// VerificationController handles OTP issue and verification
type VerificationController struct {
	orch *services.Orchestrator
}

func NewVerificationController(orch *services.Orchestrator) *VerificationController {
	return &VerificationController{orch: orch}
}

// Send issues a new OTP for the channel. Resend maps here as well: every
// issue supersedes the previous code.
func (c *VerificationController) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := c.orch.IssueOTP(r.Context(), userID, req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, otpSentResponse{
		Success:     true,
		Message:     fmt.Sprintf("OTP sent to your %s", req.Type),
		IssueResult: res,
	})
}

func (c *VerificationController) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	var req otpVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := c.orch.VerifyOTP(r.Context(), userID, req.Type, req.OTP)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, otpVerifiedResponse{
		Success:      true,
		Message:      fmt.Sprintf("%s verified successfully", req.Type),
		VerifyResult: res,
	})
}

// Status reports unverified, otp_sent or verified per channel
func (c *VerificationController) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	states, err := c.orch.VerificationStatus(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}
