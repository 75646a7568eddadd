package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"loanflow/apperrors"
	"loanflow/middleware"
	"loanflow/utils"

	"github.com/gorilla/mux"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.LogError("encode response: %v", err)
	}
}

// writeError answers with the domain error's code and message. Anything
// else is logged and reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if de, ok := apperrors.As(err); ok {
		writeJSON(w, apperrors.HTTPStatus(err), errorResponse{Error: de.Code, Message: de.Message})
		return
	}
	utils.GetMetrics().RecordError(err)
	utils.LogFailure("controllers", r.URL.Path, "request failed", map[string]any{"method": r.Method}, err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL", Message: "Internal server error"})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Validation("Invalid request body")
	}
	return nil
}

// applicantID returns the authenticated applicant or writes a 401
func applicantID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, _, err := middleware.GetUserFromContext(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTHORIZED", Message: "Unauthorized"})
		return 0, false
	}
	return id, true
}

func pathID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("Invalid " + name)
	}
	return uint(id), nil
}

var errMissingParam = errors.New("missing parameter")

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errMissingParam
	}
	return strconv.ParseFloat(raw, 64)
}
