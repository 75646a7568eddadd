package controllers

import (
	"net/http"

	"loanflow/utils"
)

// Metrics serves a snapshot of the in-process counters
func Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
}
