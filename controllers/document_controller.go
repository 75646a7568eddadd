package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"loanflow/apperrors"
	"loanflow/models"
	"loanflow/services"
)

// multipart overhead allowed on top of the file itself
const formOverhead = 1 << 20

// DocumentController handles document uploads
type DocumentController struct {
	orch *services.Orchestrator
}

func NewDocumentController(orch *services.Orchestrator) *DocumentController {
	return &DocumentController{orch: orch}
}

// Upload accepts a multipart form with a "file" part, a doc_type and an
// optional loan_application_id
func (c *DocumentController) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(services.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperrors.ErrFileTooLarge)
			return
		}
		writeError(w, r, apperrors.Validation("Invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperrors.Validation("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxUploadSize+1))
	if err != nil {
		writeError(w, r, apperrors.Validation("Could not read file"))
		return
	}

	req := services.UploadRequest{
		DocType:  models.DocType(r.FormValue("doc_type")),
		FileName: header.Filename,
		Data:     data,
	}
	if req.DocType == "" {
		req.DocType = models.DocSalarySlip
	}
	if raw := r.FormValue("loan_application_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			writeError(w, r, apperrors.Validation("Invalid loan_application_id"))
			return
		}
		loanID := uint(id)
		req.LoanApplicationID = &loanID
	}

	resp, err := c.orch.UploadDocument(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (c *DocumentController) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	docs, err := c.orch.ListDocuments(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}
