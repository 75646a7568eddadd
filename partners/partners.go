// Package partners serves the mock partner systems the lender integrates
// with: the credit bureau, the CRM and the pre-approved offer mart.
package partners

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"loanflow/database"
	"loanflow/finance"
	"loanflow/middleware"
	"loanflow/models"
	"loanflow/services"
	"loanflow/utils"

	"github.com/gin-gonic/gin"
)

const maxOfferTenure = 60

type KYCView struct {
	UserID          uint   `json:"user_id"`
	KYCStatus       string `json:"kyc_status"`
	PhoneVerified   bool   `json:"phone_verified"`
	EmailVerified   bool   `json:"email_verified"`
	AddressVerified bool   `json:"address_verified"`
	FullName        string `json:"full_name"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
}

type Offer struct {
	Type      string  `json:"type"`
	MaxAmount float64 `json:"max_amount"`
	MinRate   float64 `json:"min_rate"`
	MaxTenure int     `json:"max_tenure"`
}

type Offers struct {
	UserID           uint    `json:"user_id"`
	PreApprovedLimit float64 `json:"pre_approved_limit"`
	Offers           []Offer `json:"offers"`
}

type handler struct {
	repo database.Repository
	now  func() time.Time
}

// Options tune the partner engine
type Options struct {
	RateLimit  int
	RateWindow time.Duration
}

// NewRouter builds the gin engine. Mount it under /partners.
func NewRouter(repo database.Repository, opts Options) *gin.Engine {
	h := &handler{repo: repo, now: time.Now}

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger(), middleware.CORS())
	if opts.RateLimit > 0 {
		r.Use(middleware.RateLimit(utils.NewRateLimiter(opts.RateLimit, opts.RateWindow), opts.RateLimit))
	}

	g := r.Group("/partners")
	g.GET("/credit-bureau/report", h.bureauReport)
	g.GET("/crm/verify/:id", h.crmVerify)
	g.GET("/offers/:id", h.offers)
	return r
}

// bureauReport answers with the XML credit report for ?ref=<email>.
// Registered applicants get their stored score and limit.
func (h *handler) bureauReport(c *gin.Context) {
	ref := strings.ToLower(strings.TrimSpace(c.Query("ref")))
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "message": "ref is required"})
		return
	}

	report := services.SyntheticReport(ref, h.now())
	a, err := h.repo.GetApplicantByEmail(c.Request.Context(), ref)
	switch {
	case err == nil:
		report.CreditScore = a.CreditScore
		report.PreApprovedLimit = a.PreApprovedLimit
	case !errors.Is(err, database.ErrNotFound):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "Internal server error"})
		return
	}

	data, err := services.EncodeCreditReport(report)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "Internal server error"})
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
}

func (h *handler) applicant(c *gin.Context) (*models.Applicant, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_FAILED", "message": "invalid id"})
		return nil, false
	}
	a, err := h.repo.GetApplicantByID(c.Request.Context(), uint(id))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "APPLICANT_NOT_FOUND", "message": "User not found"})
		return nil, false
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "Internal server error"})
		return nil, false
	}
	return a, true
}

func (h *handler) crmVerify(c *gin.Context) {
	a, ok := h.applicant(c)
	if !ok {
		return
	}

	status := "pending"
	if a.Verification.IdentityVerified() {
		status = "verified"
	}
	c.JSON(http.StatusOK, KYCView{
		UserID:          a.ID,
		KYCStatus:       status,
		PhoneVerified:   a.Verification.PhoneVerified,
		EmailVerified:   a.Verification.EmailVerified,
		AddressVerified: a.Address != "",
		FullName:        a.FullName,
		Phone:           a.Phone,
		Address:         a.Address,
		City:            a.City,
	})
}

func (h *handler) offers(c *gin.Context) {
	a, ok := h.applicant(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, Offers{
		UserID:           a.ID,
		PreApprovedLimit: a.PreApprovedLimit,
		Offers: []Offer{{
			Type:      "personal_loan",
			MaxAmount: a.PreApprovedLimit,
			MinRate:   finance.InterestRate(a.CreditScore),
			MaxTenure: maxOfferTenure,
		}},
	})
}
