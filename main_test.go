package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loanflow/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Lender.Name = "Test Finance Limited"
	cfg.DB.Driver = "memory"
	cfg.JWT.SecretKey = "test-secret"
	cfg.JWT.ExpiresIn = 1
	cfg.OTP.Length = 6
	cfg.OTP.TTL = 5 * time.Minute
	cfg.OTP.HMACKey = "otp-key"
	cfg.OTP.ExposeCode = true
	cfg.OTP.SendLimit = 5
	cfg.OTP.SendWindow = time.Minute
	cfg.Storage.Backend = "local"
	cfg.Storage.LocalDir = t.TempDir()
	cfg.Events.Backend = "log"
	cfg.Bureau.Region = "IN"
	cfg.Collaborators.Timeout = 2 * time.Second
	return cfg
}

type testServer struct {
	t      *testing.T
	app    *application
	router http.Handler
	token  string
}

func newTestServer(t *testing.T) *testServer {
	app, err := buildApplication(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return &testServer{t: t, app: app, router: newRouter(app)}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// register signs up and makes the applicant eligible for a 300000 loan
func (s *testServer) register(email string) uint {
	rr := s.do(http.MethodPost, "/api/auth/register", map[string]any{
		"full_name": "Arjun Mehta",
		"email":     email,
		"password":  "password123",
		"phone":     "9876543216",
		"address":   "22 Residency Road",
		"city":      "Bengaluru",
	})
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())

	resp := decode[struct {
		Token struct {
			Token  string `json:"token"`
			UserID uint   `json:"userId"`
		} `json:"token"`
	}](s.t, rr)
	s.token = resp.Token.Token

	ctx := context.Background()
	a, err := s.app.repo.GetApplicantByID(ctx, resp.Token.UserID)
	require.NoError(s.t, err)
	a.CreditScore = 805
	a.PreApprovedLimit = 300000
	require.NoError(s.t, s.app.repo.UpdateApplicant(ctx, a))
	return a.ID
}

func (s *testServer) verifyChannel(channel string) map[string]any {
	rr := s.do(http.MethodPost, "/api/otp/send", map[string]string{"type": channel})
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	sent := decode[map[string]any](s.t, rr)
	code, ok := sent["code"].(string)
	require.True(s.t, ok, "demo mode returns the code")

	rr = s.do(http.MethodPost, "/api/otp/verify", map[string]string{"type": channel, "otp": code})
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[map[string]any](s.t, rr)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	s.token = "not-a-jwt"
	rr = s.do(http.MethodGet, "/api/loans", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.register("arjun@example.com")

	rr := s.do(http.MethodPost, "/api/auth/register", map[string]any{
		"full_name": "Arjun Mehta", "email": "arjun@example.com", "password": "password123", "phone": "9876543216",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "EMAIL_TAKEN", decode[map[string]string](t, rr)["error"])

	rr = s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "arjun@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "arjun@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[map[string]any](t, rr)
	assert.Equal(t, "+919876543216", me["phone"])
	assert.NotContains(t, me, "password_hash")
}

func TestLoanJourney(t *testing.T) {
	s := newTestServer(t)
	s.register("journey@example.com")

	rr := s.do(http.MethodPost, "/api/loans/apply", map[string]any{"amount": 0, "tenure_months": 12})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_AMOUNT", decode[map[string]string](t, rr)["error"])

	rr = s.do(http.MethodGet, "/api/profile/affordability?amount=100000&tenure=36", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	s.verifyChannel("phone")
	verified := s.verifyChannel("email")
	assert.Equal(t, true, verified["kycVerified"])

	rr = s.do(http.MethodPost, "/api/otp/send", map[string]string{"type": "email"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodPost, "/api/profile/financial", map[string]any{
		"monthly_income": 90000, "existing_emi": 5000, "employment_type": "salaried",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(http.MethodGet, "/api/profile/affordability?amount=100000&tenure=36", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(http.MethodPost, "/api/loans/apply", map[string]any{"amount": 200000, "tenure_months": 24, "purpose": "wedding"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	applied := decode[struct {
		Application struct {
			ID     uint    `json:"id"`
			Status string  `json:"status"`
			EMI    float64 `json:"emi"`
		} `json:"application"`
		NotificationError string `json:"notificationError"`
	}](t, rr)
	assert.Equal(t, "approved", applied.Application.Status)
	assert.Positive(t, applied.Application.EMI)
	assert.Empty(t, applied.NotificationError)

	rr = s.do(http.MethodGet, fmt.Sprintf("/api/sanction/%d/download", applied.Application.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")))

	rr = s.do(http.MethodGet, "/api/loans/999", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodGet, "/api/journey", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/api/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[map[string]any](t, rr)
	assert.EqualValues(t, 1, stats["active_loans"])
	assert.EqualValues(t, 100000, stats["available_credit"])

	rr = s.do(http.MethodGet, "/api/dashboard/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "loans_")
}

func TestDocumentUpload(t *testing.T) {
	s := newTestServer(t)
	s.register("docs@example.com")

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("doc_type", "salary_slip"))
	part, err := w.CreateFormFile("file", "payslip.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 payslip"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotEmpty(t, decode[map[string]any](t, rr)["documentId"])

	rr = s.do(http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]map[string]any](t, rr), 1)

	rr = s.do(http.MethodGet, "/api/dashboard/stats", nil)
	profile := decode[map[string]any](t, rr)["financial_profile"].(map[string]any)
	assert.Equal(t, true, profile["income_verified"])
}

func TestChat(t *testing.T) {
	s := newTestServer(t)
	s.register("chat@example.com")

	rr := s.do(http.MethodPost, "/api/chat/start", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	started := decode[map[string]string](t, rr)
	assert.Contains(t, started["message"], "Arjun Mehta")

	rr = s.do(http.MethodPost, "/api/chat/"+started["session_id"]+"/message", map[string]string{"message": "I want a loan for my sister's wedding"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "need_discovery", decode[map[string]any](t, rr)["conversation_stage"])

	rr = s.do(http.MethodGet, "/api/chat/"+started["session_id"]+"/history", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/api/chat/unknown-session/history", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsAndPartners(t *testing.T) {
	s := newTestServer(t)
	id := s.register("partner@example.com")
	s.token = ""

	rr := s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, fmt.Sprintf("/partners/offers/%d", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 300000, decode[map[string]any](t, rr)["pre_approved_limit"])

	rr = s.do(http.MethodGet, "/partners/credit-bureau/report?ref=partner@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<Score")
}
