package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"loanflow/config"
	"loanflow/database"
	"loanflow/models"
	"loanflow/utils"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDelivery struct {
	mock.Mock
	mu    sync.Mutex
	codes map[models.Channel]string
}

func (m *mockDelivery) Deliver(ctx context.Context, ch models.Channel, destination, code string) error {
	m.mu.Lock()
	if m.codes == nil {
		m.codes = make(map[models.Channel]string)
	}
	m.codes[ch] = code
	m.mu.Unlock()
	return m.Called(ch, destination).Error(0)
}

func (m *mockDelivery) lastCode(ch models.Channel) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[ch]
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyDecision(ctx context.Context, a *models.Applicant, loan *models.LoanApplication, letter []byte) error {
	return m.Called(loan.Status, letter != nil).Error(0)
}

type mockRenderer struct{ mock.Mock }

func (m *mockRenderer) RenderSanctionLetter(ctx context.Context, l SanctionLetter) ([]byte, error) {
	args := m.Called(l.LoanID)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, evt DecisionEvent) error {
	return m.Called(evt.Status, evt.Reevaluation).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

type mockNarrator struct{ mock.Mock }

func (m *mockNarrator) Generate(ctx context.Context, req NarrationRequest) (*Narration, error) {
	args := m.Called(req.ExpectIntent)
	n, _ := args.Get(0).(*Narration)
	return n, args.Error(1)
}

// clock is a settable time source
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.SecretKey = "test-secret"
	cfg.JWT.ExpiresIn = 24
	cfg.OTP.Length = 6
	cfg.OTP.TTL = 5 * time.Minute
	cfg.OTP.HMACKey = "otp-key"
	cfg.OTP.SendLimit = 5
	cfg.OTP.SendWindow = 15 * time.Minute
	cfg.Bureau.Region = "IN"
	cfg.Collaborators.Timeout = time.Second
	return cfg
}

type applicantOpt func(*models.Applicant)

func verified(a *models.Applicant) {
	a.Verification.MarkVerified(models.ChannelPhone)
	a.Verification.MarkVerified(models.ChannelEmail)
}

func withScore(score int, limit float64) applicantOpt {
	return func(a *models.Applicant) {
		a.CreditScore = score
		a.PreApprovedLimit = limit
	}
}

func withIncome(income, emi float64) applicantOpt {
	return func(a *models.Applicant) {
		a.FinancialProfile.MonthlyIncome = income
		a.FinancialProfile.ExistingEMI = emi
		a.FinancialProfile.EmploymentType = models.EmploymentSalaried
	}
}

func seedApplicant(t *testing.T, repo database.Repository, email string, opts ...applicantOpt) *models.Applicant {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)

	a := &models.Applicant{
		FullName:         "Rajesh Kumar",
		Email:            email,
		PasswordHash:     hash,
		Phone:            "+919876543210",
		Address:          "12 MG Road",
		City:             "Mumbai",
		Age:              35,
		CreditScore:      780,
		PreApprovedLimit: 200000,
	}
	for _, opt := range opts {
		opt(a)
	}
	require.NoError(t, repo.CreateApplicant(context.Background(), a))
	return a
}
