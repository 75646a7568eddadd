package services

import (
	"context"
	"errors"
	"testing"

	"loanflow/apperrors"
	"loanflow/database"
	"loanflow/journey"
	"loanflow/models"
	"loanflow/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	orch      *Orchestrator
	repo      *database.Memory
	delivery  *mockDelivery
	notifier  *mockNotifier
	renderer  *mockRenderer
	publisher *mockPublisher
}

func newOrchestrator(t *testing.T) *orchestratorFixture {
	t.Helper()
	repo := database.NewMemory()
	locker := utils.NewKeyedMutex()
	cfg := testConfig()
	store, err := NewLocalDocumentStore(t.TempDir())
	require.NoError(t, err)

	f := &orchestratorFixture{
		repo:      repo,
		delivery:  &mockDelivery{},
		notifier:  &mockNotifier{},
		renderer:  &mockRenderer{},
		publisher: &mockPublisher{},
	}
	loans := NewLoanService(repo, locker)
	f.orch = NewOrchestrator(Deps{
		Users:        NewUserService(repo, NewBureauService("", cfg.Collaborators.Timeout), locker, cfg),
		Verification: NewVerificationService(repo, f.delivery, locker, cfg),
		Loans:        loans,
		Documents:    NewDocumentService(repo, loans, store),
		Chat:         NewChatService(repo, TemplateNarrator{}, "Acme Finance"),
		Renderer:     f.renderer,
		Notifier:     f.notifier,
		Events:       f.publisher,
	})
	return f
}

func TestOrchestrator_ApplyApprovedNotifiesWithLetter(t *testing.T) {
	ctx := context.Background()
	f := newOrchestrator(t)
	a := seedApplicant(t, f.repo, "approved@example.com", withScore(810, 300000), verified)

	f.renderer.On("RenderSanctionLetter", mock.Anything).Return([]byte("%PDF"), nil)
	f.notifier.On("NotifyDecision", models.LoanStatusApproved, true).Return(nil)
	f.publisher.On("Publish", models.LoanStatusApproved, false).Return(nil)

	resp, err := f.orch.ApplyForLoan(ctx, a.ID, ApplyLoanRequest{Amount: 100000, TenureMonths: 36, Purpose: "travel"})
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, resp.Application.Status)
	assert.Equal(t, 10.5, resp.Application.InterestRate)
	assert.Empty(t, resp.NotificationError)

	f.renderer.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestOrchestrator_NotificationFailureKeepsDecision(t *testing.T) {
	ctx := context.Background()
	f := newOrchestrator(t)
	a := seedApplicant(t, f.repo, "smtp@example.com", withScore(650, 300000), verified)

	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.notifier.On("NotifyDecision", models.LoanStatusRejected, false).
		Return(apperrors.ErrCollaboratorUnavailable.Wrap(errors.New("smtp timeout")))

	resp, err := f.orch.ApplyForLoan(ctx, a.ID, ApplyLoanRequest{Amount: 50000, TenureMonths: 12})
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusRejected, resp.Application.Status)
	assert.Contains(t, resp.NotificationError, "smtp timeout")

	loans, err := f.orch.ListLoans(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, models.LoanStatusRejected, loans[0].Status)
	f.renderer.AssertNotCalled(t, "RenderSanctionLetter", mock.Anything)
}

func TestOrchestrator_UploadReevaluates(t *testing.T) {
	ctx := context.Background()
	f := newOrchestrator(t)
	a := seedApplicant(t, f.repo, "upload@example.com", withScore(760, 100000), verified)

	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("NotifyDecision", mock.Anything, mock.Anything).Return(nil)
	f.renderer.On("RenderSanctionLetter", mock.Anything).Return([]byte("%PDF"), nil)

	applied, err := f.orch.ApplyForLoan(ctx, a.ID, ApplyLoanRequest{Amount: 150000, TenureMonths: 24})
	require.NoError(t, err)
	require.Equal(t, models.LoanStatusRequiresDocuments, applied.Application.Status)
	loanID := applied.Application.ID

	resp, err := f.orch.UploadDocument(ctx, a.ID, UploadRequest{
		DocType: models.DocPAN, LoanApplicationID: &loanID, FileName: "pan.pdf", Data: []byte("%PDF pan"),
	})
	require.NoError(t, err)
	assert.False(t, resp.LoanStatusUpdated)
	assert.Nil(t, resp.NewLoanStatus)

	resp, err = f.orch.UploadDocument(ctx, a.ID, UploadRequest{
		DocType: models.DocBankStatement, LoanApplicationID: &loanID, FileName: "stmt.pdf", Data: []byte("%PDF stmt"),
	})
	require.NoError(t, err)
	assert.True(t, resp.LoanStatusUpdated)
	require.NotNil(t, resp.NewLoanStatus)
	assert.Equal(t, models.LoanStatusApproved, *resp.NewLoanStatus)
	assert.NotEmpty(t, resp.DocumentID)

	f.publisher.AssertCalled(t, "Publish", models.LoanStatusApproved, true)
	f.notifier.AssertCalled(t, "NotifyDecision", models.LoanStatusApproved, true)

	pdf, name, err := f.orch.DownloadSanctionLetter(ctx, a.ID, loanID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), pdf)
	assert.Contains(t, name, "sanction_letter_")
}

func TestOrchestrator_DownloadRequiresApproval(t *testing.T) {
	ctx := context.Background()
	f := newOrchestrator(t)
	a := seedApplicant(t, f.repo, "pending@example.com", withScore(760, 100000), verified)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("NotifyDecision", mock.Anything, mock.Anything).Return(nil)

	applied, err := f.orch.ApplyForLoan(ctx, a.ID, ApplyLoanRequest{Amount: 150000, TenureMonths: 24})
	require.NoError(t, err)

	_, _, err = f.orch.DownloadSanctionLetter(ctx, a.ID, applied.Application.ID)
	assert.ErrorIs(t, err, apperrors.ErrLoanNotApproved)

	_, _, err = f.orch.DownloadSanctionLetter(ctx, a.ID, 9999)
	assert.ErrorIs(t, err, apperrors.ErrUnknownLoan)
}

func TestOrchestrator_CheckAffordability(t *testing.T) {
	ctx := context.Background()
	f := newOrchestrator(t)

	noIncome := seedApplicant(t, f.repo, "noincome@example.com")
	_, err := f.orch.CheckAffordability(ctx, noIncome.ID, 100000, 36)
	assert.ErrorIs(t, err, apperrors.ErrIncomeRequired)

	a := seedApplicant(t, f.repo, "afford@example.com", withScore(760, 200000), withIncome(50000, 5000))
	res, err := f.orch.CheckAffordability(ctx, a.ID, 100000, 36)
	require.NoError(t, err)
	assert.True(t, res.IsAffordable)
	assert.Equal(t, 40.0, res.MaxEMIPercentage)
	assert.Equal(t, 60.0, res.MaxDTIRatio)
	assert.Greater(t, res.MaxAffordableLoan, 100000.0)

	_, err = f.orch.CheckAffordability(ctx, a.ID, -1, 36)
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
}

func TestOrchestrator_JourneyFollowsProfile(t *testing.T) {
	ctx := context.Background()
	f := newOrchestrator(t)
	f.delivery.On("Deliver", mock.Anything, mock.Anything).Return(nil)
	a := seedApplicant(t, f.repo, "journey@example.com", withScore(800, 200000))

	p, err := f.orch.GetJourneyStage(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, journey.StageVerification, p.Current)
	assert.Equal(t, 1, p.CompletedCount)

	for _, ch := range []models.Channel{models.ChannelPhone, models.ChannelEmail} {
		_, err := f.orch.IssueOTP(ctx, a.ID, ch)
		require.NoError(t, err)
		_, err = f.orch.VerifyOTP(ctx, a.ID, ch, f.delivery.lastCode(ch))
		require.NoError(t, err)
	}
	states, err := f.orch.VerificationStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelVerified, states[models.ChannelEmail])

	_, err = f.orch.UpdateFinancialProfile(ctx, a.ID, FinancialProfileRequest{
		MonthlyIncome: 75000, ExistingEMI: 0, EmploymentType: models.EmploymentSalaried,
	})
	require.NoError(t, err)

	p, err = f.orch.GetJourneyStage(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, journey.StageNeedDiscovery, p.Current)
	assert.Equal(t, 3, p.CompletedCount)
	assert.Equal(t, 6, p.Total)
}
