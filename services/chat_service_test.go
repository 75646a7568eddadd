package services

import (
	"context"
	"errors"
	"testing"

	"loanflow/apperrors"
	"loanflow/database"
	"loanflow/journey"
	"loanflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChatService_StartGreeting(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemory()
	svc := NewChatService(repo, TemplateNarrator{}, "Acme Finance")

	unverified := seedApplicant(t, repo, "new@example.com")
	res, err := svc.Start(ctx, unverified.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Hello Rajesh Kumar!")
	assert.Contains(t, res.Message, "Verify your phone and email")

	done := seedApplicant(t, repo, "done@example.com", verified)
	res, err = svc.Start(ctx, done.ID)
	require.NoError(t, err)
	assert.NotContains(t, res.Message, "Verify your phone and email")

	history, err := svc.History(ctx, done.ID, res.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleAssistant, history[0].Role)
}

func TestChatService_NeedDiscovery(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemory()
	svc := NewChatService(repo, TemplateNarrator{}, "Acme Finance")
	a := seedApplicant(t, repo, "chat@example.com", verified)

	started, err := svc.Start(ctx, a.ID)
	require.NoError(t, err)

	reply, err := svc.Send(ctx, a.ID, started.SessionID, "Hi there")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationInitial, reply.Stage)
	assert.Nil(t, reply.Intent)
	assert.Contains(t, reply.Message, "monthly income", "no income declared yet")

	reply, err = svc.Send(ctx, a.ID, started.SessionID, "I want to BORROW for my sister's wedding")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationNeedDiscovery, reply.Stage)
	require.NotNil(t, reply.Intent)
	assert.Equal(t, "general", reply.Intent.Purpose)
	assert.Equal(t, "master", reply.Agent)

	session, err := repo.GetChatSession(ctx, a.ID, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "general", session.DiscoveredIntent)

	reply, err = svc.Send(ctx, a.ID, started.SessionID, "I need the money soon")
	require.NoError(t, err)
	assert.Nil(t, reply.Intent, "discovery runs once per session")

	history, err := svc.History(ctx, a.ID, started.SessionID)
	require.NoError(t, err)
	assert.Len(t, history, 7)
	assert.NotEmpty(t, history[4].Metadata)
}

func TestChatService_ReplyFollowsJourneyStage(t *testing.T) {
	tests := []struct {
		name      string
		opts      []applicantOpt
		loan      models.LoanStatus
		wantStage journey.StageID
		want      string
	}{
		{
			name:      "unverified",
			wantStage: journey.StageVerification,
			want:      "verify your phone number and email",
		},
		{
			name:      "no income declared",
			opts:      []applicantOpt{verified},
			wantStage: journey.StageFinancialProfile,
			want:      "monthly income",
		},
		{
			name:      "ready to apply",
			opts:      []applicantOpt{verified, withIncome(90000, 0)},
			wantStage: journey.StageNeedDiscovery,
			want:      "pre-approved for up to INR 2,00,000.00",
		},
		{
			name:      "waiting on documents",
			opts:      []applicantOpt{verified, withIncome(90000, 0)},
			loan:      models.LoanStatusRequiresDocuments,
			wantStage: journey.StageUnderwriting,
			want:      "upload a recent salary slip",
		},
		{
			name:      "last application rejected",
			opts:      []applicantOpt{verified, withIncome(90000, 0)},
			loan:      models.LoanStatusRejected,
			wantStage: journey.StageApproved,
			want:      "apply again",
		},
		{
			name:      "approved",
			opts:      []applicantOpt{verified, withIncome(90000, 0)},
			loan:      models.LoanStatusApproved,
			wantStage: "",
			want:      "sanction letter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := database.NewMemory()
			svc := NewChatService(repo, TemplateNarrator{}, "Acme Finance")
			a := seedApplicant(t, repo, "stage@example.com", tt.opts...)
			if tt.loan != "" {
				require.NoError(t, repo.CreateLoan(ctx, &models.LoanApplication{
					ApplicantID: a.ID, Amount: 150000, TenureMonths: 24, Status: tt.loan,
				}))
			}

			started, err := svc.Start(ctx, a.ID)
			require.NoError(t, err)
			reply, err := svc.Send(ctx, a.ID, started.SessionID, "what's next?")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStage, reply.JourneyStage)
			assert.Contains(t, reply.Message, tt.want)
		})
	}
}

func TestChatService_NarrationContextCarriesJourney(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemory()
	narrator := &capturingNarrator{}
	svc := NewChatService(repo, narrator, "Acme Finance")
	a := seedApplicant(t, repo, "context@example.com", verified)

	started, err := svc.Start(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.Send(ctx, a.ID, started.SessionID, "hello")
	require.NoError(t, err)

	assert.Equal(t, "financial_profile", narrator.req.Context["journey_stage"])
	assert.Equal(t, []journey.StageID{journey.StageRegistration, journey.StageVerification},
		narrator.req.Context["completed_stages"])
}

func TestChatService_NarratorFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemory()
	narrator := &mockNarrator{}
	narrator.On("Generate", mock.Anything).Return(nil, apperrors.ErrCollaboratorUnavailable.Wrap(errors.New("quota")))
	svc := NewChatService(repo, narrator, "Acme Finance")
	a := seedApplicant(t, repo, "fallback@example.com", verified, withIncome(90000, 0))

	started, err := svc.Start(ctx, a.ID)
	require.NoError(t, err)

	reply, err := svc.Send(ctx, a.ID, started.SessionID, "what can I get?")
	require.NoError(t, err)
	assert.Contains(t, reply.Message, "INR 2,00,000.00")
	narrator.AssertExpectations(t)
}

func TestChatService_Errors(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemory()
	svc := NewChatService(repo, TemplateNarrator{}, "Acme Finance")
	a := seedApplicant(t, repo, "owner@example.com")
	other := seedApplicant(t, repo, "intruder@example.com")

	started, err := svc.Start(ctx, a.ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, other.ID, started.SessionID, "hello")
	assert.ErrorIs(t, err, apperrors.ErrUnknownSession)

	_, err = svc.Send(ctx, a.ID, started.SessionID, "   ")
	assert.Error(t, err)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	_, err = svc.History(ctx, a.ID, "missing")
	assert.ErrorIs(t, err, apperrors.ErrUnknownSession)
}

type capturingNarrator struct{ req NarrationRequest }

func (c *capturingNarrator) Generate(ctx context.Context, req NarrationRequest) (*Narration, error) {
	c.req = req
	return &Narration{Text: "ok"}, nil
}
