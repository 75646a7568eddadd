package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"loanflow/apperrors"
	"loanflow/database"
	"loanflow/models"
	"loanflow/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newVerification(t *testing.T) (*VerificationService, *database.Memory, *mockDelivery, *clock) {
	repo := database.NewMemory()
	delivery := &mockDelivery{}
	clk := newClock()
	svc := NewVerificationService(repo, delivery, utils.NewKeyedMutex(), testConfig()).WithClock(clk.Now)
	return svc, repo, delivery, clk
}

func TestVerification_BothChannelsSetKYC(t *testing.T) {
	ctx := context.Background()
	svc, repo, delivery, _ := newVerification(t)
	a := seedApplicant(t, repo, "kyc@example.com")
	delivery.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	for _, ch := range []models.Channel{models.ChannelPhone, models.ChannelEmail} {
		res, err := svc.Issue(ctx, a.ID, ch)
		require.NoError(t, err)
		assert.NotEmpty(t, res.ChallengeID)
		assert.Empty(t, res.Code, "code is only exposed in demo mode")

		states, err := svc.ChannelStates(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ChannelOTPSent, states[ch])

		out, err := svc.Verify(ctx, a.ID, ch, delivery.lastCode(ch))
		require.NoError(t, err)
		assert.True(t, out.Verified)
		assert.Equal(t, ch == models.ChannelEmail, out.KYCVerified)
	}

	got, err := repo.GetApplicantByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Verification.PhoneVerified)
	assert.True(t, got.Verification.EmailVerified)
	assert.True(t, got.Verification.KYCVerified)

	delivery.AssertCalled(t, "Deliver", models.ChannelPhone, "+919876543210")
	delivery.AssertCalled(t, "Deliver", models.ChannelEmail, "kyc@example.com")

	_, err = svc.Issue(ctx, a.ID, models.ChannelPhone)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyVerified)
	_, err = svc.Verify(ctx, a.ID, models.ChannelEmail, "000000")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyVerified)
}

func TestVerification_ResendInvalidatesOldCode(t *testing.T) {
	ctx := context.Background()
	svc, repo, delivery, clk := newVerification(t)
	a := seedApplicant(t, repo, "resend@example.com")
	delivery.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Issue(ctx, a.ID, models.ChannelEmail)
	require.NoError(t, err)
	oldCode := delivery.lastCode(models.ChannelEmail)

	clk.Advance(30 * time.Second)
	_, err = svc.Issue(ctx, a.ID, models.ChannelEmail)
	require.NoError(t, err)
	newCode := delivery.lastCode(models.ChannelEmail)

	if oldCode != newCode {
		_, err = svc.Verify(ctx, a.ID, models.ChannelEmail, oldCode)
		assert.ErrorIs(t, err, apperrors.ErrCodeMismatch)
	}

	res, err := svc.Verify(ctx, a.ID, models.ChannelEmail, newCode)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestVerification_ExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	svc, repo, delivery, clk := newVerification(t)
	a := seedApplicant(t, repo, "expired@example.com")
	delivery.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Issue(ctx, a.ID, models.ChannelPhone)
	require.NoError(t, err)
	code := delivery.lastCode(models.ChannelPhone)

	clk.Advance(5*time.Minute + time.Second)
	_, err = svc.Verify(ctx, a.ID, models.ChannelPhone, code)
	assert.ErrorIs(t, err, apperrors.ErrOTPExpired)
	assert.Equal(t, 410, apperrors.HTTPStatus(err))

	_, err = svc.Verify(ctx, a.ID, models.ChannelPhone, code)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveChallenge)

	states, err := svc.ChannelStates(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelUnverified, states[models.ChannelPhone])
}

func TestVerification_Errors(t *testing.T) {
	ctx := context.Background()
	svc, repo, delivery, _ := newVerification(t)
	a := seedApplicant(t, repo, "errors@example.com")
	delivery.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Verify(ctx, a.ID, models.ChannelEmail, "123456")
	assert.ErrorIs(t, err, apperrors.ErrNoActiveChallenge)

	_, err = svc.Issue(ctx, a.ID, models.Channel("fax"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidChannel)

	_, err = svc.Issue(ctx, 999, models.ChannelEmail)
	assert.ErrorIs(t, err, apperrors.ErrApplicantNotFound)

	_, err = svc.Issue(ctx, a.ID, models.ChannelEmail)
	require.NoError(t, err)
	wrong := "000000"
	if delivery.lastCode(models.ChannelEmail) == wrong {
		wrong = "111111"
	}
	_, err = svc.Verify(ctx, a.ID, models.ChannelEmail, wrong)
	assert.ErrorIs(t, err, apperrors.ErrCodeMismatch)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
}

func TestVerification_DeliveryFailureKeepsChallenge(t *testing.T) {
	ctx := context.Background()
	svc, repo, delivery, _ := newVerification(t)
	a := seedApplicant(t, repo, "smtpdown@example.com")
	down := apperrors.ErrCollaboratorUnavailable.Wrap(errors.New("smtp: connection refused"))
	delivery.On("Deliver", models.ChannelEmail, mock.Anything).Return(down)

	_, err := svc.Issue(ctx, a.ID, models.ChannelEmail)
	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)

	_, err = repo.GetActiveChallenge(ctx, a.ID, models.ChannelEmail)
	assert.NoError(t, err)
}

func TestVerification_Throttle(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemory()
	delivery := &mockDelivery{}
	delivery.On("Deliver", mock.Anything, mock.Anything).Return(nil)
	cfg := testConfig()
	cfg.OTP.SendLimit = 2
	cfg.OTP.ExposeCode = true
	svc := NewVerificationService(repo, delivery, utils.NewKeyedMutex(), cfg)
	a := seedApplicant(t, repo, "throttle@example.com")

	res, err := svc.Issue(ctx, a.ID, models.ChannelPhone)
	require.NoError(t, err)
	assert.Len(t, res.Code, 6)

	_, err = svc.Issue(ctx, a.ID, models.ChannelPhone)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, a.ID, models.ChannelPhone)
	assert.ErrorIs(t, err, apperrors.ErrOTPThrottled)

	_, err = svc.Issue(ctx, a.ID, models.ChannelEmail)
	assert.NoError(t, err, "throttle is per channel")
}

func TestOTPSweeper_ExpiresLapsedChallenges(t *testing.T) {
	ctx := context.Background()
	svc, repo, delivery, clk := newVerification(t)
	a := seedApplicant(t, repo, "sweep@example.com")
	delivery.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Issue(ctx, a.ID, models.ChannelEmail)
	require.NoError(t, err)

	sweeper := NewOTPSweeper(svc, time.Minute)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(10 * time.Minute)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = svc.Verify(ctx, a.ID, models.ChannelEmail, delivery.lastCode(models.ChannelEmail))
	assert.ErrorIs(t, err, apperrors.ErrNoActiveChallenge)
}
