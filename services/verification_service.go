package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loanflow/apperrors"
	"loanflow/config"
	"loanflow/database"
	"loanflow/models"
	"loanflow/utils"
)

func channelLockKey(applicantID uint, ch models.Channel) string {
	return fmt.Sprintf("otp:%d:%s", applicantID, ch)
}

func applicantLockKey(applicantID uint) string {
	return fmt.Sprintf("applicant:%d", applicantID)
}

func loanLockKey(loanID uint) string {
	return fmt.Sprintf("loan:%d", loanID)
}

// IssueResult describes a freshly issued challenge. Code is only set in
// demo mode.
type IssueResult struct {
	ChallengeID string    `json:"challengeId"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Code        string    `json:"code,omitempty"`
}

// VerifyResult is returned after a successful verification
type VerifyResult struct {
	Verified    bool `json:"verified"`
	KYCVerified bool `json:"kycVerified"`
}

// VerificationService tracks the OTP lifecycle of each contact channel.
// Issue and verify for the same applicant and channel never interleave.
type VerificationService struct {
	repo     database.Repository
	delivery OTPDelivery
	locker   utils.Locker
	limiter  *utils.RateLimiter
	hmacKey  []byte
	length   int
	ttl      time.Duration
	expose   bool
	now      func() time.Time
}

// NewVerificationService creates a VerificationService
func NewVerificationService(repo database.Repository, delivery OTPDelivery, locker utils.Locker, cfg *config.Config) *VerificationService {
	return &VerificationService{
		repo:     repo,
		delivery: delivery,
		locker:   locker,
		limiter:  utils.NewRateLimiter(cfg.OTP.SendLimit, cfg.OTP.SendWindow),
		hmacKey:  []byte(cfg.OTP.HMACKey),
		length:   cfg.OTP.Length,
		ttl:      cfg.OTP.TTL,
		expose:   cfg.OTP.ExposeCode,
		now:      time.Now,
	}
}

// WithClock replaces the time source
func (s *VerificationService) WithClock(now func() time.Time) *VerificationService {
	s.now = now
	s.limiter.WithClock(now)
	return s
}

func (s *VerificationService) lockChannel(ctx context.Context, applicantID uint, ch models.Channel) (func(), error) {
	if !ch.Valid() {
		return nil, apperrors.ErrInvalidChannel
	}
	unlock, err := s.locker.Lock(ctx, channelLockKey(applicantID, ch))
	if err != nil {
		return nil, fmt.Errorf("lock otp channel: %w", err)
	}
	return unlock, nil
}

func (s *VerificationService) applicant(ctx context.Context, repo database.Repository, id uint) (*models.Applicant, error) {
	a, err := repo.GetApplicantByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.ErrApplicantNotFound
	}
	return a, err
}

// Issue creates a new challenge for the channel and delivers its code. Any
// pending challenge is superseded. The challenge is committed before
// delivery, so a delivery failure leaves it valid for a later resend.
func (s *VerificationService) Issue(ctx context.Context, applicantID uint, ch models.Channel) (*IssueResult, error) {
	unlock, err := s.lockChannel(ctx, applicantID, ch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := s.applicant(ctx, s.repo, applicantID)
	if err != nil {
		return nil, err
	}
	if a.Verification.IsVerified(ch) {
		return nil, apperrors.ErrAlreadyVerified
	}
	if !s.limiter.Allow(channelLockKey(applicantID, ch)) {
		return nil, apperrors.ErrOTPThrottled
	}

	code, err := utils.GenerateNumericCode(s.length)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	now := s.now()
	challenge := &models.OTPChallenge{
		ApplicantID: applicantID,
		Channel:     ch,
		CodeHash:    utils.GenerateHMAC(code, s.hmacKey),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		if err := tx.SupersedeChallenges(ctx, applicantID, ch, now); err != nil {
			return err
		}
		return tx.CreateChallenge(ctx, challenge)
	})
	if err != nil {
		return nil, fmt.Errorf("store otp challenge: %w", err)
	}
	utils.GetMetrics().RecordOTPIssued()

	destination := a.Email
	if ch == models.ChannelPhone {
		destination = a.Phone
	}
	if err := s.delivery.Deliver(ctx, ch, destination, code); err != nil {
		return nil, err
	}

	res := &IssueResult{ChallengeID: challenge.ID, ExpiresAt: challenge.ExpiresAt}
	if s.expose {
		res.Code = code
	}
	return res, nil
}

// Verify checks code against the pending challenge of the channel. On
// success the challenge is consumed and the channel flag is set.
func (s *VerificationService) Verify(ctx context.Context, applicantID uint, ch models.Channel, code string) (*VerifyResult, error) {
	unlock, err := s.lockChannel(ctx, applicantID, ch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := s.applicant(ctx, s.repo, applicantID)
	if err != nil {
		return nil, err
	}
	if a.Verification.IsVerified(ch) {
		return nil, apperrors.ErrAlreadyVerified
	}

	challenge, err := s.repo.GetActiveChallenge(ctx, applicantID, ch)
	if errors.Is(err, database.ErrNotFound) {
		utils.GetMetrics().RecordOTPOutcome("no_challenge")
		return nil, apperrors.ErrNoActiveChallenge
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if challenge.IsExpired(now) {
		challenge.ExpiredAt = &now
		if err := s.repo.UpdateChallenge(ctx, challenge); err != nil {
			return nil, fmt.Errorf("expire otp challenge: %w", err)
		}
		utils.GetMetrics().RecordOTPOutcome("expired")
		return nil, apperrors.ErrOTPExpired
	}
	if !utils.ValidateHMAC(code, challenge.CodeHash, s.hmacKey) {
		utils.GetMetrics().RecordOTPOutcome("mismatch")
		return nil, apperrors.ErrCodeMismatch
	}

	// The profile row is shared with the other channel and with profile
	// updates, so it is re-read under the applicant lock.
	unlockApplicant, err := s.locker.Lock(ctx, applicantLockKey(applicantID))
	if err != nil {
		return nil, fmt.Errorf("lock applicant: %w", err)
	}
	defer unlockApplicant()

	var verified *models.Applicant
	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		challenge.Consumed = true
		challenge.ConsumedAt = &now
		if err := tx.UpdateChallenge(ctx, challenge); err != nil {
			return err
		}

		fresh, err := s.applicant(ctx, tx, applicantID)
		if err != nil {
			return err
		}
		fresh.Verification.MarkVerified(ch)
		verified = fresh
		return tx.UpdateApplicant(ctx, fresh)
	})
	if err != nil {
		return nil, fmt.Errorf("consume otp challenge: %w", err)
	}

	utils.GetMetrics().RecordOTPOutcome("verified")
	s.limiter.Reset(channelLockKey(applicantID, ch))
	utils.LogInfo("applicant %d verified %s", applicantID, ch)

	return &VerifyResult{Verified: true, KYCVerified: verified.Verification.KYCVerified}, nil
}

// ChannelStates reports the verification state of both channels
func (s *VerificationService) ChannelStates(ctx context.Context, applicantID uint) (map[models.Channel]models.ChannelState, error) {
	a, err := s.applicant(ctx, s.repo, applicantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	states := make(map[models.Channel]models.ChannelState, 2)
	for _, ch := range []models.Channel{models.ChannelPhone, models.ChannelEmail} {
		if a.Verification.IsVerified(ch) {
			states[ch] = models.ChannelVerified
			continue
		}
		c, err := s.repo.GetActiveChallenge(ctx, applicantID, ch)
		switch {
		case errors.Is(err, database.ErrNotFound):
			states[ch] = models.ChannelUnverified
		case err != nil:
			return nil, err
		case c.IsExpired(now):
			states[ch] = models.ChannelUnverified
		default:
			states[ch] = models.ChannelOTPSent
		}
	}
	return states, nil
}

// ExpireStale marks every pending challenge past its expiry as expired
func (s *VerificationService) ExpireStale(ctx context.Context) (int64, error) {
	return s.repo.ExpireChallenges(ctx, s.now())
}
