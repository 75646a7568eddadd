package services

import (
	"context"
	"time"

	"loanflow/utils"
)

// OTPSweeper periodically marks lapsed OTP challenges as expired
type OTPSweeper struct {
	verification *VerificationService
	interval     time.Duration
}

// NewOTPSweeper creates an OTPSweeper
func NewOTPSweeper(verification *VerificationService, interval time.Duration) *OTPSweeper {
	return &OTPSweeper{verification: verification, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled
func (s *OTPSweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					utils.LogError("expire otp challenges: %v", err)
				}
			}
		}
	}()
}

// Sweep runs one pass and returns the number of challenges expired
func (s *OTPSweeper) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.verification.ExpireStale(ctx)
	utils.LogOperation("otp_sweep", start, err)
	if n > 0 {
		utils.LogDebug("expired %d otp challenges", n)
	}
	return n, err
}
