package services

import (
	"context"
	"fmt"
	"time"

	"loanflow/apperrors"
	"loanflow/models"
	"loanflow/utils"
)

// OTPDelivery sends a one-time code to a contact channel
type OTPDelivery interface {
	Deliver(ctx context.Context, ch models.Channel, destination, code string) error
}

// TextGenerator turns conversation history and structured context into
// customer-facing text, optionally with an extracted intent
type TextGenerator interface {
	Generate(ctx context.Context, req NarrationRequest) (*Narration, error)
}

// DocumentRenderer renders the sanction letter of an approved loan
type DocumentRenderer interface {
	RenderSanctionLetter(ctx context.Context, letter SanctionLetter) ([]byte, error)
}

// DocumentStore keeps uploaded file contents
type DocumentStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Notifier tells the applicant about a decision. letter is nil unless the
// loan is approved.
type Notifier interface {
	NotifyDecision(ctx context.Context, a *models.Applicant, loan *models.LoanApplication, letter []byte) error
}

// EventPublisher emits loan decision events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, evt DecisionEvent) error
	Close() error
}

// SanctionLetter is everything printed on a sanction letter
type SanctionLetter struct {
	LoanID       uint
	FullName     string
	Address      string
	City         string
	Amount       float64
	InterestRate float64
	TenureMonths int
	EMI          float64
	TotalPayable float64
	IssuedAt     time.Time
}

// SanctionLetterOf builds the letter for an approved loan
func SanctionLetterOf(a *models.Applicant, loan *models.LoanApplication, now time.Time) SanctionLetter {
	return SanctionLetter{
		LoanID:       loan.ID,
		FullName:     a.FullName,
		Address:      a.Address,
		City:         a.City,
		Amount:       loan.Amount,
		InterestRate: loan.InterestRate,
		TenureMonths: loan.TenureMonths,
		EMI:          loan.EMI,
		TotalPayable: loan.TotalPayable,
		IssuedAt:     now,
	}
}

// callCollaborator runs fn under the collaborator timeout. Failures are
// counted, logged and surfaced as CollaboratorUnavailable. Calls are never
// retried.
func callCollaborator(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}

	utils.GetMetrics().RecordCollaboratorFailure(name, err)
	utils.LogFailure("services", name, "collaborator call failed", nil, err)
	return apperrors.ErrCollaboratorUnavailable.Wrap(fmt.Errorf("%s: %w", name, err))
}
