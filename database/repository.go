package database

import (
	"context"
	"errors"
	"time"

	"loanflow/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when an insert violates a unique constraint
	ErrDuplicateKey = errors.New("duplicate key")
)

// Repository is the persistence surface used by the services. Both the
// postgres store and the in-memory store implement it.
type Repository interface {
	// Transaction runs fn against a repository bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	CreateApplicant(ctx context.Context, a *models.Applicant) error
	GetApplicantByID(ctx context.Context, id uint) (*models.Applicant, error)
	GetApplicantByEmail(ctx context.Context, email string) (*models.Applicant, error)
	UpdateApplicant(ctx context.Context, a *models.Applicant) error
	CountApplicants(ctx context.Context) (int64, error)

	CreateChallenge(ctx context.Context, c *models.OTPChallenge) error
	// GetActiveChallenge returns the latest pending challenge for the channel.
	GetActiveChallenge(ctx context.Context, applicantID uint, ch models.Channel) (*models.OTPChallenge, error)
	// SupersedeChallenges marks every pending challenge for the channel superseded.
	SupersedeChallenges(ctx context.Context, applicantID uint, ch models.Channel, at time.Time) error
	UpdateChallenge(ctx context.Context, c *models.OTPChallenge) error
	// ExpireChallenges marks pending challenges that expired before the cutoff.
	ExpireChallenges(ctx context.Context, before time.Time) (int64, error)

	CreateLoan(ctx context.Context, l *models.LoanApplication) error
	// GetLoan returns the application only if it belongs to the applicant.
	GetLoan(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error)
	// GetLoanForUpdate is GetLoan with a row lock held until the
	// surrounding transaction ends.
	GetLoanForUpdate(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error)
	// ListLoans returns the applicant's applications, most recent first.
	ListLoans(ctx context.Context, applicantID uint) ([]models.LoanApplication, error)
	UpdateLoan(ctx context.Context, l *models.LoanApplication) error

	CreateDocument(ctx context.Context, d *models.Document) error
	ListDocumentsByLoan(ctx context.Context, loanID uint) ([]models.Document, error)
	ListDocumentsByApplicant(ctx context.Context, applicantID uint) ([]models.Document, error)

	CreateChatSession(ctx context.Context, s *models.ChatSession) error
	GetChatSession(ctx context.Context, applicantID uint, id string) (*models.ChatSession, error)
	UpdateChatSession(ctx context.Context, s *models.ChatSession) error
	CreateChatMessage(ctx context.Context, m *models.ChatMessage) error
	// ListChatMessages returns the session's messages in chronological order.
	ListChatMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
}
