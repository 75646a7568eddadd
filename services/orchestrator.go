package services

import (
	"context"
	"fmt"
	"time"

	"loanflow/apperrors"
	"loanflow/finance"
	"loanflow/journey"
	"loanflow/models"
	"loanflow/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Deps are the components the Orchestrator composes
type Deps struct {
	Users        *UserService
	Verification *VerificationService
	Loans        *LoanService
	Documents    *DocumentService
	Chat         *ChatService
	Renderer     DocumentRenderer
	Notifier     Notifier
	Events       EventPublisher
}

// Orchestrator is the boundary of the lending journey. Every decision is
// committed before the applicant is notified, and notification failures
// never undo a decision.
type Orchestrator struct {
	Deps
	tracer trace.Tracer
	now    func() time.Time
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		Deps:   d,
		tracer: otel.Tracer("loanflow/services"),
		now:    time.Now,
	}
}

func (o *Orchestrator) span(ctx context.Context, name string, applicantID uint) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "Orchestrator."+name,
		trace.WithAttributes(attribute.Int64("applicant.id", int64(applicantID))))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// LoanDecisionResponse is the stored application, its decision and the
// outcome of the post-commit notification
type LoanDecisionResponse struct {
	ApplyResult
	NotificationError string `json:"notificationError,omitempty"`
}

// ApplyForLoan records and decides a new application
func (o *Orchestrator) ApplyForLoan(ctx context.Context, applicantID uint, req ApplyLoanRequest) (resp *LoanDecisionResponse, err error) {
	ctx, span := o.span(ctx, "ApplyForLoan", applicantID)
	defer func() { finish(span, err) }()

	res, err := o.Loans.Apply(ctx, applicantID, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("loan.id", int64(res.Application.ID)),
		attribute.String("loan.status", string(res.Application.Status)),
	)

	return &LoanDecisionResponse{
		ApplyResult:       *res,
		NotificationError: o.afterDecision(ctx, res.Application, false),
	}, nil
}

// afterDecision notifies the applicant and publishes the decision. It
// returns a description of the first notification failure.
func (o *Orchestrator) afterDecision(ctx context.Context, loan *models.LoanApplication, reevaluation bool) string {
	if err := o.Events.Publish(ctx, NewDecisionEvent(loan, reevaluation, o.now())); err != nil {
		utils.LogFailure("services", "Orchestrator.afterDecision", "decision event not published", loan.ID, err)
	}

	a, err := o.Users.Me(ctx, loan.ApplicantID)
	if err != nil {
		utils.LogFailure("services", "Orchestrator.afterDecision", "load applicant", loan.ApplicantID, err)
		return err.Error()
	}

	var letter []byte
	if loan.Status == models.LoanStatusApproved {
		letter, err = o.Renderer.RenderSanctionLetter(ctx, SanctionLetterOf(a, loan, o.now()))
		if err != nil {
			utils.LogFailure("services", "Orchestrator.afterDecision", "render sanction letter", loan.ID, err)
			return err.Error()
		}
	}

	if err := o.Notifier.NotifyDecision(ctx, a, loan, letter); err != nil {
		utils.LogFailure("services", "Orchestrator.afterDecision", "notify decision", loan.ID, err)
		return err.Error()
	}
	return ""
}

// ListLoans returns the applicant's applications, most recent first
func (o *Orchestrator) ListLoans(ctx context.Context, applicantID uint) ([]models.LoanApplication, error) {
	return o.Loans.List(ctx, applicantID)
}

// GetLoan returns one application of the applicant
func (o *Orchestrator) GetLoan(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error) {
	return o.Loans.Get(ctx, applicantID, loanID)
}

// CheckAffordability prices the request at the applicant's rate band and
// checks it against the declared income
func (o *Orchestrator) CheckAffordability(ctx context.Context, applicantID uint, amount float64, tenureMonths int) (res *finance.AffordabilityResult, err error) {
	ctx, span := o.span(ctx, "CheckAffordability", applicantID)
	defer func() { finish(span, err) }()

	if amount <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}
	if tenureMonths < 1 {
		return nil, apperrors.ErrInvalidTenure
	}

	a, err := o.Users.Me(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	if !a.FinancialProfile.HasIncome() {
		return nil, apperrors.ErrIncomeRequired
	}

	rate := finance.InterestRate(a.CreditScore)
	emi, err := finance.EMI(amount, rate, tenureMonths)
	if err != nil {
		return nil, err
	}
	out := finance.Affordability(finance.AffordabilityInput{
		MonthlyIncome: a.FinancialProfile.MonthlyIncome,
		ExistingEMI:   a.FinancialProfile.ExistingEMI,
		ProposedEMI:   emi,
		AnnualRate:    rate,
		TenureMonths:  tenureMonths,
	})
	return &out, nil
}

// IssueOTP sends a fresh code to the channel. Resending is the same call.
func (o *Orchestrator) IssueOTP(ctx context.Context, applicantID uint, ch models.Channel) (res *IssueResult, err error) {
	ctx, span := o.span(ctx, "IssueOTP", applicantID)
	span.SetAttributes(attribute.String("otp.channel", string(ch)))
	defer func() { finish(span, err) }()

	return o.Verification.Issue(ctx, applicantID, ch)
}

// VerifyOTP checks a code for the channel
func (o *Orchestrator) VerifyOTP(ctx context.Context, applicantID uint, ch models.Channel, code string) (res *VerifyResult, err error) {
	ctx, span := o.span(ctx, "VerifyOTP", applicantID)
	span.SetAttributes(attribute.String("otp.channel", string(ch)))
	defer func() { finish(span, err) }()

	return o.Verification.Verify(ctx, applicantID, ch, code)
}

// VerificationStatus reports the state of both channels
func (o *Orchestrator) VerificationStatus(ctx context.Context, applicantID uint) (map[models.Channel]models.ChannelState, error) {
	return o.Verification.ChannelStates(ctx, applicantID)
}

// UploadResponse describes an accepted document
type UploadResponse struct {
	DocumentID        string             `json:"documentId"`
	Message           string             `json:"message"`
	LoanStatusUpdated bool               `json:"loanStatusUpdated"`
	NewLoanStatus     *models.LoanStatus `json:"newLoanStatus,omitempty"`
	NotificationError string             `json:"notificationError,omitempty"`
}

// UploadDocument stores a document and re-evaluates the loan it supports
func (o *Orchestrator) UploadDocument(ctx context.Context, applicantID uint, req UploadRequest) (resp *UploadResponse, err error) {
	ctx, span := o.span(ctx, "UploadDocument", applicantID)
	span.SetAttributes(attribute.String("document.type", string(req.DocType)))
	defer func() { finish(span, err) }()

	res, err := o.Documents.Upload(ctx, applicantID, req)
	if err != nil {
		return nil, err
	}

	resp = &UploadResponse{
		DocumentID: res.Document.ID,
		Message:    "Document uploaded successfully",
	}
	if res.StatusUpdated {
		status := res.Loan.Status
		resp.LoanStatusUpdated = true
		resp.NewLoanStatus = &status
		resp.Message = fmt.Sprintf("Document uploaded successfully. Loan application is now %s", status)
		resp.NotificationError = o.afterDecision(ctx, res.Loan, true)
	}
	return resp, nil
}

// ListDocuments returns the applicant's documents, newest first
func (o *Orchestrator) ListDocuments(ctx context.Context, applicantID uint) ([]models.Document, error) {
	return o.Documents.List(ctx, applicantID)
}

// GetJourneyStage derives the applicant's pipeline progress
func (o *Orchestrator) GetJourneyStage(ctx context.Context, applicantID uint) (*journey.Progress, error) {
	a, err := o.Users.Me(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	loans, err := o.Loans.List(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	p := journey.Derive(journey.InputsOf(a, loans))
	return &p, nil
}

// UpdateFinancialProfile replaces the declared income picture
func (o *Orchestrator) UpdateFinancialProfile(ctx context.Context, applicantID uint, req FinancialProfileRequest) (*models.Applicant, error) {
	return o.Users.UpdateFinancialProfile(ctx, applicantID, req)
}

// StartChat opens a conversation
func (o *Orchestrator) StartChat(ctx context.Context, applicantID uint) (*StartChatResult, error) {
	return o.Chat.Start(ctx, applicantID)
}

// SendMessage answers a chat message
func (o *Orchestrator) SendMessage(ctx context.Context, applicantID uint, sessionID, message string) (reply *ChatReply, err error) {
	ctx, span := o.span(ctx, "SendMessage", applicantID)
	defer func() { finish(span, err) }()

	reply, err = o.Chat.Send(ctx, applicantID, sessionID, message)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("journey.stage", string(reply.JourneyStage)))
	return reply, nil
}

// ChatHistory returns a conversation in order
func (o *Orchestrator) ChatHistory(ctx context.Context, applicantID uint, sessionID string) ([]models.ChatMessage, error) {
	return o.Chat.History(ctx, applicantID, sessionID)
}

// DownloadSanctionLetter renders the letter of an approved loan
func (o *Orchestrator) DownloadSanctionLetter(ctx context.Context, applicantID, loanID uint) (pdf []byte, filename string, err error) {
	ctx, span := o.span(ctx, "DownloadSanctionLetter", applicantID)
	defer func() { finish(span, err) }()

	loan, err := o.Loans.Get(ctx, applicantID, loanID)
	if err != nil {
		return nil, "", err
	}
	if loan.Status != models.LoanStatusApproved {
		return nil, "", apperrors.ErrLoanNotApproved
	}
	a, err := o.Users.Me(ctx, applicantID)
	if err != nil {
		return nil, "", err
	}

	at := o.now()
	if loan.DecidedAt != nil {
		at = *loan.DecidedAt
	}
	pdf, err = o.Renderer.RenderSanctionLetter(ctx, SanctionLetterOf(a, loan, at))
	if err != nil {
		return nil, "", err
	}
	return pdf, fmt.Sprintf("sanction_letter_%d.pdf", loan.ID), nil
}
