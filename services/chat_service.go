package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"loanflow/apperrors"
	"loanflow/database"
	"loanflow/finance"
	"loanflow/journey"
	"loanflow/models"
	"loanflow/utils"

	"github.com/google/uuid"
)

const (
	masterAgent     = "master"
	historyWindow   = 5
	historyClip     = 100
	maxMessageRunes = 2000
)

const assistantSystemPrompt = "You are a professional, warm, and helpful personal loan sales assistant. " +
	"Guide customers naturally through their loan journey."

var discoveryKeywords = []string{"loan", "need", "want", "borrow", "money", "apply"}

// StartChatResult is the new session and its greeting
type StartChatResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatReply is the assistant's answer to a message
type ChatReply struct {
	Message string                   `json:"message"`
	Agent   string                   `json:"agent"`
	Stage   models.ConversationStage `json:"conversation_stage"`
	Intent  *Intent                  `json:"intent,omitempty"`
	// JourneyStage is the pipeline stage the reply was chosen for, empty
	// once the journey is complete.
	JourneyStage journey.StageID `json:"journey_stage"`
}

// ChatService runs conversations between applicants and the assistant
type ChatService struct {
	repo     database.Repository
	narrator TextGenerator
	lender   string
	now      func() time.Time
}

// NewChatService creates a ChatService
func NewChatService(repo database.Repository, narrator TextGenerator, lender string) *ChatService {
	return &ChatService{repo: repo, narrator: narrator, lender: lender, now: time.Now}
}

func (s *ChatService) applicant(ctx context.Context, id uint) (*models.Applicant, error) {
	a, err := s.repo.GetApplicantByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.ErrApplicantNotFound
	}
	return a, err
}

func (s *ChatService) greeting(a *models.Applicant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s! I'm your personal loan assistant from %s. "+
		"I'm here to help you get the best personal loan tailored to your needs.", a.FullName, s.lender)
	if !a.Verification.IdentityVerified() {
		b.WriteString("\n\nQuick tip: Verify your phone and email for faster loan processing!")
	}
	b.WriteString("\n\nHow can I assist you today?")
	return b.String()
}

// Start opens a session and stores the greeting
func (s *ChatService) Start(ctx context.Context, applicantID uint) (*StartChatResult, error) {
	a, err := s.applicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.ChatSession{
		ID:                uuid.NewString(),
		ApplicantID:       applicantID,
		Status:            "active",
		ConversationStage: models.ConversationInitial,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	greeting := s.greeting(a)

	err = s.repo.Transaction(ctx, func(tx database.Repository) error {
		if err := tx.CreateChatSession(ctx, session); err != nil {
			return err
		}
		return tx.CreateChatMessage(ctx, &models.ChatMessage{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Role:      models.RoleAssistant,
			Content:   greeting,
			AgentName: masterAgent,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("start chat session: %w", err)
	}
	return &StartChatResult{SessionID: session.ID, Message: greeting}, nil
}

func (s *ChatService) session(ctx context.Context, applicantID uint, sessionID string) (*models.ChatSession, error) {
	session, err := s.repo.GetChatSession(ctx, applicantID, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.ErrUnknownSession
	}
	return session, err
}

func mentionsLoanNeed(message string) bool {
	lower := strings.ToLower(message)
	for _, w := range discoveryKeywords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func recentTurns(msgs []models.ChatMessage) []Turn {
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		content := []rune(m.Content)
		if len(content) > historyClip {
			content = content[:historyClip]
		}
		turns = append(turns, Turn{Role: string(m.Role), Content: string(content)})
	}
	return turns
}

// Send stores the applicant's message and the assistant's reply. The reply
// steers toward the applicant's current journey stage. A message mentioning
// a loan need in a fresh session also runs need discovery.
func (s *ChatService) Send(ctx context.Context, applicantID uint, sessionID, message string) (*ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.Validation("message is required")
	}
	if len([]rune(message)) > maxMessageRunes {
		return nil, apperrors.Validation(fmt.Sprintf("message must be at most %d characters", maxMessageRunes))
	}

	session, err := s.session(ctx, applicantID, sessionID)
	if err != nil {
		return nil, err
	}
	a, err := s.applicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	loans, err := s.repo.ListLoans(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	progress := journey.Derive(journey.InputsOf(a, loans))
	history, err := s.repo.ListChatMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateChatMessage(ctx, &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   message,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	discover := session.ConversationStage == models.ConversationInitial && mentionsLoanNeed(message)
	req := NarrationRequest{
		SystemPrompt: assistantSystemPrompt,
		History:      recentTurns(history),
		Context:      chatContext(a, session, progress),
		UserMessage:  message,
		ExpectIntent: discover,
		Fallback:     nextStepPrompt(a, progress.Current),
	}

	narration, err := s.narrator.Generate(ctx, req)
	if err != nil {
		utils.LogFailure("services", "ChatService.Send", "narration fell back to template", sessionID, err)
		narration, _ = TemplateNarrator{}.Generate(ctx, req)
	}

	reply := &ChatReply{
		Message:      narration.Text,
		Agent:        masterAgent,
		Stage:        session.ConversationStage,
		JourneyStage: progress.Current,
	}
	if discover && narration.Intent != nil {
		session.DiscoveredIntent = narration.Intent.Purpose
		session.ConversationStage = models.ConversationNeedDiscovery
		session.UpdatedAt = s.now()
		if err := s.repo.UpdateChatSession(ctx, session); err != nil {
			return nil, fmt.Errorf("update chat session: %w", err)
		}
		reply.Stage = session.ConversationStage
		reply.Intent = narration.Intent
		utils.LogDebug("need discovery for session %s: %s", sessionID, narration.Intent.Purpose)
	}

	var metadata string
	if reply.Intent != nil {
		raw, _ := json.Marshal(reply.Intent)
		metadata = string(raw)
	}
	if err := s.repo.CreateChatMessage(ctx, &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   reply.Message,
		AgentName: masterAgent,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}
	return reply, nil
}

// History returns the session's messages in order
func (s *ChatService) History(ctx context.Context, applicantID uint, sessionID string) ([]models.ChatMessage, error) {
	if _, err := s.session(ctx, applicantID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListChatMessages(ctx, sessionID)
}

func chatContext(a *models.Applicant, session *models.ChatSession, progress journey.Progress) map[string]any {
	intent := session.DiscoveredIntent
	if intent == "" {
		intent = "unknown"
	}
	current := string(progress.Current)
	if current == "" {
		current = "complete"
	}
	completed := make([]journey.StageID, 0, progress.CompletedCount)
	for _, st := range progress.Stages {
		if st.Completed {
			completed = append(completed, st.ID)
		}
	}
	return map[string]any{
		"name":                  a.FullName,
		"credit_score":          a.CreditScore,
		"pre_approved_limit":    a.PreApprovedLimit,
		"city":                  a.City,
		"phone_verified":        a.Verification.PhoneVerified,
		"email_verified":        a.Verification.EmailVerified,
		"kyc_verified":          a.Verification.KYCVerified,
		"income_info_available": a.FinancialProfile.HasIncome(),
		"conversation_stage":    session.ConversationStage,
		"discovered_intent":     intent,
		"journey_stage":         current,
		"completed_stages":      completed,
	}
}

// nextStepPrompt nudges the applicant toward the stage in progress
func nextStepPrompt(a *models.Applicant, current journey.StageID) string {
	switch current {
	case journey.StageVerification:
		return "I'd be glad to help. To speed things up, please verify your phone number and email " +
			"using the one-time codes we send you. Meanwhile, what would you like the loan for?"
	case journey.StageFinancialProfile:
		return "Thanks! To find an amount that fits your budget, could you share your monthly income " +
			"and any EMIs you currently pay?"
	case journey.StageNeedDiscovery:
		return fmt.Sprintf("Good news: you are pre-approved for up to %s at %.1f%% per annum. "+
			"How much would you like to borrow, and over how many months?",
			formatINR(a.PreApprovedLimit), finance.InterestRate(a.CreditScore))
	case journey.StageUnderwriting:
		return "Your latest application is waiting on income proof. Please upload a recent salary slip " +
			"or bank statement and I'll re-check it right away."
	case journey.StageApproved:
		return fmt.Sprintf("Your last application was not approved. You can apply again for an amount "+
			"within your pre-approved limit of %s.", formatINR(a.PreApprovedLimit))
	}
	return "Your loan is approved! You can download your sanction letter from the dashboard. " +
		"Is there anything else I can help you with?"
}
