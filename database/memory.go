package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"loanflow/models"

	"github.com/google/uuid"
)

// Memory is an in-process Repository used for local runs and tests.
// Transactions are serialized and roll back by restoring a snapshot taken
// when they began.
type Memory struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextApplicantID uint
	nextLoanID      uint

	applicants map[uint]models.Applicant
	challenges map[string]models.OTPChallenge
	loans      map[uint]models.LoanApplication
	documents  []models.Document
	sessions   map[string]models.ChatSession
	messages   []models.ChatMessage

	now func() time.Time
}

var _ Repository = (*Memory)(nil)

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		applicants: make(map[uint]models.Applicant),
		challenges: make(map[string]models.OTPChallenge),
		loans:      make(map[uint]models.LoanApplication),
		sessions:   make(map[string]models.ChatSession),
		now:        time.Now,
	}
}

type memorySnapshot struct {
	nextApplicantID uint
	nextLoanID      uint
	applicants      map[uint]models.Applicant
	challenges      map[string]models.OTPChallenge
	loans           map[uint]models.LoanApplication
	documents       []models.Document
	sessions        map[string]models.ChatSession
	messages        []models.ChatMessage
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memorySnapshot{
		nextApplicantID: m.nextApplicantID,
		nextLoanID:      m.nextLoanID,
		applicants:      copyMap(m.applicants),
		challenges:      copyMap(m.challenges),
		loans:           copyMap(m.loans),
		documents:       append([]models.Document(nil), m.documents...),
		sessions:        copyMap(m.sessions),
		messages:        append([]models.ChatMessage(nil), m.messages...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextApplicantID = s.nextApplicantID
	m.nextLoanID = s.nextLoanID
	m.applicants = s.applicants
	m.challenges = s.challenges
	m.loans = s.loans
	m.documents = s.documents
	m.sessions = s.sessions
	m.messages = s.messages
}

// memoryTx is the view handed to a transaction body. Nested Transaction
// calls join the outer transaction.
type memoryTx struct {
	*Memory
}

func (t memoryTx) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return fn(t)
}

func (m *Memory) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	defer func() {
		if r := recover(); r != nil {
			m.restore(snap)
			panic(r)
		}
	}()

	if err := fn(memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Applicants

func (m *Memory) CreateApplicant(ctx context.Context, a *models.Applicant) error {
	if err := a.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.applicants {
		if existing.Email == a.Email {
			return ErrDuplicateKey
		}
	}
	m.nextApplicantID++
	a.ID = m.nextApplicantID
	now := m.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	m.applicants[a.ID] = *a
	return nil
}

func (m *Memory) GetApplicantByID(ctx context.Context, id uint) (*models.Applicant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.applicants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) GetApplicantByEmail(ctx context.Context, email string) (*models.Applicant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.applicants {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateApplicant(ctx context.Context, a *models.Applicant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applicants[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = m.now()
	m.applicants[a.ID] = *a
	return nil
}

func (m *Memory) CountApplicants(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.applicants)), nil
}

// OTP challenges

func cloneChallenge(c models.OTPChallenge) models.OTPChallenge {
	c.ConsumedAt = cloneTime(c.ConsumedAt)
	c.SupersededAt = cloneTime(c.SupersededAt)
	c.ExpiredAt = cloneTime(c.ExpiredAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (m *Memory) CreateChallenge(ctx context.Context, c *models.OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, ok := m.challenges[c.ID]; ok {
		return ErrDuplicateKey
	}
	m.challenges[c.ID] = cloneChallenge(*c)
	return nil
}

func (m *Memory) GetActiveChallenge(ctx context.Context, applicantID uint, ch models.Channel) (*models.OTPChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.OTPChallenge
	for _, c := range m.challenges {
		if c.ApplicantID != applicantID || c.Channel != ch || !c.Pending() {
			continue
		}
		if latest == nil || c.IssuedAt.After(latest.IssuedAt) {
			cp := cloneChallenge(c)
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) SupersedeChallenges(ctx context.Context, applicantID uint, ch models.Channel, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.challenges {
		if c.ApplicantID == applicantID && c.Channel == ch && c.Pending() {
			c.SupersededAt = cloneTime(&at)
			m.challenges[id] = c
		}
	}
	return nil
}

func (m *Memory) UpdateChallenge(ctx context.Context, c *models.OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.challenges[c.ID]; !ok {
		return ErrNotFound
	}
	m.challenges[c.ID] = cloneChallenge(*c)
	return nil
}

func (m *Memory) ExpireChallenges(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, c := range m.challenges {
		if c.Pending() && c.ExpiresAt.Before(before) {
			c.ExpiredAt = cloneTime(&before)
			m.challenges[id] = c
			n++
		}
	}
	return n, nil
}

// Loan applications

func cloneLoan(l models.LoanApplication) models.LoanApplication {
	if l.RejectionReason != nil {
		r := *l.RejectionReason
		l.RejectionReason = &r
	}
	l.DecidedAt = cloneTime(l.DecidedAt)
	if l.AffordabilityCheck != nil {
		c := *l.AffordabilityCheck
		l.AffordabilityCheck = &c
	}
	l.Documents = nil
	return l
}

func (m *Memory) CreateLoan(ctx context.Context, l *models.LoanApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLoanID++
	l.ID = m.nextLoanID
	now := m.now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	m.loans[l.ID] = cloneLoan(*l)
	return nil
}

func (m *Memory) GetLoan(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.loans[loanID]
	if !ok || l.ApplicantID != applicantID {
		return nil, ErrNotFound
	}
	cp := cloneLoan(l)
	return &cp, nil
}

// GetLoanForUpdate needs no row lock here: transactions are already serialized.
func (m *Memory) GetLoanForUpdate(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error) {
	return m.GetLoan(ctx, applicantID, loanID)
}

func (m *Memory) ListLoans(ctx context.Context, applicantID uint) ([]models.LoanApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.LoanApplication
	for _, l := range m.loans {
		if l.ApplicantID == applicantID {
			out = append(out, cloneLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateLoan(ctx context.Context, l *models.LoanApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[l.ID]; !ok {
		return ErrNotFound
	}
	l.UpdatedAt = m.now()
	m.loans[l.ID] = cloneLoan(*l)
	return nil
}

// Documents

func (m *Memory) CreateDocument(ctx context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	for _, existing := range m.documents {
		if existing.ID == d.ID {
			return fmt.Errorf("document %s: %w", d.ID, ErrDuplicateKey)
		}
	}
	if d.LoanApplicationID != nil {
		if _, ok := m.loans[*d.LoanApplicationID]; !ok {
			return fmt.Errorf("loan %d: %w", *d.LoanApplicationID, ErrNotFound)
		}
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = m.now()
	}
	m.documents = append(m.documents, *d)
	return nil
}

func (m *Memory) listDocuments(match func(models.Document) bool) []models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Document
	for _, d := range m.documents {
		if match(d) {
			if d.LoanApplicationID != nil {
				id := *d.LoanApplicationID
				d.LoanApplicationID = &id
			}
			out = append(out, d)
		}
	}
	return out
}

func (m *Memory) ListDocumentsByLoan(ctx context.Context, loanID uint) ([]models.Document, error) {
	docs := m.listDocuments(func(d models.Document) bool {
		return d.LoanApplicationID != nil && *d.LoanApplicationID == loanID
	})
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UploadedAt.Before(docs[j].UploadedAt) })
	return docs, nil
}

func (m *Memory) ListDocumentsByApplicant(ctx context.Context, applicantID uint) ([]models.Document, error) {
	docs := m.listDocuments(func(d models.Document) bool { return d.ApplicantID == applicantID })
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UploadedAt.After(docs[j].UploadedAt) })
	return docs, nil
}

// Chat

func (m *Memory) CreateChatSession(ctx context.Context, s *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) GetChatSession(ctx context.Context, applicantID uint, id string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.ApplicantID != applicantID {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) UpdateChatSession(ctx context.Context, s *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = m.now()
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *Memory) ListChatMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
