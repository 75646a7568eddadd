package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"loanflow/apperrors"
	"loanflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func TestFormatINR(t *testing.T) {
	tests := map[float64]string{
		0:          "INR 0.00",
		999.5:      "INR 999.50",
		100000:     "INR 1,00,000.00",
		1234567.89: "INR 12,34,567.89",
		-50000:     "-INR 50,000.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatINR(in))
	}
}

func TestCallCollaborator(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, callCollaborator(ctx, "noop", time.Second, func(context.Context) error { return nil }))

	err := callCollaborator(ctx, "failing", time.Second, func(context.Context) error {
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "failing: boom")

	start := time.Now()
	err = callCollaborator(ctx, "slow", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(time.Second)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

type sentMail struct {
	to   []string
	body string
}

func captureSender(out *[]sentMail) gomail.SendFunc {
	return func(from string, to []string, msg io.WriterTo) error {
		var buf bytes.Buffer
		if _, err := msg.WriteTo(&buf); err != nil {
			return err
		}
		*out = append(*out, sentMail{to: to, body: buf.String()})
		return nil
	}
}

func TestEmailService_NotifyDecision(t *testing.T) {
	ctx := context.Background()
	var sent []sentMail
	svc := NewEmailServiceWithSender("loans@example.com", captureSender(&sent), time.Second)
	a := &models.Applicant{FullName: "Anita Desai", Email: "anita@example.com"}

	approved := &models.LoanApplication{ID: 7, Status: models.LoanStatusApproved, Amount: 100000, InterestRate: 10.5, TenureMonths: 12, EMI: 8815.07, TotalPayable: 105780.84}
	require.NoError(t, svc.NotifyDecision(ctx, a, approved, []byte("%PDF-1.4")))
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"anita@example.com"}, sent[0].to)
	assert.Contains(t, sent[0].body, "sanction_letter_7.pdf")
	assert.Contains(t, sent[0].body, "Loan Approved")

	reason := "low credit score"
	rejected := &models.LoanApplication{ID: 8, Status: models.LoanStatusRejected, RejectionReason: &reason}
	require.NoError(t, svc.NotifyDecision(ctx, a, rejected, nil))
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].body, "low credit score")

	pending := &models.LoanApplication{ID: 9, Status: models.LoanStatusPending}
	require.NoError(t, svc.NotifyDecision(ctx, a, pending, nil))
	assert.Len(t, sent, 2)
}

func TestEmailService_SendFailure(t *testing.T) {
	svc := NewEmailServiceWithSender("loans@example.com", gomail.SendFunc(func(string, []string, io.WriterTo) error {
		return errors.New("550 mailbox unavailable")
	}), time.Second)

	err := svc.SendOTP(context.Background(), "nobody@example.com", "123456", 5*time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)
}

func TestSanctionLetterRenderer(t *testing.T) {
	r := NewSanctionLetterRenderer("Acme Finance")
	a := &models.Applicant{FullName: "Vikram Singh", Address: "4 Park Street", City: "Kolkata"}
	loan := &models.LoanApplication{ID: 42, Amount: 300000, InterestRate: 11.5, TenureMonths: 48, EMI: 7826.79, TotalPayable: 375685.92}

	pdf, err := r.RenderSanctionLetter(context.Background(), SanctionLetterOf(a, loan, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("098765 43210", "IN")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", got)

	got, err = NormalizePhone("+1 650-253-0000", "IN")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", got)

	_, err = NormalizePhone("12", "IN")
	assert.Error(t, err)
}

type recordingPhone struct {
	phone, message string
}

func (r *recordingPhone) SendMessage(ctx context.Context, phone, message string) error {
	r.phone, r.message = phone, message
	return nil
}

func TestChannelDelivery_Phone(t *testing.T) {
	phone := &recordingPhone{}
	d := NewChannelDelivery(nil, phone, "IN", 5*time.Minute)

	require.NoError(t, d.Deliver(context.Background(), models.ChannelPhone, "9876543210", "654321"))
	assert.Equal(t, "+919876543210", phone.phone)
	assert.Contains(t, phone.message, "654321")
	assert.Contains(t, phone.message, "5 minutes")

	mockOnly := NewChannelDelivery(nil, nil, "IN", time.Minute)
	assert.NoError(t, mockOnly.Deliver(context.Background(), models.ChannelPhone, "9876543210", "111111"))
	assert.ErrorIs(t, mockOnly.Deliver(context.Background(), "fax", "x", "1"), apperrors.ErrInvalidChannel)
}

func TestBureau_SyntheticReport(t *testing.T) {
	at := time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)
	first := SyntheticReport("Someone@Example.com", at)
	second := SyntheticReport("someone@example.com ", at)
	assert.Equal(t, first.CreditScore, second.CreditScore)
	assert.Equal(t, first.PreApprovedLimit, second.PreApprovedLimit)

	for _, ref := range []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io", "e@x.io"} {
		r := SyntheticReport(ref, at)
		assert.GreaterOrEqual(t, r.CreditScore, 650)
		assert.LessOrEqual(t, r.CreditScore, 850)
		assert.Contains(t, preApprovedLimits, r.PreApprovedLimit)
		assert.Equal(t, BureauName, r.Bureau)
	}
}

func TestBureau_XMLReport(t *testing.T) {
	report := SyntheticReport("xml@example.com", time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	data, err := EncodeCreditReport(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<CreditReport bureau="CIBIL">`)

	decoded, err := DecodeCreditReport(data)
	require.NoError(t, err)
	assert.Equal(t, report.Reference, decoded.Reference)
	assert.Equal(t, report.CreditScore, decoded.CreditScore)
	assert.Equal(t, report.PreApprovedLimit, decoded.PreApprovedLimit)
	assert.True(t, report.ScoreDate.Equal(decoded.ScoreDate))

	_, err = DecodeCreditReport([]byte("<Other/>"))
	assert.Error(t, err)
}

func TestParseIntent(t *testing.T) {
	in := parseIntent("```json\n{\"intent\":\"medical\",\"urgency\":\"high\",\"amount_mentioned\":200000,\"needs_income_info\":false}\n```")
	assert.Equal(t, "medical", in.Purpose)
	require.NotNil(t, in.AmountMentioned)
	assert.Equal(t, 200000.0, *in.AmountMentioned)
	assert.Empty(t, in.Concerns)

	fallback := parseIntent("I think they want a loan")
	assert.Equal(t, FallbackIntent(), fallback)
}

func TestTemplateNarrator(t *testing.T) {
	n, err := TemplateNarrator{}.Generate(context.Background(), NarrationRequest{ExpectIntent: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(n.Text, "Thank you"))
	require.NotNil(t, n.Intent)
	assert.True(t, n.Intent.NeedsIncomeInfo)
}
