package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"time"

	"loanflow/config"
	"loanflow/models"
	"loanflow/utils"

	"gopkg.in/gomail.v2"
)

// EmailService sends OTP codes and loan status mail over SMTP
type EmailService struct {
	sender  gomail.Sender
	dialer  *gomail.Dialer
	from    string
	mock    bool
	timeout time.Duration
}

// Attachment is a file sent along with an email
type Attachment struct {
	Name string
	Data []byte
}

// NewEmailService creates an EmailService. Without SMTP credentials mail is
// only logged.
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		dialer:  dialer,
		from:    cfg.SMTP.From,
		mock:    cfg.SMTP.Username == "",
		timeout: cfg.Collaborators.Timeout,
	}
}

// NewEmailServiceWithSender sends through s instead of dialing SMTP
func NewEmailServiceWithSender(from string, s gomail.Sender, timeout time.Duration) *EmailService {
	return &EmailService{sender: s, from: from, timeout: timeout}
}

func (s *EmailService) send(m *gomail.Message) error {
	if s.sender != nil {
		return gomail.Send(s.sender, m)
	}
	return s.dialer.DialAndSend(m)
}

// SendEmail sends an HTML email
func (s *EmailService) SendEmail(ctx context.Context, to, subject, body string, attachments ...Attachment) error {
	if s.mock {
		utils.LogInfo("mock email to %s: %s", to, subject)
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	for _, a := range attachments {
		data := a.Data
		m.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	return callCollaborator(ctx, "email", s.timeout, func(context.Context) error {
		if err := s.send(m); err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	})
}

// SendOTP mails a verification code
func (s *EmailService) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	body, err := render(otpTemplate, map[string]any{
		"Code":    code,
		"Minutes": int(ttl.Minutes()),
	})
	if err != nil {
		return err
	}
	return s.SendEmail(ctx, to, "Your verification code", body)
}

// NotifyDecision sends the mail matching the loan status
func (s *EmailService) NotifyDecision(ctx context.Context, a *models.Applicant, loan *models.LoanApplication, letter []byte) error {
	data := map[string]any{
		"Name":         a.FullName,
		"LoanID":       loan.ID,
		"Amount":       formatINR(loan.Amount),
		"Rate":         loan.InterestRate,
		"Tenure":       loan.TenureMonths,
		"EMI":          formatINR(loan.EMI),
		"TotalPayable": formatINR(loan.TotalPayable),
	}

	var (
		subject     string
		tmpl        *template.Template
		attachments []Attachment
	)
	switch loan.Status {
	case models.LoanStatusApproved:
		subject = fmt.Sprintf("Loan Approved (Application #%d)", loan.ID)
		tmpl = approvedTemplate
		if letter != nil {
			attachments = append(attachments, Attachment{
				Name: fmt.Sprintf("sanction_letter_%d.pdf", loan.ID),
				Data: letter,
			})
		}
	case models.LoanStatusRejected:
		subject = fmt.Sprintf("Loan Application Update (Application #%d)", loan.ID)
		tmpl = rejectedTemplate
		reason := "Does not meet current eligibility criteria"
		if loan.RejectionReason != nil {
			reason = *loan.RejectionReason
		}
		data["Reason"] = reason
	case models.LoanStatusRequiresDocuments:
		subject = fmt.Sprintf("Action Required: Upload Documents (Application #%d)", loan.ID)
		tmpl = documentsTemplate
	default:
		return nil
	}

	body, err := render(tmpl, data)
	if err != nil {
		return err
	}
	return s.SendEmail(ctx, a.Email, subject, body, attachments...)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

var otpTemplate = template.Must(template.New("otp").Parse(`
<h2>Verification code</h2>
<p>Your one-time code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.Minutes}} minutes. Do not share it with anyone.</p>
`))

var approvedTemplate = template.Must(template.New("approved").Parse(`
<h2>Congratulations, {{.Name}}!</h2>
<p>Your personal loan application #{{.LoanID}} has been <strong>approved</strong>.</p>
<h3>Loan Details</h3>
<p><strong>Loan Amount:</strong> {{.Amount}}</p>
<p><strong>Interest Rate:</strong> {{.Rate}}% per annum</p>
<p><strong>Tenure:</strong> {{.Tenure}} months</p>
<p><strong>Monthly EMI:</strong> {{.EMI}}</p>
<p><strong>Total Payable:</strong> {{.TotalPayable}}</p>
<p>Your sanction letter is attached.</p>
<p>Next steps:</p>
<ol>
	<li>Review the attached sanction letter</li>
	<li>Sign and return the loan agreement within 7 days</li>
	<li>Complete any pending documentation</li>
</ol>
`))

var rejectedTemplate = template.Must(template.New("rejected").Parse(`
<h2>Loan Application Status Update</h2>
<p>Dear {{.Name}},</p>
<p>Thank you for applying for a personal loan.</p>
<p><strong>Application Status:</strong> Not Approved</p>
<p><strong>Reason:</strong> {{.Reason}}</p>
<p>You may reapply after addressing the eligibility requirements.</p>
`))

var documentsTemplate = template.Must(template.New("documents").Parse(`
<h2>Documents Required for Your Loan Application</h2>
<p>Dear {{.Name}},</p>
<p>Thank you for applying for a personal loan of <strong>{{.Amount}}</strong>.</p>
<p>Please upload your salary slip and other required documents to complete your application.</p>
<p><strong>Required Documents:</strong></p>
<ul>
	<li>Latest salary slip (last 3 months preferred)</li>
	<li>PAN Card</li>
	<li>Aadhaar Card</li>
	<li>Bank statement (last 6 months)</li>
</ul>
`))
