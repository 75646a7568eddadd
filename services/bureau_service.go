package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// BureauName is reported on every credit report
const BureauName = "CIBIL"

var preApprovedLimits = []float64{50000, 100000, 150000, 200000, 300000, 500000}

// CreditReport is a bureau's view of a prospective borrower
type CreditReport struct {
	Reference        string    `json:"reference"`
	CreditScore      int       `json:"credit_score"`
	PreApprovedLimit float64   `json:"pre_approved_limit"`
	ScoreDate        time.Time `json:"score_date"`
	Bureau           string    `json:"bureau"`
}

// SyntheticReport derives a stable report from the reference. Scores fall
// in 650-850 and limits come from the standard offer ladder.
func SyntheticReport(reference string, at time.Time) CreditReport {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(reference))))
	sum := h.Sum32()

	return CreditReport{
		Reference:        reference,
		CreditScore:      650 + int(sum%201),
		PreApprovedLimit: preApprovedLimits[(sum/201)%uint32(len(preApprovedLimits))],
		ScoreDate:        at.UTC().Truncate(24 * time.Hour),
		Bureau:           BureauName,
	}
}

// EncodeCreditReport renders the report in the bureau's XML format
func EncodeCreditReport(r CreditReport) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("CreditReport")
	root.CreateAttr("bureau", r.Bureau)
	root.CreateElement("Reference").SetText(r.Reference)

	score := root.CreateElement("Score")
	score.CreateAttr("date", r.ScoreDate.Format("2006-01-02"))
	score.SetText(strconv.Itoa(r.CreditScore))

	limit := root.CreateElement("PreApprovedLimit")
	limit.CreateAttr("currency", "INR")
	limit.SetText(strconv.FormatFloat(r.PreApprovedLimit, 'f', 2, 64))

	doc.Indent(2)
	return doc.WriteToBytes()
}

// DecodeCreditReport parses the bureau's XML format
func DecodeCreditReport(data []byte) (*CreditReport, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse credit report: %w", err)
	}
	root := doc.SelectElement("CreditReport")
	if root == nil {
		return nil, fmt.Errorf("parse credit report: missing CreditReport element")
	}

	r := &CreditReport{Bureau: root.SelectAttrValue("bureau", BureauName)}
	if el := root.SelectElement("Reference"); el != nil {
		r.Reference = el.Text()
	}

	score := root.SelectElement("Score")
	if score == nil {
		return nil, fmt.Errorf("parse credit report: missing Score")
	}
	n, err := strconv.Atoi(strings.TrimSpace(score.Text()))
	if err != nil {
		return nil, fmt.Errorf("parse credit report score: %w", err)
	}
	r.CreditScore = n
	if d := score.SelectAttrValue("date", ""); d != "" {
		if r.ScoreDate, err = time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("parse credit report date: %w", err)
		}
	}

	if el := root.SelectElement("PreApprovedLimit"); el != nil {
		if r.PreApprovedLimit, err = strconv.ParseFloat(strings.TrimSpace(el.Text()), 64); err != nil {
			return nil, fmt.Errorf("parse pre-approved limit: %w", err)
		}
	}
	return r, nil
}

// BureauService fetches credit reports. Without a base URL reports are
// synthesized locally.
type BureauService struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

// NewBureauService creates a BureauService
func NewBureauService(baseURL string, timeout time.Duration) *BureauService {
	return &BureauService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
		now:     time.Now,
	}
}

// Lookup returns the report for reference, usually an email address
func (b *BureauService) Lookup(ctx context.Context, reference string) (*CreditReport, error) {
	if b.baseURL == "" {
		r := SyntheticReport(reference, b.now())
		return &r, nil
	}

	var report *CreditReport
	err := callCollaborator(ctx, "bureau", b.timeout, func(ctx context.Context) error {
		u := b.baseURL + "/credit-bureau/report?ref=" + url.QueryEscape(reference)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/xml")

		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("bureau returned status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		report, err = DecodeCreditReport(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
