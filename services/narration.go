package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Turn is one past message given to the narrator
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NarrationRequest carries everything a narrator may use. Fallback is the
// deterministic text used when no model is available.
type NarrationRequest struct {
	SystemPrompt string
	History      []Turn
	Context      map[string]any
	UserMessage  string
	ExpectIntent bool
	Fallback     string
}

// Intent is the need-discovery analysis of a customer message
type Intent struct {
	Purpose              string   `json:"intent"`
	Urgency              string   `json:"urgency"`
	AmountMentioned      *float64 `json:"amount_mentioned"`
	Concerns             []string `json:"concerns"`
	NeedsIncomeInfo      bool     `json:"needs_income_info"`
	RecommendedQuestions []string `json:"recommended_questions"`
}

// FallbackIntent is used when the model output cannot be parsed
func FallbackIntent() *Intent {
	return &Intent{
		Purpose:         "general",
		Urgency:         "medium",
		Concerns:        []string{},
		NeedsIncomeInfo: true,
		RecommendedQuestions: []string{
			"What is your monthly income?",
			"Do you have any existing loans?",
		},
	}
}

// Narration is generated text with the optional intent analysis
type Narration struct {
	Text   string  `json:"text"`
	Intent *Intent `json:"intent,omitempty"`
}

// TemplateNarrator answers with the request's fallback text. It is used
// when no model key is configured.
type TemplateNarrator struct{}

func (TemplateNarrator) Generate(ctx context.Context, req NarrationRequest) (*Narration, error) {
	n := &Narration{Text: req.Fallback}
	if n.Text == "" {
		n.Text = "Thank you for your message. I can help you check your eligibility, " +
			"compare EMIs and apply for a personal loan. What would you like to do?"
	}
	if req.ExpectIntent {
		n.Intent = FallbackIntent()
	}
	return n, nil
}

// GeminiNarrator generates replies with a Gemini model
type GeminiNarrator struct {
	apiKey  string
	model   string
	timeout time.Duration
}

// NewGeminiNarrator creates a GeminiNarrator
func NewGeminiNarrator(apiKey, model string, timeout time.Duration) *GeminiNarrator {
	return &GeminiNarrator{apiKey: apiKey, model: model, timeout: timeout}
}

const intentInstruction = `Analyze the customer's message and extract:
1. Loan Intent/Purpose (emergency, business, education, home_renovation, wedding, medical, travel, debt_consolidation, other)
2. Urgency level (high, medium, low)
3. Amount range mentioned (if any)
4. Key concerns or requirements

Respond ONLY with valid JSON in this format:
{"intent": "purpose", "urgency": "level", "amount_mentioned": number or null, "concerns": ["..."], "needs_income_info": true/false, "recommended_questions": ["..."]}`

func (g *GeminiNarrator) Generate(ctx context.Context, req NarrationRequest) (*Narration, error) {
	var n Narration
	err := callCollaborator(ctx, "gemini", g.timeout, func(ctx context.Context) error {
		client, err := ai.NewClient(ctx, option.WithAPIKey(g.apiKey))
		if err != nil {
			return fmt.Errorf("create genai client: %w", err)
		}
		defer client.Close()

		model := client.GenerativeModel(g.model)
		if req.SystemPrompt != "" {
			model.SystemInstruction = &ai.Content{Parts: []ai.Part{ai.Text(req.SystemPrompt)}}
		}

		text, err := generateText(ctx, model, buildPrompt(req))
		if err != nil {
			return err
		}
		n.Text = text

		if req.ExpectIntent {
			raw, err := generateText(ctx, model, fmt.Sprintf("%s\n\nCustomer message: %s", intentInstruction, req.UserMessage))
			if err != nil {
				return err
			}
			n.Intent = parseIntent(raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func generateText(ctx context.Context, model *ai.GenerativeModel, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, ai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var b strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(ai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("empty model response")
	}
	return out, nil
}

func buildPrompt(req NarrationRequest) string {
	var b strings.Builder
	if len(req.Context) > 0 {
		ctxJSON, _ := json.MarshalIndent(req.Context, "", "  ")
		b.WriteString("Customer context:\n")
		b.Write(ctxJSON)
		b.WriteString("\n\n")
	}
	if len(req.History) > 0 {
		b.WriteString("Recent chat history:\n")
		for _, t := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Customer's latest message: %s\n\n", req.UserMessage)
	b.WriteString("Provide a helpful, conversational response. Be specific about amounts, rates and terms when discussing loans. " +
		"If the customer hasn't verified their phone or email, gently suggest doing so. " +
		"If income information is missing, ask about it naturally.")
	return b.String()
}

// parseIntent decodes the model's JSON, tolerating a markdown fence
func parseIntent(raw string) *Intent {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var in Intent
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &in); err != nil || in.Purpose == "" {
		return FallbackIntent()
	}
	if in.Concerns == nil {
		in.Concerns = []string{}
	}
	return &in
}
