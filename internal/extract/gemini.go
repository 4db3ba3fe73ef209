package extract

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for entity extraction.
const DefaultModelName = "gemini-2.5-flash"

const extractPrompt = "Extract the company or counterparty name from this bank " +
	"transaction description. Remove payment-rail noise like PAYMENT, INVOICE, " +
	"TRANSACTION, FEE, POS, CHECKCARD and reference numbers. Return ONLY the " +
	"name, nothing else. If no clear counterparty is present, return UNKNOWN.\n\n" +
	"Description: "

// Gemini extracts entity names with the Gemini API. Confidence is fixed per
// outcome: the model either names a counterparty or it does not; it has no
// calibrated score of its own.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed extractor. Credentials come from the
// environment (GEMINI_API_KEY or application-default credentials).
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &Gemini{client: client, model: model}, nil
}

// ExtractEntityName asks the model for a counterparty name. The caller's
// context carries the timeout; errors and UNKNOWN both surface as
// ErrNoSuggestion so the resolver can degrade uniformly.
func (g *Gemini) ExtractEntityName(ctx context.Context, description string) (Suggestion, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: extractPrompt + description}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Suggestion{}, fmt.Errorf("generate content: %w", err)
	}

	name := cleanModelText(resp.Text())
	if name == "" || strings.EqualFold(name, "unknown") {
		return Suggestion{}, ErrNoSuggestion
	}

	return Suggestion{Name: name, Confidence: 0.6}, nil
}

// ClassifyCategory asks the model to pick one of the owner's category names
// for a description. Answers outside the given list are discarded.
func (g *Gemini) ClassifyCategory(ctx context.Context, description string, categories []string) (Suggestion, error) {
	prompt := "Classify this bank transaction into exactly one of these categories:\n" +
		strings.Join(categories, "\n") +
		"\n\nReturn ONLY the category name, nothing else. If none fit, return UNKNOWN.\n\n" +
		"Description: " + description

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Suggestion{}, fmt.Errorf("generate content: %w", err)
	}

	name := cleanModelText(resp.Text())
	for _, c := range categories {
		if strings.EqualFold(name, c) {
			return Suggestion{Name: c, Confidence: 0.6}, nil
		}
	}
	return Suggestion{}, ErrNoSuggestion
}

// cleanModelText strips Markdown fences and surrounding quotes the model
// sometimes adds despite instructions.
func cleanModelText(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	s = strings.Trim(s, "\"'` \n")
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
