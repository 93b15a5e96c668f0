// Package enrich attaches a summary, tags, sentiment and relevance score to
// every item that survives dedupe, degrading to deterministic fallbacks when
// the classifier misbehaves.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/RobinCoderZhao/newsdigest/pkg/llm"
)

// Tags is the closed vocabulary offered to the classifier.
var Tags = []string{"AI", "Markets", "Startups", "Product", "Regulation", "M&A", "Hiring", "Research", "Other"}

// Request is what a classifier gets to see of an item. There is no
// guarantee the article body is reachable from URL.
type Request struct {
	Title   string
	URL     string
	Snippet string
}

// Classifier returns the raw classification text for one item. The text is
// expected to hold a JSON object but may be anything; a returned error means
// no response was obtained at all.
type Classifier interface {
	Classify(ctx context.Context, req Request) (string, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, req Request) (string, error)

func (f ClassifierFunc) Classify(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// LLMClassifier classifies items with a single chat completion per item.
type LLMClassifier struct {
	client llm.Client
}

// NewLLMClassifier creates a classifier backed by client.
func NewLLMClassifier(client llm.Client) *LLMClassifier {
	return &LLMClassifier{client: client}
}

func (c *LLMClassifier) Classify(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.Generate(ctx, &llm.Request{
		System:   classifierSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: classifierPrompt(req)}},
		JSONMode: true,
	})
	if err != nil {
		return "", fmt.Errorf("classify %q: %w", req.Title, err)
	}
	return resp.Content, nil
}

func classifierPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(classifierInstructions)
	sb.WriteString("\n\nTitle: ")
	sb.WriteString(req.Title)
	sb.WriteString("\nURL: ")
	sb.WriteString(req.URL)
	if req.Snippet != "" {
		sb.WriteString("\nSnippet: ")
		sb.WriteString(req.Snippet)
	}
	sb.WriteString("\n\nIf you can read the article, summarize it; if not, summarize from the title and snippet.")
	return sb.String()
}

const classifierSystemPrompt = "You are a precise news summarizer."

var classifierInstructions = `You are a concise news summarizer. Given an article title and url (and optionally a short snippet), produce:
- a 1-2 sentence factual summary (no opinion)
- topic tags (choose from: ` + strings.Join(Tags, ", ") + `)
- a short sentiment label (Positive, Neutral, Negative)
- a relevance score 0-1 (as a float)
Return JSON only: {"summary": "...", "tags": ["AI"], "sentiment": "Neutral", "score": 0.83}`
