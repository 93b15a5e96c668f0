// Package llm provides a unified interface for interacting with multiple LLM providers.
// OpenAI-compatible endpoints (OpenAI, MiniMax, Ollama) share one HTTP client,
// Gemini speaks its own REST API and Claude goes through the Anthropic SDK.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	OpenAI  Provider = "openai"
	Gemini  Provider = "gemini"
	Claude  Provider = "claude"
	Ollama  Provider = "ollama"
	MiniMax Provider = "minimax"
)

// Config holds configuration for an LLM client.
type Config struct {
	Provider    Provider      `yaml:"provider" json:"provider" env:"LLM_PROVIDER"`
	Model       string        `yaml:"model" json:"model" env:"LLM_MODEL"`
	APIKey      string        `yaml:"api_key" json:"-" env:"LLM_API_KEY"`
	BaseURL     string        `yaml:"base_url" json:"base_url" env:"LLM_BASE_URL"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
}

// DefaultConfig returns a Config with sensible defaults. A single attempt
// per call; callers degrade on failure instead of retrying.
func DefaultConfig() Config {
	return Config{
		Provider:    OpenAI,
		Model:       "gpt-4o-mini",
		MaxRetries:  1,
		Timeout:     30 * time.Second,
		MaxTokens:   400,
		Temperature: 0,
	}
}

// Client is the unified interface for LLM interactions.
type Client interface {
	// Generate sends a prompt and returns the LLM response.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GenerateJSON sends a prompt and unmarshals the JSON response into out.
	GenerateJSON(ctx context.Context, req *Request, out any) error

	// Provider returns the name of the provider.
	Provider() Provider

	// Close releases any resources held by the client.
	Close() error
}

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"` // "user", "assistant"
	Content string `json:"content"`
}

// Request holds the parameters for an LLM generation request.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	JSONMode    bool      `json:"json_mode,omitempty"`
}

// Response holds the result of an LLM generation.
type Response struct {
	Content      string  `json:"content"`
	FinishReason string  `json:"finish_reason,omitempty"`
	TokensIn     int     `json:"tokens_in"`
	TokensOut    int     `json:"tokens_out"`
	Cost         float64 `json:"cost"`
	Model        string  `json:"model"`
	LatencyMs    int64   `json:"latency_ms"`
}

// NewClient creates a new LLM client based on the provided config.
func NewClient(cfg Config) (Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	switch cfg.Provider {
	case OpenAI, "":
		return newOpenAIClient(cfg, OpenAI)
	case MiniMax:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.minimax.io/v1"
		}
		return newOpenAIClient(cfg, MiniMax)
	case Ollama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		return newOpenAIClient(cfg, Ollama)
	case Gemini:
		return newGeminiClient(cfg)
	case Claude:
		return newClaudeClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// unmarshalJSON decodes model output, tolerating a surrounding code fence.
func unmarshalJSON(content string, out any) error {
	if err := json.Unmarshal([]byte(StripCodeFence(content)), out); err != nil {
		return fmt.Errorf("unmarshal JSON response: %w", err)
	}
	return nil
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*\\n?(.*?)\\n?```\\s*$")

// StripCodeFence removes a Markdown code fence wrapping the whole content.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}
