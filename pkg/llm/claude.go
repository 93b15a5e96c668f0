package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultClaudeModel = "claude-3-5-haiku-20241022"

// claudeClient implements the Client interface on the Anthropic SDK.
type claudeClient struct {
	cfg    Config
	client anthropic.Client
}

func newClaudeClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", Claude)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// Attempts are counted by wrapWithRetry.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := &claudeClient{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}
	return wrapWithRetry(client, cfg.MaxRetries), nil
}

func (c *claudeClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	model := c.cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    make([]anthropic.MessageParam, 0, len(req.Messages)),
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, claudeError(err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	tokensIn := int(msg.Usage.InputTokens)
	tokensOut := int(msg.Usage.OutputTokens)
	return &Response{
		Content:      content,
		FinishReason: string(msg.StopReason),
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		Cost:         EstimateCost(string(msg.Model), tokensIn, tokensOut),
		Model:        string(msg.Model),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

// claudeError converts SDK status errors into *APIError so the retry
// wrapper can classify them.
func claudeError(err error) error {
	var sdkErr *anthropic.Error
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("%s request: %w", Claude, err)
	}
	apiErr := &APIError{Provider: Claude, StatusCode: sdkErr.StatusCode, Message: sdkErr.Error()}
	if sdkErr.Response != nil {
		apiErr.RetryAfter = parseRetryAfter(sdkErr.Response.Header.Get("Retry-After"), time.Now())
	}
	return apiErr
}

func (c *claudeClient) GenerateJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return err
	}
	return unmarshalJSON(resp.Content, out)
}

func (c *claudeClient) Provider() Provider {
	return Claude
}

func (c *claudeClient) Close() error {
	return nil
}
