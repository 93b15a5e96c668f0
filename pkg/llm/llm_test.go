package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_InvalidProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "invalid", APIKey: "test"})
	if err == nil {
		t.Fatal("expected error for invalid provider")
	}
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	for _, p := range []Provider{OpenAI, MiniMax, Gemini, Claude} {
		_, err := NewClient(Config{Provider: p})
		if err == nil {
			t.Fatalf("expected error for %s without API key", p)
		}
	}
}

func TestNewClient_Ollama(t *testing.T) {
	client, err := NewClient(Config{Provider: Ollama})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Provider() != Ollama {
		t.Fatalf("expected Ollama provider, got %s", client.Provider())
	}
	client.Close()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != OpenAI {
		t.Fatalf("expected OpenAI, got %s", cfg.Provider)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Fatalf("expected gpt-4o-mini, got %s", cfg.Model)
	}
}

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost("gpt-4o-mini", 1000, 500)
	if cost <= 0 {
		t.Fatalf("expected positive cost, got %f", cost)
	}
	// gpt-4o-mini: $0.15/1M in, $0.60/1M out
	// 1000 in = 0.00015, 500 out = 0.0003 => total ~0.00045
	expected := 0.00015 + 0.0003
	if cost < expected*0.9 || cost > expected*1.1 {
		t.Fatalf("cost %f not in expected range around %f", cost, expected)
	}
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	cost := EstimateCost("unknown-model", 1000, 500)
	if cost != 0 {
		t.Fatalf("expected 0 cost for unknown model, got %f", cost)
	}
}

// TestRetryClient_NoRetryOnSuccess verifies no retry happens on success.
func TestRetryClient_NoRetryOnSuccess(t *testing.T) {
	calls := 0
	mock := &mockClient{
		generateFn: func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			return &Response{Content: "hello"}, nil
		},
	}
	rc := wrapWithRetry(mock, 3)
	resp, err := rc.Generate(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Fatalf("expected 'hello', got '%s'", resp.Content)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

type mockClient struct {
	generateFn func(ctx context.Context, req *Request) (*Response, error)
}

func (m *mockClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	return m.generateFn(ctx, req)
}
func (m *mockClient) GenerateJSON(ctx context.Context, req *Request, out any) error {
	return nil
}
func (m *mockClient) Provider() Provider { return "mock" }
func (m *mockClient) Close() error       { return nil }

func TestNewClient_MiniMax(t *testing.T) {
	client, err := NewClient(Config{Provider: MiniMax, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if client.Provider() != MiniMax {
		t.Fatalf("expected MiniMax provider, got %s", client.Provider())
	}
}

func TestEstimateCost_DatedSnapshot(t *testing.T) {
	got := EstimateCost("gpt-4o-mini-2024-07-18", 1_000_000, 0)
	if got != 0.15 {
		t.Fatalf("expected gpt-4o-mini input price, got %f", got)
	}
}

func TestEstimateCost_MiniMax(t *testing.T) {
	cost := EstimateCost("MiniMax-M2.5", 1000, 500)
	if cost <= 0 {
		t.Fatalf("expected positive cost for MiniMax-M2.5, got %f", cost)
	}
}

func TestStripThinkTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no tags", "Hello world", "Hello world"},
		{"with think tags", "<think>reasoning here</think>Actual response", "Actual response"},
		{"multiline think", "<think>\nstep 1\nstep 2\n</think>\nFinal answer", "Final answer"},
		{"empty content", "", ""},
		{"only think", "<think>only thinking</think>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripThinkTags(tt.input)
			if got != tt.expected {
				t.Errorf("stripThinkTags(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"prose stays", "here you go: {\"a\":1}", `here you go: {"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.input); got != tt.want {
				t.Errorf("StripCodeFence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRetryClient_StopsOnPermanentError(t *testing.T) {
	calls := 0
	mock := &mockClient{
		generateFn: func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			return nil, errors.New("400 bad request")
		},
	}
	_, err := wrapWithRetry(mock, 3).Generate(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestWrapWithRetry_SingleAttemptIsUnwrapped(t *testing.T) {
	mock := &mockClient{}
	if got := wrapWithRetry(mock, 1); got != Client(mock) {
		t.Fatal("expected the inner client back for a single attempt")
	}
}

func TestOpenAIClient_GenerateJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("ollama request should carry no auth header, got %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["model"] != "llama3" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "llama3",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "<think>hmm</think>```json\n{\"tags\":[\"AI\"]}\n```"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: Ollama, Model: "llama3", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	var out struct {
		Tags []string `json:"tags"`
	}
	err = client.GenerateJSON(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "classify"}},
	}, &out)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if len(out.Tags) != 1 || out.Tags[0] != "AI" {
		t.Fatalf("unexpected tags %v", out.Tags)
	}
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: OpenAI, APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Generate(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "x"}}})
	if err == nil || !isRetryableError(err) {
		t.Fatalf("expected retryable 429 error, got %v", err)
	}
}

func TestRetryClient_RetriesTemporaryErrors(t *testing.T) {
	calls := 0
	mock := &mockClient{
		generateFn: func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			if calls < 2 {
				return nil, &APIError{Provider: "mock", StatusCode: http.StatusServiceUnavailable, Message: "busy"}
			}
			return &Response{Content: "ok"}, nil
		},
	}
	rc := wrapWithRetry(mock, 3).(*retryClient)
	rc.baseDelay = time.Millisecond

	resp, err := rc.Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" || calls != 2 {
		t.Fatalf("expected success on the second call, got %q after %d calls", resp.Content, calls)
	}
}

func TestRetryClient_GivesUp(t *testing.T) {
	calls := 0
	mock := &mockClient{
		generateFn: func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			return nil, &APIError{Provider: "mock", StatusCode: http.StatusTooManyRequests, Message: "slow down"}
		},
	}
	rc := wrapWithRetry(mock, 2).(*retryClient)
	rc.baseDelay = time.Millisecond

	_, err := rc.Generate(context.Background(), &Request{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected the last APIError to be wrapped, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	rc := &retryClient{baseDelay: 500 * time.Millisecond}
	if got := rc.backoffDelay(2, errors.New("x")); got != 2*time.Second {
		t.Errorf("attempt 2: got %v, want 2s", got)
	}
	if got := rc.backoffDelay(10, errors.New("x")); got != maxBackoff {
		t.Errorf("attempt 10: got %v, want cap %v", got, maxBackoff)
	}
	withHint := &APIError{StatusCode: 429, RetryAfter: 7 * time.Second}
	if got := rc.backoffDelay(0, withHint); got != 7*time.Second {
		t.Errorf("Retry-After: got %v, want 7s", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"12", 12 * time.Second},
		{"-3", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"server error", &APIError{StatusCode: 502}, true},
		{"bad request", &APIError{StatusCode: 400}, false},
		{"reset", errors.New("read: connection reset by peer"), true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGeminiClient_GenerateJSON(t *testing.T) {
	var mimeTypes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "k" {
			t.Errorf("unexpected api key header %q", got)
		}
		if r.URL.Query().Get("key") != "" {
			t.Error("api key must not travel in the query string")
		}
		var body geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "be brief" {
			t.Errorf("system instruction not sent: %+v", body.SystemInstruction)
		}
		if len(body.Contents) != 2 || body.Contents[1].Role != "model" {
			t.Errorf("assistant turn should map to model role: %+v", body.Contents)
		}
		mimeTypes = append(mimeTypes, body.GenerationConfig.ResponseMimeType)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"parts": []map[string]string{{"text": "```json\n{\"tags\":"}, {"text": "[\"Markets\"]}\n```"}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{"promptTokenCount": 1000, "candidatesTokenCount": 500},
			"modelVersion":  "gemini-2.0-flash-001",
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: Gemini, Model: "gemini-2.0-flash", APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if client.Provider() != Gemini {
		t.Fatalf("expected Gemini provider, got %s", client.Provider())
	}

	var out struct {
		Tags []string `json:"tags"`
	}
	err = client.GenerateJSON(context.Background(), &Request{
		System: "be brief",
		Messages: []Message{
			{Role: "user", Content: "classify"},
			{Role: "assistant", Content: "ok"},
		},
	}, &out)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if len(out.Tags) != 1 || out.Tags[0] != "Markets" {
		t.Fatalf("unexpected tags %v", out.Tags)
	}

	resp, err := client.Generate(context.Background(), &Request{
		System:   "be brief",
		Messages: []Message{{Role: "user", Content: "x"}, {Role: "assistant", Content: "y"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(mimeTypes) != 2 || mimeTypes[0] != "application/json" || mimeTypes[1] != "" {
		t.Fatalf("JSON mode should set the response mime type only for GenerateJSON, got %q", mimeTypes)
	}
	if resp.Model != "gemini-2.0-flash-001" || resp.Cost <= 0 {
		t.Fatalf("expected priced snapshot model, got %q cost %v", resp.Model, resp.Cost)
	}
}

func TestGeminiClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: Gemini, APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Generate(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "x"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Provider != Gemini || apiErr.Message != "quota exceeded" || apiErr.RetryAfter != 7*time.Second {
		t.Fatalf("unexpected error fields %+v", apiErr)
	}
	if !isRetryableError(err) {
		t.Fatal("429 should be retryable")
	}
}
