// Package openai talks to chat completion endpoints that follow the OpenAI wire format.
//
// The same provider serves OpenAI, Azure OpenAI, Anthropic's
// OpenAI-compatible endpoint and local servers such as Ollama; only the base
// URL and key differ:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("LLM_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	    openai.WithRequestTimeout(2*time.Minute),
//	)
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/llm/parser"
	"github.com/entrhq/webtest/pkg/types"
	"github.com/openai/openai-go"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// AnthropicBaseURL is Anthropic's OpenAI-compatible endpoint.
	AnthropicBaseURL = "https://api.anthropic.com/v1"

	// OllamaBaseURL is the default local Ollama endpoint.
	OllamaBaseURL = "http://localhost:11434/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
)

// Provider is an llm.Provider over an OpenAI-compatible HTTP endpoint.
type Provider struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature *float64
	maxTokens   int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel picks the model name sent with every request.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the provider at another endpoint, e.g. Azure or Ollama.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithRequestTimeout bounds each HTTP request, including the streamed body.
func WithRequestTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithDefaultTemperature sets the temperature used when a call does not
// specify one.
func WithDefaultTemperature(t float64) ProviderOption {
	return func(p *Provider) {
		p.temperature = &t
	}
}

// WithDefaultMaxTokens sets the token ceiling used when a call does not
// specify one.
func WithDefaultMaxTokens(n int) ProviderOption {
	return func(p *Provider) {
		p.maxTokens = n
	}
}

// NewProvider creates a new OpenAI-compatible provider.
//
// If apiKey is empty, LLM_API_KEY and then OPENAI_API_KEY are consulted. A
// key is not required when the base URL points at a local server.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("LLM_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	p := &Provider{
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = strings.TrimRight(envBaseURL, "/")
		}
	}

	if p.apiKey == "" && !isLocal(p.baseURL) {
		return nil, fmt.Errorf("API key is required (provide via parameter or LLM_API_KEY environment variable)")
	}
	return p, nil
}

// BaseURLFor returns the default base URL for a provider name.
func BaseURLFor(provider string) (string, error) {
	switch strings.ToLower(provider) {
	case "", "openai":
		return DefaultBaseURL, nil
	case "anthropic":
		return AnthropicBaseURL, nil
	case "ollama":
		return OllamaBaseURL, nil
	case "azure":
		// Azure endpoints are per-resource and must be configured explicitly.
		return "", nil
	}
	return "", fmt.Errorf("unsupported LLM provider %q", provider)
}

func isLocal(baseURL string) bool {
	return strings.Contains(baseURL, "://localhost") || strings.Contains(baseURL, "://127.0.0.1")
}

// CloneWithModel returns a shallow copy of p configured to use the given
// model. The clone shares the HTTP client and credentials.
func (p *Provider) CloneWithModel(model string) llm.Provider {
	clone := *p
	clone.model = model
	return &clone
}

// StreamCompletion sends messages to the API and streams back response chunks.
//
// The SSE stream is read by hand rather than through the SDK client, since
// compatible servers differ in comment lines and chunk framing. Lines that
// are not data lines are skipped.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.ChatMessage, opts ...llm.CallOption) (<-chan *llm.StreamChunk, error) {
	resp, err := p.sendStreamRequest(ctx, messages, llm.ApplyOptions(opts...))
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStreamResponse(ctx, resp, chunks)
	return chunks, nil
}

// requestBody builds the chat completion payload
func (p *Provider) requestBody(messages []*types.ChatMessage, o llm.CallOptions) map[string]interface{} {
	body := map[string]interface{}{
		"model":          p.model,
		"messages":       convertToOpenAIMessages(messages),
		"stream":         true,
		"stream_options": map[string]bool{"include_usage": true},
	}

	temperature := p.temperature
	if o.Temperature != nil {
		temperature = o.Temperature
	}
	if temperature != nil {
		body["temperature"] = *temperature
	}

	maxTokens := p.maxTokens
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	return body
}

// sendStreamRequest posts the payload and checks the status.
func (p *Provider) sendStreamRequest(ctx context.Context, messages []*types.ChatMessage, o llm.CallOptions) (*http.Response, error) {
	bodyBytes, err := json.Marshal(p.requestBody(messages, o))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llm.TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &llm.APIError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("(failed to read error body: %v)", readErr)}
		}
		return nil, &llm.APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}

// sseChunk is the subset of a streamed completion chunk we consume
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// processStreamResponse forwards decoded deltas until [DONE] or EOF.
func (p *Provider) processStreamResponse(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	thinking := parser.NewThinkingParser()
	role := ""

	send := func(c *llm.StreamChunk) bool {
		select {
		case chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}
	emit := func(th, msg string) bool {
		if th != "" && !send(&llm.StreamChunk{Content: th, Type: llm.ContentTypeThinking, Role: role}) {
			return false
		}
		if msg != "" && !send(&llm.StreamChunk{Content: msg, Type: llm.ContentTypeMessage, Role: role}) {
			return false
		}
		return true
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !isValidSSELine(line) {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			if emit(thinking.Flush()) {
				send(&llm.StreamChunk{Finished: true})
			}
			return
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // Skip malformed chunks silently
		}

		if chunk.Usage != nil {
			usage := &types.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
			if !send(&llm.StreamChunk{Usage: usage}) {
				return
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if role == "" && delta.Role != "" {
			role = delta.Role
		}
		if delta.Content != "" && !emit(thinking.Parse(delta.Content)) {
			return
		}
	}

	if !emit(thinking.Flush()) {
		return
	}
	if err := scanner.Err(); err != nil {
		send(&llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)})
	}
}

// isValidSSELine reports whether line carries a data payload.
func isValidSSELine(line string) bool {
	return line != "" && !strings.HasPrefix(line, ":") && strings.HasPrefix(line, "data: ")
}

// Complete sends messages and returns the full response.
func (p *Provider) Complete(ctx context.Context, messages []*types.ChatMessage, opts ...llm.CallOption) (*llm.Completion, error) {
	stream, err := p.StreamCompletion(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	completion, err := llm.Accumulate(stream)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	completion.Model = p.model
	return completion, nil
}

// Model returns the model name being used.
func (p *Provider) Model() string {
	return p.model
}

// BaseURL returns the base URL being used.
func (p *Provider) BaseURL() string {
	return p.baseURL
}

// convertToOpenAIMessages converts prompt messages to OpenAI's ChatCompletionMessageParamUnion format.
func convertToOpenAIMessages(messages []*types.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.ChatSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case types.ChatAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		default:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}
