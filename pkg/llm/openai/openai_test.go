package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model       string                   `json:"model"`
	Messages    []map[string]interface{} `json:"messages"`
	Stream      bool                     `json:"stream"`
	Temperature *float64                 `json:"temperature"`
	MaxTokens   int                      `json:"max_tokens"`
}

func sseServer(t *testing.T, captured *capturedRequest, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "%s\n\n", e)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteAccumulatesStream(t *testing.T) {
	var req capturedRequest
	srv := sseServer(t, &req,
		": keep-alive comment",
		`data: {"choices":[{"delta":{"role":"assistant","content":"<thinking>plan it</thinking>"}}]}`,
		`data: {"choices":[{"delta":{"content":"APPROVED: "}}]}`,
		`data: not-json`,
		`data: {"choices":[{"delta":{"content":"looks safe"},"finish_reason":"stop"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`,
		`data: [DONE]`,
	)

	p, err := NewProvider("test-key",
		WithBaseURL(srv.URL+"/"),
		WithModel("gpt-test"),
		WithDefaultTemperature(0.7),
		WithDefaultMaxTokens(256),
	)
	require.NoError(t, err)

	c, err := p.Complete(context.Background(), []*types.ChatMessage{
		types.NewSystemMessage("you review plans"),
		types.NewUserMessage("review this"),
		types.NewAssistantMessage("ok"),
	}, llm.WithTemperature(0.1))
	require.NoError(t, err)

	assert.Equal(t, "APPROVED: looks safe", c.Content)
	assert.Equal(t, "plan it", c.Thinking)
	assert.Equal(t, "gpt-test", c.Model)
	require.NotNil(t, c.Usage)
	assert.Equal(t, 17, c.Usage.TotalTokens)

	assert.Equal(t, "gpt-test", req.Model)
	assert.True(t, req.Stream)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.1, *req.Temperature, 1e-9)
	assert.Equal(t, 256, req.MaxTokens)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0]["role"])
	assert.Equal(t, "user", req.Messages[1]["role"])
	assert.Equal(t, "assistant", req.Messages[2]["role"])
}

func TestCompleteReturnsAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			p, err := NewProvider("test-key", WithBaseURL(srv.URL))
			require.NoError(t, err)

			_, err = p.Complete(context.Background(), []*types.ChatMessage{types.NewUserMessage("hi")})
			var apiErr *llm.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.retryable, llm.IsRetryable(err))
		})
	}
}

func TestNewProviderRequiresKeyForRemote(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := NewProvider("")
	assert.Error(t, err)

	p, err := NewProvider("", WithBaseURL(OllamaBaseURL))
	require.NoError(t, err)
	assert.Equal(t, OllamaBaseURL, p.BaseURL())
	assert.Equal(t, DefaultModel, p.Model())
}

func TestNewProviderReadsEnvKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "from-env")
	t.Setenv("OPENAI_BASE_URL", "")
	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.apiKey)
}

func TestBaseURLFor(t *testing.T) {
	tests := map[string]string{
		"openai":    DefaultBaseURL,
		"anthropic": AnthropicBaseURL,
		"ollama":    OllamaBaseURL,
		"azure":     "",
	}
	for name, want := range tests {
		got, err := BaseURLFor(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := BaseURLFor("bard")
	assert.Error(t, err)
}

func TestCloneWithModel(t *testing.T) {
	p, err := NewProvider("k", WithModel("a"))
	require.NoError(t, err)
	clone := p.CloneWithModel("b")
	assert.Equal(t, "b", clone.Model())
	assert.Equal(t, "a", p.Model())
}
