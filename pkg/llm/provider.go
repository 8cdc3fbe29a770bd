// Package llm provides abstractions for LLM provider integration.
//
// The roles of a test session treat generation as a blocking
// request/response call:
//
//	provider, err := openai.NewProvider(apiKey, openai.WithModel("gpt-4o"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	completion, err := provider.Complete(ctx, []*types.ChatMessage{
//	    types.NewSystemMessage(prompt),
//	    types.NewUserMessage(task),
//	}, llm.WithTemperature(0.2))
//
// Decorators such as WithRetry and cache.Cached wrap any Provider.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/webtest/pkg/types"
)

// ContentType distinguishes streamed reasoning from the visible message.
type ContentType string

const (
	ContentTypeMessage  ContentType = "message"
	ContentTypeThinking ContentType = "thinking"
)

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Error    error
	Usage    *types.Usage
	Content  string
	Role     string
	Type     ContentType
	Finished bool
}

// IsError returns true if the chunk carries an error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// Completion is the accumulated result of a call.
type Completion struct {
	Content  string
	Thinking string
	Model    string
	Usage    *types.Usage
	Cached   bool
}

// CallOptions are per-call generation parameters.
type CallOptions struct {
	// Temperature is nil when the provider default should be used.
	Temperature *float64
	// MaxTokens of zero leaves the ceiling to the provider.
	MaxTokens int
}

// CallOption configures a single call.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens sets the completion token ceiling.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts into a CallOptions value.
func ApplyOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Provider defines the interface for LLM integrations.
type Provider interface {
	// StreamCompletion sends messages and streams back response chunks. The
	// channel is closed when streaming completes or an error occurs; errors
	// after the stream started arrive as chunks with Error set.
	StreamCompletion(ctx context.Context, messages []*types.ChatMessage, opts ...CallOption) (<-chan *StreamChunk, error)

	// Complete sends messages and returns the full response.
	Complete(ctx context.Context, messages []*types.ChatMessage, opts ...CallOption) (*Completion, error)

	// Model returns the model name being used.
	Model() string
}

// Accumulate drains a stream into a Completion.
func Accumulate(stream <-chan *StreamChunk) (*Completion, error) {
	c := &Completion{}
	for chunk := range stream {
		if chunk.IsError() {
			// Drain so the producer can exit.
			for range stream {
			}
			return nil, chunk.Error
		}
		if chunk.Usage != nil {
			c.Usage = chunk.Usage
		}
		if chunk.Type == ContentTypeThinking {
			c.Thinking += chunk.Content
		} else {
			c.Content += chunk.Content
		}
	}
	return c, nil
}

// APIError is a non-2xx response from a provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth retrying: retryable API errors
// and transport failures are, context cancellation and client errors are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// TransportError wraps a failure to reach the provider at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to send request: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
