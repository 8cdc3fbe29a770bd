package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/logging"
	"github.com/entrhq/webtest/pkg/types"
)

// cachedProvider serves completions from a Store before asking the wrapped
// provider, and logs every Complete call.
type cachedProvider struct {
	llm.Provider
	store     *Store
	logger    *logging.Logger
	sessionID string
	role      string
	seed      int64
	replay    bool
}

// Option configures a cached provider.
type Option func(*cachedProvider)

// WithLogger routes cache diagnostics to logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *cachedProvider) {
		c.logger = l
	}
}

// WithoutReplay disables cache lookups; completions are still logged and
// stored.
func WithoutReplay() Option {
	return func(c *cachedProvider) {
		c.replay = false
	}
}

// Cached wraps p with the store. seed is mixed into the cache key so that
// separate seeds never share responses.
func Cached(p llm.Provider, store *Store, seed int64, sessionID, role string, opts ...Option) llm.Provider {
	c := &cachedProvider{
		Provider:  p,
		store:     store,
		logger:    logging.Nop(),
		sessionID: sessionID,
		role:      role,
		seed:      seed,
		replay:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *cachedProvider) Complete(ctx context.Context, messages []*types.ChatMessage, opts ...llm.CallOption) (*llm.Completion, error) {
	key := Key(c.Model(), c.seed, llm.ApplyOptions(opts...), messages)
	start := time.Now()

	if c.replay {
		entry, err := c.store.Get(ctx, key)
		if err != nil {
			c.logger.Warnf("cache lookup failed: %v", err)
		}
		if entry != nil {
			completion := &llm.Completion{
				Content:  entry.Content,
				Thinking: entry.Thinking,
				Model:    entry.Model,
				Usage:    entry.Usage,
				Cached:   true,
			}
			c.record(ctx, completion, time.Since(start))
			return completion, nil
		}
	}

	completion, err := c.Provider.Complete(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	model := completion.Model
	if model == "" {
		model = c.Model()
	}
	if err := c.store.Put(ctx, &Entry{
		Key:      key,
		Model:    model,
		Content:  completion.Content,
		Thinking: completion.Thinking,
		Usage:    completion.Usage,
	}); err != nil {
		c.logger.Warnf("cache store failed: %v", err)
	}
	c.record(ctx, completion, latency)
	return completion, nil
}

func (c *cachedProvider) record(ctx context.Context, completion *llm.Completion, latency time.Duration) {
	r := &Record{
		SessionID: c.sessionID,
		Role:      c.role,
		Model:     completion.Model,
		Latency:   latency,
		Cached:    completion.Cached,
	}
	if r.Model == "" {
		r.Model = c.Model()
	}
	if u := completion.Usage; u != nil {
		r.PromptTokens = u.PromptTokens
		r.CompletionTokens = u.CompletionTokens
		r.TotalTokens = u.TotalTokens
	}
	if err := c.store.Log(ctx, r); err != nil {
		c.logger.Warnf("completion log failed: %v", err)
	}
}

type keyMaterial struct {
	Temperature *float64             `json:"temperature,omitempty"`
	Model       string               `json:"model"`
	Messages    []*types.ChatMessage `json:"messages"`
	Seed        int64                `json:"seed"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

// Key is the deterministic fingerprint of a request.
func Key(model string, seed int64, opts llm.CallOptions, messages []*types.ChatMessage) string {
	b, _ := json.Marshal(keyMaterial{
		Model:       model,
		Seed:        seed,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Messages:    messages,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
