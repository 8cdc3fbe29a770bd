// Package tokenizer estimates token counts for providers that do not
// report usage.
package tokenizer

import (
	"sync"

	"github.com/entrhq/webtest/pkg/types"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used for estimates.
const DefaultEncoding = "cl100k_base"

// perMessageOverhead approximates the role and separator tokens the chat
// format adds around each message.
const perMessageOverhead = 4

// Tokenizer counts tokens with tiktoken, falling back to a character
// heuristic when the encoding cannot be loaded (for example offline).
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var (
	defaultOnce sync.Once
	defaultTok  *Tokenizer
)

// New loads the given encoding. A load failure yields a heuristic tokenizer
// and the error.
func New(encoding string) (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &Tokenizer{}, err
	}
	return &Tokenizer{enc: enc}, nil
}

// Default returns a shared tokenizer for DefaultEncoding.
func Default() *Tokenizer {
	defaultOnce.Do(func() {
		defaultTok, _ = New(DefaultEncoding)
	})
	return defaultTok
}

// Exact reports whether counts come from the real encoding.
func (t *Tokenizer) Exact() bool {
	return t.enc != nil
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessages returns the prompt size of a chat request.
func (t *Tokenizer) CountMessages(messages []*types.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + t.Count(m.Content)
	}
	return total
}

// Estimate builds a Usage for a request/response pair.
func (t *Tokenizer) Estimate(messages []*types.ChatMessage, completion string) *types.Usage {
	prompt := t.CountMessages(messages)
	out := t.Count(completion)
	return &types.Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}
