// Package parser separates reasoning blocks from visible content in
// streamed LLM output.
package parser

import "strings"

// DefaultTags are the reasoning tags emitted by common models.
var DefaultTags = []string{"thinking", "think"}

// ThinkingParser splits streamed content into reasoning and message text.
// Tags may span chunk boundaries; a '<' that does not start a known tag is
// passed through as ordinary text.
type ThinkingParser struct {
	open  map[string]bool
	close map[string]bool

	pending    strings.Builder // possible tag, from '<' up to '>'
	inTag      bool
	inThinking bool
}

// NewThinkingParser creates a parser for the given tag names, or DefaultTags.
func NewThinkingParser(tags ...string) *ThinkingParser {
	if len(tags) == 0 {
		tags = DefaultTags
	}
	p := &ThinkingParser{
		open:  make(map[string]bool, len(tags)),
		close: make(map[string]bool, len(tags)),
	}
	for _, t := range tags {
		p.open["<"+t+">"] = true
		p.close["</"+t+">"] = true
	}
	return p
}

// Parse consumes a chunk and returns the reasoning and message text it
// completed. Either may be empty.
func (p *ThinkingParser) Parse(content string) (thinking, message string) {
	var th, msg strings.Builder
	emit := func(s string) {
		if p.inThinking {
			th.WriteString(s)
		} else {
			msg.WriteString(s)
		}
	}

	for _, ch := range content {
		switch {
		case ch == '<':
			if p.inTag {
				// The previous '<' did not open a tag.
				emit(p.pending.String())
			}
			p.inTag = true
			p.pending.Reset()
			p.pending.WriteRune(ch)
		case ch == '>' && p.inTag:
			p.pending.WriteRune(ch)
			tag := p.pending.String()
			p.pending.Reset()
			p.inTag = false
			switch {
			case p.open[tag]:
				p.inThinking = true
			case p.close[tag]:
				p.inThinking = false
			default:
				emit(tag)
			}
		case p.inTag:
			p.pending.WriteRune(ch)
		default:
			emit(string(ch))
		}
	}
	return th.String(), msg.String()
}

// Flush returns buffered text at the end of a stream.
func (p *ThinkingParser) Flush() (thinking, message string) {
	if !p.inTag {
		return "", ""
	}
	text := p.pending.String()
	p.pending.Reset()
	p.inTag = false
	if p.inThinking {
		return text, ""
	}
	return "", text
}

// IsInThinking returns true if currently inside a reasoning block.
func (p *ThinkingParser) IsInThinking() bool {
	return p.inThinking
}

// Strip removes reasoning blocks from a complete response.
func Strip(text string) string {
	p := NewThinkingParser()
	_, msg := p.Parse(text)
	_, rest := p.Flush()
	return msg + rest
}
