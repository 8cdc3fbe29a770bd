package browser

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DefaultSnapshotLength bounds the cleaned HTML in a snapshot.
const DefaultSnapshotLength = 20000

// PageSnapshot is a compact outline of the current page given to the
// debugger role.
type PageSnapshot struct {
	URL         string
	Title       string
	Description string
	HTML        string
	Truncated   bool
}

// String renders the snapshot as prompt context.
func (s *PageSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", s.URL)
	if s.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", s.Title)
	}
	if s.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", s.Description)
	}
	b.WriteString("\nDOM outline:\n")
	b.WriteString(s.HTML)
	if s.Truncated {
		b.WriteString("\n[outline truncated]")
	}
	return b.String()
}

// Snapshot captures a cleaned DOM outline of the page. It does not record a
// report step.
func (e *Executor) Snapshot(ctx context.Context, maxLength int) (*PageSnapshot, error) {
	_, span, err := e.begin(ctx, "snapshot")
	defer func() { e.finish(span, err) }()
	if err != nil {
		return nil, err
	}
	if maxLength <= 0 {
		maxLength = DefaultSnapshotLength
	}

	raw, err := e.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	snap, err := CleanHTML(raw, maxLength)
	if err != nil {
		return nil, err
	}
	snap.URL = e.page.URL()
	return snap, nil
}

// CleanHTML reduces a document to its semantic structure: scripts, styles
// and comments are dropped, and only attributes useful for targeting
// elements are kept.
func CleanHTML(raw string, maxLength int) (*PageSnapshot, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	c := &cleaner{max: maxLength}
	c.walk(doc, 0)
	return &PageSnapshot{
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
		HTML:        strings.TrimSpace(c.b.String()),
		Truncated:   c.truncated,
	}, nil
}

var (
	skippedTags = set("script", "style", "noscript", "iframe", "embed", "object", "svg", "head")
	blockTags   = set("div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr", "td", "th",
		"form", "fieldset", "blockquote", "pre", "dialog", "label")
	voidTags    = set("area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta", "param", "source", "track", "wbr")
	globalAttrs = set("id", "class", "role", "name", "title", "aria-label", "aria-describedby", "aria-expanded", "aria-hidden")
	tagAttrs    = map[string]map[string]bool{
		"a":        set("href", "target"),
		"img":      set("src", "alt"),
		"input":    set("type", "placeholder", "value", "disabled", "checked"),
		"textarea": set("placeholder", "disabled"),
		"select":   set("disabled"),
		"option":   set("value", "selected"),
		"button":   set("type", "disabled"),
		"form":     set("action", "method"),
	}
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func keepAttr(tag, key string) bool {
	key = strings.ToLower(key)
	return globalAttrs[key] || strings.HasPrefix(key, "data-") || tagAttrs[tag][key]
}

type cleaner struct {
	b         strings.Builder
	n         int
	max       int
	truncated bool
}

func (c *cleaner) write(s string) {
	c.b.WriteString(s)
	c.n += len(s)
}

func (c *cleaner) walk(n *html.Node, depth int) {
	if c.truncated {
		return
	}
	if c.n >= c.max {
		c.truncated = true
		return
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		c.text(n.Data)
		return
	case html.ElementNode:
		c.element(n, depth)
		return
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.walk(ch, depth)
	}
}

func (c *cleaner) text(data string) {
	text := strings.Join(strings.Fields(data), " ")
	if text == "" {
		return
	}
	if remaining := c.max - c.n; len(text) > remaining {
		c.write(text[:remaining] + "...")
		c.truncated = true
		return
	}
	c.write(text)
}

func (c *cleaner) element(n *html.Node, depth int) {
	tag := strings.ToLower(n.Data)
	if skippedTags[tag] {
		return
	}
	// html and body add nothing to the outline.
	if tag == "html" || tag == "body" {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.walk(ch, depth)
		}
		return
	}

	block := blockTags[tag]
	if block {
		c.write("\n" + strings.Repeat("  ", depth))
	}
	c.write("<" + tag)
	for _, a := range n.Attr {
		if keepAttr(tag, a.Key) {
			c.write(fmt.Sprintf(` %s="%s"`, a.Key, html.EscapeString(a.Val)))
		}
	}
	c.write(">")
	if voidTags[tag] {
		return
	}

	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.walk(ch, depth+1)
	}
	if block {
		c.write("\n" + strings.Repeat("  ", depth))
	}
	c.write("</" + tag + ">")
}

func findTitle(doc *html.Node) string {
	n := findFirst(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "title" })
	if n == nil || n.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(n.FirstChild.Data)
}

func findMetaDescription(doc *html.Node) string {
	n := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "meta" && attr(n, "name") == "description"
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attr(n, "content"))
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if found := findFirst(ch, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
