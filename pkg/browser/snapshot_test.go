package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		wantTitle string
		wantDesc  string
		want      []string
		wantNot   []string
		truncated bool
	}{
		{
			name: "drops scripts and styles",
			input: `<html><head>
				<title>Checkout</title>
				<meta name="description" content="Pay for your order">
				<script>track()</script>
				<style>.x{color:red}</style>
			</head><body>
				<h1 id="heading">Your cart</h1>
				<!-- promo -->
				<p class="note">Free shipping</p>
			</body></html>`,
			maxLength: 10000,
			wantTitle: "Checkout",
			wantDesc:  "Pay for your order",
			want:      []string{`<h1 id="heading">Your cart`, `<p class="note">Free shipping`},
			wantNot:   []string{"track()", "color:red", "promo", "<title>", "<body>"},
		},
		{
			name: "keeps targeting attributes",
			input: `<form action="/login" method="post">
				<input type="email" name="email" placeholder="Email" data-testid="email-input" style="x">
				<button type="submit" aria-label="Sign in" onclick="go()">Go</button>
			</form>`,
			maxLength: 10000,
			want: []string{
				`<form action="/login" method="post">`,
				`<input type="email" name="email" placeholder="Email" data-testid="email-input">`,
				`<button type="submit" aria-label="Sign in">Go</button>`,
			},
			wantNot: []string{"style=", "onclick", "</input>"},
		},
		{
			name:      "truncates long documents",
			input:     "<p>" + strings.Repeat("lorem ipsum ", 200) + "</p><p>tail</p>",
			maxLength: 100,
			want:      []string{"lorem", "..."},
			wantNot:   []string{"tail"},
			truncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := CleanHTML(tt.input, tt.maxLength)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, snap.Title)
			assert.Equal(t, tt.wantDesc, snap.Description)
			assert.Equal(t, tt.truncated, snap.Truncated)
			for _, s := range tt.want {
				assert.Contains(t, snap.HTML, s)
			}
			for _, s := range tt.wantNot {
				assert.NotContains(t, snap.HTML, s)
			}
		})
	}
}

func TestExecutorSnapshot(t *testing.T) {
	page := &fakePage{
		url:     "https://shop.example.com/cart",
		content: `<html><head><title>Cart</title></head><body><nav><a href="/">Home</a></nav></body></html>`,
	}
	e, r := newTestExecutor(t, page)

	snap, err := e.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/cart", snap.URL)
	assert.Equal(t, "Cart", snap.Title)

	out := snap.String()
	assert.Contains(t, out, "URL: https://shop.example.com/cart")
	assert.Contains(t, out, `<a href="/">Home</a>`)
	assert.Empty(t, r.Steps(), "snapshots are not report steps")
}
