package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/entrhq/webtest/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2ePage = `<!doctype html>
<html><head><title>Sign in</title></head>
<body>
  <label for="email">Email</label>
  <input id="email" aria-label="Email address">
  <button title="Submit form" onclick="document.getElementById('out').textContent='Welcome ' + document.getElementById('email').value">Sign in</button>
  <p id="out"></p>
</body></html>`

// TestSession_EndToEnd drives a real Chromium. It needs the driver from
// `webtest install` and WEBTEST_E2E=1.
func TestSession_EndToEnd(t *testing.T) {
	if testing.Short() || os.Getenv("WEBTEST_E2E") == "" {
		t.Skip("set WEBTEST_E2E=1 to run against a real browser")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, e2ePage)
	}))
	defer srv.Close()

	rep, err := report.New(t.TempDir(), "e2e")
	require.NoError(t, err)

	sess, err := Launch(SessionOptions{Headless: true, Timeout: 5 * time.Second})
	require.NoError(t, err)
	exec := NewSessionExecutor(sess, rep, WithRetryDelay(10*time.Millisecond))

	ctx := context.Background()
	require.NoError(t, exec.Navigate(ctx, srv.URL, true))
	require.NoError(t, exec.FillForm(ctx, "Email address", "ada@example.com"))

	res, err := exec.Click(ctx, "Sign in")
	require.NoError(t, err)
	assert.False(t, res.Forced)

	ok, err := exec.VerifyTextContains(ctx, "Welcome ada@example.com", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = exec.VerifyExists(ctx, "#missing", 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	shot, err := exec.Screenshot(ctx, "signed in", false)
	require.NoError(t, err)
	assert.FileExists(t, shot)

	snap, err := exec.Snapshot(ctx, 2000)
	require.NoError(t, err)
	assert.Equal(t, "Sign in", snap.Title)

	path, err := exec.EndSession(ctx, report.RunCompleted)
	require.NoError(t, err)
	assert.Equal(t, report.MarkdownFile, filepath.Base(path))

	loaded, err := report.Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, report.RunCompleted, loaded.Status)
	// The failed verification captured one as well.
	assert.Len(t, loaded.Screenshots, 2)
}
