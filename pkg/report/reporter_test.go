package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(time.Second)
		return t
	}
}

var testStart = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

func newTestReporter(t *testing.T) (*Reporter, string) {
	t.Helper()
	base := t.TempDir()
	r, err := New(base, "login flow", WithClock(fixedClock(testStart)))
	require.NoError(t, err)
	return r, base
}

func TestNewCreatesRunLayout(t *testing.T) {
	r, base := newTestReporter(t)

	assert.Equal(t, filepath.Join(base, "run_20240102_150405"), r.RunDir())
	assert.DirExists(t, filepath.Join(r.RunDir(), ScreenshotDir))

	snap := r.Snapshot()
	assert.Equal(t, RunRunning, snap.Status)
	assert.Nil(t, snap.EndTime)
	assert.NotEmpty(t, snap.ID)
}

func TestNewSameSecondGetsDistinctDirs(t *testing.T) {
	base := t.TempDir()
	clock := func() time.Time { return testStart }

	a, err := New(base, "a", WithClock(clock))
	require.NoError(t, err)
	b, err := New(base, "b", WithClock(clock))
	require.NoError(t, err)

	assert.NotEqual(t, a.RunDir(), b.RunDir())
	assert.Equal(t, "run_20240102_150405_2", filepath.Base(b.RunDir()))
}

func TestAddStepRecordsInOrder(t *testing.T) {
	r, _ := newTestReporter(t)

	var hooked []string
	r.onStep = func(s Step) { hooked = append(hooked, s.Description) }

	r.AddStep("navigate to https://example.com", StatusSuccess, nil)
	r.AddStep("click #submit", StatusWarning, errors.New("timeout 10000ms exceeded"))
	r.AddStep("weird", Status("Bogus"), nil)

	steps := r.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, StatusSuccess, steps[0].Status)
	assert.Equal(t, "timeout 10000ms exceeded", steps[1].Error)
	assert.Equal(t, StatusError, steps[2].Status)
	assert.Equal(t, []string{"navigate to https://example.com", "click #submit", "weird"}, hooked)
}

func TestAddStepAfterCompleteIsIgnored(t *testing.T) {
	r, _ := newTestReporter(t)
	_, err := r.Complete(RunCompleted)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.AddStep("late", StatusSuccess, nil)
	})
	assert.Empty(t, r.Steps())
}

func TestAddStepRecoversFromHookPanic(t *testing.T) {
	r, _ := newTestReporter(t)
	r.onStep = func(Step) { panic("listener broke") }

	assert.NotPanics(t, func() {
		r.AddStep("click", StatusSuccess, nil)
	})
	assert.Len(t, r.Steps(), 1)
}

func TestScreenshotPathNaming(t *testing.T) {
	r, _ := newTestReporter(t)

	p := r.ScreenshotPath("error click #submit")
	assert.Equal(t, filepath.Join(r.RunDir(), ScreenshotDir), filepath.Dir(p))
	assert.Regexp(t, `^error_click__submit_\d{8}_\d{6}\.png$`, filepath.Base(p))
}

func TestScreenshotPathAvoidsCollisions(t *testing.T) {
	base := t.TempDir()
	r, err := New(base, "s", WithClock(func() time.Time { return testStart }))
	require.NoError(t, err)

	first := r.ScreenshotPath("shot")
	require.NoError(t, os.WriteFile(first, []byte("png"), 0644))
	second := r.ScreenshotPath("shot")

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, "shot_20240102_150405_2.png"))
}

func TestAddScreenshotStoresRelativePath(t *testing.T) {
	r, _ := newTestReporter(t)
	r.AddStep("click #buy", StatusError, errors.New("element not found"))

	inside := r.ScreenshotPath("error_click")
	require.NoError(t, os.WriteFile(inside, []byte("png"), 0644))
	r.AddScreenshot(inside, "error_click")

	outside := filepath.Join(t.TempDir(), "external.png")
	require.NoError(t, os.WriteFile(outside, []byte("png"), 0644))
	r.AddScreenshot(outside, "external")

	shots := r.Snapshot().Screenshots
	require.Len(t, shots, 2)
	for _, s := range shots {
		assert.False(t, filepath.IsAbs(s.Path), s.Path)
		assert.True(t, strings.HasPrefix(s.Path, ScreenshotDir+"/"), s.Path)
		assert.FileExists(t, filepath.Join(r.RunDir(), filepath.FromSlash(s.Path)))
		assert.Equal(t, 0, s.Step)
	}
	assert.Equal(t, "screenshots/external.png", shots[1].Path)
}

func TestAddScreenshotMissingFileIsLogged(t *testing.T) {
	r, _ := newTestReporter(t)
	assert.NotPanics(t, func() {
		r.AddScreenshot(filepath.Join(t.TempDir(), "missing.png"), "missing")
	})
	assert.Empty(t, r.Snapshot().Screenshots)
}

func TestCompleteWritesReports(t *testing.T) {
	r, _ := newTestReporter(t)
	r.AddStep("navigate to /login", StatusSuccess, nil)
	r.AddStep("fill #user", StatusFailed, errors.New("element not found"))

	path, err := r.Complete(RunFailed)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.RunDir(), MarkdownFile), path)
	assert.FileExists(t, filepath.Join(r.RunDir(), JSONFile))
	assert.Equal(t, path, r.Path())

	select {
	case <-r.Done():
	default:
		t.Fatal("Done channel should be closed after Complete")
	}

	md, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(md)
	assert.Contains(t, content, "# Test Report: login flow")
	assert.Contains(t, content, "**Status:** Failed")
	assert.Contains(t, content, "1. ✅ **Success** navigate to /login")
	assert.Contains(t, content, "Error: `element not found`")
	assert.Contains(t, content, "Step 2 did not pass: fill #user, because element not found.")
}

func TestCompleteIsIdempotent(t *testing.T) {
	r, _ := newTestReporter(t)
	r.AddStep("step", StatusSuccess, nil)

	path1, err := r.Complete(RunCompleted)
	require.NoError(t, err)
	first, err := os.ReadFile(path1)
	require.NoError(t, err)

	path2, err := r.Complete(RunFailed)
	require.NoError(t, err)
	second, err := os.ReadFile(path2)
	require.NoError(t, err)

	assert.Equal(t, path1, path2)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, RunCompleted, r.Snapshot().Status)
}

func TestStatusKeepsFirstCompletion(t *testing.T) {
	r, _ := newTestReporter(t)
	assert.Equal(t, RunRunning, r.Status())

	_, err := r.Complete(RunFailed)
	require.NoError(t, err)
	_, err = r.Complete(RunCompleted)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, r.Status())
}

func TestCompleteRejectsRunning(t *testing.T) {
	r, _ := newTestReporter(t)
	_, err := r.Complete(RunRunning)
	assert.ErrorIs(t, err, ErrRunning)
	assert.False(t, r.Completed())
	assert.Empty(t, r.Path())
}

func TestEndTimeSetIffNotRunning(t *testing.T) {
	r, _ := newTestReporter(t)
	assert.Nil(t, r.Snapshot().EndTime)

	_, err := r.Complete(RunCompleted)
	require.NoError(t, err)
	snap := r.Snapshot()
	require.NotNil(t, snap.EndTime)
	assert.True(t, snap.EndTime.After(snap.StartTime))
}

func TestReportRoundTrip(t *testing.T) {
	r, _ := newTestReporter(t)
	r.AddStep("navigate", StatusSuccess, nil)
	r.AddStep("click #submit", StatusWarning, errors.New("forced"))
	shot := r.ScreenshotPath("after_click")
	require.NoError(t, os.WriteFile(shot, []byte("png"), 0644))
	r.AddScreenshot(shot, "after_click")
	r.AddStep("verify text", StatusFailed, errors.New("missing"))

	_, err := r.Complete(RunFailed)
	require.NoError(t, err)
	want := r.Snapshot()

	got, err := Load(r.RunDir())
	require.NoError(t, err)

	assert.Equal(t, want.Scenario, got.Scenario)
	assert.Equal(t, want.Status, got.Status)
	require.Len(t, got.Steps, len(want.Steps))
	for i := range want.Steps {
		assert.Equal(t, want.Steps[i].Description, got.Steps[i].Description)
		assert.Equal(t, want.Steps[i].Status, got.Steps[i].Status)
		assert.Equal(t, want.Steps[i].Error, got.Steps[i].Error)
		assert.True(t, want.Steps[i].Timestamp.Equal(got.Steps[i].Timestamp))
	}
	require.Len(t, got.Screenshots, 1)
	assert.Equal(t, want.Screenshots[0].Path, got.Screenshots[0].Path)
	assert.Equal(t, 1, got.Screenshots[0].Step)
	assert.Equal(t, Summary{Total: 3, Succeeded: 1, Warnings: 1, Failed: 1, Duration: want.Summary.Duration}, got.Summary)
}

func TestLoadRejectsInconsistentReport(t *testing.T) {
	dir := t.TempDir()
	body := `{"scenario":"x","status":"Completed","start_time":"2024-01-02T15:04:05Z","steps":[],"screenshots":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, JSONFile), []byte(body), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestAnnouncement(t *testing.T) {
	got := Announcement("reports/run_20240102_150405/report.md")
	assert.Equal(t, "You can find the full test report at: reports/run_20240102_150405/report.md", got)
	assert.True(t, strings.HasPrefix(got, CompletionMarker))
}

func TestParseRunStatus(t *testing.T) {
	s, err := ParseRunStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, s)

	_, err = ParseRunStatus("PENDING")
	assert.Error(t, err)
}

func TestNarrate(t *testing.T) {
	tests := []struct {
		step Step
		want string
	}{
		{Step{Description: "click #a", Status: StatusSuccess}, "Step 1 completed successfully: click #a."},
		{Step{Description: "click #a", Status: StatusWarning, Error: "forced"}, "Step 1 completed with a warning: click #a (forced)."},
		{Step{Description: "hover #m", Status: StatusFailed}, "Step 1 did not pass: hover #m."},
		{Step{Description: "fill #u", Status: StatusError, Error: "a\nb"}, "Step 1 could not be performed: fill #u, error: a b."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Narrate(1, tt.step))
	}
}
