package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/webtest/pkg/logging"
	"github.com/google/uuid"
)

const (
	// TimestampLayout is used for run directory and screenshot names.
	TimestampLayout = "20060102_150405"

	// MarkdownFile and JSONFile are the rendered report names inside a run dir.
	MarkdownFile = "report.md"
	JSONFile     = "report.json"

	// ScreenshotDir is the screenshot subdirectory inside a run dir.
	ScreenshotDir = "screenshots"
)

// ErrRunning is returned when Complete is asked to finalize with RunRunning.
var ErrRunning = errors.New("report: cannot complete a run with status Running")

// Reporter accumulates steps and screenshots for a single run.
type Reporter struct {
	mu     sync.Mutex
	report RunReport
	runDir string
	shots  string

	logger *logging.Logger
	clock  func() time.Time
	onStep func(Step)

	once        sync.Once
	done        chan struct{}
	path        string
	completeErr error
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides time.Now, used for names and timestamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Reporter) {
		r.clock = clock
	}
}

// WithLogger sets the logger used for reporting failures.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// WithStepHook registers a callback invoked after every recorded step.
func WithStepHook(fn func(Step)) Option {
	return func(r *Reporter) {
		r.onStep = fn
	}
}

// New creates the run directory under baseDir and returns a Reporter for it.
// Sessions started within the same second get a numeric suffix so their
// directories never collide.
func New(baseDir, scenario string, opts ...Option) (*Reporter, error) {
	r := &Reporter{
		clock: time.Now,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Nop()
	}
	if scenario == "" {
		scenario = "Unnamed Scenario"
	}

	start := r.clock()
	runDir, err := createRunDir(baseDir, start)
	if err != nil {
		return nil, err
	}
	shots := filepath.Join(runDir, ScreenshotDir)
	if err := os.MkdirAll(shots, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	r.runDir = runDir
	r.shots = shots
	r.report = RunReport{
		ID:          uuid.New().String(),
		Scenario:    scenario,
		Status:      RunRunning,
		StartTime:   start,
		Steps:       []Step{},
		Screenshots: []Screenshot{},
	}
	r.logger.Infof("report started for %q in %s", scenario, runDir)
	return r, nil
}

func createRunDir(baseDir string, start time.Time) (string, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	base := "run_" + start.Format(TimestampLayout)
	for n := 1; n < 1000; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		dir := filepath.Join(baseDir, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return "", fmt.Errorf("too many runs started at %s", base)
}

// RunDir returns the absolute or base-relative run directory.
func (r *Reporter) RunDir() string {
	return r.runDir
}

// AddStep appends a step. It never fails: problems are logged and the step
// is dropped only when the report is already finalized.
func (r *Reporter) AddStep(description string, status Status, stepErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("recovered while recording step %q: %v", description, rec)
		}
	}()

	if !status.Valid() {
		r.logger.Warnf("unknown step status %q for %q, recording as Error", status, description)
		status = StatusError
	}
	step := Step{
		Description: description,
		Status:      status,
		Timestamp:   r.clock(),
	}
	if stepErr != nil {
		step.Error = stepErr.Error()
	}

	r.mu.Lock()
	if r.report.Status != RunRunning {
		r.mu.Unlock()
		r.logger.Warnf("ignoring step %q after report completion", description)
		return
	}
	r.report.Steps = append(r.report.Steps, step)
	hook := r.onStep
	r.mu.Unlock()

	r.logger.Debugf("step [%s] %s", status, description)
	if hook != nil {
		hook(step)
	}
}

// ScreenshotPath returns a fresh absolute path inside the screenshot
// directory named <label>_<YYYYMMDD_HHMMSS>.png.
func (r *Reporter) ScreenshotPath(label string) string {
	name := fmt.Sprintf("%s_%s", sanitizeLabel(label), r.clock().Format(TimestampLayout))
	return uniquePath(filepath.Join(r.shots, name+".png"))
}

// AddScreenshot registers an image with the report. Images outside the run
// directory are copied in; the stored path is always relative to the run
// directory. Failures are logged and never returned.
func (r *Reporter) AddScreenshot(srcPath, name string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("recovered while adding screenshot %q: %v", srcPath, rec)
		}
	}()

	dst, err := r.relocate(srcPath)
	if err != nil {
		r.logger.Errorf("failed to add screenshot %q: %v", srcPath, err)
		return
	}
	rel, err := filepath.Rel(r.runDir, dst)
	if err != nil {
		r.logger.Errorf("failed to relativize screenshot %q: %v", dst, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.report.Status != RunRunning {
		r.logger.Warnf("ignoring screenshot %q after report completion", name)
		return
	}
	r.report.Screenshots = append(r.report.Screenshots, Screenshot{
		Name:      name,
		Path:      filepath.ToSlash(rel),
		Step:      len(r.report.Steps) - 1,
		Timestamp: r.clock(),
	})
}

func (r *Reporter) relocate(src string) (string, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	absShots, err := filepath.Abs(r.shots)
	if err != nil {
		return "", err
	}
	if filepath.Dir(absSrc) == absShots {
		if _, err := os.Stat(absSrc); err != nil {
			return "", err
		}
		return filepath.Join(r.shots, filepath.Base(absSrc)), nil
	}

	dst := uniquePath(filepath.Join(r.shots, filepath.Base(src)))
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Steps returns a copy of the recorded steps.
func (r *Reporter) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Step(nil), r.report.Steps...)
}

// Snapshot returns a copy of the current report.
func (r *Reporter) Snapshot() RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.report
	out.Steps = append([]Step(nil), r.report.Steps...)
	out.Screenshots = append([]Screenshot(nil), r.report.Screenshots...)
	return out
}

// Status returns the run status: Running until Complete, then the status
// the report was written with.
func (r *Reporter) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report.Status
}

// Complete finalizes the run with the given status, writes report.md and
// report.json, and returns the markdown path. Only the first call writes;
// later calls return the first result unchanged.
func (r *Reporter) Complete(status RunStatus) (string, error) {
	if status == RunRunning {
		return "", ErrRunning
	}

	r.once.Do(func() {
		defer close(r.done)

		r.mu.Lock()
		end := r.clock()
		r.report.Status = status
		r.report.EndTime = &end
		r.report.Summary = Summarize(r.report.Steps)
		r.report.Summary.Duration = end.Sub(r.report.StartTime).Round(time.Millisecond).String()
		final := r.report
		r.mu.Unlock()

		r.path = filepath.Join(r.runDir, MarkdownFile)
		r.completeErr = r.write(&final)
		if r.completeErr != nil {
			r.logger.Errorf("failed to write report: %v", r.completeErr)
			return
		}
		r.logger.Infof("report completed with status %s: %s", status, r.path)
	})
	return r.path, r.completeErr
}

func (r *Reporter) write(final *RunReport) error {
	var errs []error
	if err := writeJSON(filepath.Join(r.runDir, JSONFile), final); err != nil {
		errs = append(errs, err)
	}
	if err := os.WriteFile(r.path, []byte(RenderMarkdown(final)), 0644); err != nil {
		errs = append(errs, fmt.Errorf("failed to write markdown report: %w", err))
	}
	return errors.Join(errs...)
}

// Done is closed once the report has been finalized.
func (r *Reporter) Done() <-chan struct{} {
	return r.done
}

// Completed reports whether Complete has run.
func (r *Reporter) Completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Path returns the markdown report path, or "" before completion.
func (r *Reporter) Path() string {
	if !r.Completed() {
		return ""
	}
	return r.path
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "screenshot"
	}
	var b strings.Builder
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
