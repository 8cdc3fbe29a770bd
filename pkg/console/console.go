// Package console prints a human-readable transcript of a test session to
// a terminal.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/entrhq/webtest/pkg/types"
)

// Level is the output verbosity.
type Level int

const (
	// LevelQuiet shows only warnings, errors and the final summary.
	LevelQuiet Level = iota
	// LevelNormal shows the role transcript (default).
	LevelNormal
	// LevelVerbose adds browser steps and token usage.
	LevelVerbose
	// LevelDebug shows everything.
	LevelDebug
)

// ParseLevel converts a verbosity name; unknown names map to LevelNormal.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "quiet":
		return LevelQuiet
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

// DefaultWidth is the wrap column for message bodies.
const DefaultWidth = 100

var (
	ruleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("217"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))

	roleStyles = map[types.Role]lipgloss.Style{
		types.RoleTester:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		types.RoleSecurityAdmin: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		types.RoleExecutor:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		types.RoleDebugAgent:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
	}
)

// Console writes styled session output. It is safe for concurrent use.
type Console struct {
	mu        sync.Mutex
	w         io.Writer
	level     Level
	width     int
	stepCount int
	// prefix tags every line, used when several sessions share one writer.
	prefix string
}

// New creates a console writing to w (os.Stdout when nil).
func New(w io.Writer, level Level) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w, level: level, width: DefaultWidth}
}

// WithPrefix returns a console sharing c's writer whose lines start with
// "[prefix] ".
func (c *Console) WithPrefix(prefix string) *Console {
	return &Console{w: &lockedWriter{mu: &c.mu, w: c.w}, level: c.level, width: c.width, prefix: "[" + prefix + "] "}
}

// SetWidth changes the wrap column; zero disables wrapping.
func (c *Console) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
}

func (c *Console) printf(min Level, format string, args ...interface{}) {
	if c.level < min {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(fmt.Sprintf(format, args...))
}

// write must be called with mu held.
func (c *Console) write(s string) {
	if c.prefix == "" {
		fmt.Fprint(c.w, s)
		return
	}
	lines := strings.SplitAfter(s, "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		fmt.Fprint(c.w, c.prefix+line)
	}
}

// Header prints a prominent header message.
func (c *Console) Header(message string) {
	rule := ruleStyle.Render(strings.Repeat("=", 70))
	c.printf(LevelNormal, "\n%s\n%s\n%s\n", rule, ruleStyle.Render("  "+message), rule)
}

// Section prints a section divider.
func (c *Console) Section(title string) {
	c.printf(LevelNormal, "\n%s\n%s\n", sectionStyle.Render("▶ "+title), mutedStyle.Render(strings.Repeat("─", 50)))
}

// Step prints a numbered step.
func (c *Console) Step(message string) {
	if c.level < LevelNormal {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepCount++
	c.write(fmt.Sprintf("\n%s\n", sectionStyle.Render(fmt.Sprintf("[%d] %s", c.stepCount, message))))
}

// Successf prints a success message with a checkmark.
func (c *Console) Successf(format string, args ...interface{}) {
	c.printf(LevelNormal, "%s\n", successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Infof prints an informational message.
func (c *Console) Infof(format string, args ...interface{}) {
	c.printf(LevelNormal, "%s\n", infoStyle.Render(fmt.Sprintf(format, args...)))
}

// Warningf prints a warning.
func (c *Console) Warningf(format string, args ...interface{}) {
	c.printf(LevelQuiet, "%s\n", warnStyle.Render("⚠ Warning: "+fmt.Sprintf(format, args...)))
}

// Errorf prints an error.
func (c *Console) Errorf(format string, args ...interface{}) {
	c.printf(LevelQuiet, "%s\n", errorStyle.Render("✗ Error: "+fmt.Sprintf(format, args...)))
}

// Verbosef prints detail shown only in verbose mode.
func (c *Console) Verbosef(format string, args ...interface{}) {
	c.printf(LevelVerbose, "%s\n", mutedStyle.Render("→ "+fmt.Sprintf(format, args...)))
}

// Debugf prints debug detail.
func (c *Console) Debugf(format string, args ...interface{}) {
	c.printf(LevelDebug, "%s\n", mutedStyle.Render("[DEBUG] "+fmt.Sprintf(format, args...)))
}

// Newline adds a blank line.
func (c *Console) Newline() {
	c.printf(LevelNormal, "\n")
}

// Turn prints one role's message, wrapped and indented.
func (c *Console) Turn(round int, msg *types.Message) {
	if c.level < LevelNormal || msg == nil {
		return
	}
	style, ok := roleStyles[msg.Role]
	if !ok {
		style = ruleStyle
	}
	body := strings.TrimSpace(msg.Content)
	if body == "" {
		body = mutedStyle.Render("(empty message)")
	} else if c.width > 0 {
		body = wordwrap.String(body, c.width-2)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(fmt.Sprintf("\n%s %s\n", mutedStyle.Render(fmt.Sprintf("#%d", round)), style.Render(msg.Role.String())))
	c.write(indent(body, "  ") + "\n")
}

func indent(s, pad string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// OnEvent renders session events.
func (c *Console) OnEvent(e *types.Event) {
	switch e.Type {
	case types.EventTypeSessionStart:
		c.Header("Web test session")
		c.Infof("Task: %s", e.Content)
	case types.EventTypeRoundStart:
		c.Debugf("round %d: %s", e.Round, e.Role)
	case types.EventTypeMessage:
		c.Turn(e.Round, e.Message)
	case types.EventTypeActionStep:
		c.Verbosef("%s", e.Content)
	case types.EventTypeTokenUsage:
		if e.Usage != nil {
			c.Verbosef("%s used %s tokens (%s prompt, %s completion)", e.Role,
				FormatNumber(e.Usage.TotalTokens), FormatNumber(e.Usage.PromptTokens), FormatNumber(e.Usage.CompletionTokens))
		}
	case types.EventTypeTerminated:
		c.Warningf("conversation terminated after round %d: %s", e.Round, e.Content)
	case types.EventTypeError:
		c.Errorf("%s (round %d): %v", e.Role, e.Round, e.Error)
	case types.EventTypeSessionEnd:
		c.Section("Session finished: " + e.Content)
		if e.ReportPath != "" {
			c.Infof("Report: %s", e.ReportPath)
		}
	}
}

// Summary is the final outcome of a session.
type Summary struct {
	Scenario   string
	Status     string
	Reason     string
	ReportPath string
	Error      string
	Duration   time.Duration
	Rounds     int
	Steps      int
	Tokens     int
}

// PrintSummary prints the closing summary block.
func (c *Console) PrintSummary(s Summary) {
	var b strings.Builder
	rule := ruleStyle.Render(strings.Repeat("=", 70))
	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", rule, ruleStyle.Render("  SESSION SUMMARY"), rule)

	fmt.Fprint(&b, "  Status: ")
	switch strings.ToLower(s.Status) {
	case "completed":
		fmt.Fprintln(&b, successStyle.Render("✓ COMPLETED"))
	case "failed":
		fmt.Fprintln(&b, errorStyle.Render("✗ FAILED"))
	default:
		fmt.Fprintln(&b, s.Status)
	}
	if s.Scenario != "" {
		fmt.Fprintf(&b, "  Scenario: %s\n", s.Scenario)
	}
	if s.Reason != "" {
		fmt.Fprintf(&b, "  Reason: %s\n", s.Reason)
	}
	fmt.Fprintf(&b, "  Duration: %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "  Rounds: %d\n", s.Rounds)
	fmt.Fprintf(&b, "  Browser steps: %d\n", s.Steps)
	if s.Tokens > 0 {
		fmt.Fprintf(&b, "  Tokens used: %s\n", FormatNumber(s.Tokens))
	}
	if s.ReportPath != "" {
		fmt.Fprintf(&b, "  Report: %s\n", s.ReportPath)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", errorStyle.Render("  Error Details:"), "    "+s.Error)
	}
	fmt.Fprintf(&b, "%s\n", rule)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(b.String())
}

// FormatNumber formats large numbers with commas for readability.
func FormatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
