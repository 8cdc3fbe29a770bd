package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CompletionMarker prefixes the announcement of a finished report. The
// orchestrator treats any message containing it as terminal, so the wording
// must stay stable.
const CompletionMarker = "You can find the full test report at: "

// Announcement returns the completion line for a report path.
func Announcement(path string) string {
	return CompletionMarker + path
}

// RenderMarkdown renders the human-readable report.
func RenderMarkdown(r *RunReport) string {
	var md strings.Builder

	md.WriteString(fmt.Sprintf("# Test Report: %s\n\n", r.Scenario))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", r.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", r.StartTime.Format(time.RFC3339)))
	if r.EndTime != nil {
		md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", r.EndTime.Format(time.RFC3339)))
	}
	if r.Summary.Duration != "" {
		md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", r.Summary.Duration))
	}

	md.WriteString("## Summary\n\n")
	md.WriteString(fmt.Sprintf("- **Total Steps:** %d\n", r.Summary.Total))
	md.WriteString(fmt.Sprintf("- **Succeeded:** %d\n", r.Summary.Succeeded))
	md.WriteString(fmt.Sprintf("- **Warnings:** %d\n", r.Summary.Warnings))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", r.Summary.Failed))
	md.WriteString(fmt.Sprintf("- **Errors:** %d\n\n", r.Summary.Errors))

	md.WriteString("## Steps\n\n")
	if len(r.Steps) == 0 {
		md.WriteString("_No steps were recorded._\n\n")
	}
	for i, step := range r.Steps {
		md.WriteString(fmt.Sprintf("%d. %s **%s** %s (%s)\n",
			i+1, step.Status.Emoji(), step.Status, step.Description, step.Timestamp.Format("15:04:05")))
		if step.Error != "" {
			md.WriteString(fmt.Sprintf("   - Error: `%s`\n", oneLine(step.Error)))
		}
	}
	md.WriteString("\n")

	if len(r.Screenshots) > 0 {
		md.WriteString("## Screenshots\n\n")
		for _, shot := range r.Screenshots {
			md.WriteString(fmt.Sprintf("### %s\n\n", shot.Name))
			md.WriteString(fmt.Sprintf("![%s](%s)\n\n", shot.Name, shot.Path))
		}
	}

	md.WriteString("## Narrative\n\n")
	for i, step := range r.Steps {
		md.WriteString(Narrate(i+1, step))
		md.WriteString("\n")
	}
	md.WriteString("\n")
	md.WriteString(narrateOutcome(r))
	md.WriteString("\n")

	return md.String()
}

// Narrate renders a single step as a sentence.
func Narrate(n int, step Step) string {
	desc := strings.TrimSuffix(step.Description, ".")
	switch step.Status {
	case StatusSuccess:
		return fmt.Sprintf("Step %d completed successfully: %s.", n, desc)
	case StatusWarning:
		if step.Error != "" {
			return fmt.Sprintf("Step %d completed with a warning: %s (%s).", n, desc, oneLine(step.Error))
		}
		return fmt.Sprintf("Step %d completed with a warning: %s.", n, desc)
	case StatusFailed:
		if step.Error != "" {
			return fmt.Sprintf("Step %d did not pass: %s, because %s.", n, desc, oneLine(step.Error))
		}
		return fmt.Sprintf("Step %d did not pass: %s.", n, desc)
	default:
		if step.Error != "" {
			return fmt.Sprintf("Step %d could not be performed: %s, error: %s.", n, desc, oneLine(step.Error))
		}
		return fmt.Sprintf("Step %d could not be performed: %s.", n, desc)
	}
}

func narrateOutcome(r *RunReport) string {
	s := r.Summary
	switch {
	case r.Status == RunCompleted && s.Failed == 0 && s.Errors == 0:
		return fmt.Sprintf("The scenario %q completed: all %d steps passed (%d with warnings).", r.Scenario, s.Total, s.Warnings)
	case r.Status == RunCompleted:
		return fmt.Sprintf("The scenario %q completed with %d failed and %d errored steps out of %d.", r.Scenario, s.Failed, s.Errors, s.Total)
	default:
		return fmt.Sprintf("The scenario %q ended with status %s after %d steps.", r.Scenario, r.Status, s.Total)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func writeJSON(path string, r *RunReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report JSON: %w", err)
	}
	return nil
}

// Load reads a finalized report back from a run directory.
func Load(runDir string) (*RunReport, error) {
	data, err := os.ReadFile(filepath.Join(runDir, JSONFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if (r.EndTime == nil) != (r.Status == RunRunning) {
		return nil, fmt.Errorf("inconsistent report: status %s with end time set=%t", r.Status, r.EndTime != nil)
	}
	return &r, nil
}
