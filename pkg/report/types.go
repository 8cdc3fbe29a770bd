package report

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of a single action step.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusWarning Status = "Warning"
	StatusFailed  Status = "Failed"
	StatusError   Status = "Error"
)

// Valid reports whether s is a known step status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusWarning, StatusFailed, StatusError:
		return true
	}
	return false
}

// Emoji returns the marker used for the status in markdown output.
func (s Status) Emoji() string {
	switch s {
	case StatusSuccess:
		return "✅"
	case StatusWarning:
		return "⚠️"
	case StatusFailed:
		return "❌"
	case StatusError:
		return "💥"
	}
	return "❔"
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
)

// ParseRunStatus converts a status name, case-insensitively.
func ParseRunStatus(s string) (RunStatus, error) {
	for _, rs := range []RunStatus{RunRunning, RunCompleted, RunFailed} {
		if strings.EqualFold(string(rs), s) {
			return rs, nil
		}
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

// Step records one attempted browser action.
type Step struct {
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// Screenshot references an image stored inside the run directory.
type Screenshot struct {
	Name string `json:"name"`
	// Path is relative to the run directory.
	Path string `json:"path"`
	// Step is the index of the step the screenshot belongs to, or -1.
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates step outcomes.
type Summary struct {
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Warnings  int    `json:"warnings"`
	Failed    int    `json:"failed"`
	Errors    int    `json:"errors"`
	Duration  string `json:"duration,omitempty"`
}

// RunReport is the full record of a run.
type RunReport struct {
	ID          string       `json:"id"`
	Scenario    string       `json:"scenario"`
	Status      RunStatus    `json:"status"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
	Steps       []Step       `json:"steps"`
	Screenshots []Screenshot `json:"screenshots"`
	Summary     Summary      `json:"summary"`
}

// Summarize counts steps by status.
func Summarize(steps []Step) Summary {
	s := Summary{Total: len(steps)}
	for _, st := range steps {
		switch st.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusWarning:
			s.Warnings++
		case StatusFailed:
			s.Failed++
		case StatusError:
			s.Errors++
		}
	}
	return s
}
