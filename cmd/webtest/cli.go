package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" help:"Run one test session"`
	Batch   BatchCmd   `cmd:"" help:"Run several scenario files"`
	Stats   StatsCmd   `cmd:"" help:"Show token usage and cost from the completion log"`
	Report  ReportCmd  `cmd:"" help:"Print the summary of a finished run"`
	Install InstallCmd `cmd:"" help:"Install the Playwright driver and browsers"`
	Version VersionCmd `cmd:"" help:"Show version information (${version})"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config    string `short:"c" type:"path" help:"Config file path (YAML)"`
	Verbosity string `short:"v" help:"Console verbosity: quiet, normal, verbose or debug (default from config)"`
}

// RunCmd runs a single session from a task or a scenario file.
type RunCmd struct {
	Task      string `short:"t" xor:"input" required:"" help:"Task description"`
	Scenario  string `short:"s" xor:"input" required:"" type:"existingfile" help:"Scenario file (YAML)"`
	MaxRounds int    `help:"Round budget (overrides config and scenario)"`
	Headed    bool   `help:"Show the browser window"`
	NoCache   bool   `help:"Do not replay cached completions"`
}

// BatchCmd runs independent sessions for several scenario files.
type BatchCmd struct {
	Scenarios []string `arg:"" type:"existingfile" help:"Scenario files"`
	Parallel  int      `short:"p" default:"2" help:"Sessions to run at once"`
	Headed    bool     `help:"Show the browser windows"`
	NoCache   bool     `help:"Do not replay cached completions"`
}

// StatsCmd prints completion log statistics.
type StatsCmd struct {
	Session string `help:"Session id; lists recent sessions when empty"`
	Limit   int    `default:"10" help:"Sessions to list"`
}

// ReportCmd prints a finished report.
type ReportCmd struct {
	RunDir string `arg:"" type:"existingdir" help:"Run directory containing report.json"`
	Steps  bool   `help:"Narrate every step"`
}

// InstallCmd installs Playwright.
type InstallCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
