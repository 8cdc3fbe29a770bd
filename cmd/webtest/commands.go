package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/entrhq/webtest/pkg/browser"
	"github.com/entrhq/webtest/pkg/config"
	"github.com/entrhq/webtest/pkg/console"
	"github.com/entrhq/webtest/pkg/llm/cache"
	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/scenario"
	"github.com/sourcegraph/conc/pool"
)

// loadScenario resolves the session input of the run command.
func (c *RunCmd) loadScenario() (*scenario.Scenario, error) {
	if c.Scenario != "" {
		return scenario.Load(c.Scenario)
	}
	scn := scenario.FromTask(c.Task)
	return scn, scn.Validate()
}

// Run executes one session. It fails unless the session completed.
func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	scn, err := c.loadScenario()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, g, c.NoCache)
	if err != nil {
		return err
	}
	defer a.Close()

	con := console.New(a.out, a.level)
	out := a.runScenario(ctx, scn, con, sessionSettings{headed: c.Headed, maxRounds: c.MaxRounds})
	con.PrintSummary(out.summary())

	if !out.passed() {
		return sessionError(out)
	}
	return nil
}

func sessionError(o *outcome) error {
	if o.Err != nil {
		return fmt.Errorf("scenario %s: %w", o.Scenario.Name, o.Err)
	}
	return fmt.Errorf("scenario %s ended with status %s: %s", o.Scenario.Name, o.Result.Status, o.Result.Reason)
}

// Run executes every scenario through a bounded pool. Each session has its
// own browser, report directory and console prefix.
func (c *BatchCmd) Run(ctx context.Context, g *Globals) error {
	scenarios := make([]*scenario.Scenario, 0, len(c.Scenarios))
	for _, path := range c.Scenarios {
		scn, err := scenario.Load(path)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, scn)
	}

	a, err := newApp(ctx, g, c.NoCache)
	if err != nil {
		return err
	}
	defer a.Close()

	parallel := c.Parallel
	if parallel < 1 {
		parallel = 1
	}

	root := console.New(a.out, a.level)
	p := pool.NewWithResults[*outcome]().WithMaxGoroutines(parallel)
	for _, scn := range scenarios {
		p.Go(func() *outcome {
			con := root.WithPrefix("[" + scn.Name + "] ")
			return a.runScenario(ctx, scn, con, sessionSettings{headed: c.Headed})
		})
	}
	outcomes := p.Wait()

	failed := 0
	for _, o := range outcomes {
		root.PrintSummary(o.summary())
		if !o.passed() {
			failed++
		}
	}
	root.Section(fmt.Sprintf("Batch finished: %d of %d scenarios completed", len(outcomes)-failed, len(outcomes)))
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios did not complete", failed, len(outcomes))
	}
	return nil
}

// Run prints usage for one session, or lists recent sessions.
func (c *StatsCmd) Run(ctx context.Context, g *Globals) error {
	// Stats only read the log, so no provider settings are validated.
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	path := cfg.LLM.CachePath
	if path == "" {
		path = cache.DefaultPath()
	}
	store, err := cache.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Session == "" {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			return err
		}
		return printSessions(os.Stdout, sessions, c.Limit)
	}

	stats, err := store.Stats(ctx, c.Session)
	if err != nil {
		return err
	}
	if stats == nil {
		return fmt.Errorf("no completions logged for session %s", c.Session)
	}
	return printStats(os.Stdout, stats)
}

func printSessions(w io.Writer, sessions []*cache.SessionInfo, limit int) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions logged.")
		return nil
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tCALLS\tTOKENS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Start.Format("2006-01-02 15:04:05"), s.Calls, console.FormatNumber(s.TotalTokens))
	}
	return tw.Flush()
}

func printStats(w io.Writer, s *cache.SessionStats) error {
	fmt.Fprintf(w, "Session %s\n", s.SessionID)
	fmt.Fprintf(w, "%s to %s, %s spent waiting on the model\n\n",
		s.Start.Format("2006-01-02 15:04:05"), s.End.Format("15:04:05"), s.Latency.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tCALLS\tCACHED\tPROMPT\tCOMPLETION\tTOTAL\tCOST (USD)")
	row := func(r *cache.RoleStats) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%.4f\n", r.Role, r.Calls, r.CachedCalls,
			console.FormatNumber(r.PromptTokens), console.FormatNumber(r.CompletionTokens),
			console.FormatNumber(r.TotalTokens), r.Cost)
	}
	for _, r := range s.Roles {
		row(r)
	}
	row(&s.Total)
	return tw.Flush()
}

// Run prints a finished report.
func (c *ReportCmd) Run(g *Globals) error {
	r, err := report.Load(c.RunDir)
	if err != nil {
		return err
	}

	con := console.New(os.Stdout, console.ParseLevel(g.Verbosity))
	if c.Steps {
		con.Section("Steps")
		for i, step := range r.Steps {
			con.Infof("%s", report.Narrate(i+1, step))
		}
	}

	s := console.Summary{
		Scenario:   r.Scenario,
		Status:     string(r.Status),
		ReportPath: filepath.Join(c.RunDir, report.MarkdownFile),
		Steps:      r.Summary.Total,
	}
	if r.EndTime != nil {
		s.Duration = r.EndTime.Sub(r.StartTime)
	}
	if r.Summary.Failed+r.Summary.Errors > 0 {
		s.Reason = fmt.Sprintf("%d failed, %d errored steps", r.Summary.Failed, r.Summary.Errors)
	}
	con.PrintSummary(s)
	return nil
}

// Run installs the Playwright driver and Chromium.
func (c *InstallCmd) Run() error {
	return browser.Install(os.Stdout)
}

// Run prints the version.
func (c *VersionCmd) Run() error {
	fmt.Printf("webtest version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
