package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/entrhq/webtest/pkg/agent"
	"github.com/entrhq/webtest/pkg/browser"
	"github.com/entrhq/webtest/pkg/config"
	"github.com/entrhq/webtest/pkg/console"
	"github.com/entrhq/webtest/pkg/llm"
	"github.com/entrhq/webtest/pkg/llm/cache"
	"github.com/entrhq/webtest/pkg/llm/openai"
	"github.com/entrhq/webtest/pkg/logging"
	"github.com/entrhq/webtest/pkg/orchestrator"
	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/scenario"
	"github.com/entrhq/webtest/pkg/security"
	"github.com/entrhq/webtest/pkg/telemetry"
	"github.com/entrhq/webtest/pkg/types"
	"github.com/google/uuid"
)

// retryBackoff is the wait between retried completions.
const retryBackoff = 2 * time.Second

// app holds what every session of one invocation shares.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	provider llm.Provider
	store    *cache.Store
	replay   bool
	out      io.Writer
	level    console.Level
	shutdown func(context.Context) error
}

// loadConfig reads and validates the configuration for the globals.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Verbosity != "" {
		cfg.Logging.Verbosity = g.Verbosity
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires configuration, logging, tracing, the LLM provider and the
// completion cache.
func newApp(ctx context.Context, g *Globals, noCache bool) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	if err := logging.SetLevel(cfg.Logging.Verbosity); err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger("webtest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	rt, err := telemetry.Setup(ctx, cfg.Trace, os.Stderr)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		provider: llm.WithRetry(provider, cfg.LLM.Retries, retryBackoff),
		replay:   !noCache,
		out:      os.Stdout,
		level:    console.ParseLevel(cfg.Logging.Verbosity),
		shutdown: rt.Shutdown,
	}

	if cfg.LLM.CachePath != "" {
		a.store, err = cache.Open(ctx, cfg.LLM.CachePath)
		if err != nil {
			// The cache is an optimization; sessions run without it.
			logger.Warnf("completion cache disabled: %v", err)
			a.store = nil
		}
	}
	return a, nil
}

func newProvider(cfg *config.Config) (*openai.Provider, error) {
	baseURL := cfg.LLM.BaseURL
	if baseURL == "" {
		var err error
		baseURL, err = openai.BaseURLFor(cfg.LLM.Provider)
		if err != nil {
			return nil, err
		}
	}

	opts := []openai.ProviderOption{
		openai.WithModel(cfg.LLM.Model),
		openai.WithBaseURL(baseURL),
		openai.WithRequestTimeout(cfg.LLM.RequestTimeout),
		openai.WithDefaultTemperature(cfg.LLM.Temperature),
	}
	if cfg.LLM.MaxTokens > 0 {
		opts = append(opts, openai.WithDefaultMaxTokens(cfg.LLM.MaxTokens))
	}
	p, err := openai.NewProvider(cfg.LLM.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return p, nil
}

func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}

// providerFor returns the provider for one role of one session, behind the
// completion cache when it is open.
func (a *app) providerFor(sessionID string, role types.Role) llm.Provider {
	if a.store == nil {
		return a.provider
	}
	opts := []cache.Option{cache.WithLogger(a.logger)}
	if !a.replay {
		opts = append(opts, cache.WithoutReplay())
	}
	return cache.Cached(a.provider, a.store, a.cfg.LLM.CacheSeed, sessionID, role.String(), opts...)
}

// sessionSettings are the per-session overrides from flags and scenarios.
type sessionSettings struct {
	headed    bool
	maxRounds int
}

// outcome is the result of one scenario.
type outcome struct {
	SessionID string
	Scenario  *scenario.Scenario
	Result    *orchestrator.Result
	Steps     int
	Err       error
}

// summary converts the outcome for console output.
func (o *outcome) summary() console.Summary {
	s := console.Summary{Scenario: o.Scenario.Name, Steps: o.Steps}
	if o.Result != nil {
		s.Status = string(o.Result.Status)
		s.Reason = o.Result.Reason
		s.ReportPath = o.Result.ReportPath
		s.Duration = o.Result.Duration
		s.Rounds = o.Result.Rounds
		s.Tokens = o.Result.Tokens
	} else {
		s.Status = string(report.RunFailed)
	}
	if o.Err != nil {
		s.Error = o.Err.Error()
	}
	return s
}

// passed reports whether the session completed.
func (o *outcome) passed() bool {
	return o.Err == nil && o.Result != nil && o.Result.Status == report.RunCompleted
}

// securityConfig merges the configured and scenario URL rules.
func securityConfig(cfg *config.Config, scn *scenario.Scenario) security.Config {
	sc := security.DefaultConfig()
	sc.AllowedURLs = append(append([]string{}, cfg.Security.AllowedURLs...), scn.AllowedURLs...)
	sc.DeniedURLs = append([]string{}, cfg.Security.DeniedURLs...)
	return sc
}

// maxRounds picks the round budget: flag, then scenario, then config.
func maxRounds(cfg *config.Config, scn *scenario.Scenario, flag int) int {
	switch {
	case flag > 0:
		return flag
	case scn.MaxRounds > 0:
		return scn.MaxRounds
	}
	return cfg.Orchestrator.MaxRounds
}

// runScenario launches a browser, wires the four roles and runs one session.
func (a *app) runScenario(ctx context.Context, scn *scenario.Scenario, con *console.Console, set sessionSettings) *outcome {
	out := &outcome{SessionID: uuid.NewString(), Scenario: scn}
	logger := a.logger.With("session", out.SessionID).With("scenario", scn.Name)

	rep, err := report.New(a.cfg.Report.Dir, scn.Name,
		report.WithLogger(logger),
		report.WithStepHook(func(s report.Step) {
			con.OnEvent(types.NewActionStepEvent(fmt.Sprintf("[%s] %s", s.Status, s.Description)))
		}),
	)
	if err != nil {
		out.Err = err
		return out
	}

	policy, err := security.NewPolicy(securityConfig(a.cfg, scn))
	if err != nil {
		out.Err = err
		return out
	}

	sess, err := browser.Launch(browser.SessionOptions{
		Headless:       a.cfg.Browser.Headless && !set.headed,
		SlowMo:         a.cfg.Browser.SlowMo,
		Timeout:        a.cfg.Browser.ActionTimeout,
		ViewportWidth:  a.cfg.Browser.ViewportWidth,
		ViewportHeight: a.cfg.Browser.ViewportHeight,
	})
	if err != nil {
		rep.AddStep("Launch browser", report.StatusError, err)
		path, _ := rep.Complete(report.RunFailed)
		out.Result = &orchestrator.Result{Status: report.RunFailed, Reason: "browser launch failed", ReportPath: path}
		out.Err = err
		return out
	}

	exec := browser.NewSessionExecutor(sess, rep,
		browser.WithTimeout(a.cfg.Browser.ActionTimeout),
		browser.WithRetryDelay(a.cfg.Browser.ActionDelay),
		browser.WithLogger(logger),
	)

	allowed := securityConfig(a.cfg, scn).AllowedURLs
	var reviewer llm.Provider
	if a.cfg.Security.LLMReview {
		reviewer = a.providerFor(out.SessionID, types.RoleSecurityAdmin)
	}
	agents := []agent.Agent{
		agent.NewTester(a.providerFor(out.SessionID, types.RoleTester),
			agent.WithLogger(logger), agent.WithAllowedURLs(allowed)),
		agent.NewSecurityAdmin(policy, reviewer,
			agent.WithLogger(logger), agent.WithAllowedURLs(allowed)),
		agent.NewExecutor(exec,
			agent.WithActionTimeout(a.cfg.Browser.ActionTimeout), agent.WithExecutorLogger(logger)),
		agent.NewDebugger(a.providerFor(out.SessionID, types.RoleDebugAgent), exec,
			agent.WithLogger(logger)),
	}

	orch, err := orchestrator.New(agents, exec,
		orchestrator.WithMaxRounds(maxRounds(a.cfg, scn, set.maxRounds)),
		orchestrator.WithMonitorLimits(a.cfg.Conversation.MaxConsecutiveEmpty, a.cfg.Conversation.MaxTotalTokens),
		orchestrator.WithListener(con),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		_, _ = exec.EndSession(ctx, report.RunFailed)
		out.Err = err
		return out
	}

	out.Result, out.Err = orch.Run(ctx, scn.Prompt())
	out.Steps = len(rep.Steps())
	return out
}
