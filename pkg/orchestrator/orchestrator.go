// Package orchestrator runs a test session: it routes between the roles,
// enforces the round budget and the conversation monitor, and always
// finalizes the report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/webtest/pkg/agent"
	"github.com/entrhq/webtest/pkg/conversation"
	"github.com/entrhq/webtest/pkg/logging"
	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxRounds is the round budget when none is configured.
const DefaultMaxRounds = 15

const tracerName = "github.com/entrhq/webtest/pkg/orchestrator"

// Session finalizes the report. *browser.Executor implements it. EndSession
// must be idempotent because the executor role may already have ended it
// with a status of its own; RunStatus reports the status that was written.
type Session interface {
	EndSession(ctx context.Context, status report.RunStatus) (string, error)
	RunStatus() report.RunStatus
}

// Result describes how a session ended.
type Result struct {
	Status     report.RunStatus
	Rounds     int
	Reason     string
	ReportPath string
	Transcript []*types.Message
	Tokens     int
	Duration   time.Duration
}

// Orchestrator drives one session at a time.
type Orchestrator struct {
	agents    map[types.Role]agent.Agent
	session   Session
	maxRounds int

	maxConsecutiveEmpty int
	maxTotalTokens      int

	listeners []types.EventListener
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRounds sets the round budget.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithMonitorLimits sets the empty streak and token ceiling of the
// conversation monitor.
func WithMonitorLimits(maxConsecutiveEmpty, maxTotalTokens int) Option {
	return func(o *Orchestrator) {
		o.maxConsecutiveEmpty = maxConsecutiveEmpty
		o.maxTotalTokens = maxTotalTokens
	}
}

// WithListener registers an event listener.
func WithListener(l types.EventListener) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// New creates an orchestrator. Every role needs exactly one agent.
func New(agents []agent.Agent, session Session, opts ...Option) (*Orchestrator, error) {
	if session == nil {
		return nil, errors.New("orchestrator requires a session")
	}
	o := &Orchestrator{
		agents:              make(map[types.Role]agent.Agent, len(agents)),
		session:             session,
		maxRounds:           DefaultMaxRounds,
		maxConsecutiveEmpty: conversation.DefaultMaxConsecutiveEmpty,
		logger:              logging.Nop(),
		tracer:              otel.Tracer(tracerName),
	}
	for _, a := range agents {
		if _, dup := o.agents[a.Role()]; dup {
			return nil, fmt.Errorf("duplicate agent for role %s", a.Role())
		}
		o.agents[a.Role()] = a
	}
	for _, role := range types.Roles() {
		if _, ok := o.agents[role]; !ok {
			return nil, fmt.Errorf("no agent for role %s", role)
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) emit(e *types.Event) {
	for _, l := range o.listeners {
		l.OnEvent(e)
	}
}

// Run executes the session for task. The report is finalized on every exit
// path. The returned error is set when a role failed, the context was
// canceled or the report could not be written; the Result is always non-nil.
func (o *Orchestrator) Run(ctx context.Context, task string) (*Result, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.Int("max_rounds", o.maxRounds),
	))
	defer span.End()

	state := conversation.NewState(task, conversation.NewMonitor(o.maxConsecutiveEmpty, o.maxTotalTokens))
	res := &Result{Status: report.RunFailed}
	var runErr error

	o.logger.Infof("session started: %s", task)
	o.emit(types.NewSessionStartEvent(task))

	ended := false
	for !ended && state.Round() < o.maxRounds {
		if err := ctx.Err(); err != nil {
			res.Reason = "canceled: " + err.Error()
			runErr = err
			break
		}

		round := state.NextRound()
		role := NextRole(state.Last())
		o.emit(types.NewRoundStartEvent(round, role))

		msg, err := o.act(ctx, round, role, state)
		if err != nil {
			o.logger.Errorf("round %d: %s failed: %v", round, role, err)
			o.emit(types.NewErrorEvent(round, role, err))
			res.Reason = fmt.Sprintf("%s failed: %v", role, err)
			runErr = err
			break
		}

		verdict := state.Append(msg)
		o.emit(types.NewMessageEvent(round, msg))
		if msg.Usage != nil {
			o.emit(types.NewTokenUsageEvent(round, role, msg.Usage))
		}

		switch {
		case verdict.Terminate:
			res.Reason = fmt.Sprintf("%s: %s", verdict.Reason, verdict.Detail)
			o.logger.Warnf("monitor ended the session: %s", res.Reason)
			o.emit(types.NewTerminatedEvent(round, res.Reason))
			ended = true
		case IsTerminal(msg):
			res.Status = report.RunCompleted
			res.Reason = "test report completed"
			ended = true
		}
	}

	if !ended && runErr == nil && res.Reason == "" {
		res.Reason = fmt.Sprintf("round budget of %d exhausted", o.maxRounds)
		o.logger.Warnf("%s", res.Reason)
		o.emit(types.NewTerminatedEvent(state.Round(), res.Reason))
	}

	// Finalize even when ctx is done.
	path, err := o.session.EndSession(context.WithoutCancel(ctx), res.Status)
	if err != nil {
		o.logger.Errorf("finalizing report: %v", err)
		runErr = errors.Join(runErr, fmt.Errorf("finalize report: %w", err))
	}

	// The report is authoritative, e.g. after end_session with status failed.
	if final := o.session.RunStatus(); final != report.RunRunning && final != res.Status {
		if res.Status == report.RunCompleted {
			res.Reason = fmt.Sprintf("test report completed with status %s", final)
		}
		res.Status = final
	}

	res.ReportPath = path
	res.Rounds = state.Round()
	res.Transcript = state.Messages()
	res.Tokens = state.TotalTokens()
	res.Duration = time.Since(start)

	o.emit(types.NewSessionEndEvent(string(res.Status), path))
	o.logger.Infof("session ended: %s after %d rounds (%s)", res.Status, res.Rounds, res.Reason)

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("rounds", res.Rounds),
		attribute.Int("tokens", res.Tokens),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return res, runErr
}

func (o *Orchestrator) act(ctx context.Context, round int, role types.Role, state *conversation.State) (*types.Message, error) {
	ctx, span := o.tracer.Start(ctx, "round."+role.String(), trace.WithAttributes(
		attribute.Int("round", round),
		attribute.String("capability", string(role.Capability())),
	))
	defer span.End()

	msg, err := o.agents[role].Act(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if msg == nil {
		msg = types.NewMessage(role, "")
	}
	if msg.Usage != nil {
		span.SetAttributes(attribute.Int("tokens", msg.Usage.TotalTokens))
	}
	return msg, nil
}
