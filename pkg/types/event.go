package types

import "time"

// EventType defines the type of event emitted while a session runs.
type EventType string

const (
	EventTypeSessionStart EventType = "session_start" // EventTypeSessionStart indicates a session has begun.
	EventTypeRoundStart   EventType = "round_start"   // EventTypeRoundStart indicates a role is about to act.
	EventTypeMessage      EventType = "message"       // EventTypeMessage indicates a role produced a message.
	EventTypeActionStep   EventType = "action_step"   // EventTypeActionStep indicates the browser recorded a step.
	EventTypeTokenUsage   EventType = "token_usage"   // EventTypeTokenUsage carries usage from an LLM completion.
	EventTypeTerminated   EventType = "terminated"    // EventTypeTerminated indicates the monitor or budget ended the session.
	EventTypeSessionEnd   EventType = "session_end"   // EventTypeSessionEnd indicates the report has been finalized.
	EventTypeError        EventType = "error"         // EventTypeError indicates an error occurred during a round.
)

// Event represents something that happened during a session.
type Event struct {
	// Message is set for message events.
	Message *Message

	// Usage is set for token usage events.
	Usage *Usage

	// Error contains error information for error events.
	Error error

	// Time is when the event was created.
	Time time.Time

	// Content holds free text such as a termination reason or a step description.
	Content string

	// ReportPath is set on session end.
	ReportPath string

	// Type indicates the kind of event.
	Type EventType

	// Round is the orchestration round the event belongs to.
	Round int

	// Role is the acting role for round and message events.
	Role Role
}

// EventListener receives session events. Implementations must not block.
type EventListener interface {
	OnEvent(*Event)
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(*Event)

// OnEvent calls f(e).
func (f EventListenerFunc) OnEvent(e *Event) { f(e) }

func newEvent(t EventType) *Event {
	return &Event{Type: t, Time: time.Now()}
}

// NewSessionStartEvent creates a session start event for the given task.
func NewSessionStartEvent(task string) *Event {
	e := newEvent(EventTypeSessionStart)
	e.Content = task
	return e
}

// NewRoundStartEvent creates an event announcing which role acts in a round.
func NewRoundStartEvent(round int, role Role) *Event {
	e := newEvent(EventTypeRoundStart)
	e.Round = round
	e.Role = role
	return e
}

// NewMessageEvent wraps a transcript message.
func NewMessageEvent(round int, msg *Message) *Event {
	e := newEvent(EventTypeMessage)
	e.Round = round
	e.Role = msg.Role
	e.Message = msg
	return e
}

// NewActionStepEvent creates an event for a recorded browser step.
func NewActionStepEvent(description string) *Event {
	e := newEvent(EventTypeActionStep)
	e.Content = description
	return e
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(round int, role Role, usage *Usage) *Event {
	e := newEvent(EventTypeTokenUsage)
	e.Round = round
	e.Role = role
	e.Usage = usage
	return e
}

// NewTerminatedEvent creates a termination event with a reason.
func NewTerminatedEvent(round int, reason string) *Event {
	e := newEvent(EventTypeTerminated)
	e.Round = round
	e.Content = reason
	return e
}

// NewSessionEndEvent creates a session end event.
func NewSessionEndEvent(status, reportPath string) *Event {
	e := newEvent(EventTypeSessionEnd)
	e.Content = status
	e.ReportPath = reportPath
	return e
}

// NewErrorEvent creates an error event.
func NewErrorEvent(round int, role Role, err error) *Event {
	e := newEvent(EventTypeError)
	e.Round = round
	e.Role = role
	e.Error = err
	return e
}

// IsError returns true if this is an error event.
func (e *Event) IsError() bool {
	return e.Type == EventTypeError
}
