package conversation

import (
	"sync"

	"github.com/entrhq/webtest/pkg/types"
)

// State owns the transcript, round counter and monitor of one session.
type State struct {
	mu       sync.RWMutex
	task     string
	messages []*types.Message
	round    int
	monitor  *Monitor
}

// NewState creates the state for a session working on task.
func NewState(task string, monitor *Monitor) *State {
	if monitor == nil {
		monitor = NewMonitor(DefaultMaxConsecutiveEmpty, 0)
	}
	return &State{
		task:    task,
		monitor: monitor,
	}
}

// Task returns the session's task description.
func (s *State) Task() string {
	return s.task
}

// Append adds msg to the transcript and runs the monitor on it. Insertion
// order is preserved; nothing is reordered or deduplicated.
func (s *State) Append(msg *types.Message) Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.monitor.Observe(msg)
}

// Last returns the most recent message, or nil for an empty transcript.
func (s *State) Last() *types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

// LastFrom returns the most recent message produced by role.
func (s *State) LastFrom(role types.Role) *types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == role {
			return s.messages[i]
		}
	}
	return nil
}

// Messages returns a copy of the transcript.
func (s *State) Messages() []*types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*types.Message(nil), s.messages...)
}

// Len returns the number of messages.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// NextRound advances and returns the round counter.
func (s *State) NextRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round++
	return s.round
}

// Round returns the current round.
func (s *State) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// TotalTokens returns the cumulative token usage seen by the monitor.
func (s *State) TotalTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitor.TotalTokens()
}
