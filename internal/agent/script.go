package agent

import (
	"context"
	"fmt"
	"sync"
)

// Script is a deterministic Runtime for tests. Every run started on it
// presents the configured tool calls one at a time, then lands in the
// configured terminal state. The zero value completes immediately with no
// calls.
type Script struct {
	// Calls are presented as pending actions in order, one per poll, each
	// advancing only once answered.
	Calls []ToolCall

	// LeadPolls is how many in_progress snapshots precede the first action.
	LeadPolls int

	// FailAfter > 0 fails the run once that many calls have been answered.
	FailAfter  int
	FailReason string

	// Output is the trailing free text reported on completion.
	Output string

	mu   sync.Mutex
	runs map[string]*scriptRun
}

type scriptRun struct {
	polls     int
	answered  int
	cancelled bool
}

// StartRun registers a new scripted run.
func (s *Script) StartRun(_ context.Context, req RunRequest) (string, error) {
	if req.Topic == "" {
		return "", fmt.Errorf("topic required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = make(map[string]*scriptRun)
	}
	id := fmt.Sprintf("script-%d", len(s.runs)+1)
	s.runs[id] = &scriptRun{}
	return id, nil
}

// GetRun replays the scripted state sequence.
func (s *Script) GetRun(_ context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	if r.cancelled {
		return Run{ID: id, State: RunCancelled}, nil
	}
	if r.polls < s.LeadPolls {
		r.polls++
		return Run{ID: id, State: RunInProgress}, nil
	}
	if s.FailAfter > 0 && r.answered >= s.FailAfter {
		reason := s.FailReason
		if reason == "" {
			reason = "scripted failure"
		}
		return Run{ID: id, State: RunFailed, FailReason: reason}, nil
	}
	if r.answered < len(s.Calls) {
		return Run{
			ID:           id,
			State:        RunRequiresAction,
			PendingCalls: []ToolCall{s.Calls[r.answered]},
		}, nil
	}
	return Run{ID: id, State: RunCompleted, Output: s.Output}, nil
}

// SubmitToolOutputs advances past the current pending call when its id is
// answered; outputs for other ids are ignored, leaving the run parked.
func (s *Script) SubmitToolOutputs(_ context.Context, id string, outputs []ToolOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if r.answered >= len(s.Calls) {
		return ErrNotAwaitingAction
	}

	current := s.Calls[r.answered]
	for _, out := range outputs {
		if out.CallID == current.ID {
			r.answered++
			break
		}
	}
	return nil
}

// CancelRun marks the run cancelled.
func (s *Script) CancelRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	r.cancelled = true
	return nil
}
