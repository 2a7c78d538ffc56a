// Package agent defines the run protocol for the research agent and an
// in-process host that executes runs over a tool-calling LLM loop.
//
// The protocol is deliberately narrow: start a run, poll its state, answer
// pending tool calls, observe a terminal state. Everything the agent knows
// about signals travels through the emit_signal tool call's arguments.
package agent

import (
	"context"
	"errors"
)

// RunState is the lifecycle state of one agent run.
type RunState string

const (
	RunQueued         RunState = "queued"
	RunInProgress     RunState = "in_progress"
	RunRequiresAction RunState = "requires_action"
	RunCompleted      RunState = "completed"
	RunFailed         RunState = "failed"
	RunCancelled      RunState = "cancelled"
)

// Terminal reports whether the run has finished and will not change state.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// EmitSignalTool is the one action name the scan driver recognizes. The
// payload of a call to this tool is a complete signal; answering the call is
// an acknowledgement, not a computation.
const EmitSignalTool = "emit_signal"

// ToolCall is one pending action requested by a run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolOutput answers one pending tool call.
type ToolOutput struct {
	CallID string
	Output string
}

// Run is an observable snapshot of one agent run.
type Run struct {
	ID           string
	State        RunState
	PendingCalls []ToolCall // non-empty only in requires_action
	Output       string     // trailing free text, set on completion
	FailReason   string     // set on failure
}

// RunRequest describes one "find signals for this topic" request.
type RunRequest struct {
	Topic   string
	Mission string
	Limit   int // signal-count target, > 0
}

// Sentinel errors for runtime operations.
var (
	// ErrRunNotFound indicates no run exists under the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNotAwaitingAction indicates outputs were submitted to a run that
	// has no pending tool calls.
	ErrNotAwaitingAction = errors.New("run is not awaiting tool outputs")
)

// Runtime is the narrow protocol the scan driver speaks. Implementations
// must allow GetRun and SubmitToolOutputs from a different goroutine than
// StartRun.
type Runtime interface {
	// StartRun begins a new agent run and returns its id immediately; the
	// run executes asynchronously.
	StartRun(ctx context.Context, req RunRequest) (string, error)

	// GetRun returns a snapshot of the run's current state.
	GetRun(ctx context.Context, id string) (Run, error)

	// SubmitToolOutputs answers pending tool calls. The run resumes only
	// once every pending call has an output; partial submissions leave it
	// in requires_action.
	SubmitToolOutputs(ctx context.Context, id string, outputs []ToolOutput) error

	// CancelRun stops a run best-effort. Cancelling a terminal run is a
	// no-op.
	CancelRun(ctx context.Context, id string) error
}
