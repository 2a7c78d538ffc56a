package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/radar/internal/agent"
	"github.com/raphaelgruber/radar/internal/metrics"
)

// abandonTimeout bounds the best-effort cancel of a run whose caller is
// gone.
const abandonTimeout = 2 * time.Second

// Outcome is the terminal result of one driven run.
type Outcome struct {
	State  agent.RunState // RunCompleted, RunFailed, or RunCancelled
	Output string         // trailing free text, set on completion
	Reason string         // set on failure
}

// RunHooks receives driver progress during a run. Hooks are called from the
// driver's goroutine, between polls.
type RunHooks struct {
	// Signal receives each decoded emit_signal payload in discovery
	// order. Returning a non-nil error aborts the run.
	Signal func(payload map[string]any) error

	// State observes every run state the poll loop sees, including
	// repeats.
	State func(state agent.RunState)
}

// Driver executes one agent run to completion over the run protocol: start,
// poll at a fixed interval, answer pending emit_signal calls, observe a
// terminal state. Exactly one tool is recognized; calls to anything else are
// left unanswered, which stalls the run until the caller's deadline expires.
type Driver struct {
	runtime   agent.Runtime
	interval  time.Duration
	collector *metrics.Collector
	log       *slog.Logger
}

// NewDriver builds a driver polling at the given interval. An interval of
// zero or less falls back to one second.
func NewDriver(runtime agent.Runtime, interval time.Duration, collector *metrics.Collector, log *slog.Logger) *Driver {
	if interval <= 0 {
		interval = time.Second
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		runtime:   runtime,
		interval:  interval,
		collector: collector,
		log:       log.With("component", "driver"),
	}
}

// Run drives one request to a terminal outcome. Signal payloads are yielded
// through hooks before their tool calls are answered, so a slow consumer
// holds the run parked rather than letting it race ahead.
//
// The returned error is non-nil only for faults outside the run itself:
// protocol errors talking to the runtime, or ctx ending. Agent-side failure
// is reported through Outcome, not error.
func (d *Driver) Run(ctx context.Context, req agent.RunRequest, hooks RunHooks) (Outcome, error) {
	id, err := d.runtime.StartRun(ctx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("start run: %w", err)
	}
	d.log.Debug("run started", "run", id, "topic", req.Topic)

	answered := make(map[string]bool)
	ignored := make(map[string]bool)

	// First poll is immediate; the run may already be parked on a call.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.abandon(id)
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			d.abandon(id)
			return Outcome{}, ctx.Err()
		}

		run, err := d.runtime.GetRun(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				d.abandon(id)
				return Outcome{}, ctx.Err()
			}
			return Outcome{}, fmt.Errorf("poll run %s: %w", id, err)
		}
		if hooks.State != nil {
			hooks.State(run.State)
		}

		switch run.State {
		case agent.RunCompleted:
			return Outcome{State: run.State, Output: run.Output}, nil
		case agent.RunFailed:
			return Outcome{State: run.State, Reason: run.FailReason}, nil
		case agent.RunCancelled:
			return Outcome{State: run.State}, nil
		case agent.RunRequiresAction:
			outputs, err := d.answer(ctx, run, answered, ignored, hooks)
			if err != nil {
				d.abandon(id)
				return Outcome{}, err
			}
			if len(outputs) > 0 {
				err := d.runtime.SubmitToolOutputs(ctx, id, outputs)
				switch {
				case errors.Is(err, agent.ErrNotAwaitingAction):
					// The run moved on without us; the next
					// poll sees its new state.
				case err != nil && ctx.Err() != nil:
					d.abandon(id)
					return Outcome{}, ctx.Err()
				case err != nil:
					return Outcome{}, fmt.Errorf("submit outputs for run %s: %w", id, err)
				}
			}
		}

		timer.Reset(d.interval)
	}
}

// answer walks the run's pending calls, yields each recognized payload, and
// builds the outputs to submit. Calls already handled in this run are
// skipped; unrecognized tools are never answered.
func (d *Driver) answer(ctx context.Context, run agent.Run, answered, ignored map[string]bool, hooks RunHooks) ([]agent.ToolOutput, error) {
	var outputs []agent.ToolOutput
	for _, call := range run.PendingCalls {
		if answered[call.ID] {
			continue
		}
		if call.Name != agent.EmitSignalTool {
			if !ignored[call.ID] {
				ignored[call.ID] = true
				d.log.Warn("ignoring unrecognized tool call",
					"run", run.ID, "call", call.ID, "tool", call.Name)
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(call.Arguments), &payload); err != nil {
			d.log.Warn("dropping signal with malformed arguments",
				"run", run.ID, "call", call.ID, "error", err)
			d.collector.RecordCount(metrics.CounterDropped)
			answered[call.ID] = true
			outputs = append(outputs, agent.ToolOutput{
				CallID: call.ID,
				Output: `{"ok":false,"error":"malformed arguments"}`,
			})
			continue
		}

		if hooks.Signal != nil {
			if err := hooks.Signal(payload); err != nil {
				return nil, err
			}
		}
		answered[call.ID] = true
		outputs = append(outputs, agent.ToolOutput{CallID: call.ID, Output: `{"ok":true}`})
	}
	return outputs, nil
}

// abandon cancels the remote run after the caller's context has ended.
func (d *Driver) abandon(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()
	if err := d.runtime.CancelRun(ctx, id); err != nil {
		d.log.Warn("abandoning run", "run", id, "error", err)
	}
}
