package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/radar/internal/llm"
)

const (
	// defaultSignalTarget bounds runs started without an explicit limit.
	defaultSignalTarget = 8

	// retainTerminalRuns is how long finished runs stay queryable before
	// pruning.
	retainTerminalRuns = 10 * time.Minute
)

// Host is the in-process Runtime. Each run executes a tool-calling LLM loop
// in its own goroutine, parking in requires_action until the driver submits
// outputs for every pending call.
type Host struct {
	model *llm.Model
	log   *slog.Logger

	mu   sync.RWMutex
	runs map[string]*hostRun
}

type hostRun struct {
	id     string
	cancel context.CancelFunc

	mu         sync.Mutex
	state      RunState
	pending    []ToolCall
	answers    map[string]string // building toward full coverage of pending
	delivered  map[string]string // complete answer set awaiting pickup
	output     string
	failReason string
	doneAt     time.Time

	wake chan struct{}
}

// NewHost creates a run host backed by the given model.
func NewHost(model *llm.Model, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{
		model: model,
		log:   log,
		runs:  make(map[string]*hostRun),
	}
}

// StartRun begins a new agent run and returns its id. The run executes in a
// background goroutine detached from the caller's context; stop it with
// CancelRun or Close.
func (h *Host) StartRun(_ context.Context, req RunRequest) (string, error) {
	if req.Topic == "" {
		return "", fmt.Errorf("topic required")
	}
	if req.Limit <= 0 {
		req.Limit = defaultSignalTarget
	}

	h.prune()

	runCtx, cancel := context.WithCancel(context.Background())
	r := &hostRun{
		id:     uuid.New().String()[:8], // Short ID for convenience
		state:  RunQueued,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}

	h.mu.Lock()
	h.runs[r.id] = r
	h.mu.Unlock()

	h.log.Info("run started", "run_id", r.id, "topic", req.Topic, "mission", req.Mission, "limit", req.Limit)
	go h.execute(runCtx, r, req)

	return r.id, nil
}

// GetRun returns a snapshot of the run's current state.
func (h *Host) GetRun(_ context.Context, id string) (Run, error) {
	r, err := h.get(id)
	if err != nil {
		return Run{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Run{
		ID:         r.id,
		State:      r.state,
		Output:     r.output,
		FailReason: r.failReason,
	}
	if len(r.pending) > 0 {
		snap.PendingCalls = slices.Clone(r.pending)
	}
	return snap, nil
}

// SubmitToolOutputs records answers for pending calls. The run resumes once
// every pending call is covered; partial submissions leave it parked.
func (h *Host) SubmitToolOutputs(_ context.Context, id string, outputs []ToolOutput) error {
	r, err := h.get(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RunRequiresAction {
		return ErrNotAwaitingAction
	}

	known := make(map[string]bool, len(r.pending))
	for _, call := range r.pending {
		known[call.ID] = true
	}
	for _, out := range outputs {
		if !known[out.CallID] {
			h.log.Warn("output for unknown tool call ignored", "run_id", id, "call_id", out.CallID)
			continue
		}
		r.answers[out.CallID] = out.Output
	}

	if len(r.answers) == len(r.pending) {
		r.delivered = r.answers
		r.answers = nil
		r.pending = nil
		r.state = RunInProgress
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// CancelRun stops a run best-effort. Cancelling a terminal run is a no-op.
func (h *Host) CancelRun(_ context.Context, id string) error {
	r, err := h.get(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return nil
	}
	r.state = RunCancelled
	r.doneAt = time.Now()
	r.mu.Unlock()

	r.cancel()
	h.log.Info("run cancelled", "run_id", id)
	return nil
}

// Close cancels every live run. Used on server shutdown.
func (h *Host) Close() {
	h.mu.RLock()
	runs := make([]*hostRun, 0, len(h.runs))
	for _, r := range h.runs {
		runs = append(runs, r)
	}
	h.mu.RUnlock()

	for _, r := range runs {
		r.mu.Lock()
		terminal := r.state.Terminal()
		if !terminal {
			r.state = RunCancelled
			r.doneAt = time.Now()
		}
		r.mu.Unlock()
		if !terminal {
			r.cancel()
		}
	}
}

func (h *Host) get(id string) (*hostRun, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, nil
}

// prune drops terminal runs past the retention window. Called on StartRun so
// the map cannot grow without bound on a long-lived server.
func (h *Host) prune() {
	cutoff := time.Now().Add(-retainTerminalRuns)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.runs {
		r.mu.Lock()
		expired := r.state.Terminal() && !r.doneAt.IsZero() && r.doneAt.Before(cutoff)
		r.mu.Unlock()
		if expired {
			delete(h.runs, id)
		}
	}
}

// execute drives the tool loop for one run.
func (h *Host) execute(ctx context.Context, r *hostRun, req RunRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("run goroutine panicked", "run_id", r.id, "panic", rec)
			r.finish(RunFailed, "", fmt.Sprintf("internal panic: %v", rec))
		}
	}()

	r.setState(RunInProgress)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, scoutSystemPrompt(req.Limit)),
		llms.TextParts(llms.ChatMessageTypeHuman, scoutUserPrompt(req)),
	}
	tools := []llms.Tool{emitSignalTool()}

	// Each emitted signal costs one round; the extra headroom covers lead-in
	// and wrap-up turns.
	maxRounds := req.Limit*2 + 4

	for round := 0; round < maxRounds; round++ {
		resp, err := h.model.GenerateWithTools(ctx, messages, tools)
		if err != nil {
			if ctx.Err() != nil {
				r.finish(RunCancelled, "", "")
				return
			}
			h.log.Warn("run generation failed", "run_id", r.id, "round", round, "error", err)
			r.finish(RunFailed, "", err.Error())
			return
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			r.finish(RunCompleted, choice.Content, "")
			return
		}

		// The assistant turn, tool calls included, goes back into the
		// history so the next round sees them answered.
		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			assistant.Parts = append(assistant.Parts, llms.TextPart(choice.Content))
		}
		pending := make([]ToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			if tc.ID == "" {
				// Some providers (ollama) omit call ids.
				tc.ID = "call-" + uuid.New().String()[:8]
			}
			assistant.Parts = append(assistant.Parts, tc)
			pending = append(pending, ToolCall{
				ID:        tc.ID,
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			})
		}
		messages = append(messages, assistant)

		if len(pending) == 0 {
			r.finish(RunCompleted, choice.Content, "")
			return
		}

		r.parkOn(pending)
		answers, ok := r.awaitOutputs(ctx)
		if !ok {
			r.finish(RunCancelled, "", "")
			return
		}

		for _, call := range pending {
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       call.Name,
					Content:    answers[call.ID],
				}},
			})
		}
	}

	h.log.Warn("run exceeded tool round budget", "run_id", r.id, "rounds", maxRounds)
	r.finish(RunFailed, "", "tool round budget exhausted")
}

func (r *hostRun) setState(s RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = s
}

// finish moves the run to a terminal state. A run already terminal (for
// example cancelled from outside) keeps its state.
func (r *hostRun) finish(state RunState, output, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = state
	r.output = output
	r.failReason = reason
	r.doneAt = time.Now()
}

func (r *hostRun) parkOn(pending []ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = RunRequiresAction
	r.pending = pending
	r.answers = make(map[string]string, len(pending))
}

// awaitOutputs blocks until SubmitToolOutputs delivers a complete answer set
// or the run context ends.
func (r *hostRun) awaitOutputs(ctx context.Context) (map[string]string, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-r.wake:
		}

		r.mu.Lock()
		if r.delivered != nil {
			answers := r.delivered
			r.delivered = nil
			r.mu.Unlock()
			return answers, true
		}
		r.mu.Unlock()
	}
}

// emitSignalTool is the single tool definition exposed to the model.
func emitSignalTool() llms.Tool {
	scoreProp := func(desc string) map[string]any {
		return map[string]any{"type": "number", "description": desc + " from 0.0 to 1.0"}
	}
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        EmitSignalTool,
			Description: "Report one discovered signal. Call once per distinct finding.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":           map[string]any{"type": "string", "description": "Short headline for the finding"},
					"summary":         map[string]any{"type": "string", "description": "One or two sentences on what it is and why it matters"},
					"url":             map[string]any{"type": "string", "description": "Canonical source link, or empty if none"},
					"mission":         map[string]any{"type": "string", "description": "Mission label this belongs to"},
					"score_activity":  scoreProp("Recent activity level"),
					"score_attention": scoreProp("Public attention"),
					"score_novelty":   scoreProp("How new the development is"),
					"score_evidence":  scoreProp("Strength of supporting evidence"),
					"score_impact":    scoreProp("Potential impact"),
				},
				"required": []string{"title"},
			},
		},
	}
}

func scoutSystemPrompt(limit int) string {
	return fmt.Sprintf(`You are a research scout. Find distinct, current signals for the topic: concrete developments such as launches, papers, funding rounds, policy moves, or notable projects.

For every finding call the emit_signal tool exactly once, with honest scores. Never invent URLs; leave url empty when unsure. Report at most %d signals, then stop calling tools and reply with a short summary of the landscape.`, limit)
}

func scoutUserPrompt(req RunRequest) string {
	return fmt.Sprintf("Topic: %s\nMission context: %s", req.Topic, req.Mission)
}
