package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/radar/internal/agent"
	"github.com/raphaelgruber/radar/internal/llm"
)

// snapshotSystem instructs the model to answer with one structured document
// instead of tool calls.
const snapshotSystem = `You are a research scout. Survey the given topic and report the most notable current signals: projects, papers, products, communities, or events showing real momentum.

Respond with ONLY a JSON object of the form
{"signals": [{"title": "...", "summary": "...", "url": "...", "mission": "...", "score_activity": 0.0, "score_attention": 0.0, "score_novelty": 0.0, "score_evidence": 0.0, "score_impact": 0.0}]}

Rules:
- Scores are between 0 and 1.
- Every signal needs a title; include a source URL whenever one exists.
- No markdown, no commentary, no code fences.`

// runSnapshot acquires the whole signal set in one structured generation.
// Like the agent path, a fault is retried once while nothing has streamed.
func (o *Orchestrator) runSnapshot(ctx context.Context, s *Session, events chan<- Event) (Outcome, error) {
	if o.generator == nil {
		return Outcome{}, errors.New("snapshot mode is not configured")
	}

	o.send(ctx, events, progressEvent("taking a snapshot of %q", s.Topic))

	generate := func() (string, error) {
		return o.generator.GenerateWithSystem(ctx, snapshotSystem, snapshotPrompt(s))
	}

	doc, err := generate()
	if err != nil && ctx.Err() == nil && llm.IsRetryable(err) {
		o.log.Warn("snapshot generation failed, retrying once",
			"session", s.ID, "error", err)
		select {
		case <-time.After(o.retryBackoff):
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
		doc, err = generate()
	}
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, fmt.Errorf("snapshot generation: %w", err)
	}

	payloads := parseSnapshotSignals(doc)
	if len(payloads) == 0 {
		o.log.Warn("snapshot returned no structured signals", "session", s.ID)
		o.send(ctx, events, progressEvent("the model returned no structured signals"))
		return Outcome{State: agent.RunCompleted}, nil
	}

	for _, p := range payloads {
		if s.Count() >= s.limit {
			break
		}
		if err := o.deliverPayload(ctx, s, events, p, "snapshot"); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{State: agent.RunCompleted}, nil
}

func snapshotPrompt(s *Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", s.Topic)
	if s.Mission != "" {
		fmt.Fprintf(&b, "Focus area: %s\n", s.Mission)
	}
	fmt.Fprintf(&b, "Report up to %d signals.", s.limit)
	return b.String()
}

// parseSnapshotSignals extracts signal payloads from a model response. The
// expected shape is {"signals": [...]}, but a bare top-level array and
// fenced or prose-wrapped documents are tolerated. Unparseable text yields
// nil.
func parseSnapshotSignals(text string) []map[string]any {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil
	}

	var doc struct {
		Signals []map[string]any `json:"signals"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err == nil && len(doc.Signals) > 0 {
		return doc.Signals
	}

	var list []map[string]any
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	return nil
}
