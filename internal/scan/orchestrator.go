// Package scan owns the lifecycle of one scan: it drives an agent run (or a
// simpler acquisition mode), normalizes and deduplicates every emitted
// signal, and exposes the result as an ordered event stream.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/radar/internal/agent"
	"github.com/raphaelgruber/radar/internal/llm"
	"github.com/raphaelgruber/radar/internal/metrics"
	"github.com/raphaelgruber/radar/internal/models"
	"github.com/raphaelgruber/radar/internal/store"
)

const (
	defaultPollInterval = time.Second
	defaultScanTimeout  = 150 * time.Second
	defaultMaxSignals   = 8
	defaultRetryBackoff = 500 * time.Millisecond

	// progressNoteEvery paces the "still scanning" narration while the
	// run has produced nothing yet.
	progressNoteEvery = 15 * time.Second
)

// Generator produces the single-shot document for snapshot mode.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// FeedFetcher acquires topic-matched signals from the RSS watchlist.
type FeedFetcher interface {
	Fetch(ctx context.Context, topic, mission string, limit int) ([]models.Signal, error)
}

// Config wires an orchestrator's collaborators. Runtime and Gateway are
// required; Generator and Feeds may be nil, which disables their modes.
type Config struct {
	Runtime   agent.Runtime
	Generator Generator
	Feeds     FeedFetcher
	Gateway   store.Gateway
	Missions  []string
	Collector *metrics.Collector
	Logger    *slog.Logger

	PollInterval time.Duration
	ScanTimeout  time.Duration
	MaxSignals   int
}

// Orchestrator turns scan requests into event streams. It is safe for
// concurrent use; each scan gets its own session and goroutine.
type Orchestrator struct {
	runtime   agent.Runtime
	generator Generator
	feeds     FeedFetcher
	gateway   store.Gateway
	missions  []string
	collector *metrics.Collector
	log       *slog.Logger

	pollInterval time.Duration
	scanTimeout  time.Duration
	maxSignals   int
	retryBackoff time.Duration
}

// New builds an orchestrator, applying defaults for anything unset.
func New(cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.MaxSignals <= 0 {
		cfg.MaxSignals = defaultMaxSignals
	}
	if len(cfg.Missions) == 0 {
		cfg.Missions = models.DefaultMissions
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		runtime:      cfg.Runtime,
		generator:    cfg.Generator,
		feeds:        cfg.Feeds,
		gateway:      cfg.Gateway,
		missions:     cfg.Missions,
		collector:    cfg.Collector,
		log:          cfg.Logger.With("component", "scan"),
		pollInterval: cfg.PollInterval,
		scanTimeout:  cfg.ScanTimeout,
		maxSignals:   cfg.MaxSignals,
		retryBackoff: defaultRetryBackoff,
	}
}

// Scan opens a session for the request and returns it together with its
// event stream. The channel is unbuffered so the consumer's pace throttles
// the agent; it closes once the session reaches a terminal state. Cancelling
// ctx stops the scan within one polling interval.
func (o *Orchestrator) Scan(ctx context.Context, req models.ScanRequest) (*Session, <-chan Event) {
	s := newSession(req, o.maxSignals)
	events := make(chan Event)
	go o.run(ctx, s, events)
	return s, events
}

// Snapshot runs a single-shot scan to completion and returns the full
// signal set. Unlike Scan there is no streaming; the call blocks until the
// session ends.
func (o *Orchestrator) Snapshot(ctx context.Context, req models.ScanRequest) ([]models.Signal, error) {
	req.Mode = string(models.ModeSnapshot)
	s, events := o.Scan(ctx, req)

	var fatal string
	for ev := range events {
		if ev.Kind == KindFatal {
			fatal = ev.Msg
		}
	}
	if s.State() == StateFailed {
		if fatal == "" {
			fatal = "scan failed"
		}
		return nil, errors.New(fatal)
	}
	return s.Signals(), nil
}

// run executes one session. reqCtx is the caller's context; the scan
// deadline is layered on top of it, so a timed-out scan can still push its
// fatal event to a live client.
func (o *Orchestrator) run(reqCtx context.Context, s *Session, events chan<- Event) {
	defer close(events)

	start := time.Now()
	defer func() {
		o.collector.RecordTiming(metrics.OpScan, time.Since(start))
	}()

	if s.Topic == "" {
		s.setState(StateFailed)
		o.collector.RecordCount(metrics.CounterScansFailed)
		o.send(reqCtx, events, fatalEvent("topic is required"))
		return
	}

	ctx, cancel := context.WithTimeout(reqCtx, o.scanTimeout)
	defer cancel()

	s.setState(StateRunning)
	o.log.Info("scan started", "session", s.ID, "topic", s.Topic, "mode", s.Mode)
	if !o.send(ctx, events, progressEvent("scanning %q", s.Topic)) {
		s.setState(StateCancelled)
		return
	}

	var outcome Outcome
	var err error
	switch s.Mode {
	case models.ModeFeeds:
		outcome, err = o.runFeeds(ctx, s, events)
	case models.ModeSnapshot:
		outcome, err = o.runSnapshot(ctx, s, events)
	default:
		outcome, err = o.runAgent(ctx, s, events)
	}
	o.finish(reqCtx, s, events, outcome, err)
}

// runAgent drives the full run protocol. A fault before the first signal is
// retried once after a short backoff; once streaming has started, any fault
// ends the session.
func (o *Orchestrator) runAgent(ctx context.Context, s *Session, events chan<- Event) (Outcome, error) {
	driver := NewDriver(o.runtime, o.pollInterval, o.collector, o.log)
	req := agent.RunRequest{Topic: s.Topic, Mission: s.Mission, Limit: s.limit}

	lastNote := time.Now()
	hooks := RunHooks{
		State: func(state agent.RunState) {
			switch state {
			case agent.RunRequiresAction:
				s.setState(StateAwaitingTool)
			case agent.RunQueued, agent.RunInProgress:
				s.setState(StateRunning)
				if s.Count() == 0 && time.Since(lastNote) >= progressNoteEvery {
					lastNote = time.Now()
					o.send(ctx, events, progressEvent("still scanning, nothing yet"))
				}
			}
		},
		Signal: func(payload map[string]any) error {
			return o.deliverPayload(ctx, s, events, payload, "agent")
		},
	}

	outcome, err := driver.Run(ctx, req, hooks)
	if err != nil && ctx.Err() == nil && s.Count() == 0 && llm.IsRetryable(err) {
		o.log.Warn("run failed before first signal, retrying once",
			"session", s.ID, "error", err)
		select {
		case <-time.After(o.retryBackoff):
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
		outcome, err = driver.Run(ctx, req, hooks)
	}
	return outcome, err
}

// runFeeds acquires signals from the RSS watchlist instead of the agent.
func (o *Orchestrator) runFeeds(ctx context.Context, s *Session, events chan<- Event) (Outcome, error) {
	if o.feeds == nil {
		return Outcome{}, errors.New("feed scanning is not configured")
	}

	o.send(ctx, events, progressEvent("checking the feed watchlist"))
	sigs, err := o.feeds.Fetch(ctx, s.Topic, s.Mission, s.limit)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, fmt.Errorf("feed scan: %w", err)
	}

	for _, sig := range sigs {
		if s.Count() >= s.limit {
			break
		}
		if err := o.deliverSignal(ctx, s, events, sig); err != nil {
			return Outcome{}, err
		}
	}
	if s.Count() == 0 {
		o.send(ctx, events, progressEvent("no feed items matched %q", s.Topic))
	}
	return Outcome{State: agent.RunCompleted}, nil
}

// deliverPayload normalizes an untrusted payload and hands it to the
// pipeline, stamping the acquisition channel as its source.
func (o *Orchestrator) deliverPayload(ctx context.Context, s *Session, events chan<- Event, payload map[string]any, source string) error {
	sig := models.FromPayload(payload, o.missions)
	sig.Source = source
	return o.deliverSignal(ctx, s, events, sig)
}

// deliverSignal runs the per-signal pipeline: normalize, dedup against the
// session and then the gateway, emit, persist. Per-item faults are absorbed
// here; only a dead context propagates.
func (o *Orchestrator) deliverSignal(ctx context.Context, s *Session, events chan<- Event, sig models.Signal) error {
	sig.URL = models.NormalizeURL(sig.URL)
	if sig.ID == "" {
		sig.ID = models.NewID()
	}
	if sig.Status == "" {
		sig.Status = models.StatusNew
	}

	key := models.DedupKey(sig)
	if !s.remember(key) {
		o.collector.RecordCount(metrics.CounterBlips)
		o.log.Debug("duplicate signal in session", "session", s.ID, "key", key)
		return nil
	}
	if key != "" {
		start := time.Now()
		exists, err := o.gateway.HasSignal(ctx, key)
		if err != nil {
			// The pre-write check is an optimization. A failing
			// gateway read must not kill the scan; the upsert is
			// idempotent anyway.
			o.log.Warn("dedup lookup failed", "session", s.ID, "key", key, "error", err)
		} else {
			o.collector.RecordTiming(metrics.OpStoreQuery, time.Since(start))
			if exists {
				o.collector.RecordCount(metrics.CounterBlips)
				o.log.Debug("signal already stored", "session", s.ID, "key", key)
				return nil
			}
		}
	}

	s.add(sig)
	o.collector.RecordCount(metrics.CounterSignals)
	if !o.send(ctx, events, signalEvent(sig)) {
		return ctx.Err()
	}

	if s.noSave {
		return nil
	}
	start := time.Now()
	if err := o.gateway.UpsertSignal(ctx, sig); err != nil {
		o.log.Warn("saving signal", "session", s.ID, "signal", sig.ID, "error", err)
		o.send(ctx, events, errorEvent("could not save %q", sig.Title))
		return nil
	}
	o.collector.RecordTiming(metrics.OpStoreUpsert, time.Since(start))
	return nil
}

// finish maps the terminal outcome onto the session state, the counters,
// and at most one trailing event. Sends use the caller's context rather
// than the scan deadline so a timeout still reaches the client.
func (o *Orchestrator) finish(reqCtx context.Context, s *Session, events chan<- Event, outcome Outcome, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		s.setState(StateCancelled)
		o.collector.RecordCount(metrics.CounterScansStopped)
		o.log.Info("scan cancelled", "session", s.ID, "signals", s.Count())

	case errors.Is(err, context.DeadlineExceeded):
		s.setState(StateFailed)
		o.collector.RecordCount(metrics.CounterScansFailed)
		o.send(reqCtx, events, fatalEvent("scan timed out after %s", o.scanTimeout))
		o.log.Warn("scan timed out", "session", s.ID, "signals", s.Count())

	case err != nil:
		s.setState(StateFailed)
		o.collector.RecordCount(metrics.CounterScansFailed)
		o.send(reqCtx, events, fatalEvent("scan failed: %v", err))
		o.log.Error("scan failed", "session", s.ID, "error", err)

	case outcome.State == agent.RunFailed:
		s.setState(StateFailed)
		o.collector.RecordCount(metrics.CounterScansFailed)
		reason := outcome.Reason
		if reason == "" {
			reason = "unknown reason"
		}
		o.send(reqCtx, events, fatalEvent("agent run failed: %s", reason))
		o.log.Error("agent run failed", "session", s.ID, "reason", reason)

	case outcome.State == agent.RunCancelled:
		s.setState(StateCancelled)
		o.collector.RecordCount(metrics.CounterScansStopped)
		o.log.Info("run cancelled", "session", s.ID, "signals", s.Count())

	default:
		if s.Count() == 0 && outcome.Output != "" {
			o.send(reqCtx, events, progressEvent("%s", outcome.Output))
		}
		o.send(reqCtx, events, progressEvent("scan complete: %d signals", s.Count()))
		s.setState(StateCompleted)
		o.collector.RecordCount(metrics.CounterScansDone)
		o.log.Info("scan complete", "session", s.ID, "signals", s.Count())
	}
}

// send delivers one event, giving up when ctx ends.
func (o *Orchestrator) send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
