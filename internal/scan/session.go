package scan

import (
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/radar/internal/models"
)

// State is the lifecycle state of one scan session.
type State string

const (
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateAwaitingTool State = "awaiting_tool"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Session is one orchestration run. It lives for the duration of its event
// stream and is discarded afterwards; only the signals it produced persist.
type Session struct {
	ID      string
	Topic   string
	Mission string
	Mode    models.Mode
	Started time.Time

	limit  int
	noSave bool

	mu      sync.Mutex
	state   State
	seen    map[string]bool
	signals []models.Signal
}

func newSession(req models.ScanRequest, defaultLimit int) *Session {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Session{
		ID:      models.NewID(),
		Topic:   strings.TrimSpace(req.Topic),
		Mission: strings.TrimSpace(req.Mission),
		Mode:    models.ParseMode(req.Mode),
		Started: time.Now(),
		limit:   limit,
		noSave:  req.NoSave,
		state:   StateIdle,
		seen:    make(map[string]bool),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Signals returns a copy of the signals discovered so far, in discovery
// order.
func (s *Session) Signals() []models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

// Count returns the number of signals discovered so far.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals)
}

// remember records a dedup key and reports whether it was new. Empty keys
// are never remembered and never count as duplicates.
func (s *Session) remember(key string) bool {
	if key == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	return true
}

func (s *Session) add(sig models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}
