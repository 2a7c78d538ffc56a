package scan

import (
	"fmt"

	"github.com/raphaelgruber/radar/internal/models"
)

// Kind tags one orchestrator event.
type Kind string

const (
	// KindProgress is human-readable narration.
	KindProgress Kind = "progress"
	// KindSignal carries one normalized signal.
	KindSignal Kind = "signal"
	// KindError is a non-fatal per-item warning. The session continues.
	KindError Kind = "error"
	// KindFatal is a run-level failure. It is the last event of a stream.
	KindFatal Kind = "fatal"
)

// Event is one element of a scan's event stream.
type Event struct {
	Kind   Kind
	Msg    string
	Signal *models.Signal
}

// Line serializes the event to its wire form. Agent-driven scans label
// signal lines "blip", the other modes "signal". Warnings and fatal
// failures share one wire shape; only stream closure marks the difference.
func (e Event) Line(mode models.Mode) models.StreamLine {
	switch e.Kind {
	case KindSignal:
		if mode == models.ModeAgent {
			return models.StreamLine{Status: models.LineBlip, Blip: e.Signal}
		}
		return models.StreamLine{Status: models.LineSignal, Signal: e.Signal}
	case KindError, KindFatal:
		return models.StreamLine{Status: models.LineError, Msg: e.Msg}
	default:
		return models.StreamLine{Msg: e.Msg}
	}
}

func progressEvent(format string, args ...any) Event {
	return Event{Kind: KindProgress, Msg: fmt.Sprintf(format, args...)}
}

func signalEvent(sig models.Signal) Event {
	return Event{Kind: KindSignal, Signal: &sig}
}

func errorEvent(format string, args ...any) Event {
	return Event{Kind: KindError, Msg: fmt.Sprintf(format, args...)}
}

func fatalEvent(format string, args ...any) Event {
	return Event{Kind: KindFatal, Msg: fmt.Sprintf(format, args...)}
}
