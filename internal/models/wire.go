package models

import "strings"

// Mode selects the acquisition strategy for a scan.
type Mode string

const (
	// ModeAgent drives a full tool-using agent run and streams one blip
	// line per discovered signal. This is the default.
	ModeAgent Mode = "agent"
	// ModeSnapshot issues a single structured generation and returns the
	// whole signal set as one JSON document.
	ModeSnapshot Mode = "snapshot"
	// ModeFeeds scans the configured RSS watchlist for topic matches.
	ModeFeeds Mode = "feeds"
)

// ParseMode maps a raw mode string to a Mode. Unrecognized values fall back
// to ModeAgent rather than erroring.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSnapshot:
		return ModeSnapshot
	case ModeFeeds:
		return ModeFeeds
	default:
		return ModeAgent
	}
}

// ScanRequest is the client request opening a scan.
type ScanRequest struct {
	Topic   string `json:"topic"`
	Mission string `json:"mission,omitempty"`
	Mode    string `json:"mode,omitempty"`
	// Limit caps the number of signals the scan asks for. Zero means the
	// server default.
	Limit int `json:"limit,omitempty"`
	// NoSave skips persistence; signals are only streamed.
	NoSave bool `json:"no_save,omitempty"`
}

// StreamLine is one newline-delimited JSON object of a scan stream. Exactly
// one shape is populated per line:
//
//	{"msg": "..."}                        progress narration
//	{"status": "blip", "blip": {...}}     one signal (agent mode)
//	{"status": "signal", "signal": {...}} one signal (other modes)
//	{"status": "error", "msg": "..."}     warning or run failure
//
// The stream has no terminator token; the connection closing means done.
type StreamLine struct {
	Msg    string  `json:"msg,omitempty"`
	Status string  `json:"status,omitempty"`
	Blip   *Signal `json:"blip,omitempty"`
	Signal *Signal `json:"signal,omitempty"`
}

// Stream line status values.
const (
	LineBlip   = "blip"
	LineSignal = "signal"
	LineError  = "error"
)

// Payload returns the signal carried by the line regardless of which field
// name the producer used, or nil for non-signal lines.
func (l StreamLine) Payload() *Signal {
	if l.Blip != nil {
		return l.Blip
	}
	return l.Signal
}
