// Package models defines the signal data model shared by every component:
// the canonical Signal shape, its lifecycle status vocabulary, scan themes,
// and the normalization rules that turn untrusted agent payloads into
// well-formed records.
package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle tag of a signal. It is the only mutable field of a
// persisted signal; records are never deleted, only marked Archived/Rejected.
type Status string

const (
	StatusNew         Status = "New"
	StatusActive      Status = "Active"
	StatusStarred     Status = "Starred"
	StatusArchived    Status = "Archived"
	StatusRejected    Status = "Rejected"
	StatusShortlisted Status = "Shortlisted"
	StatusSaved       Status = "Saved"
)

// allStatuses lists the accepted status vocabulary.
var allStatuses = []Status{
	StatusNew,
	StatusActive,
	StatusStarred,
	StatusArchived,
	StatusRejected,
	StatusShortlisted,
	StatusSaved,
}

// ParseStatus matches a status string case-insensitively against the known
// vocabulary. Returns an error for anything outside it.
func ParseStatus(s string) (Status, error) {
	trimmed := strings.TrimSpace(s)
	for _, st := range allStatuses {
		if strings.EqualFold(trimmed, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Signal is a discovered candidate item. Instances are created by the scan
// pipeline (agent tool call, snapshot result, or feed item) and are already
// normalized: the URL is a validated absolute http(s) link or empty, scores
// are finite numbers, and the mission label comes from the configured
// catalog.
type Signal struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Summary        string  `json:"summary"`
	URL            string  `json:"url,omitempty"`
	Mission        string  `json:"mission"`
	Source         string  `json:"source,omitempty"`
	ScoreActivity  float64 `json:"score_activity"`
	ScoreAttention float64 `json:"score_attention"`
	ScoreNovelty   float64 `json:"score_novelty"`
	ScoreEvidence  float64 `json:"score_evidence"`
	ScoreImpact    float64 `json:"score_impact"`
	Status         Status  `json:"status"`
}

// TotalScore sums the sub-scores. Used for display ordering only.
func (s Signal) TotalScore() float64 {
	return s.ScoreActivity + s.ScoreAttention + s.ScoreNovelty + s.ScoreEvidence + s.ScoreImpact
}

// MissionGeneral is the fallback mission label for signals whose mission is
// absent or outside the configured catalog.
const MissionGeneral = "General"

// DefaultMissions is the built-in mission catalog, used when no catalog file
// is configured. A config file replaces (not extends) this list.
var DefaultMissions = []string{
	"A Sustainable Future",
	"Health & Longevity",
	"Digital Frontiers",
	"The New Economy",
	MissionGeneral,
}

// NormalizeMission matches a raw mission label case-insensitively against the
// catalog and returns the canonical spelling, or MissionGeneral when the
// label is empty or unknown.
func NormalizeMission(raw string, catalog []string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MissionGeneral
	}
	for _, m := range catalog {
		if strings.EqualFold(trimmed, m) {
			return m
		}
	}
	return MissionGeneral
}
