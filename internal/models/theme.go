package models

import "time"

// Theme strength tags, strongest first.
const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
)

// UnsortedTheme is the residual bucket name for signals the clusterer could
// not group.
const UnsortedTheme = "Unsorted"

// Theme is a named grouping of related signals produced after a scan.
// Membership is partition-exclusive: a signal id appears in at most one
// theme of a set.
type Theme struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SignalIDs   []string `json:"signal_ids"`
	Strength    string   `json:"strength"`
}

// ThemeSet is a persisted clustering result, retrievable under its ID.
type ThemeSet struct {
	ID      string    `json:"scan_id,omitempty"`
	Themes  []Theme   `json:"themes"`
	Created time.Time `json:"created,omitempty"`
}

// StrengthFor derives a qualitative confidence tag from a theme's member
// count.
func StrengthFor(members int) string {
	switch {
	case members >= 4:
		return StrengthStrong
	case members == 3:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
