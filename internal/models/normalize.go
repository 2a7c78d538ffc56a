package models

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// citationPattern matches bracketed citation markers like [1] that models
// sometimes glue onto links.
var citationPattern = regexp.MustCompile(`\[\d+\]`)

// schemePattern matches an explicit URL scheme prefix.
var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// NewID returns a short random signal id.
func NewID() string {
	return uuid.New().String()[:8]
}

// FromPayload builds a normalized Signal from untrusted payload fields, as
// delivered by a tool call or a structured generation. Missing or malformed
// fields degrade to zero values; a broken URL degrades to no link. The
// payload never causes an error.
func FromPayload(p map[string]any, catalog []string) Signal {
	s := Signal{
		ID:             strings.TrimSpace(asString(p["id"])),
		Title:          strings.TrimSpace(asString(p["title"])),
		Summary:        strings.TrimSpace(asString(p["summary"])),
		Source:         strings.TrimSpace(asString(p["source"])),
		ScoreActivity:  CoerceScore(p["score_activity"]),
		ScoreAttention: CoerceScore(p["score_attention"]),
		ScoreNovelty:   CoerceScore(p["score_novelty"]),
		ScoreEvidence:  CoerceScore(p["score_evidence"]),
		ScoreImpact:    CoerceScore(p["score_impact"]),
		Status:         StatusNew,
	}

	// Accept the hook alias for summary.
	if s.Summary == "" {
		s.Summary = strings.TrimSpace(asString(p["hook"]))
	}

	mission := asString(p["mission"])
	if mission == "" {
		mission = asString(p["category"])
	}
	s.Mission = NormalizeMission(mission, catalog)

	s.URL = NormalizeURL(asString(p["url"]))

	if s.ID == "" {
		s.ID = NewID()
	}
	return s
}

// CoerceScore converts an arbitrary payload value to a finite float64.
// Absent, non-numeric, or non-finite values become 0.
func CoerceScore(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	case float32:
		return CoerceScore(float64(n))
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// NormalizeURL cleans a raw link and validates it as an absolute http(s)
// URL. It strips bracketed citation markers and surrounding quotes, prepends
// https:// to bare domains, and returns "" for anything that still fails
// validation. Normalizing an already-normalized URL returns it unchanged.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = citationPattern.ReplaceAllString(s, "")
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if !schemePattern.MatchString(s) {
		// Bare domain or domain/path. Require a dotted host before
		// inventing a scheme, so prose never becomes a link.
		host := s
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
		if !strings.Contains(host, ".") || strings.ContainsAny(host, " \t") {
			return ""
		}
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	return u.String()
}

// URLKey reduces a normalized URL to its session/store dedup key:
// lowercased, scheme and fragment dropped, default port and trailing slash
// trimmed, tracking parameters removed, path decoded.
func URLKey(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(normalized))
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")

	path := strings.TrimSuffix(u.Path, "/")

	key := host + path
	if q := filterQuery(u.Query()); q != "" {
		key += "?" + q
	}
	return strings.ToLower(key)
}

// filterQuery re-encodes a query string without tracking parameters.
func filterQuery(q url.Values) string {
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			delete(q, k)
		}
	}
	return q.Encode()
}

// TitleKey reduces a title to its dedup key: lowercased with whitespace
// collapsed.
func TitleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// DedupKey returns the uniqueness key for a signal: its URL key when a link
// is present, its title key otherwise. A signal with neither link nor title
// yields "" and is never treated as a duplicate.
func DedupKey(s Signal) string {
	if s.URL != "" {
		return "url:" + URLKey(s.URL)
	}
	if k := TitleKey(s.Title); k != "" {
		return "title:" + k
	}
	return ""
}

// asString extracts a string from an arbitrary payload value. Numbers are
// rendered compactly; other types become "".
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return ""
	}
}
