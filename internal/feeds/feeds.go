// Package feeds implements the feeds acquisition mode: the configured RSS
// watchlist is fetched concurrently and recent items matching the topic
// become signals.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/radar/internal/config"
	"github.com/raphaelgruber/radar/internal/metrics"
	"github.com/raphaelgruber/radar/internal/models"
)

const (
	defaultMaxConcurrent = 4
	defaultFetchTimeout  = 15 * time.Second
	defaultMaxItemAge    = 30 * 24 * time.Hour

	// fetchSpacing keeps the watchlist sweep polite to feed hosts.
	fetchSpacing = 200 * time.Millisecond

	summaryLimit = 240
)

// Config tunes a Scanner. Zero values pick defaults.
type Config struct {
	Sources       []config.FeedSource
	Missions      []string
	MaxConcurrent int
	FetchTimeout  time.Duration
	MaxItemAge    time.Duration
	Collector     *metrics.Collector
	Logger        *slog.Logger
}

// Scanner sweeps the watchlist and filters items against a topic. It
// satisfies the orchestrator's FeedFetcher.
type Scanner struct {
	sources   []config.FeedSource
	missions  []string
	parser    *gofeed.Parser
	limiter   *rate.Limiter
	maxConc   int
	timeout   time.Duration
	maxAge    time.Duration
	collector *metrics.Collector
	log       *slog.Logger
}

// New creates a Scanner over the given watchlist.
func New(cfg Config) *Scanner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxItemAge <= 0 {
		cfg.MaxItemAge = defaultMaxItemAge
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

	parser := gofeed.NewParser()
	parser.UserAgent = "radar/1.0"

	return &Scanner{
		sources:   cfg.Sources,
		missions:  cfg.Missions,
		parser:    parser,
		limiter:   rate.NewLimiter(rate.Every(fetchSpacing), 1),
		maxConc:   cfg.MaxConcurrent,
		timeout:   cfg.FetchTimeout,
		maxAge:    cfg.MaxItemAge,
		collector: cfg.Collector,
		log:       cfg.Logger.With("component", "feeds"),
	}
}

// scored pairs a candidate signal with its ranking inputs.
type scored struct {
	sig   models.Signal
	score float64
	when  time.Time
}

// Fetch sweeps the watchlist and returns the topic matches, best first.
// Per-source faults are logged and skipped; Fetch fails only when the
// context ends or every feed is unreachable.
func (s *Scanner) Fetch(ctx context.Context, topic, mission string, limit int) ([]models.Signal, error) {
	if len(s.sources) == 0 {
		return nil, errors.New("feed watchlist is empty")
	}
	defer func(start time.Time) {
		s.collector.RecordTiming(metrics.OpFeedFetch, time.Since(start))
	}(time.Now())

	sources := s.sourcesFor(mission)
	terms := topicTerms(topic)
	now := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConc)
	results := make([][]scored, len(sources))
	oks := make([]bool, len(sources))
	for i, src := range sources {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			items, err := s.fetchSource(gctx, src)
			if err != nil {
				// One dead feed must not fail the sweep.
				s.log.Warn("feed fetch failed", "url", src.URL, "error", err)
				return nil
			}
			oks[i] = true
			results[i] = s.matchItems(src, mission, items, terms, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !slices.Contains(oks, true) {
		return nil, fmt.Errorf("all %d watchlist feeds unreachable", len(sources))
	}

	var matched []scored
	for _, rs := range results {
		matched = append(matched, rs...)
	}
	slices.SortStableFunc(matched, func(a, b scored) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		if !a.when.Equal(b.when) {
			if a.when.After(b.when) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.sig.Title, b.sig.Title)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	sigs := make([]models.Signal, len(matched))
	for i, m := range matched {
		sigs[i] = m.sig
	}
	s.log.Debug("feed sweep finished", "sources", len(sources), "matched", len(sigs))
	return sigs, nil
}

// sourcesFor narrows the watchlist to feeds tagged with the requested
// mission. Untagged feeds always stay in. An empty or General mission, or a
// filter that would empty the list, keeps the whole watchlist.
func (s *Scanner) sourcesFor(mission string) []config.FeedSource {
	label := models.NormalizeMission(mission, s.missions)
	if label == models.MissionGeneral {
		return s.sources
	}
	var out []config.FeedSource
	for _, src := range s.sources {
		if src.Mission == "" || strings.EqualFold(src.Mission, label) {
			out = append(out, src)
		}
	}
	if len(out) == 0 {
		return s.sources
	}
	return out
}

func (s *Scanner) fetchSource(ctx context.Context, src config.FeedSource) ([]*gofeed.Item, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	feed, err := s.parser.ParseURLWithContext(src.URL, fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.URL, err)
	}
	return feed.Items, nil
}

// matchItems turns a feed's recent items into scored signal candidates.
func (s *Scanner) matchItems(src config.FeedSource, mission string, items []*gofeed.Item, terms []string, now time.Time) []scored {
	label := models.NormalizeMission(src.Mission, s.missions)
	if label == models.MissionGeneral && mission != "" {
		// An untagged feed inherits the request's mission context.
		label = models.NormalizeMission(mission, s.missions)
	}
	source := sourceLabel(src.URL)

	var out []scored
	for _, item := range items {
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		when := now
		if item.PublishedParsed != nil {
			when = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			when = *item.UpdatedParsed
		}
		if now.Sub(when) > s.maxAge {
			continue
		}

		summary := itemSummary(item)
		score := matchScore(wordSet(item.Title+" "+summary), terms)
		if score == 0 {
			continue
		}
		out = append(out, scored{
			sig: models.Signal{
				Title:         strings.TrimSpace(item.Title),
				Summary:       summary,
				URL:           item.Link,
				Mission:       label,
				Source:        source,
				ScoreEvidence: score,
			},
			score: score,
			when:  when,
		})
	}
	return out
}

// topicStopwords are filler words dropped from the topic before matching.
var topicStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "and": true, "or": true, "to": true, "with": true,
	"about": true, "latest": true, "news": true, "recent": true,
}

// topicTerms lowercases and splits the topic, dropping filler. Short words
// stay: topics like "AI" or "EV" are nothing but short words.
func topicTerms(topic string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(topic)) {
		word = trimWord(word)
		if word == "" || topicStopwords[word] {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// matchScore is the fraction of topic terms present as words of the text.
// Terms of four letters or more also match by prefix, which covers simple
// plurals. An empty term list matches everything at full score.
func matchScore(words map[string]bool, terms []string) float64 {
	if len(terms) == 0 {
		return 1
	}
	hits := 0
	for _, term := range terms {
		if words[term] {
			hits++
			continue
		}
		if len(term) < 4 {
			continue
		}
		for w := range words {
			if strings.HasPrefix(w, term) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(terms))
}

func wordSet(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if w = trimWord(w); w != "" {
			words[w] = true
		}
	}
	return words
}

func trimWord(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// itemSummary flattens the item's description to plain text. Feed
// descriptions routinely carry HTML.
func itemSummary(item *gofeed.Item) string {
	text := item.Description
	if text == "" {
		text = item.Content
	}
	text = tagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text, summaryLimit)
}

// truncate cuts s at a rune boundary near max.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// sourceLabel names the feed by its host.
func sourceLabel(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "feeds"
	}
	return strings.TrimPrefix(u.Host, "www.")
}
