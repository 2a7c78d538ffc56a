package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/radar/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type feedItem struct {
	title string
	link  string
	desc  string
	age   time.Duration
}

func rssDoc(items ...feedItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test Feed</title>`)
	for _, it := range items {
		fmt.Fprintf(&b,
			`<item><title>%s</title><link>%s</link><description><![CDATA[%s]]></description><pubDate>%s</pubDate></item>`,
			it.title, it.link, it.desc, time.Now().Add(-it.age).Format(time.RFC1123Z))
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func serveFeed(t *testing.T, doc string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newScanner(sources ...config.FeedSource) *Scanner {
	return New(Config{Sources: sources, Logger: testLogger()})
}

func TestFetchMatchesTopic(t *testing.T) {
	srv := serveFeed(t, rssDoc(
		feedItem{"Quantum networking testbed goes live", "https://example.com/quantum", "A 40-node <b>quantum</b> networking pilot.", time.Hour},
		feedItem{"Sourdough starters for beginners", "https://example.com/bread", "Baking tips.", time.Hour},
	))
	s := newScanner(config.FeedSource{URL: srv.URL, Mission: "Digital Frontiers"})

	sigs, err := s.Fetch(context.Background(), "quantum networking", "", 5)
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	sig := sigs[0]
	assert.Equal(t, "Quantum networking testbed goes live", sig.Title)
	assert.Equal(t, "https://example.com/quantum", sig.URL)
	assert.Equal(t, "A 40-node quantum networking pilot.", sig.Summary)
	assert.Equal(t, "Digital Frontiers", sig.Mission)
	assert.InDelta(t, 1.0, sig.ScoreEvidence, 1e-9)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, u.Host, sig.Source)
}

func TestFetchHonorsLimitAndOrdersByRecency(t *testing.T) {
	srv := serveFeed(t, rssDoc(
		feedItem{"Fusion pilot one", "https://example.com/1", "x", 3 * time.Hour},
		feedItem{"Fusion pilot two", "https://example.com/2", "x", time.Hour},
		feedItem{"Fusion pilot three", "https://example.com/3", "x", 2 * time.Hour},
	))
	s := newScanner(config.FeedSource{URL: srv.URL})

	sigs, err := s.Fetch(context.Background(), "fusion pilot", "", 2)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "Fusion pilot two", sigs[0].Title)
	assert.Equal(t, "Fusion pilot three", sigs[1].Title)
}

func TestFetchSkipsStaleItems(t *testing.T) {
	srv := serveFeed(t, rssDoc(
		feedItem{"Fusion breakthrough announced", "https://example.com/new", "x", time.Hour},
		feedItem{"Fusion retrospective", "https://example.com/old", "x", 45 * 24 * time.Hour},
	))
	s := newScanner(config.FeedSource{URL: srv.URL})

	sigs, err := s.Fetch(context.Background(), "fusion", "", 5)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Fusion breakthrough announced", sigs[0].Title)
}

func TestFetchToleratesDeadSource(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(dead.Close)
	good := serveFeed(t, rssDoc(feedItem{"Fusion update", "https://example.com/up", "x", time.Hour}))

	s := newScanner(config.FeedSource{URL: dead.URL}, config.FeedSource{URL: good.URL})

	sigs, err := s.Fetch(context.Background(), "fusion", "", 5)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
}

func TestFetchAllSourcesUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(dead.Close)

	s := newScanner(config.FeedSource{URL: dead.URL})

	_, err := s.Fetch(context.Background(), "fusion", "", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestFetchEmptyWatchlist(t *testing.T) {
	s := New(Config{Logger: testLogger()})

	_, err := s.Fetch(context.Background(), "fusion", "", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watchlist is empty")
}

func TestFetchMissionNarrowsWatchlist(t *testing.T) {
	frontier := serveFeed(t, rssDoc(feedItem{"Quantum leap in frontier compute", "https://a.example/1", "x", time.Hour}))
	health := serveFeed(t, rssDoc(feedItem{"Quantum dots in imaging", "https://b.example/1", "x", time.Hour}))

	s := newScanner(
		config.FeedSource{URL: frontier.URL, Mission: "Digital Frontiers"},
		config.FeedSource{URL: health.URL, Mission: "Health & Longevity"},
	)

	sigs, err := s.Fetch(context.Background(), "quantum", "Digital Frontiers", 5)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Quantum leap in frontier compute", sigs[0].Title)
}

func TestFetchUntaggedFeedInheritsMission(t *testing.T) {
	srv := serveFeed(t, rssDoc(feedItem{"Quantum sensor trial", "https://example.com/s", "x", time.Hour}))
	s := newScanner(config.FeedSource{URL: srv.URL})

	sigs, err := s.Fetch(context.Background(), "quantum", "Health & Longevity", 5)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Health & Longevity", sigs[0].Mission)
}

func TestTopicTerms(t *testing.T) {
	tests := []struct {
		topic string
		want  []string
	}{
		{"AI agents", []string{"ai", "agents"}},
		{"the latest news about fusion", []string{"fusion"}},
		{"EV", []string{"ev"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, topicTerms(tt.topic), "topic %q", tt.topic)
	}
}

func TestMatchScore(t *testing.T) {
	words := wordSet("Solid-state battery cells enter production")
	tests := []struct {
		terms []string
		want  float64
	}{
		{[]string{"battery"}, 1},
		{[]string{"cell"}, 1},
		{[]string{"batteries"}, 0},
		{[]string{"battery", "rocket"}, 0.5},
		{nil, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, matchScore(words, tt.terms), 1e-9, "terms %v", tt.terms)
	}
}

func TestItemSummary(t *testing.T) {
	it := &gofeed.Item{Description: "<p>Hello &amp; welcome</p>"}
	assert.Equal(t, "Hello & welcome", itemSummary(it))

	it = &gofeed.Item{Content: strings.Repeat("word ", 100)}
	got := itemSummary(it)
	assert.LessOrEqual(t, len([]rune(got)), summaryLimit+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}
