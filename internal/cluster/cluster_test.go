package cluster

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/radar/internal/models"
	"github.com/raphaelgruber/radar/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type stubGrouper struct {
	resp  string
	err   error
	calls int
}

func (g *stubGrouper) GroupThemes(_ context.Context, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.resp, nil
}

type failingGateway struct {
	store.Gateway
}

func (failingGateway) SaveThemes(context.Context, models.ThemeSet) error {
	return errors.New("disk full")
}

func sig(id, title, mission string) models.Signal {
	return models.Signal{ID: id, Title: title, Mission: mission, Status: models.StatusNew}
}

func TestClusterTooFewSignals(t *testing.T) {
	c := New(nil, nil, testLogger())

	for _, signals := range [][]models.Signal{
		nil,
		{sig("a", "One", models.MissionGeneral), sig("b", "Two", models.MissionGeneral)},
	} {
		set := c.Cluster(context.Background(), signals)
		assert.Empty(t, set.Themes)
		assert.Empty(t, set.ID)
	}
}

func TestClusterModelGrouping(t *testing.T) {
	grouper := &stubGrouper{resp: `[
		{"name": "Alpha", "description": "First pair.", "members": [1, 2]},
		{"name": "Beta", "description": "Bigger one.", "members": [3, 4, 5]}
	]`}
	gw := store.NewMemory()
	c := New(grouper, gw, testLogger())

	signals := []models.Signal{
		sig("s1", "One", models.MissionGeneral),
		sig("s2", "Two", models.MissionGeneral),
		sig("s3", "Three", models.MissionGeneral),
		sig("s4", "Four", models.MissionGeneral),
		sig("s5", "Five", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	require.Len(t, set.Themes, 2)
	assert.Equal(t, "Beta", set.Themes[0].Name)
	assert.Equal(t, []string{"s3", "s4", "s5"}, set.Themes[0].SignalIDs)
	assert.Equal(t, models.StrengthModerate, set.Themes[0].Strength)
	assert.Equal(t, "Alpha", set.Themes[1].Name)
	assert.Equal(t, []string{"s1", "s2"}, set.Themes[1].SignalIDs)
	assert.Equal(t, models.StrengthWeak, set.Themes[1].Strength)

	require.NotEmpty(t, set.ID)
	saved, err := gw.GetThemes(context.Background(), set.ID)
	require.NoError(t, err)
	assert.Equal(t, set.Themes, saved.Themes)
}

func TestClusterModelGroupingDropsBadIndexes(t *testing.T) {
	grouper := &stubGrouper{resp: `[
		{"name": "Solid", "members": [1, 2, 2, 9]},
		{"name": "Thin", "members": [2, 3]},
		{"members": [3, 4]}
	]`}
	c := New(grouper, nil, testLogger())

	signals := []models.Signal{
		sig("s1", "One", models.MissionGeneral),
		sig("s2", "Two", models.MissionGeneral),
		sig("s3", "Three", models.MissionGeneral),
		sig("s4", "Four", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	// Duplicate and out-of-range indexes are dropped, which thins "Thin" to
	// a single member and dissolves it; its claim on s3 is released for the
	// unnamed group.
	require.Len(t, set.Themes, 2)
	assert.Equal(t, "Solid", set.Themes[0].Name)
	assert.Equal(t, []string{"s1", "s2"}, set.Themes[0].SignalIDs)
	assert.Equal(t, "Theme 2", set.Themes[1].Name)
	assert.Equal(t, []string{"s3", "s4"}, set.Themes[1].SignalIDs)
}

func TestClusterFallsBackWhenGrouperFails(t *testing.T) {
	grouper := &stubGrouper{err: errors.New("model offline")}
	c := New(grouper, nil, testLogger())

	signals := []models.Signal{
		sig("s1", "CRISPR screening platform", "Health & Longevity"),
		sig("s2", "Continuous glucose monitor", "Health & Longevity"),
		sig("s3", "Cargo drone corridor", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	require.Equal(t, 1, grouper.calls)
	require.NotEmpty(t, set.Themes)
	assert.Equal(t, "Health & Longevity", set.Themes[0].Name)
}

func TestClusterFallsBackOnUnusableGrouping(t *testing.T) {
	for _, resp := range []string{
		"I could not find any themes, sorry.",
		`[]`,
		`[{"name": "Lonely", "members": [1]}]`,
	} {
		grouper := &stubGrouper{resp: resp}
		c := New(grouper, nil, testLogger())

		signals := []models.Signal{
			sig("s1", "One", "Digital Frontiers"),
			sig("s2", "Two", "Digital Frontiers"),
			sig("s3", "Three", models.MissionGeneral),
		}
		set := c.Cluster(context.Background(), signals)

		require.NotEmpty(t, set.Themes, "resp %q", resp)
		assert.Equal(t, "Digital Frontiers", set.Themes[0].Name)
	}
}

func TestLexicalMissionGrouping(t *testing.T) {
	c := New(nil, nil, testLogger())

	signals := []models.Signal{
		sig("s1", "CRISPR screening platform", "Health & Longevity"),
		sig("s2", "Continuous glucose monitor", "Health & Longevity"),
		sig("s3", "Protein folding assays", "Health & Longevity"),
		sig("s4", "Quantum networking testbed", models.MissionGeneral),
		sig("s5", "Sodium-ion battery factory", models.MissionGeneral),
		sig("s6", "Cargo drone corridor", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	require.Len(t, set.Themes, 2)
	assert.Equal(t, "Health & Longevity", set.Themes[0].Name)
	assert.Equal(t, []string{"s1", "s2", "s3"}, set.Themes[0].SignalIDs)
	assert.Equal(t, models.StrengthModerate, set.Themes[0].Strength)
	assert.Equal(t, models.UnsortedTheme, set.Themes[1].Name)
	assert.Equal(t, []string{"s4", "s5", "s6"}, set.Themes[1].SignalIDs)
	assert.Equal(t, models.StrengthWeak, set.Themes[1].Strength)
}

func TestLexicalTitleGrouping(t *testing.T) {
	c := New(nil, nil, testLogger())

	signals := []models.Signal{
		sig("a", "OpenAI releases GPT-5 benchmark suite", models.MissionGeneral),
		sig("b", "GPT-5 benchmark results leak early", models.MissionGeneral),
		sig("c", "Solar microgrid pilot in Kenya", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	require.Len(t, set.Themes, 2)
	assert.Equal(t, "Gpt-5 Benchmark", set.Themes[0].Name)
	assert.Equal(t, []string{"a", "b"}, set.Themes[0].SignalIDs)
	assert.Equal(t, models.UnsortedTheme, set.Themes[1].Name)
	assert.Equal(t, []string{"c"}, set.Themes[1].SignalIDs)
}

func TestLexicalNoGroupingMeansNoThemes(t *testing.T) {
	c := New(nil, nil, testLogger())

	// Nothing shares a mission or two title words, so there is nothing to
	// say. An Unsorted bucket alone would be noise.
	signals := []models.Signal{
		sig("s1", "Quantum networking testbed", models.MissionGeneral),
		sig("s2", "Sodium-ion battery factory", models.MissionGeneral),
		sig("s3", "Cargo drone corridor", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	assert.Empty(t, set.Themes)
}

func TestLexicalDeterministic(t *testing.T) {
	c := New(nil, nil, testLogger())

	signals := []models.Signal{
		sig("s1", "Fusion startup raises series B", "A Sustainable Future"),
		sig("s2", "Grid storage fusion pilot announced", "A Sustainable Future"),
		sig("s3", "GPT-5 benchmark suite released", "Digital Frontiers"),
		sig("s4", "Benchmark results for GPT-5 leak", "Digital Frontiers"),
		sig("s5", "Protein folding assays", models.MissionGeneral),
		sig("s6", "Continuous glucose monitor", models.MissionGeneral),
		sig("s7", "Cargo drone corridor", models.MissionGeneral),
	}

	first := c.Cluster(context.Background(), signals)
	second := c.Cluster(context.Background(), signals)
	require.Equal(t, first.Themes, second.Themes)
}

func TestClusterNilGatewaySkipsPersistence(t *testing.T) {
	c := New(nil, nil, testLogger())

	signals := []models.Signal{
		sig("s1", "One", "Digital Frontiers"),
		sig("s2", "Two", "Digital Frontiers"),
		sig("s3", "Three", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	require.NotEmpty(t, set.Themes)
	assert.Empty(t, set.ID)
}

func TestClusterSaveFailureKeepsThemes(t *testing.T) {
	c := New(nil, failingGateway{}, testLogger())

	signals := []models.Signal{
		sig("s1", "One", "Digital Frontiers"),
		sig("s2", "Two", "Digital Frontiers"),
		sig("s3", "Three", models.MissionGeneral),
	}
	set := c.Cluster(context.Background(), signals)

	require.NotEmpty(t, set.Themes)
	assert.Empty(t, set.ID)
}

func TestParseGroups(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"bare array", `[{"name": "A", "members": [1, 2]}]`, 1},
		{"themes wrapper", `{"themes": [{"name": "A", "members": [1]}, {"name": "B", "members": [2]}]}`, 2},
		{"fenced", "```json\n[{\"name\": \"A\", \"members\": [1]}]\n```", 1},
		{"prose around json", `Sure! [{"name": "A", "members": [1]}] Hope that helps.`, 1},
		{"no json", "no structure here", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, parseGroups(tt.text), tt.want)
		})
	}
}

func TestTitleTokens(t *testing.T) {
	tests := []struct {
		title string
		want  []string
	}{
		{"OpenAI releases GPT-5 benchmark suite", []string{"openai", "releases", "gpt-5", "benchmark", "suite"}},
		{"The cat sat on a mat", nil},
		{"Results, results, RESULTS!", []string{"results"}},
		{"What could have been with those", nil},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, titleTokens(tt.title), "title %q", tt.title)
	}
}
