// Package cluster groups a completed signal set into named themes. Grouping
// is delegated to the model; a lexical fallback keeps the feature working
// when the model is unavailable or answers garbage. Clustering never fails a
// request: anything unusable degrades to an empty theme list.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/radar/internal/llm"
	"github.com/raphaelgruber/radar/internal/models"
	"github.com/raphaelgruber/radar/internal/store"
)

// minClusterSize is the smallest signal set worth grouping.
const minClusterSize = 3

// Grouper produces the semantic grouping. *llm.Model satisfies it.
type Grouper interface {
	GroupThemes(ctx context.Context, signalBlock string) (string, error)
}

// Clusterer builds theme sets. A nil grouper skips straight to the lexical
// fallback; a nil gateway skips persistence.
type Clusterer struct {
	grouper Grouper
	gateway store.Gateway
	log     *slog.Logger
}

// New creates a clusterer.
func New(grouper Grouper, gateway store.Gateway, log *slog.Logger) *Clusterer {
	if log == nil {
		log = slog.Default()
	}
	return &Clusterer{
		grouper: grouper,
		gateway: gateway,
		log:     log.With("component", "cluster"),
	}
}

// Cluster groups the signals into themes. Fewer than three signals is a
// no-op. When a gateway is configured and themes were found, the set is
// persisted under a fresh id; a failed save drops the id, not the themes.
func (c *Clusterer) Cluster(ctx context.Context, signals []models.Signal) models.ThemeSet {
	set := models.ThemeSet{
		Themes:  c.themes(ctx, signals),
		Created: time.Now(),
	}
	if c.gateway == nil || len(set.Themes) == 0 {
		return set
	}

	set.ID = models.NewID()
	if err := c.gateway.SaveThemes(ctx, set); err != nil {
		c.log.Warn("persisting theme set", "error", err)
		set.ID = ""
	}
	return set
}

func (c *Clusterer) themes(ctx context.Context, signals []models.Signal) []models.Theme {
	if len(signals) < minClusterSize {
		return []models.Theme{}
	}
	if c.grouper != nil {
		if themes, ok := c.modelThemes(ctx, signals); ok {
			return themes
		}
	}
	return lexicalThemes(signals)
}

// group is the wire shape the model answers with. Members are 1-based
// indexes into the signal list.
type group struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     []int  `json:"members"`
}

// modelThemes asks the model for a grouping and rebuilds it from the signal
// list. Out-of-range and already-claimed indexes are ignored, so an index
// claimed twice stays with the first theme. Themes left with fewer than two
// members dissolve into the residual bucket.
func (c *Clusterer) modelThemes(ctx context.Context, signals []models.Signal) ([]models.Theme, bool) {
	resp, err := c.grouper.GroupThemes(ctx, signalBlock(signals))
	if err != nil {
		c.log.Warn("theme grouping failed, using lexical fallback", "error", err)
		return nil, false
	}

	groups := parseGroups(resp)
	if len(groups) == 0 {
		c.log.Warn("theme grouping returned nothing usable")
		return nil, false
	}

	claimed := make(map[int]bool)
	var themes []models.Theme
	for _, g := range groups {
		var idxs []int
		for _, n := range g.Members {
			idx := n - 1
			if idx < 0 || idx >= len(signals) || claimed[idx] {
				continue
			}
			claimed[idx] = true
			idxs = append(idxs, idx)
		}
		if len(idxs) < 2 {
			for _, idx := range idxs {
				delete(claimed, idx)
			}
			continue
		}

		name := strings.TrimSpace(g.Name)
		if name == "" {
			name = fmt.Sprintf("Theme %d", len(themes)+1)
		}
		ids := make([]string, len(idxs))
		for i, idx := range idxs {
			ids[i] = signals[idx].ID
		}
		themes = append(themes, models.Theme{
			Name:        name,
			Description: strings.TrimSpace(g.Description),
			SignalIDs:   ids,
			Strength:    models.StrengthFor(len(ids)),
		})
	}
	if len(themes) == 0 {
		return nil, false
	}

	sortThemes(themes)
	return appendResidual(themes, signals, claimed), true
}

// signalBlock renders the numbered digest the grouping prompt expects.
func signalBlock(signals []models.Signal) string {
	var b strings.Builder
	for i, s := range signals {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, s.Mission, s.Title)
		if s.Summary != "" {
			fmt.Fprintf(&b, ": %s", s.Summary)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// parseGroups decodes the model's grouping. A bare array is the contract; a
// {"themes": [...]} wrapper is tolerated.
func parseGroups(text string) []group {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil
	}

	var groups []group
	if err := json.Unmarshal([]byte(raw), &groups); err == nil {
		return groups
	}

	var doc struct {
		Themes []group `json:"themes"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err == nil {
		return doc.Themes
	}
	return nil
}

// sortThemes orders by descending member count, ties broken by name.
func sortThemes(themes []models.Theme) {
	slices.SortStableFunc(themes, func(a, b models.Theme) int {
		if d := len(b.SignalIDs) - len(a.SignalIDs); d != 0 {
			return d
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// appendResidual adds the Unsorted bucket for signals no theme claimed. The
// bucket always sorts last.
func appendResidual(themes []models.Theme, signals []models.Signal, claimed map[int]bool) []models.Theme {
	var ids []string
	for i, s := range signals {
		if !claimed[i] {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return themes
	}
	return append(themes, models.Theme{
		Name:      models.UnsortedTheme,
		SignalIDs: ids,
		Strength:  models.StrengthWeak,
	})
}
