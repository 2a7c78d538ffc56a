package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/radar/internal/models"
)

// FeedSource is one entry of the RSS watchlist.
type FeedSource struct {
	URL     string `yaml:"url"`
	Mission string `yaml:"mission,omitempty"`
}

// DefaultFeeds is the built-in watchlist used when no feeds file is
// configured.
var DefaultFeeds = []FeedSource{
	{URL: "https://www.technologyreview.com/feed/", Mission: "Digital Frontiers"},
	{URL: "https://arstechnica.com/feed/", Mission: "Digital Frontiers"},
	{URL: "https://www.sciencedaily.com/rss/top/science.xml", Mission: "Health & Longevity"},
	{URL: "https://hnrss.org/frontpage", Mission: ""},
}

// missionsFile is the YAML shape of a mission catalog file.
type missionsFile struct {
	Missions []string `yaml:"missions"`
}

// feedsFile is the YAML shape of a feed watchlist file.
type feedsFile struct {
	Feeds []FeedSource `yaml:"feeds"`
}

// LoadMissions reads the mission catalog from path, or returns the built-in
// catalog when path is empty. The General fallback label is always present.
func LoadMissions(path string) ([]string, error) {
	if path == "" {
		return models.DefaultMissions, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read missions file: %w", err)
	}

	var f missionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse missions file: %w", err)
	}
	if len(f.Missions) == 0 {
		return nil, fmt.Errorf("missions file %s lists no missions", path)
	}

	catalog := f.Missions
	hasGeneral := false
	for _, m := range catalog {
		if strings.EqualFold(m, models.MissionGeneral) {
			hasGeneral = true
			break
		}
	}
	if !hasGeneral {
		catalog = append(catalog, models.MissionGeneral)
	}
	return catalog, nil
}

// LoadFeeds reads the RSS watchlist from path, or returns the built-in
// watchlist when path is empty.
func LoadFeeds(path string) ([]FeedSource, error) {
	if path == "" {
		return DefaultFeeds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}
	if len(f.Feeds) == 0 {
		return nil, fmt.Errorf("feeds file %s lists no feeds", path)
	}
	return f.Feeds, nil
}
