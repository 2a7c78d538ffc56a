package client_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/radar/internal/agent"
	"github.com/raphaelgruber/radar/internal/client"
	"github.com/raphaelgruber/radar/internal/cluster"
	"github.com/raphaelgruber/radar/internal/metrics"
	"github.com/raphaelgruber/radar/internal/models"
	"github.com/raphaelgruber/radar/internal/scan"
	"github.com/raphaelgruber/radar/internal/server"
	"github.com/raphaelgruber/radar/internal/store"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func emitCall(id string, payload map[string]any) agent.ToolCall {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return agent.ToolCall{ID: id, Name: agent.EmitSignalTool, Arguments: string(raw)}
}

// newClient spins up a full server around a scripted runtime and returns a
// client pointed at it.
func newClient(t *testing.T, runtime agent.Runtime) (*client.Client, *store.Memory) {
	t.Helper()

	gw := store.NewMemory()
	orch := scan.New(scan.Config{
		Runtime:      runtime,
		Gateway:      gw,
		Collector:    metrics.NewCollector(),
		Logger:       testLogger(),
		PollInterval: 5 * time.Millisecond,
		ScanTimeout:  5 * time.Second,
	})
	srv := server.New(server.Config{
		Orchestrator: orch,
		Clusterer:    cluster.New(nil, gw, testLogger()),
		Gateway:      gw,
		Logger:       testLogger(),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return client.New(ts.URL), gw
}

func TestClientScanStreams(t *testing.T) {
	script := &agent.Script{
		Calls: []agent.ToolCall{
			emitCall("c1", map[string]any{"title": "Alpha", "url": "https://a.dev/1"}),
			emitCall("c2", map[string]any{"title": "Beta", "url": "https://b.dev/2"}),
		},
		Output: "done",
	}
	c, _ := newClient(t, script)

	var titles []string
	err := c.Scan(context.Background(), models.ScanRequest{Topic: "fusion"}, func(line models.StreamLine) error {
		if sig := line.Payload(); sig != nil {
			titles = append(titles, sig.Title)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, titles)
}

func TestClientScanCallbackAborts(t *testing.T) {
	script := &agent.Script{
		Calls: []agent.ToolCall{
			emitCall("c1", map[string]any{"title": "Alpha", "url": "https://a.dev/1"}),
			emitCall("c2", map[string]any{"title": "Beta", "url": "https://b.dev/2"}),
		},
	}
	c, _ := newClient(t, script)

	seen := 0
	err := c.Scan(context.Background(), models.ScanRequest{Topic: "fusion"}, func(line models.StreamLine) error {
		if line.Payload() != nil {
			seen++
			return assert.AnError
		}
		return nil
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, seen)
}

func TestClientScanServerRejection(t *testing.T) {
	c, _ := newClient(t, &agent.Script{})

	err := c.Scan(context.Background(), models.ScanRequest{Topic: "  "}, func(models.StreamLine) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic is required")
}

func TestClientScanWS(t *testing.T) {
	script := &agent.Script{
		Calls: []agent.ToolCall{
			emitCall("c1", map[string]any{"title": "Alpha", "url": "https://a.dev/1"}),
		},
	}
	c, _ := newClient(t, script)

	var titles []string
	err := c.ScanWS(context.Background(), models.ScanRequest{Topic: "fusion"}, func(line models.StreamLine) error {
		if sig := line.Payload(); sig != nil {
			titles = append(titles, sig.Title)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, titles)
}

func TestClientSavedAndStatus(t *testing.T) {
	c, gw := newClient(t, &agent.Script{})

	sig := models.Signal{
		ID:      models.NewID(),
		Title:   "Saved find",
		URL:     "https://saved.dev/post",
		Mission: models.MissionGeneral,
		Status:  models.StatusNew,
	}
	require.NoError(t, gw.UpsertSignal(context.Background(), sig))

	saved, err := c.Saved(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Saved find", saved[0].Title)

	require.NoError(t, c.UpdateStatus(context.Background(), "https://saved.dev/post", models.StatusArchived))

	saved, err = c.Saved(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, models.StatusArchived, saved[0].Status)

	err = c.UpdateStatus(context.Background(), "https://nobody.dev/x", models.StatusArchived)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClientClusterAndThemes(t *testing.T) {
	c, _ := newClient(t, &agent.Script{})

	signals := []models.Signal{
		{ID: "s1", Title: "CRISPR platform", Mission: "Health & Longevity"},
		{ID: "s2", Title: "Glucose monitor", Mission: "Health & Longevity"},
		{ID: "s3", Title: "Cargo drones", Mission: models.MissionGeneral},
	}
	set, err := c.Cluster(context.Background(), signals)
	require.NoError(t, err)
	require.NotEmpty(t, set.Themes)
	require.NotEmpty(t, set.ID)
	assert.Equal(t, "Health & Longevity", set.Themes[0].Name)

	fetched, err := c.Themes(context.Background(), set.ID)
	require.NoError(t, err)
	assert.Equal(t, set.Themes, fetched.Themes)
}

func TestClientMetricsAndHealth(t *testing.T) {
	c, _ := newClient(t, &agent.Script{})

	require.NoError(t, c.Health(context.Background()))

	snap, err := c.Metrics(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
