// Package client provides a typed HTTP client for the Radar server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/radar/internal/metrics"
	"github.com/raphaelgruber/radar/internal/models"
)

// Client talks to the Radar server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If endpoint is empty, uses the RADAR_SERVER_URL env var or defaults to
// localhost:8484. Timeout can be configured via RADAR_CLIENT_TIMEOUT
// (default 10m, long enough for any streaming scan).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("RADAR_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8484"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("RADAR_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Scan opens a streaming scan and invokes onLine for every NDJSON line
// until the server closes the stream. Return an error from onLine to abort.
func (c *Client) Scan(ctx context.Context, req models.ScanRequest, onLine func(models.StreamLine) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/scan", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line models.StreamLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("decode stream line: %w", err)
		}
		if err := onLine(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// snapshotResponse is the bulk scan document.
type snapshotResponse struct {
	Signals []models.Signal `json:"signals"`
}

// ScanSnapshot runs a snapshot-mode scan and returns the whole result set.
func (c *Client) ScanSnapshot(ctx context.Context, req models.ScanRequest) ([]models.Signal, error) {
	req.Mode = string(models.ModeSnapshot)

	var out snapshotResponse
	if err := c.post(ctx, "/api/scan", req, &out); err != nil {
		return nil, err
	}
	return out.Signals, nil
}

// ScanWS opens the scan stream over a WebSocket and invokes onLine for
// every event message. Return an error from onLine to abort.
func (c *Client) ScanWS(ctx context.Context, req models.ScanRequest, onLine func(models.StreamLine) error) error {
	wsEndpoint := c.baseURL + "/api/scan/ws"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	// Track connection state for proper cleanup.
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send scan request: %w", err)
	}

	// Close the connection when the context ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var line models.StreamLine
		if err := conn.ReadJSON(&line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onLine(line); err != nil {
			return err
		}
	}
}

// savedResponse is the saved-signal listing document.
type savedResponse struct {
	Signals []models.Signal `json:"signals"`
}

// Saved lists persisted signals, newest first. limit <= 0 returns all.
func (c *Client) Saved(ctx context.Context, limit int) ([]models.Signal, error) {
	path := "/api/signals"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	var out savedResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Signals, nil
}

// UpdateStatus transitions the status of the saved signal with the given
// URL.
func (c *Client) UpdateStatus(ctx context.Context, url string, status models.Status) error {
	body := map[string]string{"url": url, "status": string(status)}
	return c.post(ctx, "/api/signals/status", body, nil)
}

// clusterResponse is the clustering result document.
type clusterResponse struct {
	Themes []models.Theme `json:"themes"`
	ScanID string         `json:"scan_id"`
}

// Cluster groups the given signals into themes. An empty set asks the
// server to cluster everything saved.
func (c *Client) Cluster(ctx context.Context, signals []models.Signal) (models.ThemeSet, error) {
	body := map[string]any{"signals": signals}

	var out clusterResponse
	if err := c.post(ctx, "/api/cluster", body, &out); err != nil {
		return models.ThemeSet{}, err
	}
	return models.ThemeSet{ID: out.ScanID, Themes: out.Themes}, nil
}

// Themes retrieves a persisted clustering result by id.
func (c *Client) Themes(ctx context.Context, id string) (models.ThemeSet, error) {
	var out models.ThemeSet
	if err := c.get(ctx, "/api/themes/"+id, &out); err != nil {
		return models.ThemeSet{}, err
	}
	return out, nil
}

// Metrics fetches the server's metrics snapshot.
func (c *Client) Metrics(ctx context.Context) (metrics.Snapshot, error) {
	var out metrics.Snapshot
	if err := c.get(ctx, "/api/metrics", &out); err != nil {
		return metrics.Snapshot{}, err
	}
	return out, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// apiError turns a non-2xx response into an error carrying the server's
// {"error": ...} message when present.
func apiError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, e.Error)
		}
	}
	return fmt.Errorf("server error: %s", resp.Status)
}
