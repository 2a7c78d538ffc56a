package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/radar/internal/models"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// SurrealConfig holds SurrealDB connection configuration.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// Surreal is a Gateway backed by SurrealDB over an auto-reconnecting
// WebSocket connection.
type Surreal struct {
	conn *rews.Connection[*gorillaws.Connection]
	db   *surrealdb.DB
	log  logger.Logger
}

const surrealSchema = `
DEFINE TABLE IF NOT EXISTS signal SCHEMALESS;
DEFINE INDEX IF NOT EXISTS signal_created ON signal FIELDS created;
DEFINE TABLE IF NOT EXISTS theme_set SCHEMALESS;
`

// OpenSurreal connects to SurrealDB, authenticates, and initializes the
// schema.
func OpenSurreal(ctx context.Context, cfg SurrealConfig, log *slog.Logger) (*Surreal, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB's custom CBOR tags.
	codec := surrealcbor.New()

	// gorillaws requires the base URL without /rpc (it appends it itself).
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if cfg.AuthLevel == "database" {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	} else {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	if _, err := surrealdb.Query[any](ctx, db, surrealSchema, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	sdkLogger.Info("SurrealDB connection established")
	return &Surreal{conn: conn, db: db, log: sdkLogger}, nil
}

// signalRow mirrors the fields of a signal record. The record id carries the
// dedup key, so the signal's own id travels as sig_id.
type signalRow struct {
	SigID          string  `json:"sig_id"`
	Title          string  `json:"title"`
	Summary        string  `json:"summary"`
	URL            string  `json:"url"`
	Mission        string  `json:"mission"`
	Source         string  `json:"source"`
	ScoreActivity  float64 `json:"score_activity"`
	ScoreAttention float64 `json:"score_attention"`
	ScoreNovelty   float64 `json:"score_novelty"`
	ScoreEvidence  float64 `json:"score_evidence"`
	ScoreImpact    float64 `json:"score_impact"`
	Status         string  `json:"status"`
}

// signalColumns lists the row fields for explicit SELECTs (the implicit id
// column is a RecordID and is deliberately not selected).
const signalColumns = `sig_id, title, summary, url, mission, source,
	score_activity, score_attention, score_novelty, score_evidence, score_impact, status`

func (row signalRow) signal() models.Signal {
	return models.Signal{
		ID:             row.SigID,
		Title:          row.Title,
		Summary:        row.Summary,
		URL:            row.URL,
		Mission:        row.Mission,
		Source:         row.Source,
		ScoreActivity:  row.ScoreActivity,
		ScoreAttention: row.ScoreAttention,
		ScoreNovelty:   row.ScoreNovelty,
		ScoreEvidence:  row.ScoreEvidence,
		ScoreImpact:    row.ScoreImpact,
		Status:         models.Status(row.Status),
	}
}

// UpsertSignal inserts or refreshes the record under the signal's dedup key.
// The ?? coalescing keeps the stored status and first-seen time across
// re-upserts.
func (s *Surreal) UpsertSignal(ctx context.Context, sig models.Signal) error {
	key := models.DedupKey(sig)
	if key == "" {
		return nil
	}

	_, err := surrealdb.Query[any](ctx, s.db, `
		UPSERT type::thing("signal", $key) SET
			sig_id          = $sig_id,
			title           = $title,
			summary         = $summary,
			url             = $url,
			mission         = $mission,
			source          = $source,
			score_activity  = $score_activity,
			score_attention = $score_attention,
			score_novelty   = $score_novelty,
			score_evidence  = $score_evidence,
			score_impact    = $score_impact,
			status          = status ?? $status,
			created         = created ?? time::now(),
			updated         = time::now()
	`, map[string]any{
		"key":             key,
		"sig_id":          sig.ID,
		"title":           sig.Title,
		"summary":         sig.Summary,
		"url":             sig.URL,
		"mission":         sig.Mission,
		"source":          sig.Source,
		"score_activity":  sig.ScoreActivity,
		"score_attention": sig.ScoreAttention,
		"score_novelty":   sig.ScoreNovelty,
		"score_evidence":  sig.ScoreEvidence,
		"score_impact":    sig.ScoreImpact,
		"status":          string(sig.Status),
	})
	if err != nil {
		return fmt.Errorf("upsert signal: %w", err)
	}
	return nil
}

// HasSignal reports whether a record exists under the dedup key.
func (s *Surreal) HasSignal(ctx context.Context, key string) (bool, error) {
	results, err := surrealdb.Query[[]signalRow](ctx, s.db,
		`SELECT sig_id FROM type::thing("signal", $key)`,
		map[string]any{"key": key})
	if err != nil {
		return false, fmt.Errorf("check signal: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return false, nil
	}
	return len((*results)[0].Result) > 0, nil
}

// ListSignals returns saved signals, newest first.
func (s *Surreal) ListSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	limitClause := ""
	vars := map[string]any{}
	if limit > 0 {
		limitClause = "LIMIT $limit"
		vars["limit"] = limit
	}

	sql := fmt.Sprintf(`SELECT %s FROM signal ORDER BY created DESC %s`, signalColumns, limitClause)

	results, err := surrealdb.Query[[]signalRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Signal{}, nil
	}

	rows := (*results)[0].Result
	sigs := make([]models.Signal, 0, len(rows))
	for _, row := range rows {
		sigs = append(sigs, row.signal())
	}
	return sigs, nil
}

// UpdateStatus transitions the status of the record stored under the URL.
func (s *Surreal) UpdateStatus(ctx context.Context, url string, status models.Status) error {
	key := urlKey(url)

	results, err := surrealdb.Query[[]signalRow](ctx, s.db, `
		UPDATE type::thing("signal", $key) SET status = $status, updated = time::now()
	`, map[string]any{"key": key, "status": string(status)})
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveThemes persists a clustering result under set.ID.
func (s *Surreal) SaveThemes(ctx context.Context, set models.ThemeSet) error {
	_, err := surrealdb.Query[any](ctx, s.db, `
		UPSERT type::thing("theme_set", $id) SET themes = $themes, created = time::now()
	`, map[string]any{"id": set.ID, "themes": set.Themes})
	if err != nil {
		return fmt.Errorf("save themes: %w", err)
	}
	return nil
}

// themeSetRow mirrors a persisted theme set record.
type themeSetRow struct {
	Themes []models.Theme `json:"themes"`
}

// GetThemes loads a persisted clustering result.
func (s *Surreal) GetThemes(ctx context.Context, id string) (models.ThemeSet, error) {
	results, err := surrealdb.Query[[]themeSetRow](ctx, s.db,
		`SELECT themes FROM type::thing("theme_set", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return models.ThemeSet{}, fmt.Errorf("get themes: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.ThemeSet{}, ErrNotFound
	}
	return models.ThemeSet{ID: id, Themes: (*results)[0].Result[0].Themes}, nil
}

// Close closes the SurrealDB connection.
func (s *Surreal) Close(ctx context.Context) error {
	s.log.Info("closing SurrealDB connection")
	return s.conn.Close(ctx)
}
