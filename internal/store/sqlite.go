package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raphaelgruber/radar/internal/models"
)

// SQLite is the default Gateway, backed by a single database file.
// All methods are safe for concurrent use.
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS signals (
	key             TEXT PRIMARY KEY,
	sig_id          TEXT NOT NULL,
	title           TEXT NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	mission         TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	score_activity  REAL NOT NULL DEFAULT 0,
	score_attention REAL NOT NULL DEFAULT 0,
	score_novelty   REAL NOT NULL DEFAULT 0,
	score_evidence  REAL NOT NULL DEFAULT 0,
	score_impact    REAL NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at DESC);

CREATE TABLE IF NOT EXISTS theme_sets (
	id         TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// OpenSQLite opens (and if necessary creates) the database at path.
// Pass ":memory:" for an ephemeral database in tests.
func OpenSQLite(path string, log *slog.Logger) (*SQLite, error) {
	if log == nil {
		log = slog.Default()
	}

	// In-memory databases need shared cache so every pooled connection
	// sees the same data.
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL gives better concurrent read performance for file databases.
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	log.Debug("sqlite store opened", "path", path)
	return &SQLite{db: db, log: log}, nil
}

// UpsertSignal inserts or refreshes the record under the signal's dedup key.
// On conflict every field except status and created_at is replaced, so a
// rediscovered signal keeps its lifecycle state and its original position in
// newest-first listings.
func (s *SQLite) UpsertSignal(ctx context.Context, sig models.Signal) error {
	key := models.DedupKey(sig)
	if key == "" {
		return nil
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (
			key, sig_id, title, summary, url, mission, source,
			score_activity, score_attention, score_novelty, score_evidence, score_impact,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			sig_id          = excluded.sig_id,
			title           = excluded.title,
			summary         = excluded.summary,
			url             = excluded.url,
			mission         = excluded.mission,
			source          = excluded.source,
			score_activity  = excluded.score_activity,
			score_attention = excluded.score_attention,
			score_novelty   = excluded.score_novelty,
			score_evidence  = excluded.score_evidence,
			score_impact    = excluded.score_impact,
			updated_at      = excluded.updated_at
	`,
		key, sig.ID, sig.Title, sig.Summary, sig.URL, sig.Mission, sig.Source,
		sig.ScoreActivity, sig.ScoreAttention, sig.ScoreNovelty, sig.ScoreEvidence, sig.ScoreImpact,
		string(sig.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert signal: %w", err)
	}
	return nil
}

// HasSignal reports whether a record exists under the dedup key.
func (s *SQLite) HasSignal(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM signals WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check signal: %w", err)
	}
	return true, nil
}

// ListSignals returns saved signals, newest first.
func (s *SQLite) ListSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 means no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sig_id, title, summary, url, mission, source,
			score_activity, score_attention, score_novelty, score_evidence, score_impact,
			status
		FROM signals
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var sigs []models.Signal
	for rows.Next() {
		var sig models.Signal
		var status string
		if err := rows.Scan(
			&sig.ID, &sig.Title, &sig.Summary, &sig.URL, &sig.Mission, &sig.Source,
			&sig.ScoreActivity, &sig.ScoreAttention, &sig.ScoreNovelty, &sig.ScoreEvidence, &sig.ScoreImpact,
			&status,
		); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		sig.Status = models.Status(status)
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}
	return sigs, nil
}

// UpdateStatus transitions the status of the record stored under the URL.
func (s *SQLite) UpdateStatus(ctx context.Context, url string, status models.Status) error {
	key := urlKey(url)

	res, err := s.db.ExecContext(ctx,
		"UPDATE signals SET status = ?, updated_at = ? WHERE key = ?",
		string(status), time.Now().UTC(), key,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveThemes persists a clustering result as a JSON payload under set.ID.
func (s *SQLite) SaveThemes(ctx context.Context, set models.ThemeSet) error {
	payload, err := json.Marshal(set.Themes)
	if err != nil {
		return fmt.Errorf("encode themes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO theme_sets (id, payload, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, set.ID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save themes: %w", err)
	}
	return nil
}

// GetThemes loads a persisted clustering result.
func (s *SQLite) GetThemes(ctx context.Context, id string) (models.ThemeSet, error) {
	var payload string
	var created time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, created_at FROM theme_sets WHERE id = ?", id,
	).Scan(&payload, &created)
	if err == sql.ErrNoRows {
		return models.ThemeSet{}, ErrNotFound
	}
	if err != nil {
		return models.ThemeSet{}, fmt.Errorf("get themes: %w", err)
	}

	set := models.ThemeSet{ID: id, Created: created}
	if err := json.Unmarshal([]byte(payload), &set.Themes); err != nil {
		return models.ThemeSet{}, fmt.Errorf("decode themes: %w", err)
	}
	return set, nil
}

// Close closes the database handle.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}
