// Package store persists normalized signals behind a narrow gateway
// interface. Adapters exist for SQLite (the default), SurrealDB, Redis, and
// an in-memory map; the driver is selected by configuration.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/radar/internal/config"
	"github.com/raphaelgruber/radar/internal/models"
)

// Sentinel errors for gateway operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates no record exists for the given key or id.
	ErrNotFound = errors.New("not found")

	// ErrUnknownDriver indicates the configured store driver is not one of
	// memory, sqlite, surreal, or redis.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Gateway is the persistence boundary for signals and clustering results.
// Writes are idempotent upserts keyed by the signal's dedup key, so
// concurrent scans racing to save the same signal resolve last-write-wins
// with no higher-level locking. A record's status survives re-upserts; only
// UpdateStatus changes it.
type Gateway interface {
	// UpsertSignal inserts or refreshes the record stored under the
	// signal's dedup key. Signals without a dedup key are ignored.
	UpsertSignal(ctx context.Context, sig models.Signal) error

	// HasSignal reports whether a record exists under the dedup key.
	HasSignal(ctx context.Context, key string) (bool, error)

	// ListSignals returns saved signals, newest first.
	// limit <= 0 returns all records.
	ListSignals(ctx context.Context, limit int) ([]models.Signal, error)

	// UpdateStatus transitions the status of the signal stored under the
	// given URL. Returns ErrNotFound when no record matches.
	UpdateStatus(ctx context.Context, url string, status models.Status) error

	// SaveThemes persists a clustering result under set.ID.
	SaveThemes(ctx context.Context, set models.ThemeSet) error

	// GetThemes loads a persisted clustering result.
	// Returns ErrNotFound when absent.
	GetThemes(ctx context.Context, id string) (models.ThemeSet, error)

	// Close releases the underlying connection or file handle.
	Close(ctx context.Context) error
}

// Open builds the Gateway named by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (Gateway, error) {
	switch cfg.StoreDriver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, log)
	case "surreal":
		return OpenSurreal(ctx, SurrealConfig{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, log)
	case "redis":
		return OpenRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		}, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
	}
}

// urlKey builds the gateway lookup key for a status update by URL. It must
// produce the same key UpsertSignal stored the record under, so the raw URL
// goes through the full normalization path first.
func urlKey(rawURL string) string {
	normalized := models.NormalizeURL(rawURL)
	if normalized == "" {
		return ""
	}
	return "url:" + models.URLKey(normalized)
}
