package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raphaelgruber/radar/internal/models"
)

// Redis key layout. Signals live as JSON strings under signalPrefix+key with
// a sorted set providing newest-first ordering by first-save time.
const (
	redisSignalPrefix = "radar:signal:"
	redisSignalZSet   = "radar:signals"
	redisThemePrefix  = "radar:themes:"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a Gateway backed by a Redis instance. Suited to deployments that
// already run Redis and want signals shared between short-lived processes.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*Redis, error) {
	if log == nil {
		log = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Debug("redis store opened", "addr", cfg.Addr, "db", cfg.DB)
	return &Redis{client: client, log: log}, nil
}

// UpsertSignal stores the signal as JSON under its dedup key. The sorted-set
// entry is added NX so a rediscovered signal keeps its original recency
// position, and an existing record keeps its status.
func (r *Redis) UpsertSignal(ctx context.Context, sig models.Signal) error {
	key := models.DedupKey(sig)
	if key == "" {
		return nil
	}

	prev, err := r.client.Get(ctx, redisSignalPrefix+key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read existing signal: %w", err)
	}
	if err == nil {
		var existing models.Signal
		if jsonErr := json.Unmarshal([]byte(prev), &existing); jsonErr == nil && existing.Status != "" {
			sig.Status = existing.Status
		}
	}

	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	if err := r.client.Set(ctx, redisSignalPrefix+key, payload, 0).Err(); err != nil {
		return fmt.Errorf("store signal: %w", err)
	}
	if err := r.client.ZAddNX(ctx, redisSignalZSet, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: key,
	}).Err(); err != nil {
		return fmt.Errorf("index signal: %w", err)
	}
	return nil
}

// HasSignal reports whether a record exists under the dedup key.
func (r *Redis) HasSignal(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, redisSignalPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check signal: %w", err)
	}
	return n > 0, nil
}

// ListSignals returns saved signals, newest first.
func (r *Redis) ListSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	keys, err := r.client.ZRevRange(ctx, redisSignalZSet, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list signal keys: %w", err)
	}

	sigs := make([]models.Signal, 0, len(keys))
	for _, key := range keys {
		payload, err := r.client.Get(ctx, redisSignalPrefix+key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read signal %s: %w", key, err)
		}
		var sig models.Signal
		if err := json.Unmarshal([]byte(payload), &sig); err != nil {
			r.log.Warn("dropping undecodable signal record", "key", key, "error", err)
			continue
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// UpdateStatus transitions the status of the record stored under the URL.
func (r *Redis) UpdateStatus(ctx context.Context, url string, status models.Status) error {
	key := urlKey(url)

	payload, err := r.client.Get(ctx, redisSignalPrefix+key).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read signal: %w", err)
	}

	var sig models.Signal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}
	sig.Status = status

	updated, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	if err := r.client.Set(ctx, redisSignalPrefix+key, updated, 0).Err(); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SaveThemes persists a clustering result under set.ID.
func (r *Redis) SaveThemes(ctx context.Context, set models.ThemeSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode themes: %w", err)
	}
	if err := r.client.Set(ctx, redisThemePrefix+set.ID, payload, 0).Err(); err != nil {
		return fmt.Errorf("save themes: %w", err)
	}
	return nil
}

// GetThemes loads a persisted clustering result.
func (r *Redis) GetThemes(ctx context.Context, id string) (models.ThemeSet, error) {
	payload, err := r.client.Get(ctx, redisThemePrefix+id).Result()
	if err == redis.Nil {
		return models.ThemeSet{}, ErrNotFound
	}
	if err != nil {
		return models.ThemeSet{}, fmt.Errorf("get themes: %w", err)
	}

	var set models.ThemeSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return models.ThemeSet{}, fmt.Errorf("decode themes: %w", err)
	}
	return set, nil
}

// Close closes the Redis connection.
func (r *Redis) Close(context.Context) error {
	return r.client.Close()
}
