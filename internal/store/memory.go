package store

import (
	"context"
	"sync"

	"github.com/raphaelgruber/radar/internal/models"
)

// Memory is a map-backed Gateway for tests and ephemeral runs. Nothing
// survives a restart.
type Memory struct {
	mu     sync.RWMutex
	index  map[string]int // dedup key -> position in sigs
	sigs   []models.Signal
	themes map[string]models.ThemeSet
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		index:  make(map[string]int),
		themes: make(map[string]models.ThemeSet),
	}
}

// UpsertSignal stores the signal under its dedup key. Re-upserting an
// existing key refreshes the record in place, keeping its original position
// and status.
func (m *Memory) UpsertSignal(_ context.Context, sig models.Signal) error {
	key := models.DedupKey(sig)
	if key == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.index[key]; ok {
		sig.Status = m.sigs[i].Status
		m.sigs[i] = sig
		return nil
	}
	m.index[key] = len(m.sigs)
	m.sigs = append(m.sigs, sig)
	return nil
}

// HasSignal reports whether a record exists under the dedup key.
func (m *Memory) HasSignal(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[key]
	return ok, nil
}

// ListSignals returns saved signals, newest first.
func (m *Memory) ListSignals(_ context.Context, limit int) ([]models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.sigs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Signal, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.sigs[i])
	}
	return out, nil
}

// UpdateStatus transitions the status of the record stored under the URL.
func (m *Memory) UpdateStatus(_ context.Context, url string, status models.Status) error {
	key := urlKey(url)

	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[key]
	if !ok {
		return ErrNotFound
	}
	m.sigs[i].Status = status
	return nil
}

// SaveThemes persists a clustering result under set.ID.
func (m *Memory) SaveThemes(_ context.Context, set models.ThemeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.themes[set.ID] = set
	return nil
}

// GetThemes loads a persisted clustering result.
func (m *Memory) GetThemes(_ context.Context, id string) (models.ThemeSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.themes[id]
	if !ok {
		return models.ThemeSet{}, ErrNotFound
	}
	return set, nil
}

// Close is a no-op for the in-memory gateway.
func (m *Memory) Close(context.Context) error {
	return nil
}
