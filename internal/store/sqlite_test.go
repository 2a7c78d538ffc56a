package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/radar/internal/models"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "radar.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSQLiteUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	sig := testSignal("aaa11111", "Offshore wind record", "https://example.com/wind")
	sig.ScoreImpact = 0.9
	if err := s.UpsertSignal(ctx, sig); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}

	sigs, err := s.ListSignals(ctx, 0)
	if err != nil {
		t.Fatalf("ListSignals failed: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	got := sigs[0]
	if got.ID != "aaa11111" || got.Title != "Offshore wind record" || got.ScoreImpact != 0.9 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Status != models.StatusNew {
		t.Errorf("status = %q, want %q", got.Status, models.StatusNew)
	}
}

func TestSQLiteHasSignal(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	sig := testSignal("aaa11111", "Grid batteries", "https://example.com/grid")
	if err := s.UpsertSignal(ctx, sig); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}

	ok, err := s.HasSignal(ctx, models.DedupKey(sig))
	if err != nil {
		t.Fatalf("HasSignal failed: %v", err)
	}
	if !ok {
		t.Error("expected signal to exist after upsert")
	}

	ok, err = s.HasSignal(ctx, "url:example.com/other")
	if err != nil {
		t.Fatalf("HasSignal failed: %v", err)
	}
	if ok {
		t.Error("expected missing key to report false")
	}
}

func TestSQLiteUpsertPreservesStatusAndPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := testSignal("aaa11111", "Grid batteries", "https://example.com/grid")
	second := testSignal("bbb22222", "Perovskite cells", "https://example.com/solar")
	if err := s.UpsertSignal(ctx, first); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}
	if err := s.UpsertSignal(ctx, second); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}
	if err := s.UpdateStatus(ctx, first.URL, models.StatusShortlisted); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// Rediscovering the first signal must not reset its status or bump it
	// back to the top of the list.
	again := testSignal("ccc33333", "Grid batteries again", "https://example.com/grid")
	if err := s.UpsertSignal(ctx, again); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	sigs, err := s.ListSignals(ctx, 0)
	if err != nil {
		t.Fatalf("ListSignals failed: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(sigs))
	}
	if sigs[0].URL != second.URL {
		t.Errorf("newest signal = %q, want %q (re-upsert must keep original position)", sigs[0].URL, second.URL)
	}
	if sigs[1].Status != models.StatusShortlisted {
		t.Errorf("status = %q, want %q", sigs[1].Status, models.StatusShortlisted)
	}
	if sigs[1].Title != "Grid batteries again" {
		t.Errorf("title = %q, want refreshed title", sigs[1].Title)
	}
}

func TestSQLiteListLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	urls := []string{
		"https://example.com/one",
		"https://example.com/two",
		"https://example.com/three",
	}
	for _, u := range urls {
		if err := s.UpsertSignal(ctx, testSignal(models.NewID(), "Signal", u)); err != nil {
			t.Fatalf("UpsertSignal failed: %v", err)
		}
	}

	sigs, err := s.ListSignals(ctx, 2)
	if err != nil {
		t.Fatalf("ListSignals failed: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(sigs))
	}
	if sigs[0].URL != urls[2] {
		t.Errorf("list should be newest-first, got %q", sigs[0].URL)
	}
}

func TestSQLiteUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	sig := testSignal("aaa11111", "Floating solar", "https://example.com/float")
	if err := s.UpsertSignal(ctx, sig); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}

	// URL variants that normalize to the same key address the same record.
	if err := s.UpdateStatus(ctx, "HTTPS://EXAMPLE.COM/float", models.StatusSaved); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	sigs, err := s.ListSignals(ctx, 1)
	if err != nil {
		t.Fatalf("ListSignals failed: %v", err)
	}
	if sigs[0].Status != models.StatusSaved {
		t.Errorf("status = %q, want %q", sigs[0].Status, models.StatusSaved)
	}

	err = s.UpdateStatus(ctx, "https://example.com/missing", models.StatusSaved)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus on missing record = %v, want ErrNotFound", err)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "radar.db")

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	sig := testSignal("aaa11111", "Durable record", "https://example.com/durable")
	if err := s.UpsertSignal(ctx, sig); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close(ctx)

	sigs, err := reopened.ListSignals(ctx, 0)
	if err != nil {
		t.Fatalf("ListSignals after reopen failed: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Title != "Durable record" {
		t.Errorf("expected persisted signal after reopen, got %+v", sigs)
	}
}

func TestSQLiteThemes(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	set := models.ThemeSet{
		ID: "run-1",
		Themes: []models.Theme{
			{Name: "Storage", Description: "Grid-scale storage", SignalIDs: []string{"a", "b", "c"}, Strength: models.StrengthFor(3)},
			{Name: models.UnsortedTheme, SignalIDs: []string{"d"}, Strength: models.StrengthFor(1)},
		},
	}
	if err := s.SaveThemes(ctx, set); err != nil {
		t.Fatalf("SaveThemes failed: %v", err)
	}

	got, err := s.GetThemes(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetThemes failed: %v", err)
	}
	if len(got.Themes) != 2 {
		t.Fatalf("expected 2 themes, got %d", len(got.Themes))
	}
	if got.Themes[0].Name != "Storage" || len(got.Themes[0].SignalIDs) != 3 {
		t.Errorf("themes round-trip mismatch: %+v", got.Themes)
	}

	_, err = s.GetThemes(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetThemes on missing id = %v, want ErrNotFound", err)
	}
}

func TestSQLiteInMemory(t *testing.T) {
	ctx := context.Background()

	s, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:) failed: %v", err)
	}
	defer s.Close(ctx)

	if err := s.UpsertSignal(ctx, testSignal("aaa11111", "Ephemeral", "https://example.com/mem")); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}
	sigs, err := s.ListSignals(ctx, 0)
	if err != nil {
		t.Fatalf("ListSignals failed: %v", err)
	}
	if len(sigs) != 1 {
		t.Errorf("expected 1 signal in memory database, got %d", len(sigs))
	}
}
