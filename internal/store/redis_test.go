package store

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/radar/internal/models"
)

func TestRedisUpsertAndHas(t *testing.T) {
	skipWithoutContainers(t)
	ctx := context.Background()

	sig := testSignal("aaa11111", "Grid batteries", "https://redis.test/grid")
	if err := testRedis.UpsertSignal(ctx, sig); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}

	ok, err := testRedis.HasSignal(ctx, models.DedupKey(sig))
	if err != nil {
		t.Fatalf("HasSignal failed: %v", err)
	}
	if !ok {
		t.Error("expected signal to exist after upsert")
	}

	ok, err = testRedis.HasSignal(ctx, "url:redis.test/absent")
	if err != nil {
		t.Fatalf("HasSignal failed: %v", err)
	}
	if ok {
		t.Error("expected missing key to report false")
	}
}

func TestRedisUpsertPreservesStatus(t *testing.T) {
	skipWithoutContainers(t)
	ctx := context.Background()

	sig := testSignal("aaa11111", "Geothermal pilot", "https://redis.test/geo")
	if err := testRedis.UpsertSignal(ctx, sig); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}
	if err := testRedis.UpdateStatus(ctx, sig.URL, models.StatusSaved); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	again := testSignal("bbb22222", "Geothermal pilot expands", "https://redis.test/geo")
	if err := testRedis.UpsertSignal(ctx, again); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	sigs, err := testRedis.ListSignals(ctx, 0)
	if err != nil {
		t.Fatalf("ListSignals failed: %v", err)
	}
	var found *models.Signal
	for i := range sigs {
		if sigs[i].URL == sig.URL {
			found = &sigs[i]
			break
		}
	}
	if found == nil {
		t.Fatal("expected geothermal signal in list")
	}
	if found.Status != models.StatusSaved {
		t.Errorf("status = %q, want %q (re-upsert must not reset status)", found.Status, models.StatusSaved)
	}
	if found.Title != "Geothermal pilot expands" {
		t.Errorf("title = %q, want refreshed title", found.Title)
	}
}

func TestRedisListNewestFirst(t *testing.T) {
	skipWithoutContainers(t)
	ctx := context.Background()

	older := testSignal("ccc33333", "Older", "https://redis.test/order-older")
	newer := testSignal("ddd44444", "Newer", "https://redis.test/order-newer")
	if err := testRedis.UpsertSignal(ctx, older); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}
	if err := testRedis.UpsertSignal(ctx, newer); err != nil {
		t.Fatalf("UpsertSignal failed: %v", err)
	}

	sigs, err := testRedis.ListSignals(ctx, 0)
	if err != nil {
		t.Fatalf("ListSignals failed: %v", err)
	}

	olderIdx, newerIdx := -1, -1
	for i, s := range sigs {
		switch s.URL {
		case older.URL:
			olderIdx = i
		case newer.URL:
			newerIdx = i
		}
	}
	if olderIdx == -1 || newerIdx == -1 {
		t.Fatalf("expected both signals in list, got older=%d newer=%d", olderIdx, newerIdx)
	}
	if newerIdx > olderIdx {
		t.Errorf("list not newest-first: newer at %d, older at %d", newerIdx, olderIdx)
	}

	limited, err := testRedis.ListSignals(ctx, 1)
	if err != nil {
		t.Fatalf("ListSignals with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 signal with limit, got %d", len(limited))
	}
}

func TestRedisUpdateStatusNotFound(t *testing.T) {
	skipWithoutContainers(t)

	err := testRedis.UpdateStatus(context.Background(), "https://redis.test/nowhere", models.StatusArchived)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus on missing record = %v, want ErrNotFound", err)
	}
}

func TestRedisThemes(t *testing.T) {
	skipWithoutContainers(t)
	ctx := context.Background()

	set := models.ThemeSet{
		ID: "redis-run-1",
		Themes: []models.Theme{
			{Name: "Recycling", SignalIDs: []string{"a", "b", "c"}, Strength: models.StrengthFor(3)},
		},
	}
	if err := testRedis.SaveThemes(ctx, set); err != nil {
		t.Fatalf("SaveThemes failed: %v", err)
	}

	got, err := testRedis.GetThemes(ctx, "redis-run-1")
	if err != nil {
		t.Fatalf("GetThemes failed: %v", err)
	}
	if len(got.Themes) != 1 || got.Themes[0].Name != "Recycling" {
		t.Errorf("themes round-trip mismatch: %+v", got.Themes)
	}

	_, err = testRedis.GetThemes(ctx, "redis-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetThemes on missing id = %v, want ErrNotFound", err)
	}
}
