package scan

import (
	"testing"

	"github.com/raphaelgruber/radar/internal/models"
)

func TestSessionRemember(t *testing.T) {
	s := newSession(models.ScanRequest{Topic: "t"}, 8)

	if !s.remember("url:a.com") {
		t.Fatal("first occurrence of a key should be new")
	}
	if s.remember("url:a.com") {
		t.Fatal("second occurrence of a key should be a duplicate")
	}
	if !s.remember("title:something else") {
		t.Error("distinct keys should not collide")
	}
	if !s.remember("") || !s.remember("") {
		t.Error("empty keys must never count as duplicates")
	}
}

func TestSessionDefaults(t *testing.T) {
	s := newSession(models.ScanRequest{Topic: "  ai tooling  ", Mode: "bogus"}, 5)

	if s.Topic != "ai tooling" {
		t.Errorf("Topic = %q, want trimmed", s.Topic)
	}
	if s.Mode != models.ModeAgent {
		t.Errorf("Mode = %q, want fallback to agent", s.Mode)
	}
	if s.limit != 5 {
		t.Errorf("limit = %d, want server default 5", s.limit)
	}
	if s.State() != StateIdle {
		t.Errorf("State = %q, want idle", s.State())
	}
	if s.ID == "" {
		t.Error("session id not assigned")
	}

	s = newSession(models.ScanRequest{Topic: "x", Limit: 3, NoSave: true}, 5)
	if s.limit != 3 {
		t.Errorf("limit = %d, want request override 3", s.limit)
	}
	if !s.noSave {
		t.Error("noSave not carried from request")
	}
}

func TestSessionSignalsAreACopy(t *testing.T) {
	s := newSession(models.ScanRequest{Topic: "t"}, 8)
	s.add(models.Signal{ID: "one", Title: "One"})

	got := s.Signals()
	got[0].Title = "mutated"

	if s.Signals()[0].Title != "One" {
		t.Error("Signals() must return a copy")
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
}
