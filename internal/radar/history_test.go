package radar

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreDriftClamp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 15; i++ {
		if err := s.IncrementDrift(ctx, "u1", "r1"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	d, err := s.Drift(ctx, "u1", "r1")
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if d != DriftCap {
		t.Fatalf("expected drift clamped at %d, got %d", DriftCap, d)
	}
}

func TestMemoryStoreDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ts, err := s.LastViewed(ctx, "u1", "never")
	if err != nil || ts != nil {
		t.Fatalf("expected nil last-viewed for unknown pair, got %v %v", ts, err)
	}
	d, err := s.Drift(ctx, "u1", "never")
	if err != nil || d != 0 {
		t.Fatalf("expected zero drift for unknown pair, got %d %v", d, err)
	}
}

func TestMemoryStoreRecordView(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	if err := s.RecordView(ctx, "u1", "r1", at); err != nil {
		t.Fatalf("record: %v", err)
	}
	ts, err := s.LastViewed(ctx, "u1", "r1")
	if err != nil || ts == nil || !ts.Equal(at) {
		t.Fatalf("expected recorded view at %v, got %v %v", at, ts, err)
	}
	// pairs are independent
	other, _ := s.LastViewed(ctx, "u2", "r1")
	if other != nil {
		t.Fatalf("expected no record for other viewer")
	}
}

func TestClampDrift(t *testing.T) {
	if ClampDrift(-3) != 0 || ClampDrift(4) != 4 || ClampDrift(99) != DriftCap {
		t.Fatalf("clamp misbehaved")
	}
}
