package radar

import (
	"testing"
	"time"
)

func TestTimeDecayTiers(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}
	cases := []struct {
		name     string
		deadline *time.Time
		want     int
	}{
		{"no deadline", nil, 0},
		{"1ms overdue", at(-time.Millisecond), 25},
		{"exactly now", at(0), 20},
		{"one day minus 1ms", at(24*time.Hour - time.Millisecond), 20},
		{"exactly one day", at(24 * time.Hour), 10},
		{"three days minus 1ms", at(72*time.Hour - time.Millisecond), 10},
		{"exactly three days", at(72 * time.Hour), 0},
		{"next week", at(7 * 24 * time.Hour), 0},
	}
	for _, c := range cases {
		got := TimeDecay(Item{DueDate: c.deadline}, now)
		if got != c.want {
			t.Fatalf("%s: expected %d, got %d", c.name, c.want, got)
		}
	}
}

func TestTimeDecayFieldPriority(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	far := now.Add(10 * 24 * time.Hour)

	// contact_by wins over due_date and acknowledge_by.
	got := TimeDecay(Item{ContactBy: &far, DueDate: &past, AcknowledgeBy: &past}, now)
	if got != 0 {
		t.Fatalf("expected contact_by to win, got %d", got)
	}
	// due_date wins over acknowledge_by.
	got = TimeDecay(Item{DueDate: &past, AcknowledgeBy: &far}, now)
	if got != 25 {
		t.Fatalf("expected due_date to win, got %d", got)
	}
}
