package radar

import (
	"testing"
	"time"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestBucketRules(t *testing.T) {
	today := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	in2 := today.AddDate(0, 0, 2)
	in3 := today.AddDate(0, 0, 3)
	in4 := today.AddDate(0, 0, 4)

	cases := []struct {
		name string
		item Item
		want Bucket
	}{
		{"blocked intake", Item{Status: "INTAKE_BLOCKED"}, BucketDoNow},
		{"new ack overdue", Item{Status: "NEW", AcknowledgeBy: datePtr(yesterday)}, BucketDoNow},
		{"new ack due today", Item{Status: "NEW", AcknowledgeBy: datePtr(today)}, BucketDoNow},
		{"acknowledged contact due today", Item{Status: "ACKNOWLEDGED", ContactBy: datePtr(today)}, BucketDoNow},
		{"contact in progress", Item{Status: "CONTACT_IN_PROGRESS"}, BucketWaiting},
		{"appointment scheduled", Item{Status: "APPT_SCHEDULED"}, BucketWaiting},
		{"new ack soon", Item{Status: "NEW", AcknowledgeBy: datePtr(in2)}, BucketComingUp},
		{"acknowledged contact at horizon", Item{Status: "ACKNOWLEDGED", ContactBy: datePtr(in3)}, BucketComingUp},
		{"acknowledged contact past horizon", Item{Status: "ACKNOWLEDGED", ContactBy: datePtr(in4)}, BucketComingUp},
		{"no status no dates", Item{}, BucketComingUp},
	}
	for _, c := range cases {
		if got := BucketFor(c.item, today); got != c.want {
			t.Fatalf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestBucketDayGranularity(t *testing.T) {
	// Late in the day still counts as "due today" even if the deadline's
	// clock time already passed.
	today := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	morning := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	item := Item{Status: "NEW", AcknowledgeBy: datePtr(morning)}
	if got := BucketFor(item, today); got != BucketDoNow {
		t.Fatalf("expected do_now at day granularity, got %s", got)
	}
}

func TestBucketIndependentOfViewer(t *testing.T) {
	// Bucketing ignores assignment entirely.
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assigned := Item{Status: "CONTACT_IN_PROGRESS", AssignedTo: ptr("staff-1")}
	unassigned := Item{Status: "CONTACT_IN_PROGRESS"}
	if BucketFor(assigned, today) != BucketFor(unassigned, today) {
		t.Fatalf("assignment must not affect bucketing")
	}
}
