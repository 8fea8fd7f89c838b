package radar

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testInterpreter(history HistoryStore) Interpreter {
	in := NewInterpreter(history)
	in.Now = func() time.Time { return testNow }
	return in
}

func ptr(s string) *string { return &s }

func TestInterpretOwnerDriftModifier(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 4; i++ {
		_ = store.IncrementDrift(ctx, "owner-1", "r1")
	}
	in := testInterpreter(store)
	out := in.Interpret(ctx, []Item{{ID: "r1"}}, "owner-1", RoleOwner)
	if len(out) != 1 {
		t.Fatalf("expected one item")
	}
	got := out[0]
	if got.StabilityModifier != 12 {
		t.Fatalf("expected stability modifier 12, got %d", got.StabilityModifier)
	}
	// stability class (50) + drift 12, owner can act on unassigned items
	if got.DisplayWeight != 62 {
		t.Fatalf("expected display weight 62, got %d", got.DisplayWeight)
	}
	if !got.CanAct || got.WaitingOnStaff {
		t.Fatalf("owner should act on unassigned item")
	}
}

func TestInterpretStaffAsymmetry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 10; i++ {
		_ = store.IncrementDrift(ctx, "staff-1", "r1")
	}
	_ = store.RecordView(ctx, "staff-1", "r1", testNow.Add(-5*time.Minute))

	in := testInterpreter(store)
	out := in.Interpret(ctx, []Item{{ID: "r1"}}, "staff-1", RoleStaff)
	got := out[0]
	if got.StabilityModifier != 0 || got.ViewRelief != 0 {
		t.Fatalf("staff must not accrue drift or relief, got %d/%d", got.StabilityModifier, got.ViewRelief)
	}
}

func TestInterpretViewRelief(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.RecordView(ctx, "owner-1", "r1", testNow.Add(-10*time.Minute))
	_ = store.RecordView(ctx, "owner-1", "r2", testNow.Add(-31*time.Minute))

	in := testInterpreter(store)
	out := in.Interpret(ctx, []Item{{ID: "r1"}, {ID: "r2"}}, "owner-1", RoleOwner)
	byID := map[string]Interpreted{}
	for _, it := range out {
		byID[it.Item.ID] = it
	}
	if byID["r1"].ViewRelief != -15 {
		t.Fatalf("expected relief inside 30m window, got %d", byID["r1"].ViewRelief)
	}
	if byID["r2"].ViewRelief != 0 {
		t.Fatalf("expected no relief outside window, got %d", byID["r2"].ViewRelief)
	}
	// tension carries the relief too
	if byID["r1"].CognitiveTension != 50-15 {
		t.Fatalf("expected tension 35, got %d", byID["r1"].CognitiveTension)
	}
}

func TestInterpretDisplayWeightFloor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.RecordView(ctx, "owner-1", "p1", testNow.Add(-10*time.Minute))

	in := testInterpreter(store)
	// personal item (20), assigned to someone else (-10), freshly viewed (-15)
	item := Item{ID: "p1", Title: "mom birthday", AssignedTo: ptr("staff-9")}
	out := in.Interpret(ctx, []Item{item}, "owner-1", RoleOwner)
	got := out[0]
	if got.Class != ClassPersonal {
		t.Fatalf("expected personal, got %s", got.Class)
	}
	if 20+got.ResponsibilityAdj+got.ViewRelief >= 0 {
		t.Fatalf("scenario should sum negative before clamping")
	}
	if got.DisplayWeight != 0 {
		t.Fatalf("expected floor clamp to 0, got %d", got.DisplayWeight)
	}
}

func TestInterpretResponsibility(t *testing.T) {
	ctx := context.Background()
	in := testInterpreter(NewMemoryStore())

	// Owner looking at an item assigned to staff: waiting, -10.
	out := in.Interpret(ctx, []Item{{ID: "r1", AssignedTo: ptr("staff-1")}}, "owner-1", RoleOwner)
	if !out[0].WaitingOnStaff || out[0].ResponsibilityAdj != -10 || out[0].CanAct {
		t.Fatalf("owner/assigned-elsewhere: got %+v", out[0])
	}

	// Staff looking at their own item: +10.
	out = in.Interpret(ctx, []Item{{ID: "r1", AssignedTo: ptr("staff-1")}}, "staff-1", RoleStaff)
	if !out[0].CanAct || out[0].ResponsibilityAdj != 10 || out[0].WaitingOnStaff {
		t.Fatalf("staff/own item: got %+v", out[0])
	}

	// Staff looking at an unassigned item: cannot act, no adjustment.
	out = in.Interpret(ctx, []Item{{ID: "r1"}}, "staff-1", RoleStaff)
	if out[0].CanAct || out[0].ResponsibilityAdj != 0 {
		t.Fatalf("staff/unassigned: got %+v", out[0])
	}
}

func TestInterpretSortStable(t *testing.T) {
	ctx := context.Background()
	in := testInterpreter(NewMemoryStore())
	// Four empty items all score stability/50; input order must hold.
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	out := in.Interpret(ctx, items, "owner-1", RoleOwner)
	for i, id := range []string{"a", "b", "c", "d"} {
		if out[i].Item.ID != id {
			t.Fatalf("tie order broken at %d: got %s", i, out[i].Item.ID)
		}
	}
}

func TestInterpretSortDescending(t *testing.T) {
	ctx := context.Background()
	in := testInterpreter(NewMemoryStore())
	overdue := testNow.Add(-time.Hour)
	items := []Item{
		{ID: "low", Title: "family dinner"},
		{ID: "high", Title: "payroll blocked"},
		{ID: "mid", Title: "new referral intake", ContactBy: &overdue},
	}
	out := in.Interpret(ctx, items, "owner-1", RoleOwner)
	if out[0].Item.ID != "high" || out[1].Item.ID != "mid" || out[2].Item.ID != "low" {
		t.Fatalf("unexpected order: %s %s %s", out[0].Item.ID, out[1].Item.ID, out[2].Item.ID)
	}
}

func TestInterpretUnknownRoleDegradesToStaff(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.IncrementDrift(ctx, "u1", "r1")
	in := testInterpreter(store)
	out := in.Interpret(ctx, []Item{{ID: "r1"}}, "u1", Role("superadmin"))
	if out[0].StabilityModifier != 0 || out[0].CanAct {
		t.Fatalf("unknown role must behave as staff, got %+v", out[0])
	}
}

type brokenStore struct{}

func (brokenStore) LastViewed(context.Context, string, string) (*time.Time, error) {
	return nil, errors.New("backend down")
}
func (brokenStore) RecordView(context.Context, string, string, time.Time) error {
	return errors.New("backend down")
}
func (brokenStore) Drift(context.Context, string, string) (int, error) {
	return 0, errors.New("backend down")
}
func (brokenStore) IncrementDrift(context.Context, string, string) error {
	return errors.New("backend down")
}

func TestInterpretFailsOpenOnHistoryErrors(t *testing.T) {
	ctx := context.Background()
	in := testInterpreter(brokenStore{})
	out := in.Interpret(ctx, []Item{{ID: "r1"}}, "owner-1", RoleOwner)
	got := out[0]
	if got.StabilityModifier != 0 || got.ViewRelief != 0 {
		t.Fatalf("history errors must read as no record, got %+v", got)
	}
	if got.DisplayWeight != 50 {
		t.Fatalf("expected baseline stability weight, got %d", got.DisplayWeight)
	}
}

func TestInterpretEndToEndOverdueReferral(t *testing.T) {
	ctx := context.Background()
	in := testInterpreter(NewMemoryStore())
	past := testNow.AddDate(0, -5, 0)
	item := Item{
		ID:            "r1",
		ClientName:    "Maria Gonzalez",
		Status:        "NEW",
		AcknowledgeBy: &past,
		AssignedTo:    ptr("owner-1"),
	}
	if b := BucketFor(item, testNow); b != BucketDoNow {
		t.Fatalf("overdue NEW referral must bucket do_now, got %s", b)
	}
	out := in.Interpret(ctx, []Item{item}, "owner-1", RoleOwner)
	got := out[0]
	// No field text matches a keyword, so the class falls through.
	if got.Class != ClassStability || got.ObjectiveWeight != 50 {
		t.Fatalf("expected stability/50, got %s/%d", got.Class, got.ObjectiveWeight)
	}
	if got.TimeDecay != 25 {
		t.Fatalf("expected overdue decay 25, got %d", got.TimeDecay)
	}
	if !got.CanAct || got.WaitingOnStaff {
		t.Fatalf("self-assigned owner item: %+v", got)
	}
	if got.DisplayWeight != 75 {
		t.Fatalf("expected 50+25, got %d", got.DisplayWeight)
	}
}
