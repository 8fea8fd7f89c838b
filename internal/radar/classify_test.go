package radar

import "testing"

func TestClassifyPrecedence(t *testing.T) {
	// Matches both critical ("license") and operational ("referral");
	// table order breaks the tie.
	item := Item{Title: "license renewal for new referral"}
	if got := Classify(item); got != ClassCritical {
		t.Fatalf("expected critical, got %s", got)
	}
}

func TestClassifyDefault(t *testing.T) {
	if got := Classify(Item{}); got != ClassStability {
		t.Fatalf("expected stability for empty item, got %s", got)
	}
	if DefaultWeights()[ClassStability] != 50 {
		t.Fatalf("stability weight must be 50")
	}
}

func TestClassifyFieldContentOnly(t *testing.T) {
	// Field names never match; only field content does. A typical
	// referral row with a plain client name falls through to stability.
	item := Item{ClientName: "Maria Gonzalez", Status: "NEW"}
	if got := Classify(item); got != ClassStability {
		t.Fatalf("expected stability, got %s", got)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	if got := Classify(Item{Status: "INTAKE_BLOCKED"}); got != ClassCritical {
		t.Fatalf("expected critical for blocked status, got %s", got)
	}
	if got := Classify(Item{Title: "Schedule CALL BACK"}); got != ClassOperational {
		t.Fatalf("expected operational, got %s", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	item := Item{Title: "organize the template cleanup", Detail: "paperwork later"}
	first := Classify(item)
	for i := 0; i < 100; i++ {
		if got := Classify(item); got != first {
			t.Fatalf("classification changed between calls: %s then %s", first, got)
		}
	}
	if first != ClassStability {
		// "paperwork" (stability) precedes maintenance in the table.
		t.Fatalf("expected stability, got %s", first)
	}
}

func TestClassifyEachClass(t *testing.T) {
	cases := []struct {
		text string
		want Class
	}{
		{"payroll run", ClassCritical},
		{"intake packet", ClassOperational},
		{"documentation pass", ClassStability},
		{"cleanup drive", ClassMaintenance},
		{"kids pickup", ClassPersonal},
	}
	for _, c := range cases {
		if got := Classify(Item{Title: c.text}); got != c.want {
			t.Fatalf("%q: expected %s, got %s", c.text, c.want, got)
		}
	}
}
