package radar

import (
	"context"
	"sort"
	"time"
)

// Role is the viewer's relationship to the workspace. Anything other
// than RoleOwner gets the non-privileged staff behavior: no drift, no
// view relief.
type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// Tuning carries the product-tuned scoring constants. The defaults
// reproduce the shipped behavior exactly; overrides come from the
// workspace config.
type Tuning struct {
	Rules   []KeywordRule
	Weights map[Class]int

	DecayOverdue   int
	DecayImminent  int
	DecaySoon      int
	ImminentWindow time.Duration
	SoonWindow     time.Duration

	DriftMultiplier int
	ReliefWindow    time.Duration
	ReliefAmount    int
}

func DefaultTuning() Tuning {
	return Tuning{
		Rules:           DefaultRules(),
		Weights:         DefaultWeights(),
		DecayOverdue:    defaultDecayOverdue,
		DecayImminent:   defaultDecayImminent,
		DecaySoon:       defaultDecaySoon,
		ImminentWindow:  defaultImminentWindow,
		SoonWindow:      defaultSoonWindow,
		DriftMultiplier: 3,
		ReliefWindow:    30 * time.Minute,
		ReliefAmount:    -15,
	}
}

// Interpreted wraps one item with its derived scores. Ephemeral; built
// fresh on every Interpret call and never persisted.
type Interpreted struct {
	Item              Item  `json:"item"`
	Class             Class `json:"consequence_class"`
	ObjectiveWeight   int   `json:"objective_weight"`
	TimeDecay         int   `json:"time_decay"`
	StabilityModifier int   `json:"stability_modifier"`
	// CognitiveTension is a diagnostic score; nothing sorts by it.
	CognitiveTension  int  `json:"cognitive_tension"`
	ViewRelief        int  `json:"view_relief"`
	ResponsibilityAdj int  `json:"responsibility_adj"`
	DisplayWeight     int  `json:"display_weight"`
	CanAct            bool `json:"can_act"`
	WaitingOnStaff    bool `json:"waiting_on_staff"`
}

// Interpreter scores attention items for one viewer. History reads fail
// open: a broken store degrades to "never viewed, zero drift" rather
// than surfacing an error into the ranking path.
type Interpreter struct {
	History HistoryStore
	Now     func() time.Time
	Tuning  Tuning
}

func NewInterpreter(history HistoryStore) Interpreter {
	return Interpreter{
		History: history,
		Now:     time.Now,
		Tuning:  DefaultTuning(),
	}
}

func (in Interpreter) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in Interpreter) tuning() Tuning {
	t := in.Tuning
	if len(t.Rules) == 0 {
		t = DefaultTuning()
	}
	return t
}

// Interpret derives display weights for the given items and returns
// them sorted descending by display weight. The sort is stable: equal
// weights keep their input order. Interpret never records views; that
// is a separate, caller-triggered side effect.
func (in Interpreter) Interpret(ctx context.Context, items []Item, viewerID string, role Role) []Interpreted {
	t := in.tuning()
	now := in.now()
	isOwner := role == RoleOwner

	out := make([]Interpreted, 0, len(items))
	for _, item := range items {
		cls := ClassifyWith(t.Rules, item)
		objective := t.Weights[cls]
		decay := timeDecayWith(item, now, t.DecayOverdue, t.DecayImminent, t.DecaySoon, t.ImminentWindow, t.SoonWindow)

		stability := 0
		if isOwner {
			stability = in.drift(ctx, viewerID, item.ID) * t.DriftMultiplier
		}

		tension := objective + decay + stability

		relief := 0
		if isOwner {
			if last := in.lastViewed(ctx, viewerID, item.ID); last != nil && now.Sub(*last) < t.ReliefWindow {
				relief = t.ReliefAmount
			}
		}
		tension += relief

		canAct := isOwner
		waitingOnStaff := false
		if item.AssignedTo != nil {
			canAct = *item.AssignedTo == viewerID
			waitingOnStaff = isOwner && *item.AssignedTo != viewerID
		}

		adj := 0
		if waitingOnStaff {
			adj = -10
		} else if !isOwner && canAct {
			adj = 10
		}

		weight := objective + stability + decay + adj + relief
		if weight < 0 {
			weight = 0
		}

		out = append(out, Interpreted{
			Item:              item,
			Class:             cls,
			ObjectiveWeight:   objective,
			TimeDecay:         decay,
			StabilityModifier: stability,
			CognitiveTension:  tension,
			ViewRelief:        relief,
			ResponsibilityAdj: adj,
			DisplayWeight:     weight,
			CanAct:            canAct,
			WaitingOnStaff:    waitingOnStaff,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayWeight > out[j].DisplayWeight })
	return out
}

func (in Interpreter) drift(ctx context.Context, viewerID, itemID string) int {
	if in.History == nil {
		return 0
	}
	d, err := in.History.Drift(ctx, viewerID, itemID)
	if err != nil {
		return 0
	}
	return ClampDrift(d)
}

func (in Interpreter) lastViewed(ctx context.Context, viewerID, itemID string) *time.Time {
	if in.History == nil {
		return nil
	}
	ts, err := in.History.LastViewed(ctx, viewerID, itemID)
	if err != nil {
		return nil
	}
	return ts
}
