package radar

import "time"

// Decay tier defaults. Tuned values; see config.Radar for overrides.
const (
	defaultDecayOverdue  = 25
	defaultDecayImminent = 20
	defaultDecaySoon     = 10

	defaultImminentWindow = 24 * time.Hour
	defaultSoonWindow     = 72 * time.Hour
)

// TimeDecay returns the deadline-proximity score for an item at the
// given instant: 25 overdue, 20 inside a day, 10 inside three days,
// 0 otherwise or when no deadline is set. The step function is
// deliberately non-continuous.
func TimeDecay(item Item, now time.Time) int {
	return timeDecayWith(item, now, defaultDecayOverdue, defaultDecayImminent, defaultDecaySoon, defaultImminentWindow, defaultSoonWindow)
}

func timeDecayWith(item Item, now time.Time, overdue, imminent, soon int, imminentWindow, soonWindow time.Duration) int {
	deadline := item.Deadline()
	if deadline == nil {
		return 0
	}
	diff := deadline.Sub(now)
	switch {
	case diff < 0:
		return overdue
	case diff < imminentWindow:
		return imminent
	case diff < soonWindow:
		return soon
	}
	return 0
}
