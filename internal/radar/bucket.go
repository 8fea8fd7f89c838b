package radar

import "time"

// Bucket is the coarse urgency group an item renders under.
type Bucket string

const (
	BucketDoNow    Bucket = "do_now"
	BucketWaiting  Bucket = "waiting"
	BucketComingUp Bucket = "coming_up"
)

const comingUpLookaheadDays = 3

// BucketFor assigns an item to a bucket from its status and date fields
// alone. It runs before interpretation and is viewer-independent: it
// answers "what kind of thing is this", not "how urgent is it to me".
// Rules evaluate in order, first match wins; date boundaries are
// inclusive and compared at day granularity.
func BucketFor(item Item, today time.Time) Bucket {
	day := dateOnly(today)
	horizon := day.AddDate(0, 0, comingUpLookaheadDays)

	switch {
	case item.Status == "INTAKE_BLOCKED":
		return BucketDoNow
	case item.Status == "NEW" && onOrBefore(item.AcknowledgeBy, day):
		return BucketDoNow
	case item.Status == "ACKNOWLEDGED" && onOrBefore(item.ContactBy, day):
		return BucketDoNow
	case item.Status == "CONTACT_IN_PROGRESS":
		return BucketWaiting
	case item.Status == "APPT_SCHEDULED":
		return BucketWaiting
	case item.Status == "NEW" && onOrBefore(item.AcknowledgeBy, horizon):
		return BucketComingUp
	case item.Status == "ACKNOWLEDGED" && onOrBefore(item.ContactBy, horizon):
		return BucketComingUp
	}
	return BucketComingUp
}

func onOrBefore(t *time.Time, day time.Time) bool {
	if t == nil {
		return false
	}
	return !dateOnly(*t).After(day)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
