// Package radar implements the prioritization engine behind the radar
// screens: keyword consequence classification, deadline decay, per-viewer
// interaction history, bucketing and the display-weight interpreter.
package radar

import "time"

// Item is the structural shape the engine scores. Adapters build Items
// from referrals, stub tasks or anything else with attention semantics;
// every field except ID is optional.
type Item struct {
	ID string

	// Text fields, in classification priority order.
	ClientName string
	Status     string
	Title      string
	Label      string
	Type       string
	Detail     string

	// Deadline fields; the first non-nil one wins.
	ContactBy     *time.Time
	DueDate       *time.Time
	AcknowledgeBy *time.Time

	// AssignedTo is nil when the item is unassigned.
	AssignedTo *string
}

// Deadline returns the effective deadline, or nil when none is set.
func (it Item) Deadline() *time.Time {
	switch {
	case it.ContactBy != nil:
		return it.ContactBy
	case it.DueDate != nil:
		return it.DueDate
	case it.AcknowledgeBy != nil:
		return it.AcknowledgeBy
	}
	return nil
}
