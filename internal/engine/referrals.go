package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"practiceflow/internal/domain"
	"practiceflow/internal/events"
)

// ReferralCreateOptions are parameters for intaking a new referral.
type ReferralCreateOptions struct {
	ID            string
	WorkspaceID   string
	ClientName    string
	ClientPhone   string
	ClientEmail   string
	AssigneeID    string
	CreatedByID   string
	AcknowledgeBy string
	ContactBy     string
	ActorID       string
}

// CreateReferral records a referral in status NEW with an empty
// checklist. AcknowledgeBy defaults to the day after creation.
func (e Engine) CreateReferral(ctx context.Context, opts ReferralCreateOptions) (domain.Referral, error) {
	if opts.ClientName == "" {
		return domain.Referral{}, errors.New("client-name is required")
	}
	if opts.WorkspaceID == "" {
		return domain.Referral{}, errors.New("workspace is required")
	}
	if _, err := e.Repo.GetWorkspace(ctx, opts.WorkspaceID); err != nil {
		return domain.Referral{}, err
	}
	if opts.AssigneeID != "" {
		p, err := e.Repo.GetStaffProfile(ctx, opts.AssigneeID)
		if err != nil {
			return domain.Referral{}, fmt.Errorf("assignee: %w", err)
		}
		if p.WorkspaceID != opts.WorkspaceID {
			return domain.Referral{}, fmt.Errorf("assignee %s not in workspace %s", opts.AssigneeID, opts.WorkspaceID)
		}
	}
	for _, d := range []string{opts.AcknowledgeBy, opts.ContactBy} {
		if d != "" {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return domain.Referral{}, fmt.Errorf("dates must be YYYY-MM-DD: %w", err)
			}
		}
	}
	nowT := e.now().UTC()
	now := nowT.Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.WorkspaceID+"|"+opts.ClientName+"|"+now)).String()
	}
	ackBy := opts.AcknowledgeBy
	if ackBy == "" {
		ackBy = nowT.AddDate(0, 0, 1).Format("2006-01-02")
	}
	rf := domain.Referral{
		ID:                  id,
		WorkspaceID:         opts.WorkspaceID,
		ClientName:          opts.ClientName,
		ClientPhone:         opts.ClientPhone,
		ClientEmail:         opts.ClientEmail,
		AssignedToProfileID: optionalString(opts.AssigneeID),
		CreatedByProfileID:  opts.CreatedByID,
		Status:              "NEW",
		AcknowledgeBy:       ackBy,
		ContactBy:           opts.ContactBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rf, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReferral(ctx, tx, rf); err != nil {
		return rf, err
	}
	if err := e.Repo.UpsertChecklist(ctx, tx, domain.ReferralChecklist{ReferralID: rf.ID, UpdatedAt: now}); err != nil {
		return rf, err
	}
	if err := e.Events.Append(ctx, tx, "referral.created", rf.WorkspaceID, "referral", rf.ID, opts.ActorID, events.EventPayload{
		"client_name": rf.ClientName,
		"status":      rf.Status,
	}); err != nil {
		return rf, err
	}
	if err := tx.Commit(); err != nil {
		return rf, err
	}
	return rf, nil
}

// ReferralUpdateOptions encapsulates allowed referral updates.
type ReferralUpdateOptions struct {
	ID               string
	Status           string
	Assign           *string
	ClientPhone      *string
	ClientEmail      *string
	ContactBy        *string
	FirstSessionDate *string
	ActorID          string
	Force            bool
}

func (e Engine) UpdateReferral(ctx context.Context, opts ReferralUpdateOptions) (domain.Referral, error) {
	rf, err := e.Repo.GetReferral(ctx, opts.ID)
	if err != nil {
		return rf, err
	}
	original := rf
	if opts.Assign != nil {
		if *opts.Assign == "" {
			rf.AssignedToProfileID = nil
		} else {
			p, err := e.Repo.GetStaffProfile(ctx, *opts.Assign)
			if err != nil {
				return rf, fmt.Errorf("assignee: %w", err)
			}
			if p.WorkspaceID != rf.WorkspaceID {
				return rf, fmt.Errorf("assignee %s not in workspace %s", *opts.Assign, rf.WorkspaceID)
			}
			rf.AssignedToProfileID = opts.Assign
		}
	}
	if opts.ClientPhone != nil {
		rf.ClientPhone = *opts.ClientPhone
	}
	if opts.ClientEmail != nil {
		rf.ClientEmail = *opts.ClientEmail
	}
	if opts.ContactBy != nil {
		if *opts.ContactBy != "" {
			if _, err := time.Parse("2006-01-02", *opts.ContactBy); err != nil {
				return rf, fmt.Errorf("contact-by must be YYYY-MM-DD: %w", err)
			}
		}
		rf.ContactBy = *opts.ContactBy
	}
	if opts.FirstSessionDate != nil {
		if *opts.FirstSessionDate == "" {
			rf.FirstSessionDate = nil
		} else {
			if _, err := time.Parse("2006-01-02", *opts.FirstSessionDate); err != nil {
				return rf, fmt.Errorf("first-session-date must be YYYY-MM-DD: %w", err)
			}
			rf.FirstSessionDate = opts.FirstSessionDate
		}
	}
	if opts.Status != "" && opts.Status != rf.Status {
		if err := ensureReferralTransition(rf.Status, opts.Status, opts.Force); err != nil {
			return rf, err
		}
		if opts.Status == "APPT_SCHEDULED" && rf.FirstSessionDate == nil && !opts.Force {
			return rf, errors.New("first-session-date required for APPT_SCHEDULED")
		}
		rf.Status = opts.Status
	}
	rf.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rf, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateReferral(ctx, tx, rf); err != nil {
		return rf, err
	}
	if err := e.Events.Append(ctx, tx, "referral.updated", rf.WorkspaceID, "referral", rf.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   rf.Status,
	}); err != nil {
		return rf, err
	}
	if err := tx.Commit(); err != nil {
		return rf, err
	}
	return rf, nil
}

func ensureReferralTransition(oldStatus, newStatus string, force bool) error {
	if force {
		return nil
	}
	switch oldStatus {
	case "NEW":
		if newStatus == "ACKNOWLEDGED" {
			return nil
		}
	case "ACKNOWLEDGED":
		if newStatus == "CONTACT_IN_PROGRESS" {
			return nil
		}
	case "CONTACT_IN_PROGRESS":
		if newStatus == "APPT_SCHEDULED" || newStatus == "INTAKE_BLOCKED" {
			return nil
		}
	case "APPT_SCHEDULED":
		if newStatus == "INTAKE_BLOCKED" || newStatus == "INTAKE_READY" {
			return nil
		}
	case "INTAKE_BLOCKED":
		if newStatus == "INTAKE_READY" {
			return nil
		}
	}
	return fmt.Errorf("invalid referral status transition %s -> %s", oldStatus, newStatus)
}

// AcknowledgeReferral marks the acknowledgement step done and moves the
// referral out of NEW.
func (e Engine) AcknowledgeReferral(ctx context.Context, id, actorID string) (domain.Referral, error) {
	rf, err := e.Repo.GetReferral(ctx, id)
	if err != nil {
		return rf, err
	}
	if rf.Status != "NEW" {
		return rf, fmt.Errorf("referral already acknowledged (status %s)", rf.Status)
	}
	cl, err := e.Repo.GetChecklist(ctx, id)
	if err != nil {
		cl = domain.ReferralChecklist{ReferralID: id}
	}
	now := e.now().UTC().Format(time.RFC3339)
	cl.AckDone = true
	cl.UpdatedAt = now
	rf.Status = "ACKNOWLEDGED"
	rf.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rf, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateReferral(ctx, tx, rf); err != nil {
		return rf, err
	}
	if err := e.Repo.UpsertChecklist(ctx, tx, cl); err != nil {
		return rf, err
	}
	if err := e.Events.Append(ctx, tx, "referral.acknowledged", rf.WorkspaceID, "referral", rf.ID, actorID, events.EventPayload{}); err != nil {
		return rf, err
	}
	if err := tx.Commit(); err != nil {
		return rf, err
	}
	return rf, nil
}

// RecordContactOutcome logs a contact attempt. SCHEDULED outcomes move
// the referral straight to APPT_SCHEDULED; anything else lands in
// CONTACT_IN_PROGRESS.
func (e Engine) RecordContactOutcome(ctx context.Context, id, outcome, firstSessionDate, actorID string) (domain.Referral, error) {
	switch outcome {
	case "SCHEDULED", "PENDING", "NO_CONTACT":
	default:
		return domain.Referral{}, fmt.Errorf("invalid contact outcome %s", outcome)
	}
	rf, err := e.Repo.GetReferral(ctx, id)
	if err != nil {
		return rf, err
	}
	original := rf
	if rf.Status == "ACKNOWLEDGED" {
		rf.Status = "CONTACT_IN_PROGRESS"
	}
	if rf.Status != "CONTACT_IN_PROGRESS" {
		return rf, fmt.Errorf("cannot record contact in status %s", original.Status)
	}
	if outcome == "SCHEDULED" {
		if firstSessionDate == "" && rf.FirstSessionDate == nil {
			return rf, errors.New("first-session-date required for SCHEDULED outcome")
		}
		if firstSessionDate != "" {
			if _, err := time.Parse("2006-01-02", firstSessionDate); err != nil {
				return rf, fmt.Errorf("first-session-date must be YYYY-MM-DD: %w", err)
			}
			rf.FirstSessionDate = &firstSessionDate
		}
		rf.Status = "APPT_SCHEDULED"
	}
	cl, err := e.Repo.GetChecklist(ctx, id)
	if err != nil {
		cl = domain.ReferralChecklist{ReferralID: id}
	}
	now := e.now().UTC().Format(time.RFC3339)
	cl.ContactOutcome = &outcome
	cl.UpdatedAt = now
	rf.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rf, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateReferral(ctx, tx, rf); err != nil {
		return rf, err
	}
	if err := e.Repo.UpsertChecklist(ctx, tx, cl); err != nil {
		return rf, err
	}
	if err := e.Events.Append(ctx, tx, "referral.contacted", rf.WorkspaceID, "referral", rf.ID, actorID, events.EventPayload{
		"outcome":     outcome,
		"from_status": original.Status,
		"to_status":   rf.Status,
	}); err != nil {
		return rf, err
	}
	if err := tx.Commit(); err != nil {
		return rf, err
	}
	return rf, nil
}

// ChecklistUpdateOptions are parameters for intake checklist changes.
type ChecklistUpdateOptions struct {
	ReferralID         string
	AckSignedInEHR     *bool
	MissingPaymentAuth *bool
	MissingConsent     *bool
	MissingPrivacy     *bool
	ActorID            string
}

// UpdateChecklist applies intake flags and derives the referral status:
// any missing paperwork blocks intake, a clean signed checklist makes
// the referral intake ready.
func (e Engine) UpdateChecklist(ctx context.Context, opts ChecklistUpdateOptions) (domain.ReferralChecklist, error) {
	rf, err := e.Repo.GetReferral(ctx, opts.ReferralID)
	if err != nil {
		return domain.ReferralChecklist{}, err
	}
	cl, err := e.Repo.GetChecklist(ctx, opts.ReferralID)
	if err != nil {
		cl = domain.ReferralChecklist{ReferralID: opts.ReferralID}
	}
	if opts.AckSignedInEHR != nil {
		cl.IntakeAckSignedInEHR = *opts.AckSignedInEHR
	}
	if opts.MissingPaymentAuth != nil {
		cl.IntakeMissingPaymentAuth = *opts.MissingPaymentAuth
	}
	if opts.MissingConsent != nil {
		cl.IntakeMissingConsent = *opts.MissingConsent
	}
	if opts.MissingPrivacy != nil {
		cl.IntakeMissingPrivacy = *opts.MissingPrivacy
	}
	now := e.now().UTC().Format(time.RFC3339)
	cl.UpdatedAt = now

	anyMissing := cl.IntakeMissingPaymentAuth || cl.IntakeMissingConsent || cl.IntakeMissingPrivacy
	oldStatus := rf.Status
	switch {
	case anyMissing && (rf.Status == "CONTACT_IN_PROGRESS" || rf.Status == "APPT_SCHEDULED"):
		rf.Status = "INTAKE_BLOCKED"
	case !anyMissing && cl.IntakeAckSignedInEHR && (rf.Status == "APPT_SCHEDULED" || rf.Status == "INTAKE_BLOCKED"):
		rf.Status = "INTAKE_READY"
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return cl, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertChecklist(ctx, tx, cl); err != nil {
		return cl, err
	}
	if rf.Status != oldStatus {
		rf.UpdatedAt = now
		if err := e.Repo.UpdateReferral(ctx, tx, rf); err != nil {
			return cl, err
		}
		if err := e.Events.Append(ctx, tx, "referral.updated", rf.WorkspaceID, "referral", rf.ID, opts.ActorID, events.EventPayload{
			"from_status": oldStatus,
			"to_status":   rf.Status,
		}); err != nil {
			return cl, err
		}
	}
	if err := e.Events.Append(ctx, tx, "referral.checklist.updated", rf.WorkspaceID, "referral", rf.ID, opts.ActorID, events.EventPayload{
		"ack_signed_in_ehr": cl.IntakeAckSignedInEHR,
		"any_missing":       anyMissing,
	}); err != nil {
		return cl, err
	}
	if err := tx.Commit(); err != nil {
		return cl, err
	}
	return cl, nil
}
