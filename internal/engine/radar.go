package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"practiceflow/internal/domain"
	"practiceflow/internal/events"
	"practiceflow/internal/radar"
	"practiceflow/internal/repo"
)

// RadarSnapshot is one viewer's scored radar, grouped into buckets.
// Items within a bucket are sorted descending by display weight.
type RadarSnapshot struct {
	WorkspaceID string               `json:"workspace_id"`
	ViewerID    string               `json:"viewer_id"`
	Role        radar.Role           `json:"role"`
	GeneratedAt string               `json:"generated_at" format:"date-time"`
	DoNow       []radar.Interpreted  `json:"do_now"`
	Waiting     []radar.Interpreted  `json:"waiting"`
	ComingUp    []radar.Interpreted  `json:"coming_up"`
}

// RadarView assembles and scores the radar for one viewer. Referrals
// that reached INTAKE_READY and stub tasks marked done are off the
// radar entirely.
func (e Engine) RadarView(ctx context.Context, workspaceID, viewerID string) (RadarSnapshot, error) {
	snap := RadarSnapshot{WorkspaceID: workspaceID, ViewerID: viewerID}
	if _, err := e.Repo.GetWorkspace(ctx, workspaceID); err != nil {
		return snap, err
	}
	role := e.viewerRole(ctx, viewerID)
	snap.Role = role

	referrals, err := e.Repo.ListReferrals(ctx, repo.ReferralFilters{WorkspaceID: workspaceID})
	if err != nil {
		return snap, err
	}
	stubs, err := e.Repo.ListStubTasks(ctx, repo.StubTaskFilters{WorkspaceID: workspaceID, Status: "open"})
	if err != nil {
		return snap, err
	}

	items := make([]radar.Item, 0, len(referrals)+len(stubs))
	for _, rf := range referrals {
		if rf.Status == "INTAKE_READY" {
			continue
		}
		items = append(items, referralItem(rf))
	}
	for _, st := range stubs {
		items = append(items, stubItem(st))
	}

	cfg := e.ConfigFor(ctx, workspaceID)
	interp := radar.Interpreter{
		History: repo.ViewStore{DB: e.DB},
		Now:     e.Now,
		Tuning:  cfg.Tuning(),
	}
	now := e.now()
	scored := interp.Interpret(ctx, items, viewerID, role)
	for _, it := range scored {
		switch radar.BucketFor(it.Item, now) {
		case radar.BucketDoNow:
			snap.DoNow = append(snap.DoNow, it)
		case radar.BucketWaiting:
			snap.Waiting = append(snap.Waiting, it)
		default:
			snap.ComingUp = append(snap.ComingUp, it)
		}
	}
	snap.GeneratedAt = now.UTC().Format(time.RFC3339)
	return snap, nil
}

// RecordItemView stamps the viewer's last-viewed time for an item.
func (e Engine) RecordItemView(ctx context.Context, workspaceID, viewerID, itemID string) error {
	if viewerID == "" || itemID == "" {
		return errors.New("viewer-id and item-id required")
	}
	now := e.now()
	store := repo.ViewStore{DB: e.DB}
	if err := store.RecordView(ctx, viewerID, itemID, now); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "radar.item.viewed", workspaceID, "radar_item", itemID, viewerID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeferItem bumps the owner's drift counter for an item the owner keeps
// pushing off. Staff viewers carry no drift.
func (e Engine) DeferItem(ctx context.Context, workspaceID, viewerID, itemID string) (int, error) {
	if viewerID == "" || itemID == "" {
		return 0, errors.New("viewer-id and item-id required")
	}
	if e.viewerRole(ctx, viewerID) != radar.RoleOwner {
		return 0, fmt.Errorf("drift tracking applies to workspace owners only")
	}
	store := repo.ViewStore{DB: e.DB}
	if err := store.IncrementDrift(ctx, viewerID, itemID); err != nil {
		return 0, err
	}
	drift, err := store.Drift(ctx, viewerID, itemID)
	if err != nil {
		return 0, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return drift, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "radar.item.deferred", workspaceID, "radar_item", itemID, viewerID, events.EventPayload{"drift": drift}); err != nil {
		return drift, err
	}
	return drift, tx.Commit()
}

// viewerRole maps the viewer's staff profile onto the interpreter role.
// Unknown viewers and anything but OWNER degrade to staff.
func (e Engine) viewerRole(ctx context.Context, viewerID string) radar.Role {
	p, err := e.Repo.GetStaffProfile(ctx, viewerID)
	if err != nil {
		return radar.RoleStaff
	}
	if p.Role == "OWNER" {
		return radar.RoleOwner
	}
	return radar.RoleStaff
}

func referralItem(rf domain.Referral) radar.Item {
	return radar.Item{
		ID:            rf.ID,
		ClientName:    rf.ClientName,
		Status:        rf.Status,
		ContactBy:     parseDay(rf.ContactBy),
		AcknowledgeBy: parseDay(rf.AcknowledgeBy),
		AssignedTo:    rf.AssignedToProfileID,
	}
}

func stubItem(st domain.StubTask) radar.Item {
	it := radar.Item{
		ID:         st.ID,
		Status:     st.Status,
		Title:      st.Title,
		Label:      st.Label,
		Detail:     st.Detail,
		AssignedTo: st.AssignedToProfileID,
	}
	if st.DueDate != nil {
		it.DueDate = parseDay(*st.DueDate)
	}
	return it
}

func parseDay(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
