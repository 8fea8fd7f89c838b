package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"practiceflow/internal/config"
	"practiceflow/internal/db"
	"practiceflow/internal/migrate"
	"practiceflow/internal/radar"
	"practiceflow/internal/repo"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := New(conn, config.Default("ws-test"))
	e.Now = func() time.Time { return testNow }
	return e
}

func initTestWorkspace(t *testing.T, e Engine) (workspaceID, ownerID string) {
	t.Helper()
	w, err := e.InitWorkspace(context.Background(), WorkspaceInitOptions{
		ID:        "ws-test",
		Name:      "Riverbend Therapy",
		OwnerName: "Dana Whitfield",
		ActorID:   "cli",
	})
	if err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	return w.ID, w.OwnerProfileID
}

func TestInitWorkspace(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	w, err := e.Repo.GetWorkspace(ctx, wsID)
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if w.OwnerProfileID != ownerID {
		t.Fatalf("owner profile = %s, want %s", w.OwnerProfileID, ownerID)
	}
	owner, err := e.Repo.GetStaffProfile(ctx, ownerID)
	if err != nil {
		t.Fatalf("get owner profile: %v", err)
	}
	if owner.Role != "OWNER" || owner.Status != "active" {
		t.Fatalf("owner role/status = %s/%s", owner.Role, owner.Status)
	}

	roles, err := e.Repo.ActorRoles(ctx, wsID, ownerID)
	if err != nil {
		t.Fatalf("actor roles: %v", err)
	}
	if len(roles) != 1 || roles[0] != "owner" {
		t.Fatalf("owner roles = %v", roles)
	}

	cfg, err := e.Repo.GetWorkspaceConfig(ctx, wsID)
	if err != nil {
		t.Fatalf("stored config: %v", err)
	}
	if cfg.Workspace.ID != wsID {
		t.Fatalf("config workspace id = %s", cfg.Workspace.ID)
	}

	if _, err := e.InitWorkspace(ctx, WorkspaceInitOptions{Name: ""}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestReferralLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	rf, err := e.CreateReferral(ctx, ReferralCreateOptions{
		WorkspaceID: wsID,
		ClientName:  "Jordan Blake",
		CreatedByID: ownerID,
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create referral: %v", err)
	}
	if rf.Status != "NEW" {
		t.Fatalf("status = %s", rf.Status)
	}
	if rf.AcknowledgeBy != "2026-03-03" {
		t.Fatalf("default acknowledge_by = %s", rf.AcknowledgeBy)
	}
	cl, err := e.Repo.GetChecklist(ctx, rf.ID)
	if err != nil {
		t.Fatalf("checklist seeded: %v", err)
	}
	if cl.AckDone {
		t.Fatal("ack should start unset")
	}

	rf, err = e.AcknowledgeReferral(ctx, rf.ID, ownerID)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if rf.Status != "ACKNOWLEDGED" {
		t.Fatalf("status after ack = %s", rf.Status)
	}
	if _, err := e.AcknowledgeReferral(ctx, rf.ID, ownerID); err == nil {
		t.Fatal("second acknowledge should fail")
	}

	rf, err = e.RecordContactOutcome(ctx, rf.ID, "SCHEDULED", "2026-03-10", ownerID)
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	if rf.Status != "APPT_SCHEDULED" {
		t.Fatalf("status after scheduled contact = %s", rf.Status)
	}
	if rf.FirstSessionDate == nil || *rf.FirstSessionDate != "2026-03-10" {
		t.Fatalf("first session date = %v", rf.FirstSessionDate)
	}

	yes := true
	if _, err := e.UpdateChecklist(ctx, ChecklistUpdateOptions{
		ReferralID:     rf.ID,
		MissingConsent: &yes,
		ActorID:        ownerID,
	}); err != nil {
		t.Fatalf("checklist missing consent: %v", err)
	}
	rf, _ = e.Repo.GetReferral(ctx, rf.ID)
	if rf.Status != "INTAKE_BLOCKED" {
		t.Fatalf("status with missing consent = %s", rf.Status)
	}

	no := false
	if _, err := e.UpdateChecklist(ctx, ChecklistUpdateOptions{
		ReferralID:     rf.ID,
		MissingConsent: &no,
		AckSignedInEHR: &yes,
		ActorID:        ownerID,
	}); err != nil {
		t.Fatalf("checklist complete: %v", err)
	}
	rf, _ = e.Repo.GetReferral(ctx, rf.ID)
	if rf.Status != "INTAKE_READY" {
		t.Fatalf("final status = %s", rf.Status)
	}
}

func TestReferralTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	rf, err := e.CreateReferral(ctx, ReferralCreateOptions{
		WorkspaceID: wsID,
		ClientName:  "Casey Miller",
		CreatedByID: ownerID,
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create referral: %v", err)
	}

	_, err = e.UpdateReferral(ctx, ReferralUpdateOptions{
		ID:      rf.ID,
		Status:  "APPT_SCHEDULED",
		ActorID: ownerID,
	})
	if err == nil || !strings.Contains(err.Error(), "transition") {
		t.Fatalf("expected transition error, got %v", err)
	}

	// Force bypasses both the transition check and the session-date gate.
	forced, err := e.UpdateReferral(ctx, ReferralUpdateOptions{
		ID:      rf.ID,
		Status:  "APPT_SCHEDULED",
		ActorID: ownerID,
		Force:   true,
	})
	if err != nil {
		t.Fatalf("forced update: %v", err)
	}
	if forced.Status != "APPT_SCHEDULED" {
		t.Fatalf("forced status = %s", forced.Status)
	}

	if _, err := e.RecordContactOutcome(ctx, rf.ID, "PENDING", "", ownerID); err == nil {
		t.Fatal("contact in APPT_SCHEDULED should fail")
	}
	if _, err := e.RecordContactOutcome(ctx, rf.ID, "BOGUS", "", ownerID); err == nil {
		t.Fatal("invalid outcome should fail")
	}
}

func TestContactOutcomeAdvancesFromAcknowledged(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	rf, err := e.CreateReferral(ctx, ReferralCreateOptions{
		WorkspaceID: wsID,
		ClientName:  "Avery Stone",
		CreatedByID: ownerID,
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create referral: %v", err)
	}
	if _, err := e.AcknowledgeReferral(ctx, rf.ID, ownerID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	rf, err = e.RecordContactOutcome(ctx, rf.ID, "NO_CONTACT", "", ownerID)
	if err != nil {
		t.Fatalf("no-contact outcome: %v", err)
	}
	if rf.Status != "CONTACT_IN_PROGRESS" {
		t.Fatalf("status after no-contact = %s", rf.Status)
	}
	cl, err := e.Repo.GetChecklist(ctx, rf.ID)
	if err != nil {
		t.Fatalf("checklist: %v", err)
	}
	if cl.ContactOutcome == nil || *cl.ContactOutcome != "NO_CONTACT" {
		t.Fatalf("contact outcome = %v", cl.ContactOutcome)
	}

	if _, err := e.RecordContactOutcome(ctx, rf.ID, "SCHEDULED", "", ownerID); err == nil {
		t.Fatal("scheduled without first session date should fail")
	}
}

func TestStaffRoleReassignment(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	p, err := e.CreateStaffProfile(ctx, StaffCreateOptions{
		WorkspaceID: wsID,
		FullName:    "Iris Moreno",
		Role:        "INTERN",
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	roles, _ := e.Repo.ActorRoles(ctx, wsID, p.ID)
	if len(roles) != 1 || roles[0] != "intern" {
		t.Fatalf("intern roles = %v", roles)
	}

	p, err = e.UpdateStaffProfile(ctx, StaffUpdateOptions{
		ID:      p.ID,
		Role:    "THERAPIST",
		ActorID: ownerID,
	})
	if err != nil {
		t.Fatalf("promote staff: %v", err)
	}
	if p.Role != "THERAPIST" {
		t.Fatalf("role = %s", p.Role)
	}
	roles, _ = e.Repo.ActorRoles(ctx, wsID, p.ID)
	if len(roles) != 1 || roles[0] != "therapist" {
		t.Fatalf("roles after promotion = %v", roles)
	}

	if _, err := e.CreateStaffProfile(ctx, StaffCreateOptions{
		WorkspaceID: wsID,
		FullName:    "Bad Role",
		Role:        "WIZARD",
		ActorID:     ownerID,
	}); err == nil {
		t.Fatal("unknown role should fail")
	}
}

func TestRadarViewBuckets(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	due, err := e.CreateReferral(ctx, ReferralCreateOptions{
		WorkspaceID:   wsID,
		ClientName:    "Due Today",
		AcknowledgeBy: "2026-03-02",
		CreatedByID:   ownerID,
		ActorID:       ownerID,
	})
	if err != nil {
		t.Fatalf("create due referral: %v", err)
	}
	later, err := e.CreateReferral(ctx, ReferralCreateOptions{
		WorkspaceID:   wsID,
		ClientName:    "Due In Two Days",
		AcknowledgeBy: "2026-03-04",
		CreatedByID:   ownerID,
		ActorID:       ownerID,
	})
	if err != nil {
		t.Fatalf("create later referral: %v", err)
	}
	done, err := e.CreateReferral(ctx, ReferralCreateOptions{
		WorkspaceID: wsID,
		ClientName:  "Already Done",
		CreatedByID: ownerID,
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create done referral: %v", err)
	}
	if _, err := e.UpdateReferral(ctx, ReferralUpdateOptions{
		ID: done.ID, Status: "INTAKE_READY", ActorID: ownerID, Force: true,
	}); err != nil {
		t.Fatalf("force done: %v", err)
	}

	dd := "2026-02-20"
	stub, err := e.CreateStubTask(ctx, StubTaskOptions{
		WorkspaceID: wsID,
		Title:       "Renew license",
		DueDate:     &dd,
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create stub: %v", err)
	}

	snap, err := e.RadarView(ctx, wsID, ownerID)
	if err != nil {
		t.Fatalf("radar view: %v", err)
	}
	if snap.Role != radar.RoleOwner {
		t.Fatalf("viewer role = %s", snap.Role)
	}

	ids := func(items []radar.Interpreted) []string {
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, it.Item.ID)
		}
		return out
	}
	if got := ids(snap.DoNow); len(got) != 1 || got[0] != due.ID {
		t.Fatalf("do_now = %v", got)
	}
	for _, it := range append(snap.DoNow, append(snap.Waiting, snap.ComingUp...)...) {
		if it.Item.ID == done.ID {
			t.Fatal("INTAKE_READY referral should be off the radar")
		}
	}
	foundLater, foundStub := false, false
	for _, it := range snap.ComingUp {
		switch it.Item.ID {
		case later.ID:
			foundLater = true
		case stub.ID:
			foundStub = true
			// "Renew license" classifies critical; overdue adds full decay.
			if it.Class != radar.ClassCritical {
				t.Fatalf("stub class = %s", it.Class)
			}
			if it.TimeDecay != 25 {
				t.Fatalf("stub decay = %d", it.TimeDecay)
			}
		}
	}
	if !foundLater || !foundStub {
		t.Fatalf("coming_up missing items: %v", ids(snap.ComingUp))
	}
}

func TestDeferItemOwnerOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	staff, err := e.CreateStaffProfile(ctx, StaffCreateOptions{
		WorkspaceID: wsID,
		FullName:    "Theo Park",
		Role:        "THERAPIST",
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	drift, err := e.DeferItem(ctx, wsID, ownerID, "item-1")
	if err != nil {
		t.Fatalf("owner defer: %v", err)
	}
	if drift != 1 {
		t.Fatalf("first defer drift = %d", drift)
	}
	drift, err = e.DeferItem(ctx, wsID, ownerID, "item-1")
	if err != nil {
		t.Fatalf("second defer: %v", err)
	}
	if drift != 2 {
		t.Fatalf("second defer drift = %d", drift)
	}

	if _, err := e.DeferItem(ctx, wsID, staff.ID, "item-1"); err == nil {
		t.Fatal("staff defer should be rejected")
	}

	for i := 0; i < 20; i++ {
		if _, err := e.DeferItem(ctx, wsID, ownerID, "item-2"); err != nil {
			t.Fatalf("defer %d: %v", i, err)
		}
	}
	drift, err = e.DeferItem(ctx, wsID, ownerID, "item-2")
	if err != nil {
		t.Fatalf("capped defer: %v", err)
	}
	if drift != radar.DriftCap {
		t.Fatalf("drift should cap at %d, got %d", radar.DriftCap, drift)
	}
}

func TestGrantAndRevokeRole(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	wsID, ownerID := initTestWorkspace(t, e)

	staff, err := e.CreateStaffProfile(ctx, StaffCreateOptions{
		WorkspaceID: wsID,
		FullName:    "Noor Aziz",
		Role:        "INTERN",
		ActorID:     ownerID,
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	if err := e.GrantRole(ctx, wsID, ownerID, staff.ID, "therapist"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	who, err := e.WhoAmI(ctx, wsID, staff.ID)
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	hasUpdate := false
	for _, p := range who.Permissions {
		if p == "referral.update" {
			hasUpdate = true
		}
	}
	if !hasUpdate {
		t.Fatalf("therapist grant missing referral.update: %v", who.Permissions)
	}

	// Interns cannot manage roles.
	if err := e.GrantRole(ctx, wsID, staff.ID, staff.ID, "owner"); err == nil {
		t.Fatal("non-manager grant should fail")
	}

	if err := e.RevokeRole(ctx, wsID, ownerID, staff.ID, "therapist"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	roles, _ := e.Repo.ActorRoles(ctx, wsID, staff.ID)
	for _, r := range roles {
		if r == "therapist" {
			t.Fatalf("therapist still assigned: %v", roles)
		}
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, ownerID := initTestWorkspace(t, e)

	key, raw, err := e.CreateAPIKey(ctx, ownerID, "automation")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if !strings.HasPrefix(raw, "pf_") {
		t.Fatalf("raw key prefix: %s", raw)
	}

	found, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}
	if found.ID != key.ID || found.ActorID != ownerID {
		t.Fatalf("lookup mismatch: %+v", found)
	}

	if err := e.DeleteAPIKey(ctx, key.ID, ownerID); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw)); err == nil {
		t.Fatal("deleted key should not resolve")
	}
}
