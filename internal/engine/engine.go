package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"practiceflow/internal/config"
	"practiceflow/internal/domain"
	"practiceflow/internal/engine/auth"
	"practiceflow/internal/events"
	"practiceflow/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ConfigFor returns the stored workspace config, falling back to the
// loaded file config and then the built-in defaults.
func (e Engine) ConfigFor(ctx context.Context, workspaceID string) *config.Config {
	if cfg, err := e.Repo.GetWorkspaceConfig(ctx, workspaceID); err == nil {
		return cfg
	}
	if e.Config != nil {
		return e.Config
	}
	return config.Default(workspaceID)
}

// WorkspaceInitOptions are parameters for creating a workspace.
type WorkspaceInitOptions struct {
	ID         string
	Name       string
	Type       string
	OwnerName  string
	OwnerEmail string
	ActorID    string
}

// InitWorkspace creates a workspace, its owner profile, the default
// config and the owner role assignment in one transaction.
func (e Engine) InitWorkspace(ctx context.Context, opts WorkspaceInitOptions) (domain.Workspace, error) {
	if opts.Name == "" {
		return domain.Workspace{}, errors.New("name is required")
	}
	if opts.Type == "" {
		opts.Type = "PRACTICE"
	}
	if opts.OwnerName == "" {
		return domain.Workspace{}, errors.New("owner-name is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("workspace|"+opts.Name+"|"+now)).String()
	}
	ownerID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(id+"|owner|"+opts.OwnerName)).String()

	w := domain.Workspace{
		ID:             id,
		OwnerProfileID: ownerID,
		Name:           opts.Name,
		Type:           opts.Type,
		CreatedAt:      now,
	}
	owner := domain.StaffProfile{
		ID:          ownerID,
		WorkspaceID: id,
		FullName:    opts.OwnerName,
		Email:       opts.OwnerEmail,
		Role:        "OWNER",
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	cfg := config.Default(id)
	if opts.Type != "" {
		cfg.Workspace.Type = opts.Type
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	if err := e.Repo.InsertStaffProfile(ctx, tx, owner); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert owner profile: %w", err)
	}
	if err := e.Repo.UpsertWorkspaceConfigTx(ctx, tx, id, cfg); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace config: %w", err)
	}
	if err := e.Repo.SyncRoles(ctx, tx, cfg.RBAC.Roles); err != nil {
		return domain.Workspace{}, fmt.Errorf("sync roles: %w", err)
	}
	if err := e.Repo.EnsureActor(ctx, tx, ownerID); err != nil {
		return domain.Workspace{}, err
	}
	if len(cfg.RBAC.Roles) > 0 {
		if err := e.Repo.AssignRole(ctx, tx, id, ownerID, "owner"); err != nil {
			return domain.Workspace{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "workspace.init", id, "workspace", id, opts.ActorID, events.EventPayload{"name": w.Name, "type": w.Type}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return w, nil
}

// ImportConfig stores a workspace config and re-syncs the role tables.
func (e Engine) ImportConfig(ctx context.Context, workspaceID string, cfg *config.Config, actorID string) error {
	if _, err := e.Repo.GetWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertWorkspaceConfigTx(ctx, tx, workspaceID, cfg); err != nil {
		return err
	}
	if err := e.Repo.SyncRoles(ctx, tx, cfg.RBAC.Roles); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "config.imported", workspaceID, "workspace", workspaceID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// StaffCreateOptions are parameters for adding a staff profile.
type StaffCreateOptions struct {
	ID          string
	WorkspaceID string
	FullName    string
	Email       string
	Phone       string
	Role        string
	ActorID     string
}

func (e Engine) CreateStaffProfile(ctx context.Context, opts StaffCreateOptions) (domain.StaffProfile, error) {
	if opts.FullName == "" {
		return domain.StaffProfile{}, errors.New("full-name is required")
	}
	if opts.Role == "" {
		opts.Role = "THERAPIST"
	}
	if !validStaffRole(opts.Role) {
		return domain.StaffProfile{}, fmt.Errorf("invalid role %s", opts.Role)
	}
	if _, err := e.Repo.GetWorkspace(ctx, opts.WorkspaceID); err != nil {
		return domain.StaffProfile{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.WorkspaceID+"|staff|"+opts.FullName+"|"+now)).String()
	}
	p := domain.StaffProfile{
		ID:          id,
		WorkspaceID: opts.WorkspaceID,
		FullName:    opts.FullName,
		Email:       opts.Email,
		Phone:       opts.Phone,
		Role:        opts.Role,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStaffProfile(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Repo.EnsureActor(ctx, tx, p.ID); err != nil {
		return p, err
	}
	if err := e.Repo.AssignRole(ctx, tx, opts.WorkspaceID, p.ID, rbacRoleFor(p.Role)); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "staff.created", opts.WorkspaceID, "staff", p.ID, opts.ActorID, events.EventPayload{"full_name": p.FullName, "role": p.Role}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// StaffUpdateOptions encapsulates allowed staff updates.
type StaffUpdateOptions struct {
	ID       string
	FullName string
	Email    *string
	Phone    *string
	Role     string
	Status   string
	ActorID  string
}

func (e Engine) UpdateStaffProfile(ctx context.Context, opts StaffUpdateOptions) (domain.StaffProfile, error) {
	p, err := e.Repo.GetStaffProfile(ctx, opts.ID)
	if err != nil {
		return p, err
	}
	oldRole := p.Role
	if opts.FullName != "" {
		p.FullName = opts.FullName
	}
	if opts.Email != nil {
		p.Email = *opts.Email
	}
	if opts.Phone != nil {
		p.Phone = *opts.Phone
	}
	if opts.Role != "" {
		if !validStaffRole(opts.Role) {
			return p, fmt.Errorf("invalid role %s", opts.Role)
		}
		p.Role = opts.Role
	}
	if opts.Status != "" {
		if opts.Status != "active" && opts.Status != "inactive" {
			return p, fmt.Errorf("invalid status %s", opts.Status)
		}
		p.Status = opts.Status
	}
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStaffProfile(ctx, tx, p); err != nil {
		return p, err
	}
	if p.Role != oldRole {
		if err := e.Repo.RevokeRole(ctx, tx, p.WorkspaceID, p.ID, rbacRoleFor(oldRole)); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return p, err
		}
		if err := e.Repo.AssignRole(ctx, tx, p.WorkspaceID, p.ID, rbacRoleFor(p.Role)); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return p, err
		}
	}
	if err := e.Events.Append(ctx, tx, "staff.updated", p.WorkspaceID, "staff", p.ID, opts.ActorID, events.EventPayload{"role": p.Role, "status": p.Status}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func validStaffRole(role string) bool {
	return role == "OWNER" || role == "THERAPIST" || role == "INTERN"
}

func rbacRoleFor(staffRole string) string {
	switch staffRole {
	case "OWNER":
		return "owner"
	case "INTERN":
		return "intern"
	default:
		return "therapist"
	}
}

// StubTaskOptions are parameters for creating or updating a stub task.
type StubTaskOptions struct {
	ID          string
	WorkspaceID string
	Title       string
	Detail      *string
	Label       *string
	Status      string
	DueDate     *string
	Assign      *string
	ActorID     string
}

func (e Engine) CreateStubTask(ctx context.Context, opts StubTaskOptions) (domain.StubTask, error) {
	if opts.Title == "" {
		return domain.StubTask{}, errors.New("title is required")
	}
	if _, err := e.Repo.GetWorkspace(ctx, opts.WorkspaceID); err != nil {
		return domain.StubTask{}, err
	}
	if opts.DueDate != nil && *opts.DueDate != "" {
		if _, err := time.Parse("2006-01-02", *opts.DueDate); err != nil {
			return domain.StubTask{}, fmt.Errorf("due-date must be YYYY-MM-DD: %w", err)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.WorkspaceID+"|stub|"+opts.Title+"|"+now)).String()
	}
	t := domain.StubTask{
		ID:          id,
		WorkspaceID: opts.WorkspaceID,
		Title:       opts.Title,
		Status:      "open",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.Detail != nil {
		t.Detail = *opts.Detail
	}
	if opts.Label != nil {
		t.Label = *opts.Label
	}
	if opts.DueDate != nil && *opts.DueDate != "" {
		t.DueDate = opts.DueDate
	}
	if opts.Assign != nil && *opts.Assign != "" {
		if _, err := e.Repo.GetStaffProfile(ctx, *opts.Assign); err != nil {
			return t, fmt.Errorf("assignee: %w", err)
		}
		t.AssignedToProfileID = opts.Assign
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStubTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "stub.created", t.WorkspaceID, "stub_task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) UpdateStubTask(ctx context.Context, opts StubTaskOptions) (domain.StubTask, error) {
	t, err := e.Repo.GetStubTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	if opts.Title != "" {
		t.Title = opts.Title
	}
	if opts.Detail != nil {
		t.Detail = *opts.Detail
	}
	if opts.Label != nil {
		t.Label = *opts.Label
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			if _, err := time.Parse("2006-01-02", *opts.DueDate); err != nil {
				return t, fmt.Errorf("due-date must be YYYY-MM-DD: %w", err)
			}
			t.DueDate = opts.DueDate
		}
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			t.AssignedToProfileID = nil
		} else {
			if _, err := e.Repo.GetStaffProfile(ctx, *opts.Assign); err != nil {
				return t, fmt.Errorf("assignee: %w", err)
			}
			t.AssignedToProfileID = opts.Assign
		}
	}
	if opts.Status != "" {
		if opts.Status != "open" && opts.Status != "done" {
			return t, fmt.Errorf("invalid stub task status %s", opts.Status)
		}
		t.Status = opts.Status
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStubTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "stub.updated", t.WorkspaceID, "stub_task", t.ID, opts.ActorID, events.EventPayload{"status": t.Status}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// AnnouncementCreateOptions are parameters for posting an announcement.
type AnnouncementCreateOptions struct {
	WorkspaceID string
	Title       string
	Body        string
	AuthorID    string
	Pinned      bool
	ActorID     string
}

func (e Engine) CreateAnnouncement(ctx context.Context, opts AnnouncementCreateOptions) (domain.Announcement, error) {
	if opts.Title == "" {
		return domain.Announcement{}, errors.New("title is required")
	}
	if _, err := e.Repo.GetWorkspace(ctx, opts.WorkspaceID); err != nil {
		return domain.Announcement{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Announcement{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.WorkspaceID+"|announce|"+opts.Title+"|"+now)).String(),
		WorkspaceID:     opts.WorkspaceID,
		Title:           opts.Title,
		Body:            opts.Body,
		AuthorProfileID: opts.AuthorID,
		Pinned:          opts.Pinned,
		CreatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAnnouncement(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "announcement.created", a.WorkspaceID, "announcement", a.ID, opts.ActorID, events.EventPayload{"title": a.Title}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// PinAnnouncement toggles the pinned flag so the announcement floats to
// the top of listings.
func (e Engine) PinAnnouncement(ctx context.Context, id string, pinned bool, actorID string) (domain.Announcement, error) {
	a, err := e.Repo.GetAnnouncement(ctx, id)
	if err != nil {
		return a, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetAnnouncementPinned(ctx, tx, id, pinned); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "announcement.pinned", a.WorkspaceID, "announcement", id, actorID, events.EventPayload{"pinned": pinned}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	a.Pinned = pinned
	return a, nil
}

func (e Engine) DeleteAnnouncement(ctx context.Context, id, actorID string) error {
	a, err := e.Repo.GetAnnouncement(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAnnouncement(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "announcement.deleted", a.WorkspaceID, "announcement", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a new key and returns the raw secret once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", errors.New("actor-id is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "pf_" + hex.EncodeToString(buf)
	k := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return k, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID); err != nil {
		return k, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, k); err != nil {
		return k, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "", "apikey", k.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return k, "", err
	}
	if err := tx.Commit(); err != nil {
		return k, "", err
	}
	return k, raw, nil
}

func (e Engine) DeleteAPIKey(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "apikey.deleted", "", "apikey", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// Identity describes an actor's RBAC footprint in a workspace.
type Identity struct {
	ActorID     string
	Roles       []string
	Permissions []string
}

func (e Engine) WhoAmI(ctx context.Context, workspaceID, actorID string) (Identity, error) {
	who := Identity{ActorID: actorID}
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return who, err
	}
	defer tx.Rollback()
	who.Roles, err = e.Auth.ActorRoles(ctx, tx, workspaceID, actorID)
	if err != nil {
		return who, err
	}
	who.Permissions, err = e.Auth.ActorPermissions(ctx, tx, workspaceID, actorID)
	return who, err
}

// GrantRole assigns an RBAC role, gated on staff.manage.
func (e Engine) GrantRole(ctx context.Context, workspaceID, grantorID, actorID, roleID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, workspaceID, grantorID, "staff.manage")
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: "staff.manage"}
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, workspaceID, actorID, roleID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("role %s not found", roleID)
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role.granted", workspaceID, "rbac", actorID, grantorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, workspaceID, grantorID, actorID, roleID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, workspaceID, grantorID, "staff.manage")
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: "staff.manage"}
	}
	if err := e.Repo.RevokeRole(ctx, tx, workspaceID, actorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role.revoked", workspaceID, "rbac", actorID, grantorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
