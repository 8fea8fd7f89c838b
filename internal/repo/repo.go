package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"practiceflow/internal/config"
	"practiceflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- workspaces ---

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workspaces(id,owner_profile_id,name,type,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.OwnerProfileID, w.Name, w.Type, w.CreatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	var w domain.Workspace
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_profile_id,name,type,created_at FROM workspaces WHERE id=?`, id).
		Scan(&w.ID, &w.OwnerProfileID, &w.Name, &w.Type, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) SingleWorkspace(ctx context.Context) (domain.Workspace, error) {
	items, err := r.ListWorkspaces(ctx)
	if err != nil {
		return domain.Workspace{}, err
	}
	if len(items) == 0 {
		return domain.Workspace{}, ErrNotFound
	}
	if len(items) > 1 {
		return domain.Workspace{}, fmt.Errorf("multiple workspaces exist; specify --workspace-id")
	}
	return items[0], nil
}

func (r Repo) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_profile_id,name,type,created_at FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		if err := rows.Scan(&w.ID, &w.OwnerProfileID, &w.Name, &w.Type, &w.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// --- workspace configs ---

func (r Repo) UpsertWorkspaceConfig(ctx context.Context, workspaceID string, cfg *config.Config) error {
	return upsertWorkspaceConfig(ctx, r.DB, nil, workspaceID, cfg)
}

func (r Repo) UpsertWorkspaceConfigTx(ctx context.Context, tx *sql.Tx, workspaceID string, cfg *config.Config) error {
	return upsertWorkspaceConfig(ctx, nil, tx, workspaceID, cfg)
}

func upsertWorkspaceConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, workspaceID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Workspace.ID = workspaceID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO workspace_configs(workspace_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(workspace_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, workspaceID, string(payload), now, now)
	return err
}

func (r Repo) GetWorkspaceConfig(ctx context.Context, workspaceID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM workspace_configs WHERE workspace_id=?`, workspaceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Workspace.ID == "" {
		cfg.Workspace.ID = workspaceID
	}
	return &cfg, cfg.Validate()
}

// --- referrals ---

const referralColumns = `id,workspace_id,client_name,COALESCE(client_phone,''),COALESCE(client_email,''),assigned_to_profile_id,created_by_profile_id,status,COALESCE(acknowledge_by,''),COALESCE(contact_by,''),first_session_date,created_at,updated_at`

func scanReferral(scan func(dest ...any) error) (domain.Referral, error) {
	var rf domain.Referral
	var assignee, firstSession sql.NullString
	err := scan(&rf.ID, &rf.WorkspaceID, &rf.ClientName, &rf.ClientPhone, &rf.ClientEmail,
		&assignee, &rf.CreatedByProfileID, &rf.Status, &rf.AcknowledgeBy, &rf.ContactBy,
		&firstSession, &rf.CreatedAt, &rf.UpdatedAt)
	if err == sql.ErrNoRows {
		return rf, ErrNotFound
	}
	if err != nil {
		return rf, err
	}
	if assignee.Valid {
		rf.AssignedToProfileID = &assignee.String
	}
	if firstSession.Valid {
		rf.FirstSessionDate = &firstSession.String
	}
	return rf, nil
}

func (r Repo) InsertReferral(ctx context.Context, tx *sql.Tx, rf domain.Referral) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO referrals(id,workspace_id,client_name,client_phone,client_email,assigned_to_profile_id,created_by_profile_id,status,acknowledge_by,contact_by,first_session_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rf.ID, rf.WorkspaceID, rf.ClientName, nullable(rf.ClientPhone), nullable(rf.ClientEmail),
		nullableStringPtr(rf.AssignedToProfileID), rf.CreatedByProfileID, rf.Status,
		nullable(rf.AcknowledgeBy), nullable(rf.ContactBy), nullableStringPtr(rf.FirstSessionDate),
		rf.CreatedAt, rf.UpdatedAt)
	return err
}

func (r Repo) GetReferral(ctx context.Context, id string) (domain.Referral, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+referralColumns+` FROM referrals WHERE id=?`, id)
	return scanReferral(row.Scan)
}

func (r Repo) UpdateReferral(ctx context.Context, tx *sql.Tx, rf domain.Referral) error {
	res, err := tx.ExecContext(ctx, `UPDATE referrals SET client_name=?,client_phone=?,client_email=?,assigned_to_profile_id=?,status=?,acknowledge_by=?,contact_by=?,first_session_date=?,updated_at=? WHERE id=?`,
		rf.ClientName, nullable(rf.ClientPhone), nullable(rf.ClientEmail),
		nullableStringPtr(rf.AssignedToProfileID), rf.Status,
		nullable(rf.AcknowledgeBy), nullable(rf.ContactBy), nullableStringPtr(rf.FirstSessionDate),
		rf.UpdatedAt, rf.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ReferralFilters struct {
	WorkspaceID     string
	Status          string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListReferrals(ctx context.Context, f ReferralFilters) ([]domain.Referral, error) {
	clauses := []string{"workspace_id=?"}
	args := []any{f.WorkspaceID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assigned_to_profile_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Referral
	for rows.Next() {
		rf, err := scanReferral(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rf)
	}
	return res, rows.Err()
}

// --- checklists ---

func (r Repo) GetChecklist(ctx context.Context, referralID string) (domain.ReferralChecklist, error) {
	var c domain.ReferralChecklist
	var outcome sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT referral_id,ack_done,contact_outcome,intake_ack_signed_in_ehr,intake_missing_payment_auth,intake_missing_consent,intake_missing_privacy,updated_at FROM referral_checklists WHERE referral_id=?`, referralID).
		Scan(&c.ReferralID, &c.AckDone, &outcome, &c.IntakeAckSignedInEHR, &c.IntakeMissingPaymentAuth, &c.IntakeMissingConsent, &c.IntakeMissingPrivacy, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if outcome.Valid {
		c.ContactOutcome = &outcome.String
	}
	return c, err
}

func (r Repo) UpsertChecklist(ctx context.Context, tx *sql.Tx, c domain.ReferralChecklist) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO referral_checklists(referral_id,ack_done,contact_outcome,intake_ack_signed_in_ehr,intake_missing_payment_auth,intake_missing_consent,intake_missing_privacy,updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(referral_id) DO UPDATE SET ack_done=excluded.ack_done, contact_outcome=excluded.contact_outcome,
intake_ack_signed_in_ehr=excluded.intake_ack_signed_in_ehr, intake_missing_payment_auth=excluded.intake_missing_payment_auth,
intake_missing_consent=excluded.intake_missing_consent, intake_missing_privacy=excluded.intake_missing_privacy,
updated_at=excluded.updated_at`,
		c.ReferralID, c.AckDone, nullableStringPtr(c.ContactOutcome), c.IntakeAckSignedInEHR,
		c.IntakeMissingPaymentAuth, c.IntakeMissingConsent, c.IntakeMissingPrivacy, c.UpdatedAt)
	return err
}

// --- events ---

func (r Repo) ListEvents(ctx context.Context, workspaceID string, limit int) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(workspace_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id=?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.WorkspaceID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64, workspaceID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(workspace_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id > ?`
	args := []any{afterID}
	if workspaceID != "" {
		query += ` AND workspace_id=?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.WorkspaceID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context, workspaceID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id=?`
		args = append(args, workspaceID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
