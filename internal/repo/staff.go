package repo

import (
	"context"
	"database/sql"
	"strings"

	"practiceflow/internal/domain"
)

const staffColumns = `id,workspace_id,full_name,COALESCE(email,''),COALESCE(phone,''),role,status,notification_prefs_json,created_at,updated_at`

func scanStaff(scan func(dest ...any) error) (domain.StaffProfile, error) {
	var p domain.StaffProfile
	var prefs sql.NullString
	err := scan(&p.ID, &p.WorkspaceID, &p.FullName, &p.Email, &p.Phone, &p.Role, &p.Status, &prefs, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if prefs.Valid {
		p.NotificationPrefsJSON = &prefs.String
	}
	return p, nil
}

func (r Repo) InsertStaffProfile(ctx context.Context, tx *sql.Tx, p domain.StaffProfile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO staff_profiles(id,workspace_id,full_name,email,phone,role,status,notification_prefs_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.WorkspaceID, p.FullName, nullable(p.Email), nullable(p.Phone), p.Role, p.Status,
		nullableStringPtr(p.NotificationPrefsJSON), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetStaffProfile(ctx context.Context, id string) (domain.StaffProfile, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff_profiles WHERE id=?`, id)
	return scanStaff(row.Scan)
}

func (r Repo) UpdateStaffProfile(ctx context.Context, tx *sql.Tx, p domain.StaffProfile) error {
	res, err := tx.ExecContext(ctx, `UPDATE staff_profiles SET full_name=?,email=?,phone=?,role=?,status=?,notification_prefs_json=?,updated_at=? WHERE id=?`,
		p.FullName, nullable(p.Email), nullable(p.Phone), p.Role, p.Status,
		nullableStringPtr(p.NotificationPrefsJSON), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type StaffFilters struct {
	WorkspaceID string
	Role        string
	Status      string
}

func (r Repo) ListStaffProfiles(ctx context.Context, f StaffFilters) ([]domain.StaffProfile, error) {
	clauses := []string{"workspace_id=?"}
	args := []any{f.WorkspaceID}
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + staffColumns + ` FROM staff_profiles WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StaffProfile
	for rows.Next() {
		p, err := scanStaff(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
