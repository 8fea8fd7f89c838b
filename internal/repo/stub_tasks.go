package repo

import (
	"context"
	"database/sql"
	"strings"

	"practiceflow/internal/domain"
)

const stubTaskColumns = `id,workspace_id,title,COALESCE(detail,''),COALESCE(label,''),status,due_date,assigned_to_profile_id,created_at,updated_at`

func scanStubTask(scan func(dest ...any) error) (domain.StubTask, error) {
	var t domain.StubTask
	var due, assignee sql.NullString
	err := scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Detail, &t.Label, &t.Status, &due, &assignee, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if due.Valid {
		t.DueDate = &due.String
	}
	if assignee.Valid {
		t.AssignedToProfileID = &assignee.String
	}
	return t, nil
}

func (r Repo) InsertStubTask(ctx context.Context, tx *sql.Tx, t domain.StubTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stub_tasks(id,workspace_id,title,detail,label,status,due_date,assigned_to_profile_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceID, t.Title, nullable(t.Detail), nullable(t.Label), t.Status,
		nullableStringPtr(t.DueDate), nullableStringPtr(t.AssignedToProfileID), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetStubTask(ctx context.Context, id string) (domain.StubTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stubTaskColumns+` FROM stub_tasks WHERE id=?`, id)
	return scanStubTask(row.Scan)
}

func (r Repo) UpdateStubTask(ctx context.Context, tx *sql.Tx, t domain.StubTask) error {
	res, err := tx.ExecContext(ctx, `UPDATE stub_tasks SET title=?,detail=?,label=?,status=?,due_date=?,assigned_to_profile_id=?,updated_at=? WHERE id=?`,
		t.Title, nullable(t.Detail), nullable(t.Label), t.Status,
		nullableStringPtr(t.DueDate), nullableStringPtr(t.AssignedToProfileID), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type StubTaskFilters struct {
	WorkspaceID string
	Status      string
	AssigneeID  string
}

func (r Repo) ListStubTasks(ctx context.Context, f StubTaskFilters) ([]domain.StubTask, error) {
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
	query := `SELECT ` + stubTaskColumns + ` FROM stub_tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StubTask
	for rows.Next() {
		t, err := scanStubTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
