package repo

import (
	"context"
	"database/sql"

	"practiceflow/internal/domain"
)

func (r Repo) InsertAnnouncement(ctx context.Context, tx *sql.Tx, a domain.Announcement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO announcements(id,workspace_id,title,body,author_profile_id,pinned,created_at)
VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.WorkspaceID, a.Title, nullable(a.Body), a.AuthorProfileID, a.Pinned, a.CreatedAt)
	return err
}

func (r Repo) GetAnnouncement(ctx context.Context, id string) (domain.Announcement, error) {
	var a domain.Announcement
	err := r.DB.QueryRowContext(ctx, `SELECT id,workspace_id,title,COALESCE(body,''),author_profile_id,pinned,created_at FROM announcements WHERE id=?`, id).
		Scan(&a.ID, &a.WorkspaceID, &a.Title, &a.Body, &a.AuthorProfileID, &a.Pinned, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAnnouncements(ctx context.Context, workspaceID string, limit int) ([]domain.Announcement, error) {
	query := `SELECT id,workspace_id,title,COALESCE(body,''),author_profile_id,pinned,created_at FROM announcements WHERE workspace_id=? ORDER BY pinned DESC, created_at DESC`
	args := []any{workspaceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Announcement
	for rows.Next() {
		var a domain.Announcement
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.Title, &a.Body, &a.AuthorProfileID, &a.Pinned, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) SetAnnouncementPinned(ctx context.Context, tx *sql.Tx, id string, pinned bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE announcements SET pinned=? WHERE id=?`, pinned, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAnnouncement(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM announcements WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
