package repo

import (
	"context"
	"database/sql"
	"time"

	"practiceflow/internal/config"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id,created_at) VALUES (?,?)`,
		actorID, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SyncRoles replaces the role and permission tables from config. Actor
// role assignments are left alone.
func (r Repo) SyncRoles(ctx context.Context, tx *sql.Tx, roles map[string]config.RBACRole) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM permissions`); err != nil {
		return err
	}
	for roleID, role := range roles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO roles(id,description) VALUES (?,?)`, roleID, role.Description); err != nil {
			return err
		}
		for _, perm := range role.Permissions {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO permissions(id,description) VALUES (?,'')`, perm); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id,permission_id) VALUES (?,?)`, roleID, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, workspaceID, actorID, roleID string) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM roles WHERE id=?`, roleID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(workspace_id,actor_id,role_id) VALUES (?,?,?)`,
		workspaceID, actorID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, workspaceID, actorID, roleID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE workspace_id=? AND actor_id=? AND role_id=?`,
		workspaceID, actorID, roleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ActorRoles(ctx context.Context, workspaceID, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE workspace_id=? AND actor_id=? ORDER BY role_id`, workspaceID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}
