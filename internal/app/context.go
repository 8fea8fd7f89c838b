package app

import (
	"context"
	"errors"
	"fmt"

	"practiceflow/internal/config"
	"practiceflow/internal/engine"
	"practiceflow/internal/repo"
)

// ResolveWorkspaceAndConfig picks the active workspace and ensures its
// config exists in the DB, seeding defaults if missing. It prefers the
// override, then the single workspace present in the DB.
func ResolveWorkspaceAndConfig(ctx context.Context, workspaceOverride, actorID string, e engine.Engine) (string, *config.Config, error) {
	workspaceID := workspaceOverride
	if workspaceID == "" {
		w, err := e.Repo.SingleWorkspace(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("no workspace exists; run pf workspace init")
			}
			return "", nil, err
		}
		workspaceID = w.ID
	}
	if _, err := e.Repo.GetWorkspace(ctx, workspaceID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", nil, fmt.Errorf("workspace %s not found; run pf workspace init", workspaceID)
		}
		return "", nil, err
	}
	cfg, err := e.Repo.GetWorkspaceConfig(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(workspaceID)
		if err := e.Repo.UpsertWorkspaceConfig(ctx, workspaceID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed workspace config: %w", err)
		}
	}
	cfg.Workspace.ID = workspaceID
	return workspaceID, cfg, nil
}
