package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/config"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/repo"
)

// DefaultStudioID is used when a fresh workspace has no studio yet.
const DefaultStudioID = "studio-1"

// ResolveStudioConfig picks the active studio and ensures its config
// exists in the DB, seeding defaults for a fresh workspace. It prefers
// the override, then a single-studio DB, then DefaultStudioID.
func ResolveStudioConfig(ctx context.Context, studioOverride string, r repo.Repo) (string, *config.Config, error) {
	studioID := studioOverride
	if studioID == "" {
		if id, err := r.SingleStudioID(ctx); err == nil {
			studioID = id
		} else if errors.Is(err, repo.ErrNotFound) {
			studioID = DefaultStudioID
		} else {
			return "", nil, err
		}
	}
	cfg, err := r.GetStudioConfig(ctx, studioID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(studioID)
		if err := r.UpsertStudioConfig(ctx, studioID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed studio config: %w", err)
		}
	}
	cfg.Studio.ID = studioID
	return studioID, cfg, nil
}
