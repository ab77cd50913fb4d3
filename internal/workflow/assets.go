package workflow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/activity"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

// unlockedVersion loads the version inside tx and rejects asset mutations
// once it has been handed to the client.
func (e Engine) unlockedVersion(ctx context.Context, tx *sql.Tx, versionID string) (domain.Version, error) {
	v, err := e.Repo.GetVersionTx(ctx, tx, versionID)
	if err != nil {
		return domain.Version{}, err
	}
	if v.Status.Locked() {
		return domain.Version{}, conflictf("version %s is locked (%s)", v.Label, v.Status)
	}
	return v, nil
}

// bumpVersionRev counts asset churn as a version mutation so concurrent
// pushes observe it.
func (e Engine) bumpVersionRev(ctx context.Context, tx *sql.Tx, v domain.Version) error {
	prev := v.Rev
	v.Rev++
	ok, err := e.Repo.UpdateVersionTx(ctx, tx, v, prev)
	if err != nil {
		return fmt.Errorf("update version: %w", err)
	}
	if !ok {
		return conflictf("version %s changed concurrently", v.Label)
	}
	return nil
}

type AssetAddOptions struct {
	VersionID      string
	Title          string
	URL            string
	ContentType    string
	SizeBytes      int64
	Description    string
	IncludeInEmail bool
	ActorID        string
}

func (e Engine) AddAsset(ctx context.Context, opts AssetAddOptions) (domain.Asset, error) {
	if opts.Title == "" {
		return domain.Asset{}, validationf("asset title is required")
	}
	if opts.URL == "" {
		return domain.Asset{}, validationf("asset url is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	v, err := e.unlockedVersion(ctx, tx, opts.VersionID)
	if err != nil {
		return domain.Asset{}, err
	}
	a := domain.Asset{
		ID:             uuid.NewString(),
		VersionID:      opts.VersionID,
		Title:          opts.Title,
		URL:            opts.URL,
		ContentType:    opts.ContentType,
		SizeBytes:      opts.SizeBytes,
		Description:    opts.Description,
		IncludeInEmail: opts.IncludeInEmail,
		CreatedBy:      opts.ActorID,
		CreatedAt:      e.timestamp(),
	}
	if err := e.Repo.InsertAssetTx(ctx, tx, a); err != nil {
		return domain.Asset{}, fmt.Errorf("insert asset: %w", err)
	}
	if err := e.bumpVersionRev(ctx, tx, v); err != nil {
		return domain.Asset{}, err
	}
	if err := e.log(ctx, tx, activity.ActionUpload, "version", v.ID, opts.ActorID, activity.UploadDetail{AssetID: a.ID, Title: a.Title, SizeBytes: a.SizeBytes}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

type AssetPatch struct {
	Title          *string
	Description    *string
	IncludeInEmail *bool
}

func (e Engine) UpdateAsset(ctx context.Context, assetID string, patch AssetPatch, actorID string) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	v, err := e.unlockedVersion(ctx, tx, a.VersionID)
	if err != nil {
		return domain.Asset{}, err
	}
	var changed []string
	if patch.Title != nil {
		if *patch.Title == "" {
			return domain.Asset{}, validationf("asset title is required")
		}
		a.Title = *patch.Title
		changed = append(changed, "title")
	}
	if patch.Description != nil {
		a.Description = *patch.Description
		changed = append(changed, "description")
	}
	if patch.IncludeInEmail != nil {
		a.IncludeInEmail = *patch.IncludeInEmail
		changed = append(changed, "include_in_email")
	}
	if err := e.Repo.UpdateAssetTx(ctx, tx, a); err != nil {
		return domain.Asset{}, fmt.Errorf("update asset: %w", err)
	}
	if err := e.bumpVersionRev(ctx, tx, v); err != nil {
		return domain.Asset{}, err
	}
	if err := e.log(ctx, tx, activity.ActionUpdate, "version", v.ID, actorID, activity.AssetUpdateDetail{AssetID: a.ID, Fields: changed}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

func (e Engine) DeleteAsset(ctx context.Context, assetID, actorID string) error {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	v, err := e.unlockedVersion(ctx, tx, a.VersionID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteAssetTx(ctx, tx, assetID); err != nil {
		return err
	}
	if err := e.bumpVersionRev(ctx, tx, v); err != nil {
		return err
	}
	if err := e.log(ctx, tx, activity.ActionDelete, "version", v.ID, actorID, activity.AssetDeleteDetail{AssetID: a.ID, Title: a.Title}); err != nil {
		return err
	}
	return tx.Commit()
}
