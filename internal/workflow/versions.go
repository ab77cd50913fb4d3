package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/activity"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

// ensureVersionTransition is the single transition function for both
// workflows. Delete is not a transition and is allowed from any state.
func ensureVersionTransition(old, new domain.VersionStatus) error {
	switch old {
	case domain.VersionInProgress:
		if new == domain.VersionCompleted {
			return nil
		}
	case domain.VersionCompleted:
		if new == domain.VersionInProgress || new == domain.VersionPushedToClient {
			return nil
		}
	case domain.VersionPushedToClient:
		if new == domain.VersionClientApproved || new == domain.VersionRevisionRequested {
			return nil
		}
	case domain.VersionRevisionRequested:
		if new == domain.VersionInProgress {
			return nil
		}
	}
	return validationf("invalid version transition %s -> %s", old, new)
}

type VersionCreateOptions struct {
	OwnerKind  string // stage | project
	OwnerID    string
	Name       string
	SourceFile string
	ActorID    string
}

// CreateVersion allocates the next label from the owner's counter. Stage
// owners get rendering versions; project owners get floorplan versions, and
// the new floorplan becomes current.
func (e Engine) CreateVersion(ctx context.Context, opts VersionCreateOptions) (domain.Version, error) {
	var workflow string
	switch opts.OwnerKind {
	case "stage":
		s, err := e.Repo.GetStage(ctx, opts.OwnerID)
		if err != nil {
			return domain.Version{}, err
		}
		if e.Config == nil {
			return domain.Version{}, fmt.Errorf("config not loaded")
		}
		workflow = e.Config.StageWorkflow(s.Type)
		if workflow != domain.WorkflowRendering {
			return domain.Version{}, validationf("stage type %s carries no versioned deliverables", s.Type)
		}
	case "project":
		if _, err := e.Repo.GetProject(ctx, opts.OwnerID); err != nil {
			return domain.Version{}, err
		}
		workflow = domain.WorkflowFloorplan
	default:
		return domain.Version{}, validationf("unknown owner kind %q", opts.OwnerKind)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Version{}, err
	}
	defer tx.Rollback()

	seq, err := e.Repo.NextVersionSeq(ctx, tx, opts.OwnerKind, opts.OwnerID)
	if err != nil {
		return domain.Version{}, fmt.Errorf("allocate version seq: %w", err)
	}
	v := domain.Version{
		ID:         uuid.NewString(),
		OwnerKind:  opts.OwnerKind,
		OwnerID:    opts.OwnerID,
		Workflow:   workflow,
		Seq:        seq,
		Label:      fmt.Sprintf("v%d", seq),
		Name:       opts.Name,
		Status:     domain.VersionInProgress,
		Rev:        1,
		SourceFile: opts.SourceFile,
		CreatedBy:  opts.ActorID,
		CreatedAt:  e.timestamp(),
	}
	if workflow == domain.WorkflowFloorplan {
		if err := e.Repo.ClearCurrentVersionTx(ctx, tx, opts.OwnerKind, opts.OwnerID); err != nil {
			return domain.Version{}, err
		}
		v.IsCurrent = true
	}
	if err := e.Repo.InsertVersionTx(ctx, tx, v); err != nil {
		return domain.Version{}, fmt.Errorf("insert version: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionCreate, "version", v.ID, opts.ActorID, activity.CreateDetail{Label: v.Label, Workflow: workflow, Name: v.Name}); err != nil {
		return domain.Version{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Version{}, err
	}
	return v, nil
}

// checkRev compares a caller-supplied expected rev (0 skips the check).
func checkRev(v domain.Version, expected int64) error {
	if expected != 0 && expected != v.Rev {
		return conflictf("version %s is at rev %d, expected %d", v.Label, v.Rev, expected)
	}
	return nil
}

func (e Engine) CompleteVersion(ctx context.Context, versionID, actorID string, expectedRev int64) (domain.Version, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Version{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVersionTx(ctx, tx, versionID)
	if err != nil {
		return domain.Version{}, err
	}
	if err := checkRev(v, expectedRev); err != nil {
		return domain.Version{}, err
	}
	if err := ensureVersionTransition(v.Status, domain.VersionCompleted); err != nil {
		return domain.Version{}, err
	}
	prev := v.Rev
	now := e.timestamp()
	v.Status = domain.VersionCompleted
	v.CompletedBy = &actorID
	v.CompletedAt = &now
	v.Rev++

	ok, err := e.Repo.UpdateVersionTx(ctx, tx, v, prev)
	if err != nil {
		return domain.Version{}, fmt.Errorf("update version: %w", err)
	}
	if !ok {
		return domain.Version{}, conflictf("version %s changed concurrently", v.Label)
	}
	if err := e.log(ctx, tx, activity.ActionComplete, "version", v.ID, actorID, activity.CompleteDetail{Label: v.Label}); err != nil {
		return domain.Version{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Version{}, err
	}
	return v, nil
}

// ReopenVersion returns a version to in_progress. Allowed from completed
// (not yet pushed) and from revision_requested; a pushed version stays
// locked until the client asks for revisions.
func (e Engine) ReopenVersion(ctx context.Context, versionID, actorID string, expectedRev int64) (domain.Version, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Version{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVersionTx(ctx, tx, versionID)
	if err != nil {
		return domain.Version{}, err
	}
	if err := checkRev(v, expectedRev); err != nil {
		return domain.Version{}, err
	}
	if err := ensureVersionTransition(v.Status, domain.VersionInProgress); err != nil {
		return domain.Version{}, err
	}
	prev := v.Rev
	from := string(v.Status)
	v.Status = domain.VersionInProgress
	v.CompletedBy = nil
	v.CompletedAt = nil
	v.Rev++

	ok, err := e.Repo.UpdateVersionTx(ctx, tx, v, prev)
	if err != nil {
		return domain.Version{}, fmt.Errorf("update version: %w", err)
	}
	if !ok {
		return domain.Version{}, conflictf("version %s changed concurrently", v.Label)
	}
	if err := e.log(ctx, tx, activity.ActionReopen, "version", v.ID, actorID, activity.ReopenDetail{Label: v.Label, From: from}); err != nil {
		return domain.Version{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Version{}, err
	}
	return v, nil
}

// PushVersionToClient locks the version and opens an approval round over
// the selected assets. The selection is snapshotted; later asset changes
// (on other versions) never alter what the client was shown.
func (e Engine) PushVersionToClient(ctx context.Context, versionID string, assetIDs []string, actorID string, expectedRev int64) (domain.Version, domain.ClientApproval, error) {
	if len(assetIDs) == 0 {
		return domain.Version{}, domain.ClientApproval{}, validationf("at least one asset must be selected")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVersionTx(ctx, tx, versionID)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	if err := checkRev(v, expectedRev); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	if err := ensureVersionTransition(v.Status, domain.VersionPushedToClient); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	assets, err := e.Repo.ListAssets(ctx, versionID)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	owned := map[string]bool{}
	for _, a := range assets {
		owned[a.ID] = true
	}
	for _, id := range assetIDs {
		if !owned[id] {
			return domain.Version{}, domain.ClientApproval{}, validationf("asset %s does not belong to version %s", id, v.Label)
		}
	}

	now := e.timestamp()
	prev := v.Rev
	v.Status = domain.VersionPushedToClient
	v.PushedAt = &now
	v.Rev++

	ok, err := e.Repo.UpdateVersionTx(ctx, tx, v, prev)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, fmt.Errorf("update version: %w", err)
	}
	if !ok {
		return domain.Version{}, domain.ClientApproval{}, conflictf("version %s changed concurrently", v.Label)
	}
	// A version reopened after revision_requested keeps its old approval
	// row; a re-push replaces it with a fresh round.
	if err := e.Repo.DeleteApprovalByVersionTx(ctx, tx, v.ID); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	ap := domain.ClientApproval{
		ID:        uuid.NewString(),
		VersionID: v.ID,
		Token:     uuid.NewString(),
		Status:    domain.ApprovalPending,
		AssetIDs:  assetIDs,
		CreatedAt: now,
	}
	if err := e.Repo.InsertApprovalTx(ctx, tx, ap); err != nil {
		return domain.Version{}, domain.ClientApproval{}, fmt.Errorf("insert approval: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionPushToClient, "version", v.ID, actorID, activity.PushDetail{Label: v.Label, ApprovalID: ap.ID, AssetIDs: assetIDs}); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	return v, ap, nil
}

// RecordClientDecision applies the client's verdict on a pending approval,
// addressed by its token. Approval is terminal; a revision request needs a
// non-empty message and unlocks reopening.
func (e Engine) RecordClientDecision(ctx context.Context, token, decision, message string) (domain.Version, domain.ClientApproval, error) {
	var target domain.VersionStatus
	switch decision {
	case domain.ApprovalApproved:
		target = domain.VersionClientApproved
	case domain.ApprovalRevisionRequested:
		if message == "" {
			return domain.Version{}, domain.ClientApproval{}, validationf("a revision request needs a message")
		}
		target = domain.VersionRevisionRequested
	default:
		return domain.Version{}, domain.ClientApproval{}, validationf("unknown decision %q", decision)
	}

	ap, err := e.Repo.GetApprovalByToken(ctx, token)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	if ap.Status != domain.ApprovalPending {
		return domain.Version{}, domain.ClientApproval{}, conflictf("approval already decided: %s", ap.Status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVersionTx(ctx, tx, ap.VersionID)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	if err := ensureVersionTransition(v.Status, target); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	now := e.timestamp()
	prev := v.Rev
	v.Status = target
	v.Rev++

	ok, err := e.Repo.UpdateVersionTx(ctx, tx, v, prev)
	if err != nil {
		return domain.Version{}, domain.ClientApproval{}, fmt.Errorf("update version: %w", err)
	}
	if !ok {
		return domain.Version{}, domain.ClientApproval{}, conflictf("version %s changed concurrently", v.Label)
	}
	ap.Status = decision
	ap.ClientMessage = message
	ap.DecidedAt = &now
	if err := e.Repo.UpdateApprovalTx(ctx, tx, ap); err != nil {
		return domain.Version{}, domain.ClientApproval{}, fmt.Errorf("update approval: %w", err)
	}
	// Client decisions carry no actor; the entry is attributed to nobody.
	if err := e.log(ctx, tx, activity.ActionClientDecision, "version", v.ID, "", activity.DecisionDetail{ApprovalID: ap.ID, Decision: decision, Message: message}); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Version{}, domain.ClientApproval{}, err
	}
	return v, ap, nil
}

// DeleteVersion removes a version in any state. Assets, notes, and the
// approval round cascade; the label is never reissued. The activity entry
// lands on the owning entity since the version row is gone.
func (e Engine) DeleteVersion(ctx context.Context, versionID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVersionTx(ctx, tx, versionID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteVersionTx(ctx, tx, versionID); err != nil {
		return err
	}
	if err := e.log(ctx, tx, activity.ActionDelete, v.OwnerKind, v.OwnerID, actorID, activity.DeleteDetail{Label: v.Label, Status: string(v.Status)}); err != nil {
		return err
	}
	return tx.Commit()
}
