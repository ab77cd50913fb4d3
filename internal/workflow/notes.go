package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/activity"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/mention"
)

type NoteAddOptions struct {
	ScopeKind string // version | stage | chat
	ScopeID   string
	AuthorID  string
	Body      string
}

// AddNote attaches a note to a version, a stage, or a project chat and
// resolves @mentions against the team roster.
func (e Engine) AddNote(ctx context.Context, opts NoteAddOptions) (domain.Note, error) {
	if opts.Body == "" {
		return domain.Note{}, validationf("note body is required")
	}
	switch opts.ScopeKind {
	case "version":
		if _, err := e.Repo.GetVersion(ctx, opts.ScopeID); err != nil {
			return domain.Note{}, err
		}
	case "stage":
		if _, err := e.Repo.GetStage(ctx, opts.ScopeID); err != nil {
			return domain.Note{}, err
		}
	case "chat":
		if _, err := e.Repo.GetProject(ctx, opts.ScopeID); err != nil {
			return domain.Note{}, err
		}
	default:
		return domain.Note{}, validationf("unknown note scope %q", opts.ScopeKind)
	}
	roster, err := e.Repo.ListTeamMembers(ctx)
	if err != nil {
		return domain.Note{}, err
	}
	now := e.timestamp()
	n := domain.Note{
		ID:        uuid.NewString(),
		ScopeKind: opts.ScopeKind,
		ScopeID:   opts.ScopeID,
		AuthorID:  opts.AuthorID,
		Body:      opts.Body,
		Mentions:  mention.Resolve(opts.Body, roster),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertNoteTx(ctx, tx, n); err != nil {
		return domain.Note{}, fmt.Errorf("insert note: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionComment, opts.ScopeKind, opts.ScopeID, opts.AuthorID, activity.CommentDetail{NoteID: n.ID, Mentions: mentionIDs(n.Mentions)}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

// EditNote replaces the body, marks the note edited, and re-resolves
// mentions from scratch.
func (e Engine) EditNote(ctx context.Context, noteID, body, actorID string) (domain.Note, error) {
	if body == "" {
		return domain.Note{}, validationf("note body is required")
	}
	n, err := e.Repo.GetNote(ctx, noteID)
	if err != nil {
		return domain.Note{}, err
	}
	roster, err := e.Repo.ListTeamMembers(ctx)
	if err != nil {
		return domain.Note{}, err
	}
	n.Body = body
	n.Edited = true
	n.Mentions = mention.Resolve(body, roster)
	n.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateNoteTx(ctx, tx, n); err != nil {
		return domain.Note{}, fmt.Errorf("update note: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionUpdate, n.ScopeKind, n.ScopeID, actorID, activity.CommentDetail{NoteID: n.ID, Mentions: mentionIDs(n.Mentions)}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

func (e Engine) DeleteNote(ctx context.Context, noteID, actorID string) error {
	n, err := e.Repo.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteNoteTx(ctx, tx, noteID); err != nil {
		return err
	}
	if err := e.log(ctx, tx, activity.ActionDelete, n.ScopeKind, n.ScopeID, actorID, activity.CommentDetail{NoteID: n.ID}); err != nil {
		return err
	}
	return tx.Commit()
}

func mentionIDs(mentions []domain.Mention) []string {
	if len(mentions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(mentions))
	for _, m := range mentions {
		ids = append(ids, m.MemberID)
	}
	return ids
}
