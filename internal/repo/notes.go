package repo

import (
	"context"
	"database/sql"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

func (r Repo) InsertNoteTx(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,scope_kind,scope_id,author_id,body,edited,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.ScopeKind, n.ScopeID, n.AuthorID, n.Body, n.Edited, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return err
	}
	return r.insertMentionsTx(ctx, tx, n.ID, n.Mentions)
}

func (r Repo) insertMentionsTx(ctx context.Context, tx *sql.Tx, noteID string, mentions []domain.Mention) error {
	for _, m := range mentions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO mentions(note_id,member_id,display_name,position) VALUES (?,?,?,?)`,
			noteID, m.MemberID, m.DisplayName, m.Position); err != nil {
			return err
		}
	}
	return nil
}

// UpdateNoteTx replaces the body and re-resolved mentions of an existing note.
func (r Repo) UpdateNoteTx(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	res, err := tx.ExecContext(ctx, `UPDATE notes SET body=?, edited=?, updated_at=? WHERE id=?`,
		n.Body, n.Edited, n.UpdatedAt, n.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mentions WHERE note_id=?`, n.ID); err != nil {
		return err
	}
	return r.insertMentionsTx(ctx, tx, n.ID, n.Mentions)
}

func (r Repo) GetNote(ctx context.Context, id string) (domain.Note, error) {
	var n domain.Note
	err := r.DB.QueryRowContext(ctx, `SELECT id,scope_kind,scope_id,author_id,body,edited,created_at,updated_at FROM notes WHERE id=?`, id).
		Scan(&n.ID, &n.ScopeKind, &n.ScopeID, &n.AuthorID, &n.Body, &n.Edited, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Mentions, err = r.listMentions(ctx, n.ID)
	return n, err
}

func (r Repo) ListNotes(ctx context.Context, scopeKind, scopeID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,scope_kind,scope_id,author_id,body,edited,created_at,updated_at FROM notes WHERE scope_kind=? AND scope_id=? ORDER BY created_at, id`, scopeKind, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.ScopeKind, &n.ScopeID, &n.AuthorID, &n.Body, &n.Edited, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Mentions, err = r.listMentions(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) listMentions(ctx context.Context, noteID string) ([]domain.Mention, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT member_id,display_name,position FROM mentions WHERE note_id=? ORDER BY position`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mention
	for rows.Next() {
		var m domain.Mention
		if err := rows.Scan(&m.MemberID, &m.DisplayName, &m.Position); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) DeleteNoteTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- time entries ---

func (r Repo) InsertTimeEntryTx(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_entries(id,stage_id,member_id,minutes,entry_date,note,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.StageID, e.MemberID, e.Minutes, e.EntryDate, nullable(e.Note), e.CreatedAt)
	return err
}

func (r Repo) ListTimeEntries(ctx context.Context, stageID string) ([]domain.TimeEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,stage_id,member_id,minutes,entry_date,COALESCE(note,''),created_at FROM time_entries WHERE stage_id=? ORDER BY entry_date, created_at`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		var e domain.TimeEntry
		if err := rows.Scan(&e.ID, &e.StageID, &e.MemberID, &e.Minutes, &e.EntryDate, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) SumStageMinutes(ctx context.Context, stageID string) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(minutes),0) FROM time_entries WHERE stage_id=?`, stageID).Scan(&total)
	return total, err
}
