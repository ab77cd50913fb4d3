package repo

import (
	"context"
	"database/sql"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

const versionColumns = `id,owner_kind,owner_id,workflow,seq,label,name,status,rev,source_file,is_current,created_by,created_at,completed_by,completed_at,pushed_at`

func scanVersion(scan func(dest ...any) error) (domain.Version, error) {
	var v domain.Version
	var name, sourceFile, completedBy, completedAt, pushedAt sql.NullString
	var status string
	err := scan(&v.ID, &v.OwnerKind, &v.OwnerID, &v.Workflow, &v.Seq, &v.Label, &name, &status,
		&v.Rev, &sourceFile, &v.IsCurrent, &v.CreatedBy, &v.CreatedAt, &completedBy, &completedAt, &pushedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	v.Status = domain.VersionStatus(status)
	if name.Valid {
		v.Name = name.String
	}
	if sourceFile.Valid {
		v.SourceFile = sourceFile.String
	}
	if completedBy.Valid {
		v.CompletedBy = &completedBy.String
	}
	if completedAt.Valid {
		v.CompletedAt = &completedAt.String
	}
	if pushedAt.Valid {
		v.PushedAt = &pushedAt.String
	}
	return v, nil
}

// NextVersionSeq allocates the next sequence for an owner. The counter is
// monotonic: deleting a version never frees its label.
func (r Repo) NextVersionSeq(ctx context.Context, tx *sql.Tx, ownerKind, ownerID string) (int, error) {
	if _, err := tx.ExecContext(ctx, `INSERT INTO version_counters(owner_kind,owner_id,next_seq) VALUES (?,?,1)
ON CONFLICT(owner_kind,owner_id) DO UPDATE SET next_seq=next_seq+1`, ownerKind, ownerID); err != nil {
		return 0, err
	}
	var seq int
	err := tx.QueryRowContext(ctx, `SELECT next_seq FROM version_counters WHERE owner_kind=? AND owner_id=?`, ownerKind, ownerID).Scan(&seq)
	return seq, err
}

func (r Repo) InsertVersionTx(ctx context.Context, tx *sql.Tx, v domain.Version) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO versions(id,owner_kind,owner_id,workflow,seq,label,name,status,rev,source_file,is_current,created_by,created_at,completed_by,completed_at,pushed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.OwnerKind, v.OwnerID, v.Workflow, v.Seq, v.Label, nullable(v.Name), string(v.Status), v.Rev,
		nullable(v.SourceFile), v.IsCurrent, v.CreatedBy, v.CreatedAt,
		nullableStringPtr(v.CompletedBy), nullableStringPtr(v.CompletedAt), nullableStringPtr(v.PushedAt))
	return err
}

func (r Repo) GetVersion(ctx context.Context, id string) (domain.Version, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id=?`, id)
	return scanVersion(row.Scan)
}

func (r Repo) GetVersionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Version, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id=?`, id)
	return scanVersion(row.Scan)
}

func (r Repo) ListVersions(ctx context.Context, ownerKind, ownerID string) ([]domain.Version, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE owner_kind=? AND owner_id=? ORDER BY seq`, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Version
	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// UpdateVersionTx writes a version guarded by its previous rev; it returns
// ErrNotFound when the row is gone and false when the rev moved underneath
// the caller.
func (r Repo) UpdateVersionTx(ctx context.Context, tx *sql.Tx, v domain.Version, prevRev int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE versions SET name=?, status=?, rev=?, source_file=?, is_current=?, completed_by=?, completed_at=?, pushed_at=? WHERE id=? AND rev=?`,
		nullable(v.Name), string(v.Status), v.Rev, nullable(v.SourceFile), v.IsCurrent,
		nullableStringPtr(v.CompletedBy), nullableStringPtr(v.CompletedAt), nullableStringPtr(v.PushedAt), v.ID, prevRev)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (r Repo) ClearCurrentVersionTx(ctx context.Context, tx *sql.Tx, ownerKind, ownerID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE versions SET is_current=0 WHERE owner_kind=? AND owner_id=? AND is_current=1`, ownerKind, ownerID)
	return err
}

// DeleteVersionTx removes the version and its scoped notes. Assets and the
// approval row cascade through FKs; notes are polymorphic and need the
// explicit delete (mentions cascade off the note rows).
func (r Repo) DeleteVersionTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE scope_kind='version' AND scope_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- assets ---

const assetColumns = `id,version_id,title,url,content_type,size_bytes,description,include_in_email,created_by,created_at`

func scanAsset(scan func(dest ...any) error) (domain.Asset, error) {
	var a domain.Asset
	var contentType, description sql.NullString
	var size sql.NullInt64
	err := scan(&a.ID, &a.VersionID, &a.Title, &a.URL, &contentType, &size, &description, &a.IncludeInEmail, &a.CreatedBy, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if contentType.Valid {
		a.ContentType = contentType.String
	}
	if size.Valid {
		a.SizeBytes = size.Int64
	}
	if description.Valid {
		a.Description = description.String
	}
	return a, nil
}

func (r Repo) InsertAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets(id,version_id,title,url,content_type,size_bytes,description,include_in_email,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.VersionID, a.Title, a.URL, nullable(a.ContentType), a.SizeBytes, nullable(a.Description), a.IncludeInEmail, a.CreatedBy, a.CreatedAt)
	return err
}

func (r Repo) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id)
	return scanAsset(row.Scan)
}

func (r Repo) ListAssets(ctx context.Context, versionID string) ([]domain.Asset, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE version_id=? ORDER BY created_at, id`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `UPDATE assets SET title=?, description=?, include_in_email=? WHERE id=?`,
		a.Title, nullable(a.Description), a.IncludeInEmail, a.ID)
	return err
}

func (r Repo) DeleteAssetTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- client approvals ---

func (r Repo) InsertApprovalTx(ctx context.Context, tx *sql.Tx, ap domain.ClientApproval) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO client_approvals(id,version_id,token,status,client_message,decided_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		ap.ID, ap.VersionID, ap.Token, ap.Status, nullable(ap.ClientMessage), nullableStringPtr(ap.DecidedAt), ap.CreatedAt)
	if err != nil {
		return err
	}
	for _, assetID := range ap.AssetIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO approval_assets(approval_id,asset_id) VALUES (?,?)`, ap.ID, assetID); err != nil {
			return err
		}
	}
	return nil
}

func scanApproval(scan func(dest ...any) error) (domain.ClientApproval, error) {
	var ap domain.ClientApproval
	var msg, decidedAt sql.NullString
	err := scan(&ap.ID, &ap.VersionID, &ap.Token, &ap.Status, &msg, &decidedAt, &ap.CreatedAt)
	if err == sql.ErrNoRows {
		return ap, ErrNotFound
	}
	if err != nil {
		return ap, err
	}
	if msg.Valid {
		ap.ClientMessage = msg.String
	}
	if decidedAt.Valid {
		ap.DecidedAt = &decidedAt.String
	}
	return ap, nil
}

const approvalColumns = `id,version_id,token,status,client_message,decided_at,created_at`

func (r Repo) getApproval(ctx context.Context, where string, arg any) (domain.ClientApproval, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM client_approvals WHERE `+where, arg)
	ap, err := scanApproval(row.Scan)
	if err != nil {
		return ap, err
	}
	ap.AssetIDs, err = r.listApprovalAssets(ctx, ap.ID)
	return ap, err
}

func (r Repo) GetApproval(ctx context.Context, id string) (domain.ClientApproval, error) {
	return r.getApproval(ctx, `id=?`, id)
}

func (r Repo) GetApprovalByToken(ctx context.Context, token string) (domain.ClientApproval, error) {
	return r.getApproval(ctx, `token=?`, token)
}

func (r Repo) GetApprovalByVersion(ctx context.Context, versionID string) (domain.ClientApproval, error) {
	return r.getApproval(ctx, `version_id=?`, versionID)
}

func (r Repo) listApprovalAssets(ctx context.Context, approvalID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT asset_id FROM approval_assets WHERE approval_id=? ORDER BY asset_id`, approvalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteApprovalByVersionTx drops a stale approval so a re-push can issue a
// fresh one; approval_assets rows cascade.
func (r Repo) DeleteApprovalByVersionTx(ctx context.Context, tx *sql.Tx, versionID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM client_approvals WHERE version_id=?`, versionID)
	return err
}

func (r Repo) UpdateApprovalTx(ctx context.Context, tx *sql.Tx, ap domain.ClientApproval) error {
	_, err := tx.ExecContext(ctx, `UPDATE client_approvals SET status=?, client_message=?, decided_at=? WHERE id=?`,
		ap.Status, nullable(ap.ClientMessage), nullableStringPtr(ap.DecidedAt), ap.ID)
	return err
}
