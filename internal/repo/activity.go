package repo

import (
	"context"
	"database/sql"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

const activityColumns = `id,ts,action,entity_kind,entity_id,actor_id,detail_json`

func scanActivity(scan func(dest ...any) error) (domain.ActivityEntry, error) {
	var e domain.ActivityEntry
	var actor sql.NullString
	err := scan(&e.ID, &e.TS, &e.Action, &e.EntityKind, &e.EntityID, &actor, &e.Detail)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if actor.Valid {
		e.ActorID = &actor.String
	}
	return e, nil
}

// ListActivity returns the entity's feed newest first.
func (r Repo) ListActivity(ctx context.Context, entityKind, entityID string, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+activityColumns+` FROM activity_log WHERE entity_kind=? AND entity_id=? ORDER BY id DESC LIMIT ?`,
		entityKind, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivity(rows)
}

// ActivityAfter returns entries with id greater than cursor, oldest first.
// The dispatcher tails the log with this.
func (r Repo) ActivityAfter(ctx context.Context, cursor int64, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+activityColumns+` FROM activity_log WHERE id>? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivity(rows)
}

func collectActivity(rows *sql.Rows) ([]domain.ActivityEntry, error) {
	var res []domain.ActivityEntry
	for rows.Next() {
		e, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestActivityID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM activity_log`).Scan(&id)
	return id, err
}
