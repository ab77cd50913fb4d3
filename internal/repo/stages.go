package repo

import (
	"context"
	"database/sql"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

func scanStage(scan func(dest ...any) error) (domain.Stage, error) {
	var s domain.Stage
	var assignee, due sql.NullString
	err := scan(&s.ID, &s.RoomID, &s.Type, &s.Status, &assignee, &due, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if assignee.Valid {
		s.AssigneeID = &assignee.String
	}
	if due.Valid {
		s.DueDate = &due.String
	}
	return s, nil
}

const stageColumns = `id,room_id,type,status,assignee_id,due_date,created_at,updated_at`

func (r Repo) InsertStageTx(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stages(id,room_id,type,status,assignee_id,due_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.RoomID, s.Type, s.Status, nullableStringPtr(s.AssigneeID), nullableStringPtr(s.DueDate), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id=?`, id)
	return scanStage(row.Scan)
}

func (r Repo) GetStageByType(ctx context.Context, roomID, stageType string) (domain.Stage, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE room_id=? AND type=?`, roomID, stageType)
	return scanStage(row.Scan)
}

func (r Repo) ListStages(ctx context.Context, roomID string) ([]domain.Stage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE room_id=? ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stage
	for rows.Next() {
		s, err := scanStage(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStageTx(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	_, err := tx.ExecContext(ctx, `UPDATE stages SET status=?, assignee_id=?, due_date=?, updated_at=? WHERE id=?`,
		s.Status, nullableStringPtr(s.AssigneeID), nullableStringPtr(s.DueDate), s.UpdatedAt, s.ID)
	return err
}

func (r Repo) CountStagesByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT s.status, COUNT(*) FROM stages s
JOIN rooms rm ON rm.id=s.room_id
WHERE rm.project_id=? GROUP BY s.status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
