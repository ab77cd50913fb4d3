package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/config"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

// --- clients ---

func (r Repo) InsertClient(ctx context.Context, c domain.Client) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO clients(id,name,email,phone,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Email), nullable(c.Phone), c.CreatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(email,''),COALESCE(phone,''),created_at FROM clients WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(email,''),COALESCE(phone,''),created_at FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- projects ---

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,client_id,name,status,description,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.ClientID, p.Name, p.Status, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.QueryRowContext(ctx, `SELECT id,client_id,name,status,COALESCE(description,''),created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.ClientID, &p.Name, &p.Status, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context, clientID string) ([]domain.Project, error) {
	query := `SELECT id,client_id,name,status,COALESCE(description,''),created_at FROM projects`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id=?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name, &p.Status, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, id, status string, description *string) error {
	var (
		fields []string
		args   []any
	)
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- rooms ---

func (r Repo) InsertRoomTx(ctx context.Context, tx *sql.Tx, room domain.Room) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO rooms(id,project_id,name,created_at) VALUES (?,?,?,?)`,
		room.ID, room.ProjectID, room.Name, room.CreatedAt)
	return err
}

func (r Repo) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	var room domain.Room
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,created_at FROM rooms WHERE id=?`, id).
		Scan(&room.ID, &room.ProjectID, &room.Name, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return room, ErrNotFound
	}
	return room, err
}

func (r Repo) ListRooms(ctx context.Context, projectID string) ([]domain.Room, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,created_at FROM rooms WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Room
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.ProjectID, &room.Name, &room.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, room)
	}
	return res, rows.Err()
}

// --- team ---

func (r Repo) InsertTeamMember(ctx context.Context, m domain.TeamMember) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO team_members(id,name,email,role,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Name, nullable(m.Email), nullable(m.Role), m.CreatedAt)
	return err
}

func (r Repo) GetTeamMember(ctx context.Context, id string) (domain.TeamMember, error) {
	var m domain.TeamMember
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(email,''),COALESCE(role,''),created_at FROM team_members WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

// ListTeamMembers returns the roster in insertion order; mention resolution
// depends on this order being stable.
func (r Repo) ListTeamMembers(ctx context.Context) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(email,''),COALESCE(role,''),created_at FROM team_members ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// --- studio config ---

func (r Repo) UpsertStudioConfig(ctx context.Context, studioID string, cfg *config.Config) error {
	return upsertStudioConfig(ctx, r.DB, nil, studioID, cfg)
}

func (r Repo) UpsertStudioConfigTx(ctx context.Context, tx *sql.Tx, studioID string, cfg *config.Config) error {
	return upsertStudioConfig(ctx, nil, tx, studioID, cfg)
}

func upsertStudioConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, studioID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Studio.ID = studioID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO studio_configs(studio_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(studio_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, studioID, string(payload), now, now)
	return err
}

// SingleStudioID returns the studio id when exactly one studio config
// exists, so single-studio workspaces need no --studio flag.
func (r Repo) SingleStudioID(ctx context.Context) (string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT studio_id FROM studio_configs LIMIT 2`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", ErrNotFound
	}
	return ids[0], nil
}

func (r Repo) GetStudioConfig(ctx context.Context, studioID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM studio_configs WHERE studio_id=?`, studioID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Studio.ID == "" {
		cfg.Studio.ID = studioID
	}
	return &cfg, cfg.Validate()
}
