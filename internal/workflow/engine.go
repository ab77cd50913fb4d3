package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/activity"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/config"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/repo"
)

// Engine executes every state-changing operation. Each method runs in one
// transaction and appends its activity entry before committing.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Activity activity.Writer
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Activity: activity.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log(ctx context.Context, tx *sql.Tx, action, entityKind, entityID, actorID string, detail any) error {
	w := e.Activity
	if w.Now == nil {
		w.Now = e.Now
	}
	return w.Append(ctx, tx, action, entityKind, entityID, actorID, detail)
}

// --- clients ---

func (e Engine) CreateClient(ctx context.Context, name, email, phone string) (domain.Client, error) {
	if name == "" {
		return domain.Client{}, validationf("client name is required")
	}
	c := domain.Client{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Phone:     phone,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertClient(ctx, c); err != nil {
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

// --- projects ---

type ProjectCreateOptions struct {
	ClientID    string
	Name        string
	Description string
	ActorID     string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, validationf("project name is required")
	}
	if opts.ClientID == "" {
		return domain.Project{}, validationf("client is required")
	}
	if _, err := e.Repo.GetClient(ctx, opts.ClientID); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:          uuid.NewString(),
		ClientID:    opts.ClientID,
		Name:        opts.Name,
		Status:      "active",
		Description: opts.Description,
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionCreate, "project", p.ID, opts.ActorID, activity.CreateDetail{Name: p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, id, status string, description *string, actorID string) error {
	switch status {
	case "", "active", "on_hold", "archived":
	default:
		return validationf("unknown project status %q", status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProjectTx(ctx, tx, id, status, description); err != nil {
		return err
	}
	if err := e.log(ctx, tx, activity.ActionUpdate, "project", id, actorID, activity.ProjectUpdateDetail{Status: status, DescriptionChanged: description != nil}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- rooms ---

// CreateRoom inserts the room and seeds one stage per catalog entry, in
// catalog order, all not_started.
func (e Engine) CreateRoom(ctx context.Context, projectID, name, actorID string) (domain.Room, error) {
	if name == "" {
		return domain.Room{}, validationf("room name is required")
	}
	if e.Config == nil {
		return domain.Room{}, fmt.Errorf("config not loaded")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Room{}, err
	}
	now := e.timestamp()
	room := domain.Room{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Room{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertRoomTx(ctx, tx, room); err != nil {
		return domain.Room{}, fmt.Errorf("insert room: %w", err)
	}
	for _, st := range e.Config.Stages.Catalog {
		s := domain.Stage{
			ID:        uuid.NewString(),
			RoomID:    room.ID,
			Type:      st.Type,
			Status:    domain.StageNotStarted,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.Repo.InsertStageTx(ctx, tx, s); err != nil {
			return domain.Room{}, fmt.Errorf("seed stage %s: %w", st.Type, err)
		}
	}
	if err := e.log(ctx, tx, activity.ActionCreate, "room", room.ID, actorID, activity.CreateDetail{Name: room.Name}); err != nil {
		return domain.Room{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// --- stages ---

func ensureStageTransition(old, new string) error {
	switch old {
	case domain.StageNotStarted:
		if new == domain.StageInProgress || new == domain.StageNotApplicable {
			return nil
		}
	case domain.StageInProgress:
		if new == domain.StageCompleted || new == domain.StageNotApplicable {
			return nil
		}
	case domain.StageCompleted:
		if new == domain.StageInProgress {
			return nil
		}
	case domain.StageNotApplicable:
		if new == domain.StageNotStarted {
			return nil
		}
	}
	return validationf("invalid stage transition %s -> %s", old, new)
}

func (e Engine) transitionStage(ctx context.Context, stageID, newStatus, actorID string) (domain.Stage, error) {
	s, err := e.Repo.GetStage(ctx, stageID)
	if err != nil {
		return domain.Stage{}, err
	}
	if err := ensureStageTransition(s.Status, newStatus); err != nil {
		return domain.Stage{}, err
	}
	from := s.Status
	s.Status = newStatus
	s.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stage{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateStageTx(ctx, tx, s); err != nil {
		return domain.Stage{}, fmt.Errorf("update stage: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionStageStatus, "stage", s.ID, actorID, activity.StageStatusDetail{From: from, To: newStatus}); err != nil {
		return domain.Stage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Stage{}, err
	}
	return s, nil
}

func (e Engine) StartStage(ctx context.Context, stageID, actorID string) (domain.Stage, error) {
	return e.transitionStage(ctx, stageID, domain.StageInProgress, actorID)
}

func (e Engine) CompleteStage(ctx context.Context, stageID, actorID string) (domain.Stage, error) {
	return e.transitionStage(ctx, stageID, domain.StageCompleted, actorID)
}

func (e Engine) ReopenStage(ctx context.Context, stageID, actorID string) (domain.Stage, error) {
	return e.transitionStage(ctx, stageID, domain.StageInProgress, actorID)
}

func (e Engine) SetStageNotApplicable(ctx context.Context, stageID, actorID string) (domain.Stage, error) {
	return e.transitionStage(ctx, stageID, domain.StageNotApplicable, actorID)
}

// AssignStage sets or clears the assignee. Empty assigneeID unassigns.
func (e Engine) AssignStage(ctx context.Context, stageID, assigneeID, actorID string) (domain.Stage, error) {
	s, err := e.Repo.GetStage(ctx, stageID)
	if err != nil {
		return domain.Stage{}, err
	}
	if assigneeID != "" {
		if _, err := e.Repo.GetTeamMember(ctx, assigneeID); err != nil {
			return domain.Stage{}, err
		}
		s.AssigneeID = &assigneeID
	} else {
		s.AssigneeID = nil
	}
	s.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stage{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateStageTx(ctx, tx, s); err != nil {
		return domain.Stage{}, fmt.Errorf("update stage: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionAssign, "stage", s.ID, actorID, activity.AssignDetail{AssigneeID: assigneeID}); err != nil {
		return domain.Stage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Stage{}, err
	}
	return s, nil
}

// SetStageDue sets or clears the due date (YYYY-MM-DD).
func (e Engine) SetStageDue(ctx context.Context, stageID, due, actorID string) (domain.Stage, error) {
	s, err := e.Repo.GetStage(ctx, stageID)
	if err != nil {
		return domain.Stage{}, err
	}
	if due != "" {
		if _, err := time.Parse("2006-01-02", due); err != nil {
			return domain.Stage{}, validationf("due date %q is not YYYY-MM-DD", due)
		}
		s.DueDate = &due
	} else {
		s.DueDate = nil
	}
	s.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stage{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateStageTx(ctx, tx, s); err != nil {
		return domain.Stage{}, fmt.Errorf("update stage: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionUpdate, "stage", s.ID, actorID, activity.DueDetail{DueDate: due}); err != nil {
		return domain.Stage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Stage{}, err
	}
	return s, nil
}

// --- team ---

func (e Engine) CreateTeamMember(ctx context.Context, name, email, role string) (domain.TeamMember, error) {
	if name == "" {
		return domain.TeamMember{}, validationf("member name is required")
	}
	m := domain.TeamMember{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertTeamMember(ctx, m); err != nil {
		return domain.TeamMember{}, fmt.Errorf("insert team member: %w", err)
	}
	return m, nil
}

// MintAPIKey creates a key for a member and returns the raw secret once;
// only the hash is stored.
func (e Engine) MintAPIKey(ctx context.Context, memberID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetTeamMember(ctx, memberID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := uuid.NewString()
	k := domain.APIKey{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	return k, raw, nil
}

// --- timesheets ---

type TimeLogOptions struct {
	StageID   string
	MemberID  string
	Minutes   int
	EntryDate string
	Note      string
	ActorID   string
}

func (e Engine) LogTime(ctx context.Context, opts TimeLogOptions) (domain.TimeEntry, error) {
	if opts.Minutes <= 0 {
		return domain.TimeEntry{}, validationf("minutes must be positive")
	}
	if opts.EntryDate == "" {
		opts.EntryDate = e.now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", opts.EntryDate); err != nil {
		return domain.TimeEntry{}, validationf("entry date %q is not YYYY-MM-DD", opts.EntryDate)
	}
	if _, err := e.Repo.GetStage(ctx, opts.StageID); err != nil {
		return domain.TimeEntry{}, err
	}
	if _, err := e.Repo.GetTeamMember(ctx, opts.MemberID); err != nil {
		return domain.TimeEntry{}, err
	}
	entry := domain.TimeEntry{
		ID:        uuid.NewString(),
		StageID:   opts.StageID,
		MemberID:  opts.MemberID,
		Minutes:   opts.Minutes,
		EntryDate: opts.EntryDate,
		Note:      opts.Note,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTimeEntryTx(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("insert time entry: %w", err)
	}
	if err := e.log(ctx, tx, activity.ActionTimeLogged, "stage", opts.StageID, opts.ActorID, activity.TimeLoggedDetail{MemberID: opts.MemberID, Minutes: opts.Minutes}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}
