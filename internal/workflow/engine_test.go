package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/config"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/db"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/migrate"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/repo"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

type testEnv struct {
	Engine  workflow.Engine
	Ctx     context.Context
	Client  domain.Client
	Project domain.Project
	Room    domain.Room
	Stage   domain.Stage // three_d
	Member  domain.TeamMember
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("studio-1")
	eng := workflow.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	client, err := eng.CreateClient(ctx, "Meisner Residence", "", "")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	member, err := eng.CreateTeamMember(ctx, "Sammy Lee", "sammy@studio.test", "designer")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	project, err := eng.CreateProject(ctx, workflow.ProjectCreateOptions{ClientID: client.ID, Name: "Penthouse", ActorID: member.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	room, err := eng.CreateRoom(ctx, project.ID, "Living Room", member.ID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	stage, err := eng.Repo.GetStageByType(ctx, room.ID, "three_d")
	if err != nil {
		t.Fatalf("get three_d stage: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Client: client, Project: project, Room: room, Stage: stage, Member: member}
}

func TestRoomSeedsCatalogStages(t *testing.T) {
	env := newTestEnv(t)
	stages, err := env.Engine.Repo.ListStages(env.Ctx, env.Room.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(stages) != len(env.Engine.Config.Stages.Catalog) {
		t.Fatalf("expected %d stages, got %d", len(env.Engine.Config.Stages.Catalog), len(stages))
	}
	for _, s := range stages {
		if s.Status != domain.StageNotStarted {
			t.Fatalf("stage %s seeded with status %s", s.Type, s.Status)
		}
	}
}

func TestStageTransitions(t *testing.T) {
	env := newTestEnv(t)
	// completing an unstarted stage is out of graph
	if _, err := env.Engine.CompleteStage(env.Ctx, env.Stage.ID, env.Member.ID); err == nil {
		t.Fatalf("expected transition error")
	}
	s, err := env.Engine.StartStage(env.Ctx, env.Stage.ID, env.Member.ID)
	if err != nil || s.Status != domain.StageInProgress {
		t.Fatalf("start: %v status=%s", err, s.Status)
	}
	s, err = env.Engine.CompleteStage(env.Ctx, env.Stage.ID, env.Member.ID)
	if err != nil || s.Status != domain.StageCompleted {
		t.Fatalf("complete: %v status=%s", err, s.Status)
	}
	s, err = env.Engine.ReopenStage(env.Ctx, env.Stage.ID, env.Member.ID)
	if err != nil || s.Status != domain.StageInProgress {
		t.Fatalf("reopen: %v status=%s", err, s.Status)
	}
	var verr workflow.ValidationError
	_, err = env.Engine.SetStageNotApplicable(env.Ctx, env.Stage.ID, env.Member.ID)
	if err != nil {
		t.Fatalf("not_applicable from in_progress should pass: %v", err)
	}
	_, err = env.Engine.CompleteStage(env.Ctx, env.Stage.ID, env.Member.ID)
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAssignStage(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.AssignStage(env.Ctx, env.Stage.ID, env.Member.ID, env.Member.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if s.AssigneeID == nil || *s.AssigneeID != env.Member.ID {
		t.Fatalf("assignee not set")
	}
	if _, err := env.Engine.AssignStage(env.Ctx, env.Stage.ID, "nobody", env.Member.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown member, got %v", err)
	}
	s, err = env.Engine.AssignStage(env.Ctx, env.Stage.ID, "", env.Member.ID)
	if err != nil || s.AssigneeID != nil {
		t.Fatalf("unassign: %v", err)
	}
}

func TestStageDueDate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SetStageDue(env.Ctx, env.Stage.ID, "next tuesday", env.Member.ID); err == nil {
		t.Fatalf("expected date validation error")
	}
	s, err := env.Engine.SetStageDue(env.Ctx, env.Stage.ID, "2024-02-15", env.Member.ID)
	if err != nil || s.DueDate == nil || *s.DueDate != "2024-02-15" {
		t.Fatalf("set due: %v", err)
	}
}

func TestLogTime(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.LogTime(env.Ctx, workflow.TimeLogOptions{StageID: env.Stage.ID, MemberID: env.Member.ID, Minutes: 0}); err == nil {
		t.Fatalf("expected minutes validation error")
	}
	for _, minutes := range []int{30, 45} {
		if _, err := env.Engine.LogTime(env.Ctx, workflow.TimeLogOptions{
			StageID: env.Stage.ID, MemberID: env.Member.ID, Minutes: minutes, EntryDate: "2024-01-02", ActorID: env.Member.ID,
		}); err != nil {
			t.Fatalf("log time: %v", err)
		}
	}
	total, err := env.Engine.Repo.SumStageMinutes(env.Ctx, env.Stage.ID)
	if err != nil || total != 75 {
		t.Fatalf("sum minutes: %v total=%d", err, total)
	}
}

func TestNotesResolveMentions(t *testing.T) {
	env := newTestEnv(t)
	aaron, err := env.Engine.CreateTeamMember(env.Ctx, "Aaron Smith", "", "architect")
	if err != nil {
		t.Fatal(err)
	}
	n, err := env.Engine.AddNote(env.Ctx, workflow.NoteAddOptions{
		ScopeKind: "stage",
		ScopeID:   env.Stage.ID,
		AuthorID:  env.Member.ID,
		Body:      "Hey @sammy and @Aaron Smith, check this",
	})
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if len(n.Mentions) != 2 || n.Mentions[0].MemberID != env.Member.ID || n.Mentions[1].MemberID != aaron.ID {
		t.Fatalf("unexpected mentions: %+v", n.Mentions)
	}

	n, err = env.Engine.EditNote(env.Ctx, n.ID, "Actually just @Aaron Smith", env.Member.ID)
	if err != nil {
		t.Fatalf("edit note: %v", err)
	}
	if !n.Edited {
		t.Fatalf("edited flag not set")
	}
	if len(n.Mentions) != 1 || n.Mentions[0].MemberID != aaron.ID {
		t.Fatalf("mentions not re-resolved: %+v", n.Mentions)
	}

	got, err := env.Engine.Repo.GetNote(env.Ctx, n.ID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if len(got.Mentions) != 1 || got.Mentions[0].DisplayName != "Aaron Smith" {
		t.Fatalf("stored mentions wrong: %+v", got.Mentions)
	}
}

func TestUpdateMutationsAppendActivity(t *testing.T) {
	env := newTestEnv(t)

	lastAction := func(entityKind, entityID string) string {
		t.Helper()
		entries, err := env.Engine.Repo.ListActivity(env.Ctx, entityKind, entityID, 1)
		if err != nil {
			t.Fatalf("list activity: %v", err)
		}
		if len(entries) == 0 {
			return ""
		}
		return entries[0].Action
	}

	desc := "new brief"
	if err := env.Engine.UpdateProject(env.Ctx, env.Project.ID, "on_hold", &desc, env.Member.ID); err != nil {
		t.Fatalf("update project: %v", err)
	}
	if got := lastAction("project", env.Project.ID); got != "update" {
		t.Fatalf("project update not logged, last action %q", got)
	}

	if _, err := env.Engine.SetStageDue(env.Ctx, env.Stage.ID, "2024-02-15", env.Member.ID); err != nil {
		t.Fatalf("set due: %v", err)
	}
	if got := lastAction("stage", env.Stage.ID); got != "update" {
		t.Fatalf("due date change not logged, last action %q", got)
	}

	v := env.createRenderingVersion(t)
	a := env.addAsset(t, v.ID, "render.png")
	title := "final render"
	if _, err := env.Engine.UpdateAsset(env.Ctx, a.ID, workflow.AssetPatch{Title: &title}, env.Member.ID); err != nil {
		t.Fatalf("update asset: %v", err)
	}
	if got := lastAction("version", v.ID); got != "update" {
		t.Fatalf("asset update not logged, last action %q", got)
	}

	n, err := env.Engine.AddNote(env.Ctx, workflow.NoteAddOptions{
		ScopeKind: "stage", ScopeID: env.Stage.ID, AuthorID: env.Member.ID, Body: "first draft",
	})
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if _, err := env.Engine.EditNote(env.Ctx, n.ID, "second draft", env.Member.ID); err != nil {
		t.Fatalf("edit note: %v", err)
	}
	if got := lastAction("stage", env.Stage.ID); got != "update" {
		t.Fatalf("note edit not logged, last action %q", got)
	}
}

func TestActivityAppendedPerMutation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.StartStage(env.Ctx, env.Stage.ID, env.Member.ID); err != nil {
		t.Fatal(err)
	}
	entries, err := env.Engine.Repo.ListActivity(env.Ctx, "stage", env.Stage.ID, 10)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "stage_status" {
		t.Fatalf("unexpected feed: %+v", entries)
	}
	if entries[0].ActorID == nil || *entries[0].ActorID != env.Member.ID {
		t.Fatalf("actor not recorded")
	}
}
