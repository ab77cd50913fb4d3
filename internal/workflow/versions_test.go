package workflow_test

import (
	"errors"
	"testing"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/repo"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

func (env testEnv) createRenderingVersion(t *testing.T) domain.Version {
	t.Helper()
	v, err := env.Engine.CreateVersion(env.Ctx, workflow.VersionCreateOptions{
		OwnerKind: "stage", OwnerID: env.Stage.ID, ActorID: env.Member.ID,
	})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	return v
}

func (env testEnv) addAsset(t *testing.T, versionID, title string) domain.Asset {
	t.Helper()
	a, err := env.Engine.AddAsset(env.Ctx, workflow.AssetAddOptions{
		VersionID: versionID, Title: title, URL: "https://cdn.test/" + title, ActorID: env.Member.ID,
	})
	if err != nil {
		t.Fatalf("add asset: %v", err)
	}
	return a
}

func (env testEnv) pushWithAsset(t *testing.T, versionID string) (domain.Version, domain.ClientApproval) {
	t.Helper()
	a := env.addAsset(t, versionID, "render.png")
	if _, err := env.Engine.CompleteVersion(env.Ctx, versionID, env.Member.ID, 0); err != nil {
		t.Fatalf("complete: %v", err)
	}
	v, ap, err := env.Engine.PushVersionToClient(env.Ctx, versionID, []string{a.ID}, env.Member.ID, 0)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	return v, ap
}

func TestVersionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	v := env.createRenderingVersion(t)
	if v.Label != "v1" || v.Status != domain.VersionInProgress || v.Workflow != domain.WorkflowRendering {
		t.Fatalf("unexpected new version: %+v", v)
	}

	pushed, ap := env.pushWithAsset(t, v.ID)
	if pushed.Status != domain.VersionPushedToClient || pushed.PushedAt == nil {
		t.Fatalf("push did not stamp: %+v", pushed)
	}
	if ap.Status != domain.ApprovalPending || len(ap.AssetIDs) != 1 {
		t.Fatalf("unexpected approval: %+v", ap)
	}

	got, _, err := env.Engine.RecordClientDecision(env.Ctx, ap.Token, domain.ApprovalApproved, "")
	if err != nil {
		t.Fatalf("decision: %v", err)
	}
	if got.Status != domain.VersionClientApproved || !got.Status.Terminal() {
		t.Fatalf("approve did not terminate: %+v", got)
	}
}

func TestVersionTransitionClosure(t *testing.T) {
	env := newTestEnv(t)
	var verr workflow.ValidationError

	// push straight from in_progress
	v := env.createRenderingVersion(t)
	a := env.addAsset(t, v.ID, "draft.png")
	if _, _, err := env.Engine.PushVersionToClient(env.Ctx, v.ID, []string{a.ID}, env.Member.ID, 0); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError pushing in_progress, got %v", err)
	}
	// double complete
	if _, err := env.Engine.CompleteVersion(env.Ctx, v.ID, env.Member.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteVersion(env.Ctx, v.ID, env.Member.ID, 0); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError on double complete, got %v", err)
	}
	// reopen from completed is allowed
	if _, err := env.Engine.ReopenVersion(env.Ctx, v.ID, env.Member.ID, 0); err != nil {
		t.Fatalf("reopen completed: %v", err)
	}
}

func TestReopenBlockedWhilePushed(t *testing.T) {
	env := newTestEnv(t)
	v := env.createRenderingVersion(t)
	_, ap := env.pushWithAsset(t, v.ID)

	var verr workflow.ValidationError
	if _, err := env.Engine.ReopenVersion(env.Ctx, v.ID, env.Member.ID, 0); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError reopening pushed version, got %v", err)
	}
	// empty revision message rejected; the version stays locked
	if _, _, err := env.Engine.RecordClientDecision(env.Ctx, ap.Token, domain.ApprovalRevisionRequested, ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty message, got %v", err)
	}
	if _, err := env.Engine.ReopenVersion(env.Ctx, v.ID, env.Member.ID, 0); err == nil {
		t.Fatalf("version should still be locked")
	}
	// non-empty message permits reopen
	if _, _, err := env.Engine.RecordClientDecision(env.Ctx, ap.Token, domain.ApprovalRevisionRequested, "warmer lighting please"); err != nil {
		t.Fatalf("decision: %v", err)
	}
	got, err := env.Engine.ReopenVersion(env.Ctx, v.ID, env.Member.ID, 0)
	if err != nil || got.Status != domain.VersionInProgress {
		t.Fatalf("reopen after revision request: %v", err)
	}
	if got.CompletedAt != nil || got.CompletedBy != nil {
		t.Fatalf("completion stamps not cleared: %+v", got)
	}
}

func TestApprovalIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	v := env.createRenderingVersion(t)
	_, ap := env.pushWithAsset(t, v.ID)

	if _, _, err := env.Engine.RecordClientDecision(env.Ctx, ap.Token, domain.ApprovalApproved, ""); err != nil {
		t.Fatal(err)
	}
	var cerr workflow.ConflictError
	if _, _, err := env.Engine.RecordClientDecision(env.Ctx, ap.Token, domain.ApprovalApproved, ""); !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError on second decision, got %v", err)
	}
	if _, err := env.Engine.ReopenVersion(env.Ctx, v.ID, env.Member.ID, 0); err == nil {
		t.Fatalf("approved version must not reopen")
	}
}

func TestLabelsNeverReusedAfterDelete(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createRenderingVersion(t)
	v2 := env.createRenderingVersion(t)
	if v1.Label != "v1" || v2.Label != "v2" {
		t.Fatalf("unexpected labels %s %s", v1.Label, v2.Label)
	}
	if err := env.Engine.DeleteVersion(env.Ctx, v2.ID, env.Member.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	v3 := env.createRenderingVersion(t)
	if v3.Label != "v3" {
		t.Fatalf("label v2 was reissued as %s", v3.Label)
	}
	// delete entry lands on the owning stage
	entries, err := env.Engine.Repo.ListActivity(env.Ctx, "stage", env.Stage.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if e.Action == "delete" {
			found = true
		}
	}
	if !found {
		t.Fatalf("delete not recorded on owner feed: %+v", entries)
	}
}

func TestDeleteVersionCascadesNotes(t *testing.T) {
	env := newTestEnv(t)
	v := env.createRenderingVersion(t)
	env.addAsset(t, v.ID, "render.png")
	n, err := env.Engine.AddNote(env.Ctx, workflow.NoteAddOptions{
		ScopeKind: "version", ScopeID: v.ID, AuthorID: env.Member.ID, Body: "Hey @sammy, first pass",
	})
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if err := env.Engine.DeleteVersion(env.Ctx, v.ID, env.Member.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetNote(env.Ctx, n.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("note survived version delete: %v", err)
	}
	notes, err := env.Engine.Repo.ListNotes(env.Ctx, "version", v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Fatalf("orphaned version notes remain: %+v", notes)
	}
}

func TestPushSnapshotsAssetSelection(t *testing.T) {
	env := newTestEnv(t)
	v := env.createRenderingVersion(t)
	a1 := env.addAsset(t, v.ID, "final.png")
	env.addAsset(t, v.ID, "outtake.png")
	if _, err := env.Engine.CompleteVersion(env.Ctx, v.ID, env.Member.ID, 0); err != nil {
		t.Fatal(err)
	}
	// selection must belong to the version
	if _, _, err := env.Engine.PushVersionToClient(env.Ctx, v.ID, []string{"stranger"}, env.Member.ID, 0); err == nil {
		t.Fatalf("expected foreign asset rejection")
	}
	if _, _, err := env.Engine.PushVersionToClient(env.Ctx, v.ID, nil, env.Member.ID, 0); err == nil {
		t.Fatalf("expected empty selection rejection")
	}
	_, ap, err := env.Engine.PushVersionToClient(env.Ctx, v.ID, []string{a1.ID}, env.Member.ID, 0)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(ap.AssetIDs) != 1 || ap.AssetIDs[0] != a1.ID {
		t.Fatalf("snapshot wrong: %+v", ap.AssetIDs)
	}
	got, err := env.Engine.Repo.GetApprovalByToken(env.Ctx, ap.Token)
	if err != nil || len(got.AssetIDs) != 1 || got.AssetIDs[0] != a1.ID {
		t.Fatalf("stored snapshot wrong: %v %+v", err, got.AssetIDs)
	}
}

func TestAssetsLockedAfterPush(t *testing.T) {
	env := newTestEnv(t)
	v := env.createRenderingVersion(t)
	a := env.addAsset(t, v.ID, "render.png")
	if _, err := env.Engine.CompleteVersion(env.Ctx, v.ID, env.Member.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.PushVersionToClient(env.Ctx, v.ID, []string{a.ID}, env.Member.ID, 0); err != nil {
		t.Fatal(err)
	}

	var cerr workflow.ConflictError
	if _, err := env.Engine.AddAsset(env.Ctx, workflow.AssetAddOptions{VersionID: v.ID, Title: "late.png", URL: "https://cdn.test/late.png", ActorID: env.Member.ID}); !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError adding to locked version, got %v", err)
	}
	desc := "tweak"
	if _, err := env.Engine.UpdateAsset(env.Ctx, a.ID, workflow.AssetPatch{Description: &desc}, env.Member.ID); !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError updating locked asset, got %v", err)
	}
	if err := env.Engine.DeleteAsset(env.Ctx, a.ID, env.Member.ID); !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError deleting locked asset, got %v", err)
	}
}

func TestStaleRevConflicts(t *testing.T) {
	env := newTestEnv(t)
	v := env.createRenderingVersion(t)
	var cerr workflow.ConflictError
	if _, err := env.Engine.CompleteVersion(env.Ctx, v.ID, env.Member.ID, v.Rev+5); !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError on stale rev, got %v", err)
	}
	got, err := env.Engine.CompleteVersion(env.Ctx, v.ID, env.Member.ID, v.Rev)
	if err != nil {
		t.Fatalf("complete with current rev: %v", err)
	}
	if got.Rev != v.Rev+1 {
		t.Fatalf("rev not bumped: %d -> %d", v.Rev, got.Rev)
	}
}

func TestFloorplanSingleCurrent(t *testing.T) {
	env := newTestEnv(t)
	f1, err := env.Engine.CreateVersion(env.Ctx, workflow.VersionCreateOptions{OwnerKind: "project", OwnerID: env.Project.ID, ActorID: env.Member.ID})
	if err != nil {
		t.Fatalf("create floorplan: %v", err)
	}
	if f1.Workflow != domain.WorkflowFloorplan || !f1.IsCurrent {
		t.Fatalf("first floorplan should be current: %+v", f1)
	}
	f2, err := env.Engine.CreateVersion(env.Ctx, workflow.VersionCreateOptions{OwnerKind: "project", OwnerID: env.Project.ID, ActorID: env.Member.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !f2.IsCurrent {
		t.Fatalf("new floorplan should be current")
	}
	versions, err := env.Engine.Repo.ListVersions(env.Ctx, "project", env.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	current := 0
	for _, v := range versions {
		if v.IsCurrent {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current floorplan, got %d", current)
	}
}

func TestVersionsOnlyOnConfiguredStages(t *testing.T) {
	env := newTestEnv(t)
	design, err := env.Engine.Repo.GetStageByType(env.Ctx, env.Room.ID, "design")
	if err != nil {
		t.Fatal(err)
	}
	var verr workflow.ValidationError
	if _, err := env.Engine.CreateVersion(env.Ctx, workflow.VersionCreateOptions{OwnerKind: "stage", OwnerID: design.ID, ActorID: env.Member.ID}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for stage without workflow, got %v", err)
	}
}
