package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/config"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/db"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/migrate"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL     string
	Engine  workflow.Engine
	Member  domain.TeamMember
	Headers map[string]string
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("studio-1")
	e := workflow.New(conn, cfg)
	member, err := e.CreateTeamMember(context.Background(), "Sammy Lee", "sammy@studio.test", "designer")
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	token, err := IssueToken(testJWTSecret, member.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testJWTSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Member:  member,
		Headers: map[string]string{"Authorization": "Bearer " + token},
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func mustUnmarshal[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %T: %v (%s)", v, err, string(data))
	}
	return v
}

func (s *testServer) seedRoomWithVersion(t *testing.T) (domain.Room, domain.Stage, domain.Version) {
	t.Helper()
	client := s.Client()
	res, data := doJSON(t, client, http.MethodPost, s.URL+"/v1/clients", map[string]any{"name": "Meisner"}, s.Headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create client status %d: %s", res.StatusCode, string(data))
	}
	c := mustUnmarshal[domain.Client](t, data)

	res, data = doJSON(t, client, http.MethodPost, s.URL+"/v1/projects", map[string]any{"client_id": c.ID, "name": "Penthouse"}, s.Headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	p := mustUnmarshal[domain.Project](t, data)

	res, data = doJSON(t, client, http.MethodPost, s.URL+"/v1/projects/"+p.ID+"/rooms", map[string]any{"name": "Living Room"}, s.Headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create room status %d: %s", res.StatusCode, string(data))
	}
	room := mustUnmarshal[domain.Room](t, data)

	res, data = doJSON(t, client, http.MethodGet, s.URL+"/v1/rooms/"+room.ID+"/stages", nil, s.Headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list stages status %d: %s", res.StatusCode, string(data))
	}
	stages := mustUnmarshal[[]domain.Stage](t, data)
	var threeD domain.Stage
	for _, st := range stages {
		if st.Type == "three_d" {
			threeD = st
		}
	}
	if threeD.ID == "" {
		t.Fatalf("three_d stage not seeded: %+v", stages)
	}

	res, data = doJSON(t, client, http.MethodPost, s.URL+"/v1/stages/"+threeD.ID+"/versions", map[string]any{"name": "First pass"}, s.Headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create version status %d: %s", res.StatusCode, string(data))
	}
	v := mustUnmarshal[domain.Version](t, data)
	return room, threeD, v
}

func TestApprovalLoopOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	_, _, v := srv.seedRoomWithVersion(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/versions/"+v.ID+"/assets", map[string]any{
		"title": "render.png", "url": "https://cdn.test/render.png", "include_in_email": true,
	}, srv.Headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add asset status %d: %s", res.StatusCode, string(data))
	}
	asset := mustUnmarshal[domain.Asset](t, data)

	// push before complete violates the graph
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/versions/"+v.ID+"/push", map[string]any{"asset_ids": []string{asset.ID}}, srv.Headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "validation_failed" {
		t.Fatalf("unexpected error envelope: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/versions/"+v.ID+"/complete", map[string]any{}, srv.Headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/versions/"+v.ID+"/push", map[string]any{"asset_ids": []string{asset.ID}}, srv.Headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("push status %d: %s", res.StatusCode, string(data))
	}
	var pushed struct {
		Version  domain.Version        `json:"version"`
		Approval domain.ClientApproval `json:"approval"`
	}
	if err := json.Unmarshal(data, &pushed); err != nil {
		t.Fatalf("unmarshal push result: %v", err)
	}
	if pushed.Version.Status != domain.VersionPushedToClient {
		t.Fatalf("expected pushed_to_client, got %s", pushed.Version.Status)
	}

	// locked: asset mutations now conflict
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/assets/"+asset.ID, nil, srv.Headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 deleting locked asset, got %d: %s", res.StatusCode, string(data))
	}

	// the client surface is public, addressed by token
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/client/approvals/"+pushed.Approval.Token, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("client view status %d: %s", res.StatusCode, string(data))
	}
	var view struct {
		Assets []domain.Asset `json:"assets"`
	}
	if err := json.Unmarshal(data, &view); err != nil || len(view.Assets) != 1 {
		t.Fatalf("client view assets wrong: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/client/approvals/"+pushed.Approval.Token+"/decision", map[string]any{
		"decision": "revision_requested", "message": "warmer lighting",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decision status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/versions/"+v.ID+"/reopen", map[string]any{}, srv.Headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reopen status %d: %s", res.StatusCode, string(data))
	}
	reopened := mustUnmarshal[domain.Version](t, data)
	if reopened.Status != domain.VersionInProgress {
		t.Fatalf("expected in_progress after reopen, got %s", reopened.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", res.StatusCode)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/clients", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/clients", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{
		"member_id": srv.Member.ID, "name": "cli",
	}, srv.Headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key status %d: %s", res.StatusCode, string(data))
	}
	minted := mustUnmarshal[MintAPIKeyResponse](t, data)
	if minted.Key == "" {
		t.Fatalf("raw key not returned")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/team", nil, map[string]string{"X-Api-Key": minted.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth failed %d: %s", res.StatusCode, string(data))
	}
	team := mustUnmarshal[[]domain.TeamMember](t, data)
	if len(team) != 1 {
		t.Fatalf("unexpected roster: %+v", team)
	}
}

func TestDispatcherAutoStartsDependentStage(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	d := NewDispatcher(srv.Engine)
	room, _, v := srv.seedRoomWithVersion(t)
	_, _ = srv.pushVersion(t, v)

	d.Tick(context.Background())

	dep, err := srv.Engine.Repo.GetStageByType(context.Background(), room.ID, "client_approval")
	if err != nil {
		t.Fatalf("get dependent stage: %v", err)
	}
	if dep.Status != domain.StageInProgress {
		t.Fatalf("dependent stage not auto-started: %s", dep.Status)
	}
	feed, err := srv.Engine.Repo.ListActivity(context.Background(), "stage", dep.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 1 || feed[0].ActorID != nil {
		t.Fatalf("auto-start should log a system entry: %+v", feed)
	}
}

func (s *testServer) pushVersion(t *testing.T, v domain.Version) (domain.Version, domain.ClientApproval) {
	t.Helper()
	client := s.Client()
	res, data := doJSON(t, client, http.MethodPost, s.URL+"/v1/versions/"+v.ID+"/assets", map[string]any{
		"title": "render.png", "url": "https://cdn.test/render.png",
	}, s.Headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add asset status %d: %s", res.StatusCode, string(data))
	}
	asset := mustUnmarshal[domain.Asset](t, data)
	res, data = doJSON(t, client, http.MethodPost, s.URL+"/v1/versions/"+v.ID+"/complete", map[string]any{}, s.Headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, s.URL+"/v1/versions/"+v.ID+"/push", map[string]any{"asset_ids": []string{asset.ID}}, s.Headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("push status %d: %s", res.StatusCode, string(data))
	}
	var pushed struct {
		Version  domain.Version        `json:"version"`
		Approval domain.ClientApproval `json:"approval"`
	}
	if err := json.Unmarshal(data, &pushed); err != nil {
		t.Fatalf("unmarshal push result: %v", err)
	}
	return pushed.Version, pushed.Approval
}
