package residentonesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal ResidentOne HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// StudioClient represents the API client model (partial).
type StudioClient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Project represents the API project model (partial).
type Project struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// Room represents a room within a project.
type Room struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// Stage represents a room stage.
type Stage struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	AssigneeID string `json:"assignee_id,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
}

// Version represents a deliverable version.
type Version struct {
	ID        string `json:"id"`
	OwnerKind string `json:"owner_kind"`
	OwnerID   string `json:"owner_id"`
	Label     string `json:"label"`
	Status    string `json:"status"`
	IsCurrent bool   `json:"is_current"`
	Rev       int64  `json:"rev"`
}

// Asset represents a file on a version.
type Asset struct {
	ID             string `json:"id"`
	VersionID      string `json:"version_id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	IncludeInEmail bool   `json:"include_in_email"`
}

// Approval represents a tokenized client approval round.
type Approval struct {
	ID        string   `json:"id"`
	VersionID string   `json:"version_id"`
	Token     string   `json:"token"`
	Status    string   `json:"status"`
	Message   string   `json:"client_message,omitempty"`
	AssetIDs  []string `json:"asset_ids,omitempty"`
}

// ActivityEntry represents an activity log entry.
type ActivityEntry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	TS         string         `json:"ts"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// PushResult pairs the pushed version with its approval round.
type PushResult struct {
	Version  Version  `json:"version"`
	Approval Approval `json:"approval"`
}

// ClientView is what the approval token exposes to the studio's client.
type ClientView struct {
	Approval Approval `json:"approval"`
	Version  Version  `json:"version"`
	Assets   []Asset  `json:"assets"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateClient creates a studio client.
func (c *Client) CreateClient(ctx context.Context, name, email string) (StudioClient, error) {
	body := map[string]any{"name": name}
	if email != "" {
		body["email"] = email
	}
	var resp StudioClient
	err := c.do(ctx, http.MethodPost, "v1/clients", body, &resp)
	return resp, err
}

// CreateProject creates a project for a client.
func (c *Client) CreateProject(ctx context.Context, clientID, name string) (Project, error) {
	body := map[string]any{"client_id": clientID, "name": name}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// CreateRoom creates a room; stages are seeded from the studio catalog.
func (c *Client) CreateRoom(ctx context.Context, projectID, name string) (Room, error) {
	body := map[string]any{"name": name}
	var resp Room
	endpoint := fmt.Sprintf("v1/projects/%s/rooms", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListStages returns a room's stages.
func (c *Client) ListStages(ctx context.Context, roomID string) ([]Stage, error) {
	var resp []Stage
	endpoint := fmt.Sprintf("v1/rooms/%s/stages", url.PathEscape(roomID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartStage moves a stage to in_progress.
func (c *Client) StartStage(ctx context.Context, stageID string) (Stage, error) {
	var resp Stage
	endpoint := fmt.Sprintf("v1/stages/%s/start", url.PathEscape(stageID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// CreateVersion creates a rendering version on a stage.
func (c *Client) CreateVersion(ctx context.Context, stageID, name string) (Version, error) {
	body := map[string]any{"name": name}
	var resp Version
	endpoint := fmt.Sprintf("v1/stages/%s/versions", url.PathEscape(stageID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateFloorplan creates a project-level floorplan version.
func (c *Client) CreateFloorplan(ctx context.Context, projectID, name string) (Version, error) {
	body := map[string]any{"name": name}
	var resp Version
	endpoint := fmt.Sprintf("v1/projects/%s/floorplans", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AddAsset attaches an asset to a version.
func (c *Client) AddAsset(ctx context.Context, versionID, title, assetURL string) (Asset, error) {
	body := map[string]any{"title": title, "url": assetURL}
	var resp Asset
	endpoint := fmt.Sprintf("v1/versions/%s/assets", url.PathEscape(versionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CompleteVersion marks a version completed. rev 0 skips the check.
func (c *Client) CompleteVersion(ctx context.Context, versionID string, rev int64) (Version, error) {
	var resp Version
	endpoint := fmt.Sprintf("v1/versions/%s/complete", url.PathEscape(versionID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"rev": rev}, &resp)
	return resp, err
}

// PushVersion pushes a completed version to the client with the selected assets.
func (c *Client) PushVersion(ctx context.Context, versionID string, assetIDs []string, rev int64) (PushResult, error) {
	body := map[string]any{"asset_ids": assetIDs, "rev": rev}
	var resp PushResult
	endpoint := fmt.Sprintf("v1/versions/%s/push", url.PathEscape(versionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ApprovalView fetches the public client view for an approval token.
// No credentials are required.
func (c *Client) ApprovalView(ctx context.Context, token string) (ClientView, error) {
	var resp ClientView
	endpoint := fmt.Sprintf("v1/client/approvals/%s", url.PathEscape(token))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Decide records the client's decision on an approval token.
func (c *Client) Decide(ctx context.Context, token, decision, message string) (Approval, error) {
	body := map[string]any{"decision": decision}
	if message != "" {
		body["message"] = message
	}
	var resp struct {
		Approval Approval `json:"approval"`
	}
	endpoint := fmt.Sprintf("v1/client/approvals/%s/decision", url.PathEscape(token))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Approval, err
}

// Activity returns an entity's activity feed, newest first.
func (c *Client) Activity(ctx context.Context, entityKind, entityID string, limit int) ([]ActivityEntry, error) {
	endpoint := fmt.Sprintf("v1/activity/%s/%s", url.PathEscape(entityKind), url.PathEscape(entityID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []ActivityEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
