package cislinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a cisline HTTP API client. Every response is unwrapped from the
// {success, data, error, message} envelope.
type Client struct {
	BaseURL string
	// BearerToken is sent as Authorization; Login sets it.
	BearerToken string
	// ActorID is sent as X-Actor-Id when no token is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL excludes the /api prefix.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx response or a body with success=false.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status=%d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == status
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Organizations

func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var out []Organization
	err := c.do(ctx, http.MethodGet, "organization", nil, &out)
	return out, err
}

func (c *Client) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	var out Organization
	err := c.do(ctx, http.MethodGet, path("organization", id), nil, &out)
	return out, err
}

func (c *Client) CreateOrganization(ctx context.Context, name, description string) (Organization, error) {
	var out Organization
	err := c.do(ctx, http.MethodPost, "organization", map[string]any{"name": name, "description": description}, &out)
	return out, err
}

func (c *Client) UpdateOrganization(ctx context.Context, id int64, patch OrganizationPatch) (Organization, error) {
	var out Organization
	err := c.do(ctx, http.MethodPatch, path("organization", id), patch, &out)
	return out, err
}

func (c *Client) DeleteOrganization(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("organization", id), nil, nil)
}

func (c *Client) PutSettings(ctx context.Context, orgID int64, patch SettingsPatch) (Settings, error) {
	var out Settings
	err := c.do(ctx, http.MethodPut, path("organization", orgID)+"/settings", patch, &out)
	return out, err
}

func (c *Client) DeleteSettings(ctx context.Context, orgID int64) error {
	return c.do(ctx, http.MethodDelete, path("organization", orgID)+"/settings", nil, nil)
}

func (c *Client) AddProfileToOrganization(ctx context.Context, orgID, profileID int64) (Organization, error) {
	var out Organization
	err := c.do(ctx, http.MethodPost, path("organization", orgID)+"/profile", map[string]any{"profile_id": profileID}, &out)
	return out, err
}

func (c *Client) RemoveProfileFromOrganization(ctx context.Context, orgID, profileID int64) (Organization, error) {
	var out Organization
	err := c.do(ctx, http.MethodDelete, path("organization", orgID)+"/"+path("profile", profileID), nil, &out)
	return out, err
}

// Profiles

func (c *Client) ListProfiles(ctx context.Context, q ProfileQuery) ([]Profile, error) {
	v := url.Values{}
	if q.OrganizationID > 0 {
		v.Set("organization_id", strconv.FormatInt(q.OrganizationID, 10))
	}
	if q.Unassigned {
		v.Set("unassigned", "true")
	}
	var out []Profile
	err := c.do(ctx, http.MethodGet, withQuery("profile", v), nil, &out)
	return out, err
}

func (c *Client) GetProfile(ctx context.Context, id int64) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodGet, path("profile", id), nil, &out)
	return out, err
}

func (c *Client) CreateProfile(ctx context.Context, in ProfileCreate) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodPost, "profile", in, &out)
	return out, err
}

func (c *Client) UpdateProfile(ctx context.Context, id int64, patch ProfilePatch) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodPatch, path("profile", id), patch, &out)
	return out, err
}

func (c *Client) DeleteProfile(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("profile", id), nil, nil)
}

// Tasks

func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	v := url.Values{}
	if q.OrganizationID > 0 {
		v.Set("organization_id", strconv.FormatInt(q.OrganizationID, 10))
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	var out []Task
	err := c.do(ctx, http.MethodGet, withQuery("task", v), nil, &out)
	return out, err
}

func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodGet, path("task", id), nil, &out)
	return out, err
}

func (c *Client) CreateTask(ctx context.Context, in TaskCreate) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, "task", in, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, id int64, patch TaskPatch) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPatch, path("task", id), patch, &out)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("task", id), nil, nil)
}

func (c *Client) AssignProfile(ctx context.Context, taskID, profileID int64) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, "task-profile", map[string]any{"task_id": taskID, "profile_id": profileID}, &out)
	return out, err
}

func (c *Client) UnassignProfile(ctx context.Context, taskID, profileID int64) (Task, error) {
	v := url.Values{}
	v.Set("task_id", strconv.FormatInt(taskID, 10))
	v.Set("profile_id", strconv.FormatInt(profileID, 10))
	var out Task
	err := c.do(ctx, http.MethodDelete, withQuery("task-profile", v), nil, &out)
	return out, err
}

func (c *Client) LinkArtifact(ctx context.Context, taskID, artifactID int64) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, "task-artifact", map[string]any{"task_id": taskID, "artifact_id": artifactID}, &out)
	return out, err
}

func (c *Client) UnlinkArtifact(ctx context.Context, taskID, artifactID int64) (Task, error) {
	v := url.Values{}
	v.Set("task_id", strconv.FormatInt(taskID, 10))
	v.Set("artifact_id", strconv.FormatInt(artifactID, 10))
	var out Task
	err := c.do(ctx, http.MethodDelete, withQuery("task-artifact", v), nil, &out)
	return out, err
}

func (c *Client) LinkSafeguard(ctx context.Context, taskID int64, safeguardID string) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, "task-safeguard", map[string]any{"task_id": taskID, "safeguard_id": safeguardID}, &out)
	return out, err
}

func (c *Client) UnlinkSafeguard(ctx context.Context, taskID int64, safeguardID string) (Task, error) {
	v := url.Values{}
	v.Set("task_id", strconv.FormatInt(taskID, 10))
	v.Set("safeguard_id", safeguardID)
	var out Task
	err := c.do(ctx, http.MethodDelete, withQuery("task-safeguard", v), nil, &out)
	return out, err
}

// Artifacts

func (c *Client) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	var out []Artifact
	err := c.do(ctx, http.MethodGet, "artifact", nil, &out)
	return out, err
}

func (c *Client) GetArtifact(ctx context.Context, id int64) (Artifact, error) {
	var out Artifact
	err := c.do(ctx, http.MethodGet, path("artifact", id), nil, &out)
	return out, err
}

func (c *Client) CreateArtifact(ctx context.Context, in ArtifactCreate) (Artifact, error) {
	var out Artifact
	err := c.do(ctx, http.MethodPost, "artifact", in, &out)
	return out, err
}

func (c *Client) UpdateArtifact(ctx context.Context, id int64, patch ArtifactPatch) (Artifact, error) {
	var out Artifact
	err := c.do(ctx, http.MethodPatch, path("artifact", id), patch, &out)
	return out, err
}

func (c *Client) DeleteArtifact(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("artifact", id), nil, nil)
}

// UploadArtifactContent replaces the artifact's stored content with r.
func (c *Client) UploadArtifactContent(ctx context.Context, id int64, r io.Reader, contentType string) (Artifact, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req, err := c.newRequest(ctx, http.MethodPut, path("artifact", id)+"/content", r)
	if err != nil {
		return Artifact{}, err
	}
	req.Header.Set("Content-Type", contentType)
	var out Artifact
	return out, c.send(req, &out)
}

// DownloadArtifactContent streams the artifact's content. The caller closes
// the returned reader.
func (c *Client) DownloadArtifactContent(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path("artifact", id)+"/content", nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, "", decodeError(resp)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Events

func (c *Client) Events(ctx context.Context, q EventQuery) ([]Event, error) {
	v := url.Values{}
	for key, val := range map[string]int64{
		"organization_id": q.OrganizationID,
		"profile_id":      q.ProfileID,
		"task_id":         q.TaskID,
		"before":          q.Before,
		"limit":           int64(q.Limit),
	} {
		if val > 0 {
			v.Set(key, strconv.FormatInt(val, 10))
		}
	}
	if q.Importance != "" {
		v.Set("importance", q.Importance)
	}
	var out []Event
	err := c.do(ctx, http.MethodGet, withQuery("event", v), nil, &out)
	return out, err
}

func (c *Client) AppendEvent(ctx context.Context, in EventCreate) (Event, error) {
	var out Event
	err := c.do(ctx, http.MethodPost, "event", in, &out)
	return out, err
}

// Messages

func (c *Client) Messages(ctx context.Context, taskID int64) ([]Message, error) {
	v := url.Values{}
	v.Set("task_id", strconv.FormatInt(taskID, 10))
	var out []Message
	err := c.do(ctx, http.MethodGet, withQuery("message", v), nil, &out)
	return out, err
}

func (c *Client) PostMessage(ctx context.Context, taskID int64, content string) (Message, error) {
	var out Message
	err := c.do(ctx, http.MethodPost, "message", map[string]any{"task_id": taskID, "content": content}, &out)
	return out, err
}

func (c *Client) EditMessage(ctx context.Context, id int64, content string) (Message, error) {
	var out Message
	err := c.do(ctx, http.MethodPatch, path("message", id), map[string]any{"content": content}, &out)
	return out, err
}

func (c *Client) MarkMessageRead(ctx context.Context, id int64) (Message, error) {
	var out Message
	err := c.do(ctx, http.MethodPatch, path("message", id), map[string]any{"is_read": true}, &out)
	return out, err
}

func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, path("message", id), nil, nil)
}

// Catalog

// SearchSafeguards searches the catalog; taskID > 0 leaves out safeguards
// already linked to that task.
func (c *Client) SearchSafeguards(ctx context.Context, query string, taskID int64) ([]Safeguard, error) {
	v := url.Values{}
	if query != "" {
		v.Set("q", query)
	}
	if taskID > 0 {
		v.Set("task_id", strconv.FormatInt(taskID, 10))
	}
	var out []Safeguard
	err := c.do(ctx, http.MethodGet, withQuery("safeguard", v), nil, &out)
	return out, err
}

func (c *Client) Controls(ctx context.Context) ([]Control, error) {
	var out []Control
	err := c.do(ctx, http.MethodGet, "control", nil, &out)
	return out, err
}

// Users

func (c *Client) CheckEmail(ctx context.Context, email string) (EmailCheck, error) {
	var out EmailCheck
	err := c.do(ctx, http.MethodPost, "user/check-email", map[string]any{"email": email}, &out)
	return out, err
}

func (c *Client) CheckPassword(ctx context.Context, password string, userInputs ...string) (PasswordCheck, error) {
	var out PasswordCheck
	err := c.do(ctx, http.MethodPost, "user/check-password", map[string]any{"password": password, "user_inputs": userInputs}, &out)
	return out, err
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	var out Token
	if err := c.do(ctx, http.MethodPost, "user/login", map[string]any{"email": email, "password": password}, &out); err != nil {
		return out, err
	}
	c.BearerToken = out.Token
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var r io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		r = &buf
	}
	req, err := c.newRequest(ctx, method, endpoint, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := c.base() + "/api/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Error, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env envelope
	if json.Unmarshal(b, &env) == nil && (env.Error != "" || env.Message != "") {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Error, Message: env.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func path(kind string, id int64) string {
	return kind + "/" + strconv.FormatInt(id, 10)
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}
