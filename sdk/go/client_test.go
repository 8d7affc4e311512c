package cislinesdk_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cisline/internal/audit"
	"cisline/internal/blob"
	"cisline/internal/db"
	"cisline/internal/engine"
	"cisline/internal/migrate"
	"cisline/internal/server"
	cislinesdk "cisline/sdk/go"
)

const strongPassword = "Tr0ub4dour&3-zebra-Quasar!"

func newClient(t *testing.T) *cislinesdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	e := engine.New(conn)
	e.Blobs = blob.NewMemory()
	out := audit.NewOutbox(e.Events, audit.OutboxOptions{Logger: zerolog.Nop()})
	e.Audit = out
	h, err := server.New(server.Config{
		Engine: e,
		Auth:   server.AuthConfig{JWTSecret: "sdk-secret", AllowHeaderActor: true},
		Log:    zerolog.Nop(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(func() {
		ts.Close()
		out.Close(context.Background())
		conn.Close()
	})
	c := cislinesdk.New(ts.URL + "/")
	c.ActorID = "alice"
	return c
}

func TestClientErrorsCarryStatusAndCode(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.GetOrganization(ctx, 404)
	require.Error(t, err)
	assert.True(t, cislinesdk.IsStatus(err, http.StatusNotFound))
	var ae *cislinesdk.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "not_found", ae.Code)

	_, err = c.CreateOrganization(ctx, "  ", "")
	assert.True(t, cislinesdk.IsStatus(err, http.StatusBadRequest))

	anon := *c
	anon.ActorID = ""
	_, err = anon.CreateOrganization(ctx, "Acme", "")
	assert.True(t, cislinesdk.IsStatus(err, http.StatusUnauthorized))
	_, err = anon.ListOrganizations(ctx)
	assert.NoError(t, err, "reads stay open")
}

func TestClientOrganizationTaskRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	org, err := c.CreateOrganization(ctx, "Acme", "main tenant")
	require.NoError(t, err)
	org, err = c.UpdateOrganization(ctx, org.ID, cislinesdk.OrganizationPatch{Description: cislinesdk.String("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", org.Description)

	settings, err := c.PutSettings(ctx, org.ID, cislinesdk.SettingsPatch{UploadDirectory: cislinesdk.String("/srv/up")})
	require.NoError(t, err)
	assert.Equal(t, "/srv/up", settings.UploadDirectory)

	p, err := c.CreateProfile(ctx, cislinesdk.ProfileCreate{Name: "Ann", Email: "ann@example.com", Password: strongPassword, OrganizationID: &org.ID})
	require.NoError(t, err)

	task, err := c.CreateTask(ctx, cislinesdk.TaskCreate{OrganizationID: org.ID, Name: "Inventory", Safeguards: []string{"1.1"}})
	require.NoError(t, err)
	task, err = c.AssignProfile(ctx, task.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, task.TaskProfiles, 1)
	assert.Equal(t, p.ID, task.TaskProfiles[0].ProfileID)

	task, err = c.UpdateTask(ctx, task.ID, cislinesdk.TaskPatch{Status: cislinesdk.String("OPEN")})
	require.NoError(t, err)
	assert.Equal(t, "OPEN", task.Status)

	tasks, err := c.ListTasks(ctx, cislinesdk.TaskQuery{OrganizationID: org.ID, Status: "OPEN"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	sgs, err := c.SearchSafeguards(ctx, "inventory", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, sgs)

	task, err = c.UnassignProfile(ctx, task.ID, p.ID)
	require.NoError(t, err)
	assert.Empty(t, task.TaskProfiles)

	require.NoError(t, c.DeleteTask(ctx, task.ID))
	_, err = c.GetTask(ctx, task.ID)
	assert.True(t, cislinesdk.IsStatus(err, http.StatusNotFound))
}

func TestClientArtifactContent(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	a, err := c.CreateArtifact(ctx, cislinesdk.ArtifactCreate{Name: "scan.txt"})
	require.NoError(t, err)
	a, err = c.UploadArtifactContent(ctx, a.ID, strings.NewReader("all clear"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(9), a.Size)

	rc, ct, err := c.DownloadArtifactContent(ctx, a.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "all clear", string(body))
	assert.Equal(t, "text/plain", ct)

	_, _, err = c.DownloadArtifactContent(ctx, a.ID+100)
	assert.True(t, cislinesdk.IsStatus(err, http.StatusNotFound))
}

func TestClientLoginAndMessages(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	check, err := c.CheckEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, check.Available)

	pw, err := c.CheckPassword(ctx, "password")
	require.NoError(t, err)
	assert.False(t, pw.Strong)

	org, err := c.CreateOrganization(ctx, "Acme", "")
	require.NoError(t, err)
	p, err := c.CreateProfile(ctx, cislinesdk.ProfileCreate{Name: "Ann", Email: "ann@example.com", Password: strongPassword, OrganizationID: &org.ID})
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, cislinesdk.TaskCreate{OrganizationID: org.ID, Name: "Inventory"})
	require.NoError(t, err)

	ann := cislinesdk.New(c.BaseURL)
	tok, err := ann.Login(ctx, "ann@example.com", strongPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, p.ID, tok.Profile.ID)
	assert.Equal(t, tok.Token, ann.BearerToken)

	msg, err := ann.PostMessage(ctx, task.ID, "evidence uploaded")
	require.NoError(t, err)
	_, err = c.EditMessage(ctx, msg.ID, "not mine")
	assert.True(t, cislinesdk.IsStatus(err, http.StatusForbidden))

	msg, err = c.MarkMessageRead(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, msg.IsRead)

	msg, err = ann.EditMessage(ctx, msg.ID, "evidence uploaded (v2)")
	require.NoError(t, err)
	msgs, err := c.Messages(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "evidence uploaded (v2)", msgs[0].Content)

	require.NoError(t, ann.DeleteMessage(ctx, msg.ID))

	_, err = cislinesdk.New(c.BaseURL).Login(ctx, "ann@example.com", "wrong")
	assert.True(t, cislinesdk.IsStatus(err, http.StatusForbidden))
}

func TestClientAppendAndFilterEvents(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	org, err := c.CreateOrganization(ctx, "Acme", "")
	require.NoError(t, err)

	for _, imp := range []string{"LOW", "HIGH"} {
		_, err := c.AppendEvent(ctx, cislinesdk.EventCreate{Message: "manual " + imp, Importance: imp, OrganizationID: &org.ID})
		require.NoError(t, err)
	}
	evs, err := c.Events(ctx, cislinesdk.EventQuery{OrganizationID: org.ID, Importance: "HIGH"})
	require.NoError(t, err)
	var msgs bytes.Buffer
	for _, ev := range evs {
		assert.Equal(t, "HIGH", ev.Importance)
		msgs.WriteString(ev.Message + "\n")
	}
	assert.Contains(t, msgs.String(), "manual HIGH")
	assert.NotContains(t, msgs.String(), "manual LOW")
}
