package state

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cisline/internal/audit"
	"cisline/internal/db"
	"cisline/internal/engine"
	"cisline/internal/migrate"
	"cisline/internal/server"
	cislinesdk "cisline/sdk/go"
)

const strongPassword = "Tr0ub4dour&3-zebra-Quasar!"

// newBackend serves a fresh workspace and returns a client acting as alice.
func newBackend(t *testing.T) *cislinesdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	e := engine.New(conn)
	out := audit.NewOutbox(e.Events, audit.OutboxOptions{Logger: zerolog.Nop()})
	e.Audit = out
	h, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{AllowHeaderActor: true}, Log: zerolog.Nop()})
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(func() {
		ts.Close()
		out.Close(context.Background())
		conn.Close()
	})
	c := cislinesdk.New(ts.URL)
	c.ActorID = "alice"
	return c
}

func profileIDs(ps []cislinesdk.Profile) []int64 {
	out := make([]int64, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func createProfile(t *testing.T, s *Session, api *cislinesdk.Client, name, email string, orgID *int64) cislinesdk.Profile {
	t.Helper()
	ctx := context.Background()
	gate := NewCredentialGate(api, time.Hour)
	gate.SetEmail(ctx, email)
	gate.SetPassword(ctx, strongPassword, email)
	gate.Flush()
	require.True(t, gate.Ready())
	out, err := s.CreateProfile(ctx, gate, cislinesdk.ProfileCreate{Name: name, Email: email, Password: strongPassword, OrganizationID: orgID})
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	for _, p := range s.Profiles.List() {
		if p.User != nil && p.User.Email == email {
			return p
		}
	}
	t.Fatalf("profile %s not cached", email)
	return cislinesdk.Profile{}
}

func TestSessionRemoveProfileKeepsListAndDetailInSync(t *testing.T) {
	api := newBackend(t)
	ctx := context.Background()
	s := NewSession(api, zerolog.Nop())

	out, err := s.CreateOrganization(ctx, "Acme", "")
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	org := s.Orgs.List()[0]
	assert.Empty(t, org.Profiles)
	assert.Empty(t, org.Tasks)

	a := createProfile(t, s, api, "Ann", "ann@example.com", &org.ID)
	jane := createProfile(t, s, api, "Jane Doe", "jane@example.com", &org.ID)
	c := createProfile(t, s, api, "Cid", "cid@example.com", &org.ID)

	require.True(t, s.Orgs.Select(org.ID))
	require.NoError(t, s.Trail.Open(ctx, Ref{OrganizationEntity, org.ID}))

	_, err = s.CreateTask(ctx, cislinesdk.TaskCreate{OrganizationID: org.ID, Name: "Patch servers", ProfileIDs: []int64{jane.ID}})
	require.NoError(t, err)
	task := s.Tasks.List()[0]

	out, err = s.RemoveProfileFromOrganization(ctx, org.ID, jane.ID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)

	sel, ok := s.Orgs.Selected()
	require.True(t, ok)
	flat, _ := s.Orgs.Get(org.ID)
	assert.Equal(t, []int64{a.ID, c.ID}, profileIDs(sel.Profiles))
	assert.Equal(t, profileIDs(flat.Profiles), profileIDs(sel.Profiles))

	cachedTask, _ := s.Tasks.Get(task.ID)
	assert.Empty(t, cachedTask.TaskProfiles)
	assert.Empty(t, sel.Tasks[0].TaskProfiles)
	p, _ := s.Profiles.Get(jane.ID)
	assert.Nil(t, p.OrganizationID)

	// the server agrees with the local projection
	fresh, err := api.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, profileIDs(fresh.Profiles), profileIDs(sel.Profiles))

	// the open trail already shows the removal
	var removal *cislinesdk.Event
	for _, ev := range s.Trail.Events() {
		if ev.Message == `Profile removed: "Jane Doe"` {
			removal = &ev
		}
	}
	require.NotNil(t, removal)
	assert.Equal(t, "HIGH", removal.Importance)
}

func TestSessionTaskMutationsUpdateBothProjections(t *testing.T) {
	api := newBackend(t)
	ctx := context.Background()
	s := NewSession(api, zerolog.Nop())
	_, err := s.CreateOrganization(ctx, "Acme", "")
	require.NoError(t, err)
	org := s.Orgs.List()[0]
	_, err = s.CreateTask(ctx, cislinesdk.TaskCreate{OrganizationID: org.ID, Name: "Patch servers"})
	require.NoError(t, err)
	task := s.Tasks.List()[0]
	require.True(t, s.Tasks.Select(task.ID))

	_, err = s.UpdateTask(ctx, task.ID, cislinesdk.TaskPatch{Name: cislinesdk.String("Patch servers Q1")})
	require.NoError(t, err)
	_, err = s.LinkSafeguard(ctx, task.ID, "1.1")
	require.NoError(t, err)

	sel, _ := s.Tasks.Selected()
	o, _ := s.Orgs.Get(org.ID)
	require.Len(t, o.Tasks, 1)
	assert.Equal(t, "Patch servers Q1", sel.Name)
	assert.Equal(t, sel.Name, o.Tasks[0].Name)
	assert.Equal(t, []string{"1.1"}, sel.Safeguards)
	assert.Equal(t, sel.Safeguards, o.Tasks[0].Safeguards)

	_, err = s.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	_, ok := s.Tasks.Selected()
	assert.False(t, ok)
	o, _ = s.Orgs.Get(org.ID)
	assert.Empty(t, o.Tasks)
}

// linkedTasks names the tasks a profile's links point at.
func linkedTasks(tps []cislinesdk.TaskProfile) []string {
	out := []string{}
	for _, tp := range tps {
		if tp.Task != nil {
			out = append(out, tp.Task.Name)
		}
	}
	return out
}

// linkedProfiles names the profiles a task's links point at.
func linkedProfiles(tps []cislinesdk.TaskProfile) []string {
	out := []string{}
	for _, tp := range tps {
		if tp.Profile != nil {
			out = append(out, tp.Profile.Name)
		}
	}
	return out
}

func member(o cislinesdk.Organization, id int64) cislinesdk.Profile {
	for _, p := range o.Profiles {
		if p.ID == id {
			return p
		}
	}
	return cislinesdk.Profile{}
}

func TestSessionTaskLinksAgreeEverywhere(t *testing.T) {
	api := newBackend(t)
	ctx := context.Background()
	s := NewSession(api, zerolog.Nop())
	_, err := s.CreateOrganization(ctx, "Acme", "")
	require.NoError(t, err)
	org := s.Orgs.List()[0]
	jane := createProfile(t, s, api, "Jane", "jane@example.com", &org.ID)
	_, err = s.CreateTask(ctx, cislinesdk.TaskCreate{OrganizationID: org.ID, Name: "Patch servers"})
	require.NoError(t, err)
	task := s.Tasks.List()[0]

	// every cached copy of the join must match what the server now returns
	agree := func(step string) {
		t.Helper()
		freshProfile, err := api.GetProfile(ctx, jane.ID)
		require.NoError(t, err)
		freshOrg, err := api.GetOrganization(ctx, org.ID)
		require.NoError(t, err)
		freshTask, err := api.GetTask(ctx, task.ID)
		require.NoError(t, err)

		p, _ := s.Profiles.Get(jane.ID)
		o, _ := s.Orgs.Get(org.ID)
		cachedTask, _ := s.Tasks.Get(task.ID)
		require.Len(t, o.Tasks, 1, step)

		want := linkedTasks(freshProfile.TaskProfiles)
		assert.Equal(t, want, linkedTasks(p.TaskProfiles), "%s: profile cache", step)
		assert.Equal(t, want, linkedTasks(member(o, jane.ID).TaskProfiles), "%s: organization member", step)
		assert.Equal(t, linkedTasks(member(freshOrg, jane.ID).TaskProfiles), linkedTasks(member(o, jane.ID).TaskProfiles), "%s: server organization member", step)

		wantProfiles := linkedProfiles(freshTask.TaskProfiles)
		assert.Equal(t, wantProfiles, linkedProfiles(cachedTask.TaskProfiles), "%s: task cache", step)
		assert.Equal(t, wantProfiles, linkedProfiles(o.Tasks[0].TaskProfiles), "%s: organization task", step)
	}

	_, err = s.AssignProfile(ctx, task.ID, jane.ID)
	require.NoError(t, err)
	agree("assign")
	p, _ := s.Profiles.Get(jane.ID)
	assert.Equal(t, []string{"Patch servers"}, linkedTasks(p.TaskProfiles))

	_, err = s.UpdateTask(ctx, task.ID, cislinesdk.TaskPatch{Name: cislinesdk.String("Patch servers Q1")})
	require.NoError(t, err)
	agree("rename task")
	o, _ := s.Orgs.Get(org.ID)
	assert.Equal(t, []string{"Patch servers Q1"}, linkedTasks(member(o, jane.ID).TaskProfiles))

	_, err = s.UpdateProfile(ctx, jane.ID, cislinesdk.ProfilePatch{Name: cislinesdk.String("Jane Roe")})
	require.NoError(t, err)
	agree("rename profile")
	cachedTask, _ := s.Tasks.Get(task.ID)
	assert.Equal(t, []string{"Jane Roe"}, linkedProfiles(cachedTask.TaskProfiles))

	_, err = s.UnassignProfile(ctx, task.ID, jane.ID)
	require.NoError(t, err)
	agree("unassign")
	o, _ = s.Orgs.Get(org.ID)
	assert.Empty(t, member(o, jane.ID).TaskProfiles)
}

func TestSessionTrailShowsEventRightAfterMutation(t *testing.T) {
	api := newBackend(t)
	ctx := context.Background()
	s := NewSession(api, zerolog.Nop())
	_, err := s.CreateOrganization(ctx, "Acme", "")
	require.NoError(t, err)
	org := s.Orgs.List()[0]
	_, err = s.CreateTask(ctx, cislinesdk.TaskCreate{OrganizationID: org.ID, Name: "Patch servers"})
	require.NoError(t, err)
	task := s.Tasks.List()[0]
	require.NoError(t, s.Trail.Open(ctx, Ref{TaskEntity, task.ID}))

	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("Patch servers v%d", i)
		_, err = s.UpdateTask(ctx, task.ID, cislinesdk.TaskPatch{Name: cislinesdk.String(name)})
		require.NoError(t, err)
		renames := 0
		for _, ev := range s.Trail.Events() {
			if ev.Message == "Task name changed" {
				renames++
			}
		}
		require.Equal(t, i+1, renames, "round %d", i)
	}
}

type failingUpdates struct {
	*cislinesdk.Client
}

func (failingUpdates) UpdateTask(context.Context, int64, cislinesdk.TaskPatch) (cislinesdk.Task, error) {
	return cislinesdk.Task{}, errors.New("network down")
}

func TestSessionFailedMutationLeavesCacheUntouched(t *testing.T) {
	client := newBackend(t)
	ctx := context.Background()
	s := NewSession(failingUpdates{client}, zerolog.Nop())
	_, err := s.CreateOrganization(ctx, "Acme", "")
	require.NoError(t, err)
	org := s.Orgs.List()[0]
	_, err = s.CreateTask(ctx, cislinesdk.TaskCreate{OrganizationID: org.ID, Name: "Before"})
	require.NoError(t, err)
	task := s.Tasks.List()[0]
	s.Page.Notices()
	s.Page.OpenDialog("edit-task")

	out, err := s.UpdateTask(ctx, task.ID, cislinesdk.TaskPatch{Name: cislinesdk.String("After")})
	require.Error(t, err)
	assert.Equal(t, Failed, out)
	cached, _ := s.Tasks.Get(task.ID)
	assert.Equal(t, "Before", cached.Name)
	assert.Equal(t, "edit-task", s.Page.Dialog())
	notices := s.Page.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "network down", notices[0].Text)

	out, err = s.UpdateTask(ctx, 999, cislinesdk.TaskPatch{Name: cislinesdk.String("x")})
	assert.NoError(t, err)
	assert.Equal(t, Skipped, out, "unknown task is a silent precondition failure")
}

func TestSessionCreateProfileNeedsSettledGate(t *testing.T) {
	api := newBackend(t)
	ctx := context.Background()
	s := NewSession(api, zerolog.Nop())
	gate := NewCredentialGate(api, time.Hour)
	gate.SetEmail(ctx, "ann@example.com")
	gate.SetPassword(ctx, strongPassword)

	out, err := s.CreateProfile(ctx, gate, cislinesdk.ProfileCreate{Name: "Ann", Email: "ann@example.com", Password: strongPassword})
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)

	gate.Flush()
	out, err = s.CreateProfile(ctx, gate, cislinesdk.ProfileCreate{Name: "Ann", Email: "other@example.com", Password: strongPassword})
	require.NoError(t, err)
	assert.Equal(t, Skipped, out, "gate settled for a different email")

	out, err = s.CreateProfile(ctx, gate, cislinesdk.ProfileCreate{Name: "Ann", Email: "ann@example.com", Password: strongPassword})
	require.NoError(t, err)
	assert.Equal(t, Applied, out)
	assert.Equal(t, 1, s.Profiles.Len())
}
