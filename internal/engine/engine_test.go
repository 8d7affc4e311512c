package engine_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cisline/internal/audit"
	"cisline/internal/blob"
	"cisline/internal/db"
	"cisline/internal/domain"
	"cisline/internal/engine"
	"cisline/internal/engine/auth"
	"cisline/internal/migrate"
	"cisline/internal/repo"
)

const strongPassword = "Tr0ub4dour&3-zebra-Quasar!"

type testEnv struct {
	Engine engine.Engine
	Outbox *audit.Outbox
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.Blobs = blob.NewMemory()
	eng.Events.Now = eng.Now
	out := audit.NewOutbox(eng.Events, audit.OutboxOptions{Logger: zerolog.Nop()})
	t.Cleanup(func() { out.Close(context.Background()) })
	eng.Audit = out
	return testEnv{Engine: eng, Outbox: out, Ctx: ctx}
}

// events flushes the outbox and returns the matching events oldest first.
func (env testEnv) events(t *testing.T, f repo.EventFilters) []domain.Event {
	t.Helper()
	if err := env.Outbox.Flush(env.Ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	evs, err := env.Engine.ListEvents(env.Ctx, f)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	return evs
}

func (env testEnv) org(t *testing.T, name string) domain.Organization {
	t.Helper()
	o, err := env.Engine.CreateOrganization(env.Ctx, engine.OrganizationInput{Name: name}, "tester")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	return o
}

func (env testEnv) profile(t *testing.T, name, email string, orgID *int64) domain.Profile {
	t.Helper()
	p, err := env.Engine.CreateProfile(env.Ctx, engine.ProfileInput{Name: name, Email: email, Password: strongPassword, OrganizationID: orgID}, "tester")
	if err != nil {
		t.Fatalf("create profile %s: %v", name, err)
	}
	return p
}

func messages(evs []domain.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Message
	}
	return out
}

func TestCreateOrganizationRecordsHighEvent(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	if len(o.Profiles) != 0 || len(o.Tasks) != 0 || o.Settings != nil {
		t.Fatalf("new org should be empty: %+v", o)
	}
	orgs, err := env.Engine.ListOrganizations(env.Ctx)
	if err != nil || len(orgs) != 1 || orgs[0].ID != o.ID {
		t.Fatalf("list orgs: %v %+v", err, orgs)
	}
	evs := env.events(t, repo.EventFilters{OrganizationID: &o.ID})
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %v", messages(evs))
	}
	if evs[0].Message != `Organization created: "Acme"` || evs[0].Importance != domain.ImportanceHigh {
		t.Fatalf("unexpected event %+v", evs[0])
	}
	if evs[0].ActorID != "tester" {
		t.Fatalf("actor not recorded: %+v", evs[0])
	}
}

func TestCreateOrganizationRequiresName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateOrganization(env.Ctx, engine.OrganizationInput{Name: "   "}, "tester")
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
}

func TestRenameTaskRecordsSingleLowEvent(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Patch servers", Description: "monthly"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.TaskNotStarted {
		t.Fatalf("default status: %s", task.Status)
	}
	name := "Patch servers Q1"
	desc := "  monthly  "
	task, err = env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdate{Name: &name, Description: &desc}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Name != name {
		t.Fatalf("name not updated: %s", task.Name)
	}
	evs := env.events(t, repo.EventFilters{TaskID: &task.ID})
	got := messages(evs)
	if len(got) != 2 || got[0] != `Task created: "Patch servers"` || got[1] != "Task name changed" {
		t.Fatalf("unexpected events %v", got)
	}
	if evs[1].Importance != domain.ImportanceLow {
		t.Fatalf("rename importance: %s", evs[1].Importance)
	}
}

func TestUpdateTaskStatusAndDates(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Inventory"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	status := domain.TaskOpen
	start := "2024-02-01"
	task, err = env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdate{Status: &status, StartAt: &start}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.TaskOpen || task.StartAt == nil || *task.StartAt != start {
		t.Fatalf("unexpected task %+v", task)
	}
	none := ""
	task, err = env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdate{StartAt: &none}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if task.StartAt != nil {
		t.Fatalf("start date not cleared")
	}
	bad := domain.TaskStatus("DONE")
	if _, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdate{Status: &bad}, "tester"); err == nil {
		t.Fatalf("expected invalid status error")
	}
	badDate := "next tuesday"
	if _, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdate{EndAt: &badDate}, "tester"); err == nil {
		t.Fatalf("expected invalid date error")
	}
	got := messages(env.events(t, repo.EventFilters{TaskID: &task.ID}))
	want := []string{`Task created: "Inventory"`, "Task status changed", "Task start date changed", "Task start date changed"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestRemoveProfileFromOrganization(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	a := env.profile(t, "Ann", "ann@example.com", &o.ID)
	jane := env.profile(t, "Jane Doe", "jane@example.com", &o.ID)
	c := env.profile(t, "Carl", "carl@example.com", &o.ID)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Review", ProfileIDs: []int64{jane.ID}}, "tester")
	if err != nil {
		t.Fatal(err)
	}

	o, err = env.Engine.RemoveProfileFromOrganization(env.Ctx, o.ID, jane.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Profiles) != 2 || o.Profiles[0].ID != a.ID || o.Profiles[1].ID != c.ID {
		t.Fatalf("unexpected profiles %+v", o.Profiles)
	}
	task, err = env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(task.TaskProfiles) != 0 {
		t.Fatalf("removed profile still assigned: %+v", task.TaskProfiles)
	}
	evs := env.events(t, repo.EventFilters{ProfileID: &jane.ID})
	last := evs[len(evs)-1]
	if last.Message != `Profile removed: "Jane Doe"` || last.Importance != domain.ImportanceHigh {
		t.Fatalf("unexpected last event %+v", last)
	}
	if _, err := env.Engine.RemoveProfileFromOrganization(env.Ctx, o.ID, jane.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second removal: %v", err)
	}
}

func TestAddProfileToOrganization(t *testing.T) {
	env := newTestEnv(t)
	acme := env.org(t, "Acme")
	globex := env.org(t, "Globex")
	p := env.profile(t, "Pat", "pat@example.com", nil)

	o, err := env.Engine.AddProfileToOrganization(env.Ctx, acme.ID, p.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Profiles) != 1 || o.Profiles[0].ID != p.ID {
		t.Fatalf("profile not added: %+v", o.Profiles)
	}
	if _, err := env.Engine.AddProfileToOrganization(env.Ctx, acme.ID, p.ID, "tester"); err != nil {
		t.Fatalf("re-adding a member should be a no-op: %v", err)
	}
	var ce engine.ConflictError
	if _, err := env.Engine.AddProfileToOrganization(env.Ctx, globex.ID, p.ID, "tester"); !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got := messages(env.events(t, repo.EventFilters{OrganizationID: &acme.ID}))
	if len(got) != 2 || got[1] != `Profile added: "Pat"` {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestSettingsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	up := "/srv/upload"
	if _, err := env.Engine.UpsertSettings(env.Ctx, o.ID, engine.SettingsInput{UploadDirectory: &up}, "tester"); err != nil {
		t.Fatal(err)
	}
	dl := "/srv/download"
	s, err := env.Engine.UpsertSettings(env.Ctx, o.ID, engine.SettingsInput{DownloadDirectory: &dl}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if s.UploadDirectory != up || s.DownloadDirectory != dl {
		t.Fatalf("settings not merged: %+v", s)
	}
	if err := env.Engine.ClearSettings(env.Ctx, o.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.GetOrganization(env.Ctx, o.ID)
	if err != nil || got.Settings != nil {
		t.Fatalf("settings should be gone: %v %+v", err, got.Settings)
	}
	if err := env.Engine.ClearSettings(env.Ctx, o.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("clearing twice: %v", err)
	}
	want := []string{`Organization created: "Acme"`, "Settings created", "Download directory changed", "Settings removed"}
	if g := messages(env.events(t, repo.EventFilters{OrganizationID: &o.ID})); strings.Join(g, "|") != strings.Join(want, "|") {
		t.Fatalf("events = %v", g)
	}
}

func TestCreateProfileCredentialGate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProfile(env.Ctx, engine.ProfileInput{Name: "Weak", Email: "weak@example.com", Password: "password"}, "tester")
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected weak password rejection, got %v", err)
	}
	_, err = env.Engine.CreateProfile(env.Ctx, engine.ProfileInput{Name: "Bad", Email: "not-an-email", Password: strongPassword}, "tester")
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email rejection, got %v", err)
	}
	p := env.profile(t, "Jane", "Jane@Example.com", nil)
	if p.User == nil || p.User.Email != "jane@example.com" || p.User.Role != domain.RoleUser {
		t.Fatalf("unexpected user %+v", p.User)
	}
	_, err = env.Engine.CreateProfile(env.Ctx, engine.ProfileInput{Name: "Dup", Email: "JANE@example.com", Password: strongPassword}, "tester")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict for taken email, got %v", err)
	}
	check, err := env.Engine.CheckEmail(env.Ctx, "jane@example.com")
	if err != nil || !check.Valid || check.Available {
		t.Fatalf("check email: %v %+v", err, check)
	}
	if err := env.Engine.DeleteProfile(env.Ctx, p.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	check, _ = env.Engine.CheckEmail(env.Ctx, "jane@example.com")
	if !check.Available {
		t.Fatalf("email should be free after delete")
	}
	if _, err := env.Engine.GetProfile(env.Ctx, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted profile visible: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	p := env.profile(t, "Jane", "jane@example.com", nil)
	got, err := env.Engine.Authenticate(env.Ctx, "JANE@example.com", strongPassword)
	if err != nil || got.ID != p.ID {
		t.Fatalf("authenticate: %v %+v", err, got)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.Authenticate(env.Ctx, "jane@example.com", "nope"); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateProfileAuditsRole(t *testing.T) {
	env := newTestEnv(t)
	p := env.profile(t, "Jane", "jane@example.com", nil)
	role := domain.RoleAuditor
	fn := "Security"
	p, err := env.Engine.UpdateProfile(env.Ctx, p.ID, repo.ProfilePatch{Role: &role, WorkFunction: &fn}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if p.User.Role != role || p.User.WorkFunction != fn {
		t.Fatalf("user not updated: %+v", p.User)
	}
	evs := env.events(t, repo.EventFilters{ProfileID: &p.ID})
	got := messages(evs)
	if len(got) != 3 || got[1] != "Profile role changed" || got[2] != "Profile work function changed" {
		t.Fatalf("unexpected events %v", got)
	}
	if evs[1].Importance != domain.ImportanceHigh || evs[2].Importance != domain.ImportanceMiddle {
		t.Fatalf("unexpected importance %+v", evs)
	}
	bad := domain.Role("OWNER")
	if _, err := env.Engine.UpdateProfile(env.Ctx, p.ID, repo.ProfilePatch{Role: &bad}, "tester"); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestAssignProfileRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	member := env.profile(t, "Member", "member@example.com", &o.ID)
	outsider := env.profile(t, "Outsider", "outsider@example.com", nil)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Harden"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.AssignProfile(env.Ctx, task.ID, member.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(task.TaskProfiles) != 1 || task.TaskProfiles[0].ProfileID != member.ID {
		t.Fatalf("assignment missing: %+v", task.TaskProfiles)
	}
	if _, err := env.Engine.AssignProfile(env.Ctx, task.ID, member.ID, "tester"); err != nil {
		t.Fatalf("re-assign: %v", err)
	}
	var ce engine.ConflictError
	if _, err := env.Engine.AssignProfile(env.Ctx, task.ID, outsider.ID, "tester"); !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
	p, err := env.Engine.GetProfile(env.Ctx, member.ID)
	if err != nil || len(p.TaskProfiles) != 1 || p.TaskProfiles[0].TaskID != task.ID {
		t.Fatalf("join not visible from profile side: %v %+v", err, p.TaskProfiles)
	}
	task, err = env.Engine.UnassignProfile(env.Ctx, task.ID, member.ID, "tester")
	if err != nil || len(task.TaskProfiles) != 0 {
		t.Fatalf("unassign: %v %+v", err, task.TaskProfiles)
	}
	got := messages(env.events(t, repo.EventFilters{TaskID: &task.ID}))
	want := []string{`Task created: "Harden"`, `Profile assigned: "Member"`, `Profile unassigned: "Member"`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("events = %v", got)
	}
}

func TestSafeguardLinks(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Assets", Safeguards: []string{"1.1"}}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.LinkSafeguard(env.Ctx, task.ID, "1.2", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(task.Safeguards, ",") != "1.1,1.2" {
		t.Fatalf("safeguards = %v", task.Safeguards)
	}
	if _, err := env.Engine.LinkSafeguard(env.Ctx, task.ID, "99.9", "tester"); err == nil {
		t.Fatalf("expected unknown safeguard error")
	}
	found, err := env.Engine.SearchSafeguards(env.Ctx, "inventory", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, sg := range found {
		if sg.ID == "1.1" || sg.ID == "1.2" {
			t.Fatalf("linked safeguard %s not excluded", sg.ID)
		}
	}
	task, err = env.Engine.UnlinkSafeguard(env.Ctx, task.ID, "1.1", "tester")
	if err != nil || strings.Join(task.Safeguards, ",") != "1.2" {
		t.Fatalf("unlink: %v %v", err, task.Safeguards)
	}
	got := messages(env.events(t, repo.EventFilters{TaskID: &task.ID}))
	want := []string{`Task created: "Assets"`, `Safeguard linked: "1.2"`, `Safeguard unlinked: "1.1"`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("events = %v", got)
	}
}

func TestArtifactContentAndAudit(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Evidence"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.CreateArtifact(env.Ctx, engine.ArtifactInput{Name: "scan.pdf", TaskID: &task.ID}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.PutArtifactContent(env.Ctx, a.ID, strings.NewReader("report"), "application/pdf", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if a.Size != 6 || a.ContentType != "application/pdf" || a.BlobKey == "" {
		t.Fatalf("unexpected artifact %+v", a)
	}
	_, rc, err := env.Engine.OpenArtifactContent(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "report" {
		t.Fatalf("content = %q", body)
	}

	desc := "quarterly scan"
	if _, err := env.Engine.UpdateArtifact(env.Ctx, a.ID, repo.ArtifactPatch{Description: &desc}, "tester"); err != nil {
		t.Fatal(err)
	}
	name := "scan-q1.pdf"
	if _, err := env.Engine.UpdateArtifact(env.Ctx, a.ID, repo.ArtifactPatch{Name: &name}, "tester"); err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.UnlinkArtifact(env.Ctx, task.ID, a.ID, "tester")
	if err != nil || len(task.TaskArtifacts) != 0 {
		t.Fatalf("unlink: %v %+v", err, task.TaskArtifacts)
	}
	got := messages(env.events(t, repo.EventFilters{TaskID: &task.ID}))
	want := []string{`Task created: "Evidence"`, `Artifact added: "scan.pdf"`, "Artifact name changed", `Artifact removed: "scan-q1.pdf"`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("events = %v", got)
	}
}

func TestMessagesSenderOnly(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Chat"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.PostMessage(env.Ctx, engine.MessageInput{TaskID: task.ID, Content: "hello"}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != domain.MessageUser || m.IsRead {
		t.Fatalf("unexpected message %+v", m)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.EditMessage(env.Ctx, m.ID, "hijack", "bob"); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden edit, got %v", err)
	}
	if err := env.Engine.DeleteMessage(env.Ctx, m.ID, "bob"); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	m, err = env.Engine.EditMessage(env.Ctx, m.ID, "hello all", "alice")
	if err != nil || m.Content != "hello all" {
		t.Fatalf("edit: %v %+v", err, m)
	}
	if m, err = env.Engine.MarkMessageRead(env.Ctx, m.ID, "bob"); err != nil || !m.IsRead {
		t.Fatalf("mark read: %v %+v", err, m)
	}
	if err := env.Engine.DeleteMessage(env.Ctx, m.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	list, err := env.Engine.ListMessages(env.Ctx, task.ID)
	if err != nil || len(list) != 0 {
		t.Fatalf("messages left: %v %+v", err, list)
	}
}

func TestDeleteOrganizationHidesTasks(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	p := env.profile(t, "Pat", "pat@example.com", &o.ID)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OrganizationID: o.ID, Name: "Gone"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteOrganization(env.Ctx, o.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetOrganization(env.Ctx, o.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted org visible: %v", err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{OrganizationID: &o.ID})
	if err != nil || len(tasks) != 0 {
		t.Fatalf("tasks of deleted org visible: %v %+v", err, tasks)
	}
	p, err = env.Engine.GetProfile(env.Ctx, p.ID)
	if err != nil || p.OrganizationID != nil {
		t.Fatalf("profile should be unassigned: %v %+v", err, p)
	}
	evs := env.events(t, repo.EventFilters{OrganizationID: &o.ID})
	if evs[len(evs)-1].Message != `Organization deleted: "Acme"` {
		t.Fatalf("unexpected events %v", messages(evs))
	}
}

func TestAppendEventValidates(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	ev, err := env.Engine.AppendEvent(env.Ctx, engine.EventInput{Message: " Manual note ", OrganizationID: &o.ID}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == 0 || ev.Message != "Manual note" || ev.Importance != domain.ImportanceLow {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := env.Engine.AppendEvent(env.Ctx, engine.EventInput{Message: "x", Importance: "URGENT"}, "tester"); err == nil {
		t.Fatalf("expected invalid importance error")
	}
	high := env.events(t, repo.EventFilters{OrganizationID: &o.ID, Importance: domain.ImportanceHigh})
	if len(high) != 1 {
		t.Fatalf("importance filter: %v", messages(high))
	}
}

func TestMutationReturnsAfterItsAuditEventsLand(t *testing.T) {
	env := newTestEnv(t)
	o := env.org(t, "Acme")
	name := "Acme Corp"
	if _, err := env.Engine.UpdateOrganization(env.Ctx, o.ID, repo.OrganizationPatch{Name: &name}, "tester"); err != nil {
		t.Fatalf("update org: %v", err)
	}
	// read straight from the store, no flush
	evs, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{OrganizationID: &o.ID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(evs) != 2 || evs[0].Message != "Organization name changed" {
		t.Fatalf("events not visible after mutation: %v", messages(evs))
	}
}

// stuckAuditor accepts intents and never reports them settled.
type stuckAuditor struct{ calls int }

func (a *stuckAuditor) Enqueue(...audit.Intent) <-chan struct{} {
	a.calls++
	return make(chan struct{})
}

func TestSlowAuditNeverFailsMutation(t *testing.T) {
	env := newTestEnv(t)
	stuck := &stuckAuditor{}
	env.Engine.Audit = stuck
	env.Engine.AuditWait = 20 * time.Millisecond

	start := time.Now()
	o, err := env.Engine.CreateOrganization(env.Ctx, engine.OrganizationInput{Name: "Acme"}, "tester")
	if err != nil || o.ID == 0 {
		t.Fatalf("create org: %v %+v", err, o)
	}
	if stuck.calls != 1 {
		t.Fatalf("auditor calls=%d", stuck.calls)
	}
	if waited := time.Since(start); waited > 2*time.Second {
		t.Fatalf("mutation waited %v for a stuck auditor", waited)
	}
}
