package state

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	cislinesdk "cisline/sdk/go"
)

// API is the part of the cisline client a Session drives. *cislinesdk.Client
// implements it.
type API interface {
	EventLister
	CredentialChecker

	ListOrganizations(ctx context.Context) ([]cislinesdk.Organization, error)
	CreateOrganization(ctx context.Context, name, description string) (cislinesdk.Organization, error)
	UpdateOrganization(ctx context.Context, id int64, patch cislinesdk.OrganizationPatch) (cislinesdk.Organization, error)
	DeleteOrganization(ctx context.Context, id int64) error
	PutSettings(ctx context.Context, orgID int64, patch cislinesdk.SettingsPatch) (cislinesdk.Settings, error)
	DeleteSettings(ctx context.Context, orgID int64) error
	AddProfileToOrganization(ctx context.Context, orgID, profileID int64) (cislinesdk.Organization, error)
	RemoveProfileFromOrganization(ctx context.Context, orgID, profileID int64) (cislinesdk.Organization, error)

	ListProfiles(ctx context.Context, q cislinesdk.ProfileQuery) ([]cislinesdk.Profile, error)
	CreateProfile(ctx context.Context, in cislinesdk.ProfileCreate) (cislinesdk.Profile, error)
	UpdateProfile(ctx context.Context, id int64, patch cislinesdk.ProfilePatch) (cislinesdk.Profile, error)
	DeleteProfile(ctx context.Context, id int64) error

	ListTasks(ctx context.Context, q cislinesdk.TaskQuery) ([]cislinesdk.Task, error)
	CreateTask(ctx context.Context, in cislinesdk.TaskCreate) (cislinesdk.Task, error)
	UpdateTask(ctx context.Context, id int64, patch cislinesdk.TaskPatch) (cislinesdk.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	AssignProfile(ctx context.Context, taskID, profileID int64) (cislinesdk.Task, error)
	UnassignProfile(ctx context.Context, taskID, profileID int64) (cislinesdk.Task, error)
	LinkArtifact(ctx context.Context, taskID, artifactID int64) (cislinesdk.Task, error)
	UnlinkArtifact(ctx context.Context, taskID, artifactID int64) (cislinesdk.Task, error)
	LinkSafeguard(ctx context.Context, taskID int64, safeguardID string) (cislinesdk.Task, error)
	UnlinkSafeguard(ctx context.Context, taskID int64, safeguardID string) (cislinesdk.Task, error)
}

var _ API = (*cislinesdk.Client)(nil)

// Session is the client-side view of one workspace: a normalized cache per
// entity kind, the page state and the audit tab. Every mutation goes
// through Run, and on success patches every cached entity that embeds the
// changed one.
type Session struct {
	api API
	log zerolog.Logger

	Page     *Page
	Orgs     *Projection[int64, cislinesdk.Organization]
	Profiles *Projection[int64, cislinesdk.Profile]
	Tasks    *Projection[int64, cislinesdk.Task]
	Trail    *Trail
}

func NewSession(api API, log zerolog.Logger) *Session {
	return &Session{
		api:      api,
		log:      log,
		Page:     NewPage(),
		Orgs:     NewProjection(cislinesdk.Organization.Key),
		Profiles: NewProjection(cislinesdk.Profile.Key),
		Tasks:    NewProjection(cislinesdk.Task.Key),
		Trail:    NewTrail(api, log),
	}
}

func taskProfileByProfile(tp cislinesdk.TaskProfile) int64 { return tp.ProfileID }
func taskProfileByTask(tp cislinesdk.TaskProfile) int64    { return tp.TaskID }

// Load fetches every collection once.
func (s *Session) Load(ctx context.Context) error {
	orgs, err := s.api.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("load organizations: %w", err)
	}
	profiles, err := s.api.ListProfiles(ctx, cislinesdk.ProfileQuery{})
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	tasks, err := s.api.ListTasks(ctx, cislinesdk.TaskQuery{})
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	s.Orgs.Load(orgs)
	s.Profiles.Load(profiles)
	s.Tasks.Load(tasks)
	return nil
}

func (s *Session) hasOrg(id int64) func() bool {
	return func() bool { _, ok := s.Orgs.Get(id); return ok }
}

func (s *Session) hasTask(id int64) func() bool {
	return func() bool { _, ok := s.Tasks.Get(id); return ok }
}

func (s *Session) hasProfile(id int64) func() bool {
	return func() bool { _, ok := s.Profiles.Get(id); return ok }
}

func both(a, b func() bool) func() bool {
	return func() bool { return a() && b() }
}

// taskRow is t as the server embeds it in a profile's task links.
func taskRow(t cislinesdk.Task) *cislinesdk.Task {
	t.TaskProfiles, t.TaskArtifacts, t.Safeguards = nil, nil, nil
	return &t
}

// profileRow is p as the server embeds it in a task's profile links.
func profileRow(p cislinesdk.Profile) *cislinesdk.Profile {
	p.TaskProfiles = nil
	return &p
}

// linkTask makes p's link to t match whether t lists p. Links stay ordered
// by task id, as the server returns them.
func linkTask(p cislinesdk.Profile, t cislinesdk.Task, linked bool) cislinesdk.Profile {
	if !linked {
		if HasChild(p.TaskProfiles, taskProfileByTask, t.ID) {
			p.TaskProfiles = RemoveChild(p.TaskProfiles, taskProfileByTask, t.ID)
		}
		return p
	}
	links := UpsertChild(p.TaskProfiles, taskProfileByTask, cislinesdk.TaskProfile{TaskID: t.ID, ProfileID: p.ID, Task: taskRow(t)})
	slices.SortStableFunc(links, func(a, b cislinesdk.TaskProfile) int { return cmp.Compare(a.TaskID, b.TaskID) })
	p.TaskProfiles = links
	return p
}

// putTask stores t, mirrors it into its organization's task list and
// rewrites t's link on every cached profile, both the flat ones and the
// organization's members.
func (s *Session) putTask(t cislinesdk.Task) {
	linked := map[int64]bool{}
	for _, tp := range t.TaskProfiles {
		linked[tp.ProfileID] = true
	}
	link := func(p cislinesdk.Profile) cislinesdk.Profile { return linkTask(p, t, linked[p.ID]) }

	s.Tasks.Upsert(t)
	s.Profiles.ApplyAll(link)
	s.Orgs.Apply(t.OrganizationID, func(o cislinesdk.Organization) cislinesdk.Organization {
		o.Tasks = UpsertChild(o.Tasks, cislinesdk.Task.Key, t)
		o.Profiles = ApplyChildren(o.Profiles, link)
		return o
	})
}

// putProfile stores p, mirrors it into its organization's member list and
// refreshes the copy embedded in each task it is linked to.
func (s *Session) putProfile(p cislinesdk.Profile) {
	row := profileRow(p)
	refresh := func(t cislinesdk.Task) cislinesdk.Task {
		t.TaskProfiles = ReplaceChild(t.TaskProfiles, taskProfileByProfile, p.ID, cislinesdk.TaskProfile{TaskID: t.ID, ProfileID: p.ID, Profile: row})
		return t
	}

	s.Profiles.Upsert(p)
	s.Tasks.ApplyAll(refresh)
	s.Orgs.ApplyAll(func(o cislinesdk.Organization) cislinesdk.Organization {
		if p.OrganizationID != nil && *p.OrganizationID == o.ID {
			o.Profiles = UpsertChild(o.Profiles, cislinesdk.Profile.Key, p)
		}
		o.Tasks = ApplyChildren(o.Tasks, refresh)
		return o
	})
}

// Organizations

func (s *Session) CreateOrganization(ctx context.Context, name, description string) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Organization]{
		Key:   "create:organization",
		Ready: func() bool { return strings.TrimSpace(name) != "" },
		Request: func(ctx context.Context) (cislinesdk.Organization, error) {
			return s.api.CreateOrganization(ctx, name, description)
		},
		Apply:   s.Orgs.Upsert,
		Success: "Organization created",
	})
	return out, err
}

func (s *Session) UpdateOrganization(ctx context.Context, id int64, patch cislinesdk.OrganizationPatch) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Organization]{
		Key:   fmt.Sprintf("save:organization:%d", id),
		Ready: s.hasOrg(id),
		Request: func(ctx context.Context) (cislinesdk.Organization, error) {
			return s.api.UpdateOrganization(ctx, id, patch)
		},
		Apply: func(o cislinesdk.Organization) {
			s.Orgs.Upsert(o)
			s.Trail.Touched(ctx, Ref{OrganizationEntity, id})
		},
		Success: "Organization updated",
	})
	return out, err
}

// DeleteOrganization drops the organization and its tasks; its members
// become unassigned.
func (s *Session) DeleteOrganization(ctx context.Context, id int64) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[struct{}]{
		Key:   fmt.Sprintf("delete:organization:%d", id),
		Ready: s.hasOrg(id),
		Request: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.api.DeleteOrganization(ctx, id)
		},
		Apply: func(struct{}) {
			gone := map[int64]bool{}
			for _, t := range s.Tasks.List() {
				if t.OrganizationID == id {
					gone[t.ID] = true
					s.Tasks.Remove(t.ID)
				}
			}
			s.Profiles.ApplyAll(func(p cislinesdk.Profile) cislinesdk.Profile {
				if p.OrganizationID != nil && *p.OrganizationID == id {
					p.OrganizationID = nil
				}
				kept := p.TaskProfiles[:0:0]
				for _, tp := range p.TaskProfiles {
					if !gone[tp.TaskID] {
						kept = append(kept, tp)
					}
				}
				p.TaskProfiles = kept
				return p
			})
			s.Orgs.Remove(id)
		},
		Success: "Organization deleted",
	})
	return out, err
}

func (s *Session) SaveSettings(ctx context.Context, orgID int64, patch cislinesdk.SettingsPatch) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Settings]{
		Key:   fmt.Sprintf("settings:organization:%d", orgID),
		Ready: s.hasOrg(orgID),
		Request: func(ctx context.Context) (cislinesdk.Settings, error) {
			return s.api.PutSettings(ctx, orgID, patch)
		},
		Apply: func(st cislinesdk.Settings) {
			s.Orgs.Apply(orgID, func(o cislinesdk.Organization) cislinesdk.Organization {
				o.Settings = &st
				return o
			})
			s.Trail.Touched(ctx, Ref{OrganizationEntity, orgID})
		},
		Success: "Settings saved",
	})
	return out, err
}

func (s *Session) ClearSettings(ctx context.Context, orgID int64) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[struct{}]{
		Key: fmt.Sprintf("settings:organization:%d", orgID),
		Ready: func() bool {
			o, ok := s.Orgs.Get(orgID)
			return ok && o.Settings != nil
		},
		Request: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.api.DeleteSettings(ctx, orgID)
		},
		Apply: func(struct{}) {
			s.Orgs.Apply(orgID, func(o cislinesdk.Organization) cislinesdk.Organization {
				o.Settings = nil
				return o
			})
			s.Trail.Touched(ctx, Ref{OrganizationEntity, orgID})
		},
		Success: "Settings removed",
	})
	return out, err
}

func (s *Session) AddProfileToOrganization(ctx context.Context, orgID, profileID int64) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Organization]{
		Key:   fmt.Sprintf("members:organization:%d", orgID),
		Ready: both(s.hasOrg(orgID), s.hasProfile(profileID)),
		Request: func(ctx context.Context) (cislinesdk.Organization, error) {
			return s.api.AddProfileToOrganization(ctx, orgID, profileID)
		},
		Apply: func(o cislinesdk.Organization) {
			s.Orgs.Upsert(o)
			s.Profiles.Apply(profileID, func(p cislinesdk.Profile) cislinesdk.Profile {
				p.OrganizationID = &orgID
				return p
			})
			s.Trail.Touched(ctx, Ref{OrganizationEntity, orgID}, Ref{ProfileEntity, profileID})
		},
		Success: "Profile added",
	})
	return out, err
}

// RemoveProfileFromOrganization also drops the profile from the
// organization's tasks, as the server does.
func (s *Session) RemoveProfileFromOrganization(ctx context.Context, orgID, profileID int64) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Organization]{
		Key:   fmt.Sprintf("members:organization:%d", orgID),
		Ready: both(s.hasOrg(orgID), s.hasProfile(profileID)),
		Request: func(ctx context.Context) (cislinesdk.Organization, error) {
			return s.api.RemoveProfileFromOrganization(ctx, orgID, profileID)
		},
		Apply: func(cislinesdk.Organization) {
			orgTasks := map[int64]bool{}
			s.Orgs.Apply(orgID, func(o cislinesdk.Organization) cislinesdk.Organization {
				o.Profiles = RemoveChild(o.Profiles, cislinesdk.Profile.Key, profileID)
				for _, t := range o.Tasks {
					orgTasks[t.ID] = true
				}
				o.Tasks = unassignFromTasks(o.Tasks, profileID)
				return o
			})
			for id := range orgTasks {
				s.Tasks.Apply(id, func(t cislinesdk.Task) cislinesdk.Task {
					t.TaskProfiles = RemoveChild(t.TaskProfiles, taskProfileByProfile, profileID)
					return t
				})
			}
			s.Profiles.Apply(profileID, func(p cislinesdk.Profile) cislinesdk.Profile {
				p.OrganizationID = nil
				kept := p.TaskProfiles[:0:0]
				for _, tp := range p.TaskProfiles {
					if !orgTasks[tp.TaskID] {
						kept = append(kept, tp)
					}
				}
				p.TaskProfiles = kept
				return p
			})
			s.Trail.Touched(ctx, Ref{OrganizationEntity, orgID}, Ref{ProfileEntity, profileID})
		},
		Success: "Profile removed",
	})
	return out, err
}

func unassignFromTasks(tasks []cislinesdk.Task, profileID int64) []cislinesdk.Task {
	out := make([]cislinesdk.Task, len(tasks))
	for i, t := range tasks {
		t.TaskProfiles = RemoveChild(t.TaskProfiles, taskProfileByProfile, profileID)
		out[i] = t
	}
	return out
}

// Profiles

// CreateProfile runs only once gate has settled valid for exactly the email
// and password being submitted.
func (s *Session) CreateProfile(ctx context.Context, gate *CredentialGate, in cislinesdk.ProfileCreate) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Profile]{
		Key: "create:profile",
		Ready: func() bool {
			if gate == nil || !gate.Ready() || strings.TrimSpace(in.Name) == "" {
				return false
			}
			email, pw := gate.Values()
			return email == in.Email && pw == in.Password
		},
		Request: func(ctx context.Context) (cislinesdk.Profile, error) {
			return s.api.CreateProfile(ctx, in)
		},
		Apply: func(p cislinesdk.Profile) {
			s.putProfile(p)
			if p.OrganizationID != nil {
				s.Trail.Touched(ctx, Ref{OrganizationEntity, *p.OrganizationID})
			}
		},
		Success: "Profile created",
	})
	return out, err
}

func (s *Session) UpdateProfile(ctx context.Context, id int64, patch cislinesdk.ProfilePatch) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Profile]{
		Key:   fmt.Sprintf("save:profile:%d", id),
		Ready: s.hasProfile(id),
		Request: func(ctx context.Context) (cislinesdk.Profile, error) {
			return s.api.UpdateProfile(ctx, id, patch)
		},
		Apply: func(p cislinesdk.Profile) {
			s.putProfile(p)
			s.Trail.Touched(ctx, Ref{ProfileEntity, id})
		},
		Success: "Profile updated",
	})
	return out, err
}

func (s *Session) DeleteProfile(ctx context.Context, id int64) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[struct{}]{
		Key:   fmt.Sprintf("delete:profile:%d", id),
		Ready: s.hasProfile(id),
		Request: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.api.DeleteProfile(ctx, id)
		},
		Apply: func(struct{}) {
			s.Profiles.Remove(id)
			s.Orgs.ApplyAll(func(o cislinesdk.Organization) cislinesdk.Organization {
				o.Profiles = RemoveChild(o.Profiles, cislinesdk.Profile.Key, id)
				o.Tasks = unassignFromTasks(o.Tasks, id)
				return o
			})
			s.Tasks.ApplyAll(func(t cislinesdk.Task) cislinesdk.Task {
				t.TaskProfiles = RemoveChild(t.TaskProfiles, taskProfileByProfile, id)
				return t
			})
		},
		Success: "Profile deleted",
	})
	return out, err
}

// Tasks

func (s *Session) CreateTask(ctx context.Context, in cislinesdk.TaskCreate) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Task]{
		Key: fmt.Sprintf("create:task:%d", in.OrganizationID),
		Ready: func() bool {
			return strings.TrimSpace(in.Name) != "" && s.hasOrg(in.OrganizationID)()
		},
		Request: func(ctx context.Context) (cislinesdk.Task, error) {
			return s.api.CreateTask(ctx, in)
		},
		Apply: func(t cislinesdk.Task) {
			s.putTask(t)
			s.Trail.Touched(ctx, Ref{OrganizationEntity, t.OrganizationID})
		},
		Success: "Task created",
	})
	return out, err
}

func (s *Session) UpdateTask(ctx context.Context, id int64, patch cislinesdk.TaskPatch) (Outcome, error) {
	return s.taskMutation(ctx, fmt.Sprintf("save:task:%d", id), id, "Task updated", func(ctx context.Context) (cislinesdk.Task, error) {
		return s.api.UpdateTask(ctx, id, patch)
	}, nil)
}

func (s *Session) DeleteTask(ctx context.Context, id int64) (Outcome, error) {
	t, _ := s.Tasks.Get(id)
	out, _, err := Run(ctx, s.Page, Mutation[struct{}]{
		Key:   fmt.Sprintf("delete:task:%d", id),
		Ready: s.hasTask(id),
		Request: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.api.DeleteTask(ctx, id)
		},
		Apply: func(struct{}) {
			unlink := func(p cislinesdk.Profile) cislinesdk.Profile {
				return linkTask(p, cislinesdk.Task{ID: id}, false)
			}
			s.Tasks.Remove(id)
			s.Orgs.Apply(t.OrganizationID, func(o cislinesdk.Organization) cislinesdk.Organization {
				o.Tasks = RemoveChild(o.Tasks, cislinesdk.Task.Key, id)
				o.Profiles = ApplyChildren(o.Profiles, unlink)
				return o
			})
			s.Profiles.ApplyAll(unlink)
			s.Trail.Touched(ctx, Ref{OrganizationEntity, t.OrganizationID})
		},
		Success: "Task deleted",
	})
	return out, err
}

func (s *Session) AssignProfile(ctx context.Context, taskID, profileID int64) (Outcome, error) {
	return s.taskMutation(ctx, fmt.Sprintf("links:task:%d", taskID), taskID, "Profile assigned", func(ctx context.Context) (cislinesdk.Task, error) {
		return s.api.AssignProfile(ctx, taskID, profileID)
	}, func(cislinesdk.Task) {
		s.Trail.Touched(ctx, Ref{ProfileEntity, profileID})
	}, s.hasProfile(profileID))
}

func (s *Session) UnassignProfile(ctx context.Context, taskID, profileID int64) (Outcome, error) {
	return s.taskMutation(ctx, fmt.Sprintf("links:task:%d", taskID), taskID, "Profile unassigned", func(ctx context.Context) (cislinesdk.Task, error) {
		return s.api.UnassignProfile(ctx, taskID, profileID)
	}, func(cislinesdk.Task) {
		s.Trail.Touched(ctx, Ref{ProfileEntity, profileID})
	})
}

func (s *Session) LinkArtifact(ctx context.Context, taskID, artifactID int64) (Outcome, error) {
	return s.taskMutation(ctx, fmt.Sprintf("links:task:%d", taskID), taskID, "Artifact added", func(ctx context.Context) (cislinesdk.Task, error) {
		return s.api.LinkArtifact(ctx, taskID, artifactID)
	}, nil)
}

func (s *Session) UnlinkArtifact(ctx context.Context, taskID, artifactID int64) (Outcome, error) {
	return s.taskMutation(ctx, fmt.Sprintf("links:task:%d", taskID), taskID, "Artifact removed", func(ctx context.Context) (cislinesdk.Task, error) {
		return s.api.UnlinkArtifact(ctx, taskID, artifactID)
	}, nil)
}

func (s *Session) LinkSafeguard(ctx context.Context, taskID int64, safeguardID string) (Outcome, error) {
	return s.taskMutation(ctx, fmt.Sprintf("links:task:%d", taskID), taskID, "Safeguard linked", func(ctx context.Context) (cislinesdk.Task, error) {
		return s.api.LinkSafeguard(ctx, taskID, safeguardID)
	}, nil, func() bool { return strings.TrimSpace(safeguardID) != "" })
}

func (s *Session) UnlinkSafeguard(ctx context.Context, taskID int64, safeguardID string) (Outcome, error) {
	return s.taskMutation(ctx, fmt.Sprintf("links:task:%d", taskID), taskID, "Safeguard unlinked", func(ctx context.Context) (cislinesdk.Task, error) {
		return s.api.UnlinkSafeguard(ctx, taskID, safeguardID)
	}, nil)
}

// taskMutation runs a request returning the updated task, stores it through
// putTask, then runs extra.
func (s *Session) taskMutation(ctx context.Context, key string, taskID int64, success string,
	req func(context.Context) (cislinesdk.Task, error), extra func(cislinesdk.Task), ready ...func() bool) (Outcome, error) {
	out, _, err := Run(ctx, s.Page, Mutation[cislinesdk.Task]{
		Key: key,
		Ready: func() bool {
			if !s.hasTask(taskID)() {
				return false
			}
			for _, r := range ready {
				if !r() {
					return false
				}
			}
			return true
		},
		Request: req,
		Apply: func(t cislinesdk.Task) {
			s.putTask(t)
			if extra != nil {
				extra(t)
			}
			s.Trail.Touched(ctx, Ref{TaskEntity, t.ID}, Ref{OrganizationEntity, t.OrganizationID})
		},
		Success: success,
	})
	return out, err
}
