package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"cisline/internal/audit"
	"cisline/internal/catalog"
	"cisline/internal/domain"
	"cisline/internal/repo"
)

type TaskInput struct {
	OrganizationID   int64
	Name             string
	Description      string
	ExpectedEvidence string
	StartAt          *string
	EndAt            *string
	Status           domain.TaskStatus
	Safeguards       []string
	ProfileIDs       []int64
}

// TaskUpdate is a partial task write. An empty StartAt/EndAt clears the date.
type TaskUpdate struct {
	Name             *string
	Description      *string
	ExpectedEvidence *string
	StartAt          *string
	EndAt            *string
	Status           *domain.TaskStatus
}

func taskScope(t domain.Task, actorID string) audit.Scope {
	return audit.Scope{OrganizationID: audit.Int64(t.OrganizationID), TaskID: audit.Int64(t.ID), ActorID: actorID}
}

func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, nil, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", f.Status)}
	}
	return e.Repo.ListTasks(ctx, nil, f)
}

func validSafeguard(id string) (string, error) {
	id = strings.TrimSpace(id)
	if _, ok := catalog.Lookup(id); !ok {
		return "", ValidationError{Field: "safeguard_id", Message: fmt.Sprintf("unknown safeguard %q", id)}
	}
	return id, nil
}

// memberOf fails unless the profile belongs to orgID.
func (e Engine) memberOf(ctx context.Context, tx *sql.Tx, orgID, profileID int64) (domain.Profile, error) {
	p, err := e.Repo.GetProfileRow(ctx, tx, profileID)
	if err != nil {
		return p, err
	}
	if p.OrganizationID == nil || *p.OrganizationID != orgID {
		return p, ConflictError{Message: fmt.Sprintf("profile %d is not a member of organization %d", profileID, orgID)}
	}
	return p, nil
}

func (e Engine) CreateTask(ctx context.Context, in TaskInput, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "CreateTask", actorAttr(actorID), attribute.Int64("cisline.organization_id", in.OrganizationID))
	defer finish(span, &err)

	name, err := required("name", in.Name)
	if err != nil {
		return domain.Task{}, err
	}
	status := in.Status
	if status == "" {
		status = domain.TaskNotStarted
	}
	if !status.Valid() {
		return domain.Task{}, ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	startAt, err := normalizeDate("start_at", in.StartAt)
	if err != nil {
		return domain.Task{}, err
	}
	endAt, err := normalizeDate("end_at", in.EndAt)
	if err != nil {
		return domain.Task{}, err
	}
	safeguards := make([]string, 0, len(in.Safeguards))
	for _, id := range in.Safeguards {
		sg, err := validSafeguard(id)
		if err != nil {
			return domain.Task{}, err
		}
		safeguards = append(safeguards, sg)
	}

	now := e.stamp()
	t := domain.Task{
		OrganizationID:   in.OrganizationID,
		Name:             name,
		Description:      strings.TrimSpace(in.Description),
		ExpectedEvidence: strings.TrimSpace(in.ExpectedEvidence),
		StartAt:          emptyToNil(startAt),
		EndAt:            emptyToNil(endAt),
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOrganizationRow(ctx, tx, in.OrganizationID); err != nil {
			return err
		}
		if err := e.Repo.InsertTask(ctx, tx, &t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		for _, sg := range safeguards {
			if _, err := e.Repo.LinkTaskSafeguard(ctx, tx, t.ID, sg); err != nil {
				return err
			}
		}
		for _, pid := range in.ProfileIDs {
			if _, err := e.memberOf(ctx, tx, t.OrganizationID, pid); err != nil {
				return err
			}
			if _, err := e.Repo.LinkTaskProfile(ctx, tx, t.ID, pid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	span.SetAttributes(attribute.Int64("cisline.task_id", t.ID))
	e.emit(taskScope(t, actorID), audit.Lifecycle(audit.TaskCreated, t.Name))
	return e.Repo.GetTask(ctx, nil, t.ID)
}

func (e Engine) UpdateTask(ctx context.Context, id int64, in TaskUpdate, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "UpdateTask", actorAttr(actorID), attribute.Int64("cisline.task_id", id))
	defer finish(span, &err)

	patch := repo.TaskPatch{
		Description:      trimPtr(in.Description),
		ExpectedEvidence: trimPtr(in.ExpectedEvidence),
		Status:           in.Status,
	}
	if in.Name != nil {
		name, err := required("name", *in.Name)
		if err != nil {
			return domain.Task{}, err
		}
		patch.Name = &name
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.Task{}, ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *patch.Status)}
	}
	if patch.StartAt, err = normalizeDate("start_at", in.StartAt); err != nil {
		return domain.Task{}, err
	}
	if patch.EndAt, err = normalizeDate("end_at", in.EndAt); err != nil {
		return domain.Task{}, err
	}
	if patch.StartAt != nil && *patch.StartAt == "" {
		patch.StartAt, patch.ClearStartAt = nil, true
	}
	if patch.EndAt != nil && *patch.EndAt == "" {
		patch.EndAt, patch.ClearEndAt = nil, true
	}

	var before, after domain.Task
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if before, err = e.Repo.GetTaskRow(ctx, tx, id); err != nil {
			return err
		}
		if err := e.Repo.UpdateTask(ctx, tx, id, patch, e.stamp()); err != nil {
			return err
		}
		after, err = e.Repo.GetTaskRow(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.emit(taskScope(after, actorID), audit.Diff(audit.KindTask, taskSnapshot(before), taskSnapshot(after))...)
	return e.Repo.GetTask(ctx, nil, id)
}

func (e Engine) DeleteTask(ctx context.Context, id int64, actorID string) (err error) {
	ctx, span := e.span(ctx, "DeleteTask", actorAttr(actorID), attribute.Int64("cisline.task_id", id))
	defer finish(span, &err)

	var t domain.Task
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if t, err = e.Repo.GetTaskRow(ctx, tx, id); err != nil {
			return err
		}
		return e.Repo.SoftDeleteTask(ctx, tx, id, e.stamp())
	})
	if err != nil {
		return err
	}
	e.emit(taskScope(t, actorID), audit.Lifecycle(audit.TaskDeleted, t.Name))
	return nil
}

// AssignProfile links a member of the task's organization to the task.
// Linking twice changes nothing and records nothing.
func (e Engine) AssignProfile(ctx context.Context, taskID, profileID int64, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "AssignProfile", actorAttr(actorID),
		attribute.Int64("cisline.task_id", taskID), attribute.Int64("cisline.profile_id", profileID))
	defer finish(span, &err)

	var (
		t       domain.Task
		p       domain.Profile
		changed bool
	)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if t, err = e.Repo.GetTaskRow(ctx, tx, taskID); err != nil {
			return err
		}
		if p, err = e.memberOf(ctx, tx, t.OrganizationID, profileID); err != nil {
			return err
		}
		changed, err = e.Repo.LinkTaskProfile(ctx, tx, taskID, profileID)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	if changed {
		scope := taskScope(t, actorID)
		scope.ProfileID = audit.Int64(profileID)
		e.emit(scope, audit.Lifecycle(audit.ProfileAssigned, p.Name))
	}
	return e.Repo.GetTask(ctx, nil, taskID)
}

func (e Engine) UnassignProfile(ctx context.Context, taskID, profileID int64, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "UnassignProfile", actorAttr(actorID),
		attribute.Int64("cisline.task_id", taskID), attribute.Int64("cisline.profile_id", profileID))
	defer finish(span, &err)

	var (
		t       domain.Task
		p       domain.Profile
		changed bool
	)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if t, err = e.Repo.GetTaskRow(ctx, tx, taskID); err != nil {
			return err
		}
		if p, err = e.Repo.GetProfileRow(ctx, tx, profileID); err != nil {
			return err
		}
		changed, err = e.Repo.UnlinkTaskProfile(ctx, tx, taskID, profileID)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	if changed {
		scope := taskScope(t, actorID)
		scope.ProfileID = audit.Int64(profileID)
		e.emit(scope, audit.Lifecycle(audit.ProfileUnassigned, p.Name))
	}
	return e.Repo.GetTask(ctx, nil, taskID)
}

func (e Engine) LinkArtifact(ctx context.Context, taskID, artifactID int64, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "LinkArtifact", actorAttr(actorID),
		attribute.Int64("cisline.task_id", taskID), attribute.Int64("cisline.artifact_id", artifactID))
	defer finish(span, &err)

	return e.toggleArtifact(ctx, taskID, artifactID, actorID, true)
}

func (e Engine) UnlinkArtifact(ctx context.Context, taskID, artifactID int64, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "UnlinkArtifact", actorAttr(actorID),
		attribute.Int64("cisline.task_id", taskID), attribute.Int64("cisline.artifact_id", artifactID))
	defer finish(span, &err)

	return e.toggleArtifact(ctx, taskID, artifactID, actorID, false)
}

func (e Engine) toggleArtifact(ctx context.Context, taskID, artifactID int64, actorID string, link bool) (domain.Task, error) {
	var (
		t       domain.Task
		a       domain.Artifact
		changed bool
	)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if t, err = e.Repo.GetTaskRow(ctx, tx, taskID); err != nil {
			return err
		}
		if a, err = e.Repo.GetArtifact(ctx, tx, artifactID); err != nil {
			return err
		}
		if link {
			changed, err = e.Repo.LinkTaskArtifact(ctx, tx, taskID, artifactID)
		} else {
			changed, err = e.Repo.UnlinkTaskArtifact(ctx, tx, taskID, artifactID)
		}
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	if changed {
		action := audit.ArtifactAdded
		if !link {
			action = audit.ArtifactRemoved
		}
		e.emit(taskScope(t, actorID), audit.Lifecycle(action, a.Name))
	}
	return e.Repo.GetTask(ctx, nil, taskID)
}

// LinkSafeguard attaches a catalog safeguard to the task. The catalog itself
// is never touched.
func (e Engine) LinkSafeguard(ctx context.Context, taskID int64, safeguardID, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "LinkSafeguard", actorAttr(actorID),
		attribute.Int64("cisline.task_id", taskID), attribute.String("cisline.safeguard_id", safeguardID))
	defer finish(span, &err)

	id, err := validSafeguard(safeguardID)
	if err != nil {
		return domain.Task{}, err
	}
	return e.toggleSafeguard(ctx, taskID, id, actorID, true)
}

// UnlinkSafeguard accepts ids no longer in the catalog so stale links can go.
func (e Engine) UnlinkSafeguard(ctx context.Context, taskID int64, safeguardID, actorID string) (_ domain.Task, err error) {
	ctx, span := e.span(ctx, "UnlinkSafeguard", actorAttr(actorID),
		attribute.Int64("cisline.task_id", taskID), attribute.String("cisline.safeguard_id", safeguardID))
	defer finish(span, &err)

	return e.toggleSafeguard(ctx, taskID, strings.TrimSpace(safeguardID), actorID, false)
}

func (e Engine) toggleSafeguard(ctx context.Context, taskID int64, safeguardID, actorID string, link bool) (domain.Task, error) {
	var (
		t       domain.Task
		changed bool
	)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if t, err = e.Repo.GetTaskRow(ctx, tx, taskID); err != nil {
			return err
		}
		if link {
			changed, err = e.Repo.LinkTaskSafeguard(ctx, tx, taskID, safeguardID)
		} else {
			changed, err = e.Repo.UnlinkTaskSafeguard(ctx, tx, taskID, safeguardID)
		}
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	if changed {
		action := audit.SafeguardLinked
		if !link {
			action = audit.SafeguardUnlinked
		}
		e.emit(taskScope(t, actorID), audit.Lifecycle(action, safeguardID))
	}
	return e.Repo.GetTask(ctx, nil, taskID)
}

// SearchSafeguards searches the catalog. With taskID > 0 the task's linked
// safeguards are left out.
func (e Engine) SearchSafeguards(ctx context.Context, query string, taskID int64) ([]catalog.Safeguard, error) {
	var exclude []string
	if taskID > 0 {
		if _, err := e.Repo.GetTaskRow(ctx, nil, taskID); err != nil {
			return nil, err
		}
		var err error
		if exclude, err = e.Repo.ListTaskSafeguards(ctx, nil, taskID); err != nil {
			return nil, err
		}
	}
	return catalog.Search(query, exclude), nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
