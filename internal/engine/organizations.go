package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"cisline/internal/audit"
	"cisline/internal/domain"
	"cisline/internal/repo"
)

type OrganizationInput struct {
	Name        string
	Description string
}

// SettingsInput is a partial settings write; nil fields keep their value.
type SettingsInput struct {
	UploadDirectory   *string
	DownloadDirectory *string
	ArtifactDirectory *string
}

func orgScope(orgID int64, actorID string) audit.Scope {
	return audit.Scope{OrganizationID: audit.Int64(orgID), ActorID: actorID}
}

func (e Engine) GetOrganization(ctx context.Context, id int64) (domain.Organization, error) {
	return e.Repo.GetOrganization(ctx, nil, id)
}

func (e Engine) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	orgs, err := e.Repo.ListOrganizations(ctx)
	if orgs == nil {
		orgs = []domain.Organization{}
	}
	return orgs, err
}

func (e Engine) CreateOrganization(ctx context.Context, in OrganizationInput, actorID string) (_ domain.Organization, err error) {
	ctx, span := e.span(ctx, "CreateOrganization", actorAttr(actorID))
	defer finish(span, &err)

	name, err := required("name", in.Name)
	if err != nil {
		return domain.Organization{}, err
	}
	now := e.stamp()
	o := domain.Organization{Name: name, Description: in.Description, CreatedAt: now, UpdatedAt: now}
	if err := e.Repo.InsertOrganization(ctx, nil, &o); err != nil {
		return domain.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	span.SetAttributes(attribute.Int64("cisline.organization_id", o.ID))
	e.emit(orgScope(o.ID, actorID), audit.Lifecycle(audit.OrganizationCreated, o.Name))
	return e.Repo.GetOrganization(ctx, nil, o.ID)
}

func (e Engine) UpdateOrganization(ctx context.Context, id int64, patch repo.OrganizationPatch, actorID string) (_ domain.Organization, err error) {
	ctx, span := e.span(ctx, "UpdateOrganization", actorAttr(actorID), attribute.Int64("cisline.organization_id", id))
	defer finish(span, &err)

	if patch.Name != nil {
		name, err := required("name", *patch.Name)
		if err != nil {
			return domain.Organization{}, err
		}
		patch.Name = &name
	}
	var before, after domain.Organization
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if before, err = e.Repo.GetOrganizationRow(ctx, tx, id); err != nil {
			return err
		}
		if err := e.Repo.UpdateOrganization(ctx, tx, id, patch, e.stamp()); err != nil {
			return err
		}
		after, err = e.Repo.GetOrganizationRow(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Organization{}, err
	}
	e.emit(orgScope(id, actorID), audit.Diff(audit.KindOrganization, organizationSnapshot(before), organizationSnapshot(after))...)
	return e.Repo.GetOrganization(ctx, nil, id)
}

func (e Engine) DeleteOrganization(ctx context.Context, id int64, actorID string) (err error) {
	ctx, span := e.span(ctx, "DeleteOrganization", actorAttr(actorID), attribute.Int64("cisline.organization_id", id))
	defer finish(span, &err)

	var o domain.Organization
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if o, err = e.Repo.GetOrganizationRow(ctx, tx, id); err != nil {
			return err
		}
		return e.Repo.SoftDeleteOrganization(ctx, tx, id, e.stamp())
	})
	if err != nil {
		return err
	}
	e.emit(orgScope(id, actorID), audit.Lifecycle(audit.OrganizationDeleted, o.Name))
	return nil
}

// UpsertSettings creates the settings row on first write, otherwise patches it.
func (e Engine) UpsertSettings(ctx context.Context, orgID int64, in SettingsInput, actorID string) (_ domain.Settings, err error) {
	ctx, span := e.span(ctx, "UpsertSettings", actorAttr(actorID), attribute.Int64("cisline.organization_id", orgID))
	defer finish(span, &err)

	var before *domain.Settings
	var after domain.Settings
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOrganizationRow(ctx, tx, orgID); err != nil {
			return err
		}
		var err error
		if before, err = e.Repo.GetSettings(ctx, tx, orgID); err != nil {
			return err
		}
		after = domain.Settings{OrganizationID: orgID}
		if before != nil {
			after = *before
		}
		if v := trimPtr(in.UploadDirectory); v != nil {
			after.UploadDirectory = *v
		}
		if v := trimPtr(in.DownloadDirectory); v != nil {
			after.DownloadDirectory = *v
		}
		if v := trimPtr(in.ArtifactDirectory); v != nil {
			after.ArtifactDirectory = *v
		}
		return e.Repo.UpsertSettings(ctx, tx, after, e.stamp())
	})
	if err != nil {
		return domain.Settings{}, err
	}
	if before == nil {
		e.emit(orgScope(orgID, actorID), audit.Lifecycle(audit.SettingsCreated, ""))
	} else {
		e.emit(orgScope(orgID, actorID), audit.Diff(audit.KindSettings, settingsSnapshot(before), settingsSnapshot(&after))...)
	}
	return after, nil
}

// ClearSettings removes the settings row; the organization goes back to having none.
func (e Engine) ClearSettings(ctx context.Context, orgID int64, actorID string) (err error) {
	ctx, span := e.span(ctx, "ClearSettings", actorAttr(actorID), attribute.Int64("cisline.organization_id", orgID))
	defer finish(span, &err)

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOrganizationRow(ctx, tx, orgID); err != nil {
			return err
		}
		removed, err := e.Repo.DeleteSettings(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if !removed {
			return repo.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(orgScope(orgID, actorID), audit.Lifecycle(audit.SettingsRemoved, ""))
	return nil
}

// AddProfileToOrganization assigns an unassigned profile. Adding a member
// again is a no-op; a profile owned by another organization is a conflict.
func (e Engine) AddProfileToOrganization(ctx context.Context, orgID, profileID int64, actorID string) (_ domain.Organization, err error) {
	ctx, span := e.span(ctx, "AddProfileToOrganization", actorAttr(actorID),
		attribute.Int64("cisline.organization_id", orgID), attribute.Int64("cisline.profile_id", profileID))
	defer finish(span, &err)

	var (
		p       domain.Profile
		changed bool
	)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOrganizationRow(ctx, tx, orgID); err != nil {
			return err
		}
		var err error
		if p, err = e.Repo.GetProfileRow(ctx, tx, profileID); err != nil {
			return err
		}
		switch {
		case p.OrganizationID == nil:
		case *p.OrganizationID == orgID:
			return nil
		default:
			return ConflictError{Message: fmt.Sprintf("profile %d belongs to organization %d", profileID, *p.OrganizationID)}
		}
		changed = true
		return e.Repo.SetProfileOrganization(ctx, tx, profileID, &orgID)
	})
	if err != nil {
		return domain.Organization{}, err
	}
	if changed {
		scope := orgScope(orgID, actorID)
		scope.ProfileID = audit.Int64(profileID)
		e.emit(scope, audit.Lifecycle(audit.ProfileAdded, p.Name))
	}
	return e.Repo.GetOrganization(ctx, nil, orgID)
}

// RemoveProfileFromOrganization unassigns the profile and drops it from the
// organization's tasks.
func (e Engine) RemoveProfileFromOrganization(ctx context.Context, orgID, profileID int64, actorID string) (_ domain.Organization, err error) {
	ctx, span := e.span(ctx, "RemoveProfileFromOrganization", actorAttr(actorID),
		attribute.Int64("cisline.organization_id", orgID), attribute.Int64("cisline.profile_id", profileID))
	defer finish(span, &err)

	var p domain.Profile
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOrganizationRow(ctx, tx, orgID); err != nil {
			return err
		}
		var err error
		if p, err = e.Repo.GetProfileRow(ctx, tx, profileID); err != nil {
			return err
		}
		if p.OrganizationID == nil || *p.OrganizationID != orgID {
			return fmt.Errorf("profile %d in organization %d: %w", profileID, orgID, repo.ErrNotFound)
		}
		if err := e.Repo.UnlinkProfileFromOrganizationTasks(ctx, tx, orgID, profileID); err != nil {
			return err
		}
		return e.Repo.SetProfileOrganization(ctx, tx, profileID, nil)
	})
	if err != nil {
		return domain.Organization{}, err
	}
	scope := orgScope(orgID, actorID)
	scope.ProfileID = audit.Int64(profileID)
	e.emit(scope, audit.Lifecycle(audit.ProfileRemoved, p.Name))
	return e.Repo.GetOrganization(ctx, nil, orgID)
}
