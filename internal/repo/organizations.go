package repo

import (
	"context"
	"database/sql"
	"fmt"

	"cisline/internal/domain"
)

const orgColumns = `id,name,description,created_at,updated_at`

type OrganizationPatch struct {
	Name        *string
	Description *string
}

func scanOrganization(row interface{ Scan(...any) error }) (domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Description, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) InsertOrganization(ctx context.Context, tx *sql.Tx, o *domain.Organization) error {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO organizations(name,description,created_at,updated_at) VALUES (?,?,?,?)`,
		o.Name, o.Description, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	o.ID, err = res.LastInsertId()
	return err
}

// GetOrganizationRow loads the organization row alone, without nested collections.
func (r Repo) GetOrganizationRow(ctx context.Context, tx *sql.Tx, id int64) (domain.Organization, error) {
	return scanOrganization(r.q(tx).QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id=? AND active=1`, id))
}

// GetOrganization loads the organization with settings, profiles and tasks.
func (r Repo) GetOrganization(ctx context.Context, tx *sql.Tx, id int64) (domain.Organization, error) {
	o, err := r.GetOrganizationRow(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if err := r.loadOrganizationChildren(ctx, tx, &o); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func (r Repo) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE active=1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var res []domain.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := r.loadOrganizationChildren(ctx, nil, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) loadOrganizationChildren(ctx context.Context, tx *sql.Tx, o *domain.Organization) error {
	settings, err := r.GetSettings(ctx, tx, o.ID)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	o.Settings = settings
	orgID := o.ID
	if o.Profiles, err = r.ListProfiles(ctx, tx, ProfileFilters{OrganizationID: &orgID}); err != nil {
		return fmt.Errorf("profiles: %w", err)
	}
	if o.Tasks, err = r.ListTasks(ctx, tx, TaskFilters{OrganizationID: &orgID}); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	return nil
}

func (r Repo) UpdateOrganization(ctx context.Context, tx *sql.Tx, id int64, patch OrganizationPatch, updatedAt string) error {
	var set setClause
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if set.empty() {
		return nil
	}
	set.add("updated_at", updatedAt)
	args := append(set.args, id)
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE organizations SET `+set.sql()+` WHERE id=? AND active=1`, args...))
}

// SoftDeleteOrganization flips active off. Profiles of the organization become
// unassigned; its tasks go dormant with it.
func (r Repo) SoftDeleteOrganization(ctx context.Context, tx *sql.Tx, id int64, updatedAt string) error {
	q := r.q(tx)
	if err := affectedOrNotFound(q.ExecContext(ctx, `UPDATE organizations SET active=0, updated_at=? WHERE id=? AND active=1`, updatedAt, id)); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `UPDATE profiles SET organization_id=NULL WHERE organization_id=?`, id); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `UPDATE tasks SET active=0, updated_at=? WHERE organization_id=? AND active=1`, updatedAt, id)
	return err
}

// GetSettings returns nil when the organization has no settings row.
func (r Repo) GetSettings(ctx context.Context, tx *sql.Tx, orgID int64) (*domain.Settings, error) {
	var s domain.Settings
	err := r.q(tx).QueryRowContext(ctx, `SELECT organization_id,upload_directory,download_directory,artifact_directory FROM organization_settings WHERE organization_id=?`, orgID).
		Scan(&s.OrganizationID, &s.UploadDirectory, &s.DownloadDirectory, &s.ArtifactDirectory)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r Repo) UpsertSettings(ctx context.Context, tx *sql.Tx, s domain.Settings, updatedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO organization_settings(organization_id,upload_directory,download_directory,artifact_directory,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(organization_id) DO UPDATE SET upload_directory=excluded.upload_directory, download_directory=excluded.download_directory,
artifact_directory=excluded.artifact_directory, updated_at=excluded.updated_at`,
		s.OrganizationID, s.UploadDirectory, s.DownloadDirectory, s.ArtifactDirectory, updatedAt)
	return err
}

// DeleteSettings reports whether a row was removed.
func (r Repo) DeleteSettings(ctx context.Context, tx *sql.Tx, orgID int64) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM organization_settings WHERE organization_id=?`, orgID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
