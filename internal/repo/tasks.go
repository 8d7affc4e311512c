package repo

import (
	"context"
	"database/sql"
	"strings"

	"cisline/internal/domain"
)

const taskColumnsT = `t.id,t.organization_id,t.name,t.description,t.expected_evidence,t.start_at,t.end_at,t.status,t.created_at,t.updated_at`

type TaskFilters struct {
	OrganizationID *int64
	Status         domain.TaskStatus
}

// TaskPatch carries the PATCH field set. ClearStartAt/ClearEndAt null the dates.
type TaskPatch struct {
	Name             *string
	Description      *string
	ExpectedEvidence *string
	StartAt          *string
	EndAt            *string
	ClearStartAt     bool
	ClearEndAt       bool
	Status           *domain.TaskStatus
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var (
		t       domain.Task
		startAt sql.NullString
		endAt   sql.NullString
	)
	err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Description, &t.ExpectedEvidence, &startAt, &endAt, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.StartAt = stringPtr(startAt)
	t.EndAt = stringPtr(endAt)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t *domain.Task) error {
	if t.Status == "" {
		t.Status = domain.TaskNotStarted
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(organization_id,name,description,expected_evidence,start_at,end_at,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.OrganizationID, t.Name, t.Description, t.ExpectedEvidence, nullableStringPtr(t.StartAt), nullableStringPtr(t.EndAt), string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTaskRow loads the task row only.
func (r Repo) GetTaskRow(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumnsT+` FROM tasks t WHERE t.id=? AND t.active=1`, id))
}

// GetTask loads the task with assignees, artifacts and safeguard ids.
func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	t, err := r.GetTaskRow(ctx, tx, id)
	if err != nil {
		return t, err
	}
	if err := r.loadTaskChildren(ctx, tx, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"t.active=1"}
	var args []any
	if f.OrganizationID != nil {
		clauses = append(clauses, "t.organization_id=?")
		args = append(args, *f.OrganizationID)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, string(f.Status))
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskColumnsT+` FROM tasks t WHERE `+strings.Join(clauses, " AND ")+` ORDER BY t.id`, args...)
	if err != nil {
		return nil, err
	}
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := r.loadTaskChildren(ctx, tx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) loadTaskChildren(ctx context.Context, tx *sql.Tx, t *domain.Task) error {
	var err error
	if t.TaskProfiles, err = r.taskProfiles(ctx, tx, t.ID); err != nil {
		return err
	}
	if t.TaskArtifacts, err = r.taskArtifacts(ctx, tx, t.ID); err != nil {
		return err
	}
	t.Safeguards, err = r.ListTaskSafeguards(ctx, tx, t.ID)
	return err
}

func (r Repo) taskProfiles(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.TaskProfile, error) {
	rows, err := r.q(tx).QueryContext(ctx, profileSelect+` JOIN task_profiles tp ON tp.profile_id=p.id WHERE tp.task_id=? AND p.active=1 ORDER BY p.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.TaskProfile{TaskID: taskID, ProfileID: p.ID, Profile: &p})
	}
	return res, rows.Err()
}

func (r Repo) taskArtifacts(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.TaskArtifact, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+artifactColumnsA+` FROM task_artifacts ta JOIN artifacts a ON a.id=ta.artifact_id AND a.active=1
WHERE ta.task_id=? ORDER BY a.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskArtifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.TaskArtifact{TaskID: taskID, ArtifactID: a.ID, Artifact: &a})
	}
	return res, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id int64, patch TaskPatch, updatedAt string) error {
	var set setClause
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if patch.ExpectedEvidence != nil {
		set.add("expected_evidence", *patch.ExpectedEvidence)
	}
	switch {
	case patch.ClearStartAt:
		set.add("start_at", nil)
	case patch.StartAt != nil:
		set.add("start_at", nullableStringPtr(patch.StartAt))
	}
	switch {
	case patch.ClearEndAt:
		set.add("end_at", nil)
	case patch.EndAt != nil:
		set.add("end_at", nullableStringPtr(patch.EndAt))
	}
	if patch.Status != nil {
		set.add("status", string(*patch.Status))
	}
	if set.empty() {
		_, err := r.GetTaskRow(ctx, tx, id)
		return err
	}
	set.add("updated_at", updatedAt)
	args := append(set.args, id)
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE tasks SET `+set.sql()+` WHERE id=? AND active=1`, args...))
}

func (r Repo) SoftDeleteTask(ctx context.Context, tx *sql.Tx, id int64, updatedAt string) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE tasks SET active=0, updated_at=? WHERE id=? AND active=1`, updatedAt, id))
}

// Join rows. Link reports whether a row was inserted, Unlink whether one was removed.

func (r Repo) LinkTaskProfile(ctx context.Context, tx *sql.Tx, taskID, profileID int64) (bool, error) {
	return changed(r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO task_profiles(task_id,profile_id) VALUES (?,?)`, taskID, profileID))
}

func (r Repo) UnlinkTaskProfile(ctx context.Context, tx *sql.Tx, taskID, profileID int64) (bool, error) {
	return changed(r.q(tx).ExecContext(ctx, `DELETE FROM task_profiles WHERE task_id=? AND profile_id=?`, taskID, profileID))
}

func (r Repo) LinkTaskArtifact(ctx context.Context, tx *sql.Tx, taskID, artifactID int64) (bool, error) {
	return changed(r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO task_artifacts(task_id,artifact_id) VALUES (?,?)`, taskID, artifactID))
}

func (r Repo) UnlinkTaskArtifact(ctx context.Context, tx *sql.Tx, taskID, artifactID int64) (bool, error) {
	return changed(r.q(tx).ExecContext(ctx, `DELETE FROM task_artifacts WHERE task_id=? AND artifact_id=?`, taskID, artifactID))
}

func (r Repo) LinkTaskSafeguard(ctx context.Context, tx *sql.Tx, taskID int64, safeguardID string) (bool, error) {
	return changed(r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO task_safeguards(task_id,safeguard_id) VALUES (?,?)`, taskID, safeguardID))
}

func (r Repo) UnlinkTaskSafeguard(ctx context.Context, tx *sql.Tx, taskID int64, safeguardID string) (bool, error) {
	return changed(r.q(tx).ExecContext(ctx, `DELETE FROM task_safeguards WHERE task_id=? AND safeguard_id=?`, taskID, safeguardID))
}

// UnlinkProfileFromOrganizationTasks drops the profile from every task of orgID.
func (r Repo) UnlinkProfileFromOrganizationTasks(ctx context.Context, tx *sql.Tx, orgID, profileID int64) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM task_profiles WHERE profile_id=? AND task_id IN (SELECT id FROM tasks WHERE organization_id=?)`, profileID, orgID)
	return err
}

// ListTaskSafeguards returns the linked ids in link order.
func (r Repo) ListTaskSafeguards(ctx context.Context, tx *sql.Tx, taskID int64) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT safeguard_id FROM task_safeguards WHERE task_id=? ORDER BY rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
