package repo

import (
	"context"
	"database/sql"

	"cisline/internal/domain"
)

const artifactColumnsA = `a.id,a.name,a.description,a.blob_key,a.content_type,a.size_bytes,a.created_at`

type ArtifactPatch struct {
	Name        *string
	Description *string
}

func scanArtifact(row interface{ Scan(...any) error }) (domain.Artifact, error) {
	var (
		a           domain.Artifact
		blobKey     sql.NullString
		contentType sql.NullString
	)
	err := row.Scan(&a.ID, &a.Name, &a.Description, &blobKey, &contentType, &a.Size, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.BlobKey = blobKey.String
	a.ContentType = contentType.String
	return a, err
}

func (r Repo) InsertArtifact(ctx context.Context, tx *sql.Tx, a *domain.Artifact) error {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO artifacts(name,description,created_at) VALUES (?,?,?)`, a.Name, a.Description, a.CreatedAt)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetArtifact(ctx context.Context, tx *sql.Tx, id int64) (domain.Artifact, error) {
	return scanArtifact(r.q(tx).QueryRowContext(ctx, `SELECT `+artifactColumnsA+` FROM artifacts a WHERE a.id=? AND a.active=1`, id))
}

func (r Repo) ListArtifacts(ctx context.Context) ([]domain.Artifact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+artifactColumnsA+` FROM artifacts a WHERE a.active=1 ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateArtifact(ctx context.Context, tx *sql.Tx, id int64, patch ArtifactPatch) error {
	var set setClause
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if set.empty() {
		_, err := r.GetArtifact(ctx, tx, id)
		return err
	}
	args := append(set.args, id)
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE artifacts SET `+set.sql()+` WHERE id=? AND active=1`, args...))
}

// SetArtifactContent records where the artifact's bytes live.
func (r Repo) SetArtifactContent(ctx context.Context, tx *sql.Tx, id int64, blobKey, contentType string, size int64) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE artifacts SET blob_key=?, content_type=?, size_bytes=? WHERE id=? AND active=1`,
		nullable(blobKey), nullable(contentType), size, id))
}

func (r Repo) SoftDeleteArtifact(ctx context.Context, tx *sql.Tx, id int64) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE artifacts SET active=0 WHERE id=? AND active=1`, id))
}

// ArtifactTaskIDs lists the active tasks an artifact is linked to.
func (r Repo) ArtifactTaskIDs(ctx context.Context, tx *sql.Tx, artifactID int64) ([]int64, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT ta.task_id FROM task_artifacts ta JOIN tasks t ON t.id=ta.task_id AND t.active=1 WHERE ta.artifact_id=? ORDER BY ta.task_id`, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
