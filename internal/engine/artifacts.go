package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"cisline/internal/audit"
	"cisline/internal/blob"
	"cisline/internal/domain"
	"cisline/internal/repo"
)

var ErrNoBlobStore = errors.New("no blob store configured")

type ArtifactInput struct {
	Name        string
	Description string
	// TaskID links the new artifact to a task right away.
	TaskID *int64
}

func (e Engine) GetArtifact(ctx context.Context, id int64) (domain.Artifact, error) {
	return e.Repo.GetArtifact(ctx, nil, id)
}

func (e Engine) ListArtifacts(ctx context.Context) ([]domain.Artifact, error) {
	return e.Repo.ListArtifacts(ctx)
}

// artifactScopes returns one scope per task the artifact is linked to, or a
// single unscoped entry when it is linked nowhere.
func (e Engine) artifactScopes(ctx context.Context, tx *sql.Tx, artifactID int64, actorID string) ([]audit.Scope, error) {
	ids, err := e.Repo.ArtifactTaskIDs(ctx, tx, artifactID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []audit.Scope{{ActorID: actorID}}, nil
	}
	scopes := make([]audit.Scope, 0, len(ids))
	for _, id := range ids {
		t, err := e.Repo.GetTaskRow(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, taskScope(t, actorID))
	}
	return scopes, nil
}

func (e Engine) CreateArtifact(ctx context.Context, in ArtifactInput, actorID string) (_ domain.Artifact, err error) {
	ctx, span := e.span(ctx, "CreateArtifact", actorAttr(actorID))
	defer finish(span, &err)

	name, err := required("name", in.Name)
	if err != nil {
		return domain.Artifact{}, err
	}
	a := domain.Artifact{Name: name, Description: strings.TrimSpace(in.Description), CreatedAt: e.stamp()}
	var t domain.Task
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if in.TaskID != nil {
			var err error
			if t, err = e.Repo.GetTaskRow(ctx, tx, *in.TaskID); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertArtifact(ctx, tx, &a); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		if in.TaskID != nil {
			_, err := e.Repo.LinkTaskArtifact(ctx, tx, *in.TaskID, a.ID)
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	span.SetAttributes(attribute.Int64("cisline.artifact_id", a.ID))
	if in.TaskID != nil {
		e.emit(taskScope(t, actorID), audit.Lifecycle(audit.ArtifactAdded, a.Name))
	}
	return e.Repo.GetArtifact(ctx, nil, a.ID)
}

// UpdateArtifact records a name change on every linked task. Description
// edits are stored but not audited.
func (e Engine) UpdateArtifact(ctx context.Context, id int64, patch repo.ArtifactPatch, actorID string) (_ domain.Artifact, err error) {
	ctx, span := e.span(ctx, "UpdateArtifact", actorAttr(actorID), attribute.Int64("cisline.artifact_id", id))
	defer finish(span, &err)

	if patch.Name != nil {
		name, err := required("name", *patch.Name)
		if err != nil {
			return domain.Artifact{}, err
		}
		patch.Name = &name
	}
	patch.Description = trimPtr(patch.Description)

	var (
		before, after domain.Artifact
		scopes        []audit.Scope
	)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if before, err = e.Repo.GetArtifact(ctx, tx, id); err != nil {
			return err
		}
		if err := e.Repo.UpdateArtifact(ctx, tx, id, patch); err != nil {
			return err
		}
		if after, err = e.Repo.GetArtifact(ctx, tx, id); err != nil {
			return err
		}
		scopes, err = e.artifactScopes(ctx, tx, id, actorID)
		return err
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	changes := audit.Diff(audit.KindArtifact, artifactSnapshot(before), artifactSnapshot(after))
	for _, s := range scopes {
		e.emit(s, changes...)
	}
	return after, nil
}

func (e Engine) DeleteArtifact(ctx context.Context, id int64, actorID string) (err error) {
	ctx, span := e.span(ctx, "DeleteArtifact", actorAttr(actorID), attribute.Int64("cisline.artifact_id", id))
	defer finish(span, &err)

	var (
		a      domain.Artifact
		scopes []audit.Scope
	)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = e.Repo.GetArtifact(ctx, tx, id); err != nil {
			return err
		}
		if scopes, err = e.artifactScopes(ctx, tx, id, actorID); err != nil {
			return err
		}
		return e.Repo.SoftDeleteArtifact(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	for _, s := range scopes {
		e.emit(s, audit.Lifecycle(audit.ArtifactDeleted, a.Name))
	}
	return nil
}

// PutArtifactContent stores r under a fresh key and points the artifact at
// it. The previous content is removed best-effort.
func (e Engine) PutArtifactContent(ctx context.Context, id int64, r io.Reader, contentType, actorID string) (_ domain.Artifact, err error) {
	ctx, span := e.span(ctx, "PutArtifactContent", actorAttr(actorID), attribute.Int64("cisline.artifact_id", id))
	defer finish(span, &err)

	if e.Blobs == nil {
		return domain.Artifact{}, ErrNoBlobStore
	}
	before, err := e.Repo.GetArtifact(ctx, nil, id)
	if err != nil {
		return domain.Artifact{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("artifacts/%d/%s", id, uuid.NewString())
	info, err := e.Blobs.Put(ctx, key, r, blob.PutOptions{ContentType: contentType})
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("store artifact content: %w", err)
	}
	if err := e.Repo.SetArtifactContent(ctx, nil, id, info.Key, info.ContentType, info.Size); err != nil {
		if _, derr := e.Blobs.Delete(ctx, info.Key); derr != nil {
			e.Log.Warn().Err(derr).Str("key", info.Key).Msg("orphaned artifact blob")
		}
		return domain.Artifact{}, err
	}
	if before.BlobKey != "" {
		if _, err := e.Blobs.Delete(ctx, before.BlobKey); err != nil {
			e.Log.Warn().Err(err).Str("key", before.BlobKey).Msg("delete previous artifact blob")
		}
	}
	span.SetAttributes(attribute.Int64("cisline.size_bytes", info.Size))
	return e.Repo.GetArtifact(ctx, nil, id)
}

// OpenArtifactContent returns the artifact and a reader over its content.
// The caller closes the reader.
func (e Engine) OpenArtifactContent(ctx context.Context, id int64) (domain.Artifact, io.ReadCloser, error) {
	if e.Blobs == nil {
		return domain.Artifact{}, nil, ErrNoBlobStore
	}
	a, err := e.Repo.GetArtifact(ctx, nil, id)
	if err != nil {
		return a, nil, err
	}
	if a.BlobKey == "" {
		return a, nil, fmt.Errorf("artifact %d has no content: %w", id, repo.ErrNotFound)
	}
	_, rc, err := e.Blobs.Get(ctx, a.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		return a, nil, fmt.Errorf("artifact %d content: %w", id, repo.ErrNotFound)
	}
	return a, rc, err
}
