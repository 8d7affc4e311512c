package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"cisline/internal/domain"
	"cisline/internal/engine"
	"cisline/internal/repo"
)

const defaultMaxUploadBytes = 32 << 20

func (s *server) registerArtifacts(api huma.API) {
	e := s.engine
	maxUpload := s.upload
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-artifact",
		Method:        http.MethodPost,
		Path:          "/artifact",
		Summary:       "Create artifact",
		Tags:          []string{"artifact"},
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body ArtifactRequest
	}) (*reply[domain.Artifact], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateArtifact(ctx, engine.ArtifactInput{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			TaskID:      input.Body.TaskID,
		}, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-artifacts",
		Method:      http.MethodGet,
		Path:        "/artifact",
		Summary:     "List artifacts",
		Tags:        []string{"artifact"},
	}, func(ctx context.Context, _ *struct{}) (*reply[[]domain.Artifact], error) {
		items, err := e.ListArtifacts(ctx)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/artifact/{id}",
		Summary:     "Get artifact",
		Tags:        []string{"artifact"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*reply[domain.Artifact], error) {
		a, err := e.GetArtifact(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-artifact",
		Method:      http.MethodPatch,
		Path:        "/artifact/{id}",
		Summary:     "Update artifact",
		Tags:        []string{"artifact"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body ArtifactPatchRequest
	}) (*reply[domain.Artifact], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateArtifact(ctx, input.ID, repo.ArtifactPatch{Name: input.Body.Name, Description: input.Body.Description}, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-artifact",
		Method:      http.MethodDelete,
		Path:        "/artifact/{id}",
		Summary:     "Delete artifact",
		Tags:        []string{"artifact"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*reply[DeletedResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteArtifact(ctx, input.ID, actorID); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(DeletedResponse{ID: input.ID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "put-artifact-content",
		Method:       http.MethodPut,
		Path:         "/artifact/{id}/content",
		Summary:      "Upload artifact content",
		Description:  "Replaces any previous content. The request body is stored as-is.",
		Tags:         []string{"artifact"},
		MaxBodyBytes: maxUpload,
		Errors:       append(commonErrors, http.StatusServiceUnavailable),
	}, func(ctx context.Context, input *struct {
		ID          int64  `path:"id"`
		ContentType string `header:"Content-Type"`
		RawBody     []byte `contentType:"application/octet-stream"`
	}) (*reply[domain.Artifact], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.PutArtifactContent(ctx, input.ID, bytes.NewReader(input.RawBody), input.ContentType, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact-content",
		Method:      http.MethodGet,
		Path:        "/artifact/{id}/content",
		Summary:     "Download artifact content",
		Tags:        []string{"artifact"},
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *idPath) (*huma.StreamResponse, error) {
		a, rc, err := e.OpenArtifactContent(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &huma.StreamResponse{Body: func(hctx huma.Context) {
			defer rc.Close()
			hctx.SetHeader("Content-Type", a.ContentType)
			hctx.SetHeader("Content-Length", strconv.FormatInt(a.Size, 10))
			hctx.SetHeader("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
			hctx.SetStatus(http.StatusOK)
			if _, err := io.Copy(hctx.BodyWriter(), rc); err != nil {
				s.log.Warn().Err(err).Int64("artifact_id", a.ID).Msg("artifact download interrupted")
			}
		}}, nil
	})
}
