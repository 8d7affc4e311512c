package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cisline/internal/catalog"
	"cisline/internal/domain"
	"cisline/internal/repo"
)

func (s *server) registerTasks(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/task",
		Summary:       "Create task",
		Tags:          []string{"task"},
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body TaskRequest
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, input.Body.input(), actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/task",
		Summary:     "List tasks",
		Tags:        []string{"task"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OrganizationID int64  `query:"organization_id"`
		Status         string `query:"status" enum:"NOT_STARTED,OPEN,COMPLETED,CLOSED"`
	}) (*reply[[]domain.Task], error) {
		f := repo.TaskFilters{Status: domain.TaskStatus(input.Status)}
		if input.OrganizationID > 0 {
			f.OrganizationID = &input.OrganizationID
		}
		items, err := e.ListTasks(ctx, f)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/task/{id}",
		Summary:     "Get task with its profiles, artifacts and safeguards",
		Tags:        []string{"task"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*reply[domain.Task], error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/task/{id}",
		Summary:     "Update task",
		Description: "Send start_at or end_at as an empty string to clear the date.",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body TaskPatchRequest
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, input.ID, input.Body.update(), actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/task/{id}",
		Summary:     "Delete task",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*reply[DeletedResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, actorID); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(DeletedResponse{ID: input.ID}), nil
	})
}

// registerLinks exposes the task join tables. Deletes take the pair as query
// parameters.
func (s *server) registerLinks(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "assign-task-profile",
		Method:      http.MethodPost,
		Path:        "/task-profile",
		Summary:     "Assign a profile to a task",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body TaskProfileRequest
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignProfile(ctx, input.Body.TaskID, input.Body.ProfileID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-task-profile",
		Method:      http.MethodDelete,
		Path:        "/task-profile",
		Summary:     "Unassign a profile from a task",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		TaskID    int64 `query:"task_id" required:"true"`
		ProfileID int64 `query:"profile_id" required:"true"`
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UnassignProfile(ctx, input.TaskID, input.ProfileID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-task-artifact",
		Method:      http.MethodPost,
		Path:        "/task-artifact",
		Summary:     "Link an artifact to a task",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body TaskArtifactRequest
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.LinkArtifact(ctx, input.Body.TaskID, input.Body.ArtifactID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlink-task-artifact",
		Method:      http.MethodDelete,
		Path:        "/task-artifact",
		Summary:     "Unlink an artifact from a task",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		TaskID     int64 `query:"task_id" required:"true"`
		ArtifactID int64 `query:"artifact_id" required:"true"`
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UnlinkArtifact(ctx, input.TaskID, input.ArtifactID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-task-safeguard",
		Method:      http.MethodPost,
		Path:        "/task-safeguard",
		Summary:     "Link a catalog safeguard to a task",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body TaskSafeguardRequest
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.LinkSafeguard(ctx, input.Body.TaskID, input.Body.SafeguardID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlink-task-safeguard",
		Method:      http.MethodDelete,
		Path:        "/task-safeguard",
		Summary:     "Unlink a safeguard from a task",
		Tags:        []string{"task"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		TaskID      int64  `query:"task_id" required:"true"`
		SafeguardID string `query:"safeguard_id" required:"true"`
	}) (*reply[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UnlinkSafeguard(ctx, input.TaskID, input.SafeguardID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(t), nil
	})
}

func (s *server) registerCatalog(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "search-safeguards",
		Method:      http.MethodGet,
		Path:        "/safeguard",
		Summary:     "Search catalog safeguards",
		Description: "Matches id, title or control title. With task_id, safeguards already linked to that task are left out.",
		Tags:        []string{"catalog"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Query  string `query:"q"`
		TaskID int64  `query:"task_id"`
	}) (*reply[[]catalog.Safeguard], error) {
		items, err := e.SearchSafeguards(ctx, input.Query, input.TaskID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-controls",
		Method:      http.MethodGet,
		Path:        "/control",
		Summary:     "List catalog controls",
		Tags:        []string{"catalog"},
	}, func(ctx context.Context, _ *struct{}) (*reply[[]catalog.Control], error) {
		return ok(catalog.Controls()), nil
	})
}
