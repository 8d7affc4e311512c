package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cisline/internal/domain"
	"cisline/internal/engine"
	"cisline/internal/repo"
)

func optionalID(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func (s *server) registerEvents(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/event",
		Summary:     "List audit events, newest first",
		Description: "Pass the smallest id already seen as before to page backwards.",
		Tags:        []string{"event"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OrganizationID int64  `query:"organization_id"`
		ProfileID      int64  `query:"profile_id"`
		TaskID         int64  `query:"task_id"`
		Importance     string `query:"importance" enum:"LOW,MIDDLE,HIGH"`
		Before         int64  `query:"before"`
		Limit          int    `query:"limit" default:"200" minimum:"1"`
	}) (*reply[[]domain.Event], error) {
		items, err := e.ListEvents(ctx, repo.EventFilters{
			OrganizationID: optionalID(input.OrganizationID),
			ProfileID:      optionalID(input.ProfileID),
			TaskID:         optionalID(input.TaskID),
			Importance:     domain.Importance(input.Importance),
			Before:         input.Before,
			Limit:          input.Limit,
		})
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-event",
		Method:        http.MethodPost,
		Path:          "/event",
		Summary:       "Append a manual audit event",
		Tags:          []string{"event"},
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body EventRequest
	}) (*reply[domain.Event], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.AppendEvent(ctx, engine.EventInput{
			Message:        input.Body.Message,
			Importance:     input.Body.Importance,
			OrganizationID: input.Body.OrganizationID,
			ProfileID:      input.Body.ProfileID,
			TaskID:         input.Body.TaskID,
		}, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(ev), nil
	})
}

func (s *server) registerMessages(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/message",
		Summary:     "List a task's messages",
		Tags:        []string{"message"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `query:"task_id" required:"true"`
	}) (*reply[[]domain.Message], error) {
		items, err := e.ListMessages(ctx, input.TaskID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-message",
		Method:        http.MethodPost,
		Path:          "/message",
		Summary:       "Post a message on a task",
		Tags:          []string{"message"},
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body MessageRequest
	}) (*reply[domain.Message], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.PostMessage(ctx, engine.MessageInput{
			TaskID:  input.Body.TaskID,
			Content: input.Body.Content,
			Type:    input.Body.Type,
		}, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-message",
		Method:      http.MethodPatch,
		Path:        "/message/{id}",
		Summary:     "Edit a message or mark it read",
		Description: "Only the sender may change content. Anyone may mark a message read.",
		Tags:        []string{"message"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body MessagePatchRequest
	}) (*reply[domain.Message], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Content == nil && (input.Body.IsRead == nil || !*input.Body.IsRead) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "content or is_read=true required", nil)
		}
		var (
			m   domain.Message
			err error
		)
		if input.Body.Content != nil {
			if m, err = e.EditMessage(ctx, input.ID, *input.Body.Content, actorID); err != nil {
				return nil, s.handleError(ctx, err)
			}
		}
		if input.Body.IsRead != nil && *input.Body.IsRead {
			if m, err = e.MarkMessageRead(ctx, input.ID, actorID); err != nil {
				return nil, s.handleError(ctx, err)
			}
		}
		return ok(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-message",
		Method:      http.MethodDelete,
		Path:        "/message/{id}",
		Summary:     "Delete a message",
		Tags:        []string{"message"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*reply[DeletedResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMessage(ctx, input.ID, actorID); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(DeletedResponse{ID: input.ID}), nil
	})
}
