package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cisline/internal/domain"
	"cisline/internal/engine"
)

type idPath struct {
	ID int64 `path:"id"`
}

func (s *server) registerOrganizations(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID:   "create-organization",
		Method:        http.MethodPost,
		Path:          "/organization",
		Summary:       "Create organization",
		Tags:          []string{"organization"},
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body OrganizationRequest
	}) (*reply[domain.Organization], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOrganization(ctx, engine.OrganizationInput{Name: input.Body.Name, Description: input.Body.Description}, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-organizations",
		Method:      http.MethodGet,
		Path:        "/organization",
		Summary:     "List organizations with their profiles and tasks",
		Tags:        []string{"organization"},
	}, func(ctx context.Context, _ *struct{}) (*reply[[]domain.Organization], error) {
		items, err := e.ListOrganizations(ctx)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-organization",
		Method:      http.MethodGet,
		Path:        "/organization/{id}",
		Summary:     "Get organization",
		Tags:        []string{"organization"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*reply[domain.Organization], error) {
		o, err := e.GetOrganization(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-organization",
		Method:      http.MethodPatch,
		Path:        "/organization/{id}",
		Summary:     "Update organization",
		Tags:        []string{"organization"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body OrganizationPatchRequest
	}) (*reply[domain.Organization], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.UpdateOrganization(ctx, input.ID, input.Body.patch(), actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-organization",
		Method:      http.MethodDelete,
		Path:        "/organization/{id}",
		Summary:     "Delete organization",
		Tags:        []string{"organization"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*reply[DeletedResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOrganization(ctx, input.ID, actorID); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(DeletedResponse{ID: input.ID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-organization-settings",
		Method:      http.MethodPut,
		Path:        "/organization/{id}/settings",
		Summary:     "Create or update organization settings",
		Tags:        []string{"organization"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body SettingsRequest
	}) (*reply[domain.Settings], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.UpsertSettings(ctx, input.ID, engine.SettingsInput{
			UploadDirectory:   input.Body.UploadDirectory,
			DownloadDirectory: input.Body.DownloadDirectory,
			ArtifactDirectory: input.Body.ArtifactDirectory,
		}, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-organization-settings",
		Method:      http.MethodDelete,
		Path:        "/organization/{id}/settings",
		Summary:     "Remove organization settings",
		Tags:        []string{"organization"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*reply[DeletedResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ClearSettings(ctx, input.ID, actorID); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(DeletedResponse{ID: input.ID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-organization-profile",
		Method:      http.MethodPost,
		Path:        "/organization/{id}/profile",
		Summary:     "Add a profile to the organization",
		Tags:        []string{"organization"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body MembershipRequest
	}) (*reply[domain.Organization], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AddProfileToOrganization(ctx, input.ID, input.Body.ProfileID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-organization-profile",
		Method:      http.MethodDelete,
		Path:        "/organization/{id}/profile/{profile_id}",
		Summary:     "Remove a profile from the organization",
		Tags:        []string{"organization"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID        int64 `path:"id"`
		ProfileID int64 `path:"profile_id"`
	}) (*reply[domain.Organization], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.RemoveProfileFromOrganization(ctx, input.ID, input.ProfileID, actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(o), nil
	})
}
