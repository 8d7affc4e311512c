package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"cisline/internal/domain"
	"cisline/internal/engine/auth"
	"cisline/internal/repo"
)

func (s *server) registerProfiles(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID:   "create-profile",
		Method:        http.MethodPost,
		Path:          "/profile",
		Summary:       "Create profile and its user",
		Description:   "The email must be well formed and unused and the password strong.",
		Tags:          []string{"profile"},
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body ProfileRequest
	}) (*reply[domain.Profile], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProfile(ctx, input.Body.input(), actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/profile",
		Summary:     "List profiles",
		Tags:        []string{"profile"},
	}, func(ctx context.Context, input *struct {
		OrganizationID int64 `query:"organization_id" doc:"Only members of this organization"`
		Unassigned     bool  `query:"unassigned" doc:"Only profiles without an organization"`
	}) (*reply[[]domain.Profile], error) {
		f := repo.ProfileFilters{Unassigned: input.Unassigned}
		if input.OrganizationID > 0 {
			f.OrganizationID = &input.OrganizationID
		}
		items, err := e.ListProfiles(ctx, f)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profile/{id}",
		Summary:     "Get profile",
		Tags:        []string{"profile"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*reply[domain.Profile], error) {
		p, err := e.GetProfile(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/profile/{id}",
		Summary:     "Update profile",
		Tags:        []string{"profile"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body ProfilePatchRequest
	}) (*reply[domain.Profile], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProfile(ctx, input.ID, input.Body.patch(), actorID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-profile",
		Method:      http.MethodDelete,
		Path:        "/profile/{id}",
		Summary:     "Delete profile",
		Tags:        []string{"profile"},
		Errors:      commonErrors,
	}, func(ctx context.Context, input *idPath) (*reply[DeletedResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProfile(ctx, input.ID, actorID); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(DeletedResponse{ID: input.ID}), nil
	})
}

func (s *server) registerUsers(api huma.API) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "check-email",
		Method:      http.MethodPost,
		Path:        "/user/check-email",
		Summary:     "Check email shape and availability",
		Tags:        []string{"user"},
		Errors:      []int{http.StatusTooManyRequests, http.StatusInternalServerError},
		Middlewares: huma.Middlewares{s.limiter.middleware(api)},
	}, func(ctx context.Context, input *struct {
		Body CheckEmailRequest
	}) (*reply[auth.EmailCheck], error) {
		res, err := e.CheckEmail(ctx, input.Body.Email)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-password",
		Method:      http.MethodPost,
		Path:        "/user/check-password",
		Summary:     "Score password strength",
		Tags:        []string{"user"},
	}, func(ctx context.Context, input *struct {
		Body CheckPasswordRequest
	}) (*reply[auth.PasswordCheck], error) {
		return ok(e.CheckPassword(input.Body.Password, input.Body.UserInputs...)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/user/login",
		Summary:     "Exchange credentials for a bearer token",
		Tags:        []string{"user"},
		Errors:      []int{http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest
	}) (*reply[TokenResponse], error) {
		if s.auth.JWTSecret == "" {
			return nil, newAPIError(http.StatusServiceUnavailable, "", "token issuing is disabled", nil)
		}
		p, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		role := ""
		if p.User != nil {
			role = string(p.User.Role)
		}
		token, exp, err := issueToken(s.auth.JWTSecret, strconv.FormatInt(p.ID, 10), role, s.now(), s.auth.ttl())
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return ok(TokenResponse{Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339), Profile: p}), nil
	})
}
