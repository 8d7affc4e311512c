package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"cisline/internal/engine"
	"cisline/internal/engine/auth"
	"cisline/internal/repo"
	"cisline/internal/telemetry"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Metrics  *telemetry.Metrics
	Log      zerolog.Logger
	// CheckEmailRate limits /user/check-email per client; 0 disables it.
	CheckEmailRate  float64
	CheckEmailBurst int
	MaxUploadBytes  int64
	Now             func() time.Time
}

// envelope wraps every successful response.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type reply[T any] struct {
	Body envelope[T]
}

func ok[T any](data T) *reply[T] {
	return &reply[T]{Body: envelope[T]{Success: true, Data: data}}
}

// apiError is the failure side of the envelope: success is always false,
// error carries a stable code and message the human-readable text.
type apiError struct {
	status  int
	Success bool           `json:"success"`
	Code    string         `json:"error" example:"not_found"`
	Message string         `json:"message" example:"organization not found"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

type server struct {
	engine  engine.Engine
	auth    AuthConfig
	log     zerolog.Logger
	limiter *clientLimiter
	upload  int64
	now     func() time.Time
}

// New returns an HTTP handler exposing the cisline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, errDetails(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// request schema violations are plain bad requests
			status = http.StatusBadRequest
		}
		return newAPIError(status, "", msg, errDetails(errs))
	}

	s := &server{
		engine:  cfg.Engine,
		auth:    cfg.Auth,
		log:     cfg.Log,
		limiter: newClientLimiter(cfg.CheckEmailRate, cfg.CheckEmailBurst),
		upload:  cfg.MaxUploadBytes,
		now:     cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	router := chi.NewRouter()
	router.Use(accessLog(cfg.Log))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware)
	}
	router.Use(newAuthMiddleware(cfg.Auth, cfg.Log))
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	hcfg := huma.DefaultConfig("cisline API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerOpenAPI(router, api, basePath)
	registerHealth(group)
	s.registerOrganizations(group)
	s.registerProfiles(group)
	s.registerTasks(group)
	s.registerLinks(group)
	s.registerArtifacts(group)
	s.registerEvents(group)
	s.registerMessages(group)
	s.registerCatalog(group)
	s.registerUsers(group)

	return router, nil
}

func errDetails(errs []error) map[string]any {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return map[string]any{"errors": msgs}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Code: code, Message: message, Details: details}
}

// handleError maps engine errors onto statuses. Unmapped errors are logged
// and answered with a bare 500 so their text never reaches the client.
func (s *server) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		se huma.StatusError
		ve engine.ValidationError
		ce engine.ConflictError
		fe auth.ForbiddenError
	)
	switch {
	case errors.As(err, &se):
		return se
	case errors.As(err, &ve):
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "validation_failed", ve.Error(), details)
	case errors.As(err, &ce):
		return newAPIError(http.StatusConflict, "conflict", ce.Error(), nil)
	case errors.As(err, &fe):
		return newAPIError(http.StatusForbidden, "forbidden", fe.Error(), map[string]any{"action": fe.Action})
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrNoBlobStore):
		return newAPIError(http.StatusServiceUnavailable, "", err.Error(), nil)
	default:
		s.log.Error().Err(err).Str("request_id", requestIDFromContext(ctx)).Msg("request failed")
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var commonErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			if _, ok := op.Responses["default"]; ok {
				continue
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error envelope: {success:false, error, message}",
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join(basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>cisline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; from POST /user/login.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*reply[map[string]string], error) {
		return ok(map[string]string{"status": "ok"}), nil
	})
}
