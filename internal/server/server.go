package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"reportline/internal/cadence"
	"reportline/internal/domain"
	"reportline/internal/engine"
	"reportline/internal/repo"
	"reportline/internal/validate"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_schedule"`
	Message string         `json:"message" example:"invalid schedule: day_of_week 9 out of range"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Reportline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Reportline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOrgs(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerExpectations(group, cfg.Engine)
	registerLinks(group, cfg.Engine)
	registerData(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerPresets(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ise cadence.InvalidScheduleError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusBadRequest, "invalid_schedule", err.Error(), map[string]any{"field": ise.Field, "value": ise.Value})
	}
	var verr validate.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"problems": verr.Problems})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Reportline API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
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
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		principal, _ := principalFromContext(ctx)
		o, err := e.CreateOrg(ctx, input.Body.Name, input.Body.Email, input.Body.IsWrangler, principal.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrgResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListOrgs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]OrgResponse, 0, len(items))
		for _, o := range items {
			out = append(out, orgResponse(o))
		}
		return &struct {
			Body []OrgResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get organization",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if err := requireOrgOrWrangler(ctx, input.OrgID); err != nil {
			return nil, err
		}
		o, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-org",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}",
		Summary:     "Update organization",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  UpdateOrgRequest `json:"body"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		if err := e.Repo.UpdateOrg(ctx, input.OrgID, input.Body.Name, input.Body.Email, input.Body.IsWrangler); err != nil {
			return nil, handleError(err)
		}
		o, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-org",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}",
		Summary:     "Delete organization (cascades to links)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct{}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		if err := e.Repo.DeleteOrg(ctx, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		principal, _ := principalFromContext(ctx)
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.CreateProject(ctx, input.Body.Name, desc, principal.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ProjectResponse, 0, len(items))
		for _, p := range items {
			out = append(out, projectResponse(p))
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		if err := e.Repo.UpdateProject(ctx, input.ProjectID, input.Body.Name, input.Body.Description); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project (cascades to links)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		if err := e.Repo.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerExpectations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-expectation",
		Method:        http.MethodPost,
		Path:          "/expectations",
		Summary:       "Create expectation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateExpectationRequest `json:"body"`
	}) (*struct {
		Body ExpectationResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		principal, _ := principalFromContext(ctx)
		cols := make([]domain.ExpectationColumn, 0, len(input.Body.Columns))
		for _, c := range input.Body.Columns {
			cols = append(cols, domain.ExpectationColumn{Name: c.Name, NullsOK: c.NullsOK, MustBeInt: c.MustBeInt})
		}
		exp, err := e.CreateExpectation(ctx, input.Body.Name, cols, principal.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExpectationResponse `json:"body"`
		}{Body: expectationResponse(exp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-expectations",
		Method:      http.MethodGet,
		Path:        "/expectations",
		Summary:     "List expectations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ExpectationResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListExpectations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ExpectationResponse, 0, len(items))
		for _, exp := range items {
			out = append(out, expectationResponse(exp))
		}
		return &struct {
			Body []ExpectationResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attach-expectation",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/expectations/{expectation_id}",
		Summary:     "Attach expectation to project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID     string `path:"project_id"`
		ExpectationID string `path:"expectation_id"`
	}) (*struct{}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetExpectation(ctx, input.ExpectationID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.AttachExpectation(ctx, input.ExpectationID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "detach-expectation",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/expectations/{expectation_id}",
		Summary:     "Detach expectation from project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID     string `path:"project_id"`
		ExpectationID string `path:"expectation_id"`
	}) (*struct{}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		if err := e.Repo.DetachExpectation(ctx, input.ExpectationID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-expectations",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/expectations",
		Summary:     "List expectations attached to a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []ExpectationResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProjectExpectations(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ExpectationResponse, 0, len(items))
		for _, exp := range items {
			out = append(out, expectationResponse(exp))
		}
		return &struct {
			Body []ExpectationResponse `json:"body"`
		}{Body: out}, nil
	})
}

type LinkPath struct {
	OrgID     string `path:"org_id"`
	ProjectID string `path:"project_id"`
}

func registerLinks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-link",
		Method:        http.MethodPut,
		Path:          "/orgs/{org_id}/projects/{project_id}/link",
		Summary:       "Link org to project with a reporting schedule",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		LinkPath
		Body ScheduleRequest `json:"body"`
	}) (*struct {
		Body LinkResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		principal, _ := principalFromContext(ctx)
		l, err := e.CreateLink(ctx, engine.LinkOptions{
			OrgID:      input.OrgID,
			ProjectID:  input.ProjectID,
			Interval:   input.Body.Interval,
			DayOfWeek:  input.Body.DayOfWeek,
			DayOfMonth: input.Body.DayOfMonth,
			ActorID:    principal.OrgID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkResponse `json:"body"`
		}{Body: linkResponse(l, nil)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-link-schedule",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/projects/{project_id}/link/schedule",
		Summary:     "Replace a link's reporting schedule",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LinkPath
		Body ScheduleRequest `json:"body"`
	}) (*struct {
		Body LinkResponse `json:"body"`
	}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		principal, _ := principalFromContext(ctx)
		l, err := e.UpdateSchedule(ctx, engine.LinkOptions{
			OrgID:      input.OrgID,
			ProjectID:  input.ProjectID,
			Interval:   input.Body.Interval,
			DayOfWeek:  input.Body.DayOfWeek,
			DayOfMonth: input.Body.DayOfMonth,
			ActorID:    principal.OrgID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkResponse `json:"body"`
		}{Body: linkResponse(l, nil)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-link",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/projects/{project_id}/link",
		Summary:     "Get link with compliance status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *LinkPath) (*struct {
		Body LinkResponse `json:"body"`
	}, error) {
		if err := requireOrgOrWrangler(ctx, input.OrgID); err != nil {
			return nil, err
		}
		l, c, err := e.Compliance(ctx, input.OrgID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkResponse `json:"body"`
		}{Body: linkResponse(l, &c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-link",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/projects/{project_id}/link",
		Summary:     "Unlink org from project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *LinkPath) (*struct{}, error) {
		if err := requireWrangler(ctx); err != nil {
			return nil, err
		}
		principal, _ := principalFromContext(ctx)
		if err := e.Unlink(ctx, input.OrgID, input.ProjectID, principal.OrgID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-submission",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/projects/{project_id}/link/submissions",
		Summary:       "Record a report submission",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *LinkPath) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		if err := requireOrgOrWrangler(ctx, input.OrgID); err != nil {
			return nil, err
		}
		principal, _ := principalFromContext(ctx)
		l, recorded, err := e.RecordSubmission(ctx, input.OrgID, input.ProjectID, principal.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: SubmissionResponse{Recorded: recorded, Link: linkResponse(l, nil)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-org-links",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/links",
		Summary:     "List an org's links with compliance status",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []LinkResponse `json:"body"`
	}, error) {
		if err := requireOrgOrWrangler(ctx, input.OrgID); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListLinksByOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		now := e.Now
		if now == nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "clock not configured", nil)
		}
		out := make([]LinkResponse, 0, len(items))
		for _, l := range items {
			c := cadence.Classify(l, now())
			out = append(out, linkResponse(l, &c))
		}
		return &struct {
			Body []LinkResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerData(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-data",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/expectations/{expectation_id}/data",
		Summary:       "Record a validated data row",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID     string            `path:"project_id"`
		ExpectationID string            `path:"expectation_id"`
		Body          RecordDataRequest `json:"body"`
	}) (*struct {
		Body CollectedEntryResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.RecordData(ctx, engine.DataOptions{
			ProjectID:     input.ProjectID,
			ExpectationID: input.ExpectationID,
			Values:        input.Body.Values,
			ActorID:       principal.OrgID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CollectedEntryResponse `json:"body"`
		}{Body: collectedResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-data",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/data",
		Summary:     "List collected data for a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID     string `path:"project_id"`
		ExpectationID string `query:"expectation_id"`
	}) (*struct {
		Body []CollectedEntryResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListCollected(ctx, input.ProjectID, input.ExpectationID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]CollectedEntryResponse, 0, len(items))
		for _, entry := range items {
			out = append(out, collectedResponse(entry))
		}
		return &struct {
			Body []CollectedEntryResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "List recent events for an org",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Before int64  `query:"before" minimum:"0"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if err := requireOrgOrWrangler(ctx, input.OrgID); err != nil {
			return nil, err
		}
		items, err := e.Events.Tail(ctx, input.OrgID, input.Limit, input.Before)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/api-keys",
		Summary:       "Mint an API key for an org",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if err := requireOrgOrWrangler(ctx, input.OrgID); err != nil {
			return nil, err
		}
		key, plain, err := e.CreateAPIKey(ctx, input.OrgID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, OrgID: key.OrgID, Name: key.Name, CreatedAt: key.CreatedAt, Key: plain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/api-keys",
		Summary:     "List an org's API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if err := requireOrgOrWrangler(ctx, input.OrgID); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			out = append(out, APIKeyResponse{ID: k.ID, OrgID: k.OrgID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerPresets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-schedule-presets",
		Method:      http.MethodGet,
		Path:        "/schedule-presets",
		Summary:     "List schedule presets configured for this workspace",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PresetResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		out := []PresetResponse{}
		if e.Config != nil {
			for name, p := range e.Config.Schedules.Presets {
				out = append(out, PresetResponse{
					Name:        name,
					Description: p.Description,
					Interval:    p.Interval,
					DayOfWeek:   p.DayOfWeek,
					DayOfMonth:  p.DayOfMonth,
					Default:     name == e.Config.Schedules.Default,
				})
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		}
		return &struct {
			Body []PresetResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			OrgID:      principal.OrgID,
			Email:      principal.Email,
			IsWrangler: principal.IsWrangler,
			Source:     principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for a registered org",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		email := strings.TrimSpace(input.Body.Email)
		if email == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email is required", nil)
		}
		org, err := e.Repo.GetOrgByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
			}
			return nil, handleError(err)
		}
		token, err := signDevToken(authCfg.JWTSecret, org.ID, org.Email, org.IsWrangler)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
