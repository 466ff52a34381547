package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"reforesta/internal/domain"
	"reforesta/internal/engine"
	"reforesta/internal/engine/identity"
	"reforesta/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"duplicate_registration"`
	Message string         `json:"message" example:"user already registered for project"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Reforesta API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Reforesta API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerUsers(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerPetitions(group, cfg.Engine)
	registerRegistrations(group, cfg.Engine)
	registerAttendances(group, cfg.Engine)
	registerDonations(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
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

// handleError maps workflow errors onto the envelope. Every expected
// failure carries its own code; anything unrecognized is an internal
// error.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve identity.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{}
		for f, reason := range ve.Fields {
			details[f] = reason
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_error", err.Error(), map[string]any{"fields": details})
	}
	var ce identity.CredentialsError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	var re identity.RoleError
	if errors.As(err, &re) {
		return newAPIError(http.StatusForbidden, "role_error", err.Error(), map[string]any{"role": re.Role})
	}
	var de identity.DuplicateRegistrationError
	if errors.As(err, &de) {
		return newAPIError(http.StatusConflict, "duplicate_registration", err.Error(), map[string]any{"project_id": de.ProjectID})
	}
	var ne identity.NoRegistrationError
	if errors.As(err, &ne) {
		return newAPIError(http.StatusConflict, "no_registration", err.Error(), map[string]any{"project_id": ne.ProjectID})
	}
	var xe identity.ExceedsLimitError
	if errors.As(err, &xe) {
		return newAPIError(http.StatusUnprocessableEntity, "exceeds_limit", err.Error(), map[string]any{"trees": xe.Trees, "target": xe.Target})
	}
	var ie identity.InvalidAmountError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_amount", err.Error(), nil)
	}
	var se identity.StateConflictError
	if errors.As(err, &se) {
		return newAPIError(http.StatusConflict, "state_conflict", err.Error(), map[string]any{"status": se.Status})
	}
	var ue identity.UnavailableError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", "persistence unavailable", nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "state_conflict"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusForbidden:
		return "role_error"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI) {
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
	oas.Security = []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Reforesta API Docs</title>
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

func registerAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	tokenTTL := time.Duration(auth.TokenTTLMinutes) * time.Minute
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}

	huma.Register(api, huma.Operation{
		OperationID:   "sign-up",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body SignUpRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		u, err := e.SignUp(ctx, engine.SignUpOptions{
			Email:       input.Body.Email,
			Password:    input.Body.Password,
			DisplayName: input.Body.DisplayName,
			Role:        input.Body.Role,
			SignupCode:  input.Body.SignupCode,
		})
		if err != nil {
			return nil, handleError(err)
		}
		token, err := mintToken(auth.JWTSecret, tokenTTL, u.ID, u.Email, u.Role, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sign-in",
		Method:      http.MethodPost,
		Path:        "/auth/signin",
		Summary:     "Sign in",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body SignInRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		u, err := e.SignIn(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := mintToken(auth.JWTSecret, tokenTTL, u.ID, u.Email, u.Role, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-password",
		Method:      http.MethodPost,
		Path:        "/auth/reset",
		Summary:     "Redeem a password reset token",
		Description: "Reset tokens are issued out-of-band by an operator and are single-use.",
		Errors:      []int{http.StatusUnauthorized, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body ResetPasswordRequest `json:"body"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if err := e.ResetPassword(ctx, input.Body.Token, input.Body.NewPassword); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{Status: "ok"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current account",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update profile",
		Errors:      []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdateProfile(ctx, caller, input.Body.DisplayName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-password",
		Method:      http.MethodPost,
		Path:        "/me/password",
		Summary:     "Change password",
		Errors:      []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ChangePasswordRequest `json:"body"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ChangePassword(ctx, caller, input.Body.CurrentPassword, input.Body.NewPassword); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"volunteer,organizer,admin,"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx, caller, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(users)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUser(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-role",
		Method:      http.MethodPatch,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body ChangeRoleRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.ChangeRole(ctx, caller, input.ID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body ProjectFieldsRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, caller, petitionOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"upcoming,active,completed,"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListProjects(ctx, repo.ProjectFilters{
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProjects{Items: []domain.Project{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = items
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u := repo.ProjectUpdate{
			Name:            input.Body.Name,
			LocationName:    input.Body.LocationName,
			Lat:             input.Body.Lat,
			Lng:             input.Body.Lng,
			Description:     input.Body.Description,
			TreeTarget:      input.Body.TreeTarget,
			VolunteerTarget: input.Body.VolunteerTarget,
			ScheduledDate:   input.Body.ScheduledDate,
			Status:          input.Body.Status,
		}
		if input.Body.Species != nil {
			u.Species = input.Body.Species
			u.SpeciesSet = true
		}
		p, err := e.UpdateProject(ctx, caller, input.ID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, caller, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/progress",
		Summary:     "Project progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ProjectProgress `json:"body"`
	}, error) {
		p, err := e.ProjectProgress(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectProgress `json:"body"`
		}{Body: p}, nil
	})
}

func petitionOptions(req ProjectFieldsRequest) engine.PetitionOptions {
	return engine.PetitionOptions{
		Name:            req.Name,
		LocationName:    req.LocationName,
		Lat:             req.Lat,
		Lng:             req.Lng,
		Description:     req.Description,
		TreeTarget:      req.TreeTarget,
		VolunteerTarget: req.VolunteerTarget,
		Species:         req.Species,
		ScheduledDate:   req.ScheduledDate,
	}
}

func registerPetitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-petition",
		Method:        http.MethodPost,
		Path:          "/petitions",
		Summary:       "Submit a project petition",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body ProjectFieldsRequest `json:"body"`
	}) (*struct {
		Body domain.Petition `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SubmitPetition(ctx, caller, petitionOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Petition `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-petitions",
		Method:      http.MethodGet,
		Path:        "/petitions",
		Summary:     "List petitions",
		Errors:      []int{http.StatusUnauthorized, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,approved,rejected,"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedPetitions `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListPetitions(ctx, caller, repo.PetitionFilters{
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedPetitions{Items: []domain.Petition{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = items
		return &struct {
			Body paginatedPetitions `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-petition",
		Method:      http.MethodGet,
		Path:        "/petitions/{id}",
		Summary:     "Get petition",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Petition `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetPetition(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Petition `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-petition",
		Method:      http.MethodPost,
		Path:        "/petitions/{id}/approve",
		Summary:     "Approve petition",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ApprovePetitionResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		pet, proj, err := e.ApprovePetition(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovePetitionResponse `json:"body"`
		}{Body: ApprovePetitionResponse{Petition: pet, Project: proj}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-petition",
		Method:      http.MethodPost,
		Path:        "/petitions/{id}/reject",
		Summary:     "Reject petition",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Petition `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		pet, err := e.RejectPetition(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Petition `json:"body"`
		}{Body: pet}, nil
	})
}

func registerRegistrations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/registrations",
		Summary:       "Register for a project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      RegisterRequest `json:"body"`
	}) (*struct {
		Body domain.Registration `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		reg, err := e.Register(ctx, caller, input.ProjectID, snapshotFromRequest(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Registration `json:"body"`
		}{Body: reg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-registrations",
		Method:      http.MethodGet,
		Path:        "/registrations",
		Summary:     "List registrations",
		Errors:      []int{http.StatusUnauthorized, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		UserID    string `query:"user_id"`
		Status    string `query:"status" enum:"confirmed,cancelled,"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedRegistrations `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListRegistrations(ctx, caller, repo.RegistrationFilters{
			UserID:          input.UserID,
			ProjectID:       input.ProjectID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedRegistrations{Items: []domain.Registration{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = items
		return &struct {
			Body paginatedRegistrations `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-registration",
		Method:      http.MethodGet,
		Path:        "/registrations/{id}",
		Summary:     "Get registration",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Registration `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		reg, err := e.GetRegistration(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Registration `json:"body"`
		}{Body: reg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-registration",
		Method:      http.MethodPost,
		Path:        "/registrations/{id}/cancel",
		Summary:     "Cancel registration",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Registration `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		reg, err := e.CancelRegistration(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Registration `json:"body"`
		}{Body: reg}, nil
	})
}

func registerAttendances(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "record-attendance",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/attendance",
		Summary:     "Record trees planted",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      RecordAttendanceRequest `json:"body"`
	}) (*struct {
		Body domain.Attendance `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RecordAttendance(ctx, caller, input.ProjectID, input.Body.TreesPlanted)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attendance `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-my-attendance",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/attendance",
		Summary:     "Get own attendance for a project",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Attendance `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAttendance(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attendance `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-attendances",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/attendances",
		Summary:     "List attendances for a project",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Attendance `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjectAttendances(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Attendance{}
		}
		return &struct {
			Body []domain.Attendance `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-attendances",
		Method:      http.MethodGet,
		Path:        "/me/attendances",
		Summary:     "List own attendances",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Attendance `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMyAttendances(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Attendance{}
		}
		return &struct {
			Body []domain.Attendance `json:"body"`
		}{Body: items}, nil
	})
}

func registerDonations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "donate",
		Method:        http.MethodPost,
		Path:          "/donations",
		Summary:       "Record a donation",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body DonateRequest `json:"body"`
	}) (*struct {
		Body domain.Donation `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Donate(ctx, caller, engine.DonationOptions{
			ProjectID:       input.Body.ProjectID,
			AmountCents:     input.Body.AmountCents,
			Currency:        input.Body.Currency,
			PaymentMethodID: input.Body.PaymentMethodID,
			Note:            input.Body.Note,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Donation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-donations",
		Method:      http.MethodGet,
		Path:        "/me/donations",
		Summary:     "List own donations",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Donation `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMyDonations(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Donation{}
		}
		return &struct {
			Body []domain.Donation `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-payment-method",
		Method:        http.MethodPost,
		Path:          "/me/payment-methods",
		Summary:       "Add payment method",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body AddPaymentMethodRequest `json:"body"`
	}) (*struct {
		Body domain.PaymentMethod `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddPaymentMethod(ctx, caller, input.Body.Kind, input.Body.Label, input.Body.Last4)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentMethod `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-payment-methods",
		Method:      http.MethodGet,
		Path:        "/me/payment-methods",
		Summary:     "List payment methods",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.PaymentMethod `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListPaymentMethods(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.PaymentMethod{}
		}
		return &struct {
			Body []domain.PaymentMethod `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-payment-method",
		Method:      http.MethodDelete,
		Path:        "/me/payment-methods/{id}",
		Summary:     "Remove payment method",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemovePaymentMethod(ctx, caller, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "global-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Global statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.GlobalStats `json:"body"`
	}, error) {
		stats, err := e.GlobalStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GlobalStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"100"`
		Cursor     int64  `query:"cursor"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, caller, input.Limit, input.Cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
