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
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"practiceflow/internal/config"
	"practiceflow/internal/engine"
	"practiceflow/internal/engine/auth"
	"practiceflow/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"permission radar.view required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Practiceflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
	hcfg := huma.DefaultConfig("Practiceflow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerWorkspaces(group, cfg.Engine)
	registerReferrals(group, cfg.Engine)
	registerStaff(group, cfg.Engine)
	registerStubTasks(group, cfg.Engine)
	registerAnnouncements(group, cfg.Engine)
	registerRadar(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "transition"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "already acknowledged"), strings.Contains(lowered, "cannot record contact"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "must be"):
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

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

func requirePermission(ctx context.Context, e engine.Engine, workspaceID, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if hasPermission(principal.Permissions, perm) {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, workspaceID, principal.ActorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: perm}
	}
	return nil
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
	openPaths := map[string]bool{
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
			if openPaths[route] {
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
    <title>Practiceflow API Docs</title>
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

func registerWorkspaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest `json:"body"`
	}) (*struct {
		Body WorkspaceResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.WorkspaceInitOptions{
			Name:       input.Body.Name,
			Type:       input.Body.Type,
			OwnerName:  input.Body.OwnerName,
			OwnerEmail: input.Body.OwnerEmail,
			ActorID:    actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		w, err := e.InitWorkspace(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkspaceResponse `json:"body"`
		}{Body: workspaceResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List workspaces",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WorkspaceResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListWorkspaces(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]WorkspaceResponse, 0, len(items))
		for _, w := range items {
			res = append(res, workspaceResponse(w))
		}
		return &struct {
			Body []WorkspaceResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Get workspace",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body WorkspaceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "workspace.read"); err != nil {
			return nil, handleError(err)
		}
		w, err := e.Repo.GetWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkspaceResponse `json:"body"`
		}{Body: workspaceResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace-config",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/config",
		Summary:     "Get workspace config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body WorkspaceConfigResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "workspace.read"); err != nil {
			return nil, handleError(err)
		}
		cfg, err := e.Repo.GetWorkspaceConfig(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkspaceConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-workspace-config",
		Method:      http.MethodPut,
		Path:        "/workspaces/{workspace_id}/config",
		Summary:     "Import workspace config",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string        `path:"workspace_id"`
		Body        config.Config `json:"body"`
	}) (*struct {
		Body WorkspaceConfigResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "workspace.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cfg := input.Body
		cfg.Workspace.ID = input.WorkspaceID
		if err := cfg.Validate(); err != nil {
			return nil, handleError(err)
		}
		if err := e.ImportConfig(ctx, input.WorkspaceID, &cfg, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkspaceConfigResponse `json:"body"`
		}{Body: configResponse(&cfg)}, nil
	})
}

func registerReferrals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-referral",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/referrals",
		Summary:       "Create referral",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                `path:"workspace_id"`
		Body        CreateReferralRequest `json:"body"`
	}) (*struct {
		Body ReferralResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ReferralCreateOptions{
			WorkspaceID:   input.WorkspaceID,
			ClientName:    input.Body.ClientName,
			ClientPhone:   input.Body.ClientPhone,
			ClientEmail:   input.Body.ClientEmail,
			CreatedByID:   actorID,
			AcknowledgeBy: input.Body.AcknowledgeBy,
			ContactBy:     input.Body.ContactBy,
			ActorID:       actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.AssigneeID != nil {
			opts.AssigneeID = *input.Body.AssigneeID
		}
		rf, err := e.CreateReferral(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReferralResponse `json:"body"`
		}{Body: referralResponse(rf)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-referrals",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/referrals",
		Summary:     "List referrals",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Status      string `query:"status" enum:",NEW,ACKNOWLEDGED,CONTACT_IN_PROGRESS,APPT_SCHEDULED,INTAKE_BLOCKED,INTAKE_READY"`
		AssigneeID  string `query:"assignee_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedReferrals `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListReferrals(ctx, repo.ReferralFilters{
			WorkspaceID:     input.WorkspaceID,
			Status:          input.Status,
			AssigneeID:      input.AssigneeID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedReferrals{Items: []ReferralResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, rf := range items {
			resp.Items = append(resp.Items, referralResponse(rf))
		}
		return &struct {
			Body paginatedReferrals `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-referral",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/referrals/{referral_id}",
		Summary:     "Get referral",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		ReferralID  string `path:"referral_id"`
	}) (*struct {
		Body ReferralResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.read"); err != nil {
			return nil, handleError(err)
		}
		rf, err := e.Repo.GetReferral(ctx, input.ReferralID)
		if err != nil {
			return nil, handleError(err)
		}
		if rf.WorkspaceID != input.WorkspaceID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "referral not found", nil)
		}
		return &struct {
			Body ReferralResponse `json:"body"`
		}{Body: referralResponse(rf)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-referral",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}/referrals/{referral_id}",
		Summary:     "Update referral",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                `path:"workspace_id"`
		ReferralID  string                `path:"referral_id"`
		Force       bool                  `query:"force"`
		Body        UpdateReferralRequest `json:"body"`
	}) (*struct {
		Body ReferralResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.update"); err != nil {
			return nil, handleError(err)
		}
		if input.Body.AssigneeID != nil {
			if err := requirePermission(ctx, e, input.WorkspaceID, "referral.assign"); err != nil {
				return nil, handleError(err)
			}
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ReferralUpdateOptions{
			ID:               input.ReferralID,
			Assign:           input.Body.AssigneeID,
			ClientPhone:      input.Body.ClientPhone,
			ClientEmail:      input.Body.ClientEmail,
			ContactBy:        input.Body.ContactBy,
			FirstSessionDate: input.Body.FirstSessionDate,
			ActorID:          actorID,
			Force:            input.Force,
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		rf, err := e.UpdateReferral(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReferralResponse `json:"body"`
		}{Body: referralResponse(rf)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-referral",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/referrals/{referral_id}/acknowledge",
		Summary:     "Acknowledge referral",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		ReferralID  string `path:"referral_id"`
	}) (*struct {
		Body ReferralResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rf, err := e.AcknowledgeReferral(ctx, input.ReferralID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReferralResponse `json:"body"`
		}{Body: referralResponse(rf)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-contact-outcome",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/referrals/{referral_id}/contact",
		Summary:     "Record contact outcome",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                `path:"workspace_id"`
		ReferralID  string                `path:"referral_id"`
		Body        ContactOutcomeRequest `json:"body"`
	}) (*struct {
		Body ReferralResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rf, err := e.RecordContactOutcome(ctx, input.ReferralID, input.Body.Outcome, input.Body.FirstSessionDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReferralResponse `json:"body"`
		}{Body: referralResponse(rf)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-referral-checklist",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/referrals/{referral_id}/checklist",
		Summary:     "Get referral checklist",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		ReferralID  string `path:"referral_id"`
	}) (*struct {
		Body ChecklistResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.read"); err != nil {
			return nil, handleError(err)
		}
		cl, err := e.Repo.GetChecklist(ctx, input.ReferralID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChecklistResponse `json:"body"`
		}{Body: checklistResponse(cl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-referral-checklist",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}/referrals/{referral_id}/checklist",
		Summary:     "Update referral checklist",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                 `path:"workspace_id"`
		ReferralID  string                 `path:"referral_id"`
		Body        UpdateChecklistRequest `json:"body"`
	}) (*struct {
		Body ChecklistResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "referral.update"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cl, err := e.UpdateChecklist(ctx, engine.ChecklistUpdateOptions{
			ReferralID:         input.ReferralID,
			AckSignedInEHR:     input.Body.AckSignedInEHR,
			MissingPaymentAuth: input.Body.MissingPaymentAuth,
			MissingConsent:     input.Body.MissingConsent,
			MissingPrivacy:     input.Body.MissingPrivacy,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChecklistResponse `json:"body"`
		}{Body: checklistResponse(cl)}, nil
	})
}

func registerStaff(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-staff",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/staff",
		Summary:       "Add staff profile",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string             `path:"workspace_id"`
		Body        CreateStaffRequest `json:"body"`
	}) (*struct {
		Body StaffResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "staff.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.StaffCreateOptions{
			WorkspaceID: input.WorkspaceID,
			FullName:    input.Body.FullName,
			Email:       input.Body.Email,
			Phone:       input.Body.Phone,
			Role:        input.Body.Role,
			ActorID:     actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		p, err := e.CreateStaffProfile(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StaffResponse `json:"body"`
		}{Body: staffResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-staff",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/staff",
		Summary:     "List staff profiles",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Role        string `query:"role" enum:",OWNER,THERAPIST,INTERN"`
		Status      string `query:"status" enum:",active,inactive"`
	}) (*struct {
		Body []StaffResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "workspace.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStaffProfiles(ctx, repo.StaffFilters{
			WorkspaceID: input.WorkspaceID,
			Role:        input.Role,
			Status:      input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StaffResponse, 0, len(items))
		for _, p := range items {
			res = append(res, staffResponse(p))
		}
		return &struct {
			Body []StaffResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-staff",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}/staff/{staff_id}",
		Summary:     "Update staff profile",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string             `path:"workspace_id"`
		StaffID     string             `path:"staff_id"`
		Body        UpdateStaffRequest `json:"body"`
	}) (*struct {
		Body StaffResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "staff.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.StaffUpdateOptions{
			ID:      input.StaffID,
			Email:   input.Body.Email,
			Phone:   input.Body.Phone,
			ActorID: actorID,
		}
		if input.Body.FullName != nil {
			opts.FullName = *input.Body.FullName
		}
		if input.Body.Role != nil {
			opts.Role = *input.Body.Role
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		p, err := e.UpdateStaffProfile(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StaffResponse `json:"body"`
		}{Body: staffResponse(p)}, nil
	})
}

func registerStubTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-stub-task",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/stub-tasks",
		Summary:       "Create stub task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                `path:"workspace_id"`
		Body        CreateStubTaskRequest `json:"body"`
	}) (*struct {
		Body StubTaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "stub.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.StubTaskOptions{
			WorkspaceID: input.WorkspaceID,
			Title:       input.Body.Title,
			Detail:      input.Body.Detail,
			Label:       input.Body.Label,
			DueDate:     input.Body.DueDate,
			Assign:      input.Body.AssigneeID,
			ActorID:     actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		t, err := e.CreateStubTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StubTaskResponse `json:"body"`
		}{Body: stubTaskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stub-tasks",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/stub-tasks",
		Summary:     "List stub tasks",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Status      string `query:"status" enum:",open,done"`
		AssigneeID  string `query:"assignee_id"`
	}) (*struct {
		Body []StubTaskResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "workspace.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStubTasks(ctx, repo.StubTaskFilters{
			WorkspaceID: input.WorkspaceID,
			Status:      input.Status,
			AssigneeID:  input.AssigneeID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StubTaskResponse, 0, len(items))
		for _, t := range items {
			res = append(res, stubTaskResponse(t))
		}
		return &struct {
			Body []StubTaskResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stub-task",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}/stub-tasks/{task_id}",
		Summary:     "Update stub task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                `path:"workspace_id"`
		TaskID      string                `path:"task_id"`
		Body        UpdateStubTaskRequest `json:"body"`
	}) (*struct {
		Body StubTaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "stub.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.StubTaskOptions{
			ID:      input.TaskID,
			Detail:  input.Body.Detail,
			Label:   input.Body.Label,
			DueDate: input.Body.DueDate,
			Assign:  input.Body.AssigneeID,
			ActorID: actorID,
		}
		if input.Body.Title != nil {
			opts.Title = *input.Body.Title
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		t, err := e.UpdateStubTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StubTaskResponse `json:"body"`
		}{Body: stubTaskResponse(t)}, nil
	})
}

func registerAnnouncements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-announcement",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/announcements",
		Summary:       "Post announcement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                    `path:"workspace_id"`
		Body        CreateAnnouncementRequest `json:"body"`
	}) (*struct {
		Body AnnouncementResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.WorkspaceID, "announcement.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAnnouncement(ctx, engine.AnnouncementCreateOptions{
			WorkspaceID: input.WorkspaceID,
			Title:       input.Body.Title,
			Body:        input.Body.Body,
			AuthorID:    actorID,
			Pinned:      input.Body.Pinned,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnnouncementResponse `json:"body"`
		}{Body: announcementResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-announcements",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/announcements",
		Summary:     "List announcements",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body []AnnouncementResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "workspace.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAnnouncements(ctx, input.WorkspaceID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]AnnouncementResponse, 0, len(items))
		for _, a := range items {
			res = append(res, announcementResponse(a))
		}
		return &struct {
			Body []AnnouncementResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pin-announcement",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/announcements/{announcement_id}/pin",
		Summary:     "Pin or unpin announcement",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID    string `path:"workspace_id"`
		AnnouncementID string `path:"announcement_id"`
		Body           struct {
			Pinned bool `json:"pinned"`
		} `json:"body"`
	}) (*struct {
		Body AnnouncementResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "announcement.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.PinAnnouncement(ctx, input.AnnouncementID, input.Body.Pinned, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnnouncementResponse `json:"body"`
		}{Body: announcementResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-announcement",
		Method:      http.MethodDelete,
		Path:        "/workspaces/{workspace_id}/announcements/{announcement_id}",
		Summary:     "Delete announcement",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID    string `path:"workspace_id"`
		AnnouncementID string `path:"announcement_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "announcement.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAnnouncement(ctx, input.AnnouncementID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerRadar(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-radar",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/radar",
		Summary:     "Scored radar for the current viewer",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		ViewerID    string `query:"viewer_id" doc:"View as another staff member (requires staff.manage)"`
	}) (*struct {
		Body RadarResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "radar.view"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		viewerID := actorID
		if input.ViewerID != "" && input.ViewerID != actorID {
			if err := requirePermission(ctx, e, input.WorkspaceID, "staff.manage"); err != nil {
				return nil, handleError(err)
			}
			viewerID = input.ViewerID
		}
		snap, err := e.RadarView(ctx, input.WorkspaceID, viewerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RadarResponse `json:"body"`
		}{Body: radarResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-radar-view",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/radar/{item_id}/view",
		Summary:     "Record viewing a radar item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		ItemID      string `path:"item_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "radar.view"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RecordItemView(ctx, input.WorkspaceID, actorID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "defer-radar-item",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/radar/{item_id}/defer",
		Summary:     "Bump drift for a deferred radar item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		ItemID      string `path:"item_id"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "radar.view"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		drift, err := e.DeferItem(ctx, input.WorkspaceID, actorID, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"drift": drift}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.WorkspaceID, "workspace.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.EventsAfter(ctx, limit+1, cursorID, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/me/permissions",
		Summary:     "Current actor permissions",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		who, err := e.WhoAmI(ctx, input.WorkspaceID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     who.ActorID,
			Roles:       nonNilSlice(who.Roles),
			Permissions: nonNilSlice(who.Permissions),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/rbac/roles/grant",
		Summary:     "Grant role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		Body        RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, input.WorkspaceID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/rbac/roles/revoke",
		Summary:     "Revoke role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		Body        RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.WorkspaceID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		k, raw, err := e.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        k.ID,
			ActorID:   k.ActorID,
			Name:      k.Name,
			Key:       raw,
			CreatedAt: k.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys for the current actor",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			res = append(res, APIKeyResponse{
				ID:        k.ID,
				ActorID:   k.ActorID,
				Name:      k.Name,
				CreatedAt: k.CreatedAt,
			})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, input.KeyID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
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
		roles := principal.Roles
		perms := principal.Permissions
		if len(perms) == 0 && e.Config != nil {
			if who, err := e.WhoAmI(ctx, e.Config.Workspace.ID, principal.ActorID); err == nil {
				if len(roles) == 0 {
					roles = who.Roles
				}
				perms = who.Permissions
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles, input.Body.Permissions)
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
