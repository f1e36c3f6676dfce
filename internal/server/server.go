// Package server exposes the wayfinder engine over HTTP.
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

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"wayfinder/internal/engine"
	"wayfinder/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"algorithm not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Wayfinder API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server requires an engine")
	}
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
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Wayfinder API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerValidate(group, cfg.Engine)
	registerRepairs(group, cfg.Engine)
	registerGenerations(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerAlgorithms(group, cfg.Engine)
	registerProviders(group, cfg.Engine)
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "does not satisfy the contract"):
		return newAPIError(http.StatusUnprocessableEntity, "contract_violation", msg, nil)
	case strings.Contains(lowered, "not configured"),
		strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "missing"),
		strings.Contains(lowered, "required"):
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Wayfinder API Docs</title>
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

func registerValidate(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-source",
		Method:      http.MethodPost,
		Path:        "/validate",
		Summary:     "Validate candidate source",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ValidateRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		if input.Body.Source == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "source is required", nil)
		}
		if input.Body.TypeName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type_name is required", nil)
		}
		report, err := e.ValidateSource(ctx, input.Body.Source, input.Body.TypeName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(report)}, nil
	})
}

func registerRepairs(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-repair",
		Method:        http.MethodPost,
		Path:          "/repairs",
		Summary:       "Start a repair job",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body RepairRequest `json:"body"`
	}) (*struct {
		Body TaskSubmittedResponse `json:"body"`
	}, error) {
		if input.Body.Source == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "source is required", nil)
		}
		if input.Body.TypeName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type_name is required", nil)
		}
		taskID, err := e.SubmitFix(ctx, input.Body.Source, input.Body.TypeName, input.Body.Provider)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskSubmittedResponse `json:"body"`
		}{Body: TaskSubmittedResponse{TaskID: taskID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-repairs",
		Method:      http.MethodGet,
		Path:        "/repairs",
		Summary:     "List repair jobs",
	}, func(ctx context.Context, input *struct {
		Algorithm string `query:"algorithm"`
		Status    string `query:"status"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []RepairJobResponse `json:"body"`
	}, error) {
		jobs, err := e.RepairJobs(ctx, repo.RepairJobFilters{
			Algorithm: input.Algorithm,
			Status:    input.Status,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RepairJobResponse `json:"body"`
		}{Body: mapRepairJobs(jobs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-repair",
		Method:      http.MethodGet,
		Path:        "/repairs/{id}",
		Summary:     "Get repair job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body RepairJobResponse `json:"body"`
	}, error) {
		job, err := e.RepairJob(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RepairJobResponse `json:"body"`
		}{Body: repairJobResponse(job)}, nil
	})
}

func registerGenerations(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-generation",
		Method:        http.MethodPost,
		Path:          "/generations",
		Summary:       "Generate an algorithm from a description",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body GenerateRequest `json:"body"`
	}) (*struct {
		Body TaskSubmittedResponse `json:"body"`
	}, error) {
		if input.Body.Description == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "description is required", nil)
		}
		if input.Body.TypeName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type_name is required", nil)
		}
		taskID, err := e.SubmitGenerate(ctx, input.Body.Description, input.Body.TypeName, input.Body.Provider)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskSubmittedResponse `json:"body"`
		}{Body: TaskSubmittedResponse{TaskID: taskID}}, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(e.Tasks())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		snap, ok := e.Task(input.ID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found", nil)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(snap)}, nil
	})

	type taskAction struct {
		name    string
		summary string
		fn      func(context.Context, string) bool
	}
	for _, action := range []taskAction{
		{"pause", "Pause task", e.PauseTask},
		{"resume", "Resume task", e.ResumeTask},
		{"cancel", "Cancel task", e.CancelTask},
	} {
		action := action
		huma.Register(api, huma.Operation{
			OperationID: action.name + "-task",
			Method:      http.MethodPost,
			Path:        "/tasks/{id}/" + action.name,
			Summary:     action.summary,
			Errors:      []int{http.StatusConflict, http.StatusNotFound},
		}, func(ctx context.Context, input *struct {
			ID string `path:"id"`
		}) (*struct {
			Body TaskResponse `json:"body"`
		}, error) {
			if _, ok := e.Task(input.ID); !ok {
				return nil, newAPIError(http.StatusNotFound, "not_found", "task not found", nil)
			}
			if !action.fn(ctx, input.ID) {
				return nil, newAPIError(http.StatusConflict, "invalid_transition", fmt.Sprintf("task cannot %s in its current state", action.name), nil)
			}
			snap, _ := e.Task(input.ID)
			return &struct {
				Body TaskResponse `json:"body"`
			}{Body: taskResponse(snap)}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "remove-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Remove a finished task",
		Errors:      []int{http.StatusConflict, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, ok := e.Task(input.ID); !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found", nil)
		}
		if !e.RemoveTask(ctx, input.ID) {
			return nil, newAPIError(http.StatusConflict, "invalid_transition", "task is still active", nil)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/sweep",
		Summary:     "Remove old finished tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		n := e.SweepTasks(ctx)
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"removed": n}}, nil
	})
}

func registerAlgorithms(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-algorithms",
		Method:      http.MethodGet,
		Path:        "/algorithms",
		Summary:     "List algorithms",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AlgorithmResponse `json:"body"`
	}, error) {
		return &struct {
			Body []AlgorithmResponse `json:"body"`
		}{Body: mapAlgorithms(e.ListAlgorithms())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-algorithm",
		Method:      http.MethodGet,
		Path:        "/algorithms/{name}",
		Summary:     "Get algorithm",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body AlgorithmResponse `json:"body"`
	}, error) {
		info, ok := e.GetAlgorithm(input.Name)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "algorithm not found", nil)
		}
		return &struct {
			Body AlgorithmResponse `json:"body"`
		}{Body: algorithmResponse(info)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "load-algorithm",
		Method:        http.MethodPut,
		Path:          "/algorithms/{name}",
		Summary:       "Load algorithm source",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Name string               `path:"name"`
		Body LoadAlgorithmRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		if input.Body.Source == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "source is required", nil)
		}
		report, err := e.LoadAlgorithm(ctx, input.Name, input.Body.Source, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-algorithm",
		Method:      http.MethodDelete,
		Path:        "/algorithms/{name}",
		Summary:     "Remove algorithm",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct{}, error) {
		if err := e.RemoveAlgorithm(ctx, input.Name); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-algorithm",
		Method:      http.MethodPost,
		Path:        "/algorithms/{name}/run",
		Summary:     "Run algorithm on a grid",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string              `path:"name"`
		Body RunAlgorithmRequest `json:"body"`
	}) (*struct {
		Body RunResultResponse `json:"body"`
	}, error) {
		if input.Body.Width <= 0 || input.Body.Height <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "width and height must be positive", nil)
		}
		if _, ok := e.GetAlgorithm(input.Name); !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "algorithm not found", nil)
		}
		path, visited := e.ExecuteAlgorithm(ctx, input.Name, input.Body.Width, input.Body.Height, input.Body.Grid, input.Body.Start, input.Body.End)
		return &struct {
			Body RunResultResponse `json:"body"`
		}{Body: RunResultResponse{Path: path, Visited: visited}}, nil
	})
}

func registerProviders(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        "/providers",
		Summary:     "List oracle providers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProviderResponse `json:"body"`
	}, error) {
		out := []ProviderResponse{}
		for _, p := range e.Providers() {
			out = append(out, ProviderResponse{
				Name:    p.Name,
				BaseURL: p.BaseURL,
				Model:   p.Model,
				Default: p.Name == e.Config.Oracle.Default,
			})
		}
		return &struct {
			Body []ProviderResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"100"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		evts, err := e.EventLog(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(evts)}, nil
	})
}
