// Package api provides HTTP handlers for the relaunch API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/relaunch/internal/core/domain"
	"github.com/artpar/relaunch/internal/core/validation"
	authmw "github.com/artpar/relaunch/internal/shell/api/middleware"
	"github.com/artpar/relaunch/internal/shell/api/openapi"
	"github.com/artpar/relaunch/internal/shell/deploy"
	"github.com/artpar/relaunch/internal/shell/metrics"
	"github.com/artpar/relaunch/internal/shell/store"
)

// readyTimeout bounds each readiness probe.
const readyTimeout = 5 * time.Second

// =============================================================================
// Handler
// =============================================================================

// DeployRunner runs one deploy invocation.
type DeployRunner interface {
	Deploy(ctx context.Context, req domain.DeployRequest) (domain.DeployResponse, error)
}

// Pinger is implemented by the engine client and the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the collaborators of a Handler.
type Config struct {
	Deployer DeployRunner
	Store    store.Store
	Engine   Pinger
	Metrics  *metrics.Metrics
	Auth     authmw.AuthConfig
	Version  string
	Logger   *slog.Logger
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	deployer DeployRunner
	store    store.Store
	engine   Pinger
	metrics  *metrics.Metrics
	auth     *authmw.AuthMiddleware
	openapi  *openapi.Generator
	version  string
	logger   *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	authCfg := cfg.Auth
	if authCfg.Logger == nil {
		authCfg.Logger = l
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		deployer: cfg.Deployer,
		store:    cfg.Store,
		engine:   cfg.Engine,
		metrics:  cfg.Metrics,
		auth:     authmw.NewAuthMiddleware(authCfg),
		openapi:  newOpenAPIGenerator(version),
		version:  version,
		logger:   l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	r.Handle("/metrics", h.metrics.Handler())
	r.Get("/openapi.json", h.openapi.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(h.auth.Handler)

			r.Post("/deploy", h.handleDeploy)

			r.Route("/deployments", func(r chi.Router) {
				r.Get("/", h.handleListDeployments)
				r.Get("/{id}", h.handleGetDeployment)
			})
		})
	})

	return r
}

func newOpenAPIGenerator(version string) *openapi.Generator {
	g := openapi.NewGenerator(
		openapi.WithVersion(version),
		openapi.WithSecretHeader(authmw.HeaderSharedSecret),
	)
	g.RegisterOperation(openapi.Operation{
		Method:  http.MethodPost,
		Path:    "/api/v1/deploy",
		ID:      "deploy",
		Summary: "Replace the named instance with repo:version and start it",
		Tag:     "Deployments",
		Request: domain.DeployRequest{},
		Responses: map[int]any{
			http.StatusOK:                  domain.DeployResponse{},
			http.StatusBadRequest:          ErrorResponse{},
			http.StatusConflict:            domain.DeployResponse{},
			http.StatusInternalServerError: domain.DeployResponse{},
		},
		Secured: true,
	})
	g.RegisterOperation(openapi.Operation{
		Method:    http.MethodGet,
		Path:      "/api/v1/deployments",
		ID:        "listDeployments",
		Summary:   "List deployment history, newest first",
		Tag:       "Deployments",
		Query:     []string{"name", "limit", "offset"},
		Responses: map[int]any{http.StatusOK: ListDeploymentsResponse{}},
		Secured:   true,
	})
	g.RegisterOperation(openapi.Operation{
		Method:  http.MethodGet,
		Path:    "/api/v1/deployments/{id}",
		ID:      "getDeployment",
		Summary: "Get one deployment record",
		Tag:     "Deployments",
		Responses: map[int]any{
			http.StatusOK:       domain.DeploymentRecord{},
			http.StatusNotFound: ErrorResponse{},
		},
		Secured: true,
	})
	g.RegisterOperation(openapi.Operation{
		Method:    http.MethodGet,
		Path:      "/health",
		ID:        "health",
		Tag:       "Health",
		Responses: map[int]any{http.StatusOK: HealthResponse{}},
	})
	g.RegisterOperation(openapi.Operation{
		Method: http.MethodGet,
		Path:   "/ready",
		ID:     "ready",
		Tag:    "Health",
		Responses: map[int]any{
			http.StatusOK:                 ReadyResponse{},
			http.StatusServiceUnavailable: ReadyResponse{},
		},
	})
	return g
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	probe := func(name string, p Pinger) {
		if p == nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = "failed"
			ready = false
			return
		}
		checks[name] = "ok"
	}

	probe("database", h.store)
	probe("docker", h.engine)

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deploy Handlers
// =============================================================================

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req domain.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if field, msg := validation.ValidateDeployRequest(req); field != "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: msg,
			Code:  "validation_error",
			Field: field,
		})
		return
	}

	// A disconnecting client must not abort a deployment halfway through.
	ctx := context.WithoutCancel(r.Context())

	resp, err := h.deployer.Deploy(ctx, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, deploy.ErrDeploymentInProgress) {
			status = http.StatusConflict
		}
		h.writeJSON(w, status, resp)
		return
	}

	if !resp.Success {
		h.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// History Handlers
// =============================================================================

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	opts = opts.Normalize()

	var (
		records []domain.DeploymentRecord
		err     error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		records, err = h.store.ListDeploymentsByName(r.Context(), name, opts)
	} else {
		records, err = h.store.ListDeployments(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list deployments", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, ListDeploymentsResponse{
		Deployments: records,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.store.GetDeployment(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "not_found")
			return
		}
		h.logger.Error("failed to get deployment", "deployment_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
