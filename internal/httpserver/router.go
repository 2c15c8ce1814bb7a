package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/pipeline"
	"github.com/nao1215/scanpipe/internal/scan"
	"github.com/nao1215/scanpipe/internal/status"
)

// maxBodySize bounds the start request body.
const maxBodySize = 64 << 10

// ScanService is the part of *scan.Service the router uses.
type ScanService interface {
	Start(ctx context.Context, req model.ScanRequest) (scan.Response, error)
	Status(ctx context.Context, id uuid.UUID) (*model.RunStatus, error)
	Details(ctx context.Context, id uuid.UUID) ([]model.StatusDetail, error)
	History(ctx context.Context, workUnitID, spk string) ([]model.RunStatus, error)
	Findings(ctx context.Context, id uuid.UUID, limit int) ([]model.Finding, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router serves the trigger and the status queries.
type Router struct {
	svc     ScanService
	ready   Pinger
	metrics http.Handler
	origins []string
	logger  *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithReadiness makes /readyz ping p.
func WithReadiness(p Pinger) RouterOption {
	return func(r *Router) {
		r.ready = p
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(r *Router) {
		r.metrics = h
	}
}

// WithCORSOrigins allows browsers from origins to call the API.
func WithCORSOrigins(origins []string) RouterOption {
	return func(r *Router) {
		r.origins = origins
	}
}

// WithRouterLogger sets the request logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter builds the HTTP handler.
func NewRouter(svc ScanService, opts ...RouterOption) http.Handler {
	r := &Router{svc: svc}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger(r.logger))
	mux.Use(middleware.Recoverer)
	if len(r.origins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: r.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Get("/readyz", r.wrap(r.handleReady))
	if r.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", r.metrics)
	}

	mux.Post("/start-scan", r.wrap(r.handleStart))
	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scans", r.wrap(r.handleStart))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Delete("/scans/{id}", r.wrap(r.handleDelete))
		rt.Get("/scans/{id}/details", r.wrap(r.handleDetails))
		rt.Get("/scans/{id}/findings", r.wrap(r.handleFindings))
		rt.Get("/work-units/{workUnitId}/scans", r.wrap(r.handleHistory))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries an explicit status code.
type httpError struct {
	code int
	err  error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &httpError{code: http.StatusBadRequest, err: err}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			code := statusCode(err)
			if code >= http.StatusInternalServerError {
				r.logger.ErrorContext(req.Context(), "request failed", "path", req.URL.Path, "error", err)
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
		}
	}
}

func statusCode(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.code
	case errors.Is(err, status.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scan.ErrInvalidRequest), errors.Is(err, pipeline.ErrUnsupportedTechnology):
		return http.StatusBadRequest
	case errors.Is(err, scan.ErrRunInFlight):
		return http.StatusConflict
	case errors.Is(err, scan.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /start-scan, POST /v1/scans
// Body: {"technology": "JAVA", "workUnitId": "...", "spk": "..."}
func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) error {
	var body model.ScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return badRequest(fmt.Errorf("malformed request body: %w", err))
	}

	resp, err := r.svc.Start(req.Context(), body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, resp)
	return nil
}

func (r *Router) handleReady(w http.ResponseWriter, req *http.Request) error {
	if r.ready != nil {
		if err := r.ready.Ping(req.Context()); err != nil {
			return &httpError{code: http.StatusServiceUnavailable, err: fmt.Errorf("store unavailable: %w", err)}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	return nil
}

// GET /v1/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := requestID(req)
	if err != nil {
		return err
	}
	rs, err := r.svc.Status(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rs)
	return nil
}

// DELETE /v1/scans/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := requestID(req)
	if err != nil {
		return err
	}
	if err := r.svc.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/scans/{id}/details
func (r *Router) handleDetails(w http.ResponseWriter, req *http.Request) error {
	id, err := requestID(req)
	if err != nil {
		return err
	}
	details, err := r.svc.Details(req.Context(), id)
	if err != nil {
		return err
	}
	if details == nil {
		details = []model.StatusDetail{}
	}
	writeJSON(w, http.StatusOK, details)
	return nil
}

// GET /v1/scans/{id}/findings?limit=
func (r *Router) handleFindings(w http.ResponseWriter, req *http.Request) error {
	id, err := requestID(req)
	if err != nil {
		return err
	}
	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(fmt.Errorf("invalid limit %q", raw))
		}
	}
	list, err := r.svc.Findings(req.Context(), id, limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []model.Finding{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/work-units/{workUnitId}/scans?spk=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	workUnit := chi.URLParam(req, "workUnitId")
	runs, err := r.svc.History(req.Context(), workUnit, req.URL.Query().Get("spk"))
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []model.RunStatus{}
	}
	writeJSON(w, http.StatusOK, runs)
	return nil
}

func requestID(req *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(req, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest(fmt.Errorf("invalid request id %q", raw))
	}
	return id, nil
}
