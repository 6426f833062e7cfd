// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/leadtier/internal/adapters/http/swagger"
	service "github.com/okian/leadtier/internal/app"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/logger"
	"github.com/okian/leadtier/pkg/metrics"
)

const defaultMaxTopLimit = 100

// Engine is the scoring surface the handlers translate to.
type Engine interface {
	Track(ctx context.Context, t model.Tracked) (model.RealTimeEngagementUpdate, error)
	GetLeadScore(ctx context.Context, userID string) (service.LeadScore, error)
	UpsertLead(ctx context.Context, lead model.Lead) error
	UpdateLeadScore(ctx context.Context, userID string) (*model.TierChangeResult, error)
	BatchUpdateScores(ctx context.Context, userIDs []string) service.BatchResult
	RecalculateAllScores(ctx context.Context) (service.BatchResult, error)
	ScoreDistribution(ctx context.Context) (model.ScoreDistribution, error)
	ProgressionStats(ctx context.Context) (model.ProgressionStats, error)
	TopScores(ctx context.Context, t *model.Tier, n int) ([]model.ScoreEntry, error)
}

// Ingestor queues tracking beacons for the worker pool.
type Ingestor interface {
	Enqueue(ctx context.Context, t model.Tracked) error
}

// Pinger reports dependency health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	engine   Engine
	ingestor Ingestor
	pinger   Pinger
	stats    StatsProvider

	validate      *validator.Validate
	maxTopLimit   int
	acceptUnknown bool
	logger        logger.Logger
}

// NewServer creates a new API server.
func NewServer(engine Engine, ingestor Ingestor, pinger Pinger, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		engine:      engine,
		ingestor:    ingestor,
		pinger:      pinger,
		stats:       stats,
		validate:    validator.New(),
		maxTopLimit: defaultMaxTopLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Routes returns the router with every route attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	swagger.Register(r)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/interactions", s.handleApplyInteraction)
		r.Post("/events", s.handleTrackEvent)

		r.Route("/leads", func(r chi.Router) {
			r.Post("/recalculate", s.handleBatchRecalculate)
			r.Post("/recalculate-all", s.handleRecalculateAll)
			r.Get("/{id}/score", s.handleGetLeadScore)
			r.Put("/{id}", s.handleUpsertLead)
			r.Post("/{id}/recalculate", s.handleRecalculateLead)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/distribution", s.handleDistribution)
			r.Get("/progression", s.handleProgression)
			r.Get("/top", s.handleTopScores)
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps an error kind to its HTTP status and response code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrPersistence), errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.WrapKind(op, ErrBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return model.WrapKind(op, ErrBadRequest, err)
	}
	return nil
}
