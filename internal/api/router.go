// Package api exposes the fraud orchestrator over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/orchestrator"
	"github.com/sells-group/fraud-ensemble/internal/store"
	"github.com/sells-group/fraud-ensemble/internal/telemetry"
)

const defaultBodyLimit = 1 << 20

// Scorer runs one fraud check.
type Scorer interface {
	Handle(ctx context.Context, tx model.Transaction, opts ...orchestrator.HandleOption) (*orchestrator.Result, error)
}

// DecisionReader reads audited decisions.
type DecisionReader interface {
	GetDecision(ctx context.Context, id string) (*store.Decision, error)
	ListDecisions(ctx context.Context, filter store.DecisionFilter) ([]store.Decision, error)
}

// Server holds the handler dependencies.
type Server struct {
	scorer         Scorer
	decisions      DecisionReader
	defaultWeights []float64
	corsOrigins    []string
	bodyLimit      int64
}

// Option configures a Server.
type Option func(*Server)

// WithDecisions mounts the decision audit endpoints backed by r.
func WithDecisions(r DecisionReader) Option {
	return func(s *Server) {
		s.decisions = r
	}
}

// WithDefaultWeights sets the weights used by the stand-alone aggregator
// when a request omits them.
func WithDefaultWeights(w []float64) Option {
	return func(s *Server) {
		s.defaultWeights = w
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithBodyLimit caps request body size in bytes.
func WithBodyLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.bodyLimit = n
		}
	}
}

// NewServer creates a Server around scorer.
func NewServer(scorer Scorer, opts ...Option) *Server {
	s := &Server{
		scorer:      scorer,
		corsOrigins: []string{"*"},
		bodyLimit:   defaultBodyLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the chi router with middleware and all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(telemetry.HTTPMiddleware("fraud-ensemble"))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/orchestrator", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/fraud-check", s.handleFraudCheck)
		if s.decisions != nil {
			r.Get("/decisions", s.handleListDecisions)
			r.Get("/decisions/{id}", s.handleGetDecision)
		}
	})

	r.Route("/aggregator", func(r chi.Router) {
		r.Get("/", s.handleAggregatorStatus)
		r.Post("/aggregate", s.handleAggregate)
	})

	return r
}

// requestLogger logs one line per request with the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
