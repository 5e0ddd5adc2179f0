// Package api exposes the batch commands over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/cost"
	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/store"
)

// Engine is the orchestrator surface the handlers drive.
type Engine interface {
	Start(ctx context.Context, b engine.Batch) (string, error)
	Stop() int
	Restart()
	Progress() engine.Progress
	Results() []model.MatchResult
}

// BatchReader reads persisted batches. It is optional.
type BatchReader interface {
	GetBatch(ctx context.Context, id string) (*model.BatchRecord, error)
	ListBatches(ctx context.Context, filter store.BatchFilter) ([]model.BatchRecord, error)
	ListResults(ctx context.Context, batchID string) ([]model.MatchResult, error)
}

// DefaultMaxUploadBytes caps roster uploads.
const DefaultMaxUploadBytes = 10 << 20

// Deps holds everything the router needs.
type Deps struct {
	Engine Engine
	Store  BatchReader
	// Usage reports metered provider calls. Optional.
	Usage func() cost.Report

	// Thresholds used when a request omits them.
	Defaults model.Thresholds
	// MaxResults is passed through to providers; zero uses their default.
	MaxResults     int
	MaxUploadBytes int64
	CORSOrigins    []string
}

// NewRouter builds the chi router with all routes mounted.
func NewRouter(d Deps) http.Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
	h := &Handlers{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-SerpAPI-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/batches", h.StartBatch)
		r.Post("/batches/stop", h.StopBatch)
		r.Post("/batches/restart", h.RestartBatch)
		r.Get("/batches", h.ListBatches)
		r.Get("/batches/{id}", h.GetBatch)
		r.Get("/batches/{id}/results", h.BatchResults)
		r.Get("/progress", h.Progress)
		r.Get("/results", h.Results)
		r.Get("/results.csv", h.ResultsCSV)
		r.Get("/results.xlsx", h.ResultsXLSX)
		r.Get("/usage", h.Usage)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
