// Package server assembles the HTTP routes and middleware.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/handlers"
	"github.com/diewo77/garage-records/internal/services"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// New constructs the root http.Handler with all routes and middlewares applied.
func New(coord *services.Coordinator, cfg config.ServerConfig, strict bool, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(logger.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(limitBody(cfg.MaxBodyBytes))

	data := handlers.NewDataHandler(coord)
	records := handlers.NewRecordHandler(coord, strict)
	health := handlers.NewHealthHandler(coord)
	migrate := handlers.NewMigrateHandler(coord)

	r.Get("/health", health.Get)
	r.Get("/data", data.Get)
	r.Post("/data", data.Replace)

	r.Route("/api", func(r chi.Router) {
		r.Get("/data", data.Get)
		r.Post("/data", data.Replace)
		r.Post("/migrate", migrate.Import)
		r.Post("/{kind}", records.Upsert)
		r.Delete("/{kind}/{id}", records.Delete)
	})
	return r
}

// requestID keeps a caller-supplied X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.Info()
			if status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("request_id", r.Header.Get(RequestIDHeader)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
