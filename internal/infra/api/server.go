package api

import (
	"net/http"
	"time"

	"campaign-launcher/internal/config"
	"campaign-launcher/internal/infra/api/apiv1"
	"campaign-launcher/internal/infra/security"
	"campaign-launcher/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter mounts /health, /metrics and the authenticated /api/v1 routes.
func NewRouter(launches usecase.LaunchUseCase, tm *security.TokenManager, requestTimeout time.Duration, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(g chi.Router) {
		g.Use(
			TraceID(logger),
			RequestLog(logger),
			Recover(logger),
			Timeout(requestTimeout),
			Auth(tm, logger),
		)
		apiv1.RegisterAPIV1(g, apiv1.NewServer(launches, logger))
	})
	return r
}

// NewHTTPServer wraps h with the configured address and timeouts.
func NewHTTPServer(cfg *config.HTTPConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
