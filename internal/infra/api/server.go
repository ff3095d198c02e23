package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"license-activation-service/internal/config"
	"license-activation-service/internal/infra/api/apiv1"
	"license-activation-service/internal/infra/metrics"
	"license-activation-service/internal/usecase"
)

// Check is a named readiness probe (database, redis).
type Check func(ctx context.Context) error

// Server owns the HTTP listener for the license API, health and metrics.
type Server struct {
	cfg     config.HTTPConfig
	handler http.Handler
	log     *zerolog.Logger
}

func NewServer(cfg config.HTTPConfig, engine usecase.ValidationEngine, checks map[string]Check, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readiness(checks))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	apiv1.RegisterAPIV1(r, apiv1.NewServer(engine, &l))

	h := Chain(r,
		Recover(&l),
		TraceID(),
		ClientIP(cfg.TrustProxy),
		RequestLog(&l),
		Timeout(cfg.RequestTimeout),
	)
	return &Server{cfg: cfg, handler: h, log: &l}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func readiness(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]string, len(names))
		ok := true
		for _, n := range names {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := checks[n](ctx)
			cancel()
			if err != nil {
				ok = false
				out[n] = err.Error()
				continue
			}
			out[n] = "ok"
		}
		if !ok {
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, out)
	}
}
