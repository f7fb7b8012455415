// Package api exposes a read-only HTTP view over the artifact store: which
// documents exist, how far each has progressed, and their run lineage. It
// never triggers generation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nanoslide/nanoslide/internal/config"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/pipeline"
)

// NewRouter creates the status API router.
func NewRouter(orch *pipeline.Orchestrator, cfg config.ServerConfig, logger *observability.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"nanoslide"}`))
	})

	h := newStatusHandler(orch, logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/documents", h.ListDocuments)
		r.Get("/documents/{id}/status", h.GetStatus)
		r.Get("/documents/{id}/lineage", h.GetLineage)
	})

	return r
}

// Serve runs the status API until the context is canceled.
func Serve(ctx context.Context, orch *pipeline.Orchestrator, cfg config.ServerConfig, logger *observability.Logger) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      NewRouter(orch, cfg, logger),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Status API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
