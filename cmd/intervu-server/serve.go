package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/intervu-client/pkg/config"
	"github.com/Sternrassler/intervu-client/pkg/logging"
	"github.com/Sternrassler/intervu-client/pkg/metrics"
	"github.com/Sternrassler/intervu-client/pkg/ratelimit"
	"github.com/Sternrassler/intervu-client/pkg/spa"
)

const (
	readyTimeout    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built single-page app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().Int("port", config.DefaultPort, "port to listen on")
	cmd.Flags().String("base-path", "", "URL prefix the app is served under")
	cmd.Flags().String("dist", config.DefaultDistDir, "build directory to serve")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	b, err := a.newBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	logger := logging.NewLogger(logging.ComponentServer)
	handler := spa.NewHandler(os.DirFS(a.cfg.Server.DistDir), a.cfg.Server.BasePath, logging.NewLogger(logging.ComponentSPA))

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           newMux(handler, b, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("addr", srv.Addr).
		Str("base_path", a.cfg.Server.BasePath).
		Str("dist", a.cfg.Server.DistDir).
		Str("endpoint", b.client.Endpoint()).
		Bool("redis", b.redis != nil).
		Msg("Server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMux(site http.Handler, b readiness, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(b, logger))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", site)
	return mux
}

// readiness is what /ready inspects.
type readiness interface {
	Ping(ctx context.Context) error
	RateLimitState(ctx context.Context) (*ratelimit.State, error)
}

// RateLimitState returns the upstream rate-limit budget.
func (b *backend) RateLimitState(ctx context.Context) (*ratelimit.State, error) {
	return b.tracker.GetState(ctx)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

type readyResponse struct {
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	RateLimit *ratelimit.State `json:"rate_limit,omitempty"`
}

func readyHandler(r readiness, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), readyTimeout)
		defer cancel()

		resp := readyResponse{Status: "ok"}
		status := http.StatusOK

		if err := r.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed")
			resp.Status = "unavailable"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		} else if state, err := r.RateLimitState(ctx); err == nil {
			resp.RateLimit = state
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
