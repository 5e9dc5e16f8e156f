package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zippro/homeai/internal/fakeapi"
)

func newDevServerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run an in-memory HomeAI API for local development",
		Long: `Serve a fake HomeAI backend with dev login, render jobs that complete
after a few status checks, credits, discover and catalog.

State lives in memory and is lost on exit. Process metrics are served on
/metrics.

Examples:
  homeai dev-server
  homeai dev-server --addr 127.0.0.1:9000 --steps 5 --fail-style brutalist`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.DevServer.Addr
			}
			steps, _ := cmd.Flags().GetInt("steps")
			failStyle, _ := cmd.Flags().GetString("fail-style")
			requirePreview, _ := cmd.Flags().GetBool("require-preview")
			logger := newLogger(a.errOut, a.cfg.Log, slog.LevelInfo)

			fake := fakeapi.New(fakeapi.Options{
				Secret:                    []byte(a.cfg.DevServer.JWTSecret),
				StepsToComplete:           steps,
				FailStyle:                 failStyle,
				RequirePreviewBeforeFinal: requirePreview,
				Logger:                    logger,
			})

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return serveDev(cmd.Context(), ln, devServerHandler(fake), logger)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from dev_server.addr)")
	cmd.Flags().Int("steps", 2, "status checks before a job completes; 0 completes jobs at creation")
	cmd.Flags().String("fail-style", "", "style id whose jobs always fail")
	cmd.Flags().Bool("require-preview", true, "require a completed preview before a final render")
	return cmd
}

func devServerHandler(fake *fakeapi.Server) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", fake.Handler())
	return r
}

// serveDev serves h on ln until ctx is done, then shuts down gracefully.
func serveDev(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dev server listening", slog.String("addr", "http://"+ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down dev server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
