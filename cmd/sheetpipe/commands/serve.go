package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/rpattn/sheetpipe/internal/logger"
	"github.com/rpattn/sheetpipe/internal/logs"
	"github.com/rpattn/sheetpipe/internal/middleware"
	"github.com/rpattn/sheetpipe/internal/pipeline"
	"github.com/rpattn/sheetpipe/internal/tasks"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background task workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, closeStore, err := openStore(ctx, cfg, log, true)
		if err != nil {
			return err
		}
		defer closeStore()

		driver := pipeline.NewDriver(cfg.Excel, store, pipeline.WithLogger(log))
		logService := logs.NewService(store, log)
		pool := tasks.NewPool(cfg.Queue, log)
		pool.Start()

		mux := http.NewServeMux()
		tasks.NewHTTPHandler(pool, driver, logService, cfg.Server.MaxUploadBytes, log).Register(mux)
		logs.NewHTTPHandler(logService).Register(mux)
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		server := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: middleware.Chain(mux,
				middleware.CORS(cfg.Server.AllowedOrigins),
				middleware.RequestIDMiddleware,
				middleware.LoggingMiddleware(log),
			),
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErr := make(chan error, 1)
		go func() {
			log.Infow("Starting HTTP server", logger.FieldAddress, cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
			close(serverErr)
		}()

		select {
		case err := <-serverErr:
			if err != nil {
				_ = pool.Stop(context.Background())
				return errors.Wrap(err, "http server")
			}
		case <-ctx.Done():
		}
		log.Infow("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Server forced to shutdown", logger.FieldError, err)
		}
		if err := pool.Stop(shutdownCtx); err != nil {
			log.Errorw("Task pool did not drain", logger.FieldError, err)
		}
		log.Infow("Server exited")
		return nil
	},
}
