package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/api"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/auth"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
)

// cleanupInterval is how often a job_cleanup job is queued
const cleanupInterval = 24 * time.Hour

var (
	serverHost string
	serverPort int
	noWorkers  bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Sensitive Data Classifier API server with the configured settings.

The server answers classification, feedback, training data, training and model
registry requests. Unless --no-workers is set it also runs the background
workers that execute queued training cycles.

Example:
  sensitive-data-api serve
  sensitive-data-api serve --port 9090
  sensitive-data-api serve --host 0.0.0.0 --port 8080 --log-level debug`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
	serveCmd.Flags().BoolVar(&noWorkers, "no-workers", false, "do not run background training workers")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	pool := app.workerPool()
	if !noWorkers {
		if err := app.recoverInterrupted(ctx); err != nil {
			return err
		}
		if err := pool.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		defer pool.Stop()
		go scheduleCleanup(ctx, app.jobs, log)
	}

	server := api.NewServer(cfg, log)
	server.SetDependencies(app.dependencies(pool))
	if cfg.Auth.Enabled {
		authService, err := auth.NewService(ctx, auth.Options{
			JWKSURL:       cfg.Auth.JWKSURL,
			CacheDuration: cfg.Auth.CacheDuration,
			Timeout:       cfg.Auth.Timeout,
			DevToken:      cfg.Auth.DevToken,
			Log:           log.Named("auth"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize auth: %w", err)
		}
		server.SetAuthenticator(authService)
	}
	server.Initialize()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	log.Info("server started",
		zap.String("addr", server.Addr()),
		zap.Bool("workers", !noWorkers),
		zap.Bool("auth", cfg.Auth.Enabled),
		zap.Bool("statistical", cfg.Classification.UseStatistical))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case runErr = <-serverErr:
		log.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("server gracefully stopped")
	return runErr
}

// scheduleCleanup queues a job_cleanup job every interval. At most one is
// pending at a time.
func scheduleCleanup(ctx context.Context, jobService jobs.Service, log *zap.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := jobService.EnqueueUniqueJob(ctx, models.JobTypeJobCleanup,
				models.JobPayload{"scope": "jobs"}, "scope", jobs.WithPriority(-1))
			if err != nil && ctx.Err() == nil {
				log.Warn("failed to queue job cleanup", zap.Error(err))
			}
		}
	}
}
