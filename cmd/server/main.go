package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mdobak/go-xerrors"

	"github.com/Brownie44l1/leaf-doctor/internal/config"
	"github.com/Brownie44l1/leaf-doctor/internal/container"
	"github.com/Brownie44l1/leaf-doctor/internal/handlers"
	"github.com/Brownie44l1/leaf-doctor/internal/logging"
	"github.com/Brownie44l1/leaf-doctor/internal/shell"
)

func main() {
	logger := logging.GetLogger()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load config", slog.Any("error", xerrors.New(err)))
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	sh, err := shell.New(cfg.BackgroundImage)
	if err != nil {
		if sh == nil {
			logger.ErrorContext(ctx, "Failed to build page shell", slog.Any("error", xerrors.New(err)))
			os.Exit(1)
		}
		logger.WarnContext(ctx, "Background image unavailable", slog.String("path", cfg.BackgroundImage), slog.Any("error", err))
	}

	app := container.New(cfg, logger)
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to release model", slog.Any("error", err))
		}
	}()

	// Load labels and model now so problems show up in the log at startup.
	// The page is served either way.
	st := app.Diagnosis.Status(ctx)
	if st.Ready() {
		logger.InfoContext(ctx, "Diagnosis ready",
			slog.Int("classes", st.Labels),
			slog.String("label_source", string(st.LabelSource)),
		)
	} else {
		logger.ErrorContext(ctx, "Diagnosis disabled", slog.Any("error", st.Err))
	}

	handler := handlers.NewHandler(app.Diagnosis, sh, cfg.MaxUploadBytes, logger)
	router := handlers.NewRouter(handler, sh, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("model", cfg.ModelPath))
	logger.Info("Endpoints: GET / (page), POST / (upload), POST /api/diagnose, POST /predict, GET /health")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.Any("error", xerrors.New(err)))
			return
		}
	case sig := <-stop:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
		}
	}
}
