package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/alarm-gateway/internal/bootstrap"
	"github.com/kursadbilgin/alarm-gateway/internal/config"
	"github.com/kursadbilgin/alarm-gateway/internal/handler"
	"github.com/kursadbilgin/alarm-gateway/internal/observability"
	"github.com/kursadbilgin/alarm-gateway/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLoggerWithSink(cfg.LogLevel, observability.FileSink{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogFileMaxSizeMB,
		MaxBackups: cfg.LogFileMaxBackups,
	})
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	rt, err := bootstrap.NewRuntime(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("gateway initialization failed", zap.Error(err))
	}
	defer rt.Close() //nolint:errcheck

	app := fiber.New(fiber.Config{
		AppName:               "alarm-gateway",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, rt.SQLDB, rt.Redis)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	credentials := handler.Credentials{UserID: cfg.LunarsoftID, APIKey: cfg.LunarsoftAPIKey}
	if err := handler.RegisterAlarmRoutes(app, rt.Gateway, credentials); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("alarm-gateway api started", zap.Int("port", cfg.APIPort))

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := app.ShutdownWithTimeout(cfg.ShutdownGracePeriod); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}

	logger.Info("alarm-gateway api stopped")
}
