package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/alarm-gateway/internal/bootstrap"
	"github.com/kursadbilgin/alarm-gateway/internal/config"
	"github.com/kursadbilgin/alarm-gateway/internal/handler"
	"github.com/kursadbilgin/alarm-gateway/internal/observability"
	"github.com/kursadbilgin/alarm-gateway/internal/queue"
	"github.com/kursadbilgin/alarm-gateway/internal/service"
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

	if cfg.RabbitMQURL == "" {
		logger.Fatal("RABBITMQ_URL is required for the dispatch worker")
	}

	metrics := observability.NewMetrics()

	rt, err := bootstrap.NewRuntime(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("gateway initialization failed", zap.Error(err))
	}
	defer rt.Close() //nolint:errcheck

	consumer := queue.NewRabbitMQConsumer(rt.RabbitMQ, cfg.WorkerConcurrency, bootstrap.Limits(cfg), logger)
	worker, err := service.NewDispatchWorker(rt.Gateway, consumer, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opsApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.RegisterHealthRoutes(opsApp, rt.SQLDB, rt.Redis)
	opsApp.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	go func() {
		if err := opsApp.Listen(fmt.Sprintf(":%d", cfg.WorkerMetricsPort)); err != nil {
			logger.Error("worker ops server stopped", zap.Error(err))
		}
	}()
	defer opsApp.ShutdownWithTimeout(cfg.ShutdownGracePeriod) //nolint:errcheck

	logger.Info("alarm-gateway worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.String("queue", rt.RabbitMQ.Topology().Queue),
	)
	if err := worker.Start(ctx); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("alarm-gateway worker stopped")
}
