package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/alarm-gateway/internal/observability"
	"github.com/kursadbilgin/alarm-gateway/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// DispatchWorker drains the dispatch queue through the gateway.
type DispatchWorker struct {
	gateway     *Gateway
	consumer    queue.Consumer
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewDispatchWorker(
	gateway *Gateway,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		gateway:     gateway,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (w *DispatchWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs the configured number of consumers until context cancellation.
func (w *DispatchWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, w.processMessage)
			if err != nil {
				w.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// processMessage returns an error for every failed dispatch so the consumer
// dead-letters it.
func (w *DispatchWorker) processMessage(ctx context.Context, msg queue.AlarmMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}

	w.metrics.IncWorkerInFlight()
	defer w.metrics.DecWorkerInFlight()

	if err := w.gateway.dispatchQueued(ctx, msg); err != nil {
		w.metrics.IncDispatchDeadLettered()
		return fmt.Errorf("dispatch %s failed: %w", msg.DispatchID, err)
	}

	return nil
}
