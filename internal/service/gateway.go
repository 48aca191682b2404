package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	"github.com/kursadbilgin/alarm-gateway/internal/observability"
	"github.com/kursadbilgin/alarm-gateway/internal/provider"
	"github.com/kursadbilgin/alarm-gateway/internal/queue"
	"github.com/kursadbilgin/alarm-gateway/internal/ratelimit"
	"github.com/kursadbilgin/alarm-gateway/internal/render"
	"github.com/kursadbilgin/alarm-gateway/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts   = 3
	baseRetryDelay       = 500 * time.Millisecond
	maxRetryDelay        = 10 * time.Second
	maxRetryJitterMillis = 250
)

// ErrQueueUnavailable is returned by Enqueue when no broker is configured.
var ErrQueueUnavailable = errors.New("dispatch queue is not configured")

type GatewayConfig struct {
	MaxAttempts int
	Limits      domain.Limits
}

// Gateway is the single entry point for sending alarms to the provider.
type Gateway struct {
	provider    provider.Provider
	renderer    *render.Renderer
	rateLimiter ratelimit.RateLimiter
	attempts    repository.AttemptRepository
	publisher   queue.Publisher
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	limits      domain.Limits
	now         func() time.Time
	randIntn    func(n int) int
	sleep       func(ctx context.Context, d time.Duration) error
	newID       func() string
}

func NewGateway(
	alarmProvider provider.Provider,
	renderer *render.Renderer,
	rateLimiter ratelimit.RateLimiter,
	cfg GatewayConfig,
	logger *zap.Logger,
) (*Gateway, error) {
	if alarmProvider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Limits.MaxMessageLength <= 0 || cfg.Limits.MaxSMSLength <= 0 {
		defaults := domain.DefaultLimits()
		if cfg.Limits.MaxMessageLength <= 0 {
			cfg.Limits.MaxMessageLength = defaults.MaxMessageLength
		}
		if cfg.Limits.MaxSMSLength <= 0 {
			cfg.Limits.MaxSMSLength = defaults.MaxSMSLength
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		provider:    alarmProvider,
		renderer:    renderer,
		rateLimiter: rateLimiter,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		limits:      cfg.Limits,
		now:         time.Now,
		randIntn:    rand.Intn,
		sleep:       sleepContext,
		newID:       uuid.NewString,
	}, nil
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.metrics = metrics
}

// SetAttemptRepository enables the dispatch ledger.
func (g *Gateway) SetAttemptRepository(attempts repository.AttemptRepository) {
	if g == nil {
		return
	}
	g.attempts = attempts
}

// SetPublisher enables Enqueue.
func (g *Gateway) SetPublisher(publisher queue.Publisher) {
	if g == nil {
		return
	}
	g.publisher = publisher
}

// SendAlarm delivers a template synchronously and returns the provider's reply.
// Only IO failures are retried, up to the configured number of attempts.
func (g *Gateway) SendAlarm(ctx context.Context, template *domain.AlarmTemplate) (*domain.ResponseMessage, error) {
	return g.dispatch(ctx, g.newID(), template)
}

// Test renders the canned skeleton for the given fields and sends it. It
// reports true only when the provider acknowledged the alarm.
func (g *Gateway) Test(ctx context.Context, in domain.AlarmTest) (bool, error) {
	template, err := g.renderer.RenderWithTemplateID(in.TemplateID, render.RenderInput{
		ShopName:  in.ShopName,
		UserName:  in.UserName,
		UserID:    in.UserID,
		Tel:       in.TelNo,
		URL:       in.URL,
		SendPhone: in.SendPhone,
	})
	if err != nil {
		g.metrics.IncDispatchFailed(g.provider.Name(), "validation")
		return false, err
	}

	if _, err := g.SendAlarm(ctx, template); err != nil {
		return false, err
	}
	return true, nil
}

// Enqueue validates a template and hands it to the dispatch worker. Only the
// configured account can dispatch asynchronously: its api key is stripped
// before publishing and restored by the worker.
func (g *Gateway) Enqueue(ctx context.Context, template *domain.AlarmTemplate) (string, error) {
	if g.publisher == nil {
		return "", ErrQueueUnavailable
	}
	if err := template.ValidateWithLimits(g.limits); err != nil {
		return "", err
	}
	account := g.renderer.Credentials()
	if template.UserID != account.ClientID || template.APIKey != account.ClientSecret {
		return "", fmt.Errorf("%w: async dispatch is limited to the configured account", domain.ErrValidation)
	}

	msg := queue.AlarmMessage{
		DispatchID: g.newID(),
		Template:   *template,
	}
	msg.Template.APIKey = ""
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}

	if err := g.publisher.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to enqueue dispatch: %w", err)
	}
	g.metrics.IncDispatchEnqueued()

	observability.WithContextLogger(g.logger, ctx).Info("alarm enqueued",
		zap.String("dispatchId", msg.DispatchID),
		zap.Int("templateId", template.TemplateID),
		zap.String("recipient", domain.MaskPhone(template.Recipient())),
	)

	return msg.DispatchID, nil
}

// dispatchQueued restores the account api key on a template consumed from
// the queue and dispatches it.
func (g *Gateway) dispatchQueued(ctx context.Context, msg queue.AlarmMessage) error {
	template := msg.Template
	account := g.renderer.Credentials()
	if template.UserID == "" {
		template.UserID = account.ClientID
	}
	if template.UserID != account.ClientID {
		g.metrics.IncDispatchFailed(g.provider.Name(), "validation")
		return fmt.Errorf("%w: queued dispatch for unknown account %q", domain.ErrValidation, template.UserID)
	}
	template.APIKey = account.ClientSecret

	_, err := g.dispatch(ctx, msg.DispatchID, &template)
	return err
}

func (g *Gateway) dispatch(ctx context.Context, dispatchID string, template *domain.AlarmTemplate) (*domain.ResponseMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	providerName := g.provider.Name()
	if err := template.ValidateWithLimits(g.limits); err != nil {
		g.metrics.IncDispatchFailed(providerName, "validation")
		return nil, err
	}

	logger := observability.WithContextLogger(g.logger, ctx).With(
		zap.String("dispatchId", dispatchID),
		zap.Int("templateId", template.TemplateID),
		zap.String("recipient", domain.MaskPhone(template.Recipient())),
	)

	for attempt := 1; ; attempt++ {
		if err := g.rateLimiter.Wait(ctx, providerName); err != nil {
			limitErr := fmt.Errorf("%w: %w", ratelimit.ErrNotAcquired, err)
			g.recordAttempt(ctx, logger, dispatchID, template, attempt, nil, limitErr)
			g.metrics.IncDispatchFailed(providerName, ratelimit.Kind)
			logger.Error("alarm dispatch failed",
				zap.Int("attempt", attempt),
				zap.String("kind", ratelimit.Kind),
				zap.Error(limitErr),
			)
			return nil, limitErr
		}

		sendStart := g.now()
		result, sendErr := g.provider.Send(ctx, template)
		g.metrics.ObserveProviderSendDuration(providerName, g.now().Sub(sendStart))

		g.recordAttempt(ctx, logger, dispatchID, template, attempt, result, sendErr)

		if sendErr == nil {
			g.metrics.IncDispatchAcknowledged(providerName, template.TemplateID)
			var response *domain.ResponseMessage
			if result != nil {
				response = result.Response
			}
			logger.Info("alarm dispatched",
				zap.Int("attempt", attempt),
				zap.Stringer("response", response),
			)
			return response, nil
		}

		kind := errorKind(sendErr)
		if attempt < g.maxAttempts && provider.IsRetryable(sendErr) && ctx.Err() == nil {
			delay := g.computeRetryDelay(attempt)
			g.metrics.IncDispatchRetry(providerName, kind)
			logger.Warn("alarm dispatch retrying",
				zap.Int("attempt", attempt),
				zap.String("kind", kind),
				zap.Duration("delay", delay),
				zap.Error(sendErr),
			)
			if err := g.sleep(ctx, delay); err != nil {
				g.metrics.IncDispatchFailed(providerName, kind)
				logger.Error("alarm dispatch failed", zap.Int("attempt", attempt), zap.String("kind", kind), zap.Error(sendErr))
				return nil, sendErr
			}
			continue
		}

		g.metrics.IncDispatchFailed(providerName, kind)
		logger.Error("alarm dispatch failed",
			zap.Int("attempt", attempt),
			zap.String("kind", kind),
			zap.Error(sendErr),
		)
		return nil, sendErr
	}
}

func (g *Gateway) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if g.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = g.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

// recordAttempt writes to the ledger when one is configured. A ledger failure
// is logged and never changes the dispatch outcome.
func (g *Gateway) recordAttempt(
	ctx context.Context,
	logger *zap.Logger,
	dispatchID string,
	template *domain.AlarmTemplate,
	attemptNumber int,
	result *provider.Result,
	sendErr error,
) {
	if g.attempts == nil {
		return
	}

	attempt := &domain.DispatchAttempt{
		ID:            g.newID(),
		DispatchID:    dispatchID,
		TemplateID:    template.TemplateID,
		Recipient:     template.Recipient(),
		AttemptNumber: attemptNumber,
		Outcome:       domain.OutcomeAcknowledged,
		CreatedAt:     g.now().UTC(),
	}

	if result != nil {
		if result.StatusCode > 0 {
			value := result.StatusCode
			attempt.StatusCode = &value
		}
		if result.Response != nil && result.Response.Code != "" {
			value := string(result.Response.Code)
			attempt.ProviderCode = &value
		}
	}

	if sendErr != nil {
		attempt.Outcome = domain.OutcomeFailed
		message := sendErr.Error()
		attempt.Error = &message
		kind := errorKind(sendErr)
		attempt.ErrorKind = &kind

		var dispatchErr *provider.DispatchError
		if errors.As(sendErr, &dispatchErr) && dispatchErr.StatusCode > 0 && attempt.StatusCode == nil {
			value := dispatchErr.StatusCode
			attempt.StatusCode = &value
		}
	}

	if err := g.attempts.Create(ctx, attempt); err != nil {
		logger.Warn("failed to record dispatch attempt",
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
	}
}

func errorKind(err error) string {
	if kind, ok := provider.KindOf(err); ok {
		return kind.String()
	}
	switch {
	case errors.Is(err, ratelimit.ErrNotAcquired):
		return ratelimit.Kind
	case errors.Is(err, domain.ErrValidation):
		return "VALIDATION"
	}
	return "UNKNOWN"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
