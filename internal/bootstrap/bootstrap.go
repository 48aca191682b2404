// Package bootstrap wires configuration into the gateway shared by the api
// and worker binaries.
package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/alarm-gateway/internal/config"
	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	"github.com/kursadbilgin/alarm-gateway/internal/infra/postgresql"
	"github.com/kursadbilgin/alarm-gateway/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/alarm-gateway/internal/infra/redis"
	"github.com/kursadbilgin/alarm-gateway/internal/observability"
	"github.com/kursadbilgin/alarm-gateway/internal/provider"
	"github.com/kursadbilgin/alarm-gateway/internal/queue"
	"github.com/kursadbilgin/alarm-gateway/internal/ratelimit"
	"github.com/kursadbilgin/alarm-gateway/internal/render"
	"github.com/kursadbilgin/alarm-gateway/internal/repository"
	"github.com/kursadbilgin/alarm-gateway/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Runtime holds the gateway and the optional infrastructure behind it.
// Nil fields mean the matching dependency is not configured.
type Runtime struct {
	Gateway  *service.Gateway
	SQLDB    *sql.DB
	Redis    *redis.Client
	RabbitMQ *queue.RabbitMQ
}

func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}

	var errs []error
	if r.RabbitMQ != nil {
		errs = append(errs, r.RabbitMQ.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.SQLDB != nil {
		errs = append(errs, r.SQLDB.Close())
	}
	return errors.Join(errs...)
}

func Limits(cfg *config.Config) domain.Limits {
	return domain.Limits{
		MaxMessageLength: cfg.MaxMessageLength,
		MaxSMSLength:     cfg.MaxSMSLength,
	}
}

func PostgresOptions(cfg *config.Config) postgresql.Options {
	opts := postgresql.DefaultOptions()
	opts.MaxOpenConns = cfg.DBMaxOpenConns
	opts.MaxIdleConns = cfg.DBMaxIdleConns
	opts.ConnMaxLifetime = cfg.DBConnMaxLifetime
	opts.PingTimeout = cfg.DBPingTimeout
	return opts
}

func RabbitMQOptions(cfg *config.Config) queue.Options {
	return queue.Options{
		URL: cfg.RabbitMQURL,
		Topology: queue.Topology{
			Queue:              cfg.RabbitMQQueue,
			DeadLetterExchange: cfg.RabbitMQDLX,
		},
		ReconnectBackoff: cfg.RabbitMQBackoff,
		MaxBackoff:       cfg.RabbitMQMaxBackoff,
	}
}

func RateLimiterOptions(cfg *config.Config) infraredis.LimiterOptions {
	return infraredis.LimiterOptions{
		Limit:     cfg.RateLimitPerSec,
		Window:    time.Second,
		KeyPrefix: cfg.RateLimitKeyPrefix,
	}
}

// NewRuntime builds the gateway. Postgres, Redis and RabbitMQ are connected
// only when their URLs are configured.
func NewRuntime(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Runtime, error) {
	limits := Limits(cfg)

	lunarsoft, err := provider.NewLunarsoftProvider(cfg.LunarsoftAlarmURL, cfg.ProviderTimeout)
	if err != nil {
		return nil, fmt.Errorf("provider initialization failed: %w", err)
	}
	lunarsoft.SetLimits(limits)

	renderer, err := render.NewRenderer(render.Config{
		Credentials: render.Credentials{
			ClientID:     cfg.LunarsoftID,
			ClientSecret: cfg.LunarsoftAPIKey,
		},
		TemplateID: cfg.TestTemplateID,
		Limits:     limits,
		UseSMS:     cfg.UseSMSFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer initialization failed: %w", err)
	}

	rt := &Runtime{}

	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis initialization failed: %w", err)
		}
		rt.Redis = rdb

		redisLimiter, err := infraredis.NewRedisRateLimiter(rdb, RateLimiterOptions(cfg))
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("rate limiter initialization failed: %w", err)
		}
		limiter = redisLimiter
	} else {
		logger.Info("redis not configured, outbound rate limit disabled")
	}

	gateway, err := service.NewGateway(lunarsoft, renderer, limiter, service.GatewayConfig{
		MaxAttempts: cfg.MaxAttempts,
		Limits:      limits,
	}, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	gateway.SetMetrics(metrics)
	rt.Gateway = gateway

	if strings.TrimSpace(cfg.DatabaseDSN) != "" {
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN, PostgresOptions(cfg), logger)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("database migrations failed: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		rt.SQLDB = sqlDB
		gateway.SetAttemptRepository(repository.NewGormAttemptRepo(db))
	} else {
		logger.Info("database not configured, dispatch ledger disabled")
	}

	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		rabbit, err := queue.NewRabbitMQ(RabbitMQOptions(cfg))
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		rt.RabbitMQ = rabbit
		gateway.SetPublisher(queue.NewRabbitMQPublisher(rabbit, limits))
	} else {
		logger.Info("rabbitmq not configured, async dispatch disabled")
	}

	return rt, nil
}
