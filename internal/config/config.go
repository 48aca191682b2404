package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	LunarsoftID         string        `env:"LUNARSOFT_ID,required=true"`
	LunarsoftAPIKey     string        `env:"LUNARSOFT_API_KEY,required=true"`
	LunarsoftAlarmURL   string        `env:"LUNARSOFT_ALARM_URL,required=true"`
	TestTemplateID      int           `env:"LUNARSOFT_TEST_TEMPLATE_ID,default=26077"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT,default=10s"`
	MaxAttempts         int           `env:"DISPATCH_MAX_ATTEMPTS,default=3"`
	MaxMessageLength    int           `env:"MAX_MESSAGE_LENGTH,default=1000"`
	MaxSMSLength        int           `env:"MAX_SMS_LENGTH,default=500"`
	UseSMSFallback      bool          `env:"USE_SMS_FALLBACK,default=true"`
	RateLimitPerSec     int           `env:"RATE_LIMIT_PER_SEC,default=50"`
	RateLimitKeyPrefix  string        `env:"RATE_LIMIT_KEY_PREFIX,default=alarm-gateway:ratelimit"`
	WorkerConcurrency   int           `env:"WORKER_CONCURRENCY,default=4"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	DBMaxOpenConns      int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	DBMaxIdleConns      int           `env:"DB_MAX_IDLE_CONNS,default=2"`
	DBConnMaxLifetime   time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	DBPingTimeout       time.Duration `env:"DB_PING_TIMEOUT,default=5s"`
	RedisURL            string        `env:"REDIS_URL"`
	RabbitMQURL         string        `env:"RABBITMQ_URL"`
	RabbitMQQueue       string        `env:"RABBITMQ_QUEUE,default=alarm.dispatch"`
	RabbitMQDLX         string        `env:"RABBITMQ_DLX,default=alarm.dlx"`
	RabbitMQBackoff     time.Duration `env:"RABBITMQ_RECONNECT_BACKOFF,default=1s"`
	RabbitMQMaxBackoff  time.Duration `env:"RABBITMQ_MAX_BACKOFF,default=30s"`
	APIPort             int           `env:"API_PORT,default=8080"`
	WorkerMetricsPort   int           `env:"WORKER_METRICS_PORT,default=9091"`
	LogLevel            string        `env:"LOG_LEVEL,default=info"`
	LogFile             string        `env:"LOG_FILE"`
	LogFileMaxSizeMB    int           `env:"LOG_FILE_MAX_SIZE_MB,default=100"`
	LogFileMaxBackups   int           `env:"LOG_FILE_MAX_BACKUPS,default=5"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD,default=10s"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("failed to load config: DISPATCH_MAX_ATTEMPTS must be >= 1 (got %d)", cfg.MaxAttempts)
	}
	if cfg.TestTemplateID <= 0 {
		return nil, fmt.Errorf("failed to load config: LUNARSOFT_TEST_TEMPLATE_ID must be positive (got %d)", cfg.TestTemplateID)
	}
	if cfg.MaxSMSLength > cfg.MaxMessageLength {
		return nil, fmt.Errorf("failed to load config: MAX_SMS_LENGTH (%d) must not exceed MAX_MESSAGE_LENGTH (%d)", cfg.MaxSMSLength, cfg.MaxMessageLength)
	}
	return &cfg, nil
}
