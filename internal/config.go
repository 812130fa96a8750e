package internal

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=9090" validate:"min=1,max=65535"`
	MetricsPort    int    `env:"METRICS_PORT,default=9091" validate:"min=1,max=65535"`

	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH,default=1000" validate:"min=1"`
	LimitMessages    *int          `env:"LIMIT_MESSAGES"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval   time.Duration `env:"METRIC_INTERVAL,default=15s" validate:"gt=0"`

	AppendInitialBackoff time.Duration `env:"APPEND_INITIAL_BACKOFF,default=2ms" validate:"gt=0"`
	AppendMaxBackoff     time.Duration `env:"APPEND_MAX_BACKOFF,default=100ms" validate:"gt=0"`
	AppendMaxAttempts    int           `env:"APPEND_MAX_ATTEMPTS,default=50" validate:"min=1"`

	ResubscribeInitialBackoff time.Duration `env:"RESUBSCRIBE_INITIAL_BACKOFF,default=50ms" validate:"gt=0"`
	ResubscribeMaxBackoff     time.Duration `env:"RESUBSCRIBE_MAX_BACKOFF,default=5s" validate:"gt=0"`
	ResubscribeRate           float64       `env:"RESUBSCRIBE_RATE,default=50" validate:"gt=0"`
	ResubscribeBurst          int           `env:"RESUBSCRIBE_BURST,default=20" validate:"min=1"`
	DegradedAfterAttempts     int           `env:"DEGRADED_AFTER_ATTEMPTS,default=3" validate:"min=1"`
	NameCacheSize             int64         `env:"NAME_CACHE_SIZE,default=1000" validate:"min=1"`
}

var validate = validator.New()

func (c Config) Validate() error {
	return validate.Struct(c)
}
