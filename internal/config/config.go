// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Settings holds every tunable for both processes. Keys map 1:1 to upper-case
// environment variables (email_queue_max_attempts -> EMAIL_QUEUE_MAX_ATTEMPTS).
type Settings struct {
	MaxAttempts  int `mapstructure:"email_queue_max_attempts" validate:"min=1"`
	RetryDelayMS int `mapstructure:"email_queue_retry_delay_ms" validate:"min=0"`
	BatchSize    int `mapstructure:"email_worker_batch_size" validate:"min=1"`
	PollMS       int `mapstructure:"email_worker_poll_ms" validate:"min=1"`
	StaleAfterMS int `mapstructure:"email_worker_stale_after_ms" validate:"min=0"`

	StoreDriver string `mapstructure:"store_driver" validate:"oneof=file sqlite postgres"`
	DataDir     string `mapstructure:"data_dir" validate:"required"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=StoreDriver postgres"`

	Port              string `mapstructure:"port" validate:"required"`
	WorkerMetricsPort string `mapstructure:"worker_metrics_port"`

	DeliveryProvider string `mapstructure:"delivery_provider" validate:"oneof=auto live log"`
	SendGridAPIKey   string `mapstructure:"sendgrid_api_key"`
	DefaultFromEmail string `mapstructure:"default_from_email" validate:"required,email"`
	BrandName        string `mapstructure:"brand_name" validate:"required"`
	TwilioAccountSID string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string `mapstructure:"twilio_auth_token"`
	SMSFromNumber    string `mapstructure:"sms_from_number"`

	WakeDriver  string `mapstructure:"wake_driver" validate:"oneof=none amqp nats"`
	AMQPURL     string `mapstructure:"amqp_url" validate:"required_if=WakeDriver amqp"`
	NATSURL     string `mapstructure:"nats_url" validate:"required_if=WakeDriver nats"`
	WakeSubject string `mapstructure:"wake_subject" validate:"required"`

	CacheDriver       string `mapstructure:"cache_driver" validate:"oneof=memory redis"`
	RedisAddr         string `mapstructure:"redis_addr" validate:"required_if=CacheDriver redis"`
	RedisPassword     string `mapstructure:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db" validate:"min=0"`
	ContactCacheTTLMS int    `mapstructure:"contact_cache_ttl_ms" validate:"min=0"`

	OTelServiceName string `mapstructure:"otel_service_name"`
	OTelEndpoint    string `mapstructure:"otel_exporter_otlp_endpoint"`
	LogLevel        string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
}

var defaults = map[string]any{
	"email_queue_max_attempts":    3,
	"email_queue_retry_delay_ms":  60000,
	"email_worker_batch_size":     20,
	"email_worker_poll_ms":        5000,
	"email_worker_stale_after_ms": 600000,
	"store_driver":                "file",
	"data_dir":                    "./data",
	"sqlite_path":                 "",
	"database_url":                "",
	"port":                        "8788",
	"worker_metrics_port":         "",
	"delivery_provider":           "live",
	"sendgrid_api_key":            "",
	"default_from_email":          "no-reply@salonglamournc.com",
	"brand_name":                  "Salon Glamour NC",
	"twilio_account_sid":          "",
	"twilio_auth_token":           "",
	"sms_from_number":             "",
	"wake_driver":                 "none",
	"amqp_url":                    "",
	"nats_url":                    "",
	"wake_subject":                "messaging.queue.wake",
	"cache_driver":                "memory",
	"redis_addr":                  "",
	"redis_password":              "",
	"redis_db":                    0,
	"contact_cache_ttl_ms":        30000,
	"otel_service_name":           "salon-messaging",
	"otel_exporter_otlp_endpoint": "",
	"log_level":                   "info",
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	return FromEnv()
}

// FromEnv builds Settings from the process environment only.
func FromEnv() (*Settings, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if s.SQLitePath == "" {
		s.SQLitePath = filepath.Join(s.DataDir, "messaging.db")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (s *Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMS) * time.Millisecond
}

func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.PollMS) * time.Millisecond
}

func (s *Settings) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterMS) * time.Millisecond
}

func (s *Settings) ContactCacheTTL() time.Duration {
	return time.Duration(s.ContactCacheTTLMS) * time.Millisecond
}
