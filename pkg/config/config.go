package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Config aggregates every runtime setting the binaries need.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Providers ProvidersConfig
	Webhook   WebhookConfig
	Outbox    OutboxConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Notify    NotifyConfig
}

// Load parses the environment into a Config and derives legacy values.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRADEPOST_APP_ENV" required:"true"`
	Port         string `envconfig:"TRADEPOST_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TRADEPOST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRADEPOST_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"TRADEPOST_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TRADEPOST_DB_DSN"`
	Driver string `envconfig:"TRADEPOST_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TRADEPOST_DB_HOST"`
	Port     int    `envconfig:"TRADEPOST_DB_PORT" default:"5432"`
	User     string `envconfig:"TRADEPOST_DB_USER"`
	Password string `envconfig:"TRADEPOST_DB_PASSWORD"`
	Name     string `envconfig:"TRADEPOST_DB_NAME"`
	SSLMode  string `envconfig:"TRADEPOST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRADEPOST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEPOST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"TRADEPOST_DB_AUTO_MIGRATE" default:"false"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either TRADEPOST_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADEPOST_REDIS_URL"`
	Address      string        `envconfig:"TRADEPOST_REDIS_ADDR"`
	Password     string        `envconfig:"TRADEPOST_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADEPOST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADEPOST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEPOST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEPOST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRADEPOST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRADEPOST_JWT_ISSUER" default:"tradepost"`
	ExpirationMinutes int    `envconfig:"TRADEPOST_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// ProvidersConfig carries the per-PSP credentials.
type ProvidersConfig struct {
	Paystack    PaystackConfig
	Flutterwave FlutterwaveConfig
	Stripe      StripeConfig
}

type PaystackConfig struct {
	SecretKey string `envconfig:"TRADEPOST_PAYSTACK_SECRET_KEY"`
	BaseURL   string `envconfig:"TRADEPOST_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
}

type FlutterwaveConfig struct {
	SecretKey string `envconfig:"TRADEPOST_FLUTTERWAVE_SECRET_KEY"`
	// VerifHash is the shared webhook secret compared against the
	// verif-hash header, distinct from the API key.
	VerifHash string `envconfig:"TRADEPOST_FLUTTERWAVE_VERIF_HASH"`
	BaseURL   string `envconfig:"TRADEPOST_FLUTTERWAVE_BASE_URL" default:"https://api.flutterwave.com/v3"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"TRADEPOST_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"TRADEPOST_STRIPE_WEBHOOK_SECRET"`
}

// WebhookConfig bounds webhook processing; deliveries run on the PSP's
// retry clock so the deadline stays short.
type WebhookConfig struct {
	HandlerTimeout time.Duration `envconfig:"TRADEPOST_WEBHOOK_HANDLER_TIMEOUT" default:"10s"`
	GuardTTL       time.Duration `envconfig:"TRADEPOST_WEBHOOK_GUARD_TTL" default:"24h"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"TRADEPOST_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"TRADEPOST_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts    int           `envconfig:"TRADEPOST_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"TRADEPOST_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TRADEPOST_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"TRADEPOST_PUBSUB_DOMAIN_TOPIC" default:"domain-events"`
	DomainSubscription string `envconfig:"TRADEPOST_PUBSUB_DOMAIN_SUBSCRIPTION" default:"domain-events-notifications"`
}

// NotifyConfig bounds the notification fan-out so a slow delivery sink can
// never hold open the webhook path.
type NotifyConfig struct {
	HandlerTimeout time.Duration `envconfig:"TRADEPOST_NOTIFY_HANDLER_TIMEOUT" default:"5s"`
}
