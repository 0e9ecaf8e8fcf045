// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present; real
// environment variables always win.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/mailer"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/storage"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	BaseURL  string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	DBDSN         string `envconfig:"DB_DSN" required:"true"`
	DBMaxOpen     int    `envconfig:"DB_MAX_OPEN" default:"20"`
	DBMaxIdle     int    `envconfig:"DB_MAX_IDLE" default:"5"`
	AutoMigrateUp bool   `envconfig:"DB_MIGRATE_ON_START" default:"false"`

	StripeSecretKey      string        `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripePublishableKey string        `envconfig:"STRIPE_PUBLISHABLE_KEY"`
	StripeWebhookSecret  string        `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	StripeTimeout        time.Duration `envconfig:"STRIPE_TIMEOUT" default:"10s"`
	WebhookTolerance     time.Duration `envconfig:"WEBHOOK_TOLERANCE" default:"5m"`
	CompleteTimeout      time.Duration `envconfig:"COMPLETE_TIMEOUT" default:"10s"`

	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	KafkaBrokers     []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic       string        `envconfig:"KAFKA_TOPIC" default:"storefront.events"`
	OutboxInterval   time.Duration `envconfig:"OUTBOX_INTERVAL" default:"2s"`
	OutboxMaxRetries int           `envconfig:"OUTBOX_MAX_RETRIES" default:"10"`

	ArchiveDriver   string `envconfig:"ARCHIVE_DRIVER" default:"none"`
	ArchiveLocalDir string `envconfig:"ARCHIVE_LOCAL_DIR" default:"./var/archive"`
	S3Bucket        string `envconfig:"ARCHIVE_S3_BUCKET"`
	S3Region        string `envconfig:"ARCHIVE_S3_REGION" default:"eu-west-2"`
	S3Endpoint      string `envconfig:"ARCHIVE_S3_ENDPOINT"`
	S3Prefix        string `envconfig:"ARCHIVE_S3_PREFIX"`

	Currency         string `envconfig:"STORE_CURRENCY" default:"GBP"`
	ShippingStandard int64  `envconfig:"SHIPPING_STANDARD_MINOR" default:"0"`
	ShippingExpress  int64  `envconfig:"SHIPPING_EXPRESS_MINOR" default:"999"`
	TaxRate          string `envconfig:"TAX_RATE" default:"0"`

	CheckoutRPS   float64 `envconfig:"CHECKOUT_RATE_PER_SEC" default:"1"`
	CheckoutBurst int     `envconfig:"CHECKOUT_RATE_BURST" default:"5"`

	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"sid"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	// Empty SMTP_HOST logs mail instead of sending it.
	SMTPHost       string `envconfig:"SMTP_HOST"`
	SMTPPort       string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser       string `envconfig:"SMTP_USER"`
	SMTPPass       string `envconfig:"SMTP_PASS"`
	SMTPTLSMode    string `envconfig:"SMTP_TLS_MODE" default:"starttls"`
	SMTPSkipVerify bool   `envconfig:"SMTP_SKIP_VERIFY" default:"false"`
	MailFrom       string `envconfig:"MAIL_FROM" default:"orders@localhost"`
	MailFromName   string `envconfig:"MAIL_FROM_NAME" default:"Storefront"`
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// LoadDotEnv copies .env into the process environment without overriding
// variables that are already set. A missing file is fine.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if !money.ValidCurrency(c.Currency) {
		errs = append(errs, fmt.Errorf("STORE_CURRENCY %q is not an ISO-4217 code", c.Currency))
	}
	if _, err := c.Tax(); err != nil {
		errs = append(errs, err)
	}
	if c.ShippingStandard < 0 || c.ShippingExpress < 0 {
		errs = append(errs, errors.New("shipping rates must not be negative"))
	}
	switch c.ArchiveDriver {
	case "none", "local":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("ARCHIVE_S3_BUCKET is required when ARCHIVE_DRIVER=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("ARCHIVE_DRIVER %q: want none, local or s3", c.ArchiveDriver))
	}
	switch c.SMTPTLSMode {
	case "none", "starttls", "tls":
	default:
		errs = append(errs, fmt.Errorf("SMTP_TLS_MODE %q: want none, starttls or tls", c.SMTPTLSMode))
	}
	if c.CheckoutRPS <= 0 || c.CheckoutBurst < 1 {
		errs = append(errs, errors.New("checkout rate limit must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool { return strings.EqualFold(c.Env, "production") }

// Tax parses TAX_RATE as a fraction, e.g. "0.2" for 20%.
func (c Config) Tax() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("TAX_RATE %q: %w", c.TaxRate, err)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("TAX_RATE %q must be in [0,1)", c.TaxRate)
	}
	return d, nil
}

// ShippingRates is keyed by checkout shipping method.
func (c Config) ShippingRates() map[string]int64 {
	return map[string]int64{
		"standard": c.ShippingStandard,
		"express":  c.ShippingExpress,
	}
}

func (c Config) Storage() storage.Config {
	return storage.Config{
		Driver:   c.ArchiveDriver,
		LocalDir: c.ArchiveLocalDir,
		S3: storage.S3Config{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
			Prefix:   c.S3Prefix,
		},
	}
}

func (c Config) SMTP() mailer.SMTPConfig {
	return mailer.SMTPConfig{
		Host:       c.SMTPHost,
		Port:       c.SMTPPort,
		User:       c.SMTPUser,
		Pass:       c.SMTPPass,
		TLSMode:    c.SMTPTLSMode,
		SkipVerify: c.SMTPSkipVerify,
	}
}

func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
