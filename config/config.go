/*
config.go - Service configuration

SOURCES (later wins):
  1. envDefault tags below
  2. .env file in the working directory (optional)
  3. process environment
  4. command-line flags bound with BindFlags (-port, -db)

ENVIRONMENT:
  PORT                         HTTP port (8080)
  ROYALTY_ENV                  development | production
  ROYALTY_LOG_LEVEL            debug | info | warn | error
  ROYALTY_DB_DRIVER            sqlite | postgres | memory
  ROYALTY_DB_DSN               sqlite path, ":memory:", or postgres URL
  ROYALTY_ADMIN_EMAILS         comma-separated admin allow-list
  ROYALTY_JWT_SECRET           HMAC key for session tokens
  ROYALTY_MINIMUM_WITHDRAWAL   withdrawal threshold (2500)
  ROYALTY_REDIS_ADDR           enables the asynq mail queue when set
  ROYALTY_SMTP_*, ROYALTY_MINIO_*  see the nested structs
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const devJWTSecret = "royalty-dev-secret-change-me"

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	Env      string `env:"ROYALTY_ENV" envDefault:"development"`
	LogLevel string `env:"ROYALTY_LOG_LEVEL" envDefault:"info"`

	DB DBConfig `envPrefix:"ROYALTY_DB_"`

	CORSOrigins []string `env:"ROYALTY_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
	AdminEmails []string `env:"ROYALTY_ADMIN_EMAILS" envSeparator:","`
	// AdminPassword seeds a login for every admin email that has none.
	AdminPassword string `env:"ROYALTY_ADMIN_PASSWORD"`

	JWTSecret  string        `env:"ROYALTY_JWT_SECRET"`
	JWTTTL     time.Duration `env:"ROYALTY_JWT_TTL" envDefault:"24h"`
	BcryptCost int           `env:"ROYALTY_BCRYPT_COST" envDefault:"0"`

	MinimumWithdrawal        decimal.Decimal `env:"ROYALTY_MINIMUM_WITHDRAWAL" envDefault:"2500"`
	DefaultRoyaltyPercentage int             `env:"ROYALTY_DEFAULT_PERCENTAGE" envDefault:"100"`
	OperatorEmail            string          `env:"ROYALTY_OPERATOR_EMAIL"`
	CurrencySymbol           string          `env:"ROYALTY_CURRENCY_SYMBOL" envDefault:"₹"`

	SMTP  SMTPConfig  `envPrefix:"ROYALTY_SMTP_"`
	MinIO MinIOConfig `envPrefix:"ROYALTY_MINIO_"`

	RedisAddr string `env:"ROYALTY_REDIS_ADDR"`

	// Scenarios exposes the demo loader, which wipes the database.
	Scenarios bool `env:"ROYALTY_SCENARIOS" envDefault:"false"`
}

type DBConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"royalty.db"`
}

func (c DBConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres, DriverMemory)),
		validation.Field(&c.DSN, validation.When(c.Driver != DriverMemory, validation.Required)),
	)
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"noreply@royalty.local"`
}

// Enabled reports whether a relay is configured; without one mail is logged.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type MinIOConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"covers"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	PublicURL string `env:"PUBLIC_URL"`
}

func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" }

// =============================================================================
// LOADING
// =============================================================================

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	for i, e := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.TrimSpace(e)
	}
	if cfg.JWTSecret == "" && cfg.Env != EnvProduction {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

// BindFlags registers the command-line overrides on flags.
func (c *Config) BindFlags(flags *flag.FlagSet) {
	flags.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	flags.StringVar(&c.DB.DSN, "db", c.DB.DSN, `database DSN (sqlite path, ":memory:", or postgres URL)`)
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Env, validation.In(EnvDevelopment, EnvProduction)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.DB),
		validation.Field(&c.AdminEmails, validation.Each(is.EmailFormat)),
		validation.Field(&c.JWTSecret, validation.Required.Error("must be set in production"), validation.Length(16, 0)),
		validation.Field(&c.MinimumWithdrawal, validation.By(func(any) error {
			if c.MinimumWithdrawal.IsNegative() {
				return errors.New("must not be negative")
			}
			return nil
		})),
		validation.Field(&c.DefaultRoyaltyPercentage, validation.Min(0), validation.Max(100)),
		validation.Field(&c.OperatorEmail, is.EmailFormat),
	)
}

// IsAdmin reports whether email is on the admin allow-list.
func (c Config) IsAdmin(email string) bool {
	for _, a := range c.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}
