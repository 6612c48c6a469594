// Package config loads the server configuration from the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	auth "github.com/goliatone/go-totp-auth"
)

const EnvProduction = "production"

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:auth.db?cache=shared"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	JWTSecret            string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer            string        `env:"JWT_ISSUER" envDefault:"go-totp-auth"`
	TokenExpirationHours int           `env:"TOKEN_EXPIRATION_HOURS" envDefault:"24"`
	PendingSessionTTL    time.Duration `env:"PENDING_SESSION_TTL" envDefault:"5m"`
	MaxSecondFactor      int           `env:"MAX_SECOND_FACTOR_ATTEMPTS" envDefault:"5"`
	TOTPIssuer           string        `env:"TOTP_ISSUER" envDefault:"Our Blog"`
	BcryptWorkers        int           `env:"BCRYPT_WORKERS" envDefault:"0"`

	TokenCookie   string `env:"TOKEN_COOKIE" envDefault:"token"`
	PendingCookie string `env:"PENDING_SESSION_COOKIE" envDefault:"pending_session"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM"`
}

var _ auth.Config = (*Config)(nil)

// Load reads the optional dotenv files and then the environment.
// Variables already set in the environment win over dotenv values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 && c.IsProduction() {
		return errors.New("JWT_SECRET must be at least 32 bytes in production")
	}
	if c.TokenExpirationHours <= 0 {
		return errors.New("TOKEN_EXPIRATION_HOURS must be positive")
	}
	if c.PendingSessionTTL <= 0 {
		return errors.New("PENDING_SESSION_TTL must be positive")
	}
	if c.MaxSecondFactor <= 0 {
		return errors.New("MAX_SECOND_FACTOR_ATTEMPTS must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

func (c *Config) GetSigningKey() string {
	return c.JWTSecret
}

func (c *Config) GetIssuer() string {
	return c.JWTIssuer
}

func (c *Config) GetTokenExpiration() int {
	return c.TokenExpirationHours
}

func (c *Config) GetContextKey() string {
	return c.TokenCookie
}

func (c *Config) GetPendingSessionKey() string {
	return c.PendingCookie
}

func (c *Config) GetPendingSessionTTL() time.Duration {
	return c.PendingSessionTTL
}

func (c *Config) GetMaxSecondFactorAttempts() int {
	return c.MaxSecondFactor
}

func (c *Config) GetTOTPIssuer() string {
	return c.TOTPIssuer
}

func (c *Config) GetSecureCookies() bool {
	return c.IsProduction()
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}
