package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env         string `envconfig:"APP_ENV" default:"development"`
	AppPort     string `envconfig:"APP_PORT" default:"3000"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// __Host- cookies are rejected by browsers unless Secure is set.
	CookieSecure      bool   `envconfig:"COOKIE_SECURE" default:"true"`
	PostLoginRedirect string `envconfig:"POST_LOGIN_REDIRECT" default:"/"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`

	KeycloakIssuer        string `envconfig:"KEYCLOAK_ISSUER"`
	KeycloakClientID      string `envconfig:"KEYCLOAK_CLIENT_ID"`
	KeycloakRedirectURL   string `envconfig:"KEYCLOAK_REDIRECT_URL"`
	KeycloakPublicBaseURL string `envconfig:"KEYCLOAK_PUBLIC_BASE_URL"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`

	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	SessionUpdateAge   time.Duration `envconfig:"SESSION_UPDATE_AGE" default:"24h"`
	SessionAbsoluteTTL time.Duration `envconfig:"SESSION_ABSOLUTE_TTL" default:"720h"`

	UsernameMaxAttempts int    `envconfig:"USERNAME_MAX_ATTEMPTS" default:"5000"`
	ProvisioningRetries uint64 `envconfig:"PROVISIONING_RETRIES" default:"3"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitPerMinute uint   `envconfig:"RATE_LIMIT_PER_MINUTE" default:"10"`
}

// Load reads an optional dotenv file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.SessionAbsoluteTTL < c.SessionTTL {
		return errors.New("config: SESSION_ABSOLUTE_TTL must not be shorter than SESSION_TTL")
	}
	if c.UsernameMaxAttempts < 1 {
		return errors.New("config: USERNAME_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

// KeycloakEnabled reports whether the Keycloak provider is configured.
func (c Config) KeycloakEnabled() bool {
	return c.KeycloakIssuer != ""
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// IsProduction is true when APP_ENV is "production".
func (c Config) IsProduction() bool {
	return c.Env == "production"
}
