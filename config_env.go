package shopguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env is the process configuration read from the environment: the engine
// Config plus the addresses of the backing services.
type Env struct {
	Config Config

	AppEnv      string
	HTTPAddr    string
	RedisAddr   string
	DatabaseURL string
	SentryDSN   string
}

// Production reports whether AppEnv names a production deployment.
func (e Env) Production() bool {
	return e.AppEnv == "production" || e.AppEnv == "prod"
}

// LoadConfigFromEnv loads the given dotenv files (".env" when none are
// named), then reads SHOPGUARD_* and service variables over DefaultConfig.
// Variables already set in the process environment win over file values.
// Missing dotenv files are ignored; malformed values are errors.
func LoadConfigFromEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	env := Env{
		Config:      defaultConfig(),
		AppEnv:      envOrDefault("APP_ENV", "development"),
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),
	}
	cfg := &env.Config

	secret := os.Getenv("SHOPGUARD_SIGNING_SECRET")
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	cfg.Token.Secret = []byte(secret)
	cfg.Token.Issuer = os.Getenv("SHOPGUARD_ISSUER")
	cfg.Token.Audience = os.Getenv("SHOPGUARD_AUDIENCE")

	var err error
	if cfg.Token.TTL, err = envDuration("SHOPGUARD_TOKEN_TTL", cfg.Token.TTL); err != nil {
		return Env{}, err
	}
	if cfg.Lockout.Threshold, err = envInt("SHOPGUARD_LOCKOUT_THRESHOLD", cfg.Lockout.Threshold); err != nil {
		return Env{}, err
	}
	if cfg.Lockout.Duration, err = envDuration("SHOPGUARD_LOCKOUT_DURATION", cfg.Lockout.Duration); err != nil {
		return Env{}, err
	}
	if cfg.RateLimit.Limit, err = envInt("SHOPGUARD_RATE_LIMIT", cfg.RateLimit.Limit); err != nil {
		return Env{}, err
	}
	if cfg.RateLimit.Window, err = envDuration("SHOPGUARD_RATE_WINDOW", cfg.RateLimit.Window); err != nil {
		return Env{}, err
	}
	if cfg.RateLimit.TrustForwardedFor, err = envBool("SHOPGUARD_TRUST_FORWARDED_FOR", cfg.RateLimit.TrustForwardedFor); err != nil {
		return Env{}, err
	}
	cfg.RateLimit.TrustedUserHeader = strings.TrimSpace(os.Getenv("SHOPGUARD_TRUSTED_USER_HEADER"))
	if cfg.Security.ProductionMode, err = envBool("SHOPGUARD_PRODUCTION", env.Production()); err != nil {
		return Env{}, err
	}
	if cfg.Audit.Enabled, err = envBool("SHOPGUARD_AUDIT", cfg.Audit.Enabled); err != nil {
		return Env{}, err
	}
	if cfg.Metrics.Enabled, err = envBool("SHOPGUARD_METRICS", cfg.Metrics.Enabled); err != nil {
		return Env{}, err
	}
	if v := os.Getenv("SHOPGUARD_PASSWORD_ALGORITHM"); v != "" {
		cfg.Password.Algorithm = strings.ToLower(v)
	}

	return env, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// envDuration accepts Go duration syntax or a bare number of seconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
