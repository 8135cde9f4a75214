package shopguard

import (
	"errors"
	"time"

	"github.com/yldrmabdullah/shopguard/lockout"
	"github.com/yldrmabdullah/shopguard/password"
	"github.com/yldrmabdullah/shopguard/ratelimit"
	"golang.org/x/crypto/bcrypt"
)

// Config is copied by Builder.Build and never changes afterwards.
type Config struct {
	Token     TokenConfig
	Lockout   LockoutConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls bearer token issue and verification.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	Secret        []byte // hs256
	PrivateKey    []byte // ed25519, raw seed or PKCS#8 PEM
	PublicKey     []byte // ed25519, raw or PKIX PEM
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls failed-signin lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	// Retention bounds how long an idle Redis record survives. Ignored by the memory store.
	Retention time.Duration
	// SweepInterval is how often the in-memory lockout store and rate limiter
	// drop idle records. Zero disables sweeping.
	SweepInterval time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing algorithm for new credentials.
// Existing hashes in either supported encoding always verify.
type PasswordConfig struct {
	Algorithm      string // "argon2id" (default) or "bcrypt"
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	BcryptCost     int
	UpgradeOnLogin bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the request budget applied by Engine.Allow.
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	// KeyMode is "user" (user id, then IP) or "ip".
	KeyMode           string
	TrustForwardedFor bool
	// TrustedUserHeader names a header set by an authenticating gateway that
	// carries the caller's user id. Empty ignores client-supplied ids.
	TrustedUserHeader string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds cross-cutting hardening switches.
type SecurityConfig struct {
	ProductionMode bool
	// RejectUnsafeNames makes Signup refuse display names that classify as a threat.
	RejectUnsafeNames bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. A signing secret must
// still be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	params := password.DefaultArgon2Params()
	return Config{
		Token: TokenConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
		},
		Lockout: LockoutConfig{
			Threshold:     lockout.DefaultThreshold,
			Duration:      lockout.DefaultDuration,
			Retention:     24 * time.Hour,
			SweepInterval: time.Minute,
		},
		Password: PasswordConfig{
			Algorithm:      "argon2id",
			Memory:         params.MemoryKB,
			Time:           params.Iterations,
			Parallelism:    params.Parallelism,
			SaltLength:     params.SaltLength,
			KeyLength:      params.KeyLength,
			BcryptCost:     bcrypt.DefaultCost,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   ratelimit.DefaultConfig().Limit,
			Window:  ratelimit.DefaultConfig().Window,
			KeyMode: "user",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) argon2Params() password.Argon2Params {
	return password.Argon2Params{
		MemoryKB:    c.Memory,
		Iterations:  c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.Secret) < 32 {
			return errors.New("hs256 requires Secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 && len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey or PublicKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.Retention < 0 {
		return errors.New("Lockout Retention must be >= 0")
	}
	if c.Lockout.Retention > 0 && c.Lockout.Retention < c.Lockout.Duration {
		return errors.New("Lockout Retention must cover Lockout Duration")
	}
	if c.Lockout.SweepInterval < 0 {
		return errors.New("Lockout SweepInterval must be >= 0")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2id":
		if err := c.Password.argon2Params().Validate(); err != nil {
			return err
		}
	case "bcrypt":
		if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
			return errors.New("Password BcryptCost out of range")
		}
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return errors.New("RateLimit Limit must be > 0 when enabled")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0 when enabled")
		}
	}
	if c.RateLimit.KeyMode != "user" && c.RateLimit.KeyMode != "ip" {
		return errors.New("RateLimit KeyMode must be 'user' or 'ip'")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.Token.TTL > 24*time.Hour {
			return errors.New("ProductionMode requires Token TTL <= 24h")
		}
		if c.Token.Issuer == "" {
			return errors.New("ProductionMode requires Token Issuer")
		}
		if c.Password.Algorithm == "argon2id" {
			if c.Password.Memory < 64*1024 {
				return errors.New("ProductionMode requires Password Memory >= 65536 KB")
			}
			if c.Password.Time < 2 {
				return errors.New("ProductionMode requires Password Time >= 2")
			}
		}
		if c.Password.Algorithm == "bcrypt" && c.Password.BcryptCost < bcrypt.DefaultCost {
			return errors.New("ProductionMode requires BcryptCost >= 10")
		}
		if !c.RateLimit.Enabled {
			return errors.New("ProductionMode requires RateLimit enabled")
		}
	}

	return nil
}
