package shopguard

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/yldrmabdullah/shopguard/clock"
	internalaudit "github.com/yldrmabdullah/shopguard/internal/audit"
	"github.com/yldrmabdullah/shopguard/lockout"
	"github.com/yldrmabdullah/shopguard/password"
	"github.com/yldrmabdullah/shopguard/ratelimit"
	"github.com/yldrmabdullah/shopguard/token"
	"go.uber.org/zap"
)

// dummyPassword is hashed once at build time for signin refusals that have no
// stored hash to check.
const dummyPassword = "shopguard-unowned-credential"

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink
	logger       *zap.Logger
	clock        clock.Clock

	lockoutStore lockout.Store
	limiter      ratelimit.Limiter
	hasher       password.Hasher

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs lockout and rate limiting with Redis so that state is
// shared across processes. Without it both stay in process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the account store used by Signup, Signin and Profile.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for token and lockout arithmetic.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithLockoutStore overrides the lockout store chosen from WithRedis.
func (b *Builder) WithLockoutStore(store lockout.Store) *Builder {
	b.lockoutStore = store
	return b
}

// WithRateLimiter overrides the limiter chosen from WithRedis.
func (b *Builder) WithRateLimiter(l ratelimit.Limiter) *Builder {
	b.limiter = l
	return b
}

// WithHasher overrides the hasher built from Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := clock.Or(b.clock)
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- TOKENS --------
	tm, err := token.NewManager(token.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		Secret:        cloneBytes(cfg.Token.Secret),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		Clock:         clk,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	// -------- HASHING --------
	hasher := b.hasher
	if hasher == nil {
		var primary password.Hasher
		switch cfg.Password.Algorithm {
		case "bcrypt":
			primary, err = password.NewBcrypt(cfg.Password.BcryptCost)
		default:
			primary, err = password.NewArgon2(cfg.Password.argon2Params())
		}
		if err != nil {
			return nil, fmt.Errorf("password hasher: %w", err)
		}
		hasher = password.Dispatch(primary)
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("password hasher: dummy hash: %w", err)
	}

	// -------- LOCKOUT --------
	var memStore *lockout.MemoryStore
	store := b.lockoutStore
	if store == nil {
		if b.redis != nil {
			store = lockout.NewRedisStore(b.redis, lockout.WithRetention(cfg.Lockout.Retention))
		} else {
			memStore = lockout.NewMemoryStore()
			store = memStore
		}
	} else if ms, ok := store.(*lockout.MemoryStore); ok {
		memStore = ms
	}
	tracker := lockout.New(store, lockout.Config{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	}, clk)

	// -------- RATE LIMIT --------
	var memLimiter *ratelimit.MemoryLimiter
	limiter := b.limiter
	if limiter == nil && cfg.RateLimit.Enabled {
		rl := ratelimit.Config{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window}
		if b.redis != nil {
			limiter = ratelimit.NewRedisLimiter(b.redis, rl)
		} else {
			memLimiter = ratelimit.NewMemoryLimiter(rl, clk)
			limiter = memLimiter
		}
	} else if ml, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		memLimiter = ml
	}
	resolver := ratelimit.Resolver(ratelimit.UserKey)
	if cfg.RateLimit.KeyMode == "ip" {
		resolver = ratelimit.IPKey
	}

	engine := &Engine{
		config:        cfg,
		clock:         clk,
		logger:        logger,
		tokens:        tm,
		hasher:        hasher,
		dummyHash:     dummyHash,
		lockout:       tracker,
		sharedLockout: memStore == nil,
		limiter:       limiter,
		resolver:      resolver,
		userProvider:  b.userProvider,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		done:    make(chan struct{}),
	}

	if cfg.Lockout.SweepInterval > 0 {
		targets := make(map[string]sweeper, 2)
		if memStore != nil {
			targets["lockout"] = memStore
		}
		if memLimiter != nil {
			targets["ratelimit"] = memLimiter
		}
		if len(targets) > 0 {
			engine.startSweeper(cfg.Lockout.SweepInterval, targets)
		}
	}

	b.built = true

	return engine, nil
}
