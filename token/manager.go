package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yldrmabdullah/shopguard/clock"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret. It is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with the public key.
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	minSecretBytes      = 32
	defaultMaxFutureIAT = 10 * time.Minute
)

var (
	// ErrMalformed means the token could not be parsed.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalidSignature means the signature did not verify or the algorithm was unexpected.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired means the verification instant is past the token expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalidClaims means the token verified but its claims are unacceptable.
	ErrInvalidClaims = errors.New("token claims invalid")
)

// Config is read once by NewManager and never changes afterwards.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	Clock         clock.Clock
}

// Claims is the verified, read-only view of a token.
type Claims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	ID        string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Token is an issued credential: the compact serialization and the claims it carries.
type Token struct {
	Raw    string
	Claims Claims
}

type wireClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager signs and verifies bearer tokens. It holds no mutable state and is
// safe for concurrent use.
type Manager struct {
	config     Config
	clock      clock.Clock
	signKey    interface{}
	verifyKey  interface{}
	method     jwt.SigningMethod
	parserOpts []jwt.ParserOption
}

// NewManager validates cfg and resolves the signing keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	m := &Manager{config: cfg, clock: clock.Or(cfg.Clock)}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < minSecretBytes {
			return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", minSecretBytes)
		}
		secret := append([]byte(nil), cfg.Secret...)
		m.method = jwt.SigningMethodHS256
		m.signKey = secret
		m.verifyKey = secret
	case MethodEd25519:
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.verifyKey = pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	m.parserOpts = []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		m.parserOpts = append(m.parserOpts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		m.parserOpts = append(m.parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		m.parserOpts = append(m.parserOpts, jwt.WithAudience(cfg.Audience))
	}

	return m, nil
}

// ExpiresIn reports the configured token lifetime.
func (m *Manager) ExpiresIn() time.Duration {
	return m.config.TTL
}

// Issue mints a token for subject with the configured TTL.
func (m *Manager) Issue(subject, email string) (Token, error) {
	return m.IssueWithTTL(subject, email, m.config.TTL)
}

// IssueWithTTL mints a token that expires ttl after now.
func (m *Manager) IssueWithTTL(subject, email string, ttl time.Duration) (Token, error) {
	if m.signKey == nil {
		return Token{}, errors.New("manager has no signing key")
	}
	if strings.TrimSpace(subject) == "" {
		return Token{}, errors.New("subject is required")
	}
	if ttl <= 0 {
		return Token{}, errors.New("invalid TTL")
	}

	now := m.clock.Now()
	claims := wireClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	raw, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	return Token{Raw: raw, Claims: toClaims(&claims)}, nil
}

// Verify parses raw, checks its signature and time claims, and returns the claims.
func (m *Manager) Verify(raw string) (*Claims, error) {
	parsed := &wireClaims{}
	tok, err := jwt.NewParser(m.parserOpts...).ParseWithClaims(raw, parsed, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid {
		return nil, ErrInvalidSignature
	}
	if parsed.Subject == "" || parsed.IssuedAt == nil {
		return nil, ErrInvalidClaims
	}
	if parsed.IssuedAt.Time.After(m.clock.Now().Add(m.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalidClaims)
	}

	claims := toClaims(parsed)
	return &claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}

func toClaims(w *wireClaims) Claims {
	c := Claims{Subject: w.Subject, Email: w.Email, ID: w.ID}
	if w.IssuedAt != nil {
		c.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		c.ExpiresAt = w.ExpiresAt.Time
	}
	return c
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == 0 {
		return nil, errors.New("ed25519 requires public key")
	}
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
