package shopguard

import "time"

// SecurityReport summarizes the effective security posture of an Engine.
// It carries no secrets.
type SecurityReport struct {
	ProductionMode    bool
	SigningAlgorithm  string
	TokenTTL          time.Duration
	IssuerPinned      bool
	AudiencePinned    bool
	Leeway            time.Duration
	LockoutThreshold  int
	LockoutDuration   time.Duration
	SharedLockout     bool
	Password          PasswordConfigReport
	RateLimitingOn    bool
	RateLimit         int
	RateWindow        time.Duration
	RateKeyMode       string
	AuditEnabled      bool
	RejectUnsafeNames bool
}

// PasswordConfigReport describes the hashing parameters for new credentials.
type PasswordConfigReport struct {
	Algorithm      string
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	BcryptCost     int
	UpgradeOnLogin bool
}

// SecurityReport describes the engine configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	pw := PasswordConfigReport{
		Algorithm:      c.Password.Algorithm,
		UpgradeOnLogin: c.Password.UpgradeOnLogin,
	}
	if c.Password.Algorithm == "bcrypt" {
		pw.BcryptCost = c.Password.BcryptCost
	} else {
		pw.Memory = c.Password.Memory
		pw.Time = c.Password.Time
		pw.Parallelism = c.Password.Parallelism
	}

	return SecurityReport{
		ProductionMode:    c.Security.ProductionMode,
		SigningAlgorithm:  c.Token.SigningMethod,
		TokenTTL:          c.Token.TTL,
		IssuerPinned:      c.Token.Issuer != "",
		AudiencePinned:    c.Token.Audience != "",
		Leeway:            c.Token.Leeway,
		LockoutThreshold:  c.Lockout.Threshold,
		LockoutDuration:   c.Lockout.Duration,
		SharedLockout:     e.sharedLockout,
		Password:          pw,
		RateLimitingOn:    e.limiter != nil,
		RateLimit:         c.RateLimit.Limit,
		RateWindow:        c.RateLimit.Window,
		RateKeyMode:       c.RateLimit.KeyMode,
		AuditEnabled:      c.Audit.Enabled,
		RejectUnsafeNames: c.Security.RejectUnsafeNames,
	}
}
