package shopguard

import (
	"errors"
	"fmt"
	"time"

	"github.com/yldrmabdullah/shopguard/policy"
	"github.com/yldrmabdullah/shopguard/sanitize"
)

var (
	// ErrInvalidCredentials is returned for an unknown account, an inactive account or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked is matched by *AccountLockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrTokenExpired is returned when a bearer token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed, forged or otherwise unacceptable tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrValidationFailed is matched by *PolicyError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrInvalidFormat is returned when an email or URL is malformed.
	ErrInvalidFormat = sanitize.ErrInvalidFormat
	// ErrAccountExists is returned by Signup when the email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrPasswordMismatch is returned by Signup when the confirmation differs.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrUserNotFound is returned by a UserProvider when no account matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady is returned when an Engine was not built through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrLockoutUnavailable is returned when the lockout store cannot be reached.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// AccountLockedError reports a refused attempt and how long the lock lasts.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %s", e.Remaining.Round(time.Second))
}

// Is matches ErrAccountLocked.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// PolicyError carries every password rule a candidate violated.
type PolicyError struct {
	Violations []policy.Violation
}

func (e *PolicyError) Error() string {
	return policy.Result{Violations: e.Violations}.Error()
}

// Is matches ErrValidationFailed.
func (e *PolicyError) Is(target error) bool {
	return target == ErrValidationFailed
}
